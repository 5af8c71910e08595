package sync

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlanRoundTrip(t *testing.T) {
	plan := NewPlan()
	plan.Add("a.txt", KindFile)
	plan.Add("sub/", KindDir)
	plan.Add("sub/b.txt", KindFile)
	plan.Add("z with spaces.txt", KindFile)

	planBytes, err := json.Marshal(plan)
	require.NoError(t, err)

	reloaded := NewPlan()
	require.NoError(t, json.Unmarshal(planBytes, reloaded))

	assert.Equal(t, plan.Entries(), reloaded.Entries())
}

func TestPlanMarshalOrder(t *testing.T) {
	plan := NewPlan()
	plan.Add("z.txt", KindFile)
	plan.Add("a/", KindDir)
	plan.Add("a/m.txt", KindFile)

	planBytes, err := json.Marshal(plan)
	require.NoError(t, err)

	exp := `{"z.txt":"file","a/":"dir","a/m.txt":"file"}`
	assert.Equal(t, exp, string(planBytes))
}

func TestPlanAddKeepsPosition(t *testing.T) {
	plan := NewPlan()
	plan.Add("first", KindDir)
	plan.Add("second", KindFile)
	plan.Add("first", KindFile)

	exp := []Entry{
		{Path: "first", Kind: KindFile},
		{Path: "second", Kind: KindFile},
	}
	assert.Equal(t, exp, plan.Entries())
}

func TestPlanUnmarshalRejectsBadKind(t *testing.T) {
	plan := NewPlan()
	err := json.Unmarshal([]byte(`{"a.txt":"symlink"}`), plan)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`["a.txt"]`), plan)
	assert.Error(t, err)
}
