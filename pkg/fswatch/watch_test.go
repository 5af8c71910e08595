package fswatch

import (
	"sort"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtpsync/mtpsync/pkg/errors"
)

func TestSubdirectories(t *testing.T) {
	fs = afero.NewMemMapFs()
	dirs := []string{"/music", "/music/Albums", "/music/Albums/Live",
		"/music/Playlists"}
	for _, dir := range dirs {
		require.NoError(t, fs.MkdirAll(dir, 0755))
	}
	require.NoError(t, afero.WriteFile(fs, "/music/Albums/track.mp3",
		[]byte("audio"), 0644))

	paths, err := subdirectories("/music")
	require.NoError(t, err)

	// Sort for consistency.
	sort.Strings(paths)
	assert.Equal(t, dirs, paths)
}

func TestWatchMissingRoot(t *testing.T) {
	fs = afero.NewMemMapFs()

	_, err := Watch("/gone")
	require.Error(t, err)
	assert.IsType(t, errors.FileNotFound{}, errors.RootCause(err))
}

func TestWatchNotADirectory(t *testing.T) {
	fs = afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/music", []byte("audio"), 0644))

	_, err := Watch("/music")
	assert.Error(t, err)
}

func TestCombineUpdates(t *testing.T) {
	t.Parallel()

	updates := make(chan fsnotify.Event, 1024)
	addEvents := func(num int) {
		for i := 0; i < num; i++ {
			updates <- fsnotify.Event{}
		}
	}

	// Seed with events.
	numUpdates := 100
	addEvents(numUpdates)
	combined := combineUpdates(updates)

	// Assert that the events are being combined.
	numCombined := countEvents(combined)
	assert.True(t, numCombined < numUpdates,
		"expected less combined events (%d) than %d", numCombined, numUpdates)

	// Add more events.
	addEvents(100)
	<-combined
}

func countEvents(c chan struct{}) (n int) {
	// Block until the first event.
	<-c
	n++

	// Count the number of events until there hasn't been any new events in 500
	// milliseconds.
	for {
		select {
		case <-c:
			n++
		case <-time.After(500 * time.Millisecond):
			return n
		}
	}
}
