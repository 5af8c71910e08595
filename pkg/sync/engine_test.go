package sync

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtpsync/mtpsync/pkg/errors"
	"github.com/mtpsync/mtpsync/pkg/mtp"
	"github.com/mtpsync/mtpsync/pkg/mtp/mounted"
	"github.com/mtpsync/mtpsync/pkg/retry"
)

const (
	testMount       = "/mnt/device"
	testStorageRoot = "/mnt/device/Internal storage"
	testDest        = "/Music"
	testDeviceDir   = "/mnt/device/Internal storage/Music"
)

// faultClient wraps a device client with per-filename upload faults and an
// operation counter, for exercising the executor's failure handling.
type faultClient struct {
	mtp.Client
	failUploads  map[string]bool
	uploadCalls  int
	createdNames []string
}

func (c *faultClient) Upload(sourcePath string, parentID uint32, filename string) (uint32, error) {
	c.uploadCalls++
	if c.failUploads[filename] {
		return 0, errors.DeviceIOError{Op: "upload", Err: errors.New("injected fault")}
	}
	return c.Client.Upload(sourcePath, parentID, filename)
}

func (c *faultClient) CreateFolder(parentID uint32, name string, storageID uint32) (uint32, error) {
	c.createdNames = append(c.createdNames, name)
	return c.Client.CreateFolder(parentID, name, storageID)
}

type testEnv struct {
	fs     afero.Fs
	client *faultClient
	index  *mtp.RemoteIndex
	engine *Engine
}

// newTestEnv builds an engine over a device mounted in a mem filesystem. Any
// files already written under testDeviceDir become part of the device index.
func newTestEnv(t *testing.T, fs afero.Fs, useChecksum bool) *testEnv {
	require.NoError(t, fs.MkdirAll(testStorageRoot, 0755))

	device := mounted.New(fs, "/scratch")
	require.NoError(t, device.OpenDevice(mtp.DeviceInfo{MountPath: testMount}))

	storages, err := device.ListStorages()
	require.NoError(t, err)
	require.Len(t, storages, 1)

	index, err := device.BuildIndex(storages[0].ID, testDest)
	require.NoError(t, err)

	client := &faultClient{Client: device, failUploads: map[string]bool{}}
	engine := New(fs, client, index, Options{
		SourceDir:       "/src",
		DestPath:        testDest,
		StorageID:       storages[0].ID,
		UseChecksum:     useChecksum,
		ScratchDir:      "/scratch",
		DefaultPlanPath: "/data/execution_plan.json",
		RetryDir:        "/data/.execution_retry",
		Retry:           retry.New(0, 2, errors.IsDeviceIO),
	})
	return &testEnv{fs: fs, client: client, index: index, engine: engine}
}

func writeFile(t *testing.T, fs afero.Fs, path, contents string) {
	require.NoError(t, afero.WriteFile(fs, path, []byte(contents), 0644))
}

func TestFreshSync(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.txt", "contents of a")
	writeFile(t, fs, "/src/sub/b.txt", "contents of b")
	env := newTestEnv(t, fs, true)

	planPath, err := env.engine.Verify("")
	require.NoError(t, err)
	assert.Equal(t, "/data/execution_plan.json", planPath)

	plan, err := LoadPlan(fs, planPath)
	require.NoError(t, err)
	exp := []Entry{
		{Path: "a.txt", Kind: KindFile},
		{Path: "sub/", Kind: KindDir},
		{Path: "sub/b.txt", Kind: KindFile},
	}
	assert.Equal(t, exp, plan.Entries())

	success, retryPath, err := env.engine.Execute(planPath)
	require.NoError(t, err)
	assert.True(t, success)
	assert.Empty(t, retryPath)

	gotA, err := afero.ReadFile(fs, testDeviceDir+"/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "contents of a", string(gotA))

	gotB, err := afero.ReadFile(fs, testDeviceDir+"/sub/b.txt")
	require.NoError(t, err)
	assert.Equal(t, "contents of b", string(gotB))
}

func TestVerifyIdempotentAfterExecute(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.txt", "contents of a")
	writeFile(t, fs, "/src/sub/b.txt", "contents of b")
	env := newTestEnv(t, fs, true)

	planPath, err := env.engine.Verify("")
	require.NoError(t, err)
	success, _, err := env.engine.Execute(planPath)
	require.NoError(t, err)
	require.True(t, success)

	planPath, err = env.engine.Verify("")
	require.NoError(t, err)
	plan, err := LoadPlan(fs, planPath)
	require.NoError(t, err)
	assert.Equal(t, 0, plan.Len(), "verify after execute should produce an empty plan")
}

func TestSizeOnlyCompare(t *testing.T) {
	t.Run("DifferentSize", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFile(t, fs, "/src/a.txt", "local contents")
		writeFile(t, fs, testDeviceDir+"/a.txt", "device")
		env := newTestEnv(t, fs, false)

		planPath, err := env.engine.Verify("")
		require.NoError(t, err)
		plan, err := LoadPlan(fs, planPath)
		require.NoError(t, err)

		kind, ok := plan.Get("a.txt")
		require.True(t, ok)
		assert.Equal(t, KindFile, kind)
	})

	// With identical sizes, size-only mode can't see a content change. The
	// false negative is the accepted behavior of --no-checksum.
	t.Run("SameSizeDifferentContent", func(t *testing.T) {
		fs := afero.NewMemMapFs()
		writeFile(t, fs, "/src/a.txt", "aaaa")
		writeFile(t, fs, testDeviceDir+"/a.txt", "bbbb")
		env := newTestEnv(t, fs, false)

		planPath, err := env.engine.Verify("")
		require.NoError(t, err)
		plan, err := LoadPlan(fs, planPath)
		require.NoError(t, err)

		_, ok := plan.Get("a.txt")
		assert.False(t, ok)
	})
}

func TestChecksumCompare(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.txt", "aaaa")
	writeFile(t, fs, "/src/same.txt", "same contents")
	writeFile(t, fs, testDeviceDir+"/a.txt", "bbbb")
	writeFile(t, fs, testDeviceDir+"/same.txt", "same contents")
	env := newTestEnv(t, fs, true)

	planPath, err := env.engine.Verify("")
	require.NoError(t, err)
	plan, err := LoadPlan(fs, planPath)
	require.NoError(t, err)

	kind, ok := plan.Get("a.txt")
	require.True(t, ok)
	assert.Equal(t, KindFile, kind)

	_, ok = plan.Get("same.txt")
	assert.False(t, ok)

	// The scratch copies downloaded for comparison must be cleaned up.
	scratch, err := afero.ReadDir(fs, "/scratch")
	if err == nil {
		assert.Empty(t, scratch)
	}
}

func TestPartialFailureAndResume(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.txt", "contents of a")
	writeFile(t, fs, "/src/sub/c.txt", "contents of c")
	env := newTestEnv(t, fs, true)
	env.client.failUploads["c.txt"] = true

	planPath, err := env.engine.Verify("")
	require.NoError(t, err)

	success, retryPath, err := env.engine.Execute(planPath)
	require.NoError(t, err)
	assert.False(t, success)
	require.NotEmpty(t, retryPath)

	// The retry plan contains exactly the failed entry.
	retryPlan, err := LoadPlan(fs, retryPath)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Path: "sub/c.txt", Kind: KindFile}}, retryPlan.Entries())

	// With the fault removed, executing the retry plan completes the sync.
	env.client.failUploads = map[string]bool{}
	success, retryPath, err = env.engine.Execute(retryPath)
	require.NoError(t, err)
	assert.True(t, success)
	assert.Empty(t, retryPath)

	gotC, err := afero.ReadFile(fs, testDeviceDir+"/sub/c.txt")
	require.NoError(t, err)
	assert.Equal(t, "contents of c", string(gotC))
}

func TestEnsureFolderIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	env := newTestEnv(t, fs, true)

	plan := NewPlan()
	plan.Add("sub/", KindDir)
	require.NoError(t, SavePlan(fs, "/data/dirs.json", plan))

	for i := 0; i < 2; i++ {
		success, _, err := env.engine.Execute("/data/dirs.json")
		require.NoError(t, err)
		require.True(t, success)
	}

	assert.Equal(t, []string{"sub"}, env.client.createdNames,
		"re-running an existing directory entry must not create it again")
}

func TestExecuteResolvesLatestPlan(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/src/a.txt", "contents of a")
	env := newTestEnv(t, fs, true)

	// No plan exists, so Execute generates one with a fresh verify.
	success, retryPath, err := env.engine.Execute("")
	require.NoError(t, err)
	assert.True(t, success)
	assert.Empty(t, retryPath)

	_, err = afero.ReadFile(fs, testDeviceDir+"/a.txt")
	assert.NoError(t, err)
}

func TestSyncFileMissingSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	env := newTestEnv(t, fs, true)

	plan := NewPlan()
	plan.Add("ghost.txt", KindFile)
	require.NoError(t, SavePlan(fs, "/data/ghost.json", plan))

	success, retryPath, err := env.engine.Execute("/data/ghost.json")
	require.NoError(t, err)
	assert.False(t, success)
	require.NotEmpty(t, retryPath)

	retryPlan, err := LoadPlan(fs, retryPath)
	require.NoError(t, err)
	assert.Equal(t, []Entry{{Path: "ghost.txt", Kind: KindFile}}, retryPlan.Entries())

	// The upload itself was never attempted.
	assert.Equal(t, 0, env.client.uploadCalls)
}

func TestVerifyMissingSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	env := newTestEnv(t, fs, true)

	_, err := env.engine.Verify("")
	require.Error(t, err)
	assert.IsType(t, errors.FileNotFound{}, errors.RootCause(err))
}
