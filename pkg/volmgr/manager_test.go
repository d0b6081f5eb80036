package volmgr

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoblock/pkg/engine"
	"github.com/marmos91/dittoblock/pkg/engine/meta"
	"github.com/marmos91/dittoblock/pkg/engine/solo"
	"github.com/marmos91/dittoblock/pkg/volume"
	volerrors "github.com/marmos91/dittoblock/pkg/volume/errors"
)

type testEnv struct {
	t     *testing.T
	dir   string
	dev   engine.Device
	store *meta.Store
	mgr   *Manager
}

// newTestEnv boots a full manager over a real badger store and a file-backed
// device. Loop intervals are long; tests drive the reaper through ReapOnce.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{t: t, dir: t.TempDir()}

	path := filepath.Join(env.dir, "data0.img")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(1<<30))
	require.NoError(t, f.Close())
	env.dev = engine.Device{Path: path, Type: engine.DevTypeAutoDetect}

	env.boot()
	t.Cleanup(func() { _ = env.store.Close() })
	return env
}

// boot starts (or restarts) the stack against the same directory.
func (e *testEnv) boot() {
	store, err := meta.Open(filepath.Join(e.dir, "meta"))
	require.NoError(e.t, err)
	e.store = store

	mgr := New(Config{
		ReaperInterval:   time.Hour,
		WatchdogInterval: 10 * time.Millisecond,
		ExecutorMode:     ExecImmediate,
	}, nil, store, nil)
	eng := solo.New(solo.Config{
		Devices:   []engine.Device{e.dev},
		ChunkSize: 1 << 20,
	}, store, mgr)
	mgr.BindEngine(eng)
	require.NoError(e.t, mgr.Start(context.Background()))
	e.mgr = mgr
}

// restart simulates a process restart: drain, close, reopen.
func (e *testEnv) restart(graceful bool) {
	if graceful {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		require.NoError(e.t, e.mgr.Shutdown(ctx))
	}
	require.NoError(e.t, e.store.Close())
	e.boot()
}

func testInfo(name string) volume.VolumeInfo {
	return volume.VolumeInfo{
		ID:       uuid.New(),
		Name:     name,
		Size:     64 << 20,
		PageSize: 4096,
	}
}

func TestCreateLookupAndList(t *testing.T) {
	env := newTestEnv(t)
	info := testInfo("vol-a")

	v, err := env.mgr.CreateVolume(context.Background(), info)
	require.NoError(t, err)
	assert.Equal(t, volume.StateOnline, v.State())

	got, err := env.mgr.LookupVolume(info.ID)
	require.NoError(t, err)
	assert.Equal(t, info.ID, got.ID())

	assert.Equal(t, []uuid.UUID{info.ID}, env.mgr.ListVolumeIDs())

	stats, err := env.mgr.GetVolumeStats(info.ID)
	require.NoError(t, err)
	assert.Equal(t, "online", stats.State)
	assert.Equal(t, "vol-a", stats.Name)
}

func TestLookupUnknownVolume(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.mgr.LookupVolume(uuid.New())
	require.Error(t, err)
	assert.Equal(t, volerrors.ErrNotFound, volerrors.CodeOf(err))
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	env := newTestEnv(t)
	info := testInfo("vol-a")

	_, err := env.mgr.CreateVolume(context.Background(), info)
	require.NoError(t, err)

	_, err = env.mgr.CreateVolume(context.Background(), info)
	require.Error(t, err)
	assert.Equal(t, volerrors.ErrAlreadyExists, volerrors.CodeOf(err))
}

func TestConcurrentDuplicateCreates(t *testing.T) {
	env := newTestEnv(t)
	info := testInfo("contended")

	const attempts = 16
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = env.mgr.CreateVolume(context.Background(), info)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.Equal(t, volerrors.ErrAlreadyExists, volerrors.CodeOf(err))
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, env.mgr.registry.Len())
}

func TestCreateRejectsInvalidInfo(t *testing.T) {
	env := newTestEnv(t)

	info := testInfo("bad")
	info.Size = 4097
	_, err := env.mgr.CreateVolume(context.Background(), info)
	assert.Error(t, err)
}

func TestRemoveIdleVolumeFinalizesInline(t *testing.T) {
	env := newTestEnv(t)
	info := testInfo("vol-a")

	_, err := env.mgr.CreateVolume(context.Background(), info)
	require.NoError(t, err)
	require.NoError(t, env.mgr.RemoveVolume(context.Background(), info.ID))

	// Idle volumes are finalized inline, leaving nothing for the reaper.
	_, err = env.mgr.LookupVolume(info.ID)
	assert.Equal(t, volerrors.ErrNotFound, volerrors.CodeOf(err))
	assert.Zero(t, env.mgr.ReapOnce(context.Background()))

	// The id and ordinal are free again immediately.
	_, err = env.mgr.CreateVolume(context.Background(), info)
	assert.NoError(t, err)
}

func TestRemoveUnknownVolume(t *testing.T) {
	env := newTestEnv(t)
	err := env.mgr.RemoveVolume(context.Background(), uuid.New())
	assert.Equal(t, volerrors.ErrNotFound, volerrors.CodeOf(err))
}

func TestRemoveBusyVolumeWaitsForReaper(t *testing.T) {
	env := newTestEnv(t)
	info := testInfo("busy")

	v, err := env.mgr.CreateVolume(context.Background(), info)
	require.NoError(t, err)
	v.Ref()

	err = env.mgr.RemoveVolume(context.Background(), info.ID)
	require.Error(t, err)
	assert.Equal(t, volerrors.ErrInvariantViolation, volerrors.CodeOf(err))
	assert.True(t, v.IsDestroying())

	// Reaper skips it while the reference is held.
	assert.Zero(t, env.mgr.ReapOnce(context.Background()))

	v.Unref()
	assert.Equal(t, 1, env.mgr.ReapOnce(context.Background()))
	_, err = env.mgr.LookupVolume(info.ID)
	assert.Equal(t, volerrors.ErrNotFound, volerrors.CodeOf(err))
}

func TestReaperOnlyFinalizesDrainedDestroyingVolumes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	online, err := env.mgr.CreateVolume(ctx, testInfo("online"))
	require.NoError(t, err)

	busy, err := env.mgr.CreateVolume(ctx, testInfo("busy"))
	require.NoError(t, err)
	require.NoError(t, busy.BeginRequest())
	_ = env.mgr.RemoveVolume(ctx, busy.ID())

	idle, err := env.mgr.CreateVolume(ctx, testInfo("idle"))
	require.NoError(t, err)
	require.NoError(t, env.mgr.RemoveVolume(ctx, idle.ID()))
	assert.Nil(t, env.mgr.registry.Lookup(idle.ID()))

	assert.Zero(t, env.mgr.ReapOnce(ctx))
	assert.NotNil(t, env.mgr.registry.Lookup(online.ID()))
	assert.NotNil(t, env.mgr.registry.Lookup(busy.ID()))

	busy.EndRequest()
	assert.Equal(t, 1, env.mgr.ReapOnce(ctx))
}

func TestRecoveryAcrossRestart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	infoA := testInfo("vol-a")
	infoB := testInfo("vol-b")
	_, err := env.mgr.CreateVolume(ctx, infoA)
	require.NoError(t, err)
	_, err = env.mgr.CreateVolume(ctx, infoB)
	require.NoError(t, err)

	firstID := env.mgr.Stats().ServiceID
	env.restart(true)

	stats := env.mgr.Stats()
	assert.Equal(t, firstID, stats.ServiceID, "service identity survives restart")
	assert.Equal(t, uint64(2), stats.BootCount)
	assert.Equal(t, 2, stats.Volumes)

	for _, id := range []uuid.UUID{infoA.ID, infoB.ID} {
		v, err := env.mgr.LookupVolume(id)
		require.NoError(t, err)
		assert.Equal(t, volume.StateOnline, v.State())
	}
}

func TestInterruptedDestructionConvergesAfterRestart(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	info := testInfo("doomed")

	_, err := env.mgr.CreateVolume(ctx, info)
	require.NoError(t, err)

	// Crash mid-destroy: device removed, index and superblock left behind.
	volume.SetDestroyCrashHook(func(uuid.UUID) bool { return true })
	err = env.mgr.RemoveVolume(ctx, info.ID)
	require.ErrorIs(t, err, volume.ErrDestroyAborted)
	volume.SetDestroyCrashHook(nil)

	// Shut down leaking the destroying volume on purpose.
	SetShutdownCrashSimulation(true)
	env.restart(true)
	SetShutdownCrashSimulation(false)

	// Recovery resumed the destruction; the reaper finalizes it.
	env.mgr.ReapOnce(ctx)
	_, err = env.mgr.LookupVolume(info.ID)
	assert.Equal(t, volerrors.ErrNotFound, volerrors.CodeOf(err))
}

func TestShutdownDrainsOutstandingRequests(t *testing.T) {
	env := newTestEnv(t)

	require.NoError(t, env.mgr.BeginServiceRequest())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err := env.mgr.Shutdown(ctx)
	require.Error(t, err, "shutdown must not complete with in-flight requests")

	env.mgr.EndServiceRequest()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	require.NoError(t, env.mgr.Shutdown(ctx2))
}

func TestShutdownWaitsForVolumeRequests(t *testing.T) {
	env := newTestEnv(t)

	v, err := env.mgr.CreateVolume(context.Background(), testInfo("busy"))
	require.NoError(t, err)
	require.NoError(t, v.BeginRequest())

	// The watchdog must keep the drain open while the volume serves a
	// request, even with the service-wide counter at zero.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = env.mgr.Shutdown(ctx)
	require.Error(t, err, "shutdown must not complete while a volume serves requests")

	v.EndRequest()
	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	require.NoError(t, env.mgr.Shutdown(ctx2))
}

func TestLifecycleRejectedDuringShutdown(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.mgr.Shutdown(ctx))

	_, err := env.mgr.CreateVolume(context.Background(), testInfo("late"))
	assert.Equal(t, volerrors.ErrShuttingDown, volerrors.CodeOf(err))

	err = env.mgr.RemoveVolume(context.Background(), uuid.New())
	assert.Equal(t, volerrors.ErrShuttingDown, volerrors.CodeOf(err))

	err = env.mgr.BeginServiceRequest()
	assert.Equal(t, volerrors.ErrShuttingDown, volerrors.CodeOf(err))
}

func TestServiceStats(t *testing.T) {
	env := newTestEnv(t)

	stats := env.mgr.Stats()
	assert.Equal(t, uint64(1), stats.BootCount)
	assert.NotEqual(t, uuid.Nil, stats.ServiceID)
	assert.NotZero(t, stats.TotalCapacity)
	assert.Zero(t, stats.Volumes)

	_, err := env.mgr.CreateVolume(context.Background(), testInfo("vol-a"))
	require.NoError(t, err)
	assert.Equal(t, 1, env.mgr.Stats().Volumes)
}

func TestChunkSelectorPersistsOwnership(t *testing.T) {
	env := newTestEnv(t)
	info := testInfo("chunky")

	v, err := env.mgr.CreateVolume(context.Background(), info)
	require.NoError(t, err)

	ord, ok := env.mgr.OrdinalOf(info.ID)
	require.True(t, ok)
	assert.Equal(t, v.Ordinal(), ord)

	accepted := env.mgr.SelectChunks(ord, []uint32{10, 11})
	assert.Equal(t, []uint32{10, 11}, accepted)
	assert.Equal(t, []uint32{10, 11}, v.ChunkIDs())

	// Ownership survives a restart through the superblock extension.
	env.restart(true)
	recovered, err := env.mgr.LookupVolume(info.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 11}, recovered.ChunkIDs())
}

func TestOrdinalOfUnknownGroup(t *testing.T) {
	env := newTestEnv(t)
	_, ok := env.mgr.OrdinalOf(uuid.New())
	assert.False(t, ok)
}
