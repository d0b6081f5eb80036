package volume

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoblock/pkg/engine"
	"github.com/marmos91/dittoblock/pkg/superblock"
	volerrors "github.com/marmos91/dittoblock/pkg/volume/errors"
)

// fakeReplDev, fakeRepl, fakeIndex and fakeMeta are in-memory engine
// doubles that record calls and can be told to fail.

type fakeReplDev struct{ id uuid.UUID }

func (d *fakeReplDev) GroupID() uuid.UUID { return d.id }

type fakeRepl struct {
	mu         sync.Mutex
	devs       map[uuid.UUID]*fakeReplDev
	failCreate bool
	failRemove bool
	removes    int
}

func newFakeRepl() *fakeRepl {
	return &fakeRepl{devs: make(map[uuid.UUID]*fakeReplDev)}
}

func (r *fakeRepl) CreateReplDev(_ context.Context, id uuid.UUID, _ []uuid.UUID) *engine.Deferred[engine.ReplDev] {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate {
		return engine.Settled[engine.ReplDev](nil, errors.New("create failed"))
	}
	dev := &fakeReplDev{id: id}
	r.devs[id] = dev
	return engine.Settled[engine.ReplDev](dev, nil)
}

func (r *fakeRepl) GetReplDev(id uuid.UUID) (engine.ReplDev, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dev, ok := r.devs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return dev, nil
}

func (r *fakeRepl) RemoveReplDev(_ context.Context, id uuid.UUID) *engine.Deferred[struct{}] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removes++
	if r.failRemove {
		return engine.Settled(struct{}{}, errors.New("remove failed"))
	}
	delete(r.devs, id)
	return engine.Settled(struct{}{}, nil)
}

func (r *fakeRepl) Stats() engine.CapStats { return engine.CapStats{} }

type fakeIndex struct {
	mu      sync.Mutex
	tables  map[uuid.UUID]engine.IndexTable
	failAdd bool
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{tables: make(map[uuid.UUID]engine.IndexTable)}
}

func (i *fakeIndex) AddIndexTable(tbl engine.IndexTable) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.failAdd {
		return errors.New("add failed")
	}
	i.tables[tbl.ID()] = tbl
	return nil
}

func (i *fakeIndex) RemoveIndexTable(tbl engine.IndexTable) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.tables, tbl.ID())
	return nil
}

func (i *fakeIndex) count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.tables)
}

type fakeRecord struct {
	meta *fakeMeta
	kind string
	id   int
}

func (r *fakeRecord) Kind() string { return r.kind }

func (r *fakeRecord) Write(payload []byte) error {
	r.meta.mu.Lock()
	defer r.meta.mu.Unlock()
	if r.meta.failWrite {
		return errors.New("write failed")
	}
	r.meta.records[r.id] = append([]byte(nil), payload...)
	return nil
}

func (r *fakeRecord) Destroy() error {
	r.meta.mu.Lock()
	defer r.meta.mu.Unlock()
	delete(r.meta.records, r.id)
	return nil
}

type fakeMeta struct {
	mu         sync.Mutex
	records    map[int][]byte
	nextID     int
	failCreate bool
	failWrite  bool
}

func newFakeMeta() *fakeMeta {
	return &fakeMeta{records: make(map[int][]byte)}
}

func (m *fakeMeta) RegisterHandler(string, engine.RecordFoundFunc, bool) {}
func (m *fakeMeta) ReadSubSB(string) error                              { return nil }

func (m *fakeMeta) CreateRecord(kind string, payload []byte) (engine.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreate {
		return nil, errors.New("create record failed")
	}
	m.nextID++
	rec := &fakeRecord{meta: m, kind: kind, id: m.nextID}
	m.records[rec.id] = append([]byte(nil), payload...)
	return rec, nil
}

func (m *fakeMeta) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *fakeMeta) lastPayload() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var maxID int
	for id := range m.records {
		if id > maxID {
			maxID = id
		}
	}
	return m.records[maxID]
}

func testServices() (Services, *fakeRepl, *fakeIndex, *fakeMeta) {
	repl := newFakeRepl()
	idx := newFakeIndex()
	meta := newFakeMeta()
	return Services{Repl: repl, Index: idx, Meta: meta}, repl, idx, meta
}

func testInfo() VolumeInfo {
	return VolumeInfo{
		ID:       uuid.New(),
		Name:     "vol-a",
		Size:     1 << 30,
		PageSize: 4096,
	}
}

func TestVolumeInfoValidation(t *testing.T) {
	info := testInfo()
	require.NoError(t, info.Validate())

	bad := info
	bad.Size = 0
	assert.Error(t, bad.Validate())

	bad = info
	bad.Name = ""
	assert.Error(t, bad.Validate())

	bad = info
	bad.Size = 4097
	assert.Error(t, bad.Validate())
}

func TestCreateOnline(t *testing.T) {
	svc, repl, idx, meta := testServices()
	info := testInfo()

	v, err := Create(context.Background(), info, 5, svc)
	require.NoError(t, err)

	assert.Equal(t, StateOnline, v.State())
	assert.Equal(t, info.ID, v.ID())
	assert.Equal(t, uint32(5), v.Ordinal())
	assert.Equal(t, 1, meta.count())
	assert.Equal(t, 1, idx.count())
	_, err = repl.GetReplDev(info.ID)
	assert.NoError(t, err)
}

func TestCreateFailsWithoutTrace(t *testing.T) {
	t.Run("repl dev creation fails", func(t *testing.T) {
		svc, repl, idx, meta := testServices()
		repl.failCreate = true

		_, err := Create(context.Background(), testInfo(), 0, svc)
		require.Error(t, err)
		assert.Equal(t, volerrors.ErrResourceUnavailable, volerrors.CodeOf(err))
		assert.Zero(t, meta.count())
		assert.Zero(t, idx.count())
	})

	t.Run("index registration fails", func(t *testing.T) {
		svc, repl, idx, meta := testServices()
		idx.failAdd = true
		info := testInfo()

		_, err := Create(context.Background(), info, 0, svc)
		require.Error(t, err)
		assert.Zero(t, meta.count())
		_, gerr := repl.GetReplDev(info.ID)
		assert.Error(t, gerr, "rollback must remove the device")
	})

	t.Run("superblock commit fails", func(t *testing.T) {
		svc, repl, idx, meta := testServices()
		meta.failCreate = true
		info := testInfo()

		_, err := Create(context.Background(), info, 0, svc)
		require.Error(t, err)
		assert.Zero(t, idx.count())
		_, gerr := repl.GetReplDev(info.ID)
		assert.Error(t, gerr)
	})
}

func TestDestroySequence(t *testing.T) {
	svc, repl, idx, meta := testServices()
	info := testInfo()

	v, err := Create(context.Background(), info, 0, svc)
	require.NoError(t, err)

	require.NoError(t, v.Destroy(context.Background()))
	assert.Equal(t, StateDestroying, v.State())
	assert.Zero(t, meta.count())
	assert.Zero(t, idx.count())
	_, gerr := repl.GetReplDev(info.ID)
	assert.Error(t, gerr)
}

func TestDestroyPersistsStateFirst(t *testing.T) {
	svc, repl, _, meta := testServices()
	repl.failRemove = true

	v, err := Create(context.Background(), testInfo(), 0, svc)
	require.NoError(t, err)

	// Device removal fails, but the destroying marker must already be
	// durable.
	require.Error(t, v.Destroy(context.Background()))
	sb, err := superblock.DecodeVolumeSB(meta.lastPayload())
	require.NoError(t, err)
	assert.Equal(t, superblock.VolumeStateDestroying, sb.State)
}

func TestDestroyCrashHookConvergence(t *testing.T) {
	svc, repl, idx, meta := testServices()
	info := testInfo()

	v, err := Create(context.Background(), info, 0, svc)
	require.NoError(t, err)

	SetDestroyCrashHook(func(uuid.UUID) bool { return true })
	err = v.Destroy(context.Background())
	require.ErrorIs(t, err, ErrDestroyAborted)
	SetDestroyCrashHook(nil)

	// Crashed mid-destroy: device gone, index and superblock still there.
	assert.Equal(t, 1, idx.count())
	assert.Equal(t, 1, meta.count())

	// Re-running converges without touching the device again in a way
	// that fails.
	require.NoError(t, v.Destroy(context.Background()))
	assert.Zero(t, idx.count())
	assert.Zero(t, meta.count())
	assert.Equal(t, 1, repl.removes)
}

func TestRecoverOnlineVolume(t *testing.T) {
	svc, _, _, meta := testServices()
	info := testInfo()

	created, err := Create(context.Background(), info, 9, svc)
	require.NoError(t, err)
	require.NoError(t, created.PersistChunks([]uint32{1, 2}))

	rec, err := meta.CreateRecord(RecordKind, meta.lastPayload())
	require.NoError(t, err)

	v, err := Recover(meta.lastPayload(), rec, svc)
	require.NoError(t, err)
	assert.Equal(t, StateOnline, v.State())
	assert.Equal(t, info.ID, v.ID())
	assert.Equal(t, uint32(9), v.Ordinal())
	assert.Equal(t, []uint32{1, 2}, v.ChunkIDs())
}

func TestRecoverToleratesMissingReplDev(t *testing.T) {
	svc, _, _, meta := testServices()

	sb := superblock.NewVolumeSB(uuid.New(), 1<<20, 4096, "ghost", 0)
	sb.State = superblock.VolumeStateDestroying
	rec, err := meta.CreateRecord(RecordKind, sb.Encode())
	require.NoError(t, err)

	v, err := Recover(sb.Encode(), rec, svc)
	require.NoError(t, err)
	assert.True(t, v.IsDestroying())

	// Resumed destruction converges even with no device to remove.
	require.NoError(t, v.Destroy(context.Background()))
}

func TestRecoverRejectsCorruptSuperblock(t *testing.T) {
	svc, _, _, meta := testServices()
	rec, err := meta.CreateRecord(RecordKind, []byte("garbage"))
	require.NoError(t, err)

	_, err = Recover([]byte("garbage"), rec, svc)
	require.Error(t, err)
	assert.Equal(t, volerrors.ErrConsistency, volerrors.CodeOf(err))
}

func TestRequestCountingRejectsDestroying(t *testing.T) {
	svc, _, _, _ := testServices()

	v, err := Create(context.Background(), testInfo(), 0, svc)
	require.NoError(t, err)

	require.NoError(t, v.BeginRequest())
	assert.Equal(t, int64(1), v.Outstanding())
	v.EndRequest()
	assert.Zero(t, v.Outstanding())

	require.NoError(t, v.Destroy(context.Background()))
	err = v.BeginRequest()
	require.Error(t, err)
	assert.Equal(t, volerrors.ErrInvariantViolation, volerrors.CodeOf(err))
}

func TestStatsSnapshot(t *testing.T) {
	svc, _, _, _ := testServices()
	info := testInfo()

	v, err := Create(context.Background(), info, 3, svc)
	require.NoError(t, err)
	require.NoError(t, v.PersistChunks([]uint32{7}))
	v.Ref()
	require.NoError(t, v.BeginRequest())

	stats := v.Stats()
	assert.Equal(t, info.ID, stats.ID)
	assert.Equal(t, "vol-a", stats.Name)
	assert.Equal(t, "online", stats.State)
	assert.Equal(t, uint32(3), stats.Ordinal)
	assert.Equal(t, 1, stats.Chunks)
	assert.Equal(t, int64(1), stats.Outstanding)
	assert.Equal(t, int64(1), stats.Refs)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "online", StateOnline.String())
	assert.Equal(t, "destroying", StateDestroying.String())
	assert.Equal(t, fmt.Sprintf("unknown(%d)", 9), State(9).String())
}
