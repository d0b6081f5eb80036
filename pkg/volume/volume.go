// Package volume implements the per-volume lifecycle state machine: create,
// recover, destroy. A Volume owns its superblock record, its replicated
// device handle and its index table; the volume manager owns registration,
// reaping and ordinal assignment.
package volume

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/marmos91/dittoblock/internal/logger"
	"github.com/marmos91/dittoblock/pkg/engine"
	"github.com/marmos91/dittoblock/pkg/superblock"
	volerrors "github.com/marmos91/dittoblock/pkg/volume/errors"
)

// RecordKind is the metadata record kind of volume superblocks.
const RecordKind = "volume"

// State is the volume lifecycle state. The transition is monotonic:
// Online moves to Destroying exactly once and never back.
type State int32

const (
	StateOnline     State = State(superblock.VolumeStateOnline)
	StateDestroying State = State(superblock.VolumeStateDestroying)
)

func (s State) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateDestroying:
		return "destroying"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// VolumeInfo is the caller-supplied description of a volume to create.
type VolumeInfo struct {
	ID         uuid.UUID `json:"id" validate:"required"`
	Name       string    `json:"name" validate:"required,min=1"`
	Size       uint64    `json:"size" validate:"required,gt=0"`
	PageSize   uint32    `json:"page_size" validate:"required,gt=0"`
	NumStreams uint32    `json:"num_streams"`
}

var validate = validator.New()

// Validate checks the volume description for basic sanity. The page size
// must divide the provisioned size.
func (i *VolumeInfo) Validate() error {
	if err := validate.Struct(i); err != nil {
		return fmt.Errorf("invalid volume info: %w", err)
	}
	if i.Size%uint64(i.PageSize) != 0 {
		return fmt.Errorf("invalid volume info: size %d is not a multiple of page size %d", i.Size, i.PageSize)
	}
	return nil
}

// Services bundles the engine services a volume operates against.
type Services struct {
	Repl  engine.ReplService
	Index engine.IndexService
	Meta  engine.MetaService
}

// Stats is a point-in-time snapshot of one volume.
type Stats struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Size        uint64    `json:"size"`
	PageSize    uint32    `json:"page_size"`
	State       string    `json:"state"`
	Ordinal     uint32    `json:"ordinal"`
	Chunks      int       `json:"chunks"`
	Outstanding int64     `json:"outstanding_requests"`
	Refs        int64     `json:"references"`
}

// Volume is one logical volume. The zero value is not usable; construct
// through Create or Recover.
type Volume struct {
	svc Services

	state       atomic.Int32
	outstanding atomic.Int64
	refs        atomic.Int64

	mu  sync.Mutex
	sb  *superblock.VolumeSB
	rec engine.Record
	dev engine.ReplDev
	tbl engine.IndexTable
}

// destroyCrashHook, when set, aborts destruction between replicated-device
// removal and index-table teardown. Test-only fault injection.
var destroyCrashHook atomic.Pointer[func(id uuid.UUID) bool]

// SetDestroyCrashHook installs the destruction fault-injection hook. Pass
// nil to clear it.
func SetDestroyCrashHook(h func(id uuid.UUID) bool) {
	if h == nil {
		destroyCrashHook.Store(nil)
		return
	}
	destroyCrashHook.Store(&h)
}

// ErrDestroyAborted is returned when the fault-injection hook interrupts a
// destruction sequence. The volume stays in the destroying state and the
// sequence converges when re-run.
var ErrDestroyAborted = fmt.Errorf("volume destruction aborted by fault injection")

// Create builds a new volume. Ordering is commit-last: the replicated
// device and index table are created first, and the superblock record is
// persisted only once they succeeded, so a crash before the final write
// leaves no trace.
func Create(ctx context.Context, info VolumeInfo, ordinal uint32, svc Services) (*Volume, error) {
	sb := superblock.NewVolumeSB(info.ID, info.Size, info.PageSize, info.Name, ordinal)
	sb.NumStreams = info.NumStreams

	dev, err := svc.Repl.CreateReplDev(ctx, info.ID, nil).Wait(ctx)
	if err != nil {
		return nil, volerrors.NewResourceUnavailableError(info.ID, "create", err)
	}

	tbl := &indexTable{id: uuid.New(), parent: info.ID}
	if err := svc.Index.AddIndexTable(tbl); err != nil {
		// Roll back the device so the failed create leaves nothing behind.
		if _, rerr := svc.Repl.RemoveReplDev(ctx, info.ID).Wait(ctx); rerr != nil {
			logger.Error("Rollback of replicated device failed",
				logger.VolumeID(info.ID), logger.Err(rerr))
		}
		return nil, fmt.Errorf("failed to register index table: %w", err)
	}

	v := &Volume{svc: svc, sb: sb, dev: dev, tbl: tbl}
	v.state.Store(int32(StateOnline))

	rec, err := svc.Meta.CreateRecord(RecordKind, sb.Encode())
	if err != nil {
		if ierr := svc.Index.RemoveIndexTable(tbl); ierr != nil {
			logger.Error("Rollback of index table failed",
				logger.VolumeID(info.ID), logger.Err(ierr))
		}
		if _, rerr := svc.Repl.RemoveReplDev(ctx, info.ID).Wait(ctx); rerr != nil {
			logger.Error("Rollback of replicated device failed",
				logger.VolumeID(info.ID), logger.Err(rerr))
		}
		return nil, fmt.Errorf("failed to persist volume superblock: %w", err)
	}
	v.rec = rec

	logger.Info("Volume created",
		logger.VolumeID(info.ID),
		logger.VolumeName(info.Name),
		logger.Size(info.Size),
		logger.Ordinal(ordinal))
	return v, nil
}

// Recover rebuilds a volume from its persisted superblock during the
// recovery scan. A missing replicated device is tolerated: it means the
// crash happened mid-destruction, and the reaper converges the removal.
func Recover(payload []byte, rec engine.Record, svc Services) (*Volume, error) {
	sb, err := superblock.DecodeVolumeSB(payload)
	if err != nil {
		return nil, volerrors.NewConsistencyError(RecordKind, err)
	}

	v := &Volume{svc: svc, sb: sb, rec: rec}
	v.state.Store(int32(sb.State))

	dev, err := svc.Repl.GetReplDev(sb.ID)
	if err != nil {
		logger.Warn("Replicated device missing at recovery, assuming mid-destruction",
			logger.VolumeID(sb.ID), logger.State(State(sb.State).String()))
	} else {
		v.dev = dev
	}

	logger.Info("Volume recovered",
		logger.VolumeID(sb.ID),
		logger.VolumeName(sb.Name),
		logger.State(State(sb.State).String()))
	return v, nil
}

// MarkDestroying transitions the volume to the destroying state and
// persists it before any side effects. Idempotent; the transition never
// reverses.
func (v *Volume) MarkDestroying() error {
	if !v.state.CompareAndSwap(int32(StateOnline), int32(StateDestroying)) {
		return nil
	}
	v.mu.Lock()
	v.sb.State = superblock.VolumeStateDestroying
	err := v.rec.Write(v.sb.Encode())
	v.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to persist destroying state: %w", err)
	}
	return nil
}

// Destroy runs the teardown sequence. Every step is idempotent so a
// destruction interrupted by a crash converges when re-run: persist the
// destroying state first, then remove the replicated device, then the index
// table, then erase the superblock.
func (v *Volume) Destroy(ctx context.Context) error {
	id := v.ID()

	if err := v.MarkDestroying(); err != nil {
		return err
	}

	v.mu.Lock()
	dev := v.dev
	v.dev = nil
	v.mu.Unlock()
	if dev != nil {
		if _, err := v.svc.Repl.RemoveReplDev(ctx, id).Wait(ctx); err != nil {
			return volerrors.NewResourceUnavailableError(id, "remove", err)
		}
	}

	if hp := destroyCrashHook.Load(); hp != nil && (*hp)(id) {
		return ErrDestroyAborted
	}

	v.mu.Lock()
	tbl := v.tbl
	v.tbl = nil
	v.mu.Unlock()
	if tbl != nil {
		if err := v.svc.Index.RemoveIndexTable(tbl); err != nil {
			return fmt.Errorf("failed to remove index table: %w", err)
		}
	}

	if err := v.rec.Destroy(); err != nil {
		return fmt.Errorf("failed to erase volume superblock: %w", err)
	}

	logger.Info("Volume destroyed", logger.VolumeID(id))
	return nil
}

// AttachIndexTable re-attaches a table recovered through the index
// service's recovery callback.
func (v *Volume) AttachIndexTable(tbl engine.IndexTable) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.tbl = tbl
}

// PersistChunks appends finalized chunk assignments to the superblock's
// ownership extension and persists the record.
func (v *Volume) PersistChunks(ids []uint32) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.sb.ChunkIDs = append(v.sb.ChunkIDs, ids...)
	if err := v.rec.Write(v.sb.Encode()); err != nil {
		return fmt.Errorf("failed to persist chunk assignment: %w", err)
	}
	return nil
}

// ID returns the volume identity.
func (v *Volume) ID() uuid.UUID {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sb.ID
}

// Name returns the volume name.
func (v *Volume) Name() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sb.Name
}

// Ordinal returns the volume's assigned ordinal.
func (v *Volume) Ordinal() uint32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sb.Ordinal
}

// ChunkIDs returns a copy of the volume's chunk ownership.
func (v *Volume) ChunkIDs() []uint32 {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]uint32, len(v.sb.ChunkIDs))
	copy(out, v.sb.ChunkIDs)
	return out
}

// State returns the current lifecycle state.
func (v *Volume) State() State { return State(v.state.Load()) }

// IsDestroying reports whether teardown has started.
func (v *Volume) IsDestroying() bool { return v.State() == StateDestroying }

// BeginRequest counts an in-flight request against the volume. Rejected
// once teardown has started.
func (v *Volume) BeginRequest() error {
	if v.IsDestroying() {
		return volerrors.NewInvariantViolationError(v.ID(), "volume is being destroyed")
	}
	v.outstanding.Add(1)
	return nil
}

// EndRequest releases an in-flight request.
func (v *Volume) EndRequest() { v.outstanding.Add(-1) }

// Outstanding returns the in-flight request count.
func (v *Volume) Outstanding() int64 { return v.outstanding.Load() }

// Ref takes a reference on the volume.
func (v *Volume) Ref() { v.refs.Add(1) }

// Unref drops a reference on the volume.
func (v *Volume) Unref() { v.refs.Add(-1) }

// Refs returns the reference count.
func (v *Volume) Refs() int64 { return v.refs.Load() }

// Stats snapshots the volume for listing and monitoring.
func (v *Volume) Stats() Stats {
	v.mu.Lock()
	sb := v.sb
	chunks := len(sb.ChunkIDs)
	v.mu.Unlock()

	return Stats{
		ID:          sb.ID,
		Name:        sb.Name,
		Size:        sb.Size,
		PageSize:    sb.PageSize,
		State:       v.State().String(),
		Ordinal:     sb.Ordinal,
		Chunks:      chunks,
		Outstanding: v.Outstanding(),
		Refs:        v.Refs(),
	}
}

// indexTable is the concrete index table: identity plus parentage. Its
// persistent state lives in the index service's record; Destroy has no
// local state to release.
type indexTable struct {
	id, parent uuid.UUID
}

func (t *indexTable) ID() uuid.UUID       { return t.id }
func (t *indexTable) ParentID() uuid.UUID { return t.parent }
func (t *indexTable) Destroy() error      { return nil }

// NewIndexTable builds an index table handle, used by the manager's
// recovery callback to reconstruct tables from persisted records.
func NewIndexTable(id, parent uuid.UUID) engine.IndexTable {
	return &indexTable{id: id, parent: parent}
}
