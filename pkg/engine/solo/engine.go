// Package solo implements the storage engine contracts for a single-node
// deployment: solo replicated devices (one member, no peers), persisted
// index tables, and chunk allocation over the formatted replication region.
package solo

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/dittoblock/internal/logger"
	"github.com/marmos91/dittoblock/pkg/engine"
	volerrors "github.com/marmos91/dittoblock/pkg/volume/errors"
)

const (
	// RecordKindReplDev is the metadata record kind for replicated devices.
	RecordKindReplDev = "repldev"
	// RecordKindIndex is the metadata record kind for index tables.
	RecordKindIndex = "index"
)

// ErrReplDevNotFound is returned by GetReplDev when no device exists for the
// group. During recovery this means the device was removed before the crash.
var ErrReplDevNotFound = errors.New("replicated device not found")

// Config configures the solo engine.
type Config struct {
	// Devices are the attached storage devices. Types set to auto-detect
	// are classified at startup; unsupported devices are skipped.
	Devices []engine.Device

	// ChunkSize is the allocation unit of the replication region.
	ChunkSize uint64
}

// DefaultChunkSize is the replication-region allocation unit used when the
// configuration does not override it.
const DefaultChunkSize uint64 = 32 << 20

// replDev is the solo replicated device: a single local member.
type replDev struct {
	groupID  uuid.UUID
	listener engine.ReplListener
	rec      engine.Record
}

func (d *replDev) GroupID() uuid.UUID { return d.groupID }

// indexEntry pairs a recovered or registered index table with its
// persistence record.
type indexEntry struct {
	tbl engine.IndexTable
	rec engine.Record
}

// Engine is the single-node engine: ReplService, IndexService and chunk
// allocation over one formatted layout.
type Engine struct {
	cfg    Config
	meta   engine.MetaService
	app    engine.ReplApplication
	layout *Layout

	mu       sync.RWMutex
	devs     map[uuid.UUID]*replDev
	indexes  map[uuid.UUID]indexEntry
	chunks   *chunkAllocator
	selector engine.ChunkSelector
	started  bool
	stopped  bool
}

// New builds the engine over an already-open metadata service. The engine
// does not own the metadata store; the caller opens and closes it.
func New(cfg Config, meta engine.MetaService, app engine.ReplApplication) *Engine {
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Engine{
		cfg:     cfg,
		meta:    meta,
		app:     app,
		devs:    make(map[uuid.UUID]*replDev),
		indexes: make(map[uuid.UUID]indexEntry),
	}
}

// Start formats the device layout, replays persisted devices and index
// tables, and fires the application's init-completed callback. Volume
// records must not be read before Start returns. The selector is consulted
// on every chunk allocation and must not be nil.
func (e *Engine) Start(callbacks engine.IndexServiceCallbacks, selector engine.ChunkSelector) error {
	e.selector = selector
	if e.app.ReplImplType() != engine.ReplImplSolo {
		return volerrors.NewConfigurationError("only solo replication is supported")
	}

	layout, err := FormatLayout(e.cfg.Devices)
	if err != nil {
		return err
	}
	e.layout = layout
	e.chunks = newChunkAllocator(layout.ReplBytes / e.cfg.ChunkSize)

	logger.Info("Engine layout formatted",
		"meta_bytes", layout.MetaBytes,
		"log_bytes", layout.LogBytes,
		"index_bytes", layout.IndexBytes,
		"repl_bytes", layout.ReplBytes,
		"total_chunks", e.chunks.total)

	e.meta.RegisterHandler(RecordKindReplDev, e.onReplDevFound, true)
	e.meta.RegisterHandler(RecordKindIndex, func(payload []byte, rec engine.Record) error {
		return e.onIndexFound(payload, rec, callbacks)
	}, true)

	if err := e.meta.ReadSubSB(RecordKindReplDev); err != nil {
		return fmt.Errorf("replicated device recovery failed: %w", err)
	}
	if err := e.meta.ReadSubSB(RecordKindIndex); err != nil {
		return fmt.Errorf("index table recovery failed: %w", err)
	}

	e.mu.Lock()
	e.started = true
	recovered := len(e.devs)
	e.mu.Unlock()

	logger.Info("Engine recovery complete",
		"replica_id", e.app.ReplicaID().String(),
		"repl_devs", recovered)
	e.app.OnReplDevsInitCompleted()
	return nil
}

// Stop quiesces the engine. Listeners receive no further notifications.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	logger.Info("Engine stopped")
}

// onReplDevFound is the recovery handler for persisted replicated devices.
func (e *Engine) onReplDevFound(payload []byte, rec engine.Record) error {
	if len(payload) != 16 {
		return volerrors.NewConsistencyError(RecordKindReplDev,
			fmt.Errorf("unexpected payload size %d", len(payload)))
	}
	groupID, err := uuid.FromBytes(payload)
	if err != nil {
		return volerrors.NewConsistencyError(RecordKindReplDev, err)
	}

	dev := &replDev{
		groupID:  groupID,
		listener: e.app.CreateReplDevListener(groupID),
		rec:      rec,
	}

	e.mu.Lock()
	e.devs[groupID] = dev
	e.mu.Unlock()

	logger.Debug("Recovered replicated device", logger.KeyGroup, groupID.String())
	return nil
}

// onIndexFound is the recovery handler for persisted index tables.
func (e *Engine) onIndexFound(payload []byte, rec engine.Record, cb engine.IndexServiceCallbacks) error {
	if len(payload) != 32 {
		return volerrors.NewConsistencyError(RecordKindIndex,
			fmt.Errorf("unexpected payload size %d", len(payload)))
	}
	tableID, err := uuid.FromBytes(payload[:16])
	if err != nil {
		return volerrors.NewConsistencyError(RecordKindIndex, err)
	}
	parentID, err := uuid.FromBytes(payload[16:])
	if err != nil {
		return volerrors.NewConsistencyError(RecordKindIndex, err)
	}

	tbl, err := cb.OnIndexTableFound(tableID, parentID)
	if err != nil {
		return err
	}
	if tbl == nil {
		// Application elected to skip this table; drop the record.
		return rec.Destroy()
	}

	e.mu.Lock()
	e.indexes[tableID] = indexEntry{tbl: tbl, rec: rec}
	e.mu.Unlock()
	return nil
}

// CreateReplDev creates a solo replicated device. Settles inline since the
// single-node implementation has no quorum to await.
func (e *Engine) CreateReplDev(ctx context.Context, groupID uuid.UUID, members []uuid.UUID) *engine.Deferred[engine.ReplDev] {
	if len(members) > 0 {
		return engine.Settled[engine.ReplDev](nil,
			volerrors.NewConfigurationError("solo engine does not accept peer members"))
	}

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return engine.Settled[engine.ReplDev](nil, volerrors.NewShuttingDownError("create repl dev"))
	}
	if _, exists := e.devs[groupID]; exists {
		e.mu.Unlock()
		return engine.Settled[engine.ReplDev](nil, volerrors.NewAlreadyExistsError(groupID))
	}
	e.mu.Unlock()

	rec, err := e.meta.CreateRecord(RecordKindReplDev, groupID[:])
	if err != nil {
		return engine.Settled[engine.ReplDev](nil,
			volerrors.NewResourceUnavailableError(groupID, "create", err))
	}

	dev := &replDev{
		groupID:  groupID,
		listener: e.app.CreateReplDevListener(groupID),
		rec:      rec,
	}

	e.mu.Lock()
	e.devs[groupID] = dev
	e.mu.Unlock()

	return engine.Settled[engine.ReplDev](dev, nil)
}

// GetReplDev looks up an existing device.
func (e *Engine) GetReplDev(groupID uuid.UUID) (engine.ReplDev, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	dev, ok := e.devs[groupID]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", groupID, ErrReplDevNotFound)
	}
	return dev, nil
}

// RemoveReplDev removes the device, notifies its listener, and releases the
// group's chunks.
func (e *Engine) RemoveReplDev(ctx context.Context, groupID uuid.UUID) *engine.Deferred[struct{}] {
	e.mu.Lock()
	dev, ok := e.devs[groupID]
	if ok {
		delete(e.devs, groupID)
	}
	e.mu.Unlock()

	if !ok {
		// Already removed. Removal is idempotent so resumed destruction
		// converges.
		return engine.Settled(struct{}{}, nil)
	}

	if err := dev.rec.Destroy(); err != nil {
		return engine.Settled(struct{}{},
			volerrors.NewResourceUnavailableError(groupID, "remove", err))
	}
	e.chunks.releaseGroup(groupID)
	dev.listener.OnDestroy()
	return engine.Settled(struct{}{}, nil)
}

// Stats reports engine-wide capacity from the formatted replication region.
func (e *Engine) Stats() engine.CapStats {
	return engine.CapStats{
		TotalCapacity: e.chunks.total * e.cfg.ChunkSize,
		UsedCapacity:  e.chunks.used() * e.cfg.ChunkSize,
	}
}

// AddIndexTable persists and registers an index table.
func (e *Engine) AddIndexTable(tbl engine.IndexTable) error {
	payload := make([]byte, 32)
	id := tbl.ID()
	parent := tbl.ParentID()
	copy(payload[:16], id[:])
	copy(payload[16:], parent[:])

	rec, err := e.meta.CreateRecord(RecordKindIndex, payload)
	if err != nil {
		return fmt.Errorf("failed to persist index table %s: %w", id, err)
	}

	e.mu.Lock()
	e.indexes[id] = indexEntry{tbl: tbl, rec: rec}
	e.mu.Unlock()
	return nil
}

// RemoveIndexTable destroys the table's persistent state and drops the
// registration. Idempotent.
func (e *Engine) RemoveIndexTable(tbl engine.IndexTable) error {
	id := tbl.ID()

	e.mu.Lock()
	entry, ok := e.indexes[id]
	if ok {
		delete(e.indexes, id)
	}
	e.mu.Unlock()

	if !ok {
		return nil
	}
	if err := entry.rec.Destroy(); err != nil {
		return fmt.Errorf("failed to erase index table %s: %w", id, err)
	}
	return entry.tbl.Destroy()
}

var (
	_ engine.ReplService  = (*Engine)(nil)
	_ engine.IndexService = (*Engine)(nil)
)
