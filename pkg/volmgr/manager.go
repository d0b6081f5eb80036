// Package volmgr implements the volume-management service controller: the
// registry, volume lifecycle operations, the reaper, the shutdown watchdog
// and the chunk-selection persistence callback. One Manager exists per
// process; it is constructed at startup and torn down through Shutdown.
package volmgr

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/marmos91/dittoblock/internal/logger"
	"github.com/marmos91/dittoblock/pkg/engine"
	"github.com/marmos91/dittoblock/pkg/metrics"
	"github.com/marmos91/dittoblock/pkg/superblock"
	"github.com/marmos91/dittoblock/pkg/volume"
	volerrors "github.com/marmos91/dittoblock/pkg/volume/errors"
)

// ServiceRecordKind is the metadata record kind of the service superblock.
const ServiceRecordKind = "service"

// Engine is the storage engine surface the manager drives. The solo engine
// satisfies it; a clustered engine would too.
type Engine interface {
	engine.ReplService
	engine.IndexService

	// Start replays persisted engine state and fires the application's
	// init-completed callback.
	Start(callbacks engine.IndexServiceCallbacks, selector engine.ChunkSelector) error

	// Stop quiesces the engine. Called by the shutdown watchdog before
	// the I/O subsystem goes down.
	Stop()

	// ReclaimChunks restores durable chunk ownership during recovery.
	ReclaimChunks(groupID uuid.UUID, ids []uint32) error
}

// Config tunes the manager's background loops.
type Config struct {
	ReaperInterval   time.Duration
	WatchdogInterval time.Duration
	ExecutorMode     ExecMode
}

// DefaultConfig returns the production loop intervals.
func DefaultConfig() Config {
	return Config{
		ReaperInterval:   60 * time.Second,
		WatchdogInterval: 1 * time.Second,
		ExecutorMode:     ExecIO,
	}
}

// ServiceStats is the service-wide capacity and inventory snapshot.
type ServiceStats struct {
	ServiceID     uuid.UUID `json:"service_id"`
	BootCount     uint64    `json:"boot_count"`
	TotalCapacity uint64    `json:"total_capacity"`
	UsedCapacity  uint64    `json:"used_capacity"`
	Volumes       int       `json:"volumes"`
}

// Manager is the service controller singleton.
type Manager struct {
	cfg      Config
	eng      Engine
	meta     engine.MetaService
	registry *Registry
	ordinals ordinalReserver
	exec     *Executor
	vm       metrics.VolumeMetrics

	sbMu  sync.Mutex
	sb    *superblock.ServiceSB
	sbRec engine.Record

	// pendingTables holds index tables recovered before their owning
	// volumes, keyed by parent volume id.
	pendingMu     sync.Mutex
	pendingTables map[uuid.UUID][]engine.IndexTable

	// creating guards against duplicate concurrent creates for ids not
	// yet visible in the registry.
	creatingMu sync.Mutex
	creating   map[uuid.UUID]struct{}

	svcOutstanding atomic.Int64
	shutdownReq    atomic.Bool
	started        atomic.Bool

	recoveryErr error

	stopOnce     sync.Once
	stopCh       chan struct{}
	loopsWg      sync.WaitGroup
	shutdownDone chan struct{}
}

// shutdownCrashSim, when set, lets the watchdog ignore volumes stuck in the
// destroying state, simulating a crash that leaks them. Test-only.
var shutdownCrashSim atomic.Bool

// SetShutdownCrashSimulation toggles the watchdog's crash-simulation mode.
func SetShutdownCrashSimulation(on bool) { shutdownCrashSim.Store(on) }

// New builds the manager. vm may be nil to disable metrics.
func New(cfg Config, eng Engine, meta engine.MetaService, vm metrics.VolumeMetrics) *Manager {
	if cfg.ReaperInterval <= 0 {
		cfg.ReaperInterval = DefaultConfig().ReaperInterval
	}
	if cfg.WatchdogInterval <= 0 {
		cfg.WatchdogInterval = DefaultConfig().WatchdogInterval
	}
	if vm == nil {
		vm = metrics.NoopVolumeMetrics()
	}
	return &Manager{
		cfg:           cfg,
		eng:           eng,
		meta:          meta,
		registry:      NewRegistry(),
		exec:          NewExecutor(cfg.ExecutorMode),
		vm:            vm,
		pendingTables: make(map[uuid.UUID][]engine.IndexTable),
		creating:      make(map[uuid.UUID]struct{}),
		stopCh:        make(chan struct{}),
		shutdownDone:  make(chan struct{}),
	}
}

// BindEngine attaches the engine after construction. The manager is the
// engine's ReplApplication, so the two are built in sequence: manager
// first, engine second (with the manager as its application), then bind.
func (m *Manager) BindEngine(eng Engine) { m.eng = eng }

// services bundles the engine surfaces for volume operations.
func (m *Manager) services() volume.Services {
	return volume.Services{Repl: m.eng, Index: m.eng, Meta: m.meta}
}

// Start loads or initializes the service superblock, drives engine recovery
// and starts the reaper and shutdown watchdog loops.
func (m *Manager) Start(ctx context.Context) error {
	if m.eng == nil {
		return volerrors.NewConfigurationError("no engine bound")
	}

	m.meta.RegisterHandler(ServiceRecordKind, m.onServiceSBFound, true)
	m.meta.RegisterHandler(volume.RecordKind, m.onVolumeSBFound, true)

	if err := m.meta.ReadSubSB(ServiceRecordKind); err != nil {
		return fmt.Errorf("service superblock recovery failed: %w", err)
	}
	if err := m.loadOrInitServiceSB(); err != nil {
		return err
	}

	// Engine recovery fires OnReplDevsInitCompleted, which reads the
	// volume superblocks back into the registry.
	if err := m.eng.Start(m, m); err != nil {
		return err
	}
	if m.recoveryErr != nil {
		return m.recoveryErr
	}

	m.resumeInterruptedDestructions(ctx)

	m.loopsWg.Add(2)
	go m.reaperLoop()
	go m.watchdogLoop()

	m.started.Store(true)
	logger.Info("Volume manager started",
		"service_id", m.serviceSB().ServiceID.String(),
		logger.KeyBootCount, m.serviceSB().BootCount,
		"volumes", m.registry.Len())
	return nil
}

// onServiceSBFound is the recovery handler for the service superblock.
func (m *Manager) onServiceSBFound(payload []byte, rec engine.Record) error {
	sb, err := superblock.DecodeServiceSB(payload)
	if err != nil {
		return volerrors.NewConsistencyError(ServiceRecordKind, err)
	}

	m.sbMu.Lock()
	defer m.sbMu.Unlock()
	if m.sb != nil {
		return volerrors.NewConsistencyError(ServiceRecordKind,
			errors.New("duplicate service superblock"))
	}
	m.sb = sb
	m.sbRec = rec
	return nil
}

// loadOrInitServiceSB finishes service identity setup: first boot creates a
// fresh superblock; recovery bumps the boot counter and clears the
// graceful-shutdown flag so a crash before the next clean shutdown is
// detectable.
func (m *Manager) loadOrInitServiceSB() error {
	m.sbMu.Lock()
	defer m.sbMu.Unlock()

	if m.sb == nil {
		m.sb = &superblock.ServiceSB{BootCount: 1, ServiceID: uuid.New()}
		rec, err := m.meta.CreateRecord(ServiceRecordKind, m.sb.Encode())
		if err != nil {
			return fmt.Errorf("failed to persist service superblock: %w", err)
		}
		m.sbRec = rec
		logger.Info("Service initialized", "service_id", m.sb.ServiceID.String())
		return nil
	}

	graceful := m.sb.TestFlag(superblock.FlagGracefulShutdown)
	m.sb.ClearFlag(superblock.FlagGracefulShutdown)
	m.sb.BootCount++
	if err := m.sbRec.Write(m.sb.Encode()); err != nil {
		return fmt.Errorf("failed to update service superblock: %w", err)
	}

	if graceful {
		logger.Info("Service recovered after clean shutdown",
			"service_id", m.sb.ServiceID.String(),
			logger.KeyBootCount, m.sb.BootCount)
	} else {
		logger.Warn("Service recovered after unclean shutdown",
			"service_id", m.sb.ServiceID.String(),
			logger.KeyBootCount, m.sb.BootCount)
	}
	return nil
}

func (m *Manager) serviceSB() *superblock.ServiceSB {
	m.sbMu.Lock()
	defer m.sbMu.Unlock()
	return m.sb
}

// ReplImplType implements engine.ReplApplication.
func (m *Manager) ReplImplType() engine.ReplImplType { return engine.ReplImplSolo }

// NeedTimelineConsistency implements engine.ReplApplication. Each volume
// has a single writer, so cross-group timeline consistency is unnecessary.
func (m *Manager) NeedTimelineConsistency() bool { return false }

// ReplicaID implements engine.ReplApplication.
func (m *Manager) ReplicaID() uuid.UUID { return m.serviceSB().ServiceID }

// CreateReplDevListener implements engine.ReplApplication.
func (m *Manager) CreateReplDevListener(groupID uuid.UUID) engine.ReplListener {
	return &replListener{groupID: groupID}
}

// OnReplDevsInitCompleted implements engine.ReplApplication: once every
// replicated device has finished recovery it is safe to read the volume
// superblocks back.
func (m *Manager) OnReplDevsInitCompleted() {
	if err := m.meta.ReadSubSB(volume.RecordKind); err != nil {
		m.recoveryErr = fmt.Errorf("volume recovery failed: %w", err)
		return
	}
	m.attachPendingTables()
}

// onVolumeSBFound rebuilds one volume from its persisted superblock.
func (m *Manager) onVolumeSBFound(payload []byte, rec engine.Record) error {
	v, err := volume.Recover(payload, rec, m.services())
	if err != nil {
		return err
	}

	if !m.ordinals.ReserveExact(v.Ordinal()) {
		return volerrors.NewInvariantViolationError(v.ID(),
			fmt.Sprintf("ordinal %d already reserved", v.Ordinal()))
	}
	if err := m.eng.ReclaimChunks(v.ID(), v.ChunkIDs()); err != nil {
		return err
	}
	if !m.registry.Insert(v) {
		return volerrors.NewInvariantViolationError(v.ID(), "duplicate volume superblock")
	}

	m.vm.RecordRecovered()
	return nil
}

// OnIndexTableFound implements engine.IndexServiceCallbacks. Index tables
// replay before volume superblocks, so recovered tables are parked until
// their owners exist.
func (m *Manager) OnIndexTableFound(tableID, parentID uuid.UUID) (engine.IndexTable, error) {
	tbl := volume.NewIndexTable(tableID, parentID)
	m.pendingMu.Lock()
	m.pendingTables[parentID] = append(m.pendingTables[parentID], tbl)
	m.pendingMu.Unlock()
	return tbl, nil
}

// attachPendingTables hands recovered index tables to their owner volumes.
// Tables whose owner is gone are orphans from a crash mid-destruction and
// are dropped from the index service.
func (m *Manager) attachPendingTables() {
	m.pendingMu.Lock()
	pending := m.pendingTables
	m.pendingTables = make(map[uuid.UUID][]engine.IndexTable)
	m.pendingMu.Unlock()

	for parentID, tables := range pending {
		v := m.registry.Lookup(parentID)
		for _, tbl := range tables {
			if v != nil {
				v.AttachIndexTable(tbl)
				continue
			}
			logger.Warn("Dropping orphaned index table",
				logger.VolumeID(parentID), "table_id", tbl.ID().String())
			if err := m.eng.RemoveIndexTable(tbl); err != nil {
				logger.Error("Failed to drop orphaned index table",
					logger.VolumeID(parentID), logger.Err(err))
			}
		}
	}
}

// resumeInterruptedDestructions re-runs destruction for volumes recovered
// in the destroying state. The reaper finalizes them once they converge.
func (m *Manager) resumeInterruptedDestructions(ctx context.Context) {
	for _, v := range m.registry.Snapshot() {
		if !v.IsDestroying() {
			continue
		}
		vol := v
		m.exec.Submit(func() {
			if err := vol.Destroy(ctx); err != nil && !errors.Is(err, volume.ErrDestroyAborted) {
				logger.Error("Resumed destruction failed",
					logger.VolumeID(vol.ID()), logger.Err(err))
			}
		})
	}
}

// OrdinalOf implements engine.ChunkSelector.
func (m *Manager) OrdinalOf(groupID uuid.UUID) (uint32, bool) {
	v := m.registry.Lookup(groupID)
	if v == nil {
		return 0, false
	}
	return v.Ordinal(), true
}

// SelectChunks implements engine.ChunkSelector: accept the engine's
// candidates, but persist the assignment into the owner's superblock before
// the engine claims them, so ownership survives a crash. Runs outside the
// registry lock.
func (m *Manager) SelectChunks(ordinal uint32, candidates []uint32) []uint32 {
	var owner *volume.Volume
	for _, v := range m.registry.Snapshot() {
		if v.Ordinal() == ordinal {
			owner = v
			break
		}
	}
	if owner == nil {
		logger.Warn("Chunk selection for unknown ordinal", logger.Ordinal(ordinal))
		return nil
	}

	if err := owner.PersistChunks(candidates); err != nil {
		logger.Error("Failed to persist chunk assignment",
			logger.VolumeID(owner.ID()), logger.Err(err))
		return nil
	}
	return candidates
}

// CreateVolume creates and registers a volume. All-or-nothing: any failure
// leaves no persisted trace and no registry entry.
func (m *Manager) CreateVolume(ctx context.Context, info volume.VolumeInfo) (*volume.Volume, error) {
	if m.shutdownReq.Load() {
		return nil, volerrors.NewShuttingDownError("create volume")
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}

	m.creatingMu.Lock()
	if _, busy := m.creating[info.ID]; busy {
		m.creatingMu.Unlock()
		return nil, volerrors.NewAlreadyExistsError(info.ID)
	}
	if m.registry.Lookup(info.ID) != nil {
		m.creatingMu.Unlock()
		return nil, volerrors.NewAlreadyExistsError(info.ID)
	}
	m.creating[info.ID] = struct{}{}
	m.creatingMu.Unlock()

	defer func() {
		m.creatingMu.Lock()
		delete(m.creating, info.ID)
		m.creatingMu.Unlock()
	}()

	ordinal, err := m.ordinals.Reserve()
	if err != nil {
		m.vm.RecordCreateFailed()
		return nil, err
	}

	start := time.Now()
	v, err := volume.Create(ctx, info, ordinal, m.services())
	if err != nil {
		m.ordinals.Release(ordinal)
		m.vm.RecordCreateFailed()
		return nil, err
	}

	if !m.registry.Insert(v) {
		// Lost a race that the creating map should have prevented;
		// unwind as if creation failed.
		if derr := v.Destroy(ctx); derr != nil {
			logger.Error("Failed to unwind duplicate volume", logger.VolumeID(info.ID), logger.Err(derr))
		}
		m.ordinals.Release(ordinal)
		m.vm.RecordCreateFailed()
		return nil, volerrors.NewAlreadyExistsError(info.ID)
	}

	m.vm.RecordCreate()
	m.vm.RecordLifecycleDuration("create", time.Since(start))
	m.updateGauges()
	return v, nil
}

// RemoveVolume starts volume destruction. When the volume is idle the full
// teardown and finalization run inline, so the volume is gone on return;
// otherwise the destroying state is persisted and an InvariantViolation
// tells the caller the reaper will finish the job once the volume drains.
func (m *Manager) RemoveVolume(ctx context.Context, id uuid.UUID) error {
	if m.shutdownReq.Load() {
		return volerrors.NewShuttingDownError("remove volume")
	}

	v := m.registry.Lookup(id)
	if v == nil {
		return volerrors.NewNotFoundError(id)
	}

	if err := v.MarkDestroying(); err != nil {
		return err
	}
	m.vm.RecordDestroyStarted()
	m.updateGauges()

	if v.Outstanding() > 0 || v.Refs() > 0 {
		return volerrors.NewInvariantViolationError(id,
			"volume still referenced or serving requests, reaper will finalize")
	}

	start := time.Now()
	if err := v.Destroy(ctx); err != nil {
		return err
	}
	if m.registry.Erase(v.ID()) {
		m.ordinals.Release(v.Ordinal())
	}
	m.vm.RecordLifecycleDuration("destroy", time.Since(start))
	m.updateGauges()
	return nil
}

// LookupVolume returns the volume for the id. Destroying volumes are still
// resolvable until the reaper finalizes them.
func (m *Manager) LookupVolume(id uuid.UUID) (*volume.Volume, error) {
	v := m.registry.Lookup(id)
	if v == nil {
		return nil, volerrors.NewNotFoundError(id)
	}
	return v, nil
}

// GetVolumeStats snapshots one volume.
func (m *Manager) GetVolumeStats(id uuid.UUID) (volume.Stats, error) {
	v, err := m.LookupVolume(id)
	if err != nil {
		return volume.Stats{}, err
	}
	return v.Stats(), nil
}

// ListVolumeIDs returns the ids of all registered volumes.
func (m *Manager) ListVolumeIDs() []uuid.UUID { return m.registry.IDs() }

// ListVolumeStats snapshots every registered volume.
func (m *Manager) ListVolumeStats() []volume.Stats {
	vols := m.registry.Snapshot()
	out := make([]volume.Stats, 0, len(vols))
	for _, v := range vols {
		out = append(out, v.Stats())
	}
	return out
}

// Stats returns the service-wide snapshot.
func (m *Manager) Stats() ServiceStats {
	sb := m.serviceSB()
	cs := m.eng.Stats()
	m.vm.SetCapacity(cs.TotalCapacity, cs.UsedCapacity)
	return ServiceStats{
		ServiceID:     sb.ServiceID,
		BootCount:     sb.BootCount,
		TotalCapacity: cs.TotalCapacity,
		UsedCapacity:  cs.UsedCapacity,
		Volumes:       m.registry.Len(),
	}
}

// BeginServiceRequest counts a service-wide in-flight request. Rejected
// once shutdown is requested.
func (m *Manager) BeginServiceRequest() error {
	if m.shutdownReq.Load() {
		return volerrors.NewShuttingDownError("request")
	}
	m.svcOutstanding.Add(1)
	return nil
}

// EndServiceRequest releases a service-wide in-flight request.
func (m *Manager) EndServiceRequest() { m.svcOutstanding.Add(-1) }

// updateGauges refreshes the per-state volume gauges.
func (m *Manager) updateGauges() {
	var online, destroying int
	for _, v := range m.registry.Snapshot() {
		if v.IsDestroying() {
			destroying++
		} else {
			online++
		}
	}
	m.vm.SetVolumeCounts(online, destroying)
}

func (m *Manager) reaperLoop() {
	defer m.loopsWg.Done()
	ticker := time.NewTicker(m.cfg.ReaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.ReapOnce(context.Background())
		}
	}
}

// ReapOnce runs one reaper pass: snapshot under the read lock, collect
// candidates, then finalize each outside the lock. A volume is finalized
// only when it is destroying with zero outstanding requests and zero
// references at scan time.
func (m *Manager) ReapOnce(ctx context.Context) int {
	var candidates []*volume.Volume
	for _, v := range m.registry.Snapshot() {
		if v.IsDestroying() && v.Outstanding() == 0 && v.Refs() == 0 {
			candidates = append(candidates, v)
		}
	}

	reaped := 0
	for _, v := range candidates {
		start := time.Now()
		if err := v.Destroy(ctx); err != nil {
			if !errors.Is(err, volume.ErrDestroyAborted) {
				logger.Error("Reaper destruction failed", logger.VolumeID(v.ID()), logger.Err(err))
			}
			continue
		}
		if m.registry.Erase(v.ID()) {
			m.ordinals.Release(v.Ordinal())
			m.vm.RecordReaped()
			m.vm.RecordLifecycleDuration("finalize", time.Since(start))
			reaped++
			logger.Info("Volume finalized", logger.VolumeID(v.ID()))
		}
	}

	if reaped > 0 {
		m.updateGauges()
	}
	return reaped
}

func (m *Manager) watchdogLoop() {
	defer m.loopsWg.Done()
	ticker := time.NewTicker(m.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			if m.tryCompleteShutdown() {
				return
			}
		}
	}
}

// canShutdown reports whether the drain has completed: no service-wide
// in-flight requests, no volume serving requests, and no volume still mid
// destruction unless crash simulation leaks them on purpose.
func (m *Manager) canShutdown() bool {
	if !m.started.Load() || !m.shutdownReq.Load() {
		return false
	}
	if m.svcOutstanding.Load() != 0 {
		return false
	}
	crashSim := shutdownCrashSim.Load()
	for _, v := range m.registry.Snapshot() {
		if v.Outstanding() != 0 {
			return false
		}
		if v.IsDestroying() && !crashSim {
			return false
		}
	}
	return true
}

// tryCompleteShutdown persists the graceful-shutdown flag and stops the
// engine once the drain conditions hold. Returns true when shutdown
// completed and the watchdog should exit.
func (m *Manager) tryCompleteShutdown() bool {
	if !m.canShutdown() {
		return false
	}

	m.sbMu.Lock()
	m.sb.SetFlag(superblock.FlagGracefulShutdown)
	err := m.sbRec.Write(m.sb.Encode())
	m.sbMu.Unlock()
	if err != nil {
		logger.Error("Failed to persist graceful-shutdown flag", logger.Err(err))
		return false
	}

	// Ordering matters: the engine stops before the I/O subsystem the
	// caller tears down after Shutdown returns.
	m.eng.Stop()
	m.exec.Close()
	close(m.shutdownDone)
	logger.Info("Shutdown complete", logger.KeyBootCount, m.serviceSB().BootCount)
	return true
}

// Shutdown requests a graceful shutdown and blocks until the watchdog
// completes the drain or the context expires.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.shutdownReq.Store(true)
	logger.Info("Shutdown requested",
		logger.KeyOutstanding, m.svcOutstanding.Load(),
		"volumes", m.registry.Len())

	select {
	case <-m.shutdownDone:
	case <-ctx.Done():
		return fmt.Errorf("shutdown drain interrupted: %w", ctx.Err())
	}

	m.stopOnce.Do(func() { close(m.stopCh) })
	m.loopsWg.Wait()
	return nil
}

// replListener receives commit and destroy notifications for one
// replication group. The solo control plane does not act on commits.
type replListener struct {
	groupID uuid.UUID
}

func (l *replListener) OnCommit(lsn uint64) {}

func (l *replListener) OnDestroy() {
	logger.Debug("Replication group destroyed", logger.KeyGroup, l.groupID.String())
}

var (
	_ engine.ReplApplication       = (*Manager)(nil)
	_ engine.IndexServiceCallbacks = (*Manager)(nil)
	_ engine.ChunkSelector         = (*Manager)(nil)
)
