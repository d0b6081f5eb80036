// Package engine defines the contracts of the storage/replication engine the
// volume control plane is layered on: metadata-block persistence, replicated
// devices, index tables, and device classification. The control plane consumes
// these as services; pkg/engine/meta and pkg/engine/solo provide the
// single-node implementations.
package engine

import (
	"context"

	"github.com/google/uuid"
)

// ReplImplType selects the replication implementation.
type ReplImplType int

const (
	// ReplImplSolo is single-node replication: one member, no peers.
	ReplImplSolo ReplImplType = iota
	// ReplImplServer is server-side consensus replication. Not provided by
	// this repository; listed for wire compatibility with multi-node engines.
	ReplImplServer
)

// ReplDev is a per-volume replicated log/data device.
type ReplDev interface {
	// GroupID returns the replication group identity, which equals the
	// owning volume's identity.
	GroupID() uuid.UUID
}

// ReplListener receives apply/commit notifications for one replication
// group. One listener instance exists per group, constructed on demand
// through ReplApplication.CreateReplDevListener.
type ReplListener interface {
	// OnCommit is invoked after an entry is durable in the group's log.
	OnCommit(lsn uint64)
	// OnDestroy is invoked when the group's device is removed.
	OnDestroy()
}

// ReplApplication is the adapter the owning application hands to the engine
// at startup.
type ReplApplication interface {
	// ReplImplType selects the replication implementation.
	ReplImplType() ReplImplType

	// NeedTimelineConsistency reports whether the application requires
	// timeline consistency across groups. False under the
	// single-writer-per-volume model.
	NeedTimelineConsistency() bool

	// CreateReplDevListener instantiates the listener for a replication
	// group. Called by the engine once per group on create and recovery.
	CreateReplDevListener(groupID uuid.UUID) ReplListener

	// OnReplDevsInitCompleted is invoked once all replicated devices have
	// finished engine-driven recovery. Volume records must not be read
	// before this point.
	OnReplDevsInitCompleted()

	// ReplicaID returns this node's service identity.
	ReplicaID() uuid.UUID
}

// CapStats is engine-wide capacity accounting.
type CapStats struct {
	TotalCapacity uint64
	UsedCapacity  uint64
}

// ReplService manages replicated devices. Create and Remove are deferred:
// they settle asynchronously and the caller blocks on the Deferred only
// where lifecycle ordering demands a synchronous result.
type ReplService interface {
	// CreateReplDev creates a replicated device for the given group with
	// the given initial membership. An empty member set means solo mode.
	CreateReplDev(ctx context.Context, groupID uuid.UUID, members []uuid.UUID) *Deferred[ReplDev]

	// GetReplDev looks up an existing device. A lookup failure during
	// recovery means the device was already removed.
	GetReplDev(groupID uuid.UUID) (ReplDev, error)

	// RemoveReplDev removes the device and its listener.
	RemoveReplDev(ctx context.Context, groupID uuid.UUID) *Deferred[struct{}]

	// Stats returns engine-wide capacity accounting.
	Stats() CapStats
}

// Record is a handle to one persisted metadata block. The handle stays
// valid across Write calls; Destroy erases the block.
type Record interface {
	Kind() string
	Write(payload []byte) error
	Destroy() error
}

// RecordFoundFunc is invoked once per persisted record of a kind during the
// recovery scan. The handle may be retained for later Write/Destroy.
type RecordFoundFunc func(payload []byte, rec Record) error

// MetaService is the metadata-block persistence service.
type MetaService interface {
	// RegisterHandler registers the recovery callback for a record kind.
	// When doChecksum is set, payloads are verified against the stored
	// checksum before the callback runs; a mismatch is fatal for that
	// record.
	RegisterHandler(kind string, onFound RecordFoundFunc, doChecksum bool)

	// ReadSubSB scans all persisted records of a kind and invokes its
	// registered handler for each, in persistence order.
	ReadSubSB(kind string) error

	// CreateRecord persists a new record of a kind and returns its handle.
	CreateRecord(kind string, payload []byte) (Record, error)
}

// IndexTable is a per-volume index structure handle.
type IndexTable interface {
	// ID returns the table's own identity.
	ID() uuid.UUID
	// ParentID returns the owning volume's identity, used to re-attach
	// tables to volumes during recovery.
	ParentID() uuid.UUID
	// Destroy releases the table's persistent state.
	Destroy() error
}

// IndexServiceCallbacks is supplied by the application at engine start.
type IndexServiceCallbacks interface {
	// OnIndexTableFound is the recovery callback: given a persisted table
	// superblock it reconstructs the table handle, or returns nil to skip.
	OnIndexTableFound(tableID, parentID uuid.UUID) (IndexTable, error)
}

// IndexService manages per-volume index tables.
type IndexService interface {
	AddIndexTable(tbl IndexTable) error
	RemoveIndexTable(tbl IndexTable) error
}

// ChunkSelector is the policy boundary between engine-chosen chunk
// allocation and volume-level durability. The engine consults it when a
// volume's replicated device needs additional physical chunks; the
// selector does not choose chunks, it finalizes and reports assignments.
type ChunkSelector interface {
	// OrdinalOf maps a replication group to its owner volume's ordinal.
	OrdinalOf(groupID uuid.UUID) (uint32, bool)

	// SelectChunks finalizes an engine-proposed candidate set for the
	// ordinal and returns the accepted chunk ids.
	SelectChunks(ordinal uint32, candidates []uint32) []uint32
}
