package solo

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/dittoblock/internal/logger"
	volerrors "github.com/marmos91/dittoblock/pkg/volume/errors"
)

var (
	// ErrNoOrdinal means the selector has no ordinal mapping for the group.
	ErrNoOrdinal = errors.New("no ordinal mapped for replication group")
	// ErrRegionFull means the replication region has no free chunks left.
	ErrRegionFull = errors.New("replication region exhausted")
	// ErrAssignmentNotPersisted means the selector could not record the
	// assignment durably, so the chunks must not be claimed.
	ErrAssignmentNotPersisted = errors.New("chunk assignment was not persisted")
)

// chunkAllocator tracks which replication-region chunks are assigned to
// which group. Assignments are not persisted here; ownership is durable in
// each volume's superblock and reclaimed through ReclaimChunks on recovery.
type chunkAllocator struct {
	mu    sync.Mutex
	total uint64
	taken map[uint32]uuid.UUID
	byGrp map[uuid.UUID][]uint32
	next  uint32
}

func newChunkAllocator(total uint64) *chunkAllocator {
	return &chunkAllocator{
		total: total,
		taken: make(map[uint32]uuid.UUID),
		byGrp: make(map[uuid.UUID][]uint32),
	}
}

func (a *chunkAllocator) used() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return uint64(len(a.taken))
}

// propose returns up to n free chunk ids without claiming them.
func (a *chunkAllocator) propose(n int) []uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.total == 0 {
		return nil
	}
	out := make([]uint32, 0, n)
	scanned := uint64(0)
	for id := a.next; scanned < a.total && len(out) < n; scanned++ {
		if _, busy := a.taken[id]; !busy {
			out = append(out, id)
		}
		id = (id + 1) % uint32(a.total)
	}
	return out
}

// claim marks the given chunks as owned by the group. Chunks already owned
// by another group are a conflict.
func (a *chunkAllocator) claim(groupID uuid.UUID, ids []uint32) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, id := range ids {
		if owner, busy := a.taken[id]; busy && owner != groupID {
			return false
		}
	}
	for _, id := range ids {
		if _, busy := a.taken[id]; !busy {
			a.taken[id] = groupID
			a.byGrp[groupID] = append(a.byGrp[groupID], id)
		}
		if a.total > 0 && id >= a.next {
			a.next = (id + 1) % uint32(a.total)
		}
	}
	return true
}

func (a *chunkAllocator) releaseGroup(groupID uuid.UUID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, id := range a.byGrp[groupID] {
		delete(a.taken, id)
	}
	delete(a.byGrp, groupID)
}

// AllocChunks assigns additional chunks to a group's replicated device. The
// engine proposes free candidates; the selector finalizes the assignment and
// reports it upward for durable ownership before the chunks are claimed.
func (e *Engine) AllocChunks(groupID uuid.UUID, count int) ([]uint32, error) {
	e.mu.RLock()
	sel := e.selector
	_, exists := e.devs[groupID]
	e.mu.RUnlock()

	if !exists {
		return nil, volerrors.NewResourceUnavailableError(groupID, "alloc chunks", ErrReplDevNotFound)
	}
	if sel == nil {
		return nil, volerrors.NewConfigurationError("no chunk selector attached")
	}

	ordinal, ok := sel.OrdinalOf(groupID)
	if !ok {
		return nil, volerrors.NewResourceUnavailableError(groupID, "alloc chunks", ErrNoOrdinal)
	}

	candidates := e.chunks.propose(count)
	if len(candidates) < count {
		return nil, volerrors.NewResourceUnavailableError(groupID, "alloc chunks", ErrRegionFull)
	}

	accepted := sel.SelectChunks(ordinal, candidates)
	if len(accepted) < count {
		return nil, volerrors.NewResourceUnavailableError(groupID, "alloc chunks", ErrAssignmentNotPersisted)
	}
	if !e.chunks.claim(groupID, accepted) {
		return nil, volerrors.NewInvariantViolationError(groupID, "chunk already owned by another volume")
	}

	logger.Debug("Allocated chunks",
		logger.KeyGroup, groupID.String(),
		logger.KeyOrdinal, ordinal,
		logger.KeyChunks, len(accepted))
	return accepted, nil
}

// ReclaimChunks restores durable chunk ownership during recovery, after the
// owning volume's superblock has been read back.
func (e *Engine) ReclaimChunks(groupID uuid.UUID, ids []uint32) error {
	if len(ids) == 0 {
		return nil
	}
	if !e.chunks.claim(groupID, ids) {
		return volerrors.NewInvariantViolationError(groupID, "recovered chunk owned by another volume")
	}
	return nil
}
