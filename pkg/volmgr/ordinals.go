package volmgr

import (
	"sync"

	volerrors "github.com/marmos91/dittoblock/pkg/volume/errors"
)

// MaxOrdinals bounds the number of volumes a service instance can host.
const MaxOrdinals = 2048

// ordinalReserver hands out volume ordinals from a fixed bitmap pool.
// Ordinals are reserved at create, re-reserved during recovery, and
// released only when the reaper finalizes the volume.
type ordinalReserver struct {
	mu   sync.Mutex
	bits [MaxOrdinals / 64]uint64
	next uint32
}

// Reserve claims the lowest free ordinal starting from the rotation point.
func (o *ordinalReserver) Reserve() (uint32, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for scanned := uint32(0); scanned < MaxOrdinals; scanned++ {
		ord := (o.next + scanned) % MaxOrdinals
		if o.bits[ord/64]&(1<<(ord%64)) == 0 {
			o.bits[ord/64] |= 1 << (ord % 64)
			o.next = (ord + 1) % MaxOrdinals
			return ord, nil
		}
	}
	return 0, volerrors.NewConfigurationError("ordinal pool exhausted")
}

// ReserveExact claims a specific ordinal during recovery. Returns false if
// it is already taken.
func (o *ordinalReserver) ReserveExact(ord uint32) bool {
	if ord >= MaxOrdinals {
		return false
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.bits[ord/64]&(1<<(ord%64)) != 0 {
		return false
	}
	o.bits[ord/64] |= 1 << (ord % 64)
	return true
}

// Release frees an ordinal.
func (o *ordinalReserver) Release(ord uint32) {
	if ord >= MaxOrdinals {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.bits[ord/64] &^= 1 << (ord % 64)
}
