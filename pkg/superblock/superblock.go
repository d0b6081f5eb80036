// Package superblock implements the fixed-layout, versioned binary records
// persisted through the metadata-block service: the service-level superblock
// and the per-volume superblock.
//
// Record layouts (little-endian):
//
//	Service superblock (40 bytes):
//	  - Magic: uint64 (8 bytes)
//	  - Version: uint32 (4 bytes)
//	  - Flags: uint32 (4 bytes) - bit0=graceful-shutdown, bit1=restricted
//	  - BootCount: uint64 (8 bytes)
//	  - ServiceID: UUID (16 bytes)
//
//	Volume superblock (144 bytes fixed prefix + chunk extension):
//	  - Magic: uint64 (8 bytes)
//	  - Version: uint32 (4 bytes)
//	  - NumStreams: uint32 (4 bytes)
//	  - PageSize: uint32 (4 bytes)
//	  - Size: uint64 (8 bytes)
//	  - ID: UUID (16 bytes)
//	  - Name: 100 bytes, NUL-terminated, truncated on overflow
//	  - Ordinal: uint32 (4 bytes)
//	  - State: uint32 (4 bytes) - 1=online, 2=destroying
//	  - ChunkCount: uint32 (4 bytes)
//	  - ChunkIDs: ChunkCount * uint32
//
// The extension follows the fixed prefix so that chunk assignments reported
// by the allocator and the destroying marker survive restarts. Checksumming
// is the metadata-block service's job; this package only encodes and decodes
// the raw record bytes.
package superblock

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Record magic numbers and versions. A decode whose magic or version does
// not match the expected constant for its record kind is a fatal
// consistency error for that record.
const (
	ServiceMagic   = uint64(0xCEEDDEEB)
	ServiceVersion = uint32(0x1)

	VolumeMagic   = uint64(0xC01FADEB)
	VolumeVersion = uint32(0x3)
)

// Service superblock flag bits.
const (
	// FlagGracefulShutdown is set by a clean shutdown and cleared on the
	// next load; absent on load means the previous run crashed.
	FlagGracefulShutdown = uint32(0x00000001)

	// FlagRestricted is reserved. It is never set or read; do not infer
	// behavior from it.
	FlagRestricted = uint32(0x00000002)
)

// On-disk lifecycle state values of the volume superblock extension.
// The transition is monotonic: a destroying volume never goes back online.
const (
	VolumeStateOnline     = uint32(0x1)
	VolumeStateDestroying = uint32(0x2)
)

// VolumeNameSize is the fixed capacity of the on-disk name field.
// Names longer than VolumeNameSize-1 bytes are truncated and
// NUL-terminated rather than rejected.
const VolumeNameSize = 100

const (
	serviceSBSize     = 40
	volumeSBFixedSize = 144
)

// Decode errors.
var (
	// ErrBadMagic is returned when a record's magic number does not match
	// the expected constant for its kind.
	ErrBadMagic = errors.New("superblock magic mismatch")

	// ErrBadVersion is returned when a record's version does not match
	// the expected constant for its kind.
	ErrBadVersion = errors.New("superblock version mismatch")

	// ErrShortBuffer is returned when a buffer is too small to hold the
	// record it claims to be.
	ErrShortBuffer = errors.New("superblock buffer too short")
)

// ServiceSB is the service-level superblock. ServiceID is immutable after
// first write; Flags and BootCount mutate across the service lifetime.
type ServiceSB struct {
	Flags     uint32
	BootCount uint64
	ServiceID uuid.UUID
}

// SetFlag sets the given flag bit.
func (sb *ServiceSB) SetFlag(bit uint32) { sb.Flags |= bit }

// ClearFlag clears the given flag bit.
func (sb *ServiceSB) ClearFlag(bit uint32) { sb.Flags &^= bit }

// TestFlag reports whether the given flag bit is set.
func (sb *ServiceSB) TestFlag(bit uint32) bool { return sb.Flags&bit != 0 }

// Encode serializes the service superblock.
func (sb *ServiceSB) Encode() []byte {
	buf := make([]byte, serviceSBSize)
	binary.LittleEndian.PutUint64(buf[0:], ServiceMagic)
	binary.LittleEndian.PutUint32(buf[8:], ServiceVersion)
	binary.LittleEndian.PutUint32(buf[12:], sb.Flags)
	binary.LittleEndian.PutUint64(buf[16:], sb.BootCount)
	copy(buf[24:40], sb.ServiceID[:])
	return buf
}

// DecodeServiceSB parses a service superblock, rejecting buffers whose
// magic or version does not match.
func DecodeServiceSB(buf []byte) (*ServiceSB, error) {
	if len(buf) < serviceSBSize {
		return nil, fmt.Errorf("service superblock: %d bytes: %w", len(buf), ErrShortBuffer)
	}
	if magic := binary.LittleEndian.Uint64(buf[0:]); magic != ServiceMagic {
		return nil, fmt.Errorf("service superblock: got 0x%X want 0x%X: %w", magic, ServiceMagic, ErrBadMagic)
	}
	if ver := binary.LittleEndian.Uint32(buf[8:]); ver != ServiceVersion {
		return nil, fmt.Errorf("service superblock: got %d want %d: %w", ver, ServiceVersion, ErrBadVersion)
	}

	sb := &ServiceSB{
		Flags:     binary.LittleEndian.Uint32(buf[12:]),
		BootCount: binary.LittleEndian.Uint64(buf[16:]),
	}
	copy(sb.ServiceID[:], buf[24:40])
	return sb, nil
}

// VolumeSB is the per-volume superblock. ID, Name, Size and PageSize are
// immutable after first write. State moves online to destroying once;
// Ordinal and ChunkIDs are rewritten whenever the allocator reports a new
// chunk assignment.
type VolumeSB struct {
	NumStreams uint32
	PageSize   uint32
	Size       uint64
	ID         uuid.UUID
	Name       string
	Ordinal    uint32
	State      uint32
	ChunkIDs   []uint32
}

// NewVolumeSB populates a volume superblock, truncating the name to the
// fixed on-disk capacity.
func NewVolumeSB(id uuid.UUID, size uint64, pageSize uint32, name string, ordinal uint32) *VolumeSB {
	return &VolumeSB{
		PageSize: pageSize,
		Size:     size,
		ID:       id,
		Name:     truncateName(name),
		Ordinal:  ordinal,
		State:    VolumeStateOnline,
	}
}

// truncateName bounds a name to VolumeNameSize-1 bytes, leaving room for
// the NUL terminator.
func truncateName(name string) string {
	if len(name) > VolumeNameSize-1 {
		return name[:VolumeNameSize-1]
	}
	return name
}

// Encode serializes the volume superblock: fixed prefix followed by the
// chunk-ownership extension.
func (sb *VolumeSB) Encode() []byte {
	buf := make([]byte, volumeSBFixedSize+12+4*len(sb.ChunkIDs))
	binary.LittleEndian.PutUint64(buf[0:], VolumeMagic)
	binary.LittleEndian.PutUint32(buf[8:], VolumeVersion)
	binary.LittleEndian.PutUint32(buf[12:], sb.NumStreams)
	binary.LittleEndian.PutUint32(buf[16:], sb.PageSize)
	binary.LittleEndian.PutUint64(buf[20:], sb.Size)
	copy(buf[28:44], sb.ID[:])

	// Name field is zero-initialized, so any copied prefix is already
	// NUL-terminated as long as at most VolumeNameSize-1 bytes land here.
	copy(buf[44:44+VolumeNameSize-1], sb.Name)

	offset := volumeSBFixedSize
	binary.LittleEndian.PutUint32(buf[offset:], sb.Ordinal)
	binary.LittleEndian.PutUint32(buf[offset+4:], sb.State)
	binary.LittleEndian.PutUint32(buf[offset+8:], uint32(len(sb.ChunkIDs)))
	offset += 12
	for _, chunk := range sb.ChunkIDs {
		binary.LittleEndian.PutUint32(buf[offset:], chunk)
		offset += 4
	}
	return buf
}

// DecodeVolumeSB parses a volume superblock, rejecting buffers whose magic
// or version does not match.
func DecodeVolumeSB(buf []byte) (*VolumeSB, error) {
	if len(buf) < volumeSBFixedSize+12 {
		return nil, fmt.Errorf("volume superblock: %d bytes: %w", len(buf), ErrShortBuffer)
	}
	if magic := binary.LittleEndian.Uint64(buf[0:]); magic != VolumeMagic {
		return nil, fmt.Errorf("volume superblock: got 0x%X want 0x%X: %w", magic, VolumeMagic, ErrBadMagic)
	}
	if ver := binary.LittleEndian.Uint32(buf[8:]); ver != VolumeVersion {
		return nil, fmt.Errorf("volume superblock: got %d want %d: %w", ver, VolumeVersion, ErrBadVersion)
	}

	sb := &VolumeSB{
		NumStreams: binary.LittleEndian.Uint32(buf[12:]),
		PageSize:   binary.LittleEndian.Uint32(buf[16:]),
		Size:       binary.LittleEndian.Uint64(buf[20:]),
	}
	copy(sb.ID[:], buf[28:44])
	sb.Name = nameFromBytes(buf[44 : 44+VolumeNameSize])

	offset := volumeSBFixedSize
	sb.Ordinal = binary.LittleEndian.Uint32(buf[offset:])
	sb.State = binary.LittleEndian.Uint32(buf[offset+4:])
	count := binary.LittleEndian.Uint32(buf[offset+8:])
	offset += 12
	if len(buf) < offset+4*int(count) {
		return nil, fmt.Errorf("volume superblock: %d chunk ids truncated: %w", count, ErrShortBuffer)
	}
	if count > 0 {
		sb.ChunkIDs = make([]uint32, count)
		for i := range sb.ChunkIDs {
			sb.ChunkIDs[i] = binary.LittleEndian.Uint32(buf[offset:])
			offset += 4
		}
	}
	return sb, nil
}

// nameFromBytes extracts the NUL-terminated name from the fixed field.
func nameFromBytes(field []byte) string {
	for i, b := range field {
		if b == 0 {
			return string(field[:i])
		}
	}
	return string(field[:len(field)-1])
}
