package superblock

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceSBRoundTrip(t *testing.T) {
	orig := &ServiceSB{
		BootCount: 7,
		ServiceID: uuid.New(),
	}
	orig.SetFlag(FlagGracefulShutdown)

	decoded, err := DecodeServiceSB(orig.Encode())
	require.NoError(t, err)

	assert.Equal(t, orig.Flags, decoded.Flags)
	assert.Equal(t, orig.BootCount, decoded.BootCount)
	assert.Equal(t, orig.ServiceID, decoded.ServiceID)
	assert.True(t, decoded.TestFlag(FlagGracefulShutdown))
	assert.False(t, decoded.TestFlag(FlagRestricted))
}

func TestServiceSBFlagOps(t *testing.T) {
	var sb ServiceSB
	sb.SetFlag(FlagGracefulShutdown)
	require.True(t, sb.TestFlag(FlagGracefulShutdown))
	sb.ClearFlag(FlagGracefulShutdown)
	require.False(t, sb.TestFlag(FlagGracefulShutdown))
}

func TestDecodeServiceSBRejectsBadMagic(t *testing.T) {
	buf := (&ServiceSB{ServiceID: uuid.New()}).Encode()
	binary.LittleEndian.PutUint64(buf[0:], 0xDEADBEEF)

	_, err := DecodeServiceSB(buf)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeServiceSBRejectsBadVersion(t *testing.T) {
	buf := (&ServiceSB{ServiceID: uuid.New()}).Encode()
	binary.LittleEndian.PutUint32(buf[8:], ServiceVersion+1)

	_, err := DecodeServiceSB(buf)
	assert.ErrorIs(t, err, ErrBadVersion)
}

func TestDecodeServiceSBRejectsShortBuffer(t *testing.T) {
	_, err := DecodeServiceSB(make([]byte, 10))
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestVolumeSBRoundTrip(t *testing.T) {
	id := uuid.New()
	orig := NewVolumeSB(id, 64<<30, 4096, "scratch-01", 12)
	orig.ChunkIDs = []uint32{3, 9, 27}

	decoded, err := DecodeVolumeSB(orig.Encode())
	require.NoError(t, err)

	assert.Equal(t, id, decoded.ID)
	assert.Equal(t, uint64(64<<30), decoded.Size)
	assert.Equal(t, uint32(4096), decoded.PageSize)
	assert.Equal(t, "scratch-01", decoded.Name)
	assert.Equal(t, uint32(12), decoded.Ordinal)
	assert.Equal(t, VolumeStateOnline, decoded.State)
	assert.Equal(t, []uint32{3, 9, 27}, decoded.ChunkIDs)
}

func TestVolumeSBDestroyingStateSurvives(t *testing.T) {
	sb := NewVolumeSB(uuid.New(), 1<<30, 4096, "doomed", 3)
	sb.State = VolumeStateDestroying

	decoded, err := DecodeVolumeSB(sb.Encode())
	require.NoError(t, err)
	assert.Equal(t, VolumeStateDestroying, decoded.State)
}

func TestVolumeSBNameTruncation(t *testing.T) {
	long := strings.Repeat("n", 150)
	sb := NewVolumeSB(uuid.New(), 1<<30, 4096, long, 0)

	decoded, err := DecodeVolumeSB(sb.Encode())
	require.NoError(t, err)

	// Truncated at 99 bytes, NUL-terminated on disk.
	assert.Equal(t, long[:VolumeNameSize-1], decoded.Name)
	assert.Len(t, decoded.Name, VolumeNameSize-1)
}

func TestVolumeSBMaxLengthNameSurvives(t *testing.T) {
	name := strings.Repeat("x", VolumeNameSize-1)
	decoded, err := DecodeVolumeSB(NewVolumeSB(uuid.New(), 1, 512, name, 0).Encode())
	require.NoError(t, err)
	assert.Equal(t, name, decoded.Name)
}

func TestVolumeSBEmptyChunkList(t *testing.T) {
	decoded, err := DecodeVolumeSB(NewVolumeSB(uuid.New(), 1<<20, 4096, "v", 1).Encode())
	require.NoError(t, err)
	assert.Empty(t, decoded.ChunkIDs)
}

func TestDecodeVolumeSBRejectsBadMagic(t *testing.T) {
	buf := NewVolumeSB(uuid.New(), 1, 512, "v", 0).Encode()
	binary.LittleEndian.PutUint64(buf[0:], 0x1234)

	_, err := DecodeVolumeSB(buf)
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestDecodeVolumeSBRejectsBadVersion(t *testing.T) {
	buf := NewVolumeSB(uuid.New(), 1, 512, "v", 0).Encode()
	binary.LittleEndian.PutUint32(buf[8:], VolumeVersion+1)

	_, err := DecodeVolumeSB(buf)
	assert.ErrorIs(t, err, ErrBadVersion)
}

func TestDecodeVolumeSBRejectsTruncatedChunkList(t *testing.T) {
	sb := NewVolumeSB(uuid.New(), 1, 512, "v", 0)
	sb.ChunkIDs = []uint32{1, 2, 3, 4}
	buf := sb.Encode()

	_, err := DecodeVolumeSB(buf[:len(buf)-4])
	assert.ErrorIs(t, err, ErrShortBuffer)
}
