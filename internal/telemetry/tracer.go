package telemetry

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/google/uuid"
)

// Common attribute keys for volume lifecycle operations.
// Keys use the "volume." prefix for per-volume attributes and
// "engine." for storage-engine attributes.
const (
	AttrVolumeID   = "volume.id"
	AttrVolumeName = "volume.name"
	AttrVolumeSize = "volume.size_bytes"
	AttrState      = "volume.state"
	AttrOrdinal    = "volume.ordinal"
	AttrRecordKind = "engine.record_kind"
	AttrDevice     = "engine.device"
	AttrChunkCount = "engine.chunk_count"
)

// Span names for lifecycle operations.
// Format: volmgr.<operation> for controller spans, volume.<operation>
// for per-volume spans.
const (
	SpanCreateVolume  = "volmgr.create_volume"
	SpanRemoveVolume  = "volmgr.remove_volume"
	SpanLookupVolume  = "volmgr.lookup_volume"
	SpanRecovery      = "volmgr.recovery"
	SpanReaperPass    = "volmgr.reaper_pass"
	SpanShutdown      = "volmgr.shutdown"
	SpanVolumeDestroy = "volume.destroy"
)

// VolumeID returns an attribute for a volume UUID.
func VolumeID(id uuid.UUID) attribute.KeyValue {
	return attribute.String(AttrVolumeID, id.String())
}

// VolumeName returns an attribute for a volume display name.
func VolumeName(name string) attribute.KeyValue {
	return attribute.String(AttrVolumeName, name)
}

// VolumeSize returns an attribute for a provisioned size in bytes.
func VolumeSize(size uint64) attribute.KeyValue {
	return attribute.Int64(AttrVolumeSize, int64(size))
}

// State returns an attribute for a lifecycle state.
func State(state string) attribute.KeyValue {
	return attribute.String(AttrState, state)
}

// Ordinal returns an attribute for a volume ordinal.
func Ordinal(ord uint32) attribute.KeyValue {
	return attribute.Int(AttrOrdinal, int(ord))
}

// RecordKind returns an attribute for a superblock record kind.
func RecordKind(kind string) attribute.KeyValue {
	return attribute.String(AttrRecordKind, kind)
}

// ChunkCount returns an attribute for a chunk assignment size.
func ChunkCount(n int) attribute.KeyValue {
	return attribute.Int(AttrChunkCount, n)
}
