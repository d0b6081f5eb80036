package logger

import (
	"log/slog"

	"github.com/google/uuid"
)

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so that volume
// lifecycle events can be aggregated and queried by volume identity.
const (
	// Distributed tracing
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// Volume lifecycle
	KeyVolumeID   = "volume_id"   // Volume UUID
	KeyVolumeName = "volume_name" // Display name of the volume
	KeyState      = "state"       // Lifecycle state: online, destroying
	KeyOrdinal    = "ordinal"     // Compact on-disk ordinal of the volume
	KeySize       = "size"        // Provisioned size in bytes
	KeyPageSize   = "page_size"   // Volume page size in bytes
	KeyBootCount  = "boot_cnt"    // Service boot counter

	// Engine
	KeyDevice      = "device"      // Storage device path
	KeyDevType     = "dev_type"    // Device class: hdd, nvme
	KeyGroup       = "group"       // Replication group id
	KeyRecord      = "record"      // Superblock record kind
	KeyChunks      = "chunks"      // Number of chunks in an assignment
	KeyOperation   = "operation"   // Lifecycle operation: create, remove, recover
	KeyOutstanding = "outstanding" // Outstanding request count

	// Operation metadata
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyClientIP   = "client_ip"   // API client address
	KeyRequestID  = "request_id"  // API request id
)

// VolumeID returns a slog.Attr for a volume UUID.
func VolumeID(id uuid.UUID) slog.Attr {
	return slog.String(KeyVolumeID, id.String())
}

// VolumeName returns a slog.Attr for a volume display name.
func VolumeName(name string) slog.Attr {
	return slog.String(KeyVolumeName, name)
}

// State returns a slog.Attr for a lifecycle state.
func State(s string) slog.Attr {
	return slog.String(KeyState, s)
}

// Ordinal returns a slog.Attr for a volume ordinal.
func Ordinal(ord uint32) slog.Attr {
	return slog.Any(KeyOrdinal, ord)
}

// Size returns a slog.Attr for a size in bytes.
func Size(s uint64) slog.Attr {
	return slog.Uint64(KeySize, s)
}

// Device returns a slog.Attr for a device path.
func Device(path string) slog.Attr {
	return slog.String(KeyDevice, path)
}

// Operation returns a slog.Attr for a lifecycle operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// DurationMs returns a slog.Attr for duration in milliseconds.
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}
