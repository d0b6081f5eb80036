// Package errors provides error types and error codes for volume lifecycle
// operations. This is a leaf package with no internal dependencies, designed
// to be imported by the volume entity, the volume manager, and the API layer
// without causing circular imports.
//
// Import graph: errors <- volume <- volmgr <- api
package errors

import (
	"fmt"

	"github.com/google/uuid"
)

// ErrorCode classifies a lifecycle error.
type ErrorCode int

const (
	// ErrConsistency indicates a magic/version/checksum mismatch on a
	// persisted record. Fatal for that record; the process must not
	// proceed with it.
	ErrConsistency ErrorCode = iota + 1

	// ErrResourceUnavailable indicates a replicated-device create/get/remove
	// failed. Surfaced to the caller as a lifecycle-operation failure.
	ErrResourceUnavailable

	// ErrInvariantViolation indicates an attempt to remove a volume that is
	// still referenced or still serving requests. Not retried automatically;
	// the caller must wait for the reaper.
	ErrInvariantViolation

	// ErrConfiguration indicates unusable startup configuration, such as no
	// supported storage devices. Fatal; aborts startup.
	ErrConfiguration

	// ErrNotFound indicates the volume does not exist in the registry.
	ErrNotFound

	// ErrAlreadyExists indicates a volume with the same id already exists.
	ErrAlreadyExists

	// ErrShuttingDown indicates a lifecycle operation was rejected because
	// shutdown has started.
	ErrShuttingDown
)

// String returns a human-readable name for the error code.
func (e ErrorCode) String() string {
	switch e {
	case ErrConsistency:
		return "Consistency"
	case ErrResourceUnavailable:
		return "ResourceUnavailable"
	case ErrInvariantViolation:
		return "InvariantViolation"
	case ErrConfiguration:
		return "Configuration"
	case ErrNotFound:
		return "NotFound"
	case ErrAlreadyExists:
		return "AlreadyExists"
	case ErrShuttingDown:
		return "ShuttingDown"
	default:
		return fmt.Sprintf("Unknown(%d)", e)
	}
}

// VolumeError is a lifecycle error with a classification code and, when the
// failure concerns a specific volume, that volume's identity.
type VolumeError struct {
	Code     ErrorCode
	Message  string
	VolumeID uuid.UUID
	Err      error // wrapped cause, may be nil
}

// Error implements the error interface.
func (e *VolumeError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.VolumeID != uuid.Nil {
		msg += fmt.Sprintf(" (volume: %s)", e.VolumeID)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the wrapped cause.
func (e *VolumeError) Unwrap() error { return e.Err }

// Is matches against other VolumeErrors by code, so callers can use
// errors.Is with a bare &VolumeError{Code: ...} sentinel.
func (e *VolumeError) Is(target error) bool {
	t, ok := target.(*VolumeError)
	return ok && t.Code == e.Code
}

// CodeOf extracts the ErrorCode from an error chain, or 0 if the chain
// contains no VolumeError.
func CodeOf(err error) ErrorCode {
	for err != nil {
		if ve, ok := err.(*VolumeError); ok {
			return ve.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return 0
		}
		err = u.Unwrap()
	}
	return 0
}

// NewConsistencyError creates a Consistency error wrapping the decode failure.
func NewConsistencyError(record string, cause error) *VolumeError {
	return &VolumeError{
		Code:    ErrConsistency,
		Message: fmt.Sprintf("persisted record %q failed verification", record),
		Err:     cause,
	}
}

// NewResourceUnavailableError creates a ResourceUnavailable error for a volume.
func NewResourceUnavailableError(id uuid.UUID, op string, cause error) *VolumeError {
	return &VolumeError{
		Code:     ErrResourceUnavailable,
		Message:  fmt.Sprintf("replication service %s failed", op),
		VolumeID: id,
		Err:      cause,
	}
}

// NewInvariantViolationError creates an InvariantViolation error for a volume.
func NewInvariantViolationError(id uuid.UUID, msg string) *VolumeError {
	return &VolumeError{
		Code:     ErrInvariantViolation,
		Message:  msg,
		VolumeID: id,
	}
}

// NewConfigurationError creates a Configuration error.
func NewConfigurationError(msg string) *VolumeError {
	return &VolumeError{
		Code:    ErrConfiguration,
		Message: msg,
	}
}

// NewNotFoundError creates a NotFound error for a volume id.
func NewNotFoundError(id uuid.UUID) *VolumeError {
	return &VolumeError{
		Code:     ErrNotFound,
		Message:  "volume not found",
		VolumeID: id,
	}
}

// NewAlreadyExistsError creates an AlreadyExists error for a volume id.
func NewAlreadyExistsError(id uuid.UUID) *VolumeError {
	return &VolumeError{
		Code:     ErrAlreadyExists,
		Message:  "volume already exists",
		VolumeID: id,
	}
}

// NewShuttingDownError creates a ShuttingDown error.
func NewShuttingDownError(op string) *VolumeError {
	return &VolumeError{
		Code:    ErrShuttingDown,
		Message: fmt.Sprintf("%s rejected: shutdown in progress", op),
	}
}
