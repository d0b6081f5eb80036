package metrics

import "time"

// VolumeMetrics provides observability for volume lifecycle operations.
// Pass nil to disable collection with zero overhead.
type VolumeMetrics interface {
	// RecordCreate counts a successful volume creation.
	RecordCreate()

	// RecordCreateFailed counts a failed volume creation.
	RecordCreateFailed()

	// RecordDestroyStarted counts a volume entering the destroying state.
	RecordDestroyStarted()

	// RecordReaped counts a volume finalized by the reaper.
	RecordReaped()

	// RecordRecovered counts a volume rebuilt during startup recovery.
	RecordRecovered()

	// RecordLifecycleDuration records how long a lifecycle operation took.
	// op is "create", "destroy" or "finalize".
	RecordLifecycleDuration(op string, duration time.Duration)

	// SetVolumeCounts updates the per-state volume gauges.
	SetVolumeCounts(online, destroying int)

	// SetCapacity updates the service capacity gauges.
	SetCapacity(total, used uint64)
}

// noopVolumeMetrics discards all observations.
type noopVolumeMetrics struct{}

func (noopVolumeMetrics) RecordCreate()                                 {}
func (noopVolumeMetrics) RecordCreateFailed()                           {}
func (noopVolumeMetrics) RecordDestroyStarted()                         {}
func (noopVolumeMetrics) RecordReaped()                                 {}
func (noopVolumeMetrics) RecordRecovered()                              {}
func (noopVolumeMetrics) RecordLifecycleDuration(string, time.Duration) {}
func (noopVolumeMetrics) SetVolumeCounts(int, int)                      {}
func (noopVolumeMetrics) SetCapacity(uint64, uint64)                    {}

// NoopVolumeMetrics returns a VolumeMetrics that discards everything, for
// callers that run without a registry.
func NoopVolumeMetrics() VolumeMetrics { return noopVolumeMetrics{} }
