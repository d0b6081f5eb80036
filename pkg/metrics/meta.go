package metrics

// MetaMetrics records metadata store activity: superblock record traffic
// and integrity failures, by record kind.
type MetaMetrics interface {
	// RecordWrite counts one record write (create or update).
	RecordWrite(kind string)

	// RecordRead counts one record surfaced during a scan.
	RecordRead(kind string)

	// RecordDestroy counts one record removal.
	RecordDestroy(kind string)

	// RecordChecksumFailure counts one record that failed verification.
	RecordChecksumFailure(kind string)
}

type noopMetaMetrics struct{}

func (noopMetaMetrics) RecordWrite(string)           {}
func (noopMetaMetrics) RecordRead(string)            {}
func (noopMetaMetrics) RecordDestroy(string)         {}
func (noopMetaMetrics) RecordChecksumFailure(string) {}

// NoopMetaMetrics returns a MetaMetrics that discards everything.
func NoopMetaMetrics() MetaMetrics {
	return noopMetaMetrics{}
}
