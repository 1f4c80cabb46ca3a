package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldStage     = "stage"

	// Dataset fields
	FieldDataset     = "dataset"
	FieldFingerprint = "fingerprint"
	FieldRows        = "rows"
	FieldCohorts     = "cohorts"

	// Path fields
	FieldPath      = "path"
	FieldReportDir = "report_dir"
)
