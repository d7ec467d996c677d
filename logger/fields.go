package logger

// Standard field names for structured logging.
const (
	FieldRunID      = "run_id"
	FieldRunName    = "run_name"
	FieldWorkflow   = "workflow"
	FieldStage      = "stage"
	FieldStageIndex = "stage_index"
	FieldStatus     = "status"
	FieldDurationMS = "duration_ms"
	FieldPath       = "path"
	FieldJob        = "job"
	FieldJobID      = "job_id"
	FieldTool       = "tool"
	FieldCount      = "count"
	FieldError      = "error"
)
