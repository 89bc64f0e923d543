package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields carried on the context logger through a request.
const (
	FieldRequestID = "request_id"
	FieldUserID    = "user_id"
	FieldMealID    = "meal_id"

	// FieldComponent names the layer writing the log (api, ingest, importer)
	FieldComponent = "component"

	// FieldIngestSource is the ingestion path: image, text or an import source id
	FieldIngestSource = "ingest_source"

	// FieldStage is the ingestion state the pipeline is in
	FieldStage = "stage"
)

// Metric fields attached per entry for aggregation.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldFoodCount  = "food_count"
	FieldSize       = "size"
	FieldStatus     = "status"
)
