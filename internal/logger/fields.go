package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Standard tracing fields, propagated through the call chain.
const (
	// FieldRequestID is the HTTP request ID (UUID)
	FieldRequestID = "request_id"

	// FieldJobID is the closing batch job ID
	FieldJobID = "job_id"

	// FieldDealID is the CRM opportunity ID being processed
	FieldDealID = "deal_id"

	// FieldEnvelopeID is the e-signature envelope ID
	FieldEnvelopeID = "envelope_id"

	// FieldComponent is the component/module name
	FieldComponent = "component"
)

// Standard metric fields, used for aggregation and alerting.
const (
	// FieldDurationMs is the execution duration in milliseconds
	FieldDurationMs = "duration_ms"

	// FieldCount is a generic count field
	FieldCount = "count"

	// FieldStatus is the operation status
	FieldStatus = "status"

	// FieldSize is the response size in bytes
	FieldSize = "size"
)
