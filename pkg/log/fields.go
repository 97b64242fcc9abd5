package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID = "user_id"

	// Service
	FieldService = "service"

	// Realtime / streaming
	FieldClientID     = "client_id"
	FieldGroup        = "group"
	FieldReference    = "reference"
	FieldRequestToken = "request_token"
	FieldSessionID    = "chat_session_id"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
)
