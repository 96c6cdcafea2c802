package logging

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
	FieldRole   = "role"

	// Domain
	FieldSessionID = "session_id"
	FieldCourseID  = "course_id"
	FieldState     = "state"
	FieldAttempt   = "attempt"
	FieldAdapter   = "adapter"

	// Service
	FieldService   = "service"
	FieldComponent = "component"

	// Log type (for audit log)
	FieldLogType = "log_type"
	LogTypeAudit = "audit"
	FieldAction  = "action"
)
