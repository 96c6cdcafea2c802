package logging

import "context"

// Audit actions
const (
	ActionCreateSession = "session.create"
	ActionStartSession  = "session.start"
	ActionEndSession    = "session.end"
)

// Audit emits a structured audit log entry via the context logger.
func Audit(ctx context.Context, action, sessionID, msg string) {
	l := Ctx(ctx)
	l.Info().
		Str(FieldLogType, LogTypeAudit).
		Str(FieldAction, action).
		Str(FieldSessionID, sessionID).
		Msg(msg)
}
