package audit

import (
	"context"

	"github.com/wisegate/wisegate/pkg/log"
)

// Audit actions.
const (
	ActionConnect         = "qa.connect"
	ActionConnectRejected = "qa.connect_rejected"
	ActionDisconnect      = "qa.disconnect"
	ActionAnswerRequest   = "qa.answer_request"
	ActionSessionDeleted  = "qa.session_deleted"
)

// Field constants for audit entries.
const (
	FieldAction   = "action"
	FieldTargetID = "target_id"
	FieldDetail   = "detail"
)

// Log emits a structured audit log entry via the context logger.
func Log(ctx context.Context, action, userID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Msg(msg)
}

// LogWithTarget emits an audit log naming the entity acted on.
func LogWithTarget(ctx context.Context, action, userID, targetID, msg string) {
	l := log.Ctx(ctx)
	l.Info().
		Str(log.FieldLogType, log.LogTypeAudit).
		Str(FieldAction, action).
		Str(log.FieldUserID, userID).
		Str(FieldTargetID, targetID).
		Msg(msg)
}
