package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"merchant-voice-auth/internal/audit/domain"
	auditrepo "merchant-voice-auth/internal/audit/repository"
)

// ActionLogger records agent decisions on validation requests.
// LogAgentAction is best-effort: failures are logged and do not affect the caller.
type ActionLogger interface {
	LogAgentAction(ctx context.Context, agentID, validationRequestID, action, notes string)
}

// Logger implements ActionLogger on top of the agent action repository.
type Logger struct {
	repo   auditrepo.AgentActionRepository
	logger *slog.Logger
	nowF   func() time.Time
}

// NewLogger returns an ActionLogger that persists to repo. logger may be nil; then slog.Default is used.
func NewLogger(repo auditrepo.AgentActionRepository, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{repo: repo, logger: logger, nowF: time.Now}
}

// LogAgentAction writes one agent action row. Errors are logged and not returned.
func (l *Logger) LogAgentAction(ctx context.Context, agentID, validationRequestID, action, notes string) {
	if l == nil || l.repo == nil {
		return
	}
	if agentID == "" {
		agentID = SystemAgentID
	}
	entry := &domain.AgentAction{
		ID:                  uuid.New().String(),
		AgentID:             agentID,
		ValidationRequestID: validationRequestID,
		Action:              action,
		Notes:               notes,
		CreatedAt:           l.nowF().UTC(),
	}
	if err := l.repo.AppendAgentAction(ctx, entry); err != nil {
		l.logger.Warn("audit: failed to record agent action",
			"action", action, "validation_request_id", validationRequestID, "error", err)
	}
}

// SystemAgentID is recorded when an action has no identified agent (e.g. the expiry sweeper).
const SystemAgentID = "_system"
