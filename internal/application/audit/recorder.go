package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bryanwahyu/compliance-pulse/internal/application"
	domain "github.com/bryanwahyu/compliance-pulse/internal/domain/audit"
)

// Recorder writes audit events to the log, the store and the bus.
// Recording never fails the caller; a nil *Recorder is a no-op.
type Recorder struct {
	Repo      domain.Repository
	Publisher domain.Publisher
	Logger    *slog.Logger
	Clock     application.Clock
}

func (r *Recorder) Record(ctx context.Context, e domain.Event) {
	if r == nil {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		clock := r.Clock
		if clock == nil {
			clock = application.SystemClock{}
		}
		e.CreatedAt = clock.Now().UTC()
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if r.Repo != nil {
		if err := r.Repo.SaveEvent(ctx, &e); err != nil {
			logger.Error("failed to save audit event", "action", e.Action, "error", err)
		}
	}
	if r.Publisher != nil {
		if err := r.Publisher.Publish(ctx, &e); err != nil {
			logger.Warn("failed to publish audit event", "action", e.Action, "error", err)
		}
	}
}
