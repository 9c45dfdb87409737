package store

import (
	"context"

	"github.com/joescharf/revgate/internal/models"
)

// EventFilter specifies filters for listing audit records. Zero values
// match everything; Limit <= 0 means no limit.
type EventFilter struct {
	Branch string
	Action string
	Limit  int
}

// Store defines the audit persistence interface for revgate.
type Store interface {
	// Gate decisions
	RecordGateEvent(ctx context.Context, e *models.GateEvent) error
	ListGateEvents(ctx context.Context, filter EventFilter) ([]*models.GateEvent, error)

	// Convergence rounds
	RecordPlanRound(ctx context.Context, r *models.PlanRound) error
	ListPlanRounds(ctx context.Context, sessionID string, limit int) ([]*models.PlanRound, error)

	// Review runs
	RecordReviewRun(ctx context.Context, r *models.ReviewRun) error
	ListReviewRuns(ctx context.Context, filter EventFilter) ([]*models.ReviewRun, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
