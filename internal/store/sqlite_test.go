package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/revgate/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	err = s.Migrate(context.Background())
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "subdir", "test.db")

	s, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(dir, "subdir"))
	assert.NoError(t, err, "should create parent directory")
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Running migrate again should be a no-op
	err := s.Migrate(ctx)
	assert.NoError(t, err)
}

func TestGateEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	first := &models.GateEvent{
		Action:              "push",
		Outcome:             models.GateOutcomeBlock,
		Path:                "stale",
		Reason:              "new commits since the last codex review",
		Kind:                "codex",
		Branch:              "feature-x",
		Commit:              "abc1234",
		DetectedTargetFiles: []string{"db/migrations/001.sql"},
		CreatedAt:           base,
	}
	require.NoError(t, s.RecordGateEvent(ctx, first))
	assert.NotEmpty(t, first.ID)

	require.NoError(t, s.RecordGateEvent(ctx, &models.GateEvent{
		Action: "pr-create", Outcome: models.GateOutcomeApprove, Path: "commit",
		Branch: "feature-x", Warnings: []string{"only the fallback reviewer (gemini) ran"},
		CreatedAt: base.Add(time.Minute),
	}))
	require.NoError(t, s.RecordGateEvent(ctx, &models.GateEvent{
		Action: "push", Outcome: models.GateOutcomeApprove, Path: "exempt",
		Branch: "main", CreatedAt: base.Add(2 * time.Minute),
	}))

	all, err := s.ListGateEvents(ctx, EventFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "main", all[0].Branch, "newest first")

	branch, err := s.ListGateEvents(ctx, EventFilter{Branch: "feature-x"})
	require.NoError(t, err)
	require.Len(t, branch, 2)
	assert.Equal(t, []string{"only the fallback reviewer (gemini) ran"}, branch[0].Warnings)
	assert.Equal(t, models.GateOutcomeBlock, branch[1].Outcome)
	assert.Equal(t, []string{"db/migrations/001.sql"}, branch[1].DetectedTargetFiles)
	assert.Empty(t, branch[1].Warnings)

	pushes, err := s.ListGateEvents(ctx, EventFilter{Action: "push", Limit: 1})
	require.NoError(t, err)
	require.Len(t, pushes, 1)
	assert.Equal(t, "exempt", pushes[0].Path)
}

func TestPlanRounds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, s.RecordPlanRound(ctx, &models.PlanRound{
		SessionID: "s1", PlanHash: "aaaa", Iteration: 1, Result: "blocked",
		FindingCount: 2, HighestSeverity: "high", CreatedAt: base,
	}))
	require.NoError(t, s.RecordPlanRound(ctx, &models.PlanRound{
		SessionID: "s1", PlanHash: "aaaa", Iteration: 1, Result: "blocked",
		Skipped: true, CreatedAt: base.Add(time.Minute),
	}))
	require.NoError(t, s.RecordPlanRound(ctx, &models.PlanRound{
		SessionID: "s2", Result: "approved", ForcedBy: "timeout", CreatedAt: base.Add(2 * time.Minute),
	}))

	rounds, err := s.ListPlanRounds(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, rounds, 2)
	assert.True(t, rounds[0].Skipped)
	assert.Equal(t, "high", rounds[1].HighestSeverity)
	assert.Equal(t, 2, rounds[1].FindingCount)

	all, err := s.ListPlanRounds(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "timeout", all[0].ForcedBy)
}

func TestReviewRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordReviewRun(ctx, &models.ReviewRun{
		Kind: "codex", Reviewer: "codex", Branch: "feature-x", Commit: "abc1234",
		Approved: false, CycleCount: 2, HighestSeverity: "medium",
	}))
	require.NoError(t, s.RecordReviewRun(ctx, &models.ReviewRun{
		Kind: "gemini", Reviewer: "gemini", Branch: "feature-x", RateLimited: true,
	}))

	runs, err := s.ListReviewRuns(ctx, EventFilter{Branch: "feature-x", Action: "codex"})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 2, runs[0].CycleCount)
	assert.False(t, runs[0].Approved)

	runs, err = s.ListReviewRuns(ctx, EventFilter{})
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}
