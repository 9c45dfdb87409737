package models

import "time"

// PlanRound records one convergence round of a plan review session.
type PlanRound struct {
	ID              string
	SessionID       string
	PlanFile        string
	PlanHash        string
	Iteration       int
	Result          string
	Reason          string
	ForcedBy        string
	Skipped         bool
	FindingCount    int
	HighestSeverity string
	CreatedAt       time.Time
}
