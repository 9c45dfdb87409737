package models

import "time"

// ReviewRun records one `revgate review` invocation against a branch.
type ReviewRun struct {
	ID              string
	Kind            string
	Reviewer        string
	Branch          string
	Commit          string
	DiffHash        string
	Approved        bool
	RateLimited     bool
	CycleCount      int
	HighestSeverity string
	Error           string
	CreatedAt       time.Time
}
