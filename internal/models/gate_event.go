package models

import "time"

// GateOutcome is the decision recorded for a gated action.
type GateOutcome string

const (
	GateOutcomeApprove GateOutcome = "approve"
	GateOutcomeBlock   GateOutcome = "block"
)

// GateEvent records one gate decision.
type GateEvent struct {
	ID                  string
	Action              string
	Outcome             GateOutcome
	Path                string
	Reason              string
	BypassSource        string
	Kind                string
	Branch              string
	Commit              string
	DiffHash            string
	Dir                 string
	Warnings            []string
	DetectedTargetFiles []string
	CreatedAt           time.Time
}
