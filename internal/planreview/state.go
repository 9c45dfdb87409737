package planreview

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joescharf/revgate/internal/fsutil"
	"github.com/joescharf/revgate/internal/marker"
	"github.com/joescharf/revgate/internal/verdict"
)

// StateRelDir is where session state lives, relative to the project dir.
const StateRelDir = ".claude/state"

// ErrCorruptState is returned for a state file that is not valid JSON.
var ErrCorruptState = errors.New("corrupt plan review state")

// Result of one round.
type Result string

const (
	Approved Result = "approved"
	Blocked  Result = "blocked"
)

// ReviewerResult is one reviewer's parsed verdict within an iteration.
type ReviewerResult struct {
	Approved        bool              `json:"approved"`
	HasQuestions    bool              `json:"hasQuestions"`
	MatchedPatterns []string          `json:"matchedPatterns"`
	Findings        []verdict.Finding `json:"findings,omitempty"`
}

// Iteration records one round that ran reviewers. A nil entry in Reviewers
// means that reviewer was unavailable and abstained.
type Iteration struct {
	Iteration int                        `json:"iteration"`
	Timestamp time.Time                  `json:"timestamp"`
	PlanHash  string                     `json:"planHash"`
	Reviewers map[string]*ReviewerResult `json:"reviewers"`
	Outputs   map[string]string          `json:"outputs"`
	Result    Result                     `json:"result"`
}

// State is one convergence session. IterationCount counts the rounds since
// the session started or since the last reset past the ceiling; Reviews
// keeps every round.
type State struct {
	SessionID      string      `json:"sessionId"`
	PlanFile       string      `json:"planFile"`
	IterationCount int         `json:"iterationCount"`
	StartedAt      time.Time   `json:"startedAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
	Reviews        []Iteration `json:"reviews"`
}

// Last returns the most recent iteration, or nil.
func (s *State) Last() *Iteration {
	if s == nil || len(s.Reviews) == 0 {
		return nil
	}
	return &s.Reviews[len(s.Reviews)-1]
}

// StateStore reads and writes session state files in Dir.
type StateStore struct {
	Dir string
}

// NewStateStore returns a store rooted at <projectDir>/.claude/state.
func NewStateStore(projectDir string) *StateStore {
	return &StateStore{Dir: filepath.Join(projectDir, StateRelDir)}
}

// Path returns the state file of a session.
func (s *StateStore) Path(sessionID string) string {
	return filepath.Join(s.Dir, "plan-review-"+marker.Sanitize(sessionID)+".json")
}

// Load returns the session state, or nil when the session has none.
func (s *StateStore) Load(sessionID string) (*State, error) {
	data, err := os.ReadFile(s.Path(sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptState, err)
	}
	return &st, nil
}

// Save replaces the session's state file atomically.
func (s *StateStore) Save(st *State) error {
	return fsutil.WriteJSONAtomic(s.Path(st.SessionID), st)
}

// Clear removes the session's state. Clearing a missing session is a no-op.
func (s *StateStore) Clear(sessionID string) error {
	err := os.Remove(s.Path(sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// List returns all persisted sessions, skipping unreadable files.
func (s *StateStore) List() ([]*State, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, "plan-review-*.json"))
	if err != nil {
		return nil, err
	}
	var out []*State
	for _, m := range matches {
		data, err := os.ReadFile(m)
		if err != nil {
			continue
		}
		var st State
		if json.Unmarshal(data, &st) == nil {
			out = append(out, &st)
		}
	}
	return out, nil
}
