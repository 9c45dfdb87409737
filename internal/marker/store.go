package marker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joescharf/revgate/internal/fsutil"
)

const (
	markerExt      = ".done"
	findingsExt    = ".findings.json"
	rateLimitedExt = ".ratelimited"
)

// Store reads and writes marker files under Dir. There is no cache: every
// Read re-parses the file. Writers overwrite whole files and the last
// writer wins.
type Store struct {
	Dir string
}

// NewStore returns a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{Dir: dir}
}

// Path returns the marker file for kind and branch.
func (s *Store) Path(kind, branch string) string {
	return filepath.Join(s.Dir, Sanitize(kind)+"-"+Sanitize(branch)+markerExt)
}

// Read returns the marker for kind and branch, or nil when there is none.
// Corrupt content reads as no marker; the returned error then wraps
// ErrCorrupt so callers can log it.
func (s *Store) Read(kind, branch string) (*Marker, error) {
	data, err := os.ReadFile(s.Path(kind, branch))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read marker: %w", err)
	}
	m, err := Parse(string(data))
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Write overwrites the marker for kind and m.Branch.
func (s *Store) Write(kind string, m Marker) error {
	if m.Branch == "" {
		return errors.New("marker has no branch")
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create markers dir: %w", err)
	}
	return os.WriteFile(s.Path(kind, m.Branch), []byte(m.Format()+"\n"), 0o644)
}

// BumpCycle increments the cycle count for kind and branch, creating an
// identity-less marker when none exists, and returns the new count.
func (s *Store) BumpCycle(kind, branch string) (int, error) {
	m, err := s.Read(kind, branch)
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return 0, err
	}
	if m == nil {
		m = &Marker{Branch: branch}
	}
	m.CycleCount++
	if err := s.Write(kind, *m); err != nil {
		return 0, err
	}
	return m.CycleCount, nil
}

// Remove deletes the marker and findings for kind and branch.
func (s *Store) Remove(kind, branch string) error {
	for _, p := range []string{s.Path(kind, branch), s.findingsPath(kind, branch)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}

// Entry is one marker file found by List.
type Entry struct {
	File   string
	Kind   string
	Marker *Marker
	Err    error
}

// List returns every marker file in the store, sorted by file name.
func (s *Store) List() ([]Entry, error) {
	paths, err := filepath.Glob(filepath.Join(s.Dir, "*"+markerExt))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var entries []Entry
	for _, p := range paths {
		name := filepath.Base(p)
		e := Entry{File: name}
		data, err := os.ReadFile(p)
		if err == nil {
			var m Marker
			if m, err = Parse(string(data)); err == nil {
				e.Marker = &m
			}
		}
		e.Err = err
		e.Kind = kindFromFile(name, e.Marker)
		entries = append(entries, e)
	}
	return entries, nil
}

func kindFromFile(name string, m *Marker) string {
	base := strings.TrimSuffix(name, markerExt)
	if m != nil {
		if kind, ok := strings.CutSuffix(base, "-"+Sanitize(m.Branch)); ok {
			return kind
		}
	}
	kind, _, _ := strings.Cut(base, "-")
	return kind
}

// MarkRateLimited records that reviewers of kind are rate limited until the
// given time.
func (s *Store) MarkRateLimited(kind string, until time.Time) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("create markers dir: %w", err)
	}
	path := filepath.Join(s.Dir, Sanitize(kind)+rateLimitedExt)
	return os.WriteFile(path, []byte(until.UTC().Format(time.RFC3339)+"\n"), 0o644)
}

// RateLimited reports whether a rate-limit record for kind is still in
// force at now. Missing or unreadable records mean not rate limited.
func (s *Store) RateLimited(kind string, now time.Time) bool {
	data, err := os.ReadFile(filepath.Join(s.Dir, Sanitize(kind)+rateLimitedExt))
	if err != nil {
		return false
	}
	until, err := time.Parse(time.RFC3339, strings.TrimSpace(string(data)))
	if err != nil {
		return false
	}
	return now.Before(until)
}

// ClearRateLimited removes the rate-limit record for kind.
func (s *Store) ClearRateLimited(kind string) error {
	err := os.Remove(filepath.Join(s.Dir, Sanitize(kind)+rateLimitedExt))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Findings summarises the open findings of the last review that did not
// approve a branch.
type Findings struct {
	HighestSeverity string         `json:"highestSeverity"`
	Counts          map[string]int `json:"counts"`
	Commit          string         `json:"commit,omitempty"`
	RecordedAt      time.Time      `json:"recordedAt"`
}

func (s *Store) findingsPath(kind, branch string) string {
	return filepath.Join(s.Dir, Sanitize(kind)+"-"+Sanitize(branch)+findingsExt)
}

// WriteFindings records the findings summary for kind and branch.
func (s *Store) WriteFindings(kind, branch string, f Findings) error {
	return fsutil.WriteJSONAtomic(s.findingsPath(kind, branch), f)
}

// ReadFindings returns the recorded findings, or nil when none are recorded.
func (s *Store) ReadFindings(kind, branch string) (*Findings, error) {
	data, err := os.ReadFile(s.findingsPath(kind, branch))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read findings: %w", err)
	}
	var f Findings
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: findings: %v", ErrCorrupt, err)
	}
	return &f, nil
}

// ClearFindings removes the findings record for kind and branch.
func (s *Store) ClearFindings(kind, branch string) error {
	err := os.Remove(s.findingsPath(kind, branch))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
