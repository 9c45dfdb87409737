// Package identity computes the two tokens that say "this is still the same
// work": the commit hash and a hash of the diff against the base branch.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"

	"github.com/joescharf/revgate/internal/git"
)

// HashLen is the number of hex characters kept from a SHA-256 digest.
const HashLen = 16

// MinPrefixLen is the shortest hash HashesMatch will compare.
const MinPrefixLen = 7

// DefaultBase is used when no base branch can be resolved.
const DefaultBase = "main"

// ErrNoBaseBranch is returned when neither origin/HEAD, main nor master exist.
var ErrNoBaseBranch = errors.New("no base branch found")

// Identity is what a review marker is compared against.
type Identity struct {
	Branch   string
	Commit   string
	DiffHash string // empty when the diff could not be computed or is empty
	Base     string
}

// Resolver computes identities through a git client.
type Resolver struct {
	Git git.Client
	// Base overrides base branch resolution when set.
	Base string
}

// NewResolver returns a Resolver backed by client.
func NewResolver(client git.Client) *Resolver {
	return &Resolver{Git: client}
}

// Current returns the identity of the checked-out branch at path.
func (r *Resolver) Current(ctx context.Context, path string) (Identity, error) {
	branch, err := r.Git.CurrentBranch(ctx, path)
	if err != nil {
		return Identity{}, fmt.Errorf("current branch: %w", err)
	}
	return r.resolve(ctx, path, branch, "HEAD")
}

// ForRef returns the identity of a named branch that need not be checked
// out. A branch with no local ref is looked up as origin/<branch>.
func (r *Resolver) ForRef(ctx context.Context, path, branch string) (Identity, error) {
	ref := branch
	if !r.Git.BranchExists(ctx, path, branch) {
		ref = "origin/" + branch
	}
	return r.resolve(ctx, path, branch, ref)
}

func (r *Resolver) resolve(ctx context.Context, path, branch, ref string) (Identity, error) {
	id := Identity{Branch: branch}

	commit, err := r.Git.RevParse(ctx, path, ref)
	if err != nil {
		return id, fmt.Errorf("resolve %s: %w", ref, err)
	}
	id.Commit = commit

	id.Base = r.Base
	if id.Base == "" {
		id.Base, err = ResolveBaseBranch(ctx, r.Git, path)
		if err != nil {
			id.Base = DefaultBase
		}
	}

	baseRef := id.Base
	if !r.Git.BranchExists(ctx, path, baseRef) {
		baseRef = "origin/" + id.Base
	}
	// A missing diff leaves DiffHash empty; the commit hash alone still works.
	if h, err := DiffHash(ctx, r.Git, path, baseRef, ref); err == nil {
		id.DiffHash = h
	}
	return id, nil
}

// ResolveBaseBranch returns the branch that feature work merges into:
// origin's symbolic HEAD, then a local main, then a local master.
func ResolveBaseBranch(ctx context.Context, client git.Client, path string) (string, error) {
	if ref, err := client.SymbolicRef(ctx, path, "refs/remotes/origin/HEAD"); err == nil && ref != "" {
		return strings.TrimPrefix(ref, "origin/"), nil
	}
	for _, name := range []string{"main", "master"} {
		if client.BranchExists(ctx, path, name) {
			return name, nil
		}
	}
	return "", ErrNoBaseBranch
}

// DiffHash streams `git diff base...head` through SHA-256. An empty diff
// has no identity and yields "".
func DiffHash(ctx context.Context, client git.Client, path, base, head string) (string, error) {
	w := &countingHash{h: sha256.New()}
	if err := client.DiffTo(ctx, path, base, head, w); err != nil {
		return "", err
	}
	if w.n == 0 {
		return "", nil
	}
	return hex.EncodeToString(w.h.Sum(nil))[:HashLen], nil
}

type countingHash struct {
	h hash.Hash
	n int64
}

func (c *countingHash) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return c.h.Write(p)
}

// ContentHash returns the short digest of text, used for plan content.
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:HashLen]
}

// HashesMatch compares two hashes that may differ in length (short and full
// commit hashes): the shorter must be a case-insensitive prefix of the
// longer and at least MinPrefixLen long. Empty values never match.
func HashesMatch(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if len(a) > len(b) {
		a, b = b, a
	}
	if len(a) < MinPrefixLen {
		return false
	}
	return strings.HasPrefix(b, a)
}
