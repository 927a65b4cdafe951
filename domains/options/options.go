// Package options holds the builder values used to describe git operations.
//
// Builders are plain values: every setter returns a modified copy and never
// shares slices with the receiver, so a derived builder can be handed to
// another goroutine without copying. Build is the only place that validates
// and it produces the request consumed by the engine.
package options

import (
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/gomantics/gitmcp/domains/toolerr"
)

// DefaultRemote is used when a remote name is not given.
const DefaultRemote = "origin"

// Signature identifies an author or committer. A nil When is resolved to the
// current time when the operation executes.
type Signature struct {
	Name  string
	Email string
	When  *time.Time
}

// NewSignature creates a signature without a fixed time.
func NewSignature(name, email string) Signature {
	return Signature{Name: name, Email: email}
}

// At returns a copy of s pinned to t.
func (s Signature) At(t time.Time) Signature {
	s.When = &t
	return s
}

// IsZero reports whether neither name nor email is set.
func (s Signature) IsZero() bool {
	return s.Name == "" && s.Email == ""
}

// Resolve returns the signature time, using now when none was pinned.
func (s Signature) Resolve(now time.Time) time.Time {
	if s.When != nil {
		return *s.When
	}
	return now
}

func (s Signature) validate(field string) error {
	if strings.TrimSpace(s.Name) == "" {
		return toolerr.InvalidOption(field+".name", "must not be empty")
	}
	if strings.TrimSpace(s.Email) == "" {
		return toolerr.InvalidOption(field+".email", "must not be empty")
	}
	if strings.ContainsAny(s.Name+s.Email, "<>\n") {
		return toolerr.InvalidOption(field, "must not contain '<', '>' or newlines")
	}
	return nil
}

func validateBranchName(field, name string) error {
	if name == "" {
		return toolerr.InvalidOption(field, "must not be empty")
	}
	if name == "HEAD" || strings.HasPrefix(name, "-") {
		return toolerr.InvalidOption(field, "is not a valid branch name")
	}
	if err := plumbing.NewBranchReferenceName(name).Validate(); err != nil {
		return toolerr.InvalidOption(field, "is not a valid branch name")
	}
	return nil
}

func validateRemoteName(field, name string) error {
	if name == "" {
		return toolerr.InvalidOption(field, "must not be empty")
	}
	if err := plumbing.NewRemoteReferenceName(name, "x").Validate(); err != nil {
		return toolerr.InvalidOption(field, "is not a valid remote name")
	}
	return nil
}

func validateRelativePaths(field string, paths []string) error {
	for _, p := range paths {
		if p == "" {
			return toolerr.InvalidOption(field, "must not contain empty paths")
		}
		if !filepath.IsLocal(filepath.FromSlash(p)) && p != "." {
			return toolerr.InvalidOption(field, "path "+p+" is outside the repository")
		}
	}
	return nil
}

func requireText(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return toolerr.InvalidOption(field, "must not be empty")
	}
	return nil
}

func clonePaths(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	return slices.Clone(paths)
}
