package tools

import (
	"time"

	"github.com/gomantics/gitmcp/libs/gitengine"
)

// Person is the author or committer of a commit.
type Person struct {
	Name  string    `json:"name"`
	Email string    `json:"email"`
	When  time.Time `json:"when"`
}

// Commit is the tool view of a commit.
type Commit struct {
	ID        string   `json:"id"`
	ShortID   string   `json:"short_id"`
	Summary   string   `json:"summary"`
	Message   string   `json:"message"`
	Author    Person   `json:"author"`
	Committer Person   `json:"committer"`
	Parents   []string `json:"parents"`
}

func newCommit(c gitengine.CommitInfo) Commit {
	parents := c.Parents
	if parents == nil {
		parents = []string{}
	}
	return Commit{
		ID:        c.Hash,
		ShortID:   shortHash(c.Hash),
		Summary:   c.Summary,
		Message:   c.Message,
		Author:    Person{Name: c.AuthorName, Email: c.AuthorEmail, When: c.AuthorWhen},
		Committer: Person{Name: c.CommitterName, Email: c.CommitterEmail, When: c.CommitterWhen},
		Parents:   parents,
	}
}

// Branch is the tool view of a local branch.
type Branch struct {
	Name     string `json:"name"`
	Head     string `json:"head"`
	Current  bool   `json:"current"`
	Upstream string `json:"upstream,omitempty"`
}

func newBranch(b gitengine.BranchInfo) Branch {
	return Branch{Name: b.Name, Head: b.Head, Current: b.Current, Upstream: b.Upstream}
}

// FileChange is the index and worktree state of one path.
type FileChange struct {
	Path     string `json:"path"`
	Staging  string `json:"staging"`
	Worktree string `json:"worktree"`
}

func newFileChanges(files []gitengine.FileStatus) []FileChange {
	out := make([]FileChange, 0, len(files))
	for _, f := range files {
		out = append(out, FileChange{Path: f.Path, Staging: f.Staging, Worktree: f.Worktree})
	}
	return out
}

// Remote is a configured remote.
type Remote struct {
	Name  string   `json:"name"`
	URLs  []string `json:"urls"`
	Fetch []string `json:"fetch"`
}

func newRemote(r gitengine.RemoteInfo) Remote {
	return Remote{Name: r.Name, URLs: nonNil(r.URLs), Fetch: nonNil(r.Fetch)}
}

// RefUpdate is a reference changed by a fetch.
type RefUpdate struct {
	Name string `json:"name"`
	Old  string `json:"old,omitempty"`
	New  string `json:"new,omitempty"`
}

func newRefUpdates(updates []gitengine.RefUpdate) []RefUpdate {
	out := make([]RefUpdate, 0, len(updates))
	for _, u := range updates {
		out = append(out, RefUpdate{Name: u.Name, Old: u.Old, New: u.New})
	}
	return out
}

// Worktree is one working tree of a repository.
type Worktree struct {
	Path        string `json:"path"`
	GitDir      string `json:"git_dir,omitempty"`
	Main        bool   `json:"main"`
	Bare        bool   `json:"bare"`
	Head        string `json:"head,omitempty"`
	Branch      string `json:"branch,omitempty"`
	Detached    bool   `json:"detached"`
	Locked      bool   `json:"locked"`
	LockReason  string `json:"lock_reason,omitempty"`
	Prunable    bool   `json:"prunable"`
	PruneReason string `json:"prune_reason,omitempty"`
}

func newWorktree(w gitengine.WorktreeInfo) Worktree {
	return Worktree{
		Path:        w.Path,
		GitDir:      w.GitDir,
		Main:        w.Main,
		Bare:        w.Bare,
		Head:        w.Head,
		Branch:      w.Branch,
		Detached:    w.Detached,
		Locked:      w.Locked,
		LockReason:  w.LockReason,
		Prunable:    w.Prunable,
		PruneReason: w.PruneReason,
	}
}

func shortHash(h string) string {
	if len(h) > 7 {
		return h[:7]
	}
	return h
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
