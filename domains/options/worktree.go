package options

import (
	"strings"
	"time"

	"github.com/gomantics/gitmcp/domains/toolerr"
)

// WorktreeAddOptions builds a WorktreeAddRequest.
type WorktreeAddOptions struct {
	path       string
	commitish  string
	newBranch  string
	force      bool
	detach     bool
	lock       bool
	lockReason string
}

// WorktreeAddRequest creates a linked worktree at Path.
type WorktreeAddRequest struct {
	Path       string
	Commitish  string
	NewBranch  string
	Force      bool
	Detach     bool
	Lock       bool
	LockReason string
}

func NewWorktreeAddOptions(path string) WorktreeAddOptions {
	return WorktreeAddOptions{path: path}
}

// Branch checks out an existing branch or revision in the new worktree.
func (o WorktreeAddOptions) Branch(commitish string) WorktreeAddOptions {
	o.commitish = commitish
	return o
}

// NewBranch creates and checks out a branch in the new worktree.
func (o WorktreeAddOptions) NewBranch(name string) WorktreeAddOptions {
	o.newBranch = name
	return o
}

func (o WorktreeAddOptions) Force(force bool) WorktreeAddOptions {
	o.force = force
	return o
}

func (o WorktreeAddOptions) Detach(detach bool) WorktreeAddOptions {
	o.detach = detach
	return o
}

// Lock locks the new worktree, recording reason when not empty.
func (o WorktreeAddOptions) Lock(reason string) WorktreeAddOptions {
	o.lock = true
	o.lockReason = reason
	return o
}

func (o WorktreeAddOptions) Build() (WorktreeAddRequest, error) {
	if err := requireText("worktree_path", o.path); err != nil {
		return WorktreeAddRequest{}, err
	}
	if o.newBranch != "" {
		if err := validateBranchName("new_branch", o.newBranch); err != nil {
			return WorktreeAddRequest{}, err
		}
		if o.detach {
			return WorktreeAddRequest{}, toolerr.InvalidOption("detach", "cannot be combined with new_branch")
		}
	}
	if strings.HasPrefix(o.commitish, "-") {
		return WorktreeAddRequest{}, toolerr.InvalidOption("branch", "must not start with '-'")
	}
	if err := validateLockReason(o.lockReason); err != nil {
		return WorktreeAddRequest{}, err
	}
	return WorktreeAddRequest{
		Path:       o.path,
		Commitish:  o.commitish,
		NewBranch:  o.newBranch,
		Force:      o.force,
		Detach:     o.detach,
		Lock:       o.lock,
		LockReason: o.lockReason,
	}, nil
}

// WorktreeRemoveOptions builds a WorktreeRemoveRequest.
type WorktreeRemoveOptions struct {
	path  string
	force bool
}

// WorktreeRemoveRequest deletes a linked worktree.
type WorktreeRemoveRequest struct {
	Path  string
	Force bool
}

func NewWorktreeRemoveOptions(path string) WorktreeRemoveOptions {
	return WorktreeRemoveOptions{path: path}
}

// Force removes the worktree even when it has local changes.
func (o WorktreeRemoveOptions) Force(force bool) WorktreeRemoveOptions {
	o.force = force
	return o
}

func (o WorktreeRemoveOptions) Build() (WorktreeRemoveRequest, error) {
	if err := requireText("worktree_path", o.path); err != nil {
		return WorktreeRemoveRequest{}, err
	}
	return WorktreeRemoveRequest{Path: o.path, Force: o.force}, nil
}

// WorktreeLockOptions builds a WorktreeLockRequest.
type WorktreeLockOptions struct {
	path   string
	reason string
}

// WorktreeLockRequest protects a worktree from prune and removal.
type WorktreeLockRequest struct {
	Path   string
	Reason string
}

func NewWorktreeLockOptions(path string) WorktreeLockOptions {
	return WorktreeLockOptions{path: path}
}

func (o WorktreeLockOptions) Reason(reason string) WorktreeLockOptions {
	o.reason = reason
	return o
}

func (o WorktreeLockOptions) Build() (WorktreeLockRequest, error) {
	if err := requireText("worktree_path", o.path); err != nil {
		return WorktreeLockRequest{}, err
	}
	if err := validateLockReason(o.reason); err != nil {
		return WorktreeLockRequest{}, err
	}
	return WorktreeLockRequest{Path: o.path, Reason: o.reason}, nil
}

// WorktreeUnlockOptions builds a WorktreeUnlockRequest.
type WorktreeUnlockOptions struct {
	path string
}

// WorktreeUnlockRequest releases a worktree lock.
type WorktreeUnlockRequest struct {
	Path string
}

func NewWorktreeUnlockOptions(path string) WorktreeUnlockOptions {
	return WorktreeUnlockOptions{path: path}
}

func (o WorktreeUnlockOptions) Build() (WorktreeUnlockRequest, error) {
	if err := requireText("worktree_path", o.path); err != nil {
		return WorktreeUnlockRequest{}, err
	}
	return WorktreeUnlockRequest{Path: o.path}, nil
}

// WorktreePruneOptions builds a WorktreePruneRequest.
type WorktreePruneOptions struct {
	dryRun bool
	expire time.Duration
}

// WorktreePruneRequest drops administrative data of missing worktrees.
type WorktreePruneRequest struct {
	DryRun bool
	Expire time.Duration
}

func NewWorktreePruneOptions() WorktreePruneOptions {
	return WorktreePruneOptions{}
}

// DryRun reports what would be pruned without deleting anything.
func (o WorktreePruneOptions) DryRun(dry bool) WorktreePruneOptions {
	o.dryRun = dry
	return o
}

// Expire only prunes worktrees missing for longer than d.
func (o WorktreePruneOptions) Expire(d time.Duration) WorktreePruneOptions {
	o.expire = d
	return o
}

func (o WorktreePruneOptions) Build() (WorktreePruneRequest, error) {
	if o.expire < 0 {
		return WorktreePruneRequest{}, toolerr.InvalidOption("expire", "must not be negative")
	}
	return WorktreePruneRequest{DryRun: o.dryRun, Expire: o.expire}, nil
}

func validateLockReason(reason string) error {
	if strings.ContainsAny(reason, "\n\r") {
		return toolerr.InvalidOption("reason", "must be a single line")
	}
	return nil
}
