package gitengine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/gomantics/gitmcp/domains/options"
	"github.com/gomantics/gitmcp/domains/toolerr"
	"go.uber.org/zap"
)

// go-git v5 has no linked-worktree support, so these operations drive the
// git binary against the repository root.

// WorktreeInfo describes one working tree of a repository.
type WorktreeInfo struct {
	Path        string
	GitDir      string
	Main        bool
	Bare        bool
	Head        string
	Branch      string
	Detached    bool
	Locked      bool
	LockReason  string
	Prunable    bool
	PruneReason string
}

// PrunedWorktree is an administrative entry removed (or, in a dry run, that
// would be removed) by a prune.
type PrunedWorktree struct {
	Name   string
	Reason string
}

// Worktrees lists the main worktree followed by every linked worktree.
func (e *Engine) Worktrees(ctx context.Context, r *Repo) ([]WorktreeInfo, error) {
	out, err := e.run(ctx, "worktree_list", r.Root, nil, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return parseWorktreeList(out), nil
}

// parseWorktreeList parses `git worktree list --porcelain`. The first block
// is always the main worktree.
func parseWorktreeList(out string) []WorktreeInfo {
	var (
		infos []WorktreeInfo
		cur   *WorktreeInfo
	)
	flush := func() {
		if cur != nil {
			cur.Main = len(infos) == 0
			cur.GitDir = worktreeGitDir(*cur)
			infos = append(infos, *cur)
			cur = nil
		}
	}

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			flush()
			continue
		}

		key, value, _ := strings.Cut(line, " ")
		switch key {
		case "worktree":
			flush()
			cur = &WorktreeInfo{Path: value}
		case "HEAD":
			if cur != nil {
				cur.Head = value
			}
		case "branch":
			if cur != nil {
				cur.Branch = strings.TrimPrefix(value, "refs/heads/")
			}
		case "bare":
			if cur != nil {
				cur.Bare = true
			}
		case "detached":
			if cur != nil {
				cur.Detached = true
			}
		case "locked":
			if cur != nil {
				cur.Locked = true
				cur.LockReason = value
			}
		case "prunable":
			if cur != nil {
				cur.Prunable = true
				cur.PruneReason = value
			}
		}
	}
	flush()

	return infos
}

func worktreeGitDir(w WorktreeInfo) string {
	if w.Bare {
		return w.Path
	}
	dotGit := filepath.Join(w.Path, git.GitDirName)
	fi, err := os.Stat(dotGit)
	if err != nil {
		return ""
	}
	if fi.IsDir() {
		return dotGit
	}
	gitDir, err := readGitFile(dotGit)
	if err != nil {
		return ""
	}
	return gitDir
}

// AddWorktree creates a linked worktree and returns its description.
func (e *Engine) AddWorktree(ctx context.Context, r *Repo, req options.WorktreeAddRequest) (WorktreeInfo, error) {
	path := worktreePath(r, req.Path)

	args := []string{"worktree", "add"}
	if req.Force {
		args = append(args, "--force")
	}
	if req.Detach {
		args = append(args, "--detach")
	}
	if req.Lock {
		args = append(args, "--lock")
		if req.LockReason != "" {
			args = append(args, "--reason", req.LockReason)
		}
	}
	if req.NewBranch != "" {
		args = append(args, "-b", req.NewBranch)
	}
	args = append(args, "--", path)
	if req.Commitish != "" {
		args = append(args, req.Commitish)
	}

	if _, err := e.run(ctx, "worktree_add", r.Root, nil, args...); err != nil {
		return WorktreeInfo{}, err
	}

	e.l.Info("worktree added", zap.String("repo", r.Root), zap.String("worktree", path))
	return e.findWorktree(ctx, "worktree_add", r, path)
}

// RemoveWorktree deletes a linked worktree. Locked or dirty worktrees need Force.
func (e *Engine) RemoveWorktree(ctx context.Context, r *Repo, req options.WorktreeRemoveRequest) (WorktreeInfo, error) {
	path := worktreePath(r, req.Path)

	info, err := e.findWorktree(ctx, "worktree_remove", r, path)
	if err != nil {
		return WorktreeInfo{}, err
	}
	if info.Main {
		return WorktreeInfo{}, toolerr.New(toolerr.KindFailedPrecondition, "cannot remove the main worktree").WithOp("worktree_remove", path)
	}

	args := []string{"worktree", "remove"}
	if req.Force {
		// a single --force only overrides local changes; a second one also
		// removes locked worktrees
		args = append(args, "--force", "--force")
	}
	args = append(args, "--", info.Path)

	if _, err := e.run(ctx, "worktree_remove", r.Root, nil, args...); err != nil {
		return WorktreeInfo{}, err
	}

	e.l.Info("worktree removed", zap.String("repo", r.Root), zap.String("worktree", info.Path))
	return info, nil
}

// LockWorktree marks a linked worktree as locked.
func (e *Engine) LockWorktree(ctx context.Context, r *Repo, req options.WorktreeLockRequest) (WorktreeInfo, error) {
	path := worktreePath(r, req.Path)

	args := []string{"worktree", "lock"}
	if req.Reason != "" {
		args = append(args, "--reason", req.Reason)
	}
	args = append(args, "--", path)

	if _, err := e.run(ctx, "worktree_lock", r.Root, nil, args...); err != nil {
		return WorktreeInfo{}, err
	}
	return e.findWorktree(ctx, "worktree_lock", r, path)
}

// UnlockWorktree removes the lock of a linked worktree.
func (e *Engine) UnlockWorktree(ctx context.Context, r *Repo, req options.WorktreeUnlockRequest) (WorktreeInfo, error) {
	path := worktreePath(r, req.Path)

	if _, err := e.run(ctx, "worktree_unlock", r.Root, nil, "worktree", "unlock", "--", path); err != nil {
		return WorktreeInfo{}, err
	}
	return e.findWorktree(ctx, "worktree_unlock", r, path)
}

// PruneWorktrees removes administrative data of worktrees whose directories
// are gone.
func (e *Engine) PruneWorktrees(ctx context.Context, r *Repo, req options.WorktreePruneRequest) ([]PrunedWorktree, error) {
	args := []string{"worktree", "prune", "-v"}
	if req.DryRun {
		args = append(args, "-n")
	}
	if req.Expire > 0 {
		args = append(args, "--expire", fmt.Sprintf("%d.seconds.ago", int64(req.Expire.Seconds())))
	}

	stdout, stderr, err := e.exec(ctx, "worktree_prune", r.Root, nil, args...)
	if err != nil {
		return nil, err
	}
	return parsePruneOutput(stdout + "\n" + stderr), nil
}

// parsePruneOutput parses "Removing worktrees/<name>: <reason>" lines.
func parsePruneOutput(out string) []PrunedWorktree {
	var pruned []PrunedWorktree
	for _, line := range strings.Split(out, "\n") {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), "Removing ")
		if !ok {
			continue
		}
		name, reason, _ := strings.Cut(rest, ": ")
		pruned = append(pruned, PrunedWorktree{
			Name:   strings.TrimPrefix(name, "worktrees/"),
			Reason: reason,
		})
	}
	return pruned
}

func (e *Engine) findWorktree(ctx context.Context, op string, r *Repo, path string) (WorktreeInfo, error) {
	infos, err := e.Worktrees(ctx, r)
	if err != nil {
		return WorktreeInfo{}, toolerr.From(err).WithOp(op, path)
	}

	want := canonicalPath(path)
	for _, info := range infos {
		if canonicalPath(info.Path) == want {
			return info, nil
		}
	}
	return WorktreeInfo{}, toolerr.New(toolerr.KindNotFound, "worktree not found").WithOp(op, path)
}

// worktreePath resolves a relative worktree path against the repository root.
func worktreePath(r *Repo, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(r.Root, p)
}

func canonicalPath(p string) string {
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	// the directory may be gone already; resolve the parent instead
	if parent, err := filepath.EvalSymlinks(filepath.Dir(p)); err == nil {
		return filepath.Join(parent, filepath.Base(p))
	}
	return filepath.Clean(p)
}
