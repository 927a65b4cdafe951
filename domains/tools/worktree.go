package tools

import (
	"context"
	"strconv"
	"time"

	"github.com/gomantics/gitmcp/domains/options"
	"github.com/gomantics/gitmcp/libs/gitengine"
)

type WorktreeAddArgs struct {
	Path         string `json:"path"`
	WorktreePath string `json:"worktree_path" desc:"where to create the worktree; relative paths resolve against the repository root"`
	Branch       string `json:"branch,omitempty" desc:"existing branch or revision to check out"`
	NewBranch    string `json:"new_branch,omitempty" desc:"create this branch and check it out"`
	Force        bool   `json:"force,omitempty"`
	Detach       bool   `json:"detach,omitempty"`
	Lock         bool   `json:"lock,omitempty" desc:"lock the worktree after creating it"`
	LockReason   string `json:"lock_reason,omitempty"`
}

type WorktreeRemoveArgs struct {
	Path         string `json:"path"`
	WorktreePath string `json:"worktree_path"`
	Force        bool   `json:"force,omitempty" desc:"remove even with local changes or a lock"`
}

type WorktreeLockArgs struct {
	Path         string `json:"path"`
	WorktreePath string `json:"worktree_path"`
	Reason       string `json:"reason,omitempty"`
}

type WorktreeUnlockArgs struct {
	Path         string `json:"path"`
	WorktreePath string `json:"worktree_path"`
}

type WorktreePruneArgs struct {
	Path          string `json:"path"`
	DryRun        bool   `json:"dry_run,omitempty" desc:"report what would be pruned"`
	ExpireSeconds int64  `json:"expire_seconds,omitempty" desc:"only prune worktrees missing for longer than this"`
}

// WorktreeResult describes one worktree after a change.
type WorktreeResult struct {
	Worktree Worktree `json:"worktree"`
	Summary  string   `json:"summary"`
}

// Pruned is an administrative worktree entry removed by a prune.
type Pruned struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// PruneResult lists pruned worktree entries.
type PruneResult struct {
	DryRun  bool     `json:"dry_run"`
	Pruned  []Pruned `json:"pruned"`
	Summary string   `json:"summary"`
}

func worktreeTools() []*Tool {
	return []*Tool{
		unaryTool(def{
			name:    "git_worktree_add",
			group:   GroupWorktree,
			desc:    "Create a linked worktree.",
			summary: "Added worktree {path} at {head}",
		}, addWorktree),
		unaryTool(def{
			name:    "git_worktree_remove",
			group:   GroupWorktree,
			desc:    "Remove a linked worktree.",
			summary: "Removed worktree {path}",
		}, removeWorktree),
		streamTool(def{
			name:     "git_worktree_list",
			group:    GroupWorktree,
			readOnly: true,
			desc:     "List the main worktree and every linked worktree, one event each.",
		}, listWorktrees),
		unaryTool(def{
			name:    "git_worktree_lock",
			group:   GroupWorktree,
			desc:    "Lock a linked worktree so it is not pruned or removed.",
			summary: "Locked worktree {path}",
		}, lockWorktree),
		unaryTool(def{
			name:    "git_worktree_unlock",
			group:   GroupWorktree,
			desc:    "Unlock a linked worktree.",
			summary: "Unlocked worktree {path}",
		}, unlockWorktree),
		unaryTool(def{
			name:    "git_worktree_prune",
			group:   GroupWorktree,
			desc:    "Drop administrative data of worktrees whose directory is gone.",
			summary: "{verb} {count} worktree(s)",
		}, pruneWorktrees),
	}
}

func addWorktree(ctx context.Context, s *session, args WorktreeAddArgs) (WorktreeResult, error) {
	o := options.NewWorktreeAddOptions(args.WorktreePath).
		Branch(args.Branch).
		NewBranch(args.NewBranch).
		Force(args.Force).
		Detach(args.Detach)
	if args.Lock || args.LockReason != "" {
		o = o.Lock(args.LockReason)
	}
	req, err := o.Build()
	if err != nil {
		return WorktreeResult{}, err
	}

	h, release, err := s.write(args.Path)
	if err != nil {
		return WorktreeResult{}, err
	}
	defer release()

	w, err := s.engine().AddWorktree(ctx, h.Repo(), req)
	if err != nil {
		return WorktreeResult{}, err
	}
	return s.worktreeResult(w), nil
}

func removeWorktree(ctx context.Context, s *session, args WorktreeRemoveArgs) (WorktreeResult, error) {
	req, err := options.NewWorktreeRemoveOptions(args.WorktreePath).Force(args.Force).Build()
	if err != nil {
		return WorktreeResult{}, err
	}

	h, release, err := s.write(args.Path)
	if err != nil {
		return WorktreeResult{}, err
	}
	defer release()

	w, err := s.engine().RemoveWorktree(ctx, h.Repo(), req)
	if err != nil {
		return WorktreeResult{}, err
	}
	return s.worktreeResult(w), nil
}

func listWorktrees(ctx context.Context, s *session, args PathArgs, yield func(Worktree) error) error {
	h, err := s.repo(args.Path)
	if err != nil {
		return err
	}
	defer h.Close()

	worktrees, err := s.engine().Worktrees(ctx, h.Repo())
	if err != nil {
		return err
	}
	for _, w := range worktrees {
		if err := yield(newWorktree(w)); err != nil {
			return err
		}
	}
	return nil
}

func lockWorktree(ctx context.Context, s *session, args WorktreeLockArgs) (WorktreeResult, error) {
	req, err := options.NewWorktreeLockOptions(args.WorktreePath).Reason(args.Reason).Build()
	if err != nil {
		return WorktreeResult{}, err
	}

	h, release, err := s.write(args.Path)
	if err != nil {
		return WorktreeResult{}, err
	}
	defer release()

	w, err := s.engine().LockWorktree(ctx, h.Repo(), req)
	if err != nil {
		return WorktreeResult{}, err
	}
	return s.worktreeResult(w), nil
}

func unlockWorktree(ctx context.Context, s *session, args WorktreeUnlockArgs) (WorktreeResult, error) {
	req, err := options.NewWorktreeUnlockOptions(args.WorktreePath).Build()
	if err != nil {
		return WorktreeResult{}, err
	}

	h, release, err := s.write(args.Path)
	if err != nil {
		return WorktreeResult{}, err
	}
	defer release()

	w, err := s.engine().UnlockWorktree(ctx, h.Repo(), req)
	if err != nil {
		return WorktreeResult{}, err
	}
	return s.worktreeResult(w), nil
}

func pruneWorktrees(ctx context.Context, s *session, args WorktreePruneArgs) (PruneResult, error) {
	req, err := options.NewWorktreePruneOptions().
		DryRun(args.DryRun).
		Expire(time.Duration(args.ExpireSeconds) * time.Second).
		Build()
	if err != nil {
		return PruneResult{}, err
	}

	h, release, err := s.write(args.Path)
	if err != nil {
		return PruneResult{}, err
	}
	defer release()

	pruned, err := s.engine().PruneWorktrees(ctx, h.Repo(), req)
	if err != nil {
		return PruneResult{}, err
	}

	out := make([]Pruned, 0, len(pruned))
	for _, p := range pruned {
		out = append(out, Pruned{Name: p.Name, Reason: p.Reason})
	}
	verb := "Pruned"
	if req.DryRun {
		verb = "Would prune"
	}
	return PruneResult{
		DryRun:  req.DryRun,
		Pruned:  out,
		Summary: s.summarize(map[string]any{"verb": verb, "count": strconv.Itoa(len(out))}),
	}, nil
}

func (s *session) worktreeResult(w gitengine.WorktreeInfo) WorktreeResult {
	return WorktreeResult{
		Worktree: newWorktree(w),
		Summary:  s.summarize(map[string]any{"path": w.Path, "head": shortHash(w.Head)}),
	}
}
