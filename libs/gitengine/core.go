package gitengine

import (
	"context"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/gomantics/gitmcp/domains/options"
	"github.com/gomantics/gitmcp/domains/toolerr"
	"go.uber.org/zap"
)

// Commit records the staged tree (after staging req.Paths or, with req.All,
// every tracked modification) on HEAD.
func (e *Engine) Commit(ctx context.Context, r *Repo, req options.CommitRequest) (CommitInfo, error) {
	if err := ctx.Err(); err != nil {
		return CommitInfo{}, classify("commit", r.Root, err)
	}

	wt, err := e.worktree("commit", r)
	if err != nil {
		return CommitInfo{}, err
	}

	for _, p := range req.Paths {
		if _, err := wt.Add(p); err != nil {
			return CommitInfo{}, classify("commit", r.Root, err)
		}
	}

	author := e.signature(req.Author)
	committer := author
	if req.Committer != nil {
		committer = e.signature(req.Committer)
	}

	hash, err := wt.Commit(req.Message, &git.CommitOptions{
		All:               req.All,
		AllowEmptyCommits: req.AllowEmpty,
		Author:            author,
		Committer:         committer,
	})
	if err != nil {
		return CommitInfo{}, classify("commit", r.Root, err)
	}

	c, err := r.Git.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, classify("commit", r.Root, err)
	}

	e.l.Debug("commit created", zap.String("path", r.Root), zap.String("hash", hash.String()))
	return newCommitInfo(c), nil
}

// Add stages paths and returns the staged entries afterwards.
func (e *Engine) Add(ctx context.Context, r *Repo, req options.AddRequest) ([]FileStatus, error) {
	wt, err := e.worktree("add", r)
	if err != nil {
		return nil, err
	}

	if req.All {
		if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
			return nil, classify("add", r.Root, err)
		}
	} else {
		for _, p := range req.Paths {
			if err := ctx.Err(); err != nil {
				return nil, classify("add", r.Root, err)
			}
			if _, err := wt.Add(p); err != nil {
				return nil, classify("add", r.Root, err)
			}
		}
	}

	st, err := e.Status(ctx, r)
	if err != nil {
		return nil, err
	}

	staged := make([]FileStatus, 0, len(st.Files))
	for _, f := range st.Files {
		if f.Staging != StatusUnmodified && f.Staging != StatusUntracked {
			staged = append(staged, f)
		}
	}
	return staged, nil
}

// FileStatus is the state of one path in the index and the worktree.
type FileStatus struct {
	Path     string
	Staging  string
	Worktree string
}

// Status names reported for index and worktree states.
const (
	StatusUnmodified = "unmodified"
	StatusUntracked  = "untracked"
	StatusModified   = "modified"
	StatusAdded      = "added"
	StatusDeleted    = "deleted"
	StatusRenamed    = "renamed"
	StatusCopied     = "copied"
	StatusUnmerged   = "unmerged"
)

func statusName(c git.StatusCode) string {
	switch c {
	case git.Untracked:
		return StatusUntracked
	case git.Modified:
		return StatusModified
	case git.Added:
		return StatusAdded
	case git.Deleted:
		return StatusDeleted
	case git.Renamed:
		return StatusRenamed
	case git.Copied:
		return StatusCopied
	case git.UpdatedButUnmerged:
		return StatusUnmerged
	default:
		return StatusUnmodified
	}
}

// StatusInfo summarizes HEAD and the worktree.
type StatusInfo struct {
	Branch   string
	Head     string
	Detached bool
	Clean    bool
	Files    []FileStatus
}

// Status reports the current branch and every changed path, sorted by path.
func (e *Engine) Status(ctx context.Context, r *Repo) (StatusInfo, error) {
	if err := ctx.Err(); err != nil {
		return StatusInfo{}, classify("status", r.Root, err)
	}

	info, err := headInfo(r)
	if err != nil {
		return StatusInfo{}, classify("status", r.Root, err)
	}

	wt, err := e.worktree("status", r)
	if err != nil {
		return StatusInfo{}, err
	}

	st, err := wt.Status()
	if err != nil {
		return StatusInfo{}, classify("status", r.Root, err)
	}

	info.Clean = st.IsClean()
	for path, fs := range st {
		if fs.Staging == git.Unmodified && fs.Worktree == git.Unmodified {
			continue
		}
		info.Files = append(info.Files, FileStatus{
			Path:     path,
			Staging:  statusName(fs.Staging),
			Worktree: statusName(fs.Worktree),
		})
	}
	sort.Slice(info.Files, func(i, j int) bool { return info.Files[i].Path < info.Files[j].Path })

	return info, nil
}

func headInfo(r *Repo) (StatusInfo, error) {
	var info StatusInfo

	branch, err := headBranch(r)
	if err != nil {
		return info, err
	}
	info.Branch = branch.Short()
	info.Detached = branch == ""

	head, err := r.Git.Head()
	switch {
	case err == nil:
		info.Head = head.Hash().String()
	case err == plumbing.ErrReferenceNotFound:
	default:
		return info, err
	}
	return info, nil
}

var resetModes = map[options.ResetMode]git.ResetMode{
	options.ResetSoft:  git.SoftReset,
	options.ResetMixed: git.MixedReset,
	options.ResetHard:  git.HardReset,
}

// Reset moves HEAD (and the current branch) to req.Target.
func (e *Engine) Reset(ctx context.Context, r *Repo, req options.ResetRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", classify("reset", r.Root, err)
	}

	wt, err := e.worktree("reset", r)
	if err != nil {
		return "", err
	}

	hash, err := resolve("reset", r, req.Target)
	if err != nil {
		return "", err
	}

	if err := wt.Reset(&git.ResetOptions{Commit: hash, Mode: resetModes[req.Mode]}); err != nil {
		return "", classify("reset", r.Root, err)
	}
	return hash.String(), nil
}

// CheckoutResult describes HEAD after a checkout.
type CheckoutResult struct {
	Branch   string
	Head     string
	Detached bool
	Restored []string
}

// Checkout switches branches or detaches HEAD. With paths it restores files
// from the target instead and leaves HEAD alone.
func (e *Engine) Checkout(ctx context.Context, r *Repo, req options.CheckoutRequest) (CheckoutResult, error) {
	if err := ctx.Err(); err != nil {
		return CheckoutResult{}, classify("checkout", r.Root, err)
	}

	wt, err := e.worktree("checkout", r)
	if err != nil {
		return CheckoutResult{}, err
	}

	if len(req.Paths) > 0 {
		return e.restorePaths(ctx, r, wt, req)
	}

	opts := &git.CheckoutOptions{Force: req.Force}
	local := plumbing.NewBranchReferenceName(req.Target)

	switch {
	case req.Create:
		if _, err := r.Git.Storer.Reference(local); err == nil {
			return CheckoutResult{}, toolerr.New(toolerr.KindAlreadyExists, "branch %q already exists", req.Target).WithOp("checkout", r.Root)
		}
		opts.Branch = local
		opts.Create = true
	case refExists(r, local):
		opts.Branch = local
	case refExists(r, plumbing.NewRemoteReferenceName(options.DefaultRemote, req.Target)):
		remote, err := r.Git.Reference(plumbing.NewRemoteReferenceName(options.DefaultRemote, req.Target), true)
		if err != nil {
			return CheckoutResult{}, classify("checkout", r.Root, err)
		}
		opts.Branch = local
		opts.Create = true
		opts.Hash = remote.Hash()
	default:
		hash, err := resolve("checkout", r, req.Target)
		if err != nil {
			return CheckoutResult{}, err
		}
		opts.Hash = hash
	}

	switch {
	case opts.Force:
	case opts.Create && opts.Hash.IsZero(), sameCommitAsHead(r, opts):
		// switching without moving the commit keeps index and worktree as they are
		opts.Keep = true
	default:
		// go-git moves HEAD before it notices local changes
		if err := requireCleanTracked(wt); err != nil {
			return CheckoutResult{}, classify("checkout", r.Root, err)
		}
	}

	if err := wt.Checkout(opts); err != nil {
		return CheckoutResult{}, classify("checkout", r.Root, err)
	}

	info, err := headInfo(r)
	if err != nil {
		return CheckoutResult{}, classify("checkout", r.Root, err)
	}
	return CheckoutResult{Branch: info.Branch, Head: info.Head, Detached: info.Detached}, nil
}

func (e *Engine) restorePaths(ctx context.Context, r *Repo, wt *git.Worktree, req options.CheckoutRequest) (CheckoutResult, error) {
	if req.Target == "" || req.Target == "HEAD" {
		err := wt.Restore(&git.RestoreOptions{Staged: true, Worktree: true, Files: req.Paths})
		if err != nil {
			return CheckoutResult{}, classify("checkout", r.Root, err)
		}
	} else {
		// go-git only restores from HEAD
		args := append([]string{"checkout", req.Target, "--"}, req.Paths...)
		if _, err := e.run(ctx, "checkout", r.Root, nil, args...); err != nil {
			return CheckoutResult{}, err
		}
	}

	info, err := headInfo(r)
	if err != nil {
		return CheckoutResult{}, classify("checkout", r.Root, err)
	}
	return CheckoutResult{
		Branch:   info.Branch,
		Head:     info.Head,
		Detached: info.Detached,
		Restored: append([]string(nil), req.Paths...),
	}, nil
}

func sameCommitAsHead(r *Repo, opts *git.CheckoutOptions) bool {
	head, err := r.Git.Head()
	if err != nil {
		return false
	}
	target := opts.Hash
	if target.IsZero() {
		ref, err := r.Git.Storer.Reference(opts.Branch)
		if err != nil {
			return false
		}
		target = ref.Hash()
	}
	return target == head.Hash()
}

func refExists(r *Repo, name plumbing.ReferenceName) bool {
	_, err := r.Git.Storer.Reference(name)
	return err == nil
}
