package gitengine

import (
	"context"
	"errors"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/gomantics/gitmcp/domains/options"
	"github.com/gomantics/gitmcp/domains/toolerr"
	"go.uber.org/zap"
)

// BranchInfo describes a local branch.
type BranchInfo struct {
	Name     string
	Head     string
	Current  bool
	Upstream string
}

// Branches calls yield for every local branch, sorted by name.
func (e *Engine) Branches(ctx context.Context, r *Repo, yield func(BranchInfo) error) error {
	current, err := headBranch(r)
	if err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound) {
		return classify("branch_list", r.Root, err)
	}

	cfg, err := r.Git.Config()
	if err != nil {
		return classify("branch_list", r.Root, err)
	}

	iter, err := r.Git.Branches()
	if err != nil {
		return classify("branch_list", r.Root, err)
	}

	var branches []BranchInfo
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		b := BranchInfo{
			Name:    ref.Name().Short(),
			Head:    ref.Hash().String(),
			Current: ref.Name() == current,
		}
		if bc, ok := cfg.Branches[b.Name]; ok && bc.Remote != "" && bc.Merge != "" {
			b.Upstream = bc.Remote + "/" + bc.Merge.Short()
		}
		branches = append(branches, b)
		return nil
	})
	if err != nil {
		return classify("branch_list", r.Root, err)
	}

	sort.Slice(branches, func(i, j int) bool { return branches[i].Name < branches[j].Name })

	for _, b := range branches {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := yield(b); err != nil {
			return err
		}
	}
	return nil
}

// CreateBranch creates req.Name at req.From (HEAD when empty). The ref write
// is a compare-and-swap against the state observed before the write.
func (e *Engine) CreateBranch(ctx context.Context, r *Repo, req options.BranchRequest) (BranchInfo, error) {
	if err := ctx.Err(); err != nil {
		return BranchInfo{}, classify("branch_create", r.Root, err)
	}

	name := plumbing.NewBranchReferenceName(req.Name)

	existing, err := r.Git.Storer.Reference(name)
	switch {
	case err == nil && !req.Force:
		return BranchInfo{}, toolerr.New(toolerr.KindAlreadyExists, "branch %q already exists", req.Name).WithOp("branch_create", r.Root)
	case err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound):
		return BranchInfo{}, classify("branch_create", r.Root, err)
	case err != nil:
		existing = nil
	}

	current, err := headBranch(r)
	if err != nil {
		return BranchInfo{}, classify("branch_create", r.Root, err)
	}
	if existing != nil && current == name {
		return BranchInfo{}, toolerr.New(toolerr.KindFailedPrecondition, "cannot force-update the current branch %q", req.Name).WithOp("branch_create", r.Root)
	}

	from := req.From
	if from == "" {
		from = "HEAD"
	}
	hash, err := resolve("branch_create", r, from)
	if err != nil {
		if from == "HEAD" {
			return BranchInfo{}, toolerr.New(toolerr.KindFailedPrecondition, "HEAD has no commits yet").WithOp("branch_create", r.Root)
		}
		return BranchInfo{}, err
	}

	if req.Checkout {
		// refuse before the ref exists so a failed switch leaves no branch behind
		if head, err := r.Git.Head(); err != nil || head.Hash() != hash {
			wt, err := e.worktree("branch_create", r)
			if err != nil {
				return BranchInfo{}, err
			}
			if err := requireCleanTracked(wt); err != nil {
				return BranchInfo{}, classify("branch_create", r.Root, err)
			}
		}
	}

	ref := plumbing.NewHashReference(name, hash)
	if err := r.Git.Storer.CheckAndSetReference(ref, existing); err != nil {
		return BranchInfo{}, classify("branch_create", r.Root, err)
	}

	if existing == nil {
		// CheckAndSetReference skips the check without an old value; a
		// concurrent writer may have won the race.
		if got, err := r.Git.Storer.Reference(name); err == nil && got.Hash() != hash {
			return BranchInfo{}, toolerr.New(toolerr.KindConflict, "branch %q changed concurrently", req.Name).
				WithOp("branch_create", r.Root).AsRetryable(true)
		}
	}

	e.l.Debug("branch created", zap.String("path", r.Root), zap.String("branch", req.Name))

	if req.Checkout {
		if _, err := e.Checkout(ctx, r, options.CheckoutRequest{Target: req.Name}); err != nil {
			e.restoreBranch(r, ref, existing)
			return BranchInfo{}, err
		}
	}

	return BranchInfo{
		Name:    req.Name,
		Head:    hash.String(),
		Current: req.Checkout || current == name,
	}, nil
}

// restoreBranch puts a branch back to existing (nil removes it) unless
// another writer moved it since written was stored.
func (e *Engine) restoreBranch(r *Repo, written, existing *plumbing.Reference) {
	var err error
	if existing != nil {
		err = r.Git.Storer.CheckAndSetReference(existing, written)
	} else if cur, lookupErr := r.Git.Storer.Reference(written.Name()); lookupErr == nil && cur.Hash() == written.Hash() {
		err = r.Git.Storer.RemoveReference(written.Name())
	}
	if err != nil {
		e.l.Warn("failed to restore branch after checkout failure",
			zap.String("path", r.Root),
			zap.String("branch", written.Name().Short()),
			zap.Error(err),
		)
	}
}

// DeleteBranch removes a local branch. The current branch is never deleted
// and unmerged branches require Force.
func (e *Engine) DeleteBranch(ctx context.Context, r *Repo, req options.BranchDeleteRequest) (BranchInfo, error) {
	if err := ctx.Err(); err != nil {
		return BranchInfo{}, classify("branch_delete", r.Root, err)
	}

	name := plumbing.NewBranchReferenceName(req.Name)
	ref, err := r.Git.Storer.Reference(name)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return BranchInfo{}, toolerr.New(toolerr.KindNotFound, "branch %q not found", req.Name).WithOp("branch_delete", r.Root)
	}
	if err != nil {
		return BranchInfo{}, classify("branch_delete", r.Root, err)
	}

	current, err := headBranch(r)
	if err != nil {
		return BranchInfo{}, classify("branch_delete", r.Root, err)
	}
	if current == name {
		return BranchInfo{}, toolerr.New(toolerr.KindFailedPrecondition, "cannot delete the current branch %q", req.Name).WithOp("branch_delete", r.Root)
	}

	if !req.Force {
		merged, err := isMergedIntoHead(r, ref.Hash())
		if err != nil {
			return BranchInfo{}, classify("branch_delete", r.Root, err)
		}
		if !merged {
			return BranchInfo{}, toolerr.New(toolerr.KindFailedPrecondition, "branch %q is not fully merged", req.Name).WithOp("branch_delete", r.Root)
		}
	}

	if err := r.Git.Storer.RemoveReference(name); err != nil {
		return BranchInfo{}, classify("branch_delete", r.Root, err)
	}
	if err := r.Git.DeleteBranch(req.Name); err != nil && !errors.Is(err, git.ErrBranchNotFound) {
		return BranchInfo{}, classify("branch_delete", r.Root, err)
	}

	e.l.Debug("branch deleted", zap.String("path", r.Root), zap.String("branch", req.Name))
	return BranchInfo{Name: req.Name, Head: ref.Hash().String()}, nil
}

// RenameBranch moves a branch, its configuration and HEAD when it points at it.
func (e *Engine) RenameBranch(ctx context.Context, r *Repo, req options.BranchRenameRequest) (BranchInfo, error) {
	if err := ctx.Err(); err != nil {
		return BranchInfo{}, classify("branch_rename", r.Root, err)
	}

	oldName := plumbing.NewBranchReferenceName(req.OldName)
	newName := plumbing.NewBranchReferenceName(req.NewName)

	oldRef, err := r.Git.Storer.Reference(oldName)
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return BranchInfo{}, toolerr.New(toolerr.KindNotFound, "branch %q not found", req.OldName).WithOp("branch_rename", r.Root)
	}
	if err != nil {
		return BranchInfo{}, classify("branch_rename", r.Root, err)
	}

	target, err := r.Git.Storer.Reference(newName)
	switch {
	case err == nil && !req.Force:
		return BranchInfo{}, toolerr.New(toolerr.KindAlreadyExists, "branch %q already exists", req.NewName).WithOp("branch_rename", r.Root)
	case err != nil && !errors.Is(err, plumbing.ErrReferenceNotFound):
		return BranchInfo{}, classify("branch_rename", r.Root, err)
	case err != nil:
		target = nil
	}

	current, err := headBranch(r)
	if err != nil {
		return BranchInfo{}, classify("branch_rename", r.Root, err)
	}
	if target != nil && current == newName {
		return BranchInfo{}, toolerr.New(toolerr.KindFailedPrecondition, "cannot overwrite the current branch %q", req.NewName).WithOp("branch_rename", r.Root)
	}

	if err := r.Git.Storer.CheckAndSetReference(plumbing.NewHashReference(newName, oldRef.Hash()), target); err != nil {
		return BranchInfo{}, classify("branch_rename", r.Root, err)
	}
	if current == oldName {
		if err := r.Git.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, newName)); err != nil {
			return BranchInfo{}, classify("branch_rename", r.Root, err)
		}
	}

	if err := r.Git.Storer.RemoveReference(oldName); err != nil {
		return BranchInfo{}, classify("branch_rename", r.Root, err)
	}

	if err := renameBranchConfig(r, req.OldName, req.NewName); err != nil {
		return BranchInfo{}, classify("branch_rename", r.Root, err)
	}

	return BranchInfo{
		Name:    req.NewName,
		Head:    oldRef.Hash().String(),
		Current: current == oldName,
	}, nil
}

func renameBranchConfig(r *Repo, oldName, newName string) error {
	cfg, err := r.Git.Config()
	if err != nil {
		return err
	}
	bc, ok := cfg.Branches[oldName]
	if !ok {
		return nil
	}
	delete(cfg.Branches, oldName)
	cfg.Branches[newName] = &config.Branch{
		Name:        newName,
		Remote:      bc.Remote,
		Merge:       bc.Merge,
		Rebase:      bc.Rebase,
		Description: bc.Description,
	}
	return r.Git.SetConfig(cfg)
}

func isMergedIntoHead(r *Repo, hash plumbing.Hash) (bool, error) {
	head, err := r.Git.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if head.Hash() == hash {
		return true, nil
	}

	branchCommit, err := r.Git.CommitObject(hash)
	if err != nil {
		return false, err
	}
	headCommit, err := r.Git.CommitObject(head.Hash())
	if err != nil {
		return false, err
	}
	return branchCommit.IsAncestor(headCommit)
}
