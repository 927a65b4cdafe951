package gitengine

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/gomantics/gitmcp/domains/options"
	"github.com/gomantics/gitmcp/domains/toolerr"
	"go.uber.org/zap"
)

// RefUpdate is one reference changed by a fetch. Old is empty for new refs
// and New is empty for pruned ones.
type RefUpdate struct {
	Name string
	Old  string
	New  string
}

// FetchResult lists the references a fetch changed.
type FetchResult struct {
	Remote   string
	UpToDate bool
	Updated  []RefUpdate
}

// Fetch downloads objects and refs from req.Remote.
func (e *Engine) Fetch(ctx context.Context, r *Repo, req options.FetchRequest, progress ProgressFunc) (FetchResult, error) {
	remote, err := r.Git.Remote(req.Remote)
	if errors.Is(err, git.ErrRemoteNotFound) {
		return FetchResult{}, toolerr.New(toolerr.KindNotFound, "remote %q not found", req.Remote).WithOp("fetch", r.Root)
	}
	if err != nil {
		return FetchResult{}, classify("fetch", r.Root, err)
	}

	var url string
	if urls := remote.Config().URLs; len(urls) > 0 {
		url = urls[0]
	}

	before, err := snapshotRefs(r)
	if err != nil {
		return FetchResult{}, classify("fetch", r.Root, err)
	}

	opts := &git.FetchOptions{
		RemoteName: req.Remote,
		RefSpecs:   req.RefSpecs,
		Depth:      req.Depth,
		Auth:       e.creds.For(url),
		Force:      req.Force,
		Prune:      req.Prune,
		Tags:       git.TagFollowing,
	}
	if req.Tags {
		opts.Tags = git.AllTags
	}
	if progress != nil {
		opts.Progress = newProgressWriter(progress)
	}

	e.l.Info("fetching", zap.String("path", r.Root), zap.String("remote", req.Remote))

	err = r.Git.FetchContext(ctx, opts)
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return FetchResult{Remote: req.Remote, UpToDate: true}, nil
	}
	if err != nil {
		return FetchResult{}, classify("fetch", r.Root, err)
	}

	after, err := snapshotRefs(r)
	if err != nil {
		return FetchResult{}, classify("fetch", r.Root, err)
	}

	res := FetchResult{Remote: req.Remote, Updated: diffRefs(before, after)}
	res.UpToDate = len(res.Updated) == 0
	return res, nil
}

func snapshotRefs(r *Repo) (map[string]string, error) {
	iter, err := r.Git.References()
	if err != nil {
		return nil, err
	}
	refs := make(map[string]string)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() == plumbing.HashReference {
			refs[ref.Name().String()] = ref.Hash().String()
		}
		return nil
	})
	return refs, err
}

func diffRefs(before, after map[string]string) []RefUpdate {
	var updates []RefUpdate
	for name, h := range after {
		if old := before[name]; old != h {
			updates = append(updates, RefUpdate{Name: name, Old: old, New: h})
		}
	}
	for name, h := range before {
		if _, ok := after[name]; !ok {
			updates = append(updates, RefUpdate{Name: name, Old: h})
		}
	}
	sort.Slice(updates, func(i, j int) bool { return updates[i].Name < updates[j].Name })
	return updates
}

// Merge outcomes.
const (
	MergeUpToDate    = "already_up_to_date"
	MergeFastForward = "fast_forward"
	MergeCommit      = "merge_commit"
	MergeStaged      = "merge_staged"
)

// MergeResult describes how a merge resolved.
type MergeResult struct {
	Type   string
	Commit string
}

// Merge merges req.Branch into the current branch. Fast-forwards are done
// in-process with a compare-and-swap on the branch ref; true merges run the
// git binary and are aborted on conflict.
func (e *Engine) Merge(ctx context.Context, r *Repo, req options.MergeRequest) (MergeResult, error) {
	if err := ctx.Err(); err != nil {
		return MergeResult{}, classify("merge", r.Root, err)
	}

	wt, err := e.worktree("merge", r)
	if err != nil {
		return MergeResult{}, err
	}

	target, err := resolve("merge", r, req.Branch)
	if err != nil {
		return MergeResult{}, err
	}

	branch, err := headBranch(r)
	if err != nil {
		return MergeResult{}, classify("merge", r.Root, err)
	}
	refName := branch
	if refName == "" {
		refName = plumbing.HEAD
	}

	var old *plumbing.Reference
	head, err := r.Git.Head()
	switch {
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		// unborn branch: the merge is a fast-forward onto target
	case err != nil:
		return MergeResult{}, classify("merge", r.Root, err)
	default:
		old = plumbing.NewHashReference(refName, head.Hash())

		rel, err := relate(r, head.Hash(), target)
		if err != nil {
			return MergeResult{}, classify("merge", r.Root, err)
		}
		if rel == relUpToDate {
			return MergeResult{Type: MergeUpToDate, Commit: head.Hash().String()}, nil
		}
		if rel == relDiverged || req.FastForward == options.FastForwardNever {
			if req.FastForward == options.FastForwardOnly {
				return MergeResult{}, toolerr.New(toolerr.KindFailedPrecondition, "not possible to fast-forward %q", req.Branch).WithOp("merge", r.Root)
			}
			return e.mergeCLI(ctx, r, req)
		}
	}

	if err := requireCleanTracked(wt); err != nil {
		return MergeResult{}, classify("merge", r.Root, err)
	}

	if err := r.Git.Storer.CheckAndSetReference(plumbing.NewHashReference(refName, target), old); err != nil {
		return MergeResult{}, classify("merge", r.Root, err)
	}
	if err := wt.Reset(&git.ResetOptions{Commit: target, Mode: git.HardReset}); err != nil {
		return MergeResult{}, classify("merge", r.Root, err)
	}

	e.l.Debug("fast-forwarded", zap.String("path", r.Root), zap.String("to", target.String()))
	return MergeResult{Type: MergeFastForward, Commit: target.String()}, nil
}

type relation int

const (
	relUpToDate relation = iota
	relFastForward
	relDiverged
)

func relate(r *Repo, head, target plumbing.Hash) (relation, error) {
	if head == target {
		return relUpToDate, nil
	}

	headCommit, err := r.Git.CommitObject(head)
	if err != nil {
		return 0, err
	}
	targetCommit, err := r.Git.CommitObject(target)
	if err != nil {
		return 0, err
	}

	if ok, err := targetCommit.IsAncestor(headCommit); err != nil {
		return 0, err
	} else if ok {
		return relUpToDate, nil
	}
	if ok, err := headCommit.IsAncestor(targetCommit); err != nil {
		return 0, err
	} else if ok {
		return relFastForward, nil
	}
	return relDiverged, nil
}

// requireCleanTracked fails when tracked files have staged or unstaged changes.
func requireCleanTracked(wt *git.Worktree) error {
	st, err := wt.Status()
	if err != nil {
		return err
	}
	for _, fs := range st {
		if fs.Staging == git.Untracked && fs.Worktree == git.Untracked {
			continue
		}
		if fs.Staging != git.Unmodified || fs.Worktree != git.Unmodified {
			return git.ErrWorktreeNotClean
		}
	}
	return nil
}

func (e *Engine) mergeCLI(ctx context.Context, r *Repo, req options.MergeRequest) (MergeResult, error) {
	args := []string{"merge", "--no-edit"}
	if req.FastForward == options.FastForwardNever {
		args = append(args, "--no-ff")
	}
	if !req.AutoCommit {
		args = append(args, "--no-commit")
	}
	if req.Message != "" {
		args = append(args, "-m", req.Message)
	}
	args = append(args, req.Branch)

	author := e.signature(req.Author)
	out, err := e.run(ctx, "merge", r.Root, signatureEnv(author, author), args...)
	if err != nil {
		conflicts := parseConflicts(out)
		if len(conflicts) == 0 {
			return MergeResult{}, err
		}
		if _, abortErr := e.run(context.WithoutCancel(ctx), "merge", r.Root, nil, "merge", "--abort"); abortErr != nil {
			e.l.Warn("failed to abort merge", zap.String("path", r.Root), zap.Error(abortErr))
		}
		ce := toolerr.Wrap(toolerr.KindConflict, err, "merge conflict in %s", strings.Join(conflicts, ", ")).WithOp("merge", r.Root)
		ce.Reason = "conflicting paths: " + strings.Join(conflicts, ", ")
		return MergeResult{}, ce.AsRetryable(false)
	}

	head, err := r.Git.Head()
	if err != nil {
		return MergeResult{}, classify("merge", r.Root, err)
	}
	if !req.AutoCommit {
		return MergeResult{Type: MergeStaged, Commit: head.Hash().String()}, nil
	}

	c, err := r.Git.CommitObject(head.Hash())
	if err != nil {
		return MergeResult{}, classify("merge", r.Root, err)
	}
	if c.NumParents() > 1 {
		return MergeResult{Type: MergeCommit, Commit: c.Hash.String()}, nil
	}
	return MergeResult{Type: MergeFastForward, Commit: c.Hash.String()}, nil
}

// parseConflicts extracts paths from "CONFLICT (content): Merge conflict in <path>".
func parseConflicts(out string) []string {
	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if !strings.HasPrefix(line, "CONFLICT") {
			continue
		}
		if _, p, ok := strings.Cut(line, "Merge conflict in "); ok {
			paths = append(paths, strings.TrimSpace(p))
			continue
		}
		if _, rest, ok := strings.Cut(line, "): "); ok {
			paths = append(paths, strings.TrimSpace(rest))
		}
	}
	return paths
}

// PullResult combines the fetch and the merge of a pull.
type PullResult struct {
	Fetch    FetchResult
	Merge    MergeResult
	Upstream string
}

// Pull fetches req.Fetch.Remote and merges the upstream of the branch.
func (e *Engine) Pull(ctx context.Context, r *Repo, req options.PullRequest, progress ProgressFunc) (PullResult, error) {
	branch := req.Branch
	if branch == "" {
		current, err := headBranch(r)
		if err != nil {
			return PullResult{}, classify("pull", r.Root, err)
		}
		if current == "" {
			return PullResult{}, toolerr.New(toolerr.KindFailedPrecondition, "HEAD is detached").WithOp("pull", r.Root)
		}
		branch = current.Short()
	}

	fetched, err := e.Fetch(ctx, r, req.Fetch, progress)
	if err != nil {
		return PullResult{}, err
	}

	upstream := plumbing.NewRemoteReferenceName(req.Fetch.Remote, branch)
	if cfg, err := r.Git.Config(); err == nil {
		if bc, ok := cfg.Branches[branch]; ok && bc.Merge != "" && bc.Remote == req.Fetch.Remote {
			upstream = plumbing.NewRemoteReferenceName(req.Fetch.Remote, bc.Merge.Short())
		}
	}
	if !refExists(r, upstream) {
		return PullResult{}, toolerr.New(toolerr.KindNotFound, "no upstream %q for branch %q", upstream.Short(), branch).WithOp("pull", r.Root)
	}

	merged, err := e.Merge(ctx, r, options.MergeRequest{
		Branch:      upstream.String(),
		FastForward: req.FastForward,
		AutoCommit:  req.AutoCommit,
		Message:     "Merge remote-tracking branch '" + upstream.Short() + "'",
		Author:      req.Author,
	})
	if err != nil {
		return PullResult{}, err
	}

	return PullResult{Fetch: fetched, Merge: merged, Upstream: upstream.Short()}, nil
}

// PushResult describes a push. RefSpecs lists what was sent, after the
// current branch default and tag expansion were applied.
type PushResult struct {
	Remote   string
	UpToDate bool
	RefSpecs []string
}

// Push sends refs to req.Remote. Without refspecs the current branch is
// pushed to the remote branch of the same name.
func (e *Engine) Push(ctx context.Context, r *Repo, req options.PushRequest, progress ProgressFunc) (PushResult, error) {
	remote, err := r.Git.Remote(req.Remote)
	if errors.Is(err, git.ErrRemoteNotFound) {
		return PushResult{}, toolerr.New(toolerr.KindNotFound, "remote %q not found", req.Remote).WithOp("push", r.Root)
	}
	if err != nil {
		return PushResult{}, classify("push", r.Root, err)
	}

	var url string
	if urls := remote.Config().URLs; len(urls) > 0 {
		url = urls[len(urls)-1]
	}

	// go-git rewrites the refspecs in place when forcing
	specs := slices.Clone(req.RefSpecs)
	if len(specs) == 0 {
		branch, err := headBranch(r)
		if err != nil {
			return PushResult{}, classify("push", r.Root, err)
		}
		if branch == "" {
			return PushResult{}, toolerr.New(toolerr.KindFailedPrecondition, "HEAD is detached").WithOp("push", r.Root)
		}
		specs = append(specs, config.RefSpec(branch.String()+":"+branch.String()))
	}
	if req.Tags {
		specs = append(specs, config.RefSpec("refs/tags/*:refs/tags/*"))
	}

	res := PushResult{Remote: req.Remote}
	for _, spec := range specs {
		res.RefSpecs = append(res.RefSpecs, spec.String())
	}

	opts := &git.PushOptions{
		RemoteName: req.Remote,
		RefSpecs:   specs,
		Auth:       e.creds.For(url),
		Force:      req.Force,
	}
	if progress != nil {
		opts.Progress = newProgressWriter(progress)
	}

	e.l.Info("pushing", zap.String("path", r.Root), zap.String("remote", req.Remote), zap.Strings("refspecs", res.RefSpecs))

	err = r.Git.PushContext(ctx, opts)
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		res.UpToDate = true
		return res, nil
	}
	if err != nil {
		return PushResult{}, classify("push", r.Root, err)
	}
	return res, nil
}

// RemoteInfo describes a configured remote.
type RemoteInfo struct {
	Name  string
	URLs  []string
	Fetch []string
}

// Remotes lists the configured remotes, sorted by name.
func (e *Engine) Remotes(ctx context.Context, r *Repo) ([]RemoteInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, classify("remote_list", r.Root, err)
	}

	remotes, err := r.Git.Remotes()
	if err != nil {
		return nil, classify("remote_list", r.Root, err)
	}

	infos := make([]RemoteInfo, 0, len(remotes))
	for _, rm := range remotes {
		infos = append(infos, newRemoteInfo(rm.Config()))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

func newRemoteInfo(c *config.RemoteConfig) RemoteInfo {
	info := RemoteInfo{Name: c.Name, URLs: append([]string(nil), c.URLs...)}
	for _, spec := range c.Fetch {
		info.Fetch = append(info.Fetch, spec.String())
	}
	return info
}

// AddRemote configures a remote. With Force an existing remote is replaced.
func (e *Engine) AddRemote(ctx context.Context, r *Repo, req options.RemoteAddRequest) (RemoteInfo, error) {
	if err := ctx.Err(); err != nil {
		return RemoteInfo{}, classify("remote_add", r.Root, err)
	}

	if req.Force {
		if err := r.Git.DeleteRemote(req.Name); err != nil && !errors.Is(err, git.ErrRemoteNotFound) {
			return RemoteInfo{}, classify("remote_add", r.Root, err)
		}
	}

	rm, err := r.Git.CreateRemote(&config.RemoteConfig{Name: req.Name, URLs: []string{req.URL}})
	if errors.Is(err, git.ErrRemoteExists) {
		return RemoteInfo{}, toolerr.New(toolerr.KindAlreadyExists, "remote %q already exists", req.Name).WithOp("remote_add", r.Root)
	}
	if err != nil {
		return RemoteInfo{}, classify("remote_add", r.Root, err)
	}
	return newRemoteInfo(rm.Config()), nil
}

// RemoveRemote deletes a remote and its remote-tracking refs.
func (e *Engine) RemoveRemote(ctx context.Context, r *Repo, req options.RemoteRemoveRequest) (RemoteInfo, error) {
	if err := ctx.Err(); err != nil {
		return RemoteInfo{}, classify("remote_remove", r.Root, err)
	}

	rm, err := r.Git.Remote(req.Name)
	if errors.Is(err, git.ErrRemoteNotFound) {
		return RemoteInfo{}, toolerr.New(toolerr.KindNotFound, "remote %q not found", req.Name).WithOp("remote_remove", r.Root)
	}
	if err != nil {
		return RemoteInfo{}, classify("remote_remove", r.Root, err)
	}
	info := newRemoteInfo(rm.Config())

	if err := r.Git.DeleteRemote(req.Name); err != nil {
		return RemoteInfo{}, classify("remote_remove", r.Root, err)
	}

	refs, err := snapshotRefs(r)
	if err != nil {
		return RemoteInfo{}, classify("remote_remove", r.Root, err)
	}
	prefix := "refs/remotes/" + req.Name + "/"
	for name := range refs {
		if strings.HasPrefix(name, prefix) {
			if err := r.Git.Storer.RemoveReference(plumbing.ReferenceName(name)); err != nil {
				return RemoteInfo{}, classify("remote_remove", r.Root, err)
			}
		}
	}
	return info, nil
}
