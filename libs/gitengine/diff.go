package gitengine

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	fdiff "github.com/go-git/go-git/v5/plumbing/format/diff"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/gomantics/gitmcp/domains/options"
)

// Change kinds of a file in a diff.
const (
	ChangeAdded    = "added"
	ChangeDeleted  = "deleted"
	ChangeModified = "modified"
	ChangeRenamed  = "renamed"
)

// FileDiff is the change made to one file. OldPath is only set for renames.
type FileDiff struct {
	Path      string
	OldPath   string
	Change    string
	Additions int
	Deletions int
	Binary    bool
}

// DiffResult lists the changed files of a diff, sorted by path.
type DiffResult struct {
	From      string
	To        string
	Files     []FileDiff
	Additions int
	Deletions int
	Patch     string
}

// Diff targets reported when a diff does not end at a revision.
const (
	DiffWorktree = "worktree"
	DiffIndex    = "index"
)

// Diff compares req.From with req.To. Two revisions are compared in-process;
// the index and the working tree are compared through the git binary since
// go-git cannot diff them. Untracked files are not part of a diff.
func (e *Engine) Diff(ctx context.Context, r *Repo, req options.DiffRequest) (DiffResult, error) {
	if err := ctx.Err(); err != nil {
		return DiffResult{}, classify("diff", r.Root, err)
	}

	from, err := resolve("diff", r, req.From)
	if err != nil {
		return DiffResult{}, err
	}

	if req.To == "" {
		return e.diffWorktree(ctx, r, req, from)
	}

	to, err := resolve("diff", r, req.To)
	if err != nil {
		return DiffResult{}, err
	}

	fromTree, err := commitTree(r, from)
	if err != nil {
		return DiffResult{}, classify("diff", r.Root, err)
	}
	toTree, err := commitTree(r, to)
	if err != nil {
		return DiffResult{}, classify("diff", r.Root, err)
	}

	patch, err := treePatch(ctx, fromTree, toTree, func(p string) bool { return matchPaths(p, req.Paths) })
	if err != nil {
		return DiffResult{}, classify("diff", r.Root, err)
	}

	res := DiffResult{From: req.From, To: req.To}
	for _, fp := range patch.FilePatches() {
		res.add(newFileDiff(fp))
	}
	if req.Patch {
		var sb strings.Builder
		if err := patch.Encode(&sb); err != nil {
			return DiffResult{}, classify("diff", r.Root, err)
		}
		res.Patch = sb.String()
	}
	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })
	return res, nil
}

func (e *Engine) diffWorktree(ctx context.Context, r *Repo, req options.DiffRequest, from plumbing.Hash) (DiffResult, error) {
	if r.Bare {
		return DiffResult{}, classify("diff", r.Root, git.ErrIsBareRepository)
	}

	res := DiffResult{From: req.From, To: DiffWorktree}
	base := []string{"diff", "--no-color", "--no-ext-diff", "--no-renames"}
	if req.Staged {
		base = append(base, "--cached")
		res.To = DiffIndex
	}
	pathspec := append([]string{from.String(), "--"}, req.Paths...)

	args := func(extra ...string) []string {
		out := append(append([]string{}, base...), extra...)
		return append(out, pathspec...)
	}

	status, err := e.run(ctx, "diff", r.Root, nil, args("--name-status", "-z")...)
	if err != nil {
		return DiffResult{}, err
	}
	numstat, err := e.run(ctx, "diff", r.Root, nil, args("--numstat", "-z")...)
	if err != nil {
		return DiffResult{}, err
	}

	changes := parseNameStatus(status)
	for _, fd := range parseNumstat(numstat) {
		if c, ok := changes[fd.Path]; ok {
			fd.Change = c
		}
		res.add(fd)
	}

	if req.Patch {
		patch, err := e.run(ctx, "diff", r.Root, nil, args()...)
		if err != nil {
			return DiffResult{}, err
		}
		res.Patch = patch
	}
	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })
	return res, nil
}

func (d *DiffResult) add(fd FileDiff) {
	d.Files = append(d.Files, fd)
	d.Additions += fd.Additions
	d.Deletions += fd.Deletions
}

// parseNameStatus reads `git diff --name-status -z` output.
func parseNameStatus(out string) map[string]string {
	changes := make(map[string]string)
	fields := strings.Split(out, "\x00")
	for i := 0; i+1 < len(fields); i += 2 {
		code, path := fields[i], fields[i+1]
		if code == "" {
			continue
		}
		switch code[0] {
		case 'A':
			changes[path] = ChangeAdded
		case 'D':
			changes[path] = ChangeDeleted
		default:
			changes[path] = ChangeModified
		}
	}
	return changes
}

// parseNumstat reads `git diff --numstat -z` output. Binary files report
// "-" for both counts.
func parseNumstat(out string) []FileDiff {
	var files []FileDiff
	for _, rec := range strings.Split(out, "\x00") {
		parts := strings.SplitN(rec, "\t", 3)
		if len(parts) != 3 {
			continue
		}
		fd := FileDiff{Path: parts[2], Change: ChangeModified}
		if parts[0] == "-" && parts[1] == "-" {
			fd.Binary = true
		} else {
			fd.Additions, _ = strconv.Atoi(parts[0])
			fd.Deletions, _ = strconv.Atoi(parts[1])
		}
		files = append(files, fd)
	}
	return files
}

func newFileDiff(fp fdiff.FilePatch) FileDiff {
	from, to := fp.Files()
	fd := FileDiff{Binary: fp.IsBinary()}
	switch {
	case from == nil:
		fd.Path, fd.Change = to.Path(), ChangeAdded
	case to == nil:
		fd.Path, fd.Change = from.Path(), ChangeDeleted
	case from.Path() != to.Path():
		fd.Path, fd.OldPath, fd.Change = to.Path(), from.Path(), ChangeRenamed
	default:
		fd.Path, fd.Change = to.Path(), ChangeModified
	}

	for _, chunk := range fp.Chunks() {
		n := countLines(chunk.Content())
		switch chunk.Type() {
		case fdiff.Add:
			fd.Additions += n
		case fdiff.Delete:
			fd.Deletions += n
		}
	}
	return fd
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

// treePatch diffs two trees, either of which may be nil, keeping the changes
// whose old or new path satisfies keep.
func treePatch(ctx context.Context, from, to *object.Tree, keep func(string) bool) (*object.Patch, error) {
	changes, err := object.DiffTreeWithOptions(ctx, from, to, object.DefaultDiffTreeOptions)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}

	kept := make(object.Changes, 0, len(changes))
	for _, c := range changes {
		if keep(c.From.Name) || keep(c.To.Name) {
			kept = append(kept, c)
		}
	}

	patch, err := kept.PatchContext(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return patch, nil
}

func commitTree(r *Repo, h plumbing.Hash) (*object.Tree, error) {
	c, err := r.Git.CommitObject(h)
	if err != nil {
		return nil, err
	}
	return c.Tree()
}

// matchPaths reports whether p is one of paths or lies below one of them.
// No paths matches everything.
func matchPaths(p string, paths []string) bool {
	if p == "" {
		return false
	}
	if len(paths) == 0 {
		return true
	}
	for _, want := range paths {
		want = strings.TrimSuffix(strings.TrimPrefix(want, "./"), "/")
		if want == "" || want == "." || p == want || strings.HasPrefix(p, want+"/") {
			return true
		}
	}
	return false
}

// HistoryEntry is a commit that changed a file, with the diff it made to it.
type HistoryEntry struct {
	Commit    CommitInfo
	Path      string
	Change    string
	Additions int
	Deletions int
	Patch     string
}

// History walks the commits that changed req.File, newest first, calling
// yield with each one and its diff against its first parent. Commits whose
// diff does not match req.Search are skipped. The walk stops when yield
// returns an error, which History then returns.
func (e *Engine) History(ctx context.Context, r *Repo, req options.HistoryRequest, yield func(HistoryEntry) error) error {
	opts := &git.LogOptions{
		PathFilter: func(p string) bool { return p == req.File },
	}
	if req.From != "" {
		hash, err := resolve("history", r, req.From)
		if err != nil {
			return err
		}
		opts.From = hash
	}

	iter, err := r.Git.Log(opts)
	if errors.Is(err, plumbing.ErrReferenceNotFound) && req.From == "" {
		return nil
	}
	if err != nil {
		return classify("history", r.Root, err)
	}
	defer iter.Close()

	keep := func(p string) bool { return p == req.File }

	var sent int
	var stopErr error
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			stopErr = err
			return storer.ErrStop
		}
		if req.MaxCount > 0 && sent >= req.MaxCount {
			return storer.ErrStop
		}

		entry, ok, err := historyEntry(ctx, c, keep)
		if err != nil {
			stopErr = classify("history", r.Root, err)
			return storer.ErrStop
		}
		if !ok || (req.Search != nil && !req.Search.MatchString(entry.Patch)) {
			return nil
		}

		sent++
		if err := yield(entry); err != nil {
			stopErr = err
			return storer.ErrStop
		}
		return nil
	})

	if stopErr != nil {
		return stopErr
	}
	if err != nil {
		return classify("history", r.Root, err)
	}
	return nil
}

func historyEntry(ctx context.Context, c *object.Commit, keep func(string) bool) (HistoryEntry, bool, error) {
	tree, err := c.Tree()
	if err != nil {
		return HistoryEntry{}, false, err
	}

	var parentTree *object.Tree
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return HistoryEntry{}, false, err
		}
		if parentTree, err = parent.Tree(); err != nil {
			return HistoryEntry{}, false, err
		}
	}

	patch, err := treePatch(ctx, parentTree, tree, keep)
	if err != nil {
		return HistoryEntry{}, false, err
	}
	fps := patch.FilePatches()
	if len(fps) == 0 {
		return HistoryEntry{}, false, nil
	}

	var sb strings.Builder
	if err := patch.Encode(&sb); err != nil {
		return HistoryEntry{}, false, err
	}

	entry := HistoryEntry{Commit: newCommitInfo(c), Patch: sb.String()}
	for _, fp := range fps {
		fd := newFileDiff(fp)
		entry.Path, entry.Change = fd.Path, fd.Change
		entry.Additions += fd.Additions
		entry.Deletions += fd.Deletions
	}
	return entry, true, nil
}
