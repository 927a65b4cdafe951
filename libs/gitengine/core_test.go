package gitengine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/gomantics/gitmcp/domains/options"
	"github.com/gomantics/gitmcp/domains/toolerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectLog(t *testing.T, e *Engine, r *Repo, req options.LogRequest) []CommitInfo {
	t.Helper()
	var commits []CommitInfo
	err := e.Log(context.Background(), r, req, func(c CommitInfo) error {
		commits = append(commits, c)
		return nil
	})
	require.NoError(t, err)
	return commits
}

func TestCommitAllOnEmptyTree(t *testing.T) {
	e := newTestEngine(t)
	r := initRepo(t, e)
	ctx := context.Background()

	req, err := options.NewCommitOptions("init").All(true).Build()
	require.NoError(t, err)

	c, err := e.Commit(ctx, r, req)
	require.NoError(t, err)
	assert.Equal(t, "init", c.Message)
	assert.Empty(t, c.Parents)
	assert.Equal(t, "Test", c.AuthorName)
	assert.True(t, c.AuthorWhen.Equal(testNow))

	commits := collectLog(t, e, r, options.LogRequest{})
	require.Len(t, commits, 1)
	assert.Equal(t, c.Hash, commits[0].Hash)
}

func TestCommitRejectsEmptyWhenDisallowed(t *testing.T) {
	e := newTestEngine(t)
	r := initRepo(t, e)
	commitFiles(t, e, r, "first", map[string]string{"a.txt": "a"})

	_, err := e.Commit(context.Background(), r, options.CommitRequest{Message: "again"})
	assert.True(t, toolerr.IsKind(err, toolerr.KindFailedPrecondition), "got %v", err)
}

func TestCommitPaths(t *testing.T) {
	e := newTestEngine(t)
	r := initRepo(t, e)

	writeFile(t, r, "a.txt", "a")
	writeFile(t, r, "b.txt", "b")

	c, err := e.Commit(context.Background(), r, options.CommitRequest{Message: "only a", Paths: []string{"a.txt"}})
	require.NoError(t, err)
	assert.Equal(t, "only a", c.Summary)

	st, err := e.Status(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, st.Files, 1)
	assert.Equal(t, FileStatus{Path: "b.txt", Staging: StatusUntracked, Worktree: StatusUntracked}, st.Files[0])
}

func TestLogPaging(t *testing.T) {
	e := newTestEngine(t)
	r := initRepo(t, e)

	var hashes []string
	for i, name := range []string{"a.txt", "b.txt", "docs/c.md"} {
		c := commitFiles(t, e, r, name, map[string]string{name: string(rune('a' + i))})
		hashes = append(hashes, c.Hash)
	}

	all := collectLog(t, e, r, options.LogRequest{})
	require.Len(t, all, 3)
	assert.Equal(t, hashes[2], all[0].Hash)
	assert.Equal(t, []string{hashes[1]}, all[0].Parents)

	page := collectLog(t, e, r, options.LogRequest{Skip: 1, MaxCount: 1})
	require.Len(t, page, 1)
	assert.Equal(t, hashes[1], page[0].Hash)

	docs := collectLog(t, e, r, options.LogRequest{PathFilter: "docs/"})
	require.Len(t, docs, 1)
	assert.Equal(t, hashes[2], docs[0].Hash)

	from := collectLog(t, e, r, options.LogRequest{From: hashes[1]})
	assert.Len(t, from, 2)
}

func TestLogUnbornHead(t *testing.T) {
	e := newTestEngine(t)
	r := initRepo(t, e)

	assert.Empty(t, collectLog(t, e, r, options.LogRequest{}))

	err := e.Log(context.Background(), r, options.LogRequest{From: "nope"}, func(CommitInfo) error { return nil })
	assert.True(t, toolerr.IsKind(err, toolerr.KindNotFound))
}

func TestLogStopsOnYieldError(t *testing.T) {
	e := newTestEngine(t)
	r := initRepo(t, e)
	commitFiles(t, e, r, "one", map[string]string{"a": "1"})
	commitFiles(t, e, r, "two", map[string]string{"a": "2"})

	stop := errors.New("stop")
	calls := 0
	err := e.Log(context.Background(), r, options.LogRequest{}, func(CommitInfo) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestLogHonoursCancellation(t *testing.T) {
	e := newTestEngine(t)
	r := initRepo(t, e)
	commitFiles(t, e, r, "one", map[string]string{"a": "1"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := e.Log(ctx, r, options.LogRequest{}, func(CommitInfo) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAddAndStatus(t *testing.T) {
	e := newTestEngine(t)
	r := initRepo(t, e)
	ctx := context.Background()

	st, err := e.Status(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, "main", st.Branch)
	assert.Empty(t, st.Head)
	assert.True(t, st.Clean)

	writeFile(t, r, "a.txt", "a")
	writeFile(t, r, "b.txt", "b")

	staged, err := e.Add(ctx, r, options.AddRequest{Paths: []string{"a.txt"}})
	require.NoError(t, err)
	require.Len(t, staged, 1)
	assert.Equal(t, "a.txt", staged[0].Path)
	assert.Equal(t, StatusAdded, staged[0].Staging)

	st, err = e.Status(ctx, r)
	require.NoError(t, err)
	assert.False(t, st.Clean)
	require.Len(t, st.Files, 2)
	assert.Equal(t, "a.txt", st.Files[0].Path)
	assert.Equal(t, "b.txt", st.Files[1].Path)
	assert.Equal(t, StatusUntracked, st.Files[1].Worktree)
}

func TestReset(t *testing.T) {
	e := newTestEngine(t)
	r := initRepo(t, e)
	ctx := context.Background()

	first := commitFiles(t, e, r, "first", map[string]string{"a.txt": "1"})
	commitFiles(t, e, r, "second", map[string]string{"a.txt": "2"})

	head, err := e.Reset(ctx, r, options.ResetRequest{Target: first.Hash, Mode: options.ResetHard})
	require.NoError(t, err)
	assert.Equal(t, first.Hash, head)

	data, err := os.ReadFile(filepath.Join(r.Root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))

	_, err = e.Reset(ctx, r, options.ResetRequest{Target: "does-not-exist", Mode: options.ResetMixed})
	assert.True(t, toolerr.IsKind(err, toolerr.KindNotFound))
}

func TestCheckout(t *testing.T) {
	e := newTestEngine(t)
	r := initRepo(t, e)
	ctx := context.Background()

	first := commitFiles(t, e, r, "first", map[string]string{"a.txt": "1"})

	res, err := e.Checkout(ctx, r, options.CheckoutRequest{Target: "feature", Create: true})
	require.NoError(t, err)
	assert.Equal(t, "feature", res.Branch)
	assert.False(t, res.Detached)

	_, err = e.Checkout(ctx, r, options.CheckoutRequest{Target: "feature", Create: true})
	assert.True(t, toolerr.IsKind(err, toolerr.KindAlreadyExists))

	commitFiles(t, e, r, "second", map[string]string{"a.txt": "2"})

	res, err = e.Checkout(ctx, r, options.CheckoutRequest{Target: first.Hash})
	require.NoError(t, err)
	assert.True(t, res.Detached)
	assert.Equal(t, first.Hash, res.Head)

	res, err = e.Checkout(ctx, r, options.CheckoutRequest{Target: "main"})
	require.NoError(t, err)
	assert.Equal(t, "main", res.Branch)
	assert.Equal(t, first.Hash, res.Head)

	_, err = e.Checkout(ctx, r, options.CheckoutRequest{Target: "missing"})
	assert.True(t, toolerr.IsKind(err, toolerr.KindNotFound))
}

func TestCheckoutRefusesLocalChanges(t *testing.T) {
	e := newTestEngine(t)
	r := initRepo(t, e)
	ctx := context.Background()

	first := commitFiles(t, e, r, "first", map[string]string{"a.txt": "1"})
	_, err := e.CreateBranch(ctx, r, options.BranchRequest{Name: "other"})
	require.NoError(t, err)
	second := commitFiles(t, e, r, "second", map[string]string{"a.txt": "2"})

	writeFile(t, r, "a.txt", "dirty")

	_, err = e.Checkout(ctx, r, options.CheckoutRequest{Target: "other"})
	assert.True(t, toolerr.IsKind(err, toolerr.KindFailedPrecondition), "got %v", err)

	st, err := e.Status(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, "main", st.Branch)
	assert.Equal(t, second.Hash, st.Head)

	res, err := e.Checkout(ctx, r, options.CheckoutRequest{Target: "other", Force: true})
	require.NoError(t, err)
	assert.Equal(t, "other", res.Branch)
	assert.Equal(t, first.Hash, res.Head)
}

func TestCheckoutKeepsLocalChangesOnSameCommit(t *testing.T) {
	e := newTestEngine(t)
	r := initRepo(t, e)
	ctx := context.Background()

	commitFiles(t, e, r, "first", map[string]string{"a.txt": "1"})
	_, err := e.CreateBranch(ctx, r, options.BranchRequest{Name: "other"})
	require.NoError(t, err)
	writeFile(t, r, "a.txt", "dirty")

	res, err := e.Checkout(ctx, r, options.CheckoutRequest{Target: "other"})
	require.NoError(t, err)
	assert.Equal(t, "other", res.Branch)

	st, err := e.Status(ctx, r)
	require.NoError(t, err)
	assert.False(t, st.Clean)
}

func TestCheckoutRestoresPathsFromHead(t *testing.T) {
	e := newTestEngine(t)
	r := initRepo(t, e)
	ctx := context.Background()

	commitFiles(t, e, r, "first", map[string]string{"a.txt": "1"})
	writeFile(t, r, "a.txt", "dirty")

	res, err := e.Checkout(ctx, r, options.CheckoutRequest{Paths: []string{"a.txt"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, res.Restored)
	assert.Equal(t, "main", res.Branch)

	data, err := os.ReadFile(filepath.Join(r.Root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))
}

func TestCheckoutRestoresPathsFromRevision(t *testing.T) {
	requireGit(t)
	e := newTestEngine(t)
	r := initRepo(t, e)
	ctx := context.Background()

	first := commitFiles(t, e, r, "first", map[string]string{"a.txt": "1"})
	commitFiles(t, e, r, "second", map[string]string{"a.txt": "2"})

	_, err := e.Checkout(ctx, r, options.CheckoutRequest{Target: first.Hash, Paths: []string{"a.txt"}})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(r.Root, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "1", string(data))
}
