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

func TestDiffBetweenRevisions(t *testing.T) {
	e := newTestEngine(t)
	r := initRepo(t, e)
	ctx := context.Background()

	first := commitFiles(t, e, r, "first", map[string]string{"a.txt": "1\n2\n", "b.txt": "keep\n", "docs/old.md": "x\n"})
	require.NoError(t, os.Remove(filepath.Join(r.Root, "docs/old.md")))
	second := commitFiles(t, e, r, "second", map[string]string{"a.txt": "1\ntwo\n3\n", "c.txt": "new\n"})

	res, err := e.Diff(ctx, r, options.DiffRequest{From: first.Hash, To: second.Hash, Patch: true})
	require.NoError(t, err)
	assert.Equal(t, []FileDiff{
		{Path: "a.txt", Change: ChangeModified, Additions: 2, Deletions: 1},
		{Path: "c.txt", Change: ChangeAdded, Additions: 1},
		{Path: "docs/old.md", Change: ChangeDeleted, Deletions: 1},
	}, res.Files)
	assert.Equal(t, 3, res.Additions)
	assert.Equal(t, 2, res.Deletions)
	assert.Contains(t, res.Patch, "+two")

	res, err = e.Diff(ctx, r, options.DiffRequest{From: first.Hash, To: second.Hash, Paths: []string{"docs"}})
	require.NoError(t, err)
	require.Len(t, res.Files, 1)
	assert.Equal(t, "docs/old.md", res.Files[0].Path)
	assert.Empty(t, res.Patch)

	_, err = e.Diff(ctx, r, options.DiffRequest{From: "nope", To: second.Hash})
	assert.True(t, toolerr.IsKind(err, toolerr.KindNotFound), "got %v", err)
}

func TestDiffWorktreeAndIndex(t *testing.T) {
	requireGit(t)
	e := newTestEngine(t)
	r := initRepo(t, e)
	ctx := context.Background()

	commitFiles(t, e, r, "first", map[string]string{"a.txt": "1\n", "b.txt": "b\n"})
	writeFile(t, r, "a.txt", "1\n2\n")
	writeFile(t, r, "b.txt", "b\nstaged\n")
	_, err := e.Add(ctx, r, options.AddRequest{Paths: []string{"b.txt"}})
	require.NoError(t, err)

	res, err := e.Diff(ctx, r, options.DiffRequest{From: "HEAD", Patch: true})
	require.NoError(t, err)
	assert.Equal(t, DiffWorktree, res.To)
	assert.Equal(t, []FileDiff{
		{Path: "a.txt", Change: ChangeModified, Additions: 1},
		{Path: "b.txt", Change: ChangeModified, Additions: 1},
	}, res.Files)
	assert.Contains(t, res.Patch, "+2")

	res, err = e.Diff(ctx, r, options.DiffRequest{From: "HEAD", Staged: true})
	require.NoError(t, err)
	assert.Equal(t, DiffIndex, res.To)
	assert.Equal(t, []FileDiff{{Path: "b.txt", Change: ChangeModified, Additions: 1}}, res.Files)
}

func TestParseDiffOutput(t *testing.T) {
	assert.Equal(t, map[string]string{"a.txt": ChangeAdded, "b c.txt": ChangeModified, "d.txt": ChangeDeleted},
		parseNameStatus("A\x00a.txt\x00M\x00b c.txt\x00D\x00d.txt\x00"))

	assert.Equal(t, []FileDiff{
		{Path: "a.txt", Change: ChangeModified, Additions: 3, Deletions: 1},
		{Path: "img.png", Change: ChangeModified, Binary: true},
	}, parseNumstat("3\t1\ta.txt\x00-\t-\timg.png\x00"))

	assert.Empty(t, parseNumstat(""))
}

func TestMatchPaths(t *testing.T) {
	assert.True(t, matchPaths("a.txt", nil))
	assert.True(t, matchPaths("src/a.go", []string{"src"}))
	assert.True(t, matchPaths("src/a.go", []string{"./src/"}))
	assert.False(t, matchPaths("src2/a.go", []string{"src"}))
	assert.False(t, matchPaths("", nil))
}

func TestHistory(t *testing.T) {
	e := newTestEngine(t)
	r := initRepo(t, e)
	ctx := context.Background()

	added := commitFiles(t, e, r, "add a", map[string]string{"a.txt": "one\n"})
	commitFiles(t, e, r, "touch b", map[string]string{"b.txt": "b\n"})
	fixed := commitFiles(t, e, r, "fix a", map[string]string{"a.txt": "one\nfixed\n"})

	var got []HistoryEntry
	err := e.History(ctx, r, options.HistoryRequest{File: "a.txt"}, func(h HistoryEntry) error {
		got = append(got, h)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, fixed.Hash, got[0].Commit.Hash)
	assert.Equal(t, ChangeModified, got[0].Change)
	assert.Equal(t, 1, got[0].Additions)
	assert.Contains(t, got[0].Patch, "+fixed")
	assert.Equal(t, added.Hash, got[1].Commit.Hash)
	assert.Equal(t, ChangeAdded, got[1].Change)

	req, err := options.NewHistoryOptions("a.txt").Search("^\\+fixed").Build()
	require.NoError(t, err)
	got = nil
	err = e.History(ctx, r, req, func(h HistoryEntry) error {
		got = append(got, h)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 0)

	req, err = options.NewHistoryOptions("a.txt").Search("(?m)^\\+fixed$").MaxCount(5).Build()
	require.NoError(t, err)
	err = e.History(ctx, r, req, func(h HistoryEntry) error {
		got = append(got, h)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, fixed.Hash, got[0].Commit.Hash)
}

func TestHistoryStopsOnYieldError(t *testing.T) {
	e := newTestEngine(t)
	r := initRepo(t, e)
	commitFiles(t, e, r, "one", map[string]string{"a.txt": "1"})
	commitFiles(t, e, r, "two", map[string]string{"a.txt": "2"})

	stop := errors.New("stop")
	var n int
	err := e.History(context.Background(), r, options.HistoryRequest{File: "a.txt"}, func(HistoryEntry) error {
		n++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, n)
}

func TestHistoryOnUnbornHead(t *testing.T) {
	e := newTestEngine(t)
	r := initRepo(t, e)

	err := e.History(context.Background(), r, options.HistoryRequest{File: "a.txt"}, func(HistoryEntry) error {
		t.Fatal("unexpected entry")
		return nil
	})
	assert.NoError(t, err)
}
