package tools

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gomantics/gitmcp/domains/executor"
	"github.com/gomantics/gitmcp/domains/handles"
	"github.com/gomantics/gitmcp/domains/toolerr"
	"github.com/gomantics/gitmcp/libs/gitengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fixture struct {
	d        *Dispatcher
	registry *handles.Registry
	exec     *executor.Executor
	dir      string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := zap.NewNop()

	engine := gitengine.New(l, gitengine.Config{AuthorName: "Test", AuthorEmail: "test@example.com"})
	registry := handles.NewRegistry(l, engine, 8)
	t.Cleanup(func() { _ = registry.Close() })

	exec := executor.New(l, executor.Config{Workers: 2, QueueSize: 4, LockRetries: 2, RetryDelay: time.Millisecond})
	t.Cleanup(exec.Shutdown)

	dir := t.TempDir()
	return &fixture{
		d:        NewDispatcher(l, NewCatalog(), engine, registry, exec, dir),
		registry: registry,
		exec:     exec,
		dir:      dir,
	}
}

func (f *fixture) call(t *testing.T, name string, args any) (*Outcome, error) {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return f.d.Dispatch(context.Background(), Call{Name: name, Arguments: raw})
}

func unary[R any](t *testing.T, f *fixture, name string, args any) R {
	t.Helper()
	out, err := f.call(t, name, args)
	require.NoError(t, err)
	require.Nil(t, out.Stream)
	res, ok := out.Result.(R)
	require.True(t, ok, "unexpected result type %T", out.Result)
	return res
}

func events(t *testing.T, out *Outcome) []executor.Event[any] {
	t.Helper()
	require.NotNil(t, out.Stream)
	var evs []executor.Event[any]
	for {
		ev, ok := out.Stream.Next()
		if !ok {
			return evs
		}
		evs = append(evs, ev)
	}
}

func (f *fixture) initRepo(t *testing.T, name string) string {
	t.Helper()
	res := unary[RepositoryResult](t, f, "git_init", map[string]any{"path": name})
	return res.Path
}

func (f *fixture) commit(t *testing.T, path, message string) Commit {
	t.Helper()
	res := unary[CommitResult](t, f, "git_commit", map[string]any{"path": path, "message": message, "all": true})
	return res.Commit
}

func TestDispatchRejectsInvalidArguments(t *testing.T) {
	tests := []struct {
		name  string
		tool  string
		raw   string
		field string
	}{
		{"unknown field", "git_commit", `{"path":"repo","message":"m","mesage":"typo"}`, ""},
		{"missing path", "git_commit", `{"message":"m"}`, "path"},
		{"missing url", "git_clone", `{"path":"dst"}`, "url"},
		{"wrong type", "git_log", `{"path":"repo","max_count":"ten"}`, ""},
		{"not an object", "git_status", `["repo"]`, ""},
		{"invalid json", "git_status", `{"path":`, ""},
		{"unknown tool", "git_bisect", `{"path":"repo"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			out, err := f.d.Dispatch(context.Background(), Call{Name: tt.tool, Arguments: json.RawMessage(tt.raw)})
			require.Error(t, err)
			assert.Nil(t, out)

			te := toolerr.From(err)
			assert.Equal(t, toolerr.KindInvalidArguments, te.Kind)
			assert.Equal(t, tt.field, te.Field)

			// nothing was opened or started
			assert.Equal(t, 0, f.registry.Len())
			assert.Equal(t, 0, f.exec.Active())
		})
	}
}

func TestDispatchUnknownFieldHasNoSideEffects(t *testing.T) {
	f := newFixture(t)

	_, err := f.call(t, "git_init", map[string]any{"path": "repo", "bare": false, "initial_brnach": "dev"})
	assert.True(t, toolerr.IsKind(err, toolerr.KindInvalidArguments))

	_, statErr := os.Stat(filepath.Join(f.dir, "repo"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestInitCommitLog(t *testing.T) {
	f := newFixture(t)
	path := f.initRepo(t, "repo")
	assert.Equal(t, filepath.Join(f.dir, "repo"), path)

	res := unary[CommitResult](t, f, "git_commit", map[string]any{
		"path":         "repo",
		"message":      "initial commit",
		"all":          true,
		"author_name":  "Ada",
		"author_email": "ada@example.com",
	})
	assert.Equal(t, "Committed "+res.Commit.ShortID+": initial commit", res.Summary)

	out, err := f.call(t, "git_log", map[string]any{"path": "repo"})
	require.NoError(t, err)
	assert.Equal(t, ModeStream, out.Mode)
	assert.NotEmpty(t, out.InvocationID)

	evs := events(t, out)
	require.Len(t, evs, 2)
	assert.Equal(t, executor.EventPartial, evs[0].Type)
	assert.Equal(t, executor.EventComplete, evs[1].Type)
	assert.False(t, evs[1].Cancelled)

	c, ok := evs[0].Item.(Commit)
	require.True(t, ok)
	assert.Equal(t, res.Commit.ID, c.ID)
	assert.Equal(t, "initial commit", c.Summary)
	assert.Equal(t, "Ada", c.Author.Name)
	assert.Equal(t, "ada@example.com", c.Author.Email)
	assert.Empty(t, c.Parents)

	_, more := out.Stream.Next()
	assert.False(t, more)
	assert.Equal(t, 0, f.exec.Active())
}

func TestBranchCreateTwice(t *testing.T) {
	f := newFixture(t)
	path := f.initRepo(t, "repo")
	head := f.commit(t, path, "initial")

	created := unary[BranchResult](t, f, "git_branch_create", map[string]any{"path": path, "branch": "feature"})
	assert.Equal(t, "feature", created.Branch.Name)
	assert.Equal(t, head.ID, created.Branch.Head)

	_, err := f.call(t, "git_branch_create", map[string]any{"path": path, "branch": "feature"})
	require.Error(t, err)
	assert.Equal(t, toolerr.KindAlreadyExists, toolerr.KindOf(err))

	out, err := f.call(t, "git_branch_list", map[string]any{"path": path})
	require.NoError(t, err)

	var branches []Branch
	for _, ev := range events(t, out) {
		if ev.Type == executor.EventPartial {
			branches = append(branches, ev.Item.(Branch))
		}
	}
	require.Len(t, branches, 2)
	assert.Equal(t, "feature", branches[0].Name)
	assert.Equal(t, head.ID, branches[0].Head)
	assert.False(t, branches[0].Current)
	assert.Equal(t, "main", branches[1].Name)
	assert.True(t, branches[1].Current)
}

func TestRepositoryNotFound(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, os.MkdirAll(filepath.Join(f.dir, "plain"), 0o755))

	_, err := f.call(t, "git_status", map[string]any{"path": "plain"})
	assert.Equal(t, toolerr.KindRepositoryNotFound, toolerr.KindOf(err))

	_, err = f.call(t, "git_commit", map[string]any{"path": "missing", "message": "m"})
	assert.Equal(t, toolerr.KindRepositoryNotFound, toolerr.KindOf(err))

	out, err := f.call(t, "git_log", map[string]any{"path": "plain"})
	require.NoError(t, err)
	evs := events(t, out)
	require.Len(t, evs, 1)
	assert.Equal(t, executor.EventError, evs[0].Type)
	assert.Equal(t, toolerr.KindRepositoryNotFound, evs[0].Err.Kind)
}

func TestInvalidOptionsBeforeOpening(t *testing.T) {
	f := newFixture(t)

	_, err := f.call(t, "git_commit", map[string]any{"path": "repo", "message": "m", "all": true, "paths": []string{"a.txt"}})
	require.Error(t, err)
	te := toolerr.From(err)
	assert.Equal(t, toolerr.KindInvalidOptions, te.Kind)
	assert.Equal(t, "paths", te.Field)
	assert.Equal(t, 0, f.registry.Len())
}

func TestWriteLeaseContention(t *testing.T) {
	f := newFixture(t)
	path := f.initRepo(t, "repo")

	h, err := f.registry.Open(path)
	require.NoError(t, err)
	defer h.Close()

	release, err := f.registry.WriteLease("test", h)
	require.NoError(t, err)

	_, err = f.call(t, "git_commit", map[string]any{"path": path, "message": "blocked"})
	te := toolerr.From(err)
	require.NotNil(t, te)
	assert.Equal(t, toolerr.KindLocked, te.Kind)
	assert.True(t, te.Retryable)

	// reads are not serialized
	st := unary[StatusResult](t, f, "git_status", map[string]any{"path": path})
	assert.True(t, st.Clean)

	release()
	f.commit(t, path, "unblocked")
}

func TestLogCancellationAfterItems(t *testing.T) {
	f := newFixture(t)
	path := f.initRepo(t, "repo")
	// more commits than the queue holds, so the producer is still blocked
	for i := range 12 {
		f.commit(t, path, "commit "+strconv.Itoa(i))
	}

	out, err := f.d.Dispatch(context.Background(), Call{
		Name:         "git_log",
		Arguments:    json.RawMessage(`{"path":"repo"}`),
		InvocationID: "log-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "log-1", out.InvocationID)

	for range 2 {
		ev, ok := out.Stream.Next()
		require.True(t, ok)
		require.Equal(t, executor.EventPartial, ev.Type)
	}
	assert.True(t, f.d.Cancel("log-1"))

	rest := events(t, out)
	require.Len(t, rest, 1)
	assert.Equal(t, executor.EventComplete, rest[0].Type)
	assert.True(t, rest[0].Cancelled)
}

func TestDuplicateInvocationID(t *testing.T) {
	f := newFixture(t)
	path := f.initRepo(t, "repo")
	for i := range 8 {
		f.commit(t, path, "commit "+strconv.Itoa(i))
	}

	call := Call{Name: "git_log", Arguments: json.RawMessage(`{"path":"repo"}`), InvocationID: "same"}
	first, err := f.d.Dispatch(context.Background(), call)
	require.NoError(t, err)

	_, err = f.d.Dispatch(context.Background(), call)
	assert.Equal(t, toolerr.KindInvalidArguments, toolerr.KindOf(err))

	events(t, first)
	second, err := f.d.Dispatch(context.Background(), call)
	require.NoError(t, err)
	events(t, second)
}

func TestStatusAddCheckoutReset(t *testing.T) {
	f := newFixture(t)
	path := f.initRepo(t, "repo")
	first := f.commit(t, path, "initial")

	require.NoError(t, os.WriteFile(filepath.Join(path, "a.txt"), []byte("a\n"), 0o644))

	st := unary[StatusResult](t, f, "git_status", map[string]any{"path": path})
	assert.False(t, st.Clean)
	assert.Equal(t, "main", st.Branch)
	require.Len(t, st.Files, 1)
	assert.Equal(t, "a.txt", st.Files[0].Path)
	assert.Equal(t, "untracked", st.Files[0].Worktree)

	added := unary[AddResult](t, f, "git_add", map[string]any{"path": path, "paths": []string{"a.txt"}})
	assert.Equal(t, "Staged 1 path(s)", added.Summary)

	second := unary[CommitResult](t, f, "git_commit", map[string]any{"path": path, "message": "add a"})
	assert.Equal(t, []string{first.ID}, second.Commit.Parents)

	co := unary[CheckoutResult](t, f, "git_checkout", map[string]any{"path": path, "target": "topic", "create": true})
	assert.Equal(t, "topic", co.Branch)
	assert.Equal(t, second.Commit.ID, co.Head)

	rs := unary[ResetResult](t, f, "git_reset", map[string]any{"path": path, "target": first.ID, "mode": "hard"})
	assert.Equal(t, first.ID, rs.Head)
	assert.Equal(t, "hard", rs.Mode)
	_, err := os.Stat(filepath.Join(path, "a.txt"))
	assert.True(t, os.IsNotExist(err))

	_, err = f.call(t, "git_reset", map[string]any{"path": path, "mode": "keep"})
	assert.Equal(t, toolerr.KindInvalidOptions, toolerr.KindOf(err))
}

func TestOpenAndDiscoverShareHandle(t *testing.T) {
	f := newFixture(t)
	path := f.initRepo(t, "repo")
	require.NoError(t, os.MkdirAll(filepath.Join(path, "src"), 0o755))

	opened := unary[RepositoryResult](t, f, "git_open", map[string]any{"path": path})
	found := unary[RepositoryResult](t, f, "git_discover", map[string]any{"path": "repo/src"})
	assert.Equal(t, opened.Path, found.Path)
	assert.Equal(t, opened.HandleID, found.HandleID)
	assert.Equal(t, 1, f.registry.Len())

	_, err := f.call(t, "git_open", map[string]any{"path": "repo/src"})
	assert.Equal(t, toolerr.KindNotARepository, toolerr.KindOf(err))
}

func TestRelativePathsUseCallWorkDir(t *testing.T) {
	f := newFixture(t)
	other := t.TempDir()

	raw := json.RawMessage(`{"path":"elsewhere"}`)
	out, err := f.d.Dispatch(context.Background(), Call{Name: "git_init", Arguments: raw, WorkDir: other})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(other, "elsewhere"), out.Result.(RepositoryResult).Path)

	s := &session{d: f.d, workDir: ""}
	assert.Equal(t, filepath.Join(f.dir, "x"), s.path("x"))
	assert.Equal(t, "/abs/path", s.path("/abs/path/."))
}

func TestCloneReportsProgressThenResult(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	f := newFixture(t)
	src := f.initRepo(t, "src")
	head := f.commit(t, src, "initial")

	out, err := f.call(t, "git_clone", map[string]any{"url": src, "path": "dst"})
	require.NoError(t, err)
	assert.Equal(t, ModeProgress, out.Mode)

	evs := events(t, out)
	require.GreaterOrEqual(t, len(evs), 2)
	for _, ev := range evs[:len(evs)-2] {
		assert.Equal(t, executor.EventProgress, ev.Type)
	}
	partial := evs[len(evs)-2]
	require.Equal(t, executor.EventPartial, partial.Type)
	assert.Equal(t, filepath.Join(f.dir, "dst"), partial.Item.(RepositoryResult).Path)
	assert.Equal(t, executor.EventComplete, evs[len(evs)-1].Type)

	logOut, err := f.call(t, "git_log", map[string]any{"path": "dst"})
	require.NoError(t, err)
	logEvents := events(t, logOut)
	require.Len(t, logEvents, 2)
	assert.Equal(t, head.ID, logEvents[0].Item.(Commit).ID)
}

func TestDiffHistoryTag(t *testing.T) {
	f := newFixture(t)
	path := f.initRepo(t, "repo")

	require.NoError(t, os.WriteFile(filepath.Join(path, "a.txt"), []byte("one\n"), 0o644))
	first := f.commit(t, path, "add a")
	require.NoError(t, os.WriteFile(filepath.Join(path, "a.txt"), []byte("one\ntwo\n"), 0o644))
	second := f.commit(t, path, "extend a")

	d := unary[DiffResult](t, f, "git_diff", map[string]any{"path": path, "from": first.ID, "to": second.ID, "patch": true})
	require.Len(t, d.Files, 1)
	assert.Equal(t, FileDiff{Path: "a.txt", Change: "modified", Additions: 1}, d.Files[0])
	assert.Contains(t, d.Patch, "+two")
	assert.Equal(t, first.ID+".."+second.ID+": 1 file(s), +1 -0", d.Summary)

	out, err := f.call(t, "git_history", map[string]any{"path": path, "file": "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, ModeStream, out.Mode)
	var entries []HistoryEntry
	for _, ev := range events(t, out) {
		if ev.Type == executor.EventPartial {
			entries = append(entries, ev.Item.(HistoryEntry))
		}
	}
	require.Len(t, entries, 2)
	assert.Equal(t, second.ID, entries[0].Commit.ID)
	assert.Equal(t, "modified", entries[0].Change)
	assert.Equal(t, first.ID, entries[1].Commit.ID)
	assert.Equal(t, "added", entries[1].Change)

	created := unary[TagResult](t, f, "git_tag", map[string]any{"path": path, "operation": "create", "name": "v1", "message": "first"})
	require.Len(t, created.Tags, 1)
	assert.Equal(t, second.ID, created.Tags[0].Target)
	assert.True(t, created.Tags[0].Annotated)
	require.NotNil(t, created.Tags[0].Tagger)
	assert.Equal(t, "Tags: created v1 at "+second.ShortID, created.Summary)

	_, err = f.call(t, "git_tag", map[string]any{"path": path, "operation": "create", "name": "v1"})
	assert.Equal(t, toolerr.KindAlreadyExists, toolerr.KindOf(err))

	listed := unary[TagResult](t, f, "git_tag", map[string]any{"path": path})
	assert.Equal(t, "list", listed.Operation)
	require.Len(t, listed.Tags, 1)
	assert.Equal(t, "v1", listed.Tags[0].Name)

	_, err = f.call(t, "git_tag", map[string]any{"path": path, "operation": "list", "name": "v1"})
	assert.Equal(t, toolerr.KindInvalidOptions, toolerr.KindOf(err))
}

func TestStashSaveListPop(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	f := newFixture(t)
	path := f.initRepo(t, "repo")
	require.NoError(t, os.WriteFile(filepath.Join(path, "a.txt"), []byte("one\n"), 0o644))
	f.commit(t, path, "add a")

	require.NoError(t, os.WriteFile(filepath.Join(path, "a.txt"), []byte("changed\n"), 0o644))
	saved := unary[StashResult](t, f, "git_stash", map[string]any{"path": path, "message": "wip"})
	require.Len(t, saved.Entries, 1)
	assert.Equal(t, "stash@{0}", saved.Entries[0].Name)

	st := unary[StatusResult](t, f, "git_status", map[string]any{"path": path})
	assert.True(t, st.Clean)

	listed := unary[StashResult](t, f, "git_stash", map[string]any{"path": path, "operation": "list"})
	assert.Equal(t, saved.Entries, listed.Entries)
	assert.Equal(t, "Stash: 1 stash entries", listed.Summary)

	unary[StashResult](t, f, "git_stash", map[string]any{"path": path, "operation": "pop"})
	b, err := os.ReadFile(filepath.Join(path, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "changed\n", string(b))

	_, err = f.call(t, "git_stash", map[string]any{"path": path, "operation": "pop"})
	assert.Equal(t, toolerr.KindNotFound, toolerr.KindOf(err))
}

func TestPushReportsProgressThenResult(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
	f := newFixture(t)
	remote := unary[RepositoryResult](t, f, "git_init", map[string]any{"path": "remote.git", "bare": true})
	path := f.initRepo(t, "repo")
	head := f.commit(t, path, "initial")
	unary[RemoteResult](t, f, "git_remote_add", map[string]any{"path": path, "name": "origin", "url": remote.Path})

	out, err := f.call(t, "git_push", map[string]any{"path": path})
	require.NoError(t, err)
	assert.Equal(t, ModeProgress, out.Mode)

	evs := events(t, out)
	require.GreaterOrEqual(t, len(evs), 2)
	partial := evs[len(evs)-2]
	require.Equal(t, executor.EventPartial, partial.Type)
	res := partial.Item.(PushResult)
	assert.Equal(t, "origin", res.Remote)
	assert.False(t, res.UpToDate)
	assert.Equal(t, []string{"refs/heads/main:refs/heads/main"}, res.RefSpecs)
	assert.Equal(t, executor.EventComplete, evs[len(evs)-1].Type)

	logOut, err := f.call(t, "git_log", map[string]any{"path": remote.Path})
	require.NoError(t, err)
	logEvents := events(t, logOut)
	require.Len(t, logEvents, 2)
	assert.Equal(t, head.ID, logEvents[0].Item.(Commit).ID)
}
