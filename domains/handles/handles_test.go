package handles

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/gomantics/gitmcp/domains/options"
	"github.com/gomantics/gitmcp/domains/toolerr"
	"github.com/gomantics/gitmcp/libs/gitengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRegistry(t *testing.T, size int) *Registry {
	t.Helper()
	r := NewRegistry(zap.NewNop(), gitengine.New(zap.NewNop(), gitengine.Config{}), size)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func initRepo(t *testing.T, r *Registry) *Handle {
	t.Helper()
	h, err := r.Init(options.InitRequest{Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	return h
}

func TestHandleCloneSharesRepository(t *testing.T) {
	r := newTestRegistry(t, 4)
	h := initRepo(t, r)

	// registry reference + caller
	assert.Equal(t, int64(2), h.Refs())

	c := h.Clone()
	assert.True(t, h.Same(c))
	assert.True(t, h.Equivalent(c))
	assert.Equal(t, h.ID(), c.ID())
	assert.Same(t, h.Repo(), c.Repo())
	assert.Equal(t, int64(3), h.Refs())

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.True(t, c.Closed())
	assert.Equal(t, int64(2), h.Refs())
}

func TestHandleCloneOfClosedHandlePanics(t *testing.T) {
	r := newTestRegistry(t, 4)
	h := initRepo(t, r)

	c := h.Clone()
	require.NoError(t, c.Close())
	assert.Panics(t, func() { c.Clone() })
}

func TestHandleConcurrentCloneAndClose(t *testing.T) {
	r := newTestRegistry(t, 4)
	h := initRepo(t, r)
	before := h.Refs()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := h.Clone()
			_ = c.Root()
			_ = c.Close()
		}()
	}
	wg.Wait()

	assert.Equal(t, before, h.Refs())
}

func TestRegistryOpenReturnsSharedHandle(t *testing.T) {
	r := newTestRegistry(t, 4)
	h := initRepo(t, r)

	a, err := r.Open(h.Root())
	require.NoError(t, err)
	defer a.Close()

	b, err := r.Discover(filepath.Join(h.Root(), "."))
	require.NoError(t, err)
	defer b.Close()

	assert.True(t, a.Same(b))
	assert.True(t, a.Same(h))
	assert.Equal(t, 1, r.Len())
}

func TestRegistryDiscoverIsIdempotent(t *testing.T) {
	r := newTestRegistry(t, 4)
	h := initRepo(t, r)

	nested := filepath.Join(h.Root(), "src", "pkg")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	a, err := r.Discover(nested)
	require.NoError(t, err)
	defer a.Close()
	b, err := r.Discover(nested)
	require.NoError(t, err)
	defer b.Close()

	assert.Equal(t, h.Root(), a.Root())
	assert.True(t, a.Same(b))
	assert.True(t, a.Equivalent(b))
}

func TestRegistryErrors(t *testing.T) {
	r := newTestRegistry(t, 4)
	dir := t.TempDir()

	_, err := r.Open(filepath.Join(dir, "missing"))
	assert.True(t, toolerr.IsKind(err, toolerr.KindNotFound))

	_, err = r.Open(dir)
	assert.True(t, toolerr.IsKind(err, toolerr.KindNotARepository))

	h := initRepo(t, r)
	_, err = r.Init(options.InitRequest{Path: h.Root()})
	assert.True(t, toolerr.IsKind(err, toolerr.KindAlreadyExists), "got %v", err)

	assert.Equal(t, 1, r.Len())
}

func TestRegistryEvictionKeepsOutstandingHandles(t *testing.T) {
	r := newTestRegistry(t, 1)
	first := initRepo(t, r)
	assert.Equal(t, int64(2), first.Refs())

	second := initRepo(t, r)
	assert.Equal(t, 1, r.Len())

	// the registry dropped its reference to first; the caller's survives
	assert.Equal(t, int64(1), first.Refs())
	_, err := first.Repo().Git.Config()
	require.NoError(t, err)

	reopened, err := r.Open(first.Root())
	require.NoError(t, err)
	defer reopened.Close()
	assert.False(t, reopened.Same(first))
	assert.True(t, reopened.Equivalent(first))
	assert.Equal(t, int64(1), second.Refs())
}

func TestRegistryDropsDeletedRepositories(t *testing.T) {
	r := newTestRegistry(t, 4)
	h, err := r.Init(options.InitRequest{Path: t.TempDir()})
	require.NoError(t, err)
	root := h.Root()
	require.NoError(t, h.Close())

	require.NoError(t, os.RemoveAll(filepath.Join(root, ".git")))

	_, err = r.Open(root)
	assert.True(t, toolerr.IsKind(err, toolerr.KindNotARepository))
	assert.Equal(t, 0, r.Len())
}

func TestRegistryClose(t *testing.T) {
	r := newTestRegistry(t, 4)
	h := initRepo(t, r)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, int64(1), h.Refs())

	_, err := r.Open(h.Root())
	assert.ErrorIs(t, err, ErrRegistryClosed)
}

func TestWriteLease(t *testing.T) {
	r := newTestRegistry(t, 4)
	h := initRepo(t, r)
	other := h.Clone()
	defer other.Close()

	release, err := r.WriteLease("commit", h)
	require.NoError(t, err)

	_, err = r.WriteLease("branch_create", other)
	require.Error(t, err)
	te := toolerr.From(err)
	assert.Equal(t, toolerr.KindLocked, te.Kind)
	assert.True(t, te.Retryable)
	assert.Equal(t, "branch_create", te.Op)

	unrelated := initRepo(t, r)
	releaseUnrelated, err := r.WriteLease("commit", unrelated)
	require.NoError(t, err)
	releaseUnrelated()

	release()
	release()

	release, err = r.WriteLease("branch_create", other)
	require.NoError(t, err)
	release()
}

func TestRegistrySymlinkedPathSharesHandleAndLease(t *testing.T) {
	r := newTestRegistry(t, 4)
	h := initRepo(t, r)

	link := filepath.Join(t.TempDir(), "link")
	require.NoError(t, os.Symlink(h.Root(), link))

	viaLink, err := r.Open(link)
	require.NoError(t, err)
	defer viaLink.Close()

	assert.True(t, viaLink.Same(h))
	assert.True(t, viaLink.Equivalent(h))
	assert.Equal(t, h.Root(), viaLink.Root())
	assert.Equal(t, 1, r.Len())

	discovered, err := r.Discover(filepath.Join(link, "."))
	require.NoError(t, err)
	defer discovered.Close()
	assert.True(t, discovered.Same(h))

	release, err := r.WriteLease("commit", h)
	require.NoError(t, err)
	defer release()

	_, err = r.WriteLease("commit", viaLink)
	assert.True(t, toolerr.IsKind(err, toolerr.KindLocked))
}
