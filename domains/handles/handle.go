// Package handles owns opened repositories and shares them between callers
// through reference-counted handles.
package handles

import (
	"sync"
	"sync/atomic"

	"github.com/gomantics/gitmcp/libs/gitengine"
)

var nextID atomic.Uint64

// shared is the state every clone of a handle points to.
type shared struct {
	repo *gitengine.Repo
	id   uint64
	refs atomic.Int64

	once     sync.Once
	closeErr error
}

// Handle is one reference to an opened repository. Clones share the
// repository; it is released when the last clone is closed.
type Handle struct {
	s      *shared
	closed atomic.Bool
}

func newHandle(repo *gitengine.Repo) *Handle {
	s := &shared{repo: repo, id: nextID.Add(1)}
	s.refs.Store(1)
	return &Handle{s: s}
}

// Repo returns the engine repository. It must not be used after Close.
func (h *Handle) Repo() *gitengine.Repo {
	return h.s.repo
}

// ID identifies the underlying repository instance. Clones share an ID.
func (h *Handle) ID() uint64 {
	return h.s.id
}

func (h *Handle) Root() string {
	return h.s.repo.Root
}

func (h *Handle) GitDir() string {
	return h.s.repo.GitDir
}

// CommonDir is the git directory shared by all worktrees of the repository.
func (h *Handle) CommonDir() string {
	return h.s.repo.CommonDir
}

func (h *Handle) Bare() bool {
	return h.s.repo.Bare
}

// Clone returns another reference to the same repository. It never touches
// the filesystem. Cloning a closed handle panics.
func (h *Handle) Clone() *Handle {
	if h.closed.Load() {
		panic("handles: Clone of closed handle")
	}
	h.s.refs.Add(1)
	return &Handle{s: h.s}
}

// Close releases this reference. The second and later calls are no-ops.
func (h *Handle) Close() error {
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	if h.s.refs.Add(-1) > 0 {
		return nil
	}
	h.s.once.Do(func() {
		h.s.closeErr = h.s.repo.Close()
	})
	return h.s.closeErr
}

// Closed reports whether Close was called on this handle.
func (h *Handle) Closed() bool {
	return h.closed.Load()
}

// Refs returns the number of open references to the repository.
func (h *Handle) Refs() int64 {
	return h.s.refs.Load()
}

// Same reports whether h and other are clones of one another.
func (h *Handle) Same(other *Handle) bool {
	return other != nil && h.s == other.s
}

// Equivalent reports whether h and other refer to the same repository root,
// even when opened independently.
func (h *Handle) Equivalent(other *Handle) bool {
	return other != nil && h.Root() == other.Root()
}
