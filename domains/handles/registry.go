package handles

import (
	"context"
	"errors"
	"os"
	"sync"

	"github.com/golang/groupcache/lru"
	"github.com/gomantics/gitmcp/config"
	"github.com/gomantics/gitmcp/domains/options"
	"github.com/gomantics/gitmcp/domains/toolerr"
	"github.com/gomantics/gitmcp/libs/gitengine"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrRegistryClosed = errors.New("handle registry is closed")

// Registry caches one handle per repository root and hands out clones of
// it. The registry owns one reference per entry and releases it when the
// entry is evicted.
type Registry struct {
	l      *zap.Logger
	engine *gitengine.Engine

	mu     sync.Mutex
	cache  *lru.Cache
	closed bool

	leaseMu sync.Mutex
	leases  map[string]*sync.Mutex
}

// NewRegistry creates a registry holding at most size repositories.
func NewRegistry(l *zap.Logger, engine *gitengine.Engine, size int) *Registry {
	r := &Registry{
		l:      l,
		engine: engine,
		cache:  lru.New(max(size, 1)),
		leases: make(map[string]*sync.Mutex),
	}
	r.cache.OnEvicted = func(key lru.Key, value any) {
		h := value.(*Handle)
		if err := h.Close(); err != nil {
			r.l.Warn("failed to close evicted repository", zap.String("root", h.Root()), zap.Error(err))
		}
	}
	return r
}

// NewFromConfig creates the registry and closes it when the application stops.
func NewFromConfig(lc fx.Lifecycle, l *zap.Logger, engine *gitengine.Engine) *Registry {
	r := NewRegistry(l, engine, int(config.Handles.CacheSize()))
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return r.Close()
		},
	})
	return r
}

// Open returns a handle for the repository rooted at path.
func (r *Registry) Open(path string) (*Handle, error) {
	root, err := gitengine.Canonical(path)
	if err != nil {
		return nil, toolerr.Wrap(toolerr.KindIO, err, "failed to resolve path").WithOp("open", path)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, toolerr.Wrap(toolerr.KindEngine, ErrRegistryClosed, "registry closed").WithOp("open", root)
	}

	if h, ok := r.lookup(root); ok {
		return h.Clone(), nil
	}

	repo, err := r.engine.Open(root)
	if err != nil {
		return nil, err
	}
	return r.insert(repo), nil
}

// Discover returns a handle for the repository containing start.
func (r *Registry) Discover(start string) (*Handle, error) {
	root, err := r.engine.Locate(start)
	if err != nil {
		return nil, err
	}
	return r.Open(root)
}

// Init creates a repository and returns a handle to it.
func (r *Registry) Init(req options.InitRequest) (*Handle, error) {
	repo, err := r.engine.Init(req)
	if err != nil {
		return nil, err
	}
	return r.adopt(repo)
}

// Clone clones a remote repository and returns a handle to it.
func (r *Registry) Clone(ctx context.Context, req options.CloneRequest, progress gitengine.ProgressFunc) (*Handle, error) {
	repo, err := r.engine.Clone(ctx, req, progress)
	if err != nil {
		return nil, err
	}
	return r.adopt(repo)
}

func (r *Registry) adopt(repo *gitengine.Repo) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		_ = repo.Close()
		return nil, toolerr.Wrap(toolerr.KindEngine, ErrRegistryClosed, "registry closed").WithOp("open", repo.Root)
	}

	// a cached entry for this root belongs to a repository that was replaced on disk
	r.cache.Remove(repo.Root)
	return r.insert(repo), nil
}

// lookup returns the cached handle for root if its git directory still exists.
func (r *Registry) lookup(root string) (*Handle, bool) {
	v, ok := r.cache.Get(root)
	if !ok {
		return nil, false
	}
	h := v.(*Handle)
	if _, err := os.Stat(h.GitDir()); err != nil {
		r.l.Debug("dropping stale repository", zap.String("root", root))
		r.cache.Remove(root)
		return nil, false
	}
	return h, true
}

// insert caches a new handle for repo and returns a clone for the caller.
// r.mu must be held.
func (r *Registry) insert(repo *gitengine.Repo) *Handle {
	h := newHandle(repo)
	r.cache.Add(repo.Root, h)
	return h.Clone()
}

// Forget drops the cached entry for root. Outstanding handles stay valid.
func (r *Registry) Forget(root string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Remove(root)
}

// Len returns the number of cached repositories.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache.Len()
}

// Close releases the registry's references. Handles already given out stay
// usable until they are closed.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.cache.Clear()
	return nil
}

// WriteLease takes the write lease of the repository behind h without
// waiting. A held lease is reported as a retryable locked error. The lease
// is shared by every worktree of one repository.
func (r *Registry) WriteLease(op string, h *Handle) (release func(), err error) {
	key := h.CommonDir()

	r.leaseMu.Lock()
	mu, ok := r.leases[key]
	if !ok {
		mu = &sync.Mutex{}
		r.leases[key] = mu
	}
	r.leaseMu.Unlock()

	if !mu.TryLock() {
		return nil, toolerr.New(toolerr.KindLocked, "repository is busy with another write").WithOp(op, h.Root())
	}

	var once sync.Once
	return func() { once.Do(mu.Unlock) }, nil
}
