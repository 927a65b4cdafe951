// Package gitengine adapts go-git (and the git binary, for the primitives
// go-git lacks) to the operations exposed as tools.
package gitengine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/gomantics/gitmcp/config"
	"github.com/gomantics/gitmcp/domains/options"
	"github.com/gomantics/gitmcp/domains/toolerr"
	"go.uber.org/zap"
)

// Config holds the engine settings.
type Config struct {
	Binary        string
	AuthorName    string
	AuthorEmail   string
	InitialBranch string
	GithubToken   string
}

// Engine runs git operations. It is safe for concurrent use; callers are
// responsible for serializing writes to one repository.
type Engine struct {
	l     *zap.Logger
	cfg   Config
	creds *Credentials
	now   func() time.Time
}

// New creates an engine.
func New(l *zap.Logger, cfg Config) *Engine {
	if cfg.Binary == "" {
		cfg.Binary = "git"
	}
	if cfg.InitialBranch == "" {
		cfg.InitialBranch = "main"
	}
	if cfg.AuthorName == "" {
		cfg.AuthorName = "gitmcp"
	}
	if cfg.AuthorEmail == "" {
		cfg.AuthorEmail = "gitmcp@localhost"
	}

	return &Engine{
		l:     l,
		cfg:   cfg,
		creds: NewCredentials(NewGitHubProvider(cfg.GithubToken)),
		now:   time.Now,
	}
}

// NewFromConfig creates an engine from the loaded configuration.
func NewFromConfig(l *zap.Logger) *Engine {
	return New(l, Config{
		Binary:        config.Git.Binary(),
		AuthorName:    config.Git.DefaultAuthorName(),
		AuthorEmail:   config.Git.DefaultAuthorEmail(),
		InitialBranch: config.Git.InitialBranch(),
		GithubToken:   config.Git.GithubToken(),
	})
}

// Repo is an opened repository.
type Repo struct {
	Git       *git.Repository
	Root      string
	GitDir    string
	CommonDir string
	Bare      bool
}

// Close releases the packfile descriptors held by the repository storage.
func (r *Repo) Close() error {
	if c, ok := r.Git.Storer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Open opens the repository rooted at path. A linked worktree root opens the
// worktree with its common directory.
func (e *Engine) Open(path string) (*Repo, error) {
	abs, err := Canonical(path)
	if err != nil {
		return nil, toolerr.Wrap(toolerr.KindIO, err, "failed to resolve path").WithOp("open", path)
	}

	fi, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, toolerr.New(toolerr.KindNotFound, "path does not exist").WithOp("open", abs)
		}
		return nil, toolerr.Wrap(toolerr.KindIO, err, "failed to stat path").WithOp("open", abs)
	}
	if !fi.IsDir() {
		return nil, toolerr.New(toolerr.KindNotARepository, "path is not a directory").WithOp("open", abs)
	}

	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{EnableDotGitCommonDir: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, toolerr.New(toolerr.KindNotARepository, "not a git repository").WithOp("open", abs)
	}
	if err != nil {
		return nil, classify("open", abs, err)
	}

	return newRepo(repo, abs)
}

// Locate walks from start towards the filesystem root and returns the first
// directory that holds a repository, without opening it.
func (e *Engine) Locate(start string) (string, error) {
	abs, err := Canonical(start)
	if err != nil {
		return "", toolerr.Wrap(toolerr.KindIO, err, "failed to resolve path").WithOp("discover", start)
	}
	if _, err := os.Stat(abs); err != nil {
		if os.IsNotExist(err) {
			return "", toolerr.New(toolerr.KindNotFound, "path does not exist").WithOp("discover", abs)
		}
		return "", toolerr.Wrap(toolerr.KindIO, err, "failed to stat path").WithOp("discover", abs)
	}

	for dir := abs; ; {
		if _, err := os.Stat(filepath.Join(dir, git.GitDirName)); err == nil {
			return dir, nil
		}
		if isBareDir(dir) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", toolerr.New(toolerr.KindNotFound, "no git repository found in path or any parent").WithOp("discover", abs)
		}
		dir = parent
	}
}

// Discover locates and opens the repository containing start.
func (e *Engine) Discover(start string) (*Repo, error) {
	root, err := e.Locate(start)
	if err != nil {
		return nil, err
	}
	return e.Open(root)
}

// Init creates a repository.
func (e *Engine) Init(req options.InitRequest) (*Repo, error) {
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		return nil, toolerr.Wrap(toolerr.KindIO, err, "failed to resolve path").WithOp("init", req.Path)
	}

	branch := req.InitialBranch
	if branch == "" {
		branch = e.cfg.InitialBranch
	}

	repo, err := git.PlainInitWithOptions(abs, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.NewBranchReferenceName(branch)},
		Bare:        req.Bare,
	})
	if err != nil {
		return nil, classify("init", abs, err)
	}

	e.l.Debug("repository initialized", zap.String("path", abs), zap.Bool("bare", req.Bare))
	return newRepo(repo, canonicalPath(abs))
}

func newRepo(repo *git.Repository, root string) (*Repo, error) {
	r := &Repo{Git: repo, Root: root}

	dotGit := filepath.Join(root, git.GitDirName)
	fi, err := os.Stat(dotGit)
	switch {
	case err == nil && fi.IsDir():
		r.GitDir = dotGit
	case err == nil:
		gitDir, err := readGitFile(dotGit)
		if err != nil {
			return nil, toolerr.Wrap(toolerr.KindIO, err, "failed to read .git file").WithOp("open", root)
		}
		r.GitDir = canonicalPath(gitDir)
	default:
		r.GitDir = root
		r.Bare = true
	}

	r.CommonDir = r.GitDir
	if data, err := os.ReadFile(filepath.Join(r.GitDir, "commondir")); err == nil {
		common := strings.TrimSpace(string(data))
		if !filepath.IsAbs(common) {
			common = filepath.Join(r.GitDir, common)
		}
		r.CommonDir = canonicalPath(common)
	}

	return r, nil
}

// Canonical returns the absolute form of path with symlinks resolved, so
// every spelling of one repository maps to the same root. Missing trailing
// components are kept as given.
func Canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return canonicalPath(abs), nil
}

func readGitFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	line := strings.TrimSpace(strings.SplitN(string(data), "\n", 2)[0])
	gitDir, ok := strings.CutPrefix(line, "gitdir: ")
	if !ok {
		return "", fmt.Errorf("malformed .git file %s", path)
	}
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(filepath.Dir(path), gitDir)
	}
	return filepath.Clean(gitDir), nil
}

func isBareDir(dir string) bool {
	for _, name := range []string{"HEAD", "objects", "refs"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

func (e *Engine) defaultSignature() options.Signature {
	return options.NewSignature(e.cfg.AuthorName, e.cfg.AuthorEmail)
}

// signature resolves s (or the configured default) at execution time.
func (e *Engine) signature(s *options.Signature) *object.Signature {
	sig := e.defaultSignature()
	if s != nil {
		sig = *s
	}
	return &object.Signature{Name: sig.Name, Email: sig.Email, When: sig.Resolve(e.now())}
}

func (e *Engine) worktree(op string, r *Repo) (*git.Worktree, error) {
	wt, err := r.Git.Worktree()
	if err != nil {
		return nil, classify(op, r.Root, err)
	}
	return wt, nil
}

// resolve turns a revision into a commit hash.
func resolve(op string, r *Repo, rev string) (plumbing.Hash, error) {
	h, err := r.Git.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return plumbing.ZeroHash, toolerr.Wrap(toolerr.KindNotFound, err, "revision %q not found", rev).WithOp(op, r.Root)
	}
	return *h, nil
}

// headBranch returns the branch HEAD points to, or "" when detached.
func headBranch(r *Repo) (plumbing.ReferenceName, error) {
	head, err := r.Git.Storer.Reference(plumbing.HEAD)
	if err != nil {
		return "", err
	}
	if head.Type() == plumbing.SymbolicReference {
		return head.Target(), nil
	}
	return "", nil
}
