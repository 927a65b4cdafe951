package gitengine

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/gomantics/gitmcp/domains/options"
	"github.com/gomantics/gitmcp/domains/toolerr"
	"go.uber.org/zap"
)

// Clone clones req.URL into req.Path, reporting transfer progress to progress.
func (e *Engine) Clone(ctx context.Context, req options.CloneRequest, progress ProgressFunc) (*Repo, error) {
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		return nil, toolerr.Wrap(toolerr.KindIO, err, "failed to resolve path").WithOp("clone", req.Path)
	}

	if entries, err := os.ReadDir(abs); err == nil && len(entries) > 0 {
		return nil, toolerr.New(toolerr.KindAlreadyExists, "destination exists and is not empty").WithOp("clone", abs)
	}

	e.l.Info("cloning repository",
		zap.String("url", req.URL),
		zap.String("dest", abs),
		zap.Int("depth", req.Depth),
	)

	opts := &git.CloneOptions{
		URL:          req.URL,
		Auth:         e.creds.For(req.URL),
		RemoteName:   req.Remote,
		SingleBranch: req.SingleBranch,
		Depth:        req.Depth,
		Tags:         git.AllTags,
	}
	if req.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(req.Branch)
	}
	if progress != nil {
		opts.Progress = newProgressWriter(progress)
	}

	repo, err := git.PlainCloneContext(ctx, abs, req.Bare, opts)
	if err != nil {
		return nil, classify("clone", abs, err)
	}

	e.l.Info("repository cloned successfully", zap.String("dest", abs))
	return newRepo(repo, canonicalPath(abs))
}
