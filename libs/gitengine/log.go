package gitengine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/gomantics/gitmcp/domains/options"
)

// CommitInfo is the public view of a commit.
type CommitInfo struct {
	Hash           string
	Message        string
	Summary        string
	AuthorName     string
	AuthorEmail    string
	AuthorWhen     time.Time
	CommitterName  string
	CommitterEmail string
	CommitterWhen  time.Time
	Parents        []string
}

func newCommitInfo(c *object.Commit) CommitInfo {
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}

	summary, _, _ := strings.Cut(c.Message, "\n")

	return CommitInfo{
		Hash:           c.Hash.String(),
		Message:        c.Message,
		Summary:        summary,
		AuthorName:     c.Author.Name,
		AuthorEmail:    c.Author.Email,
		AuthorWhen:     c.Author.When,
		CommitterName:  c.Committer.Name,
		CommitterEmail: c.Committer.Email,
		CommitterWhen:  c.Committer.When,
		Parents:        parents,
	}
}

var logOrders = map[options.LogOrder]git.LogOrder{
	options.LogOrderDefault:       git.LogOrderDefault,
	options.LogOrderDFS:           git.LogOrderDFS,
	options.LogOrderDFSPost:       git.LogOrderDFSPost,
	options.LogOrderBFS:           git.LogOrderBSF,
	options.LogOrderCommitterTime: git.LogOrderCommitterTime,
}

// Log walks history lazily, calling yield for each commit. The walk stops
// when yield returns an error, which Log then returns. An unborn HEAD yields
// nothing.
func (e *Engine) Log(ctx context.Context, r *Repo, req options.LogRequest, yield func(CommitInfo) error) error {
	opts := &git.LogOptions{
		Order: logOrders[req.Order],
		Since: req.Since,
		Until: req.Until,
		All:   req.All,
	}

	if req.From != "" {
		hash, err := resolve("log", r, req.From)
		if err != nil {
			return err
		}
		opts.From = hash
	}

	if filter := strings.TrimSuffix(req.PathFilter, "/"); filter != "" && filter != "." {
		opts.PathFilter = func(p string) bool {
			return p == filter || strings.HasPrefix(p, filter+"/")
		}
	}

	iter, err := r.Git.Log(opts)
	if errors.Is(err, plumbing.ErrReferenceNotFound) && req.From == "" {
		return nil
	}
	if err != nil {
		return classify("log", r.Root, err)
	}
	defer iter.Close()

	var seen, sent int
	var yieldErr error
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			yieldErr = err
			return storer.ErrStop
		}

		seen++
		if seen <= req.Skip {
			return nil
		}
		if req.MaxCount > 0 && sent >= req.MaxCount {
			return storer.ErrStop
		}

		sent++
		if err := yield(newCommitInfo(c)); err != nil {
			yieldErr = err
			return storer.ErrStop
		}
		return nil
	})

	if yieldErr != nil {
		return yieldErr
	}
	if err != nil {
		return classify("log", r.Root, err)
	}
	return nil
}
