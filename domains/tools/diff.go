package tools

import (
	"context"
	"strconv"

	"github.com/gomantics/gitmcp/domains/options"
	"github.com/gomantics/gitmcp/libs/gitengine"
)

type DiffArgs struct {
	Path   string   `json:"path"`
	From   string   `json:"from,omitempty" desc:"revision to compare from, HEAD by default"`
	To     string   `json:"to,omitempty" desc:"revision to compare to, the working tree by default"`
	Staged bool     `json:"staged,omitempty" desc:"compare with the index instead of the working tree"`
	Paths  []string `json:"paths,omitempty" desc:"limit the diff to these paths or directories"`
	Patch  bool     `json:"patch,omitempty" desc:"include the unified diff text"`
}

type HistoryArgs struct {
	Path     string `json:"path"`
	File     string `json:"file" desc:"file to follow, relative to the repository root"`
	From     string `json:"from,omitempty" desc:"revision to start from, HEAD by default"`
	MaxCount int    `json:"max_count,omitempty" desc:"stop after this many commits, 20 by default"`
	Search   string `json:"search,omitempty" desc:"only commits whose diff matches this regular expression"`
}

// FileDiff is the change made to one file.
type FileDiff struct {
	Path      string `json:"path"`
	OldPath   string `json:"old_path,omitempty"`
	Change    string `json:"change" enum:"added,deleted,modified,renamed"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Binary    bool   `json:"binary"`
}

// DiffResult lists the files changed between two points.
type DiffResult struct {
	From      string     `json:"from"`
	To        string     `json:"to"`
	Files     []FileDiff `json:"files"`
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	Patch     string     `json:"patch,omitempty"`
	Summary   string     `json:"summary"`
}

// HistoryEntry is one commit that changed a file.
type HistoryEntry struct {
	Commit    Commit `json:"commit"`
	Path      string `json:"path"`
	Change    string `json:"change" enum:"added,deleted,modified,renamed"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch"`
}

func diff(ctx context.Context, s *session, args DiffArgs) (DiffResult, error) {
	o := options.NewDiffOptions().
		To(args.To).
		Staged(args.Staged).
		Paths(args.Paths...).
		Patch(args.Patch)
	if args.From != "" {
		o = o.From(args.From)
	}
	req, err := o.Build()
	if err != nil {
		return DiffResult{}, err
	}

	h, err := s.repo(args.Path)
	if err != nil {
		return DiffResult{}, err
	}
	defer h.Close()

	res, err := s.engine().Diff(ctx, h.Repo(), req)
	if err != nil {
		return DiffResult{}, err
	}

	files := make([]FileDiff, 0, len(res.Files))
	for _, f := range res.Files {
		files = append(files, FileDiff{
			Path:      f.Path,
			OldPath:   f.OldPath,
			Change:    f.Change,
			Additions: f.Additions,
			Deletions: f.Deletions,
			Binary:    f.Binary,
		})
	}
	return DiffResult{
		From:      res.From,
		To:        res.To,
		Files:     files,
		Additions: res.Additions,
		Deletions: res.Deletions,
		Patch:     res.Patch,
		Summary: s.summarize(map[string]any{
			"from":      res.From,
			"to":        res.To,
			"count":     strconv.Itoa(len(files)),
			"additions": strconv.Itoa(res.Additions),
			"deletions": strconv.Itoa(res.Deletions),
		}),
	}, nil
}

func fileHistory(ctx context.Context, s *session, args HistoryArgs, yield func(HistoryEntry) error) error {
	o := options.NewHistoryOptions(args.File).
		From(args.From).
		Search(args.Search)
	if args.MaxCount != 0 {
		o = o.MaxCount(args.MaxCount)
	}
	req, err := o.Build()
	if err != nil {
		return err
	}

	h, err := s.repo(args.Path)
	if err != nil {
		return err
	}
	defer h.Close()

	return s.engine().History(ctx, h.Repo(), req, func(e gitengine.HistoryEntry) error {
		return yield(HistoryEntry{
			Commit:    newCommit(e.Commit),
			Path:      e.Path,
			Change:    e.Change,
			Additions: e.Additions,
			Deletions: e.Deletions,
			Patch:     e.Patch,
		})
	})
}
