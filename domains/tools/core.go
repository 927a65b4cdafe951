package tools

import (
	"context"
	"strconv"
	"time"

	"github.com/gomantics/gitmcp/domains/options"
	"github.com/gomantics/gitmcp/libs/gitengine"
	"go.uber.org/zap"
)

type CommitArgs struct {
	Path        string   `json:"path"`
	Message     string   `json:"message"`
	All         bool     `json:"all,omitempty" desc:"stage every change in the worktree before committing"`
	Paths       []string `json:"paths,omitempty" desc:"stage exactly these paths before committing"`
	AuthorName  string   `json:"author_name,omitempty"`
	AuthorEmail string   `json:"author_email,omitempty"`
	AllowEmpty  *bool    `json:"allow_empty,omitempty" desc:"record a commit even if nothing changed, true by default"`
}

type AddArgs struct {
	Path  string   `json:"path"`
	Paths []string `json:"paths,omitempty" desc:"paths to stage, relative to the repository root"`
	All   bool     `json:"all,omitempty" desc:"stage every change including deletions"`
}

type LogArgs struct {
	Path       string     `json:"path"`
	From       string     `json:"from,omitempty" desc:"revision to start from, HEAD by default"`
	MaxCount   int        `json:"max_count,omitempty" desc:"stop after this many commits"`
	Skip       int        `json:"skip,omitempty" desc:"skip this many commits first"`
	PathFilter string     `json:"path_filter,omitempty" desc:"only commits touching this path or directory"`
	Since      *time.Time `json:"since,omitempty"`
	Until      *time.Time `json:"until,omitempty"`
	Order      string     `json:"order,omitempty" enum:"default,dfs,dfs_post,bfs,committer_time"`
	All        bool       `json:"all,omitempty" desc:"walk every reference"`
}

type CheckoutArgs struct {
	Path   string   `json:"path"`
	Target string   `json:"target,omitempty" desc:"branch, tag or commit to switch to"`
	Create bool     `json:"create,omitempty" desc:"create target as a new branch at HEAD"`
	Force  bool     `json:"force,omitempty" desc:"discard local changes that would be overwritten"`
	Paths  []string `json:"paths,omitempty" desc:"restore these paths from target instead of switching"`
}

type ResetArgs struct {
	Path   string `json:"path"`
	Target string `json:"target,omitempty" desc:"revision to reset to, HEAD by default"`
	Mode   string `json:"mode,omitempty" enum:"soft,mixed,hard"`
}

// CommitResult describes a new commit.
type CommitResult struct {
	Commit  Commit `json:"commit"`
	Summary string `json:"summary"`
}

// AddResult lists the paths staged by an add.
type AddResult struct {
	Staged  []FileChange `json:"staged"`
	Summary string       `json:"summary"`
}

// StatusResult describes HEAD and the changed paths.
type StatusResult struct {
	Branch   string       `json:"branch,omitempty"`
	Head     string       `json:"head,omitempty"`
	Detached bool         `json:"detached"`
	Clean    bool         `json:"clean"`
	Files    []FileChange `json:"files"`
	Summary  string       `json:"summary"`
}

// CheckoutResult describes HEAD after a checkout.
type CheckoutResult struct {
	Branch   string   `json:"branch,omitempty"`
	Head     string   `json:"head"`
	Detached bool     `json:"detached"`
	Restored []string `json:"restored,omitempty"`
	Summary  string   `json:"summary"`
}

// ResetResult describes HEAD after a reset.
type ResetResult struct {
	Head    string `json:"head"`
	Mode    string `json:"mode"`
	Summary string `json:"summary"`
}

func coreTools() []*Tool {
	return []*Tool{
		unaryTool(def{
			name:    "git_commit",
			group:   GroupCore,
			desc:    "Record a commit on the current branch.",
			summary: "Committed {short_id}: {subject}",
		}, commit),
		unaryTool(def{
			name:    "git_add",
			group:   GroupCore,
			desc:    "Stage paths in the index.",
			summary: "Staged {count} path(s)",
		}, add),
		unaryTool(def{
			name:     "git_status",
			group:    GroupCore,
			readOnly: true,
			desc:     "Show the current branch and the changed paths.",
			summary:  "On {branch}: {state}",
		}, status),
		streamTool(def{
			name:     "git_log",
			group:    GroupCore,
			readOnly: true,
			desc:     "Walk commit history, one event per commit.",
		}, logHistory),
		unaryTool(def{
			name:    "git_checkout",
			group:   GroupCore,
			desc:    "Switch branches or restore paths from a revision.",
			summary: "{action} {target} at {head}",
		}, checkout),
		unaryTool(def{
			name:    "git_reset",
			group:   GroupCore,
			desc:    "Move HEAD to a revision, optionally resetting the index and worktree.",
			summary: "Reset ({mode}) to {head}",
		}, reset),
		unaryTool(def{
			name:     "git_diff",
			group:    GroupCore,
			readOnly: true,
			desc:     "Compare two revisions, or a revision with the index or the working tree.",
			summary:  "{from}..{to}: {count} file(s), +{additions} -{deletions}",
		}, diff),
		streamTool(def{
			name:     "git_history",
			group:    GroupCore,
			readOnly: true,
			desc:     "Walk the commits that changed a file, one event per commit with its diff.",
		}, fileHistory),
		unaryTool(def{
			name:    "git_tag",
			group:   GroupCore,
			desc:    "Create, delete or list tags.",
			summary: "Tags: {state}",
		}, tag),
		unaryTool(def{
			name:    "git_stash",
			group:   GroupCore,
			desc:    "Save local changes onto the stash, pop an entry back or list the entries.",
			summary: "Stash: {state}",
		}, stash),
	}
}

func commit(ctx context.Context, s *session, args CommitArgs) (CommitResult, error) {
	o := options.NewCommitOptions(args.Message).
		All(args.All).
		Paths(args.Paths...)
	if args.AuthorName != "" || args.AuthorEmail != "" {
		o = o.Author(options.NewSignature(args.AuthorName, args.AuthorEmail))
	}
	if args.AllowEmpty != nil {
		o = o.AllowEmpty(*args.AllowEmpty)
	}
	req, err := o.Build()
	if err != nil {
		return CommitResult{}, err
	}

	h, release, err := s.write(args.Path)
	if err != nil {
		return CommitResult{}, err
	}
	defer release()

	info, err := s.engine().Commit(ctx, h.Repo(), req)
	if err != nil {
		return CommitResult{}, err
	}

	c := newCommit(info)
	s.l.Info("commit created", zap.String("commit", c.ID))
	return CommitResult{
		Commit:  c,
		Summary: s.summarize(map[string]any{"short_id": c.ShortID, "subject": c.Summary}),
	}, nil
}

func add(ctx context.Context, s *session, args AddArgs) (AddResult, error) {
	req, err := options.NewAddOptions(args.Paths...).All(args.All).Build()
	if err != nil {
		return AddResult{}, err
	}

	h, release, err := s.write(args.Path)
	if err != nil {
		return AddResult{}, err
	}
	defer release()

	staged, err := s.engine().Add(ctx, h.Repo(), req)
	if err != nil {
		return AddResult{}, err
	}
	return AddResult{
		Staged:  newFileChanges(staged),
		Summary: s.summarize(map[string]any{"count": strconv.Itoa(len(staged))}),
	}, nil
}

func status(ctx context.Context, s *session, args PathArgs) (StatusResult, error) {
	h, err := s.repo(args.Path)
	if err != nil {
		return StatusResult{}, err
	}
	defer h.Close()

	st, err := s.engine().Status(ctx, h.Repo())
	if err != nil {
		return StatusResult{}, err
	}

	branch := st.Branch
	if st.Detached {
		branch = "detached HEAD " + shortHash(st.Head)
	}
	state := "working tree clean"
	if !st.Clean {
		state = strconv.Itoa(len(st.Files)) + " changed path(s)"
	}

	return StatusResult{
		Branch:   st.Branch,
		Head:     st.Head,
		Detached: st.Detached,
		Clean:    st.Clean,
		Files:    newFileChanges(st.Files),
		Summary:  s.summarize(map[string]any{"branch": branch, "state": state}),
	}, nil
}

func logHistory(ctx context.Context, s *session, args LogArgs, yield func(Commit) error) error {
	o := options.NewLogOptions().
		From(args.From).
		MaxCount(args.MaxCount).
		Skip(args.Skip).
		PathFilter(args.PathFilter).
		Order(options.LogOrder(args.Order)).
		All(args.All)
	if args.Since != nil {
		o = o.Since(*args.Since)
	}
	if args.Until != nil {
		o = o.Until(*args.Until)
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

	return s.engine().Log(ctx, h.Repo(), req, func(c gitengine.CommitInfo) error {
		return yield(newCommit(c))
	})
}

func checkout(ctx context.Context, s *session, args CheckoutArgs) (CheckoutResult, error) {
	req, err := options.NewCheckoutOptions(args.Target).
		Create(args.Create).
		Force(args.Force).
		Paths(args.Paths...).
		Build()
	if err != nil {
		return CheckoutResult{}, err
	}

	h, release, err := s.write(args.Path)
	if err != nil {
		return CheckoutResult{}, err
	}
	defer release()

	res, err := s.engine().Checkout(ctx, h.Repo(), req)
	if err != nil {
		return CheckoutResult{}, err
	}

	action, target := "Switched to", res.Branch
	switch {
	case len(req.Paths) > 0:
		action, target = "Restored "+strconv.Itoa(len(res.Restored))+" path(s) from", req.Target
		if target == "" {
			target = "HEAD"
		}
	case res.Detached:
		action, target = "Detached HEAD at", req.Target
	case req.Create:
		action = "Switched to new branch"
	}

	return CheckoutResult{
		Branch:   res.Branch,
		Head:     res.Head,
		Detached: res.Detached,
		Restored: res.Restored,
		Summary:  s.summarize(map[string]any{"action": action, "target": target, "head": shortHash(res.Head)}),
	}, nil
}

func reset(ctx context.Context, s *session, args ResetArgs) (ResetResult, error) {
	req, err := options.NewResetOptions().
		Target(args.Target).
		Mode(options.ResetMode(args.Mode)).
		Build()
	if err != nil {
		return ResetResult{}, err
	}

	h, release, err := s.write(args.Path)
	if err != nil {
		return ResetResult{}, err
	}
	defer release()

	head, err := s.engine().Reset(ctx, h.Repo(), req)
	if err != nil {
		return ResetResult{}, err
	}
	return ResetResult{
		Head:    head,
		Mode:    string(req.Mode),
		Summary: s.summarize(map[string]any{"mode": string(req.Mode), "head": shortHash(head)}),
	}, nil
}
