package tools

import (
	"context"
	"strconv"

	"github.com/gomantics/gitmcp/domains/handles"
	"github.com/gomantics/gitmcp/domains/options"
	"github.com/gomantics/gitmcp/libs/gitengine"
)

type InitArgs struct {
	Path          string `json:"path" desc:"directory to initialize; created when missing"`
	Bare          bool   `json:"bare,omitempty" desc:"create a bare repository"`
	InitialBranch string `json:"initial_branch,omitempty" desc:"name of the unborn branch HEAD points to"`
}

type PathArgs struct {
	Path string `json:"path" desc:"repository path; relative paths resolve against the working directory"`
}

type CloneArgs struct {
	URL          string `json:"url" desc:"remote URL"`
	Path         string `json:"path" desc:"destination directory"`
	Branch       string `json:"branch,omitempty" desc:"branch to check out instead of the remote HEAD"`
	Depth        int    `json:"depth,omitempty" desc:"create a shallow clone with this many commits"`
	Bare         bool   `json:"bare,omitempty"`
	SingleBranch bool   `json:"single_branch,omitempty"`
	Remote       string `json:"remote,omitempty" desc:"name of the remote, origin by default"`
}

// RepositoryResult describes an opened repository.
type RepositoryResult struct {
	Path      string `json:"path"`
	GitDir    string `json:"git_dir"`
	CommonDir string `json:"common_dir"`
	Bare      bool   `json:"bare"`
	HandleID  uint64 `json:"handle_id"`
	Summary   string `json:"summary"`
}

func repositoryTools() []*Tool {
	return []*Tool{
		unaryTool(def{
			name:    "git_init",
			group:   GroupRepository,
			desc:    "Initialize a new Git repository.",
			summary: "Initialized {kind} repository at {path}",
		}, initRepository),
		unaryTool(def{
			name:     "git_open",
			group:    GroupRepository,
			readOnly: true,
			desc:     "Open the Git repository rooted at a path.",
			summary:  "Opened repository at {path}",
		}, openRepository),
		unaryTool(def{
			name:     "git_discover",
			group:    GroupRepository,
			readOnly: true,
			desc:     "Find the Git repository containing a path by walking up its parent directories.",
			summary:  "Found repository at {path}",
		}, discoverRepository),
		progressTool(def{
			name:    "git_clone",
			group:   GroupRepository,
			desc:    "Clone a remote repository, reporting transfer progress.",
			summary: "Cloned {url} into {path}",
		}, cloneRepository),
	}
}

func initRepository(ctx context.Context, s *session, args InitArgs) (RepositoryResult, error) {
	req, err := options.NewInitOptions(s.path(args.Path)).
		Bare(args.Bare).
		InitialBranch(args.InitialBranch).
		Build()
	if err != nil {
		return RepositoryResult{}, err
	}

	h, err := s.registry().Init(req)
	if err != nil {
		return RepositoryResult{}, err
	}
	defer h.Close()

	kind := "empty"
	if h.Bare() {
		kind = "bare"
	}
	return newRepositoryResult(s, h, map[string]any{"kind": kind}), nil
}

func openRepository(ctx context.Context, s *session, args PathArgs) (RepositoryResult, error) {
	h, err := s.registry().Open(s.path(args.Path))
	if err != nil {
		return RepositoryResult{}, err
	}
	defer h.Close()
	return newRepositoryResult(s, h, nil), nil
}

func discoverRepository(ctx context.Context, s *session, args PathArgs) (RepositoryResult, error) {
	h, err := s.registry().Discover(s.path(args.Path))
	if err != nil {
		return RepositoryResult{}, err
	}
	defer h.Close()
	return newRepositoryResult(s, h, nil), nil
}

func cloneRepository(ctx context.Context, s *session, args CloneArgs, progress gitengine.ProgressFunc) (RepositoryResult, error) {
	req, err := options.NewCloneOptions(args.URL, s.path(args.Path)).
		Branch(args.Branch).
		Depth(args.Depth).
		Bare(args.Bare).
		SingleBranch(args.SingleBranch).
		Remote(args.Remote).
		Build()
	if err != nil {
		return RepositoryResult{}, err
	}

	h, err := s.registry().Clone(ctx, req, progress)
	if err != nil {
		return RepositoryResult{}, err
	}
	defer h.Close()
	return newRepositoryResult(s, h, map[string]any{"url": req.URL}), nil
}

func newRepositoryResult(s *session, h *handles.Handle, values map[string]any) RepositoryResult {
	if values == nil {
		values = make(map[string]any)
	}
	values["path"] = h.Root()
	values["handle"] = strconv.FormatUint(h.ID(), 10)

	return RepositoryResult{
		Path:      h.Root(),
		GitDir:    h.GitDir(),
		CommonDir: h.CommonDir(),
		Bare:      h.Bare(),
		HandleID:  h.ID(),
		Summary:   s.summarize(values),
	}
}
