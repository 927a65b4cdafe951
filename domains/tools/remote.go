package tools

import (
	"context"
	"strconv"
	"strings"

	"github.com/gomantics/gitmcp/domains/options"
	"github.com/gomantics/gitmcp/libs/gitengine"
)

type FetchArgs struct {
	Path     string   `json:"path"`
	Remote   string   `json:"remote,omitempty" desc:"remote to fetch from, origin by default"`
	RefSpecs []string `json:"refspecs,omitempty" desc:"refspecs to fetch instead of the configured ones"`
	Depth    int      `json:"depth,omitempty"`
	Prune    bool     `json:"prune,omitempty" desc:"delete remote-tracking refs that no longer exist on the remote"`
	Force    bool     `json:"force,omitempty"`
	Tags     bool     `json:"tags,omitempty" desc:"fetch every tag"`
}

type MergeArgs struct {
	Path            string `json:"path"`
	Branch          string `json:"branch" desc:"branch or revision to merge into the current branch"`
	FastForward     *bool  `json:"fast_forward,omitempty" desc:"allow fast-forwards, true by default"`
	FastForwardOnly bool   `json:"fast_forward_only,omitempty" desc:"fail unless the merge is a fast-forward"`
	AutoCommit      *bool  `json:"auto_commit,omitempty" desc:"record the merge commit, true by default"`
	Message         string `json:"message,omitempty"`
}

type PullArgs struct {
	Path            string `json:"path"`
	Remote          string `json:"remote,omitempty" desc:"remote to pull from, origin by default"`
	Branch          string `json:"branch,omitempty" desc:"branch whose upstream is merged into the current branch, the current branch by default"`
	FastForward     *bool  `json:"fast_forward,omitempty"`
	FastForwardOnly bool   `json:"fast_forward_only,omitempty"`
	AutoCommit      *bool  `json:"auto_commit,omitempty"`
}

type PushArgs struct {
	Path     string   `json:"path"`
	Remote   string   `json:"remote,omitempty" desc:"remote to push to, origin by default"`
	RefSpecs []string `json:"refspecs,omitempty" desc:"refspecs or branch names to push, the current branch by default"`
	Force    bool     `json:"force,omitempty" desc:"overwrite remote refs that are not ancestors of the pushed ones"`
	Tags     bool     `json:"tags,omitempty" desc:"also push every local tag"`
}

type RemoteAddArgs struct {
	Path  string `json:"path"`
	Name  string `json:"name"`
	URL   string `json:"url"`
	Force bool   `json:"force,omitempty" desc:"replace an existing remote with the same name"`
}

type RemoteRemoveArgs struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// FetchResult lists the references a fetch changed.
type FetchResult struct {
	Remote   string      `json:"remote"`
	UpToDate bool        `json:"up_to_date"`
	Updated  []RefUpdate `json:"updated"`
	Summary  string      `json:"summary"`
}

// MergeResult describes how a merge resolved.
type MergeResult struct {
	Type    string `json:"type" enum:"already_up_to_date,fast_forward,merge_commit,merge_staged"`
	Commit  string `json:"commit,omitempty"`
	Summary string `json:"summary"`
}

// PullResult describes the fetch and merge of a pull.
type PullResult struct {
	Upstream string      `json:"upstream"`
	Remote   string      `json:"remote"`
	Updated  []RefUpdate `json:"updated"`
	Merge    MergeResult `json:"merge"`
	Summary  string      `json:"summary"`
}

// PushResult describes what a push sent.
type PushResult struct {
	Remote   string   `json:"remote"`
	UpToDate bool     `json:"up_to_date"`
	RefSpecs []string `json:"refspecs"`
	Summary  string   `json:"summary"`
}

// RemoteResult describes an added or removed remote.
type RemoteResult struct {
	Remote  Remote `json:"remote"`
	Summary string `json:"summary"`
}

// RemoteListResult lists the configured remotes.
type RemoteListResult struct {
	Remotes []Remote `json:"remotes"`
	Summary string   `json:"summary"`
}

func remoteTools() []*Tool {
	return []*Tool{
		progressTool(def{
			name:    "git_fetch",
			group:   GroupRemote,
			desc:    "Download objects and refs from a remote, reporting transfer progress.",
			summary: "Fetched {remote}: {state}",
		}, fetch),
		unaryTool(def{
			name:    "git_merge",
			group:   GroupRemote,
			desc:    "Merge a branch into the current branch.",
			summary: "Merged {branch}: {type}",
		}, merge),
		progressTool(def{
			name:    "git_pull",
			group:   GroupRemote,
			desc:    "Fetch from a remote and merge the upstream of a branch.",
			summary: "Pulled {upstream}: {type}",
		}, pull),
		progressTool(def{
			name:    "git_push",
			group:   GroupRemote,
			desc:    "Push refs to a remote, reporting transfer progress.",
			summary: "Pushed to {remote}: {state}",
		}, push),
		unaryTool(def{
			name:    "git_remote_add",
			group:   GroupRemote,
			desc:    "Add a remote.",
			summary: "Added remote {name} ({url})",
		}, addRemote),
		unaryTool(def{
			name:     "git_remote_list",
			group:    GroupRemote,
			readOnly: true,
			desc:     "List the configured remotes.",
			summary:  "{count} remote(s)",
		}, listRemotes),
		unaryTool(def{
			name:    "git_remote_remove",
			group:   GroupRemote,
			desc:    "Remove a remote and its remote-tracking refs.",
			summary: "Removed remote {name}",
		}, removeRemote),
	}
}

func fetch(ctx context.Context, s *session, args FetchArgs, progress gitengine.ProgressFunc) (FetchResult, error) {
	o := options.NewFetchOptions().
		RefSpecs(args.RefSpecs...).
		Depth(args.Depth).
		Prune(args.Prune).
		Force(args.Force).
		Tags(args.Tags)
	if args.Remote != "" {
		o = o.Remote(args.Remote)
	}
	req, err := o.Build()
	if err != nil {
		return FetchResult{}, err
	}

	h, release, err := s.write(args.Path)
	if err != nil {
		return FetchResult{}, err
	}
	defer release()

	res, err := s.engine().Fetch(ctx, h.Repo(), req, progress)
	if err != nil {
		return FetchResult{}, err
	}

	state := "up to date"
	if !res.UpToDate {
		state = strconv.Itoa(len(res.Updated)) + " ref(s) updated"
	}
	return FetchResult{
		Remote:   res.Remote,
		UpToDate: res.UpToDate,
		Updated:  newRefUpdates(res.Updated),
		Summary:  s.summarize(map[string]any{"remote": res.Remote, "state": state}),
	}, nil
}

func merge(ctx context.Context, s *session, args MergeArgs) (MergeResult, error) {
	req, err := options.NewMergeOptions(args.Branch).
		FastForward(boolOr(args.FastForward, true)).
		FastForwardOnly(args.FastForwardOnly).
		AutoCommit(boolOr(args.AutoCommit, true)).
		Message(args.Message).
		Build()
	if err != nil {
		return MergeResult{}, err
	}

	h, release, err := s.write(args.Path)
	if err != nil {
		return MergeResult{}, err
	}
	defer release()

	res, err := s.engine().Merge(ctx, h.Repo(), req)
	if err != nil {
		return MergeResult{}, err
	}
	return MergeResult{
		Type:    res.Type,
		Commit:  res.Commit,
		Summary: s.summarize(map[string]any{"branch": req.Branch, "type": res.Type}),
	}, nil
}

func pull(ctx context.Context, s *session, args PullArgs, progress gitengine.ProgressFunc) (PullResult, error) {
	o := options.NewPullOptions().
		Branch(args.Branch).
		FastForward(boolOr(args.FastForward, true)).
		FastForwardOnly(args.FastForwardOnly).
		AutoCommit(boolOr(args.AutoCommit, true))
	if args.Remote != "" {
		o = o.Remote(args.Remote)
	}
	req, err := o.Build()
	if err != nil {
		return PullResult{}, err
	}

	h, release, err := s.write(args.Path)
	if err != nil {
		return PullResult{}, err
	}
	defer release()

	res, err := s.engine().Pull(ctx, h.Repo(), req, progress)
	if err != nil {
		return PullResult{}, err
	}
	return PullResult{
		Upstream: res.Upstream,
		Remote:   res.Fetch.Remote,
		Updated:  newRefUpdates(res.Fetch.Updated),
		Merge:    MergeResult{Type: res.Merge.Type, Commit: res.Merge.Commit},
		Summary:  s.summarize(map[string]any{"upstream": res.Upstream, "type": res.Merge.Type}),
	}, nil
}

func push(ctx context.Context, s *session, args PushArgs, progress gitengine.ProgressFunc) (PushResult, error) {
	o := options.NewPushOptions().
		RefSpecs(args.RefSpecs...).
		Force(args.Force).
		Tags(args.Tags)
	if args.Remote != "" {
		o = o.Remote(args.Remote)
	}
	req, err := o.Build()
	if err != nil {
		return PushResult{}, err
	}

	h, release, err := s.write(args.Path)
	if err != nil {
		return PushResult{}, err
	}
	defer release()

	res, err := s.engine().Push(ctx, h.Repo(), req, progress)
	if err != nil {
		return PushResult{}, err
	}

	state := "everything up to date"
	if !res.UpToDate {
		state = strings.Join(res.RefSpecs, ", ")
	}
	return PushResult{
		Remote:   res.Remote,
		UpToDate: res.UpToDate,
		RefSpecs: nonNil(res.RefSpecs),
		Summary:  s.summarize(map[string]any{"remote": res.Remote, "state": state}),
	}, nil
}

func addRemote(ctx context.Context, s *session, args RemoteAddArgs) (RemoteResult, error) {
	req, err := options.NewRemoteAddOptions(args.Name, args.URL).Force(args.Force).Build()
	if err != nil {
		return RemoteResult{}, err
	}

	h, release, err := s.write(args.Path)
	if err != nil {
		return RemoteResult{}, err
	}
	defer release()

	r, err := s.engine().AddRemote(ctx, h.Repo(), req)
	if err != nil {
		return RemoteResult{}, err
	}
	return RemoteResult{
		Remote:  newRemote(r),
		Summary: s.summarize(map[string]any{"name": r.Name, "url": args.URL}),
	}, nil
}

func listRemotes(ctx context.Context, s *session, args PathArgs) (RemoteListResult, error) {
	h, err := s.repo(args.Path)
	if err != nil {
		return RemoteListResult{}, err
	}
	defer h.Close()

	remotes, err := s.engine().Remotes(ctx, h.Repo())
	if err != nil {
		return RemoteListResult{}, err
	}

	out := make([]Remote, 0, len(remotes))
	for _, r := range remotes {
		out = append(out, newRemote(r))
	}
	return RemoteListResult{
		Remotes: out,
		Summary: s.summarize(map[string]any{"count": strconv.Itoa(len(out))}),
	}, nil
}

func removeRemote(ctx context.Context, s *session, args RemoteRemoveArgs) (RemoteResult, error) {
	req, err := options.NewRemoteRemoveOptions(args.Name).Build()
	if err != nil {
		return RemoteResult{}, err
	}

	h, release, err := s.write(args.Path)
	if err != nil {
		return RemoteResult{}, err
	}
	defer release()

	r, err := s.engine().RemoveRemote(ctx, h.Repo(), req)
	if err != nil {
		return RemoteResult{}, err
	}
	return RemoteResult{
		Remote:  newRemote(r),
		Summary: s.summarize(map[string]any{"name": r.Name}),
	}, nil
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}
