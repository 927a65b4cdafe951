package options

import (
	"strings"

	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/gomantics/gitmcp/domains/toolerr"
)

// FetchOptions builds a FetchRequest.
type FetchOptions struct {
	remote   string
	refSpecs []string
	depth    int
	prune    bool
	force    bool
	tags     bool
}

// FetchRequest downloads objects and refs from Remote.
type FetchRequest struct {
	Remote   string
	RefSpecs []config.RefSpec
	Depth    int
	Prune    bool
	Force    bool
	Tags     bool
}

func NewFetchOptions() FetchOptions {
	return FetchOptions{remote: DefaultRemote}
}

func (o FetchOptions) Remote(name string) FetchOptions {
	o.remote = name
	return o
}

func (o FetchOptions) RefSpecs(specs ...string) FetchOptions {
	o.refSpecs = clonePaths(specs)
	return o
}

func (o FetchOptions) Depth(depth int) FetchOptions {
	o.depth = depth
	return o
}

// Prune deletes remote-tracking refs that no longer exist on the remote.
func (o FetchOptions) Prune(prune bool) FetchOptions {
	o.prune = prune
	return o
}

func (o FetchOptions) Force(force bool) FetchOptions {
	o.force = force
	return o
}

// Tags fetches every tag from the remote.
func (o FetchOptions) Tags(tags bool) FetchOptions {
	o.tags = tags
	return o
}

func (o FetchOptions) Build() (FetchRequest, error) {
	remote := o.remote
	if remote == "" {
		remote = DefaultRemote
	}
	if err := validateRemoteName("remote", remote); err != nil {
		return FetchRequest{}, err
	}
	if o.depth < 0 {
		return FetchRequest{}, toolerr.InvalidOption("depth", "must not be negative")
	}

	specs, err := parseRefSpecs(remote, o.refSpecs)
	if err != nil {
		return FetchRequest{}, err
	}

	return FetchRequest{
		Remote:   remote,
		RefSpecs: specs,
		Depth:    o.depth,
		Prune:    o.prune,
		Force:    o.force,
		Tags:     o.tags,
	}, nil
}

// parseRefSpecs accepts full refspecs and bare branch names. A bare name
// maps onto the remote-tracking ref of remote.
func parseRefSpecs(remote string, raw []string) ([]config.RefSpec, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	specs := make([]config.RefSpec, 0, len(raw))
	for _, s := range raw {
		spec := config.RefSpec(s)
		if !strings.Contains(s, ":") {
			name := strings.TrimPrefix(s, "refs/heads/")
			spec = config.RefSpec("refs/heads/" + name + ":refs/remotes/" + remote + "/" + name)
		}
		if err := spec.Validate(); err != nil {
			return nil, toolerr.InvalidOption("refspecs", "invalid refspec "+s)
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

// FastForward controls how a merge may resolve.
type FastForward string

const (
	// FastForwardAllow fast-forwards when possible and merges otherwise.
	FastForwardAllow FastForward = "allow"
	// FastForwardOnly fails unless the merge is a fast-forward.
	FastForwardOnly FastForward = "only"
	// FastForwardNever always creates a merge commit.
	FastForwardNever FastForward = "never"
)

// MergeOptions builds a MergeRequest.
type MergeOptions struct {
	branch      string
	fastForward bool
	ffOnly      bool
	autoCommit  bool
	message     string
	author      *Signature
}

// MergeRequest merges Branch into the current branch.
type MergeRequest struct {
	Branch      string
	FastForward FastForward
	AutoCommit  bool
	Message     string
	Author      *Signature
}

// NewMergeOptions merges branch allowing fast-forwards and committing the result.
func NewMergeOptions(branch string) MergeOptions {
	return MergeOptions{branch: branch, fastForward: true, autoCommit: true}
}

// FastForward set to false always creates a merge commit.
func (o MergeOptions) FastForward(ff bool) MergeOptions {
	o.fastForward = ff
	return o
}

func (o MergeOptions) FastForwardOnly(only bool) MergeOptions {
	o.ffOnly = only
	return o
}

// AutoCommit set to false stops before the merge commit is recorded.
func (o MergeOptions) AutoCommit(commit bool) MergeOptions {
	o.autoCommit = commit
	return o
}

func (o MergeOptions) Message(message string) MergeOptions {
	o.message = message
	return o
}

func (o MergeOptions) Author(s Signature) MergeOptions {
	o.author = &s
	return o
}

func (o MergeOptions) Build() (MergeRequest, error) {
	if err := requireText("branch", o.branch); err != nil {
		return MergeRequest{}, err
	}
	ff, err := resolveFastForward(o.fastForward, o.ffOnly)
	if err != nil {
		return MergeRequest{}, err
	}
	if o.author != nil {
		if err := o.author.validate("author"); err != nil {
			return MergeRequest{}, err
		}
	}
	return MergeRequest{
		Branch:      o.branch,
		FastForward: ff,
		AutoCommit:  o.autoCommit,
		Message:     o.message,
		Author:      o.author,
	}, nil
}

func resolveFastForward(ff, only bool) (FastForward, error) {
	switch {
	case only && !ff:
		return "", toolerr.InvalidOption("fast_forward_only", "cannot be combined with fast_forward=false")
	case only:
		return FastForwardOnly, nil
	case !ff:
		return FastForwardNever, nil
	default:
		return FastForwardAllow, nil
	}
}

// PullOptions builds a PullRequest.
type PullOptions struct {
	remote      string
	branch      string
	fastForward bool
	ffOnly      bool
	autoCommit  bool
	author      *Signature
}

// PullRequest fetches Remote and merges the upstream of Branch (the current
// branch when empty) into the current branch.
type PullRequest struct {
	Fetch       FetchRequest
	Branch      string
	FastForward FastForward
	AutoCommit  bool
	Author      *Signature
}

func NewPullOptions() PullOptions {
	return PullOptions{remote: DefaultRemote, fastForward: true, autoCommit: true}
}

func (o PullOptions) Remote(name string) PullOptions {
	o.remote = name
	return o
}

func (o PullOptions) Branch(name string) PullOptions {
	o.branch = name
	return o
}

func (o PullOptions) FastForward(ff bool) PullOptions {
	o.fastForward = ff
	return o
}

func (o PullOptions) FastForwardOnly(only bool) PullOptions {
	o.ffOnly = only
	return o
}

func (o PullOptions) AutoCommit(commit bool) PullOptions {
	o.autoCommit = commit
	return o
}

func (o PullOptions) Author(s Signature) PullOptions {
	o.author = &s
	return o
}

func (o PullOptions) Build() (PullRequest, error) {
	fetch, err := NewFetchOptions().Remote(o.remote).Build()
	if err != nil {
		return PullRequest{}, err
	}
	if o.branch != "" {
		if err := validateBranchName("branch", o.branch); err != nil {
			return PullRequest{}, err
		}
	}
	ff, err := resolveFastForward(o.fastForward, o.ffOnly)
	if err != nil {
		return PullRequest{}, err
	}
	if o.author != nil {
		if err := o.author.validate("author"); err != nil {
			return PullRequest{}, err
		}
	}
	return PullRequest{
		Fetch:       fetch,
		Branch:      o.branch,
		FastForward: ff,
		AutoCommit:  o.autoCommit,
		Author:      o.author,
	}, nil
}

// RemoteAddOptions builds a RemoteAddRequest.
type RemoteAddOptions struct {
	name  string
	url   string
	force bool
}

// RemoteAddRequest configures a new remote.
type RemoteAddRequest struct {
	Name  string
	URL   string
	Force bool
}

func NewRemoteAddOptions(name, url string) RemoteAddOptions {
	return RemoteAddOptions{name: name, url: url}
}

// Force replaces an existing remote with the same name.
func (o RemoteAddOptions) Force(force bool) RemoteAddOptions {
	o.force = force
	return o
}

func (o RemoteAddOptions) Build() (RemoteAddRequest, error) {
	if err := validateRemoteName("name", o.name); err != nil {
		return RemoteAddRequest{}, err
	}
	if err := requireText("url", o.url); err != nil {
		return RemoteAddRequest{}, err
	}
	return RemoteAddRequest{Name: o.name, URL: o.url, Force: o.force}, nil
}

// RemoteRemoveOptions builds a RemoteRemoveRequest.
type RemoteRemoveOptions struct {
	name string
}

// RemoteRemoveRequest deletes a remote and its tracking refs.
type RemoteRemoveRequest struct {
	Name string
}

func NewRemoteRemoveOptions(name string) RemoteRemoveOptions {
	return RemoteRemoveOptions{name: name}
}

func (o RemoteRemoveOptions) Build() (RemoteRemoveRequest, error) {
	if err := requireText("name", o.name); err != nil {
		return RemoteRemoveRequest{}, err
	}
	return RemoteRemoveRequest{Name: o.name}, nil
}

// PushOptions builds a PushRequest.
type PushOptions struct {
	remote   string
	refSpecs []string
	force    bool
	tags     bool
}

// PushRequest sends refs to Remote. Empty RefSpecs push the current branch.
type PushRequest struct {
	Remote   string
	RefSpecs []config.RefSpec
	Force    bool
	Tags     bool
}

func NewPushOptions() PushOptions {
	return PushOptions{remote: DefaultRemote}
}

func (o PushOptions) Remote(name string) PushOptions {
	o.remote = name
	return o
}

// RefSpecs pushes these refspecs. A bare name pushes the local ref of the
// same name.
func (o PushOptions) RefSpecs(specs ...string) PushOptions {
	o.refSpecs = clonePaths(specs)
	return o
}

// Force overwrites remote refs that are not ancestors of the pushed ones.
func (o PushOptions) Force(force bool) PushOptions {
	o.force = force
	return o
}

// Tags also pushes every local tag.
func (o PushOptions) Tags(tags bool) PushOptions {
	o.tags = tags
	return o
}

func (o PushOptions) Build() (PushRequest, error) {
	remote := o.remote
	if remote == "" {
		remote = DefaultRemote
	}
	if err := validateRemoteName("remote", remote); err != nil {
		return PushRequest{}, err
	}

	specs := make([]config.RefSpec, 0, len(o.refSpecs))
	for _, s := range o.refSpecs {
		spec := config.RefSpec(s)
		if !strings.Contains(s, ":") {
			src := strings.TrimPrefix(s, "+")
			if !strings.HasPrefix(src, "refs/") {
				src = "refs/heads/" + src
			}
			if err := plumbing.ReferenceName(src).Validate(); err != nil {
				return PushRequest{}, toolerr.InvalidOption("refspecs", "invalid refspec "+s)
			}
			spec = config.RefSpec(src + ":" + src)
			if strings.HasPrefix(s, "+") {
				spec = "+" + spec
			}
		}
		if err := spec.Validate(); err != nil {
			return PushRequest{}, toolerr.InvalidOption("refspecs", "invalid refspec "+s)
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		specs = nil
	}

	return PushRequest{
		Remote:   remote,
		RefSpecs: specs,
		Force:    o.force,
		Tags:     o.tags,
	}, nil
}
