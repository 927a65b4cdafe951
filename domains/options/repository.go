package options

import (
	"strings"

	"github.com/gomantics/gitmcp/domains/toolerr"
)

// InitOptions builds an InitRequest.
type InitOptions struct {
	path          string
	bare          bool
	initialBranch string
}

// InitRequest is a validated repository initialization.
type InitRequest struct {
	Path          string
	Bare          bool
	InitialBranch string
}

func NewInitOptions(path string) InitOptions {
	return InitOptions{path: path}
}

func (o InitOptions) Bare(bare bool) InitOptions {
	o.bare = bare
	return o
}

func (o InitOptions) InitialBranch(name string) InitOptions {
	o.initialBranch = name
	return o
}

func (o InitOptions) Build() (InitRequest, error) {
	if err := requireText("path", o.path); err != nil {
		return InitRequest{}, err
	}
	if o.initialBranch != "" {
		if err := validateBranchName("initial_branch", o.initialBranch); err != nil {
			return InitRequest{}, err
		}
	}
	return InitRequest{Path: o.path, Bare: o.bare, InitialBranch: o.initialBranch}, nil
}

// CloneOptions builds a CloneRequest.
type CloneOptions struct {
	url          string
	path         string
	branch       string
	depth        int
	bare         bool
	singleBranch bool
	remote       string
}

// CloneRequest is a validated clone.
type CloneRequest struct {
	URL          string
	Path         string
	Branch       string
	Depth        int
	Bare         bool
	SingleBranch bool
	Remote       string
}

func NewCloneOptions(url, path string) CloneOptions {
	return CloneOptions{url: url, path: path}
}

func (o CloneOptions) Branch(name string) CloneOptions {
	o.branch = name
	return o
}

func (o CloneOptions) Depth(depth int) CloneOptions {
	o.depth = depth
	return o
}

func (o CloneOptions) Bare(bare bool) CloneOptions {
	o.bare = bare
	return o
}

func (o CloneOptions) SingleBranch(single bool) CloneOptions {
	o.singleBranch = single
	return o
}

func (o CloneOptions) Remote(name string) CloneOptions {
	o.remote = name
	return o
}

func (o CloneOptions) Build() (CloneRequest, error) {
	if err := requireText("url", o.url); err != nil {
		return CloneRequest{}, err
	}
	if strings.ContainsAny(o.url, " \n\t") {
		return CloneRequest{}, toolerr.InvalidOption("url", "must not contain whitespace")
	}
	if err := requireText("path", o.path); err != nil {
		return CloneRequest{}, err
	}
	if o.depth < 0 {
		return CloneRequest{}, toolerr.InvalidOption("depth", "must not be negative")
	}
	if o.branch != "" {
		if err := validateBranchName("branch", o.branch); err != nil {
			return CloneRequest{}, err
		}
	}
	if o.singleBranch && o.branch == "" {
		return CloneRequest{}, toolerr.InvalidOption("single_branch", "requires branch")
	}

	remote := o.remote
	if remote == "" {
		remote = DefaultRemote
	}
	if err := validateRemoteName("remote", remote); err != nil {
		return CloneRequest{}, err
	}

	return CloneRequest{
		URL:          o.url,
		Path:         o.path,
		Branch:       o.branch,
		Depth:        o.depth,
		Bare:         o.bare,
		SingleBranch: o.singleBranch,
		Remote:       remote,
	}, nil
}
