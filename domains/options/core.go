package options

import (
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/gomantics/gitmcp/domains/toolerr"
)

// CommitOptions builds a CommitRequest.
type CommitOptions struct {
	message    string
	all        bool
	paths      []string
	author     *Signature
	committer  *Signature
	allowEmpty bool
}

// CommitRequest records a new commit on HEAD.
type CommitRequest struct {
	Message    string
	All        bool
	Paths      []string
	Author     *Signature
	Committer  *Signature
	AllowEmpty bool
}

// NewCommitOptions starts a commit builder. Empty commits are allowed unless
// disabled with AllowEmpty(false).
func NewCommitOptions(message string) CommitOptions {
	return CommitOptions{message: message, allowEmpty: true}
}

func (o CommitOptions) Message(message string) CommitOptions {
	o.message = message
	return o
}

// All stages every tracked modification before committing.
func (o CommitOptions) All(all bool) CommitOptions {
	o.all = all
	return o
}

// Paths stages exactly these paths before committing.
func (o CommitOptions) Paths(paths ...string) CommitOptions {
	o.paths = clonePaths(paths)
	return o
}

// AddPath returns a copy with p appended to the staged paths.
func (o CommitOptions) AddPath(p string) CommitOptions {
	o.paths = append(slices.Clip(o.paths), p)
	return o
}

func (o CommitOptions) Author(s Signature) CommitOptions {
	o.author = &s
	return o
}

func (o CommitOptions) Committer(s Signature) CommitOptions {
	o.committer = &s
	return o
}

func (o CommitOptions) AllowEmpty(allow bool) CommitOptions {
	o.allowEmpty = allow
	return o
}

func (o CommitOptions) Build() (CommitRequest, error) {
	if err := requireText("message", o.message); err != nil {
		return CommitRequest{}, err
	}
	if o.all && len(o.paths) > 0 {
		return CommitRequest{}, toolerr.InvalidOption("paths", "cannot be combined with all")
	}
	if err := validateRelativePaths("paths", o.paths); err != nil {
		return CommitRequest{}, err
	}
	if o.author != nil {
		if err := o.author.validate("author"); err != nil {
			return CommitRequest{}, err
		}
	}
	if o.committer != nil {
		if err := o.committer.validate("committer"); err != nil {
			return CommitRequest{}, err
		}
	}

	return CommitRequest{
		Message:    o.message,
		All:        o.all,
		Paths:      clonePaths(o.paths),
		Author:     o.author,
		Committer:  o.committer,
		AllowEmpty: o.allowEmpty,
	}, nil
}

// LogOrder selects the history traversal order.
type LogOrder string

const (
	LogOrderDefault       LogOrder = "default"
	LogOrderDFS           LogOrder = "dfs"
	LogOrderDFSPost       LogOrder = "dfs_post"
	LogOrderBFS           LogOrder = "bfs"
	LogOrderCommitterTime LogOrder = "committer_time"
)

var logOrders = []LogOrder{LogOrderDefault, LogOrderDFS, LogOrderDFSPost, LogOrderBFS, LogOrderCommitterTime}

// LogOptions builds a LogRequest.
type LogOptions struct {
	from       string
	maxCount   int
	skip       int
	pathFilter string
	since      *time.Time
	until      *time.Time
	order      LogOrder
	all        bool
}

// LogRequest walks history. MaxCount zero means unlimited.
type LogRequest struct {
	From       string
	MaxCount   int
	Skip       int
	PathFilter string
	Since      *time.Time
	Until      *time.Time
	Order      LogOrder
	All        bool
}

func NewLogOptions() LogOptions {
	return LogOptions{order: LogOrderDefault}
}

// From starts the walk at rev instead of HEAD.
func (o LogOptions) From(rev string) LogOptions {
	o.from = rev
	return o
}

func (o LogOptions) MaxCount(n int) LogOptions {
	o.maxCount = n
	return o
}

func (o LogOptions) Skip(n int) LogOptions {
	o.skip = n
	return o
}

// PathFilter keeps commits touching the given path or directory prefix.
func (o LogOptions) PathFilter(p string) LogOptions {
	o.pathFilter = p
	return o
}

func (o LogOptions) Since(t time.Time) LogOptions {
	o.since = &t
	return o
}

func (o LogOptions) Until(t time.Time) LogOptions {
	o.until = &t
	return o
}

func (o LogOptions) Order(order LogOrder) LogOptions {
	o.order = order
	return o
}

// All walks every reference instead of a single start point.
func (o LogOptions) All(all bool) LogOptions {
	o.all = all
	return o
}

func (o LogOptions) Build() (LogRequest, error) {
	if o.maxCount < 0 {
		return LogRequest{}, toolerr.InvalidOption("max_count", "must not be negative")
	}
	if o.skip < 0 {
		return LogRequest{}, toolerr.InvalidOption("skip", "must not be negative")
	}
	if o.since != nil && o.until != nil && o.since.After(*o.until) {
		return LogRequest{}, toolerr.InvalidOption("since", "must not be after until")
	}
	order := o.order
	if order == "" {
		order = LogOrderDefault
	}
	if !slices.Contains(logOrders, order) {
		return LogRequest{}, toolerr.InvalidOption("order", "unknown order "+string(order))
	}
	if o.all && o.from != "" {
		return LogRequest{}, toolerr.InvalidOption("from", "cannot be combined with all")
	}
	if o.pathFilter != "" {
		if err := validateRelativePaths("path_filter", []string{o.pathFilter}); err != nil {
			return LogRequest{}, err
		}
	}

	return LogRequest{
		From:       o.from,
		MaxCount:   o.maxCount,
		Skip:       o.skip,
		PathFilter: o.pathFilter,
		Since:      o.since,
		Until:      o.until,
		Order:      order,
		All:        o.all,
	}, nil
}

// AddOptions builds an AddRequest.
type AddOptions struct {
	paths []string
	all   bool
}

// AddRequest stages paths, or everything when All is set.
type AddRequest struct {
	Paths []string
	All   bool
}

func NewAddOptions(paths ...string) AddOptions {
	return AddOptions{paths: clonePaths(paths)}
}

func (o AddOptions) Paths(paths ...string) AddOptions {
	o.paths = clonePaths(paths)
	return o
}

func (o AddOptions) All(all bool) AddOptions {
	o.all = all
	return o
}

func (o AddOptions) Build() (AddRequest, error) {
	if o.all && len(o.paths) > 0 {
		return AddRequest{}, toolerr.InvalidOption("paths", "cannot be combined with all")
	}
	if !o.all && len(o.paths) == 0 {
		return AddRequest{}, toolerr.InvalidOption("paths", "must not be empty unless all is set")
	}
	if err := validateRelativePaths("paths", o.paths); err != nil {
		return AddRequest{}, err
	}
	return AddRequest{Paths: clonePaths(o.paths), All: o.all}, nil
}

// CheckoutOptions builds a CheckoutRequest.
type CheckoutOptions struct {
	target string
	create bool
	force  bool
	paths  []string
}

// CheckoutRequest switches HEAD to Target, or restores Paths from Target
// (HEAD when empty) without moving HEAD.
type CheckoutRequest struct {
	Target string
	Create bool
	Force  bool
	Paths  []string
}

func NewCheckoutOptions(target string) CheckoutOptions {
	return CheckoutOptions{target: target}
}

// Create creates Target as a new branch at HEAD before switching to it.
func (o CheckoutOptions) Create(create bool) CheckoutOptions {
	o.create = create
	return o
}

// Force discards local changes that would be overwritten.
func (o CheckoutOptions) Force(force bool) CheckoutOptions {
	o.force = force
	return o
}

func (o CheckoutOptions) Paths(paths ...string) CheckoutOptions {
	o.paths = clonePaths(paths)
	return o
}

func (o CheckoutOptions) Build() (CheckoutRequest, error) {
	if o.target == "" && len(o.paths) == 0 {
		return CheckoutRequest{}, toolerr.InvalidOption("target", "must not be empty unless paths are given")
	}
	if o.create && len(o.paths) > 0 {
		return CheckoutRequest{}, toolerr.InvalidOption("create", "cannot be combined with paths")
	}
	if o.create {
		if err := validateBranchName("target", o.target); err != nil {
			return CheckoutRequest{}, err
		}
	}
	if err := validateRelativePaths("paths", o.paths); err != nil {
		return CheckoutRequest{}, err
	}
	return CheckoutRequest{
		Target: o.target,
		Create: o.create,
		Force:  o.force,
		Paths:  clonePaths(o.paths),
	}, nil
}

// ResetMode selects what a reset touches.
type ResetMode string

const (
	ResetSoft  ResetMode = "soft"
	ResetMixed ResetMode = "mixed"
	ResetHard  ResetMode = "hard"
)

// ResetOptions builds a ResetRequest.
type ResetOptions struct {
	target string
	mode   ResetMode
}

// ResetRequest moves HEAD to Target.
type ResetRequest struct {
	Target string
	Mode   ResetMode
}

// NewResetOptions starts a mixed reset to HEAD.
func NewResetOptions() ResetOptions {
	return ResetOptions{mode: ResetMixed}
}

func (o ResetOptions) Target(rev string) ResetOptions {
	o.target = rev
	return o
}

func (o ResetOptions) Mode(mode ResetMode) ResetOptions {
	o.mode = mode
	return o
}

func (o ResetOptions) Build() (ResetRequest, error) {
	mode := o.mode
	if mode == "" {
		mode = ResetMixed
	}
	switch mode {
	case ResetSoft, ResetMixed, ResetHard:
	default:
		return ResetRequest{}, toolerr.InvalidOption("mode", "must be one of soft, mixed, hard")
	}
	target := o.target
	if target == "" {
		target = "HEAD"
	}
	return ResetRequest{Target: target, Mode: mode}, nil
}

// DiffOptions builds a DiffRequest.
type DiffOptions struct {
	from   string
	to     string
	staged bool
	paths  []string
	patch  bool
}

// DiffRequest compares From with To. An empty To compares with the working
// tree, or with the index when Staged is set.
type DiffRequest struct {
	From   string
	To     string
	Staged bool
	Paths  []string
	Patch  bool
}

// NewDiffOptions compares HEAD with the working tree.
func NewDiffOptions() DiffOptions {
	return DiffOptions{from: "HEAD"}
}

func (o DiffOptions) From(rev string) DiffOptions {
	o.from = rev
	return o
}

func (o DiffOptions) To(rev string) DiffOptions {
	o.to = rev
	return o
}

// Staged compares with the index instead of the working tree.
func (o DiffOptions) Staged(staged bool) DiffOptions {
	o.staged = staged
	return o
}

// Paths limits the diff to these paths or directories.
func (o DiffOptions) Paths(paths ...string) DiffOptions {
	o.paths = clonePaths(paths)
	return o
}

// Patch includes the unified diff text in the result.
func (o DiffOptions) Patch(patch bool) DiffOptions {
	o.patch = patch
	return o
}

func (o DiffOptions) Build() (DiffRequest, error) {
	from := o.from
	if from == "" {
		from = "HEAD"
	}
	if strings.HasPrefix(from, "-") {
		return DiffRequest{}, toolerr.InvalidOption("from", "is not a valid revision")
	}
	if strings.HasPrefix(o.to, "-") {
		return DiffRequest{}, toolerr.InvalidOption("to", "is not a valid revision")
	}
	if o.staged && o.to != "" {
		return DiffRequest{}, toolerr.InvalidOption("staged", "cannot be combined with to")
	}
	if err := validateRelativePaths("paths", o.paths); err != nil {
		return DiffRequest{}, err
	}
	return DiffRequest{
		From:   from,
		To:     o.to,
		Staged: o.staged,
		Paths:  clonePaths(o.paths),
		Patch:  o.patch,
	}, nil
}

// DefaultHistoryCount bounds a file history walk unless MaxCount says otherwise.
const DefaultHistoryCount = 20

// HistoryOptions builds a HistoryRequest.
type HistoryOptions struct {
	file     string
	from     string
	maxCount int
	search   string
}

// HistoryRequest walks the commits that changed File, newest first, with
// the diff each one made to it.
type HistoryRequest struct {
	File     string
	From     string
	MaxCount int
	Search   *regexp.Regexp
}

func NewHistoryOptions(file string) HistoryOptions {
	return HistoryOptions{file: file, maxCount: DefaultHistoryCount}
}

// From starts the walk at rev instead of HEAD.
func (o HistoryOptions) From(rev string) HistoryOptions {
	o.from = rev
	return o
}

// MaxCount stops after n matching commits. Zero means unlimited.
func (o HistoryOptions) MaxCount(n int) HistoryOptions {
	o.maxCount = n
	return o
}

// Search keeps only commits whose diff matches the regular expression.
func (o HistoryOptions) Search(pattern string) HistoryOptions {
	o.search = pattern
	return o
}

func (o HistoryOptions) Build() (HistoryRequest, error) {
	if err := requireText("file", o.file); err != nil {
		return HistoryRequest{}, err
	}
	if o.file == "." {
		return HistoryRequest{}, toolerr.InvalidOption("file", "must name a file")
	}
	if err := validateRelativePaths("file", []string{o.file}); err != nil {
		return HistoryRequest{}, err
	}
	if o.maxCount < 0 {
		return HistoryRequest{}, toolerr.InvalidOption("max_count", "must not be negative")
	}

	req := HistoryRequest{
		File:     filepath.ToSlash(filepath.Clean(o.file)),
		From:     o.from,
		MaxCount: o.maxCount,
	}
	if o.search != "" {
		re, err := regexp.Compile(o.search)
		if err != nil {
			return HistoryRequest{}, toolerr.InvalidOption("search", "invalid regular expression: "+err.Error())
		}
		req.Search = re
	}
	return req, nil
}
