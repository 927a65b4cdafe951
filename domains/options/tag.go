package options

import (
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/gomantics/gitmcp/domains/toolerr"
)

// TagOperation selects what a tag call does.
type TagOperation string

const (
	TagCreate TagOperation = "create"
	TagDelete TagOperation = "delete"
	TagList   TagOperation = "list"
)

// TagOptions builds a TagRequest.
type TagOptions struct {
	op      TagOperation
	name    string
	target  string
	message string
	force   bool
	tagger  *Signature
}

// TagRequest creates, deletes or lists tags. A create with a Message makes
// an annotated tag, otherwise a lightweight one.
type TagRequest struct {
	Operation TagOperation
	Name      string
	Target    string
	Message   string
	Force     bool
	Tagger    *Signature
}

func NewTagOptions(op TagOperation) TagOptions {
	return TagOptions{op: op}
}

func (o TagOptions) Name(name string) TagOptions {
	o.name = name
	return o
}

// Target tags rev instead of HEAD.
func (o TagOptions) Target(rev string) TagOptions {
	o.target = rev
	return o
}

func (o TagOptions) Message(message string) TagOptions {
	o.message = message
	return o
}

// Force replaces an existing tag with the same name.
func (o TagOptions) Force(force bool) TagOptions {
	o.force = force
	return o
}

func (o TagOptions) Tagger(s Signature) TagOptions {
	o.tagger = &s
	return o
}

func (o TagOptions) Build() (TagRequest, error) {
	op := o.op
	if op == "" {
		op = TagList
	}

	switch op {
	case TagList:
		if o.name != "" || o.target != "" || o.message != "" || o.force {
			return TagRequest{}, toolerr.InvalidOption("operation", "list takes no tag arguments")
		}
		return TagRequest{Operation: op}, nil
	case TagDelete:
		if err := validateTagName("name", o.name); err != nil {
			return TagRequest{}, err
		}
		if o.target != "" || o.message != "" || o.force {
			return TagRequest{}, toolerr.InvalidOption("operation", "delete only takes a name")
		}
		return TagRequest{Operation: op, Name: o.name}, nil
	case TagCreate:
	default:
		return TagRequest{}, toolerr.InvalidOption("operation", "must be one of create, delete, list")
	}

	if err := validateTagName("name", o.name); err != nil {
		return TagRequest{}, err
	}
	if o.message != "" && strings.TrimSpace(o.message) == "" {
		return TagRequest{}, toolerr.InvalidOption("message", "must not be blank")
	}
	if o.tagger != nil {
		if err := o.tagger.validate("tagger"); err != nil {
			return TagRequest{}, err
		}
	}
	target := o.target
	if target == "" {
		target = "HEAD"
	}
	return TagRequest{
		Operation: op,
		Name:      o.name,
		Target:    target,
		Message:   o.message,
		Force:     o.force,
		Tagger:    o.tagger,
	}, nil
}

func validateTagName(field, name string) error {
	if name == "" {
		return toolerr.InvalidOption(field, "must not be empty")
	}
	if strings.HasPrefix(name, "-") {
		return toolerr.InvalidOption(field, "is not a valid tag name")
	}
	if err := plumbing.NewTagReferenceName(name).Validate(); err != nil {
		return toolerr.InvalidOption(field, "is not a valid tag name")
	}
	return nil
}

// StashOperation selects what a stash call does.
type StashOperation string

const (
	StashSave StashOperation = "save"
	StashPop  StashOperation = "pop"
	StashList StashOperation = "list"
)

// StashOptions builds a StashRequest.
type StashOptions struct {
	op               StashOperation
	message          string
	includeUntracked bool
	index            int
}

// StashRequest saves local changes onto the stash, pops entry Index back or
// lists the entries.
type StashRequest struct {
	Operation        StashOperation
	Message          string
	IncludeUntracked bool
	Index            int
}

func NewStashOptions(op StashOperation) StashOptions {
	return StashOptions{op: op}
}

func (o StashOptions) Message(message string) StashOptions {
	o.message = message
	return o
}

// IncludeUntracked also stashes untracked files.
func (o StashOptions) IncludeUntracked(include bool) StashOptions {
	o.includeUntracked = include
	return o
}

// Index selects the entry to pop, 0 being the newest.
func (o StashOptions) Index(i int) StashOptions {
	o.index = i
	return o
}

func (o StashOptions) Build() (StashRequest, error) {
	op := o.op
	if op == "" {
		op = StashSave
	}

	switch op {
	case StashSave:
		if o.index != 0 {
			return StashRequest{}, toolerr.InvalidOption("index", "only applies to pop")
		}
		if strings.ContainsAny(o.message, "\n") {
			return StashRequest{}, toolerr.InvalidOption("message", "must be a single line")
		}
		return StashRequest{Operation: op, Message: o.message, IncludeUntracked: o.includeUntracked}, nil
	case StashPop:
		if o.index < 0 {
			return StashRequest{}, toolerr.InvalidOption("index", "must not be negative")
		}
		if o.message != "" || o.includeUntracked {
			return StashRequest{}, toolerr.InvalidOption("operation", "pop only takes an index")
		}
		return StashRequest{Operation: op, Index: o.index}, nil
	case StashList:
		if o.message != "" || o.includeUntracked || o.index != 0 {
			return StashRequest{}, toolerr.InvalidOption("operation", "list takes no arguments")
		}
		return StashRequest{Operation: op}, nil
	default:
		return StashRequest{}, toolerr.InvalidOption("operation", "must be one of save, pop, list")
	}
}
