package tools

import (
	"context"
	"strconv"

	"github.com/gomantics/gitmcp/domains/options"
	"github.com/gomantics/gitmcp/libs/gitengine"
)

type TagArgs struct {
	Path        string `json:"path"`
	Operation   string `json:"operation,omitempty" enum:"create,delete,list" desc:"list by default"`
	Name        string `json:"name,omitempty"`
	Target      string `json:"target,omitempty" desc:"revision to tag, HEAD by default"`
	Message     string `json:"message,omitempty" desc:"make an annotated tag with this message"`
	Force       bool   `json:"force,omitempty" desc:"replace an existing tag with the same name"`
	TaggerName  string `json:"tagger_name,omitempty"`
	TaggerEmail string `json:"tagger_email,omitempty"`
}

type StashArgs struct {
	Path             string `json:"path"`
	Operation        string `json:"operation,omitempty" enum:"save,pop,list" desc:"save by default"`
	Message          string `json:"message,omitempty"`
	IncludeUntracked bool   `json:"include_untracked,omitempty" desc:"also stash untracked files"`
	Index            int    `json:"index,omitempty" desc:"entry to pop, 0 being the newest"`
}

// Tag is the tool view of a tag.
type Tag struct {
	Name      string  `json:"name"`
	Target    string  `json:"target"`
	Annotated bool    `json:"annotated"`
	Message   string  `json:"message,omitempty"`
	Tagger    *Person `json:"tagger,omitempty"`
}

func newTag(t gitengine.TagInfo) Tag {
	tag := Tag{Name: t.Name, Target: t.Target, Annotated: t.Annotated, Message: t.Message}
	if t.Annotated {
		tag.Tagger = &Person{Name: t.TaggerName, Email: t.TaggerEmail, When: t.TaggerWhen}
	}
	return tag
}

// TagResult describes the tags a tag call created, deleted or listed.
type TagResult struct {
	Operation string `json:"operation" enum:"create,delete,list"`
	Tags      []Tag  `json:"tags"`
	Summary   string `json:"summary"`
}

// StashEntry is one entry of the stash.
type StashEntry struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Commit  string `json:"commit"`
	Message string `json:"message"`
}

func newStashEntry(e gitengine.StashEntry) StashEntry {
	return StashEntry{Index: e.Index, Name: e.Name, Commit: e.Commit, Message: e.Message}
}

// StashResult describes the entries a stash call saved, popped or listed.
type StashResult struct {
	Operation string       `json:"operation" enum:"save,pop,list"`
	Entries   []StashEntry `json:"entries"`
	Summary   string       `json:"summary"`
}

func tag(ctx context.Context, s *session, args TagArgs) (TagResult, error) {
	o := options.NewTagOptions(options.TagOperation(args.Operation)).
		Name(args.Name).
		Target(args.Target).
		Message(args.Message).
		Force(args.Force)
	if args.TaggerName != "" || args.TaggerEmail != "" {
		o = o.Tagger(options.NewSignature(args.TaggerName, args.TaggerEmail))
	}
	req, err := o.Build()
	if err != nil {
		return TagResult{}, err
	}

	var infos []gitengine.TagInfo
	if req.Operation == options.TagList {
		h, err := s.repo(args.Path)
		if err != nil {
			return TagResult{}, err
		}
		defer h.Close()

		if infos, err = s.engine().Tags(ctx, h.Repo()); err != nil {
			return TagResult{}, err
		}
	} else {
		h, release, err := s.write(args.Path)
		if err != nil {
			return TagResult{}, err
		}
		defer release()

		var info gitengine.TagInfo
		if req.Operation == options.TagCreate {
			info, err = s.engine().CreateTag(ctx, h.Repo(), req)
		} else {
			info, err = s.engine().DeleteTag(ctx, h.Repo(), req)
		}
		if err != nil {
			return TagResult{}, err
		}
		infos = []gitengine.TagInfo{info}
	}

	tags := make([]Tag, 0, len(infos))
	for _, t := range infos {
		tags = append(tags, newTag(t))
	}

	var state string
	switch req.Operation {
	case options.TagCreate:
		state = "created " + req.Name + " at " + shortHash(tags[0].Target)
	case options.TagDelete:
		state = "deleted " + req.Name + " (was " + shortHash(tags[0].Target) + ")"
	default:
		state = strconv.Itoa(len(tags)) + " tag(s)"
	}
	return TagResult{
		Operation: string(req.Operation),
		Tags:      tags,
		Summary:   s.summarize(map[string]any{"state": state}),
	}, nil
}

func stash(ctx context.Context, s *session, args StashArgs) (StashResult, error) {
	req, err := options.NewStashOptions(options.StashOperation(args.Operation)).
		Message(args.Message).
		IncludeUntracked(args.IncludeUntracked).
		Index(args.Index).
		Build()
	if err != nil {
		return StashResult{}, err
	}

	var entries []gitengine.StashEntry
	if req.Operation == options.StashList {
		h, err := s.repo(args.Path)
		if err != nil {
			return StashResult{}, err
		}
		defer h.Close()

		if entries, err = s.engine().StashList(ctx, h.Repo()); err != nil {
			return StashResult{}, err
		}
	} else {
		h, release, err := s.write(args.Path)
		if err != nil {
			return StashResult{}, err
		}
		defer release()

		var entry gitengine.StashEntry
		if req.Operation == options.StashSave {
			entry, err = s.engine().StashSave(ctx, h.Repo(), req)
		} else {
			entry, err = s.engine().StashPop(ctx, h.Repo(), req)
		}
		if err != nil {
			return StashResult{}, err
		}
		entries = []gitengine.StashEntry{entry}
	}

	out := make([]StashEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, newStashEntry(e))
	}

	var state string
	switch req.Operation {
	case options.StashSave:
		state = "saved " + out[0].Name + ": " + out[0].Message
	case options.StashPop:
		state = "popped " + out[0].Name + ": " + out[0].Message
	default:
		state = strconv.Itoa(len(out)) + " stash entries"
	}
	return StashResult{
		Operation: string(req.Operation),
		Entries:   out,
		Summary:   s.summarize(map[string]any{"state": state}),
	}, nil
}
