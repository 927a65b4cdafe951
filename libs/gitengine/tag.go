package gitengine

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/gomantics/gitmcp/domains/options"
	"github.com/gomantics/gitmcp/domains/toolerr"
	"go.uber.org/zap"
)

// TagInfo describes a tag. Target is the commit it points at; the tagger
// fields are only set for annotated tags.
type TagInfo struct {
	Name        string
	Target      string
	Annotated   bool
	Message     string
	TaggerName  string
	TaggerEmail string
	TaggerWhen  time.Time
}

// CreateTag tags req.Target. A message makes an annotated tag. With
// req.Force an existing tag of the same name is replaced.
func (e *Engine) CreateTag(ctx context.Context, r *Repo, req options.TagRequest) (TagInfo, error) {
	if err := ctx.Err(); err != nil {
		return TagInfo{}, classify("tag_create", r.Root, err)
	}

	hash, err := resolve("tag_create", r, req.Target)
	if err != nil {
		return TagInfo{}, err
	}

	name := plumbing.NewTagReferenceName(req.Name)
	existing, err := r.Git.Storer.Reference(name)
	switch {
	case err == nil && !req.Force:
		return TagInfo{}, toolerr.New(toolerr.KindAlreadyExists, "tag %q already exists", req.Name).WithOp("tag_create", r.Root)
	case err == nil:
		if err := r.Git.Storer.RemoveReference(name); err != nil {
			return TagInfo{}, classify("tag_create", r.Root, err)
		}
	case !errors.Is(err, plumbing.ErrReferenceNotFound):
		return TagInfo{}, classify("tag_create", r.Root, err)
	}

	var opts *git.CreateTagOptions
	if req.Message != "" {
		opts = &git.CreateTagOptions{Tagger: e.signature(req.Tagger), Message: req.Message}
	}

	ref, err := r.Git.CreateTag(req.Name, hash, opts)
	if err != nil {
		if existing != nil {
			if restoreErr := r.Git.Storer.SetReference(existing); restoreErr != nil {
				e.l.Warn("failed to restore replaced tag", zap.String("path", r.Root), zap.String("tag", req.Name), zap.Error(restoreErr))
			}
		}
		return TagInfo{}, classify("tag_create", r.Root, err)
	}

	e.l.Debug("tag created", zap.String("path", r.Root), zap.String("tag", req.Name), zap.Bool("annotated", opts != nil))
	return tagInfo(r, ref)
}

// DeleteTag removes a tag and returns what it pointed at.
func (e *Engine) DeleteTag(ctx context.Context, r *Repo, req options.TagRequest) (TagInfo, error) {
	if err := ctx.Err(); err != nil {
		return TagInfo{}, classify("tag_delete", r.Root, err)
	}

	ref, err := r.Git.Tag(req.Name)
	if errors.Is(err, git.ErrTagNotFound) {
		return TagInfo{}, toolerr.New(toolerr.KindNotFound, "tag %q not found", req.Name).WithOp("tag_delete", r.Root)
	}
	if err != nil {
		return TagInfo{}, classify("tag_delete", r.Root, err)
	}

	info, err := tagInfo(r, ref)
	if err != nil {
		return TagInfo{}, err
	}
	if err := r.Git.DeleteTag(req.Name); err != nil {
		return TagInfo{}, classify("tag_delete", r.Root, err)
	}
	return info, nil
}

// Tags lists every tag sorted by name.
func (e *Engine) Tags(ctx context.Context, r *Repo) ([]TagInfo, error) {
	iter, err := r.Git.Tags()
	if err != nil {
		return nil, classify("tag_list", r.Root, err)
	}
	defer iter.Close()

	var tags []TagInfo
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		info, err := tagInfo(r, ref)
		if err != nil {
			return err
		}
		tags = append(tags, info)
		return nil
	})
	if err != nil {
		return nil, classify("tag_list", r.Root, err)
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

func tagInfo(r *Repo, ref *plumbing.Reference) (TagInfo, error) {
	info := TagInfo{Name: ref.Name().Short(), Target: ref.Hash().String()}

	tag, err := r.Git.TagObject(ref.Hash())
	switch {
	case errors.Is(err, plumbing.ErrObjectNotFound):
		return info, nil
	case err != nil:
		return TagInfo{}, classify("tag", r.Root, err)
	}

	info.Annotated = true
	info.Message = strings.TrimRight(tag.Message, "\n")
	info.TaggerName = tag.Tagger.Name
	info.TaggerEmail = tag.Tagger.Email
	info.TaggerWhen = tag.Tagger.When
	info.Target = tag.Target.String()
	if c, err := tag.Commit(); err == nil {
		info.Target = c.Hash.String()
	} else if !errors.Is(err, object.ErrUnsupportedObject) {
		return TagInfo{}, classify("tag", r.Root, err)
	}
	return info, nil
}
