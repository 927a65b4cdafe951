package gitengine

import (
	"context"
	"strconv"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/gomantics/gitmcp/domains/options"
	"github.com/gomantics/gitmcp/domains/toolerr"
	"go.uber.org/zap"
)

// StashEntry is one entry of the stash, Index 0 being the newest.
type StashEntry struct {
	Index   int
	Name    string
	Commit  string
	Message string
}

// go-git has no stash support, so every stash operation runs the git binary.

// StashSave moves local changes onto the stash and returns the new entry.
func (e *Engine) StashSave(ctx context.Context, r *Repo, req options.StashRequest) (StashEntry, error) {
	if r.Bare {
		return StashEntry{}, classify("stash_save", r.Root, git.ErrIsBareRepository)
	}

	args := []string{"stash", "push"}
	if req.IncludeUntracked {
		args = append(args, "--include-untracked")
	}
	if req.Message != "" {
		args = append(args, "-m", req.Message)
	}

	sig := e.signature(nil)
	stdout, stderr, err := e.exec(ctx, "stash_save", r.Root, signatureEnv(sig, sig), args...)
	if err != nil {
		return StashEntry{}, err
	}
	if strings.Contains(stdout+stderr, "No local changes to save") {
		return StashEntry{}, toolerr.New(toolerr.KindFailedPrecondition, "no local changes to save").WithOp("stash_save", r.Root)
	}

	entries, err := e.StashList(ctx, r)
	if err != nil {
		return StashEntry{}, err
	}
	if len(entries) == 0 {
		return StashEntry{}, toolerr.New(toolerr.KindEngine, "stash entry missing after save").WithOp("stash_save", r.Root)
	}

	e.l.Debug("changes stashed", zap.String("path", r.Root), zap.String("commit", entries[0].Commit))
	return entries[0], nil
}

// StashPop applies entry req.Index and drops it. On conflict the entry is
// kept and the conflicting paths are reported.
func (e *Engine) StashPop(ctx context.Context, r *Repo, req options.StashRequest) (StashEntry, error) {
	if r.Bare {
		return StashEntry{}, classify("stash_pop", r.Root, git.ErrIsBareRepository)
	}

	entries, err := e.StashList(ctx, r)
	if err != nil {
		return StashEntry{}, err
	}
	if req.Index >= len(entries) {
		return StashEntry{}, toolerr.New(toolerr.KindNotFound, "stash entry %d not found", req.Index).WithOp("stash_pop", r.Root)
	}
	entry := entries[req.Index]

	stdout, stderr, err := e.exec(ctx, "stash_pop", r.Root, nil, "stash", "pop", entry.Name)
	if err != nil {
		if conflicts := parseConflicts(stdout + "\n" + stderr); len(conflicts) > 0 {
			ce := toolerr.Wrap(toolerr.KindConflict, err, "stash conflicts in %s", strings.Join(conflicts, ", ")).WithOp("stash_pop", r.Root)
			ce.Reason = "conflicting paths: " + strings.Join(conflicts, ", ")
			return StashEntry{}, ce.AsRetryable(false)
		}
		return StashEntry{}, err
	}
	return entry, nil
}

// StashList returns the stash entries, newest first.
func (e *Engine) StashList(ctx context.Context, r *Repo) ([]StashEntry, error) {
	out, err := e.run(ctx, "stash_list", r.Root, nil, "stash", "list", "--format=%H%x00%gs")
	if err != nil {
		return nil, err
	}
	return parseStashList(out), nil
}

func parseStashList(out string) []StashEntry {
	var entries []StashEntry
	for _, line := range strings.Split(out, "\n") {
		commit, message, ok := strings.Cut(line, "\x00")
		if !ok {
			continue
		}
		i := len(entries)
		entries = append(entries, StashEntry{
			Index:   i,
			Name:    "stash@{" + strconv.Itoa(i) + "}",
			Commit:  commit,
			Message: message,
		})
	}
	return entries
}
