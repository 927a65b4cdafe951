package gitengine

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/storage"
	"github.com/gomantics/gitmcp/domains/toolerr"
)

// classify maps go-git, transport, storage and OS errors onto tool error kinds.
func classify(op, path string, err error) error {
	if err == nil {
		return nil
	}

	var te *toolerr.Error
	if errors.As(err, &te) {
		return te.WithOp(op, path)
	}

	kind, retryable, msg := classifyKind(err)
	e := toolerr.Wrap(kind, err, "%s", msg).WithOp(op, path)
	e.Retryable = retryable
	return e
}

func classifyKind(err error) (toolerr.Kind, bool, string) {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return toolerr.KindCancelled, false, "operation cancelled"

	case errors.Is(err, git.ErrRepositoryNotExists):
		return toolerr.KindNotARepository, false, "not a git repository"
	case errors.Is(err, git.ErrRepositoryAlreadyExists),
		errors.Is(err, git.ErrBranchExists),
		errors.Is(err, git.ErrRemoteExists),
		errors.Is(err, git.ErrTagExists):
		return toolerr.KindAlreadyExists, false, "already exists"
	case errors.Is(err, git.ErrBranchNotFound),
		errors.Is(err, git.ErrRemoteNotFound),
		errors.Is(err, plumbing.ErrReferenceNotFound),
		errors.Is(err, plumbing.ErrObjectNotFound),
		errors.Is(err, git.ErrTagNotFound),
		errors.Is(err, transport.ErrRepositoryNotFound):
		return toolerr.KindNotFound, false, "not found"

	case errors.Is(err, storage.ErrReferenceHasChanged):
		return toolerr.KindConflict, true, "reference changed concurrently"
	case errors.Is(err, git.ErrNonFastForwardUpdate),
		errors.Is(err, git.ErrFastForwardMergeNotPossible),
		errors.Is(err, git.ErrForceNeeded),
		isRejectedPush(err):
		return toolerr.KindConflict, false, "non-fast-forward update"

	case errors.Is(err, git.ErrUnstagedChanges),
		errors.Is(err, git.ErrWorktreeNotClean):
		return toolerr.KindFailedPrecondition, false, "worktree has local changes"
	case errors.Is(err, git.ErrIsBareRepository):
		return toolerr.KindFailedPrecondition, false, "operation requires a worktree"
	case errors.Is(err, git.ErrEmptyCommit):
		return toolerr.KindFailedPrecondition, false, "nothing to commit"
	case errors.Is(err, transport.ErrEmptyRemoteRepository):
		return toolerr.KindFailedPrecondition, false, "remote repository is empty"

	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed):
		return toolerr.KindIO, false, "authentication failed"
	case errors.Is(err, fs.ErrNotExist):
		return toolerr.KindNotFound, false, "not found"
	case errors.Is(err, fs.ErrExist):
		return toolerr.KindAlreadyExists, false, "already exists"
	case isLockError(err):
		return toolerr.KindLocked, true, "repository is locked"
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return toolerr.KindIO, false, "filesystem failure"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return toolerr.KindIO, false, "network failure"
	}

	return toolerr.KindEngine, false, "git engine failure"
}

// isRejectedPush matches the unexported error go-git returns when a push
// would move a remote ref backwards.
func isRejectedPush(err error) bool {
	return strings.HasPrefix(err.Error(), "non-fast-forward update: ")
}

func isLockError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, ".lock") && (strings.Contains(msg, "exists") || strings.Contains(msg, "locked"))
}

// cliPatterns maps git CLI diagnostics to kinds. Order matters.
var cliPatterns = []struct {
	substr    string
	kind      toolerr.Kind
	retryable bool
}{
	{".lock': File exists", toolerr.KindLocked, true},
	{"index.lock", toolerr.KindLocked, true},
	{"another git process seems to be running", toolerr.KindLocked, true},
	{"not a git repository", toolerr.KindNotARepository, false},
	{"is already checked out at", toolerr.KindFailedPrecondition, false},
	{"is already used by worktree at", toolerr.KindFailedPrecondition, false},
	{"already checked out", toolerr.KindFailedPrecondition, false},
	{"is a main working tree", toolerr.KindFailedPrecondition, false},
	{"is not locked", toolerr.KindFailedPrecondition, false},
	{"is already locked", toolerr.KindFailedPrecondition, false},
	{"cannot remove a locked working tree", toolerr.KindFailedPrecondition, false},
	{"is locked", toolerr.KindFailedPrecondition, false},
	{"contains modified or untracked files", toolerr.KindFailedPrecondition, false},
	{"would be overwritten", toolerr.KindFailedPrecondition, false},
	{"Not possible to fast-forward", toolerr.KindFailedPrecondition, false},
	{"refusing to merge unrelated histories", toolerr.KindFailedPrecondition, false},
	{"do not have the initial commit yet", toolerr.KindFailedPrecondition, false},
	{"already exists", toolerr.KindAlreadyExists, false},
	{"is not a working tree", toolerr.KindNotFound, false},
	{"invalid reference", toolerr.KindNotFound, false},
	{"not something we can merge", toolerr.KindNotFound, false},
	{"did not match any file(s) known to git", toolerr.KindNotFound, false},
	{"pathspec", toolerr.KindNotFound, false},
}

// classifyCLI maps the output of a failed git invocation.
func classifyCLI(op, path, output string, cause error) *toolerr.Error {
	msg := firstLine(output)
	if msg == "" {
		msg = "git command failed"
	}

	for _, p := range cliPatterns {
		if strings.Contains(output, p.substr) {
			e := toolerr.Wrap(p.kind, cause, "%s", msg).WithOp(op, path)
			e.Retryable = p.retryable
			return e
		}
	}
	return toolerr.Wrap(toolerr.KindEngine, cause, "%s", msg).WithOp(op, path)
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "fatal: ")
		line = strings.TrimPrefix(line, "error: ")
		if line != "" {
			return line
		}
	}
	return ""
}
