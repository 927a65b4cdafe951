package gitengine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/gomantics/gitmcp/domains/toolerr"
	"go.uber.org/zap"
)

// run executes the git binary in dir and returns its stdout.
func (e *Engine) run(ctx context.Context, op, dir string, env []string, args ...string) (string, error) {
	stdout, _, err := e.exec(ctx, op, dir, env, args...)
	return stdout, err
}

// exec executes the git binary in dir. On failure the combined output is
// classified into a tool error; stdout is returned either way.
func (e *Engine) exec(ctx context.Context, op, dir string, env []string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, e.cfg.Binary, args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "LC_ALL=C")
	cmd.Env = append(cmd.Env, env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.l.Debug("running git", zap.String("op", op), zap.String("dir", dir), zap.Strings("args", args))

	err := cmd.Run()
	if err == nil {
		return stdout.String(), stderr.String(), nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", "", toolerr.Wrap(toolerr.KindCancelled, ctxErr, "operation cancelled").WithOp(op, dir)
	}
	if errors.Is(err, exec.ErrNotFound) {
		return "", "", toolerr.Wrap(toolerr.KindEngine, err, "git binary %q not available", e.cfg.Binary).WithOp(op, dir)
	}

	output := strings.TrimSpace(stderr.String() + "\n" + stdout.String())
	return stdout.String(), stderr.String(), classifyCLI(op, dir, output, err)
}

// signatureEnv pins author and committer for git invocations that create commits.
func signatureEnv(author, committer *object.Signature) []string {
	date := func(s *object.Signature) string {
		return fmt.Sprintf("@%d %s", s.When.Unix(), s.When.Format("-0700"))
	}
	return []string{
		"GIT_AUTHOR_NAME=" + author.Name,
		"GIT_AUTHOR_EMAIL=" + author.Email,
		"GIT_AUTHOR_DATE=" + date(author),
		"GIT_COMMITTER_NAME=" + committer.Name,
		"GIT_COMMITTER_EMAIL=" + committer.Email,
		"GIT_COMMITTER_DATE=" + date(committer),
	}
}
