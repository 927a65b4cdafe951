package tools

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/gomantics/gitmcp/config"
	"github.com/gomantics/gitmcp/domains/executor"
	"github.com/gomantics/gitmcp/domains/handles"
	"github.com/gomantics/gitmcp/domains/toolerr"
	"github.com/gomantics/gitmcp/libs/gitengine"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Call is one tool invocation.
type Call struct {
	Name      string
	Arguments json.RawMessage
	// InvocationID correlates events and cancellation; generated when empty.
	InvocationID string
	// WorkDir resolves relative paths; the configured work dir when empty.
	WorkDir string
	// Timeout bounds the invocation; the executor default when zero.
	Timeout time.Duration
}

// Outcome is the output of a dispatched call: a Result for unary tools or a
// Stream for streaming and progress tools.
type Outcome struct {
	InvocationID string
	Tool         string
	Mode         Mode
	Result       any
	Stream       *executor.Stream[any]
}

// Dispatcher routes calls to the tools of a catalog.
type Dispatcher struct {
	l        *zap.Logger
	catalog  *Catalog
	engine   *gitengine.Engine
	registry *handles.Registry
	exec     *executor.Executor
	workDir  string
}

// NewDispatcher creates a dispatcher. Relative paths of calls without a work
// dir resolve against workDir, or the process working directory when it is
// empty.
func NewDispatcher(l *zap.Logger, catalog *Catalog, engine *gitengine.Engine, registry *handles.Registry, exec *executor.Executor, workDir string) *Dispatcher {
	return &Dispatcher{
		l:        l,
		catalog:  catalog,
		engine:   engine,
		registry: registry,
		exec:     exec,
		workDir:  workDir,
	}
}

// NewFromConfig creates a dispatcher using the configured work dir.
func NewFromConfig(l *zap.Logger, catalog *Catalog, engine *gitengine.Engine, registry *handles.Registry, exec *executor.Executor) *Dispatcher {
	return NewDispatcher(l, catalog, engine, registry, exec, config.Server.WorkDir())
}

// Catalog returns the catalog the dispatcher serves.
func (d *Dispatcher) Catalog() *Catalog {
	return d.catalog
}

// Active returns the number of running invocations.
func (d *Dispatcher) Active() int {
	return d.exec.Active()
}

// Cancel cancels a running invocation. It reports whether id was running.
func (d *Dispatcher) Cancel(id string) bool {
	return d.exec.Cancel(id)
}

// Dispatch validates the call arguments and runs the tool. Invalid
// arguments are rejected before any repository is opened.
func (d *Dispatcher) Dispatch(ctx context.Context, c Call) (*Outcome, error) {
	t, ok := d.catalog.lookup(c.Name)
	if !ok {
		return nil, toolerr.InvalidArguments("unknown tool %q", c.Name).WithOp(c.Name, "")
	}

	args, err := t.decode(c.Arguments)
	if err != nil {
		return nil, err
	}

	id := c.InvocationID
	if id == "" {
		id = uuid.NewString()
	}
	l := d.l.With(zap.String("tool", t.Name), zap.String("invocation_id", id))

	ctx, done, err := d.exec.Begin(ctx, id, c.Timeout)
	if err != nil {
		return nil, toolerr.From(err).WithOp(t.Name, "")
	}

	s := &session{d: d, tool: t, l: l, workDir: c.WorkDir}
	out := &Outcome{InvocationID: id, Tool: t.Name, Mode: t.Mode}

	if t.unary != nil {
		defer done()
		l.Debug("dispatching tool")
		result, err := executor.Do(ctx, d.exec, t.Name, func(ctx context.Context) (any, error) {
			return t.unary(ctx, s, args)
		})
		if err != nil {
			logFailure(l, err)
			return nil, err
		}
		out.Result = result
		return out, nil
	}

	l.Debug("streaming tool")
	out.Stream = executor.Start(ctx, d.exec, t.Name, func(ctx context.Context, em *executor.Emitter[any]) error {
		return t.stream(ctx, s, args, em)
	})
	return out, nil
}

func logFailure(l *zap.Logger, err error) {
	te := toolerr.From(err)
	switch te.Kind {
	case toolerr.KindIO, toolerr.KindEngine:
		l.Error("tool failed", zap.Error(err))
	case toolerr.KindCancelled:
		l.Debug("tool cancelled")
	default:
		l.Info("tool rejected", zap.String("kind", te.Kind.String()), zap.String("message", te.Message))
	}
}

// argsDecoder returns a strict decoder for the arguments of tool. The payload
// must be a JSON object holding every required field and nothing unknown.
func argsDecoder[A any](tool string, required []string) func(data []byte) (any, error) {
	return func(data []byte) (any, error) {
		var args A

		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			data = []byte("{}")
		}
		if !json.Valid(data) {
			return nil, toolerr.InvalidArguments("arguments are not valid JSON").WithOp(tool, "")
		}
		if data[0] != '{' {
			return nil, toolerr.InvalidArguments("arguments must be a JSON object").WithOp(tool, "")
		}

		var present map[string]json.RawMessage
		if err := json.Unmarshal(data, &present); err != nil {
			return nil, toolerr.Wrap(toolerr.KindInvalidArguments, err, "arguments must be a JSON object").WithOp(tool, "")
		}
		for _, name := range required {
			if _, ok := present[name]; !ok {
				e := toolerr.InvalidArguments("missing required field %q", name).WithOp(tool, "")
				e.Field = name
				return nil, e
			}
		}

		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&args); err != nil {
			return nil, toolerr.Wrap(toolerr.KindInvalidArguments, err, "invalid arguments").WithOp(tool, "")
		}
		return args, nil
	}
}

// session carries the per-call state tools need.
type session struct {
	d       *Dispatcher
	tool    *Tool
	l       *zap.Logger
	workDir string
}

func (s *session) engine() *gitengine.Engine {
	return s.d.engine
}

func (s *session) registry() *handles.Registry {
	return s.d.registry
}

// path resolves p against the call's work dir.
func (s *session) path(p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}

	base := s.workDir
	if base == "" {
		base = s.d.workDir
	}
	if base == "" {
		if wd, err := os.Getwd(); err == nil {
			base = wd
		}
	}
	return filepath.Join(base, p)
}

// repo returns a handle for the repository containing path. A path that does
// not lead to a repository is reported as repository_not_found.
func (s *session) repo(path string) (*handles.Handle, error) {
	abs := s.path(path)
	h, err := s.registry().Discover(abs)
	if err == nil {
		return h, nil
	}

	te := toolerr.From(err)
	switch te.Kind {
	case toolerr.KindNotFound, toolerr.KindNotARepository:
		return nil, toolerr.Wrap(toolerr.KindRepositoryNotFound, err, "no repository found at %s", path).WithOp(s.tool.Name, abs)
	default:
		return nil, te.WithOp(s.tool.Name, abs)
	}
}

// write returns a handle for the repository containing path together with
// its write lease. Both are released by the returned func.
func (s *session) write(path string) (*handles.Handle, func(), error) {
	h, err := s.repo(path)
	if err != nil {
		return nil, nil, err
	}
	release, err := s.registry().WriteLease(s.tool.Name, h)
	if err != nil {
		_ = h.Close()
		return nil, nil, err
	}
	return h, func() {
		release()
		_ = h.Close()
	}, nil
}

// summarize renders the tool's summary line.
func (s *session) summarize(values map[string]any) string {
	return s.tool.summary.ExecuteString(values)
}
