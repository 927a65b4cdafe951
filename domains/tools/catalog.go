// Package tools exposes repository operations as named, schema-validated
// tools and dispatches calls to them.
package tools

import (
	"context"
	"slices"

	"github.com/gomantics/gitmcp/domains/executor"
	"github.com/gomantics/gitmcp/libs/gitengine"
	"github.com/valyala/fasttemplate"
)

// CatalogVersion identifies the tool surface. It changes whenever a tool,
// argument or result shape changes.
const CatalogVersion = "2026-10"

// Group is a family of related tools.
type Group string

const (
	GroupRepository Group = "repository"
	GroupBranch     Group = "branch"
	GroupCore       Group = "core"
	GroupRemote     Group = "remote"
	GroupWorktree   Group = "worktree"
)

// Mode describes how a tool delivers its output.
type Mode string

const (
	// ModeUnary tools return one result.
	ModeUnary Mode = "unary"
	// ModeStream tools emit one partial event per item.
	ModeStream Mode = "stream"
	// ModeProgress tools emit progress events followed by one partial
	// carrying the result.
	ModeProgress Mode = "progress"
)

// Tool describes one callable tool.
type Tool struct {
	Name         string  `json:"name"`
	Group        Group   `json:"group"`
	Mode         Mode    `json:"mode"`
	ReadOnly     bool    `json:"read_only"`
	Description  string  `json:"description"`
	InputSchema  *Schema `json:"input_schema"`
	OutputSchema *Schema `json:"output_schema"`

	summary *fasttemplate.Template
	decode  func(data []byte) (any, error)
	unary   func(ctx context.Context, s *session, args any) (any, error)
	stream  func(ctx context.Context, s *session, args any, em *executor.Emitter[any]) error
}

// Catalog is the fixed table of tools. It is built once and never modified.
type Catalog struct {
	version string
	tools   []*Tool
	byName  map[string]*Tool
}

// NewCatalog builds the tool catalog.
func NewCatalog() *Catalog {
	var all []*Tool
	all = append(all, repositoryTools()...)
	all = append(all, branchTools()...)
	all = append(all, coreTools()...)
	all = append(all, remoteTools()...)
	all = append(all, worktreeTools()...)

	c := &Catalog{
		version: CatalogVersion,
		tools:   all,
		byName:  make(map[string]*Tool, len(all)),
	}
	for _, t := range all {
		if _, dup := c.byName[t.Name]; dup {
			panic("duplicate tool " + t.Name)
		}
		c.byName[t.Name] = t
	}
	return c
}

// Version returns the catalog version.
func (c *Catalog) Version() string {
	return c.version
}

// Tools returns the tools in catalog order.
func (c *Catalog) Tools() []Tool {
	out := make([]Tool, 0, len(c.tools))
	for _, t := range c.tools {
		out = append(out, *t)
	}
	return out
}

// Names returns the tool names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.tools))
	for _, t := range c.tools {
		names = append(names, t.Name)
	}
	return names
}

// Lookup returns the tool called name.
func (c *Catalog) Lookup(name string) (Tool, bool) {
	t, ok := c.byName[name]
	if !ok {
		return Tool{}, false
	}
	return *t, true
}

func (c *Catalog) lookup(name string) (*Tool, bool) {
	t, ok := c.byName[name]
	return t, ok
}

// Group returns the tools of g in catalog order.
func (c *Catalog) Group(g Group) []Tool {
	var out []Tool
	for _, t := range c.tools {
		if t.Group == g {
			out = append(out, *t)
		}
	}
	return slices.Clip(out)
}

// def is the static part of a tool definition.
type def struct {
	name     string
	group    Group
	readOnly bool
	desc     string
	summary  string
}

func (d def) tool(mode Mode) *Tool {
	return &Tool{
		Name:        d.name,
		Group:       d.group,
		Mode:        mode,
		ReadOnly:    d.readOnly,
		Description: d.desc,
		summary:     fasttemplate.New(d.summary, "{", "}"),
	}
}

func unaryTool[A, R any](d def, run func(ctx context.Context, s *session, args A) (R, error)) *Tool {
	t := d.tool(ModeUnary)
	t.InputSchema = schemaFor[A](true)
	t.OutputSchema = schemaFor[R](false)
	t.decode = argsDecoder[A](d.name, t.InputSchema.Required)
	t.unary = func(ctx context.Context, s *session, args any) (any, error) {
		return run(ctx, s, args.(A))
	}
	return t
}

func streamTool[A, R any](d def, run func(ctx context.Context, s *session, args A, yield func(R) error) error) *Tool {
	t := d.tool(ModeStream)
	t.InputSchema = schemaFor[A](true)
	t.OutputSchema = schemaFor[R](false)
	t.decode = argsDecoder[A](d.name, t.InputSchema.Required)
	t.stream = func(ctx context.Context, s *session, args any, em *executor.Emitter[any]) error {
		return run(ctx, s, args.(A), func(item R) error {
			return em.Item(item)
		})
	}
	return t
}

func progressTool[A, R any](d def, run func(ctx context.Context, s *session, args A, progress gitengine.ProgressFunc) (R, error)) *Tool {
	t := d.tool(ModeProgress)
	t.InputSchema = schemaFor[A](true)
	t.OutputSchema = schemaFor[R](false)
	t.decode = argsDecoder[A](d.name, t.InputSchema.Required)
	t.stream = func(ctx context.Context, s *session, args any, em *executor.Emitter[any]) error {
		result, err := run(ctx, s, args.(A), func(p gitengine.Progress) {
			// a cancelled emitter stops the transfer through ctx
			_ = em.Progress(executor.Progress{Phase: p.Phase, Done: p.Done, Total: p.Total})
		})
		if err != nil {
			return err
		}
		return em.Item(result)
	}
	return t
}
