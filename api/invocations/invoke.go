package invocations

import (
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/gomantics/gitmcp/api/web"
	"github.com/gomantics/gitmcp/domains/tools"
	"go.uber.org/zap"
)

// maxArgumentsSize bounds request bodies of tool calls.
const maxArgumentsSize = 1 << 20

// InvokeRequest is the request body for invoking a tool
type InvokeRequest struct {
	ToolName     string          `json:"tool_name"`
	Arguments    json.RawMessage `json:"arguments,omitempty"`
	InvocationID string          `json:"invocation_id,omitempty"`
	Cwd          string          `json:"cwd,omitempty"`
	TimeoutMs    int64           `json:"timeout_ms,omitempty"`
}

// InvokeResponse is the response of a unary tool
type InvokeResponse struct {
	InvocationID string `json:"invocation_id"`
	Tool         string `json:"tool"`
	Result       any    `json:"result"`
}

// Invoke handles POST /v1/invoke
func (h *handler) Invoke(c web.Context) error {
	var req InvokeRequest
	if err := c.Bind(&req); err != nil {
		return c.BadRequest("invalid request body")
	}

	if req.ToolName == "" {
		return c.BadRequest("tool_name is required")
	}

	if req.TimeoutMs < 0 {
		return c.BadRequest("timeout_ms must not be negative")
	}

	return h.dispatch(c, tools.Call{
		Name:         req.ToolName,
		Arguments:    req.Arguments,
		InvocationID: req.InvocationID,
		WorkDir:      req.Cwd,
		Timeout:      time.Duration(req.TimeoutMs) * time.Millisecond,
	})
}

// Call handles POST /v1/tools/:name. The body holds the tool arguments;
// invocation_id, cwd and timeout_ms are taken from the query.
func (h *handler) Call(c web.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxArgumentsSize+1))
	if err != nil {
		return c.BadRequest("invalid request body")
	}
	if len(body) > maxArgumentsSize {
		return c.BadRequest("arguments too large")
	}

	var timeout time.Duration
	if v := c.QueryParam("timeout_ms"); v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ms < 0 {
			return c.BadRequest("invalid timeout_ms")
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	return h.dispatch(c, tools.Call{
		Name:         c.Param("name"),
		Arguments:    body,
		InvocationID: c.QueryParam("invocation_id"),
		WorkDir:      c.QueryParam("cwd"),
		Timeout:      timeout,
	})
}

func (h *handler) dispatch(c web.Context, call tools.Call) error {
	ctx := c.Request().Context()

	out, err := h.d.Dispatch(ctx, call)
	if err != nil {
		return c.ToolError(err)
	}

	c.Response().Header().Set(web.HeaderInvocationID, out.InvocationID)
	if out.Stream != nil {
		c.L.Debug("streaming invocation",
			zap.String("tool", out.Tool),
			zap.String("invocation_id", out.InvocationID),
		)
		return c.Stream(out.Stream)
	}

	return c.OK(InvokeResponse{
		InvocationID: out.InvocationID,
		Tool:         out.Tool,
		Result:       out.Result,
	})
}

// Cancel handles DELETE /v1/invocations/:id
func (h *handler) Cancel(c web.Context) error {
	id := c.Param("id")
	if !h.d.Cancel(id) {
		return c.NotFound("no running invocation with this id")
	}

	c.L.Info("invocation cancelled", zap.String("invocation_id", id))
	return c.NoContent()
}
