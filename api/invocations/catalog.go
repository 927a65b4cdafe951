package invocations

import (
	"github.com/gomantics/gitmcp/api/web"
	"github.com/gomantics/gitmcp/domains/tools"
)

// ListResponse is the response for listing tools
type ListResponse struct {
	Version string       `json:"version"`
	Tools   []tools.Tool `json:"tools"`
}

// List handles GET /v1/tools
func (h *handler) List(c web.Context) error {
	catalog := h.d.Catalog()

	list := catalog.Tools()
	if g := c.QueryParam("group"); g != "" {
		list = catalog.Group(tools.Group(g))
	}
	if list == nil {
		list = []tools.Tool{}
	}

	return c.OK(ListResponse{
		Version: catalog.Version(),
		Tools:   list,
	})
}

// Get handles GET /v1/tools/:name
func (h *handler) Get(c web.Context) error {
	t, ok := h.d.Catalog().Lookup(c.Param("name"))
	if !ok {
		return c.NotFound("unknown tool")
	}
	return c.OK(t)
}
