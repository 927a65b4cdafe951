package health

import (
	"github.com/gomantics/gitmcp/api/web"
	"github.com/gomantics/gitmcp/domains/tools"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// GetResponse is the health check response
type GetResponse struct {
	Status            string `json:"status"`
	CatalogVersion    string `json:"catalog_version"`
	Tools             int    `json:"tools"`
	ActiveInvocations int    `json:"active_invocations"`
}

func Configure(e *echo.Echo, l *zap.Logger, d *tools.Dispatcher) {
	e.GET("/v1/health", web.Wrap(func(c web.Context) error {
		return Get(c, d)
	}, l))
}

// Get handles GET /v1/health
func Get(c web.Context, d *tools.Dispatcher) error {
	catalog := d.Catalog()
	return c.OK(GetResponse{
		Status:            "ok",
		CatalogVersion:    catalog.Version(),
		Tools:             len(catalog.Names()),
		ActiveInvocations: d.Active(),
	})
}
