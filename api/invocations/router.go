package invocations

import (
	"github.com/gomantics/gitmcp/api/web"
	"github.com/gomantics/gitmcp/domains/tools"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type handler struct {
	d *tools.Dispatcher
}

func Configure(e *echo.Echo, l *zap.Logger, d *tools.Dispatcher) {
	h := &handler{d: d}

	e.GET("/v1/tools", web.Wrap(h.List, l))
	e.GET("/v1/tools/:name", web.Wrap(h.Get, l))
	e.POST("/v1/tools/:name", web.Wrap(h.Call, l))
	e.POST("/v1/invoke", web.Wrap(h.Invoke, l))
	e.DELETE("/v1/invocations/:id", web.Wrap(h.Cancel, l))
}
