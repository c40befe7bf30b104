package echoapi

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

const readinessTimeout = 2 * time.Second

type healthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Uptime  string            `json:"uptime,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}

func (s *Server) health(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, healthResponse{
		Status:  "ok",
		Version: s.deps.Conf.Build,
		Uptime:  NowFunc().Sub(s.started).Round(time.Second).String(),
	})
}

// ready pings every backing service.
func (s *Server) ready(ctx echo.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx.Request().Context(), readinessTimeout)
	defer cancel()

	res := healthResponse{Status: "ok", Checks: make(map[string]string, len(s.deps.Checks))}
	code := http.StatusOK
	for name, check := range s.deps.Checks {
		if err := check.PingContext(pingCtx); err != nil {
			res.Checks[name] = err.Error()
			res.Status = "unavailable"
			code = http.StatusServiceUnavailable
			continue
		}
		res.Checks[name] = "ok"
	}
	return ctx.JSON(code, res)
}
