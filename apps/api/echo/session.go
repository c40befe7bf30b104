package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/educore/core/auth"
)

func registerSessionAPI(g *echo.Group, gate func(string) echo.MiddlewareFunc) {
	g.GET("/session", currentSession, gate(auth.ActionCurrentSession))
}

func currentSession(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, getContextGrant(ctx).Session())
}
