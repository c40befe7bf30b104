package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/educore/core/action"
	"github.com/trezcool/educore/core/auth"
)

const (
	metricsPath = "/metrics"

	contextGrantKey  = "grant"
	contextActionKey = "action"
)

// admissionMiddleware runs admission control before anything else, so that
// requests without a session are counted too.
func admissionMiddleware(p *action.Pipeline, clientIDHeader string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if ctx.Path() == metricsPath {
				return next(ctx)
			}
			res := p.Admit(ctx.Request().Context(), clientID(ctx, clientIDHeader), NowFunc())
			if res.Failed() {
				return action.Fail(res)
			}
			return next(ctx)
		}
	}
}

// gateMiddleware guards the route as the named action.
func gateMiddleware(p *action.Pipeline, sessionCookie, name string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctx.Set(contextActionKey, name)

			grant, res := p.Guard(sessionToken(ctx, sessionCookie), name, NowFunc())
			if res.Failed() {
				return action.Fail(res)
			}
			ctx.Set(contextGrantKey, grant)

			err := next(ctx)
			if err == nil {
				p.Report(name, action.Result{Signal: action.OK})
			}
			return err
		}
	}
}

func clientID(ctx echo.Context, header string) string {
	if header != "" {
		if id := strings.TrimSpace(ctx.Request().Header.Get(header)); id != "" {
			return id
		}
	}
	return ctx.RealIP()
}

// sessionToken reads the credential from the Authorization header, else from the session cookie.
func sessionToken(ctx echo.Context, cookieName string) string {
	if authz := ctx.Request().Header.Get(echo.HeaderAuthorization); authz != "" {
		if strings.HasPrefix(authz, "Bearer ") {
			return strings.TrimSpace(authz[len("Bearer "):])
		}
		return ""
	}
	if cookieName == "" {
		return ""
	}
	if cookie, err := ctx.Cookie(cookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func getContextGrant(ctx echo.Context) auth.Grant {
	grant, _ := ctx.Get(contextGrantKey).(auth.Grant)
	return grant
}

func getContextAction(ctx echo.Context) string {
	name, _ := ctx.Get(contextActionKey).(string)
	return name
}
