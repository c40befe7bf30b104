package echoapi

import (
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/action"
)

const headerRetryAfter = "Retry-After"

type errorResponse struct {
	Error    string            `json:"error"`
	Signal   action.Signal     `json:"signal,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

var signalCodes = map[action.Signal]int{
	action.OK:                    http.StatusOK,
	action.RequireLogin:          http.StatusUnauthorized,
	action.RequireLoginExpired:   http.StatusUnauthorized,
	action.Forbidden:             http.StatusForbidden,
	action.Throttled:             http.StatusTooManyRequests,
	action.ValidationError:       http.StatusBadRequest,
	action.NotFound:              http.StatusNotFound,
	action.Conflict:              http.StatusConflict,
	action.TransientNetworkError: http.StatusServiceUnavailable,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that maps our errors to action signals.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(p *action.Pipeline, sessionCookie string, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var (
			code int
			body errorResponse
		)

		var herr *echo.HTTPError
		if errors.As(err, &herr) { // routing & binding errors
			if herr.Internal != nil {
				if ierr, ok := herr.Internal.(*echo.HTTPError); ok {
					herr = ierr
				}
			}
			code = herr.Code
			body.Error = fmt.Sprint(herr.Message)
		} else {
			res := p.Bridge().FromError(err)
			p.Report(getContextAction(ctx), res)

			code = signalCodes[res.Signal]
			body = errorResponse{Error: res.Message, Signal: res.Signal, Redirect: res.Redirect}
			if len(res.Fields) > 0 {
				body.Fields = make(map[string]string, len(res.Fields))
				for _, fErr := range res.Fields {
					body.Fields[fErr.Field] = fErr.Error
				}
			}
			if res.RetryAfter > 0 {
				ctx.Response().Header().Set(headerRetryAfter, strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
			}
			if res.ClearSession && sessionCookie != "" {
				ctx.SetCookie(&http.Cookie{Name: sessionCookie, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
			}

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, body)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
