package action

import (
	"context"
	"fmt"
	"net"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/admission"
	"github.com/trezcool/educore/core/auth"
)

const (
	msgLoginRequired  = "authentication required"
	msgSessionExpired = "your session has expired, please log in again"
	msgForbidden      = "you are not allowed to perform this action"
	msgUnavailable    = "service temporarily unavailable, please try again"
)

// Bridge turns gate outcomes, admission decisions and errors into Results.
type Bridge struct {
	loginPath        string
	unauthorizedPath string
	translator       ut.Translator
	logger           core.Logger
}

func NewBridge(conf *core.Config, translator ut.Translator, logger core.Logger) *Bridge {
	return &Bridge{
		loginPath:        conf.Server.LoginPath,
		unauthorizedPath: conf.Server.UnauthorizedPath,
		translator:       translator,
		logger:           logger,
	}
}

// requireLogin discards the cached session only when a credential was presented.
func (b *Bridge) requireLogin(presented bool) Result {
	return Result{Signal: RequireLogin, Message: msgLoginRequired, Redirect: b.loginPath, ClearSession: presented}
}

func (b *Bridge) requireLoginExpired() Result {
	return Result{
		Signal:       RequireLoginExpired,
		Message:      msgSessionExpired,
		Redirect:     b.loginPath + "?expired=true",
		ClearSession: true,
	}
}

func (b *Bridge) forbidden() Result {
	return Result{Signal: Forbidden, Message: msgForbidden, Redirect: b.unauthorizedPath}
}

// FromOutcome maps a gate outcome. RedirectLogin also covers malformed credentials,
// so it discards the cached session. FromGuard keeps it when no credential was presented.
func (b *Bridge) FromOutcome(outcome auth.Outcome) Result {
	switch outcome {
	case auth.Proceed:
		return Result{Signal: OK}
	case auth.RedirectLogin:
		return b.requireLogin(true)
	case auth.RedirectLoginExpired:
		return b.requireLoginExpired()
	default:
		return b.forbidden()
	}
}

// FromGuard maps the outcome of guarding token: a missing credential leaves nothing to discard.
func (b *Bridge) FromGuard(token string, outcome auth.Outcome) Result {
	res := b.FromOutcome(outcome)
	if token == "" {
		res.ClearSession = false
	}
	return res
}

// Throttle maps a refused admission decision.
func (b *Bridge) Throttle(d admission.Decision, now time.Time) Result {
	return b.throttled(d.RetryAfter(now))
}

func (b *Bridge) throttled(retryAfter time.Duration) Result {
	if retryAfter < time.Second {
		retryAfter = time.Second
	}
	return Result{
		Signal:     Throttled,
		Message:    (&core.ThrottledError{RetryAfter: retryAfter}).Error(),
		RetryAfter: retryAfter,
	}
}

// FromError maps err to exactly one signal. Errors of unknown kind are logged and
// reported as transient.
func (b *Bridge) FromError(err error) Result {
	if err == nil {
		return Result{Signal: OK}
	}

	var (
		failure   *Failure
		vErrs     validator.ValidationErrors
		valErr    *core.ValidationError
		throttled *core.ThrottledError
		transient *core.TransientError
		netErr    net.Error
	)
	switch {
	case errors.As(err, &failure):
		return failure.Result

	case errors.As(err, &vErrs):
		return b.validation(core.TranslateValidationErrors(vErrs, b.translator).(*core.ValidationError))
	case errors.As(err, &valErr):
		return b.validation(valErr)

	case errors.As(err, &throttled):
		return b.throttled(throttled.RetryAfter)
	case errors.Is(err, core.ErrAuthenticationRequired):
		return b.requireLogin(false)
	case errors.Is(err, core.ErrSessionExpired):
		return b.requireLoginExpired()
	case errors.Is(err, core.ErrPermissionDenied):
		return b.forbidden()
	case errors.Is(err, core.ErrNotFound):
		return Result{Signal: NotFound, Message: errors.Cause(err).Error()}
	case errors.Is(err, core.ErrConflict):
		return Result{Signal: Conflict, Message: errors.Cause(err).Error()}

	case errors.As(err, &transient),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.As(err, &netErr):
		b.logger.Warn(fmt.Sprintf("transient failure: %v", err), err)
		return Result{Signal: TransientNetworkError, Message: msgUnavailable}
	}

	b.logger.Error(fmt.Sprintf("unexpected failure: %v", err), err)
	return Result{Signal: TransientNetworkError, Message: msgUnavailable}
}

func (b *Bridge) validation(err *core.ValidationError) Result {
	return Result{Signal: ValidationError, Message: err.Error(), Fields: err.Fields}
}
