package action

import (
	"time"

	"github.com/trezcool/educore/core"
)

// Signal tells the presentation layer what happened to an action.
type Signal string

const (
	OK                    Signal = "ok"
	RequireLogin          Signal = "require_login"
	RequireLoginExpired   Signal = "require_login_expired"
	Forbidden             Signal = "forbidden"
	Throttled             Signal = "throttled"
	ValidationError       Signal = "validation_error"
	NotFound              Signal = "not_found"
	Conflict              Signal = "conflict"
	TransientNetworkError Signal = "transient_network_error"
)

// Signals lists every signal, OK included.
var Signals = []Signal{
	OK, RequireLogin, RequireLoginExpired, Forbidden, Throttled,
	ValidationError, NotFound, Conflict, TransientNetworkError,
}

// Result is what the presentation layer receives for an action.
type Result struct {
	Signal       Signal
	Message      string
	Redirect     string        // navigation intent for the RequireLogin* and Forbidden signals
	RetryAfter   time.Duration // Throttled only
	ClearSession bool          // the caller must discard its cached session
	Fields       []core.FieldError
	Data         interface{}
}

func (r Result) Failed() bool {
	return r.Signal != OK
}

// Failure carries a failed Result through error returns.
type Failure struct {
	Result Result
}

func Fail(res Result) error {
	return &Failure{Result: res}
}

func (f *Failure) Error() string {
	if f.Result.Message == "" {
		return string(f.Result.Signal)
	}
	return f.Result.Message
}
