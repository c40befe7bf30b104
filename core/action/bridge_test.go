package action_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/action"
	"github.com/trezcool/educore/core/admission"
	"github.com/trezcool/educore/core/auth"
	"github.com/trezcool/educore/core/registration"
	"github.com/trezcool/educore/tests"
)

func newBridge() *action.Bridge {
	return action.NewBridge(core.NewTestConfig(), core.NewTranslator(), testutil.NewLogger())
}

func TestBridge_FromOutcome(t *testing.T) {
	tests := []struct {
		outcome   auth.Outcome
		want      action.Signal
		redirect  string
		clearSess bool
	}{
		{auth.Proceed, action.OK, "", false},
		{auth.RedirectLogin, action.RequireLogin, "/login", true},
		{auth.RedirectLoginExpired, action.RequireLoginExpired, "/login?expired=true", true},
		{auth.RedirectUnauthorized, action.Forbidden, "/unauthorized", false},
	}

	b := newBridge()
	for _, tt := range tests {
		t.Run(tt.outcome.String(), func(t *testing.T) {
			res := b.FromOutcome(tt.outcome)
			assert.Equal(t, tt.want, res.Signal)
			assert.Equal(t, tt.redirect, res.Redirect)
			assert.Equal(t, tt.clearSess, res.ClearSession)
		})
	}
}

func TestBridge_FromGuard(t *testing.T) {
	tests := []struct {
		name      string
		token     string
		outcome   auth.Outcome
		want      action.Signal
		clearSess bool
	}{
		{name: "no credential", outcome: auth.RedirectLogin, want: action.RequireLogin, clearSess: false},
		{name: "malformed credential", token: "garbage", outcome: auth.RedirectLogin, want: action.RequireLogin, clearSess: true},
		{name: "expired credential", token: "expired", outcome: auth.RedirectLoginExpired, want: action.RequireLoginExpired, clearSess: true},
		{name: "denied", token: "valid", outcome: auth.RedirectUnauthorized, want: action.Forbidden, clearSess: false},
	}

	b := newBridge()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := b.FromGuard(tt.token, tt.outcome)
			assert.Equal(t, tt.want, res.Signal)
			assert.Equal(t, tt.clearSess, res.ClearSession)
		})
	}

	assert.False(t, b.FromError(core.ErrAuthenticationRequired).ClearSession)
}

func TestBridge_Throttle(t *testing.T) {
	now := time.Now()
	res := newBridge().Throttle(admission.Decision{Count: 11, Limit: 10, ResetAt: now.Add(30 * time.Second)}, now)
	assert.Equal(t, action.Throttled, res.Signal)
	assert.Equal(t, 30*time.Second, res.RetryAfter)
	assert.Equal(t, "too many requests, retry in 30s", res.Message)
}

type netErr struct{}

func (netErr) Error() string   { return "i/o timeout" }
func (netErr) Timeout() bool   { return true }
func (netErr) Temporary() bool { return true }

func TestBridge_FromError(t *testing.T) {
	// the bridge's translator is not the one the validator was set up with
	validate := core.NewValidator()
	nr := registration.NewRegistration{}
	vErr := nr.Validate(validate)

	tests := []struct {
		name    string
		err     error
		want    action.Signal
		wantMsg string
	}{
		{"nil", nil, action.OK, ""},
		{
			"failure",
			errors.Wrap(action.Fail(action.Result{Signal: action.Forbidden, Message: "no"}), "guarding"),
			action.Forbidden, "no",
		},
		{"validator errors", vErr, action.ValidationError, "name: this field is required"},
		{"invalid reason", registration.ErrInvalidReason, action.ValidationError, "reason: a rejection reason is required"},
		{"ordering", core.CheckOrderings([]core.DBOrdering{{Field: "secret"}}, "name"), action.ValidationError, `cannot order by "secret"`},
		{"throttled", &core.ThrottledError{RetryAfter: 5 * time.Second}, action.Throttled, "too many requests, retry in 5s"},
		{"authentication", core.ErrAuthenticationRequired, action.RequireLogin, "authentication required"},
		{"expired", errors.Wrap(core.ErrSessionExpired, "checking"), action.RequireLoginExpired, "your session has expired, please log in again"},
		{"denied", core.ErrPermissionDenied, action.Forbidden, "you are not allowed to perform this action"},
		{"not found", errors.Wrap(registration.ErrNotFound, "approving"), action.NotFound, "registration not found"},
		{"already decided", registration.ErrAlreadyDecided, action.Conflict, "registration has already been decided"},
		{"subdomain taken", registration.ErrSubdomainTaken, action.Conflict, "this subdomain is already taken"},
		{"transient", core.NewTransientError(errors.New("redis down")), action.TransientNetworkError, "service temporarily unavailable, please try again"},
		{"deadline", errors.Wrap(context.DeadlineExceeded, "querying"), action.TransientNetworkError, "service temporarily unavailable, please try again"},
		{"net", errors.Wrap(netErr{}, "dialing"), action.TransientNetworkError, "service temporarily unavailable, please try again"},
		{"unknown", errors.New("boom"), action.TransientNetworkError, "service temporarily unavailable, please try again"},
	}

	b := newBridge()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := b.FromError(tt.err)
			assert.Equal(t, tt.want, res.Signal)
			assert.Equal(t, tt.wantMsg, res.Message)
		})
	}
}

func TestBridge_FromError_rawValidatorErrors(t *testing.T) {
	validate := core.NewValidator()
	b := action.NewBridge(core.NewTestConfig(), validate.Translator(), testutil.NewLogger())

	err := validate.Validate.Struct(&registration.NewRegistration{})
	res := b.FromError(errors.Wrap(err, "validating"))
	assert.Equal(t, action.ValidationError, res.Signal)
	assert.Equal(t, "name: this field is required", res.Message)
}

func TestBridge_FromError_fields(t *testing.T) {
	validate := core.NewValidator()
	nr := registration.NewRegistration{
		Name:              "Lycée Wallonie",
		ContactName:       "Jane Doe",
		ContactEmail:      "not-an-email",
		Country:           "CD",
		City:              "Kinshasa",
		Subdomain:         "-bad-",
		EstimatedStudents: 100,
	}

	res := newBridge().FromError(nr.Validate(validate))
	assert.Equal(t, action.ValidationError, res.Signal)
	if assert.Len(t, res.Fields, 2) {
		assert.Equal(t, "contact_email", res.Fields[0].Field)
		assert.Equal(t, "subdomain", res.Fields[1].Field)
	}
}
