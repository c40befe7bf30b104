package auth

import (
	"time"

	"github.com/trezcool/educore/core"
)

// Outcome is the verdict of the Gate.
type Outcome int

const (
	Proceed Outcome = iota
	RedirectLogin
	RedirectLoginExpired
	RedirectUnauthorized
)

func (o Outcome) String() string {
	switch o {
	case Proceed:
		return "proceed"
	case RedirectLogin:
		return "redirect_login"
	case RedirectLoginExpired:
		return "redirect_login_expired"
	default:
		return "redirect_unauthorized"
	}
}

// Grant proves a caller went through the Gate. Only the Gate creates usable grants.
type Grant struct {
	session Session
	action  string
}

func (g Grant) Session() Session { return g.session }
func (g Grant) Action() string   { return g.action }

// Allows reports whether the grant was issued for action.
func (g Grant) Allows(action string) bool {
	return g.session.Subject != "" && g.action == action
}

// Gate chains session validation and role authorization.
type Gate struct {
	validator *Validator
	policy    Policy
	logger    core.Logger
}

func NewGate(validator *Validator, policy Policy, logger core.Logger) *Gate {
	return &Gate{validator: validator, policy: policy, logger: logger}
}

// GuardAction guards action using the gate's policy.
// Unknown actions are refused once the session has been validated.
func (g *Gate) GuardAction(token, action string, now time.Time) (Grant, Outcome) {
	allowed, known := g.policy.AllowSet(action)
	return g.guard(token, action, allowed, known, now)
}

// Guard guards an unnamed action restricted to allowed.
func (g *Gate) Guard(token string, allowed []Role, now time.Time) (Grant, Outcome) {
	return g.guard(token, "", allowed, true, now)
}

func (g *Gate) guard(token, action string, allowed []Role, known bool, now time.Time) (Grant, Outcome) {
	if token == "" {
		return Grant{}, RedirectLogin
	}

	sess, status := g.validator.Validate(token, now)
	switch status {
	case SessionExpired:
		return Grant{}, RedirectLoginExpired
	case SessionMalformed:
		g.logger.Warn("rejected malformed session credential", map[string]interface{}{"action": action})
		return Grant{}, RedirectLogin
	}

	if !known {
		g.logger.Warn("refused unknown action", map[string]interface{}{"action": action}, sess)
		return Grant{}, RedirectUnauthorized
	}
	if Authorize(sess.Role, allowed) == Denied {
		return Grant{}, RedirectUnauthorized
	}
	return Grant{session: sess, action: action}, Proceed
}
