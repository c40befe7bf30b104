package action

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/admission"
	"github.com/trezcool/educore/core/auth"
)

// Observer is told about every admission decision, gate outcome and action result.
type Observer interface {
	ObserveAdmission(d admission.Decision)
	ObserveGate(action string, outcome auth.Outcome)
	ObserveResult(action string, res Result)
}

type nopObserver struct{}

func (nopObserver) ObserveAdmission(admission.Decision) {}
func (nopObserver) ObserveGate(string, auth.Outcome)    {}
func (nopObserver) ObserveResult(string, Result)        {}

// Request is one action request as seen by the Pipeline.
type Request struct {
	ClientID string
	Token    string // may be empty
	Action   string // empty: public action, only admission applies
	Now      time.Time
}

// Handler performs an action once admitted and authorized.
// grant is the zero Grant for public actions.
type Handler func(ctx context.Context, grant auth.Grant) (interface{}, error)

// Pipeline evaluates action requests: admission, then the gate, then the handler.
type Pipeline struct {
	limiter  admission.Limiter
	gate     *auth.Gate
	bridge   *Bridge
	observer Observer
}

func NewPipeline(limiter admission.Limiter, gate *auth.Gate, bridge *Bridge, observer Observer) *Pipeline {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Pipeline{limiter: limiter, gate: gate, bridge: bridge, observer: observer}
}

func (p *Pipeline) Bridge() *Bridge {
	return p.bridge
}

// Admit runs admission control for clientID.
func (p *Pipeline) Admit(ctx context.Context, clientID string, now time.Time) Result {
	d, err := p.limiter.Admit(ctx, clientID, now)
	if err != nil {
		return p.bridge.FromError(core.NewTransientError(errors.Wrap(err, "admitting request")))
	}
	p.observer.ObserveAdmission(d)
	if !d.Admitted {
		return p.bridge.Throttle(d, now)
	}
	return Result{Signal: OK}
}

// Guard runs the gate for action.
func (p *Pipeline) Guard(token, action string, now time.Time) (auth.Grant, Result) {
	grant, outcome := p.gate.GuardAction(token, action, now)
	p.observer.ObserveGate(action, outcome)
	return grant, p.bridge.FromGuard(token, outcome)
}

// Report records the result of an action evaluated outside of Run.
func (p *Pipeline) Report(action string, res Result) {
	p.observer.ObserveResult(action, res)
}

// Run evaluates req end to end. The handler is only called once admission and
// the gate let the request through.
func (p *Pipeline) Run(ctx context.Context, req Request, h Handler) Result {
	res := p.run(ctx, req, h)
	p.observer.ObserveResult(req.Action, res)
	return res
}

func (p *Pipeline) run(ctx context.Context, req Request, h Handler) Result {
	if res := p.Admit(ctx, req.ClientID, req.Now); res.Failed() {
		return res
	}

	var grant auth.Grant
	if req.Action != "" {
		var res Result
		if grant, res = p.Guard(req.Token, req.Action, req.Now); res.Failed() {
			return res
		}
	}

	data, err := h(ctx, grant)
	if err != nil {
		return p.bridge.FromError(err)
	}
	return Result{Signal: OK, Data: data}
}
