package logsvc

import (
	"log"

	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/auth"
)

type RollbarLogger struct {
	std *log.Logger
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(std *log.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	return &RollbarLogger{std: std}
}

func (l RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// entry is a log call sorted the way Rollbar reads it: the message and errors as values,
// every map merged into one custom data map, the first session with a subject as the person.
type entry struct {
	values  []interface{}
	custom  map[string]interface{}
	session *auth.Session
}

// expected args: error, map[string]interface{}, auth.Session, in any order
func newEntry(msg string, args []interface{}) entry {
	e := entry{values: []interface{}{msg}}
	for _, arg := range args {
		switch a := arg.(type) {
		case auth.Session:
			if e.session == nil && a.Subject != "" {
				sess := a
				e.session = &sess
			}
		case map[string]interface{}:
			for k, v := range a {
				e.setCustom(k, v)
			}
		default:
			e.values = append(e.values, arg)
		}
	}
	if e.session != nil {
		e.setCustom("role", string(e.session.Role))
	}
	return e
}

func (e *entry) setCustom(key string, val interface{}) {
	if e.custom == nil {
		e.custom = make(map[string]interface{})
	}
	e.custom[key] = val
}

// args returns what is handed to rollbar: it reads a trailing map as custom data.
func (e entry) args() []interface{} {
	if len(e.custom) == 0 {
		return e.values
	}
	args := make([]interface{}, 0, len(e.values)+1)
	return append(append(args, e.values...), e.custom)
}

func (l RollbarLogger) report(send func(...interface{}), msg string, args []interface{}) {
	e := newEntry(msg, args)
	if e.session != nil {
		rollbar.SetPerson(e.session.Subject, e.session.Subject, "")
	} else {
		rollbar.ClearPerson()
	}
	send(e.args()...)

	l.std.Println(msg)
	for _, val := range e.values[1:] {
		l.std.Printf("%+v\n", val)
	}
	if len(e.custom) > 0 {
		l.std.Printf("%v\n", e.custom)
	}
	if e.session != nil {
		l.std.Printf("session: %s (%s)\n", e.session.Subject, e.session.Role)
	}
}

func (l RollbarLogger) Debug(msg string, args ...interface{}) {
	l.report(rollbar.Debug, msg, args)
}

func (l RollbarLogger) Info(msg string, args ...interface{}) {
	l.report(rollbar.Info, msg, args)
}

func (l RollbarLogger) Warn(msg string, args ...interface{}) {
	l.report(rollbar.Warning, msg, args)
}

func (l RollbarLogger) Error(msg string, args ...interface{}) {
	l.report(rollbar.Error, msg, args)
}

func (l RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.report(rollbar.Critical, msg, args)
	rollbar.Wait()
	l.std.Fatal(msg)
}
