package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/action"
	"github.com/trezcool/educore/core/registration"
)

// NowFunc is the clock of admission control, the gate and the workflow.
var NowFunc = time.Now // mockable

type (
	ServerDeps struct {
		Conf            *core.Config
		Logger          core.Logger
		Pipeline        *action.Pipeline
		RegistrationSvc *registration.Service
		Validate        *core.Validator
		Checks          map[string]core.Pinger // readiness probes
		Metrics         http.Handler           // optional
		DisableReqLogs  bool
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		started  time.Time
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		started:  NowFunc(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.deps.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(admissionMiddleware(s.deps.Pipeline, conf.Server.ClientIDHeader))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Pipeline, conf.Server.SessionCookie, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	s.app.GET("/health", s.health)
	s.app.GET("/health/ready", s.ready)
	if s.deps.Metrics != nil {
		s.app.GET(metricsPath, echo.WrapHandler(s.deps.Metrics))
	}

	v1 := s.app.Group("/v1")
	gate := func(name string) echo.MiddlewareFunc {
		return gateMiddleware(s.deps.Pipeline, conf.Server.SessionCookie, name)
	}

	registerSessionAPI(v1, gate)
	registerRegistrationAPI(v1, gate, s.deps.RegistrationSvc, s.deps.Validate)
}

func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the owner of the server to shut it down.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	signal.Stop(s.shutdown)
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}
