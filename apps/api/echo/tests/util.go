package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	. "github.com/trezcool/educore/apps/api/echo"
	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/action"
	"github.com/trezcool/educore/core/admission"
	"github.com/trezcool/educore/core/registration"
	"github.com/trezcool/educore/services/email"
	"github.com/trezcool/educore/services/metrics"
	"github.com/trezcool/educore/storage/database/inmem"
	"github.com/trezcool/educore/tests"
)

var (
	conf    *core.Config
	regRepo registration.Repository
	mailSvc *emailsvc.ConsoleServiceMock

	// t0 is the clock of every test request unless a test moves it.
	t0 = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
)

// setup returns a server backed by in-memory storage, with the clock stopped at t0.
// Admission is relaxed unless configured otherwise: all test requests share one client IP.
func setup(t *testing.T, configure ...func(*core.Config)) *Server {
	t.Helper()

	conf = core.NewTestConfig()
	conf.Admission.Limit = 1000
	for _, fn := range configure {
		fn(conf)
	}
	logger := testutil.NewLogger()

	// set up DB & repos
	regRepo = inmemdb.NewRegistrationRepository(inmemdb.Open())

	// set up services
	mailSvc = emailsvc.NewConsoleServiceMock(conf, logger)
	regSvc := registration.NewService(regRepo, mailSvc, nil, logger, conf)

	setClock(t, t0)

	// set up server
	return NewServer(
		ServerDeps{
			Conf:            conf,
			Logger:          logger,
			Pipeline:        newPipeline(conf),
			RegistrationSvc: regSvc,
			Validate:        core.NewValidator(),
			Checks: map[string]core.Pinger{
				"database": core.PingFunc(func(context.Context) error { return nil }),
			},
			Metrics:        metricsvc.NewCollector().Handler(),
			DisableReqLogs: true,
		},
	)
}

func newPipeline(conf *core.Config) *action.Pipeline {
	limiter := admission.NewMemoryLimiter(admission.Settings{Limit: conf.Admission.Limit, Window: conf.Admission.Window})
	return action.NewPipeline(
		limiter,
		testutil.NewGate(conf),
		action.NewBridge(conf, core.NewTranslator(), testutil.NewLogger()),
		metricsvc.NewCollector(),
	)
}

// setClock stops NowFunc at now until the end of the test.
func setClock(t *testing.T, now time.Time) {
	prev := NowFunc
	NowFunc = func() time.Time { return now }
	t.Cleanup(func() { NowFunc = prev })
}

type httpErr struct {
	Error    string            `json:"error"`
	Signal   string            `json:"signal,omitempty"`
	Redirect string            `json:"redirect,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

var (
	errLoginRequired = httpErr{Error: "authentication required", Signal: "require_login", Redirect: "/login"}
	errExpired       = httpErr{
		Error:    "your session has expired, please log in again",
		Signal:   "require_login_expired",
		Redirect: "/login?expired=true",
	}
	errForbidden = httpErr{
		Error:    "you are not allowed to perform this action",
		Signal:   "forbidden",
		Redirect: "/unauthorized",
	}
)

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app *Server, tests []httpTest) {
	t.Helper()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}
