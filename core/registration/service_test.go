package registration_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/auth"
	. "github.com/trezcool/educore/core/registration"
	"github.com/trezcool/educore/services/email"
	"github.com/trezcool/educore/storage/database/inmem"
	"github.com/trezcool/educore/tests"
)

type publisherMock struct {
	mu     sync.Mutex
	events []DecisionEvent
	err    error
}

func (p *publisherMock) PublishDecision(_ context.Context, evt DecisionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, evt)
	return nil
}

type fixture struct {
	conf    *core.Config
	repo    Repository
	mailSvc *emailsvc.ConsoleServiceMock
	events  *publisherMock
	svc     *Service
}

func setup(t *testing.T) fixture {
	conf := core.NewTestConfig()
	logger := testutil.NewLogger()
	f := fixture{
		conf:    conf,
		repo:    inmemdb.NewRegistrationRepository(inmemdb.Open()),
		mailSvc: emailsvc.NewConsoleServiceMock(conf, logger),
		events:  new(publisherMock),
	}
	f.svc = NewService(f.repo, f.mailSvc, f.events, logger, conf)
	return f
}

func (f fixture) grant(t *testing.T, action string) auth.Grant {
	return testutil.Grant(t, f.conf, "op-1", auth.RolePlatformOperator, action)
}

func TestService_Approve(t *testing.T) {
	f := setup(t)
	now := time.Now().UTC().Truncate(time.Second)
	pending := testutil.CreateRegistration(t, f.repo, "r1", "Lycee Wima", "wima")
	decided := testutil.CreateRegistration(t, f.repo, "r2", "Saint Georges", "stgeorges")
	_, err := f.svc.Reject(context.Background(), f.grant(t, auth.ActionRejectRegistration), decided.ID, "duplicate", now)
	require.NoError(t, err)

	tests := []struct {
		name    string
		grant   auth.Grant
		id      string
		wantErr error
	}{
		{name: "no grant", grant: auth.Grant{}, id: pending.ID, wantErr: core.ErrPermissionDenied},
		{name: "grant for another action", grant: f.grant(t, auth.ActionRejectRegistration), id: pending.ID, wantErr: core.ErrPermissionDenied},
		{name: "not found", grant: f.grant(t, auth.ActionApproveRegistration), id: "nope", wantErr: ErrNotFound},
		{name: "already decided", grant: f.grant(t, auth.ActionApproveRegistration), id: decided.ID, wantErr: ErrAlreadyDecided},
		{name: "approved", grant: f.grant(t, auth.ActionApproveRegistration), id: pending.ID},
		{name: "approved twice", grant: f.grant(t, auth.ActionApproveRegistration), id: pending.ID, wantErr: ErrAlreadyDecided},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := f.svc.Approve(context.Background(), tt.grant, tt.id, now)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusApproved, rec.Status)
			assert.Equal(t, "op-1", rec.DecidedBy)
			require.NotNil(t, rec.DecidedAt)
			assert.Equal(t, now, *rec.DecidedAt)
			assert.Empty(t, rec.RejectionReason)
		})
	}

	// notifications
	require.Len(t, f.events.events, 2)
	assert.Equal(t, StatusRejected, f.events.events[0].Status)
	assert.Equal(t, DecisionEvent{
		RegistrationID: pending.ID,
		Name:           "Lycee Wima",
		Subdomain:      "wima",
		Status:         StatusApproved,
		DecidedBy:      "op-1",
		DecidedAt:      now,
	}, f.events.events[1])

	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 2)
	assert.Equal(t, "wima@school.test", sent[1].To[0].Address)
	assert.Equal(t, "Registration approved", sent[1].Subject)
	assert.Contains(t, sent[1].TextContent, "Lycee Wima has been approved")
}

func TestService_Reject(t *testing.T) {
	f := setup(t)
	now := time.Now().UTC()
	rec := testutil.CreateRegistration(t, f.repo, "r1", "Lycee Wima", "wima")
	grant := f.grant(t, auth.ActionRejectRegistration)

	tests := []struct {
		name       string
		id         string
		reason     string
		wantErr    error
		wantReason string
	}{
		{name: "empty reason", id: rec.ID, reason: "", wantErr: ErrInvalidReason},
		{name: "blank reason", id: rec.ID, reason: " \t\n ", wantErr: ErrInvalidReason},
		{name: "blank reason on unknown record", id: "nope", reason: "  ", wantErr: ErrInvalidReason},
		{name: "not found", id: "nope", reason: "fake school", wantErr: ErrNotFound},
		{name: "rejected", id: rec.ID, reason: "  fake school ", wantReason: "fake school"},
		{name: "rejected twice", id: rec.ID, reason: "again", wantErr: ErrAlreadyDecided},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.Reject(context.Background(), grant, tt.id, tt.reason, now)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusRejected, got.Status)
			assert.Equal(t, tt.wantReason, got.RejectionReason)
		})
	}

	stored, err := f.repo.GetRecord(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, stored.Status)
	assert.Equal(t, "fake school", stored.RejectionReason)

	sent := f.mailSvc.SentMessages()
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].TextContent, "Reason: fake school")
}

func TestService_decisionsRace(t *testing.T) {
	f := setup(t)
	rec := testutil.CreateRegistration(t, f.repo, "r1", "Lycee Wima", "wima")
	approve := f.grant(t, auth.ActionApproveRegistration)
	reject := f.grant(t, auth.ActionRejectRegistration)
	now := time.Now()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				_, err = f.svc.Approve(context.Background(), approve, rec.ID, now)
			} else {
				_, err = f.svc.Reject(context.Background(), reject, rec.ID, "no", now)
			}
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var ok, conflicts int
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrAlreadyDecided):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
	assert.Len(t, f.events.events, 1)
}

func TestService_notificationFailureKeepsDecision(t *testing.T) {
	f := setup(t)
	f.events.err = errors.New("broker down")
	rec := testutil.CreateRegistration(t, f.repo, "r1", "Lycee Wima", "wima")

	got, err := f.svc.Approve(context.Background(), f.grant(t, auth.ActionApproveRegistration), rec.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
}

func TestService_ListPending(t *testing.T) {
	f := setup(t)
	t0 := time.Now().UTC().Add(-time.Hour)
	c := testutil.CreateRegistration(t, f.repo, "r3", "Collège Boboto", "boboto", t0.Add(3*time.Minute))
	a := testutil.CreateRegistration(t, f.repo, "r1", "athénée royal", "athenee", t0.Add(1*time.Minute))
	d := testutil.CreateRegistration(t, f.repo, "r4", "Lycee Wima", "wima", t0.Add(4*time.Minute))
	b := testutil.CreateRegistration(t, f.repo, "r2", "Institut Mont-Amba", "montamba", t0.Add(2*time.Minute))
	_, err := f.svc.Approve(context.Background(), f.grant(t, auth.ActionApproveRegistration), d.ID, time.Now())
	require.NoError(t, err)

	grant := f.grant(t, auth.ActionListPendingRegistrations)
	tests := []struct {
		name      string
		grant     auth.Grant
		orderings []core.DBOrdering
		want      []Record
		wantErr   bool
	}{
		{name: "no grant", grant: auth.Grant{}, wantErr: true},
		{name: "oldest first by default", grant: grant, want: []Record{a, b, c}},
		{name: "newest first", grant: grant, orderings: []core.DBOrdering{{Field: "created_at"}}, want: []Record{c, b, a}},
		{name: "by name", grant: grant, orderings: []core.DBOrdering{{Field: "name", Ascending: true}}, want: []Record{a, c, b}},
		{name: "by subdomain desc", grant: grant, orderings: []core.DBOrdering{{Field: "subdomain"}}, want: []Record{b, c, a}},
		{name: "unknown field", grant: grant, orderings: []core.DBOrdering{{Field: "status; DROP TABLE"}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.svc.ListPending(context.Background(), tt.grant, tt.orderings)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestService_ListPending_snapshot(t *testing.T) {
	f := setup(t)
	rec := testutil.CreateRegistration(t, f.repo, "r1", "Lycee Wima", "wima")

	got, err := f.svc.ListPending(context.Background(), f.grant(t, auth.ActionListPendingRegistrations), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)

	_, err = f.svc.Approve(context.Background(), f.grant(t, auth.ActionApproveRegistration), rec.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got[0].Status)

	got, err = f.svc.ListPending(context.Background(), f.grant(t, auth.ActionListPendingRegistrations), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestService_Submit(t *testing.T) {
	f := setup(t)
	validate := core.NewValidator()
	now := time.Now()

	nr := func(subdomain string) NewRegistration {
		return NewRegistration{
			Name:              " Lycee Wima ",
			ContactName:       "Mama Wima",
			ContactEmail:      "Contact@Wima.CD",
			Country:           "CD",
			City:              "Kinshasa",
			Subdomain:         subdomain,
			EstimatedStudents: 450,
		}
	}

	data := nr(" Wima ")
	require.NoError(t, data.Validate(validate))
	rec, err := f.svc.Submit(context.Background(), data, now)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, rec.Status)
	assert.Equal(t, "wima", rec.Subdomain)
	assert.Equal(t, "Lycee Wima", rec.Profile.Name)
	assert.Equal(t, "contact@wima.cd", rec.Profile.ContactEmail)
	assert.NotEmpty(t, rec.ID)
	assert.Nil(t, rec.DecidedAt)

	_, err = f.svc.Submit(context.Background(), data, now)
	assert.True(t, errors.Is(err, ErrSubdomainTaken))
	assert.True(t, errors.Is(err, core.ErrConflict))

	// a rejected registration frees its subdomain
	_, err = f.svc.Reject(context.Background(), f.grant(t, auth.ActionRejectRegistration), rec.ID, "typo", now)
	require.NoError(t, err)
	_, err = f.svc.Submit(context.Background(), data, now)
	assert.NoError(t, err)
}

func TestNewRegistration_Validate(t *testing.T) {
	validate := core.NewValidator()
	valid := NewRegistration{
		Name:              "Lycee Wima",
		ContactName:       "Mama Wima",
		ContactEmail:      "contact@wima.cd",
		Country:           "CD",
		City:              "Kinshasa",
		Subdomain:         "wima",
		EstimatedStudents: 450,
	}
	tests := []struct {
		name      string
		mutate    func(nr *NewRegistration)
		wantField string
		wantMsg   string
	}{
		{name: "valid", mutate: func(nr *NewRegistration) {}},
		{name: "missing name", mutate: func(nr *NewRegistration) { nr.Name = "" }, wantField: "name", wantMsg: "this field is required"},
		{name: "blank name", mutate: func(nr *NewRegistration) { nr.Name = "   " }, wantField: "name", wantMsg: "this field is required"},
		{name: "bad email", mutate: func(nr *NewRegistration) { nr.ContactEmail = "lol" }, wantField: "contact_email", wantMsg: "contact_email must be a valid email address"},
		{name: "bad country", mutate: func(nr *NewRegistration) { nr.Country = "COD" }, wantField: "country"},
		{
			name: "bad subdomain", mutate: func(nr *NewRegistration) { nr.Subdomain = "-wima" },
			wantField: "subdomain", wantMsg: "only lowercase letters, digits and inner hyphens are allowed (3 to 63 characters)",
		},
		{name: "short subdomain", mutate: func(nr *NewRegistration) { nr.Subdomain = "wi" }, wantField: "subdomain"},
		{name: "long subdomain", mutate: func(nr *NewRegistration) { nr.Subdomain = strings.Repeat("w", 64) }, wantField: "subdomain"},
		{name: "no students", mutate: func(nr *NewRegistration) { nr.EstimatedStudents = 0 }, wantField: "estimated_students", wantMsg: "this field is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			nr := valid
			tt.mutate(&nr)
			err := nr.Validate(validate)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var vErr *core.ValidationError
			require.True(t, errors.As(err, &vErr), fmt.Sprintf("err = %v", err))
			require.NotEmpty(t, vErr.Fields)
			assert.Equal(t, tt.wantField, vErr.Fields[0].Field)
			assert.NotContains(t, vErr.Fields[0].Error, "Key:", "messages are translated")
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, vErr.Fields[0].Error)
			}
		})
	}
}
