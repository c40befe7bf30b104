package registration

import (
	"context"
	"fmt"
	"net/mail"
	texttmpl "text/template"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/auth"
)

type (
	Repository interface {
		// CheckSubdomainUniqueness returns ErrSubdomainTaken if a PENDING or APPROVED record claims subdomain.
		CheckSubdomainUniqueness(ctx context.Context, subdomain string) error
		CreateRecord(ctx context.Context, rec Record) (Record, error)
		GetRecord(ctx context.Context, id string) (Record, error)
		// QueryPending returns a snapshot of the PENDING records, ordered by orderings then by id.
		QueryPending(ctx context.Context, orderings []core.DBOrdering) ([]Record, error)
		// DecideRecord applies d if and only if the record is still PENDING.
		// Concurrent decisions on a record are serialized: the first one wins, the others get ErrAlreadyDecided.
		DecideRecord(ctx context.Context, d Decision) (Record, error)
	}

	// EventPublisher broadcasts committed decisions to other services.
	EventPublisher interface {
		PublishDecision(ctx context.Context, evt DecisionEvent) error
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService
		events  EventPublisher // optional
		logger  core.Logger
		conf    *core.Config
	}
)

func NewService(repo Repository, mailSvc core.EmailService, events EventPublisher, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		repo:    repo,
		mailSvc: mailSvc,
		events:  events,
		logger:  logger,
		conf:    conf,
	}
}

// Submit files a new PENDING registration. nr must have been validated.
func (svc *Service) Submit(ctx context.Context, nr NewRegistration, now time.Time) (Record, error) {
	if err := svc.repo.CheckSubdomainUniqueness(ctx, nr.Subdomain); err != nil {
		return Record{}, err
	}
	rec := Record{
		ID: uuid.New().String(),
		Profile: Profile{
			Name:         nr.Name,
			ContactName:  nr.ContactName,
			ContactEmail: nr.ContactEmail,
			ContactPhone: nr.ContactPhone,
			Country:      nr.Country,
			City:         nr.City,
			Address:      nr.Address,
			Timezone:     nr.Timezone,
			Language:     nr.Language,
		},
		Subdomain:         nr.Subdomain,
		EstimatedStudents: nr.EstimatedStudents,
		Status:            StatusPending,
		CreatedAt:         now.UTC(),
	}
	return svc.repo.CreateRecord(ctx, rec)
}

func (svc *Service) Get(ctx context.Context, grant auth.Grant, id string) (Record, error) {
	if !grant.Allows(auth.ActionGetRegistration) {
		return Record{}, core.ErrPermissionDenied
	}
	return svc.repo.GetRecord(ctx, id)
}

// ListPending returns the PENDING records at call time, oldest first unless orderings say otherwise.
func (svc *Service) ListPending(ctx context.Context, grant auth.Grant, orderings []core.DBOrdering) ([]Record, error) {
	if !grant.Allows(auth.ActionListPendingRegistrations) {
		return nil, core.ErrPermissionDenied
	}
	if err := core.CheckOrderings(orderings, OrderingFields...); err != nil {
		return nil, err
	}
	if len(orderings) == 0 {
		orderings = defaultOrdering
	}
	recs, err := svc.repo.QueryPending(ctx, orderings)
	if err != nil {
		return nil, errors.Wrap(err, "querying pending registrations")
	}
	return recs, nil
}

func (svc *Service) Approve(ctx context.Context, grant auth.Grant, id string, now time.Time) (Record, error) {
	if !grant.Allows(auth.ActionApproveRegistration) {
		return Record{}, core.ErrPermissionDenied
	}
	return svc.decide(ctx, grant, Decision{
		ID:        id,
		Status:    StatusApproved,
		DecidedAt: now,
		DecidedBy: grant.Session().Subject,
	})
}

// Reject requires a non-blank reason; it is checked before the record is looked up.
func (svc *Service) Reject(ctx context.Context, grant auth.Grant, id, reason string, now time.Time) (Record, error) {
	if !grant.Allows(auth.ActionRejectRegistration) {
		return Record{}, core.ErrPermissionDenied
	}
	reason, err := RejectRequest{Reason: reason}.Clean()
	if err != nil {
		return Record{}, err
	}
	return svc.decide(ctx, grant, Decision{
		ID:        id,
		Status:    StatusRejected,
		Reason:    reason,
		DecidedAt: now,
		DecidedBy: grant.Session().Subject,
	})
}

func (svc *Service) decide(ctx context.Context, grant auth.Grant, d Decision) (Record, error) {
	rec, err := svc.repo.DecideRecord(ctx, d)
	if err != nil {
		return Record{}, err
	}
	svc.logger.Info(fmt.Sprintf("registration %s %s", rec.ID, rec.Status), grant.Session())
	svc.notify(ctx, grant, rec)
	return rec, nil
}

// notify tells the applicant and other services about a committed decision.
// Failures are logged: the decision stands.
func (svc *Service) notify(ctx context.Context, grant auth.Grant, rec Record) {
	svc.sendDecisionMail(rec)

	if svc.events == nil {
		return
	}
	if err := svc.events.PublishDecision(ctx, newDecisionEvent(rec)); err != nil {
		svc.logger.Error(
			fmt.Sprintf("publishing decision of registration %s: %v", rec.ID, err),
			errors.Wrap(err, "publishing decision"),
			grant.Session(),
		)
	}
}

var (
	approvedTmpl = texttmpl.Must(texttmpl.New("approved").Parse(
		`Hello {{.Data.Profile.ContactName}},

Good news: the registration of {{.Data.Profile.Name}} has been approved.
Your school space is available at {{.Data.Subdomain}} and you can sign in at {{.FrontendBaseURL}}/login.
`))
	rejectedTmpl = texttmpl.Must(texttmpl.New("rejected").Parse(
		`Hello {{.Data.Profile.ContactName}},

We are sorry: the registration of {{.Data.Profile.Name}} has been rejected.

Reason: {{.Data.RejectionReason}}
`))
)

func (svc *Service) sendDecisionMail(rec Record) {
	msg := &core.EmailMessage{
		To:           []mail.Address{{Name: rec.Profile.ContactName, Address: rec.Profile.ContactEmail}},
		TemplateData: rec,
	}
	if rec.Status == StatusApproved {
		msg.Subject = "Registration approved"
		msg.Template = approvedTmpl
	} else {
		msg.Subject = "Registration rejected"
		msg.Template = rejectedTmpl
	}
	svc.mailSvc.SendMessages(msg)
}
