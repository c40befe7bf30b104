package registration

import (
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/educore/core"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

var (
	// errors
	ErrNotFound       = core.NewKindError(core.ErrNotFound, "registration not found")
	ErrAlreadyDecided = core.NewKindError(core.ErrConflict, "registration has already been decided")
	ErrSubdomainTaken = core.NewKindError(core.ErrConflict, "this subdomain is already taken")
	ErrInvalidReason  = core.NewValidationError(nil, core.FieldError{Field: "reason", Error: "a rejection reason is required"})
	errNotADecision   = errors.New("a decision must approve or reject")

	// OrderingFields are the fields pending registrations can be ordered by.
	OrderingFields = []string{"created_at", "name", "subdomain", "estimated_students"}

	defaultOrdering = []core.DBOrdering{{Field: "created_at", Ascending: true}}
)

// Profile describes the organization applying for a tenant.
type Profile struct {
	Name         string `json:"name"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone,omitempty"`
	Country      string `json:"country"`
	City         string `json:"city"`
	Address      string `json:"address,omitempty"`
	Timezone     string `json:"timezone,omitempty"`
	Language     string `json:"language,omitempty"`
}

// Record is a school's request to be onboarded as a tenant.
// Only Status and the decision fields ever change, once, from PENDING.
type Record struct {
	ID                string     `json:"id"`
	Profile           Profile    `json:"profile"`
	Subdomain         string     `json:"subdomain"`
	EstimatedStudents int        `json:"estimated_students"`
	Status            Status     `json:"status"`
	RejectionReason   string     `json:"rejection_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"` // UTC
	DecidedAt         *time.Time `json:"decided_at,omitempty"`
	DecidedBy         string     `json:"decided_by,omitempty"`
}

// Decision moves a PENDING record to a terminal status.
type Decision struct {
	ID        string
	Status    Status
	Reason    string
	DecidedAt time.Time
	DecidedBy string
}

// Apply returns rec with d applied. rec must be PENDING.
func (d Decision) Apply(rec Record) (Record, error) {
	if rec.Status != StatusPending {
		return Record{}, ErrAlreadyDecided
	}
	if !d.Status.Terminal() {
		return Record{}, errNotADecision
	}
	decidedAt := d.DecidedAt.UTC()
	rec.Status = d.Status
	rec.DecidedAt = &decidedAt
	rec.DecidedBy = d.DecidedBy
	if d.Status == StatusRejected {
		rec.RejectionReason = d.Reason
	}
	return rec, nil
}

// DecisionEvent is published once a decision is committed.
type DecisionEvent struct {
	RegistrationID string    `json:"registration_id"`
	Name           string    `json:"name"`
	Subdomain      string    `json:"subdomain"`
	Status         Status    `json:"status"`
	Reason         string    `json:"reason,omitempty"`
	DecidedBy      string    `json:"decided_by"`
	DecidedAt      time.Time `json:"decided_at"`
}

func newDecisionEvent(rec Record) DecisionEvent {
	evt := DecisionEvent{
		RegistrationID: rec.ID,
		Name:           rec.Profile.Name,
		Subdomain:      rec.Subdomain,
		Status:         rec.Status,
		Reason:         rec.RejectionReason,
		DecidedBy:      rec.DecidedBy,
	}
	if rec.DecidedAt != nil {
		evt.DecidedAt = *rec.DecidedAt
	}
	return evt
}
