package registration

import (
	"github.com/trezcool/educore/core"
)

// NewRegistration is submitted by a school applying to the platform.
type NewRegistration struct {
	Name              string `json:"name" validate:"required,notblank,max=200"`
	ContactName       string `json:"contact_name" validate:"required,notblank,max=200"`
	ContactEmail      string `json:"contact_email" validate:"required,email"`
	ContactPhone      string `json:"contact_phone" validate:"omitempty,max=32"`
	Country           string `json:"country" validate:"required,len=2,alpha"`
	City              string `json:"city" validate:"required,notblank,max=100"`
	Address           string `json:"address" validate:"omitempty,max=300"`
	Timezone          string `json:"timezone" validate:"omitempty,max=64"`
	Language          string `json:"language" validate:"omitempty,max=16"`
	Subdomain         string `json:"subdomain" validate:"required,subdomain"`
	EstimatedStudents int    `json:"estimated_students" validate:"required,min=1,max=1000000"`
}

func (nr *NewRegistration) Validate(validate *core.Validator) error {
	nr.Name = core.CleanString(nr.Name)
	nr.ContactName = core.CleanString(nr.ContactName)
	nr.ContactEmail = core.CleanString(nr.ContactEmail, true /* lower */)
	nr.ContactPhone = core.CleanString(nr.ContactPhone)
	nr.Country = core.CleanString(nr.Country)
	nr.City = core.CleanString(nr.City)
	nr.Address = core.CleanString(nr.Address)
	nr.Timezone = core.CleanString(nr.Timezone)
	nr.Language = core.CleanString(nr.Language)
	nr.Subdomain = core.CleanString(nr.Subdomain, true /* lower */)
	return validate.Struct(nr)
}

// RejectRequest carries the operator's reason for a rejection.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// Clean returns the trimmed reason, or ErrInvalidReason when nothing is left.
func (rr RejectRequest) Clean() (string, error) {
	reason := core.CleanString(rr.Reason)
	if reason == "" {
		return "", ErrInvalidReason
	}
	return reason, nil
}
