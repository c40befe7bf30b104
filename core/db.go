package core

import (
	"context"

	"github.com/pkg/errors"
)

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// CheckOrderings returns a ValidationError naming the first ordering field not in allowed.
func CheckOrderings(orderings []DBOrdering, allowed ...string) error {
	for _, ord := range orderings {
		var ok bool
		for _, fld := range allowed {
			if ord.Field == fld {
				ok = true
				break
			}
		}
		if !ok {
			return NewValidationError(
				errors.Errorf("cannot order by %q", ord.Field),
				FieldError{Field: "ordering", Error: "unknown field " + ord.Field},
			)
		}
	}
	return nil
}

// Pinger is any backing service that can report its availability.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to the Pinger interface.
type PingFunc func(ctx context.Context) error

func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }
