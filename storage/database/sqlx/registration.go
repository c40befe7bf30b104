package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/registration"
	"github.com/trezcool/educore/storage/database"
)

const registrationColumns = `id, name, contact_name, contact_email, contact_phone, country, city, address,
	timezone, language, subdomain, estimated_students, status, rejection_reason, created_at, decided_at, decided_by`

// orderingColumns maps registration.OrderingFields to SQL expressions.
var orderingColumns = map[string]string{
	"created_at":         "created_at",
	"name":               "lower(name)",
	"subdomain":          "subdomain",
	"estimated_students": "estimated_students",
}

type registrationRow struct {
	ID                string      `db:"id"`
	Name              string      `db:"name"`
	ContactName       string      `db:"contact_name"`
	ContactEmail      string      `db:"contact_email"`
	ContactPhone      string      `db:"contact_phone"`
	Country           string      `db:"country"`
	City              string      `db:"city"`
	Address           string      `db:"address"`
	Timezone          string      `db:"timezone"`
	Language          string      `db:"language"`
	Subdomain         string      `db:"subdomain"`
	EstimatedStudents int         `db:"estimated_students"`
	Status            string      `db:"status"`
	RejectionReason   null.String `db:"rejection_reason"`
	CreatedAt         time.Time   `db:"created_at"`
	DecidedAt         null.Time   `db:"decided_at"`
	DecidedBy         null.String `db:"decided_by"`
}

func newRegistrationRow(rec registration.Record) registrationRow {
	row := registrationRow{
		ID:                rec.ID,
		Name:              rec.Profile.Name,
		ContactName:       rec.Profile.ContactName,
		ContactEmail:      rec.Profile.ContactEmail,
		ContactPhone:      rec.Profile.ContactPhone,
		Country:           rec.Profile.Country,
		City:              rec.Profile.City,
		Address:           rec.Profile.Address,
		Timezone:          rec.Profile.Timezone,
		Language:          rec.Profile.Language,
		Subdomain:         rec.Subdomain,
		EstimatedStudents: rec.EstimatedStudents,
		Status:            string(rec.Status),
		CreatedAt:         rec.CreatedAt.UTC(),
		DecidedAt:         null.TimeFromPtr(rec.DecidedAt),
	}
	if rec.Status == registration.StatusRejected {
		row.RejectionReason = null.StringFrom(rec.RejectionReason)
	}
	if rec.DecidedBy != "" {
		row.DecidedBy = null.StringFrom(rec.DecidedBy)
	}
	return row
}

func (row registrationRow) record() registration.Record {
	rec := registration.Record{
		ID: row.ID,
		Profile: registration.Profile{
			Name:         row.Name,
			ContactName:  row.ContactName,
			ContactEmail: row.ContactEmail,
			ContactPhone: row.ContactPhone,
			Country:      row.Country,
			City:         row.City,
			Address:      row.Address,
			Timezone:     row.Timezone,
			Language:     row.Language,
		},
		Subdomain:         row.Subdomain,
		EstimatedStudents: row.EstimatedStudents,
		Status:            registration.Status(row.Status),
		RejectionReason:   row.RejectionReason.String,
		CreatedAt:         row.CreatedAt.UTC(),
		DecidedBy:         row.DecidedBy.String,
	}
	if row.DecidedAt.Valid {
		decidedAt := row.DecidedAt.Time.UTC()
		rec.DecidedAt = &decidedAt
	}
	return rec
}

type registrationRepository struct {
	db *sqlx.DB
}

var _ registration.Repository = (*registrationRepository)(nil)

func NewRegistrationRepository(db *sqlx.DB) registration.Repository {
	return &registrationRepository{db: db}
}

func (repo *registrationRepository) CheckSubdomainUniqueness(ctx context.Context, subdomain string) error {
	var taken bool
	q := "SELECT EXISTS(SELECT 1 FROM registration WHERE subdomain = $1 AND status <> 'REJECTED')"
	if err := repo.db.GetContext(ctx, &taken, q, subdomain); err != nil {
		return errors.Wrap(err, "checking subdomain uniqueness")
	}
	if taken {
		return registration.ErrSubdomainTaken
	}
	return nil
}

func (repo *registrationRepository) CreateRecord(ctx context.Context, rec registration.Record) (registration.Record, error) {
	q := `INSERT INTO registration (` + registrationColumns + `) VALUES (
		:id, :name, :contact_name, :contact_email, :contact_phone, :country, :city, :address,
		:timezone, :language, :subdomain, :estimated_students, :status, :rejection_reason, :created_at, :decided_at, :decided_by)`
	if _, err := repo.db.NamedExecContext(ctx, q, newRegistrationRow(rec)); err != nil {
		if database.IsUniqueViolation(err) {
			return registration.Record{}, registration.ErrSubdomainTaken
		}
		return registration.Record{}, errors.Wrap(err, "inserting registration")
	}
	return repo.GetRecord(ctx, rec.ID)
}

func (repo *registrationRepository) GetRecord(ctx context.Context, id string) (registration.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return registration.Record{}, registration.ErrNotFound
	}
	var row registrationRow
	q := "SELECT " + registrationColumns + " FROM registration WHERE id = $1"
	if err := repo.db.GetContext(ctx, &row, q, id); err != nil {
		if err == sql.ErrNoRows {
			return registration.Record{}, registration.ErrNotFound
		}
		return registration.Record{}, errors.Wrap(err, "selecting registration")
	}
	return row.record(), nil
}

func orderBy(orderings []core.DBOrdering) (string, error) {
	clauses := make([]string, 0, len(orderings)+1)
	for _, ord := range orderings {
		col, ok := orderingColumns[ord.Field]
		if !ok {
			return "", core.CheckOrderings([]core.DBOrdering{ord}, registration.OrderingFields...)
		}
		clauses = append(clauses, core.DBOrdering{Field: col, Ascending: ord.Ascending}.String())
	}
	clauses = append(clauses, "id ASC")
	return " ORDER BY " + strings.Join(clauses, ", "), nil
}

func (repo *registrationRepository) QueryPending(ctx context.Context, orderings []core.DBOrdering) ([]registration.Record, error) {
	order, err := orderBy(orderings)
	if err != nil {
		return nil, err
	}
	var rows []registrationRow
	q := "SELECT " + registrationColumns + " FROM registration WHERE status = 'PENDING'" + order
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting pending registrations")
	}
	recs := make([]registration.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.record())
	}
	return recs, nil
}

// DecideRecord relies on the row lock taken by UPDATE: of two concurrent decisions, the second one
// re-evaluates the status predicate after the first commits and matches no row.
func (repo *registrationRepository) DecideRecord(ctx context.Context, d registration.Decision) (registration.Record, error) {
	if !d.Status.Terminal() {
		return registration.Record{}, errors.Errorf("invalid decision status %q", d.Status)
	}
	if _, err := uuid.Parse(d.ID); err != nil {
		return registration.Record{}, registration.ErrNotFound
	}

	var reason null.String
	if d.Status == registration.StatusRejected {
		reason = null.StringFrom(d.Reason)
	}
	var row registrationRow
	q := `UPDATE registration
		SET status = $2, rejection_reason = $3, decided_at = $4, decided_by = $5
		WHERE id = $1 AND status = 'PENDING'
		RETURNING ` + registrationColumns
	err := repo.db.GetContext(ctx, &row, q, d.ID, string(d.Status), reason, d.DecidedAt.UTC(), null.StringFrom(d.DecidedBy))
	switch {
	case err == nil:
		return row.record(), nil
	case err != sql.ErrNoRows:
		return registration.Record{}, errors.Wrap(err, "deciding registration")
	}

	// nothing updated: unknown or already decided
	if _, err = repo.GetRecord(ctx, d.ID); err != nil {
		return registration.Record{}, err
	}
	return registration.Record{}, registration.ErrAlreadyDecided
}
