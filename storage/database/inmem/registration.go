package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/registration"
)

type registrationRepository struct {
	db *registrationTable
}

var _ registration.Repository = (*registrationRepository)(nil)

func NewRegistrationRepository(db *DB) registration.Repository {
	return &registrationRepository{db: db.registration}
}

// snapshot copies every record. Callers must hold the table lock.
func (repo *registrationRepository) snapshot() []registration.Record {
	recs := make([]registration.Record, 0, len(repo.db.table))
	for _, row := range repo.db.table {
		row.mutex.Lock()
		recs = append(recs, row.rec)
		row.mutex.Unlock()
	}
	return recs
}

func (repo *registrationRepository) subdomainTaken(subdomain string) bool {
	for _, rec := range repo.snapshot() {
		if rec.Subdomain == subdomain && rec.Status != registration.StatusRejected {
			return true
		}
	}
	return false
}

func (repo *registrationRepository) CheckSubdomainUniqueness(_ context.Context, subdomain string) error {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if repo.subdomainTaken(subdomain) {
		return registration.ErrSubdomainTaken
	}
	return nil
}

func (repo *registrationRepository) CreateRecord(_ context.Context, rec registration.Record) (registration.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if repo.subdomainTaken(rec.Subdomain) {
		return registration.Record{}, registration.ErrSubdomainTaken
	}
	repo.db.table[rec.ID] = &registrationRow{rec: rec}
	return rec, nil
}

func (repo *registrationRepository) row(id string) (*registrationRow, bool) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	row, ok := repo.db.table[id]
	return row, ok
}

func (repo *registrationRepository) GetRecord(_ context.Context, id string) (registration.Record, error) {
	row, ok := repo.row(id)
	if !ok {
		return registration.Record{}, registration.ErrNotFound
	}
	row.mutex.Lock()
	defer row.mutex.Unlock()
	return row.rec, nil
}

func (repo *registrationRepository) QueryPending(_ context.Context, orderings []core.DBOrdering) ([]registration.Record, error) {
	repo.db.mutex.RLock()
	all := repo.snapshot()
	repo.db.mutex.RUnlock()

	recs := make([]registration.Record, 0, len(all))
	for _, rec := range all {
		if rec.Status == registration.StatusPending {
			recs = append(recs, rec)
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return less(recs[i], recs[j], orderings)
	})
	return recs, nil
}

func (repo *registrationRepository) DecideRecord(_ context.Context, d registration.Decision) (registration.Record, error) {
	row, ok := repo.row(d.ID)
	if !ok {
		return registration.Record{}, registration.ErrNotFound
	}

	row.mutex.Lock()
	defer row.mutex.Unlock()

	rec, err := d.Apply(row.rec)
	if err != nil {
		return registration.Record{}, err
	}
	row.rec = rec
	return rec, nil
}

// less orders by orderings, then by id.
func less(a, b registration.Record, orderings []core.DBOrdering) bool {
	for _, ord := range orderings {
		var c int
		switch ord.Field {
		case "created_at":
			c = compareInt(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
		case "name":
			c = strings.Compare(strings.ToLower(a.Profile.Name), strings.ToLower(b.Profile.Name))
		case "subdomain":
			c = strings.Compare(a.Subdomain, b.Subdomain)
		case "estimated_students":
			c = compareInt(int64(a.EstimatedStudents), int64(b.EstimatedStudents))
		}
		if c == 0 {
			continue
		}
		if ord.Ascending {
			return c < 0
		}
		return c > 0
	}
	return a.ID < b.ID
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
