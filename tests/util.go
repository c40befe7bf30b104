package testutil

import (
	"context"
	"fmt"
	"io/ioutil"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/auth"
	"github.com/trezcool/educore/core/registration"
	"github.com/trezcool/educore/storage/database"
)

// NewLogger returns a logger that discards everything.
func NewLogger() core.Logger {
	return core.NewStdLogger(log.New(ioutil.Discard, "", 0))
}

func NewIssuer(conf *core.Config) *auth.Issuer {
	return auth.NewIssuer([]byte(conf.SecretKey), conf.AppName, conf.Server.SessionTTL)
}

func NewGate(conf *core.Config) *auth.Gate {
	return auth.NewGate(auth.NewValidator([]byte(conf.SecretKey)), auth.DefaultPolicy, NewLogger())
}

// Token issues a session credential for subject acting as role at issuedAt.
func Token(t *testing.T, conf *core.Config, subject string, role auth.Role, issuedAt time.Time) string {
	t.Helper()
	token, err := NewIssuer(conf).Issue(subject, role, issuedAt)
	if err != nil {
		t.Fatalf("Token() failed: %v", err)
	}
	return token
}

// Grant walks a fresh session of subject through the gate for action.
func Grant(t *testing.T, conf *core.Config, subject string, role auth.Role, action string) auth.Grant {
	t.Helper()
	now := time.Now()
	grant, outcome := NewGate(conf).GuardAction(Token(t, conf, subject, role, now), action, now)
	if outcome != auth.Proceed {
		t.Fatalf("Grant() failed: %s", outcome)
	}
	return grant
}

// CreateRegistration stores a PENDING registration for name, claiming subdomain.
func CreateRegistration(
	t *testing.T,
	repo registration.Repository,
	id, name, subdomain string,
	createdAt ...time.Time,
) registration.Record {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	rec := registration.Record{
		ID: id,
		Profile: registration.Profile{
			Name:         name,
			ContactName:  "Contact " + name,
			ContactEmail: subdomain + "@school.test",
			Country:      "CD",
			City:         "Kinshasa",
		},
		Subdomain:         subdomain,
		EstimatedStudents: 100,
		Status:            registration.StatusPending,
		CreatedAt:         tstamp,
	}
	rec, err := repo.CreateRecord(context.Background(), rec)
	if err != nil {
		t.Fatalf("CreateRegistration() failed: %v", err)
	}
	return rec
}

// PrepareDB connects to the test database, migrates it and empties it.
// Tests are skipped when EDUCORE_TEST_DB is not set.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()
	if os.Getenv("EDUCORE_TEST_DB") == "" {
		t.Skip("EDUCORE_TEST_DB not set")
	}
	conf := core.NewTestConfig()
	conf.Database.Host = os.Getenv("EDUCORE_TEST_DB")

	if err := database.CreateIfNotExist(conf); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	ResetDB(t, db)
	return db
}

func ResetDB(t *testing.T, db *sqlx.DB) {
	t.Helper()
	for _, table := range []string{"registration"} {
		if _, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %q CASCADE", table)); err != nil {
			t.Fatalf("ResetDB() failed: %v", err)
		}
	}
}
