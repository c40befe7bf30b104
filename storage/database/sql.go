package database

import (
	"fmt"

	"github.com/lib/pq"

	"github.com/trezcool/educore/core"
)

// IsUniqueViolation reports whether err is a postgres unique_violation.
func IsUniqueViolation(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && pqErr.Code == "23505"
}

// createUserQuery builds the statement creating the app user; identifiers and
// passwords cannot be bound as parameters there.
func createUserQuery(conf *core.Config) string {
	return fmt.Sprintf(
		"CREATE USER %s CREATEDB ENCRYPTED PASSWORD %s",
		pq.QuoteIdentifier(conf.Database.User), pq.QuoteLiteral(conf.Database.Password),
	)
}
