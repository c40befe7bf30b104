package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/educore/core"
)

func Test_createUserQuery(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		password string
		want     string
	}{
		{
			name: "plain", user: "educore", password: "educore",
			want: `CREATE USER "educore" CREATEDB ENCRYPTED PASSWORD 'educore'`,
		},
		{
			name: "quotes", user: `edu"core`, password: `it's`,
			want: `CREATE USER "edu""core" CREATEDB ENCRYPTED PASSWORD 'it''s'`,
		},
		{
			name: "backslashes", user: "educore", password: `p\'w`,
			want: `CREATE USER "educore" CREATEDB ENCRYPTED PASSWORD  E'p\\''w'`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := core.NewTestConfig()
			conf.Database.User = tt.user
			conf.Database.Password = tt.password
			assert.Equal(t, tt.want, createUserQuery(conf))
		})
	}
}
