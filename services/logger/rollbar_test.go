package logsvc

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/trezcool/educore/core"
	"github.com/trezcool/educore/core/auth"
)

func Test_newEntry(t *testing.T) {
	boom := errors.New("boom")
	sess := auth.Session{Subject: "op-1", Role: auth.RolePlatformOperator}

	tests := []struct {
		name        string
		args        []interface{}
		wantArgs    []interface{}
		wantSubject string
	}{
		{
			name:     "message only",
			wantArgs: []interface{}{"approving"},
		},
		{
			name:     "error",
			args:     []interface{}{boom},
			wantArgs: []interface{}{"approving", boom},
		},
		{
			name: "maps are merged into custom data",
			args: []interface{}{
				map[string]interface{}{"action": auth.ActionApproveRegistration},
				boom,
				map[string]interface{}{"id": "r1"},
			},
			wantArgs: []interface{}{
				"approving", boom,
				map[string]interface{}{"action": auth.ActionApproveRegistration, "id": "r1"},
			},
		},
		{
			name: "the session is the person, its role custom data",
			args: []interface{}{boom, sess, auth.Session{Subject: "op-2"}},
			wantArgs: []interface{}{
				"approving", boom,
				map[string]interface{}{"role": "platform_operator"},
			},
			wantSubject: "op-1",
		},
		{
			name:     "anonymous session",
			args:     []interface{}{auth.Session{}},
			wantArgs: []interface{}{"approving"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEntry("approving", tt.args)
			assert.Equal(t, tt.wantArgs, e.args())
			if tt.wantSubject == "" {
				assert.Nil(t, e.session)
			} else if assert.NotNil(t, e.session) {
				assert.Equal(t, tt.wantSubject, e.session.Subject)
			}
		})
	}
}

func TestRollbarLogger(t *testing.T) {
	var buf bytes.Buffer
	l := NewRollbarLogger(log.New(&buf, "", 0), core.NewTestConfig())
	l.Enable(false)

	sess := auth.Session{Subject: "op-1", Role: auth.RolePlatformOperator}
	l.Warn("approving", errors.New("boom"), map[string]interface{}{"action": "registrations.approve"}, sess)

	assert.Contains(t, buf.String(), "approving\n")
	assert.Contains(t, buf.String(), "boom")
	assert.Contains(t, buf.String(), "map[action:registrations.approve role:platform_operator]")
	assert.Contains(t, buf.String(), "session: op-1 (platform_operator)")
}
