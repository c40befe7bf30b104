package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("secret")

func signClaims(t *testing.T, method jwt.SigningMethod, key interface{}, claims jwt.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestValidator_Validate(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	iss := NewIssuer(secret, "EduCore", time.Hour)

	valid, err := iss.Issue("op-1", RolePlatformOperator, now)
	require.NoError(t, err)
	otherKey, err := NewIssuer([]byte("other"), "EduCore", time.Hour).Issue("op-1", RolePlatformOperator, now)
	require.NoError(t, err)
	escalated, err := iss.Issue("op-1", RoleSystemAdmin, now)
	require.NoError(t, err)
	// payload of escalated, signature of valid
	vParts, eParts := strings.Split(valid, "."), strings.Split(escalated, ".")
	tampered := strings.Join([]string{vParts[0], eParts[1], vParts[2]}, ".")

	claims := func(sub string, role Role, exp int64) *Claims {
		return &Claims{
			StandardClaims: jwt.StandardClaims{Subject: sub, IssuedAt: now.Unix(), ExpiresAt: exp},
			Role:           role,
		}
	}
	exp := now.Add(time.Hour).Unix()

	tests := []struct {
		name       string
		token      string
		now        time.Time
		wantStatus SessionStatus
	}{
		{name: "garbage", token: "lol", now: now, wantStatus: SessionMalformed},
		{name: "tampered payload", token: tampered, now: now, wantStatus: SessionMalformed},
		{name: "wrong key", token: otherKey, now: now, wantStatus: SessionMalformed},
		{
			name:  "wrong signing method",
			token: signClaims(t, jwt.SigningMethodHS512, secret, claims("op-1", RoleTeacher, exp)), now: now,
			wantStatus: SessionMalformed,
		},
		{
			name:  "no subject",
			token: signClaims(t, jwt.SigningMethodHS256, secret, claims("", RoleTeacher, exp)), now: now,
			wantStatus: SessionMalformed,
		},
		{
			name:  "unknown role",
			token: signClaims(t, jwt.SigningMethodHS256, secret, claims("u-1", "MANUFACTURER", exp)), now: now,
			wantStatus: SessionMalformed,
		},
		{
			name:  "no expiry",
			token: signClaims(t, jwt.SigningMethodHS256, secret, claims("u-1", RoleTeacher, 0)), now: now,
			wantStatus: SessionMalformed,
		},
		{name: "valid", token: valid, now: now, wantStatus: SessionValid},
		{name: "valid one second before expiry", token: valid, now: now.Add(time.Hour - time.Second), wantStatus: SessionValid},
		{name: "expired at expiry", token: valid, now: now.Add(time.Hour), wantStatus: SessionExpired},
		{name: "expired after expiry", token: valid, now: now.Add(48 * time.Hour), wantStatus: SessionExpired},
	}
	v := NewValidator(secret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess, status := v.Validate(tt.token, tt.now)
			assert.Equal(t, tt.wantStatus, status)
			if status == SessionMalformed {
				assert.Equal(t, Session{}, sess)
			} else {
				assert.Equal(t, "op-1", sess.Subject)
				assert.Equal(t, RolePlatformOperator, sess.Role)
				assert.Equal(t, now.Add(time.Hour), sess.ExpiresAt)
			}
		})
	}
}

func TestValidator_Validate_pure(t *testing.T) {
	now := time.Now()
	token, err := NewIssuer(secret, "EduCore", time.Minute).Issue("t-1", RoleTeacher, now)
	require.NoError(t, err)

	v := NewValidator(secret)
	for i := 0; i < 3; i++ {
		_, status := v.Validate(token, now)
		assert.Equal(t, SessionValid, status)
	}
}

func TestIssuer_Issue(t *testing.T) {
	iss := NewIssuer(secret, "EduCore", time.Hour)
	now := time.Now()

	_, err := iss.Issue("", RoleTeacher, now)
	assert.Error(t, err)
	_, err = iss.Issue("u-1", "janitor", now)
	assert.EqualError(t, err, `unknown role "janitor"`)

	token, err := iss.Issue("u-1", RoleParent, now)
	require.NoError(t, err)
	sess, status := NewValidator(secret).Validate(token, now)
	assert.Equal(t, SessionValid, status)
	assert.Equal(t, RoleParent, sess.Role)
}

func TestSessionHolder(t *testing.T) {
	var h SessionHolder
	assert.Empty(t, h.Token())
	h.Set("tok")
	assert.Equal(t, "tok", h.Token())
	h.Clear()
	assert.Empty(t, h.Token())
}
