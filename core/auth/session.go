package auth

import (
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"
)

var errUnexpectedSigningMethod = errors.New("unexpected signing method")

// Session is the validated identity of a caller.
type Session struct {
	Subject   string    `json:"subject"`
	Role      Role      `json:"role"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SessionStatus int

const (
	SessionMalformed SessionStatus = iota
	SessionExpired
	SessionValid
)

func (s SessionStatus) String() string {
	switch s {
	case SessionValid:
		return "valid"
	case SessionExpired:
		return "expired"
	default:
		return "malformed"
	}
}

// Claims represents the session claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	Role Role `json:"role"`
}

// Validator checks session credentials signed with a shared secret.
type Validator struct {
	key    []byte
	parser *jwt.Parser
}

func NewValidator(secret []byte) *Validator {
	return &Validator{
		key: secret,
		parser: &jwt.Parser{
			ValidMethods: []string{jwt.SigningMethodHS256.Alg()},
			// expiry is checked against the caller's clock in Validate
			SkipClaimsValidation: true,
		},
	}
}

// Validate classifies token at instant now. It has no side effects: discarding an
// expired or malformed credential is up to the caller.
func (v *Validator) Validate(token string, now time.Time) (Session, SessionStatus) {
	claims := new(Claims)
	tok, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errUnexpectedSigningMethod
		}
		return v.key, nil
	})
	if err != nil || !tok.Valid {
		return Session{}, SessionMalformed
	}
	if claims.Subject == "" || claims.ExpiresAt == 0 || !claims.Role.Valid() {
		return Session{}, SessionMalformed
	}

	sess := Session{
		Subject:   claims.Subject,
		Role:      claims.Role,
		IssuedAt:  time.Unix(claims.IssuedAt, 0).UTC(),
		ExpiresAt: time.Unix(claims.ExpiresAt, 0).UTC(),
	}
	if !now.Before(sess.ExpiresAt) {
		return sess, SessionExpired
	}
	return sess, SessionValid
}

// Issuer mints session credentials. Login itself happens elsewhere; the issuer serves
// the admin CLI and tests.
type Issuer struct {
	key    []byte
	issuer string
	ttl    time.Duration
}

func NewIssuer(secret []byte, issuer string, ttl time.Duration) *Issuer {
	return &Issuer{key: secret, issuer: issuer, ttl: ttl}
}

// Issue generates a signed token for subject acting as role, valid from now for the issuer's TTL.
func (iss *Issuer) Issue(subject string, role Role, now time.Time) (string, error) {
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if !role.Valid() {
		return "", errors.Errorf("unknown role %q", role)
	}
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    iss.issuer,
			Subject:   subject,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(iss.ttl).Unix(),
		},
		Role: role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString(iss.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// SessionHolder keeps the credential of a long-lived client (e.g. the admin CLI) between requests.
type SessionHolder struct {
	mu    sync.RWMutex
	token string
}

func (h *SessionHolder) Set(token string) {
	h.mu.Lock()
	h.token = token
	h.mu.Unlock()
}

func (h *SessionHolder) Token() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.token
}

func (h *SessionHolder) Clear() {
	h.Set("")
}
