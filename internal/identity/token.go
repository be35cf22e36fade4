package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL bounds exposure of a stolen credential; there is no
// server-side revocation, a token stays valid until it expires.
const DefaultTokenTTL = 30 * time.Minute

const defaultIssuer = "dachido"

// Claims is the signed claim set carried by every issued credential.
type Claims struct {
	Username     string `json:"username"`
	Organization string `json:"organization"`
	Role         string `json:"role"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and verifies the compact signed credential for a
// resolved identity. Signing is HS256 with a process-wide symmetric key
// passed in explicitly so tests can run with isolated keys.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption configures a TokenIssuer.
type TokenOption func(*TokenIssuer)

// WithTTL overrides the fixed token lifetime.
func WithTTL(ttl time.Duration) TokenOption {
	return func(t *TokenIssuer) {
		if ttl > 0 {
			t.ttl = ttl
		}
	}
}

// WithIssuer overrides the iss claim.
func WithIssuer(issuer string) TokenOption {
	return func(t *TokenIssuer) {
		if s := strings.TrimSpace(issuer); s != "" {
			t.issuer = s
		}
	}
}

// WithClock overrides the time source used for both issuance and expiry
// checks; useful for boundary tests.
func WithClock(fn func() time.Time) TokenOption {
	return func(t *TokenIssuer) {
		if fn != nil {
			t.now = fn
		}
	}
}

// NewTokenIssuer constructs a TokenIssuer. The secret is required.
func NewTokenIssuer(secret string, opts ...TokenOption) (*TokenIssuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("identity: token secret is not configured")
	}
	t := &TokenIssuer{
		secret: []byte(secret),
		issuer: defaultIssuer,
		ttl:    DefaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// TTL returns the configured token lifetime.
func (t *TokenIssuer) TTL() time.Duration { return t.ttl }

// Issue signs a credential carrying the triple, expiring after the fixed
// TTL. Returns the opaque URL-safe token and its expiry.
func (t *TokenIssuer) Issue(id Identity) (string, time.Time, error) {
	if id.Organization == "" || id.Username == "" || id.Role == "" {
		return "", time.Time{}, ErrValidation
	}
	now := t.now().UTC()
	expiresAt := now.Add(t.ttl)
	claims := Claims{
		Username:     id.Username,
		Organization: id.Organization,
		Role:         id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   id.Key(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature before trusting any claim, then the expiry
// against the issuer's clock, and recovers the embedded triple.
func (t *TokenIssuer) Verify(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrTokenMalformed
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenSignature
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return t.now().UTC() }))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Identity{}, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Identity{}, ErrTokenSignature
		default:
			return Identity{}, ErrTokenMalformed
		}
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrTokenMalformed
	}
	if claims.Username == "" || claims.Organization == "" {
		return Identity{}, ErrTokenMalformed
	}
	role := claims.Role
	if role == "" {
		role = RoleCustomerAdmin
	}
	return Identity{
		Organization: claims.Organization,
		Username:     claims.Username,
		Role:         role,
	}, nil
}
