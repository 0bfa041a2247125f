package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingSigningKey = errors.New("identity verifier: signing key required")
	ErrMissingIssuer     = errors.New("identity verifier: issuer required")
	ErrMissingToken      = errors.New("identity verifier: token required")
	ErrInvalidToken      = errors.New("identity verifier: invalid token")
	ErrExpiredToken      = errors.New("identity verifier: token expired")
	ErrMissingSubject    = errors.New("identity verifier: subject required")
)

// Role names the capabilities the identity provider may attach to a caller.
const (
	RoleArtist   = "artist"
	RoleReviewer = "reviewer"
	RoleCurator  = "curator"
	RoleAdmin    = "admin"
)

// Principal is the verified caller identity supplied by the external
// identity provider. The core never authenticates; it only trusts these
// claims after signature verification.
type Principal struct {
	UserID string
	Roles  []string
}

// HasRole reports whether the principal carries the named role.
func (p Principal) HasRole(role string) bool {
	for _, held := range p.Roles {
		if strings.EqualFold(strings.TrimSpace(held), role) {
			return true
		}
	}
	return false
}

// CanCurate reports whether the principal holds curator or admin capability.
func (p Principal) CanCurate() bool {
	return p.HasRole(RoleCurator) || p.HasRole(RoleAdmin)
}

// IdentityClaims mirrors the JWT payload emitted by the identity provider.
type IdentityClaims struct {
	UserID string   `json:"user_id"`
	Roles  []string `json:"user_roles"`
	jwt.RegisteredClaims
}

// VerifierConfig describes how to validate identity-provider JWTs.
type VerifierConfig struct {
	SigningSecret []byte
	Issuer        string
	Clock         func() time.Time
}

// Verifier validates HS256 JWTs issued by the identity provider and
// produces the caller Principal.
type Verifier struct {
	signingSecret []byte
	issuer        string
	clock         func() time.Time
}

// NewVerifier constructs a Verifier with the provided configuration.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, ErrMissingSigningKey
	}
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, ErrMissingIssuer
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Verifier{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		issuer:        issuer,
		clock:         clock,
	}, nil
}

// VerifyToken validates the supplied JWT string and returns the caller principal.
func (v *Verifier) VerifyToken(tokenString string) (Principal, error) {
	token := strings.TrimSpace(tokenString)
	if token == "" {
		return Principal{}, ErrMissingToken
	}

	claims := &IdentityClaims{}
	parsed, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("%w: unexpected signing algorithm %s", ErrInvalidToken, t.Method.Alg())
			}
			return v.signingSecret, nil
		},
		jwt.WithTimeFunc(v.clock),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrExpiredToken
		}
		return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed == nil || !parsed.Valid {
		return Principal{}, ErrInvalidToken
	}
	if claims.Issuer != v.issuer {
		return Principal{}, ErrInvalidToken
	}

	userID := strings.TrimSpace(claims.UserID)
	if userID == "" {
		userID = strings.TrimSpace(claims.Subject)
	}
	if userID == "" {
		return Principal{}, ErrMissingSubject
	}

	return Principal{UserID: userID, Roles: claims.Roles}, nil
}
