// Package session issues and verifies the signed credential handed to the
// browser after a completed OAuth exchange.
package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// TTL is the lifetime of a session credential.
const TTL = 24 * time.Hour

const (
	RoleUser = "user"

	ReasonValid          = "valid"
	ReasonMissing        = "missing"
	ReasonExpired        = "expired"
	ReasonMalformed      = "malformed"
	ReasonClaimsMismatch = "claims_mismatch"
)

// DefaultFeatures are granted to every session.
var DefaultFeatures = []string{"strava_sync", "activities_view"}

// ErrInvalidCredential is the only error Verify returns to callers. The
// underlying cause is kept for FailureReason.
var ErrInvalidCredential = errors.New("invalid session credential")

// Identity is the upstream athlete a session is issued for.
type Identity struct {
	UserID    int64
	Username  string
	FirstName string
	LastName  string
}

// Claims is the credential payload.
type Claims struct {
	UserID        int64    `json:"userId"`
	StravaID      int64    `json:"stravaId"`
	Username      string   `json:"username"`
	FirstName     string   `json:"firstname"`
	LastName      string   `json:"lastname"`
	Scope         string   `json:"scope"`
	TokenIssuedAt int64    `json:"tokenIssuedAt"`
	AppRole       string   `json:"appRole"`
	Features      []string `json:"features"`
	jwtlib.RegisteredClaims
}

// Service signs with a single HMAC secret.
type Service struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewService creates a Service. now may be nil.
func NewService(secret, issuer, audience string, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{secret: []byte(secret), issuer: issuer, audience: audience, now: now}
}

// Issue signs a fresh credential for id.
func (s *Service) Issue(id Identity, scope string) (string, error) {
	now := s.now()
	username := id.Username
	if username == "" {
		username = "athlete_" + strconv.FormatInt(id.UserID, 10)
	}

	claims := Claims{
		UserID:        id.UserID,
		StravaID:      id.UserID,
		Username:      username,
		FirstName:     id.FirstName,
		LastName:      id.LastName,
		Scope:         scope,
		TokenIssuedAt: now.UnixMilli(),
		AppRole:       RoleUser,
		Features:      append([]string(nil), DefaultFeatures...),
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   strconv.FormatInt(id.UserID, 10),
			Audience:  jwtlib.ClaimStrings{s.audience},
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(TTL)),
		},
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session credential: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer, audience and expiry.
func (s *Service) Verify(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims,
		func(*jwtlib.Token) (interface{}, error) { return s.secret, nil },
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(s.issuer),
		jwtlib.WithAudience(s.audience),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, err)
	}
	if !parsed.Valid || claims.UserID == 0 {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCredential, jwtlib.ErrTokenInvalidClaims)
	}
	return claims, nil
}

// FailureReason classifies a Verify error for logs and metrics. It is never
// sent to the client.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ReasonValid
	case errors.Is(err, jwtlib.ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, jwtlib.ErrTokenInvalidIssuer),
		errors.Is(err, jwtlib.ErrTokenInvalidAudience),
		errors.Is(err, jwtlib.ErrTokenInvalidClaims),
		errors.Is(err, jwtlib.ErrTokenRequiredClaimMissing):
		return ReasonClaimsMismatch
	default:
		return ReasonMalformed
	}
}
