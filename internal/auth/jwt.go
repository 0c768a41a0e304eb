// Package auth issues and verifies the bearer tokens that identify gateway
// callers.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gosuda/relaygate/internal/domain"
)

const issuer = "relaygate"

// Claims holds the JWT token payload.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tid"`
	ActorID  string `json:"uid"`
	Role     string `json:"role"`
}

// ErrInvalidToken is returned when a JWT cannot be parsed, has expired or
// lacks an identity.
var ErrInvalidToken = errors.New("auth: invalid or expired token")

// IssueToken creates a signed HS256 token for an actor of a tenant.
func IssueToken(secret string, tenantID uuid.UUID, actorID, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    issuer,
		},
		TenantID: tenantID.String(),
		ActorID:  actorID,
		Role:     role,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth.IssueToken: %w", err)
	}

	return signed, nil
}

// ValidateToken parses and validates a JWT token string. Returns the embedded claims.
func ValidateToken(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	if !token.Valid {
		return nil, fmt.Errorf("auth.ValidateToken: %w", ErrInvalidToken)
	}

	return claims, nil
}

// Caller converts the claims to a gateway identity. source is the transport
// origin of the request.
func (c *Claims) Caller(source string) (domain.Caller, error) {
	tenantID, err := uuid.Parse(c.TenantID)
	if err != nil || tenantID == uuid.Nil {
		return domain.Caller{}, fmt.Errorf("auth.Claims.Caller: tenant: %w", ErrInvalidToken)
	}
	if c.ActorID == "" {
		return domain.Caller{}, fmt.Errorf("auth.Claims.Caller: actor: %w", ErrInvalidToken)
	}
	return domain.Caller{
		ActorID:  c.ActorID,
		TenantID: tenantID,
		Role:     c.Role,
		Source:   source,
	}, nil
}
