package service

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingTenant      = errors.New("token carries no org_id")
)

// Principal is the identity a bearer token speaks for. TenantID scopes
// every request; Email doubles as the contact id for ticket and order
// lookups.
type Principal struct {
	TenantID string
	Email    string
}

type AuthService struct {
	jwtSecret []byte
	issuer    string
}

// NewAuthService verifies HS256 tokens signed with jwtSecret. A non-empty
// issuer is both stamped on issued tokens and required on validated ones.
func NewAuthService(jwtSecret, issuer string) *AuthService {
	return &AuthService{
		jwtSecret: []byte(jwtSecret),
		issuer:    issuer,
	}
}

// ValidateJWT verifies a bearer token and returns the tenant it is scoped to.
func (s *AuthService) ValidateJWT(ctx context.Context, tokenStr string) (*Principal, error) {
	claims := &tenantClaims{}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.jwtSecret, nil
	}, opts...)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !token.Valid {
		return nil, ErrInvalidCredentials
	}
	if claims.OrgID == "" {
		return nil, ErrMissingTenant
	}

	return &Principal{
		TenantID: claims.OrgID,
		Email:    claims.Email,
	}, nil
}

// IssueJWT signs a token for tenantID. Used by `deskdata token` and tests.
func (s *AuthService) IssueJWT(ctx context.Context, tenantID, email string, ttl time.Duration) (string, error) {
	if tenantID == "" {
		return "", ErrMissingTenant
	}
	now := time.Now()
	claims := tenantClaims{
		OrgID: tenantID,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    s.issuer,
			Subject:   email,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

type tenantClaims struct {
	OrgID string `json:"org_id"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}
