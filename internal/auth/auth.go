// Package auth issues and checks the bearer tokens staff use against the API.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role")
	ErrDisabled     = errors.New("token signing is not configured")
)

type Role string

const (
	RoleStaff Role = "staff"
	RoleOwner Role = "owner"
)

func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleStaff:
		return RoleStaff, nil
	case RoleOwner:
		return RoleOwner, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, raw)
}

// Allows reports whether a holder of r may act as want. Owners can do
// everything staff can.
func (r Role) Allows(want Role) bool {
	return r == want || r == RoleOwner
}

type Claims struct {
	jwt.RegisteredClaims
	Staff string `json:"staff"`
	Role  Role   `json:"role"`
}

type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// New returns an authenticator signing with secret. An empty secret
// disables authentication.
func New(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

func (a *Authenticator) Enabled() bool {
	return len(a.secret) > 0
}

// Issue signs an HS256 token for a staff member valid for ttl.
func (a *Authenticator) Issue(staff string, role Role, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", ErrDisabled
	}
	staff = strings.TrimSpace(staff)
	if staff == "" {
		return "", fmt.Errorf("%w: staff name is required", ErrInvalidToken)
	}
	if _, err := ParseRole(string(role)); err != nil {
		return "", err
	}

	now := a.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staff,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Staff: staff,
		Role:  role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its claims.
func (a *Authenticator) Parse(token string) (*Claims, error) {
	if !a.Enabled() {
		return nil, ErrDisabled
	}
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if _, err := ParseRole(string(claims.Role)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &claims, nil
}
