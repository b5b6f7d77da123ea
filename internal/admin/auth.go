// Package admin serves the operator endpoints: login, runtime settings,
// file listing and statistics, and manual maintenance runs.
package admin

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/juju/clock"
)

// Role is the role claim carried by admin tokens.
const Role = "admin"

// ErrInvalidPassword is returned when the login password does not match.
var ErrInvalidPassword = errors.New("invalid admin password")

// Token is an issued admin bearer token.
type Token struct {
	Token     string    `json:"token"     example:"eyJhbGci..."`
	ExpiresAt time.Time `json:"expiresAt" example:"2026-05-05T10:30:00Z"`
}

// Authenticator checks the admin password and issues signed tokens.
type Authenticator struct {
	password string
	secret   []byte
	ttl      time.Duration
	clock    clock.Clock
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(password, secret string, ttl time.Duration, clk clock.Clock) *Authenticator {
	return &Authenticator{password: password, secret: []byte(secret), ttl: ttl, clock: clk}
}

// Login returns a token when password matches the configured admin password.
func (a *Authenticator) Login(password string) (*Token, error) {
	if a.password == "" || subtle.ConstantTimeCompare([]byte(a.password), []byte(password)) != 1 {
		return nil, ErrInvalidPassword
	}

	now := a.clock.Now()
	exp := now.Add(a.ttl)
	claims := jwt.MapClaims{
		"sub":  "admin",
		"role": Role,
		"iat":  now.Unix(),
		"exp":  exp.Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &Token{Token: signed, ExpiresAt: exp.UTC()}, nil
}
