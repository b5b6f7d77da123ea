package admin

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticator_Login(t *testing.T) {
	now := time.Now().Truncate(time.Second)

	tests := []struct {
		name       string
		configured string
		given      string
		wantErr    error
	}{
		{name: "should issue token for correct password", configured: "s3cret", given: "s3cret"},
		{name: "should reject wrong password", configured: "s3cret", given: "S3CRET", wantErr: ErrInvalidPassword},
		{name: "should reject everything when no password is configured", configured: "", given: "", wantErr: ErrInvalidPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAuthenticator(tt.configured, "jwt-secret", 2*time.Hour, testclock.NewClock(now))

			tok, err := a.Login(tt.given)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, tok)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, now.Add(2*time.Hour).UTC(), tok.ExpiresAt)

			parsed, err := jwt.Parse(tok.Token, func(*jwt.Token) (interface{}, error) {
				return []byte("jwt-secret"), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			require.NoError(t, err)
			claims := parsed.Claims.(jwt.MapClaims)
			assert.Equal(t, Role, claims["role"])
			assert.Equal(t, "admin", claims["sub"])
		})
	}
}
