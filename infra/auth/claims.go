package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/CrestNiraj12/nwitter/domain"
)

// Claims is the payload of a gateway ID token.
type Claims struct {
	Email         string `json:"email,omitempty"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name,omitempty"`
	Picture       string `json:"picture,omitempty"`
	jwt.RegisteredClaims
}

// Account maps the claims onto the account they describe.
func (c *Claims) Account() domain.Account {
	return domain.Account{
		ID:            c.Subject,
		Email:         c.Email,
		DisplayName:   c.Name,
		AvatarURL:     c.Picture,
		EmailVerified: c.EmailVerified,
	}
}

// Expired reports whether the token is past its expiry at now.
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt != nil && !now.Before(c.ExpiresAt.Time)
}

// ParseIDToken reads the claims without checking the signature. The client
// has no key for that; the gateway verifies every token it receives.
func ParseIDToken(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("parsing id token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("id token has no subject")
	}
	return claims, nil
}

// AccountFromToken parses an ID token into the account it was issued for.
func AccountFromToken(token string) (domain.Account, error) {
	claims, err := ParseIDToken(token)
	if err != nil {
		return domain.Account{}, err
	}
	return claims.Account(), nil
}
