package jwt

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Subject is what a session token says about its holder.
type Subject struct {
	UserID       string
	Name         string
	Email        string
	Role         string
	MobileNumber string
}

type Claims struct {
	Name         string `json:"name,omitempty"`
	Email        string `json:"email,omitempty"`
	Role         string `json:"role"`
	MobileNumber string `json:"mobile_number,omitempty"`
	jwtlib.RegisteredClaims
}

func (c *Claims) UserID() string {
	return c.Subject
}

func (c *Claims) ToSubject() Subject {
	return Subject{
		UserID:       c.Subject,
		Name:         c.Name,
		Email:        c.Email,
		Role:         c.Role,
		MobileNumber: c.MobileNumber,
	}
}

func GenerateToken(sub Subject, secret []byte, ttl time.Duration, now time.Time) (string, time.Time, error) {
	expiresAt := now.Add(ttl)
	claims := Claims{
		Name:         sub.Name,
		Email:        sub.Email,
		Role:         sub.Role,
		MobileNumber: sub.MobileNumber,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   sub.UserID,
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func ParseToken(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenString, &Claims{}, func(token *jwtlib.Token) (interface{}, error) {
		if token.Method.Alg() != jwtlib.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// NeedsRefresh reports whether more than half of the token's lifetime has passed.
func NeedsRefresh(c *Claims, now time.Time) bool {
	if c.IssuedAt == nil || c.ExpiresAt == nil {
		return false
	}
	lifetime := c.ExpiresAt.Sub(c.IssuedAt.Time)
	return now.Sub(c.IssuedAt.Time) > lifetime/2
}
