package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// SessionIssuer signs and verifies session tokens for authenticated
// agent connections, the same HS256 jwt.RegisteredClaims pattern the
// teacher uses for player sessions, with the subject set to the
// agent's address instead of a phone-derived player id.
type SessionIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewSessionIssuer builds an issuer signing with secret and a default
// session lifetime of ttl.
func NewSessionIssuer(secret string, ttl time.Duration) *SessionIssuer {
	return &SessionIssuer{secret: []byte(secret), ttl: ttl}
}

type sessionClaims struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	jwt.RegisteredClaims
}

// Issue mints a session token bound to address/name.
func (si *SessionIssuer) Issue(address, name string) (string, error) {
	claims := sessionClaims{
		Address: strings.ToLower(address),
		Name:    name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(si.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(si.secret)
}

// Verify parses and validates a session token, returning the bound
// address and display name.
func (si *SessionIssuer) Verify(tokenString string) (address, name string, err error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return si.secret, nil
	})
	if err != nil {
		return "", "", err
	}
	if !token.Valid {
		return "", "", fmt.Errorf("invalid session token")
	}
	return claims.Address, claims.Name, nil
}
