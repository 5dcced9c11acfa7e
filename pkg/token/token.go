package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims structure for custom claims in JWT
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Issuer sign and parse dev server tokens
type Issuer struct {
	secret     []byte
	name       string
	expiration time.Duration
}

// NewIssuer create Issuer, expiration <= 0 means 60 minutes
func NewIssuer(secret, name string, expiration time.Duration) *Issuer {
	if expiration <= 0 {
		expiration = 60 * time.Minute
	}
	return &Issuer{secret: []byte(secret), name: name, expiration: expiration}
}

// GenerateJWT generates a JWT token
func (i *Issuer) GenerateJWT(userID string) (string, error) {
	if userID == "" {
		return "", errors.New("empty user id")
	}
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(i.expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    i.name,
			Subject:   userID,
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(i.secret)
}

// ParseJWT parses a JWT and extracts the Claims
func (i *Issuer) ParseJWT(tokenStr string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := t.Claims.(*Claims)
	if !ok || !t.Valid || claims.UserID == "" {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// BearerToken strip "Bearer " from an Authorization header, "" when absent
func BearerToken(header string) string {
	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
