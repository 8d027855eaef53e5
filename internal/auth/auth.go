package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("identity token invalid")
	ErrNoIdentity   = errors.New("identity claim missing")
)

// Claims is the identity claim presented at connect time. Tokens are signed
// elsewhere; this package only verifies them.
type Claims struct {
	Identity string `json:"identity"`
	jwt.RegisteredClaims
}

// HMACVerifier checks HS256-signed identity tokens.
type HMACVerifier struct {
	secret []byte
}

func NewHMACVerifier(secret string) *HMACVerifier {
	return &HMACVerifier{secret: []byte(secret)}
}

// Verify parses the token and returns the identity it asserts.
func (v *HMACVerifier) Verify(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrTokenInvalid
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Identity) == "" {
		return "", ErrNoIdentity
	}
	return claims.Identity, nil
}
