// Package auth verifies the identity tokens minted by the web/auth tier.
// Authenticated users present a short-lived HS256 JWT when opening the
// WebSocket; guests present nothing. Token problems never fail a connect —
// they just downgrade it to anonymous.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenTTL is the lifetime of a minted identity token. The web tier hands
// the token out right before redirecting to the chat page, so it only needs
// to survive the connect.
const TokenTTL = 15 * time.Minute

var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the JWT payload carried by an identity token.
type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// Verifier validates identity tokens against a shared HMAC secret.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the given shared secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Mint creates a signed identity token for userID. The web tier calls this
// after a successful login.
func (v *Verifier) Mint(userID string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// GatePassTTL is the lifetime of a gate pass. Long enough to cover a chat
// session, short enough that a leaked pass goes stale.
const GatePassTTL = 12 * time.Hour

// gateSubject marks a token as a gate pass rather than an identity token.
const gateSubject = "gate"

// MintGatePass creates a signed gate pass. The web tier calls this after
// the visitor clears the CAPTCHA and age pages.
func (v *Verifier) MintGatePass() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   gateSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(GatePassTTL)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign gate pass: %w", err)
	}
	return signed, nil
}

// VerifyGatePass reports whether a gate pass is valid.
func (v *Verifier) VerifyGatePass(tokenStr string) bool {
	if tokenStr == "" {
		return false
	}
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	return err == nil && token.Valid && claims.Subject == gateSubject
}

// Verify parses and validates a token, returning the user id it names.
// Expired, malformed, or wrongly signed tokens return ErrInvalidToken.
func (v *Verifier) Verify(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.UserID == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}
