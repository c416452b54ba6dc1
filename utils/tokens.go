package utils

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

// Manager issues short-lived single-purpose tokens (password reset) and
// random refresh tokens.
type Manager struct {
	signingKey string
}

func NewManager(signingKey string) (*Manager, error) {
	if signingKey == "" {
		return nil, errors.New("empty signing key")
	}

	return &Manager{signingKey: signingKey}, nil
}

// ResetAudience is the purpose claim of password reset tokens. Tokens without
// it, access tokens included, are rejected by Parse.
const ResetAudience = "password_reset"

// ResetClaims is what a valid reset token carries.
type ResetClaims struct {
	UserID    string
	TokenID   string
	ExpiresAt time.Time
}

func (m *Manager) NewJWT(userID string, ttl time.Duration) (string, error) {
	tokenID, err := randomHex(16)
	if err != nil {
		return "", err
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Audience:  ResetAudience,
		ExpiresAt: time.Now().Add(ttl).Unix(),
		Id:        tokenID,
		IssuedAt:  time.Now().Unix(),
		Subject:   userID,
	})

	return token.SignedString([]byte(m.signingKey))
}

// Parse validates a reset token and returns its claims.
func (m *Manager) Parse(token string) (ResetClaims, error) {
	claims := &jwt.StandardClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.signingKey), nil
	})
	if err != nil {
		return ResetClaims{}, err
	}
	if !parsed.Valid || claims.Subject == "" || claims.Id == "" {
		return ResetClaims{}, errors.New("token has no subject or id")
	}
	if !claims.VerifyAudience(ResetAudience, true) {
		return ResetClaims{}, errors.New("token is not a password reset token")
	}

	return ResetClaims{
		UserID:    claims.Subject,
		TokenID:   claims.Id,
		ExpiresAt: time.Unix(claims.ExpiresAt, 0),
	}, nil
}

func (m *Manager) NewRefreshToken() (string, error) {
	return randomHex(32)
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
