package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrExpiredToken  = errors.New("token has expired")
	ErrInvalidClaims = errors.New("invalid token claims")
	ErrRevokedToken  = errors.New("token has been revoked")
	ErrShortSecret   = errors.New("secret must be at least 32 characters")
)

// Claims carries the session identity embedded in a signed token.
// Verification needs no round trip to a central store; revocation is handled
// by the session-id denylist checked on each use.
type Claims struct {
	SessionID  string    `json:"session_id"`
	OperatorID string    `json:"operator_id"`
	Role       string    `json:"role"`
	ZoneID     string    `json:"zone_id"`
	ExpiresAt  time.Time `json:"expires_at"`
	IssuedAt   time.Time `json:"issued_at"`
}

// TokenManager issues and validates signed session tokens
type TokenManager struct {
	secretKey     []byte
	tokenDuration time.Duration
	denylist      *Denylist
}

// NewTokenManager creates a token manager.
// Returns an error if the secret is shorter than 32 characters (security requirement).
func NewTokenManager(secret string, tokenDuration time.Duration, denylist *Denylist) (*TokenManager, error) {
	if len(secret) < 32 {
		return nil, ErrShortSecret
	}
	return &TokenManager{
		secretKey:     []byte(secret),
		tokenDuration: tokenDuration,
		denylist:      denylist,
	}, nil
}

// IssueToken generates a signed, time-bounded session token
func (m *TokenManager) IssueToken(sessionID, operatorID, role, zoneID string) (string, time.Time, error) {
	if sessionID == "" || operatorID == "" {
		return "", time.Time{}, ErrInvalidClaims
	}

	now := time.Now()
	expiresAt := now.Add(m.tokenDuration)

	claims := jwt.MapClaims{
		"session_id":  sessionID,
		"operator_id": operatorID,
		"role":        role,
		"zone_id":     zoneID,
		"exp":         expiresAt.Unix(),
		"iat":         now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ValidateToken validates a session token and returns its claims. The
// denylist is consulted after signature verification so revoked sessions are
// rejected even with a valid signature.
func (m *TokenManager) ValidateToken(_ context.Context, tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	claimsMap, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidClaims
	}

	sessionID, ok := claimsMap["session_id"].(string)
	if !ok || sessionID == "" {
		return nil, fmt.Errorf("%w: missing or invalid session_id", ErrInvalidClaims)
	}
	operatorID, ok := claimsMap["operator_id"].(string)
	if !ok || operatorID == "" {
		return nil, fmt.Errorf("%w: missing or invalid operator_id", ErrInvalidClaims)
	}
	role, _ := claimsMap["role"].(string)
	zoneID, _ := claimsMap["zone_id"].(string)

	expFloat, ok := claimsMap["exp"].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: missing or invalid exp", ErrInvalidClaims)
	}
	expiresAt := time.Unix(int64(expFloat), 0)
	if time.Now().After(expiresAt) {
		return nil, ErrExpiredToken
	}

	iatFloat, ok := claimsMap["iat"].(float64)
	if !ok {
		return nil, fmt.Errorf("%w: missing or invalid iat", ErrInvalidClaims)
	}

	if m.denylist != nil && m.denylist.Contains(sessionID) {
		return nil, ErrRevokedToken
	}

	return &Claims{
		SessionID:  sessionID,
		OperatorID: operatorID,
		Role:       role,
		ZoneID:     zoneID,
		ExpiresAt:  expiresAt,
		IssuedAt:   time.Unix(int64(iatFloat), 0),
	}, nil
}

// TokenDuration returns the configured token lifetime
func (m *TokenManager) TokenDuration() time.Duration {
	return m.tokenDuration
}
