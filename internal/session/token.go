package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Common errors returned when inspecting tokens.
var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingClaims = errors.New("missing required claims")
)

// Claims is the subset of access-token claims the client relies on.
type Claims struct {
	UserID    int64
	ExpiresAt time.Time
}

// Expired reports whether the token is past its expiry at now, with skew tolerance.
func (c *Claims) Expired(now time.Time, skew time.Duration) bool {
	return !c.ExpiresAt.IsZero() && !now.Add(skew).Before(c.ExpiresAt)
}

// ParseClaims reads the user id and expiry from an access token without
// verifying its signature. The client never holds the signing key; the
// server remains the authority on validity.
func ParseClaims(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	mapClaims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, mapClaims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	userID, err := userIDClaim(mapClaims)
	if err != nil {
		return nil, err
	}

	claims := &Claims{UserID: userID}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}

// userIDClaim accepts "user_id" (number or string) and falls back to "sub".
func userIDClaim(mc jwt.MapClaims) (int64, error) {
	for _, key := range []string{"user_id", "sub"} {
		switch v := mc[key].(type) {
		case float64:
			return int64(v), nil
		case string:
			if id, err := strconv.ParseInt(v, 10, 64); err == nil {
				return id, nil
			}
		}
	}
	return 0, ErrMissingClaims
}
