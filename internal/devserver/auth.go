package devserver

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Common errors returned by the token issuer.
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrMissingClaims    = errors.New("missing required claims")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrWrongTokenType   = errors.New("wrong token type")
)

// Token types carried in the token_type claim.
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// refreshTTL is the lifetime of refresh tokens.
const refreshTTL = 7 * 24 * time.Hour

// TokenClaims are the claims the dev server validates.
type TokenClaims struct {
	UserID    int64
	Type      string
	Version   int
	ExpiresAt time.Time
}

// TokenIssuer signs and validates HS256 access and refresh tokens.
type TokenIssuer struct {
	secret    []byte
	accessTTL time.Duration
	now       func() time.Time
}

// NewTokenIssuer creates a token issuer.
func NewTokenIssuer(secret []byte, accessTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret:    secret,
		accessTTL: accessTTL,
		now:       time.Now,
	}
}

// Issue creates a signed token of the given type for userID. version is
// compared on validation so tokens can be revoked per user.
func (t *TokenIssuer) Issue(userID int64, tokenType string, version int) (string, error) {
	if userID == 0 {
		return "", ErrMissingClaims
	}

	ttl := t.accessTTL
	if tokenType == TokenTypeRefresh {
		ttl = refreshTTL
	}

	now := t.now()
	claims := jwt.MapClaims{
		"user_id":    userID,
		"token_type": tokenType,
		"ver":        version,
		"jti":        uuid.NewString(),
		"iat":        now.Unix(),
		"exp":        now.Add(ttl).Unix(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Validate verifies a token's signature, expiry and type.
func (t *TokenIssuer) Validate(tokenString, tokenType string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrSignatureInvalid) || errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return nil, ErrInvalidSignature
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidToken
	}

	userID, ok := mapClaims["user_id"].(float64)
	if !ok || userID == 0 {
		return nil, ErrMissingClaims
	}
	typ, _ := mapClaims["token_type"].(string)
	if typ != tokenType {
		return nil, ErrWrongTokenType
	}
	version, _ := mapClaims["ver"].(float64)

	claims := &TokenClaims{
		UserID:  int64(userID),
		Type:    typ,
		Version: int(version),
	}
	if exp, err := mapClaims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, nil
}

// ExtractBearerToken extracts the token from an Authorization header.
func ExtractBearerToken(authHeader string) string {
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
