// Package auth resolves connection tokens into identities. Tokens are HS256
// JWT access tokens carrying a "user_id" claim.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	userIDClaim    = "user_id"
	tokenTypeClaim = "token_type"
	accessToken    = "access"
)

var (
	ErrMissingUserID = errors.New("token has no user_id claim")
	ErrTokenType     = errors.New("token is not an access token")
)

// JWTVerifier validates HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithJSONNumber(),
			jwt.WithExpirationRequired(),
		),
	}
}

// Verify checks signature and expiry and returns the user_id claim, which
// may be encoded as a string or a number.
func (v *JWTVerifier) Verify(tokenString string) (string, error) {
	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}

	if tokenType, ok := claims[tokenTypeClaim]; ok && tokenType != accessToken {
		return "", ErrTokenType
	}

	switch userID := claims[userIDClaim].(type) {
	case string:
		if userID == "" {
			return "", ErrMissingUserID
		}
		return userID, nil
	case json.Number:
		return userID.String(), nil
	default:
		return "", ErrMissingUserID
	}
}

// GenerateToken signs an access token for userID valid for ttl.
func GenerateToken(secret, userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		userIDClaim:    userID,
		tokenTypeClaim: accessToken,
		"jti":          uuid.NewString(),
		"iat":          jwt.NewNumericDate(now),
		"exp":          jwt.NewNumericDate(now.Add(ttl)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
