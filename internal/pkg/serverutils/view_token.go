package serverutils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidViewToken = errors.New("invalid view token")

// ViewTokens signs short-lived tokens that bind a websocket connection to one open chat view.
type ViewTokens struct {
	secret []byte
	ttl    time.Duration
}

func NewViewTokens(secret string, ttl time.Duration) *ViewTokens {
	return &ViewTokens{secret: []byte(secret), ttl: ttl}
}

func (v *ViewTokens) Issue(viewID string) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"view_id": viewID,
		"iat":     now.Unix(),
		"exp":     now.Add(v.ttl).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign view token: %w", err)
	}
	return signed, nil
}

// Parse verifies the token and returns the view id it was issued for.
func (v *ViewTokens) Parse(tokenStr string) (string, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidViewToken
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidViewToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidViewToken
	}
	viewID, ok := claims["view_id"].(string)
	if !ok || viewID == "" {
		return "", ErrInvalidViewToken
	}
	return viewID, nil
}

// TokenFromRequest reads a token from the "token" query parameter, falling back to a Bearer header.
func TokenFromRequest(query, authHeader string) string {
	if query != "" {
		return query
	}
	if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
		return authHeader[7:]
	}
	return ""
}
