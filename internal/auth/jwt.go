package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"lotwatch/internal/lots"
	"strings"
	"time"
)

var (
	ErrNoToken      = errors.New("no token available")
	ErrTokenExpired = errors.New("token expired")
	ErrNotJWT       = errors.New("token is not a jwt")
)

// Claims are the jwt claims this tool cares about.
type Claims struct {
	Subject    string
	CustomerID string
	Email      string
	ExpiresAt  time.Time
}

type wireClaims struct {
	Sub        lots.FlexString `json:"sub"`
	Exp        lots.FlexString `json:"exp"`
	CustomerID lots.FlexString `json:"customer_id"`
	CustomerId lots.FlexString `json:"customerId"`
	Email      lots.FlexString `json:"email"`
}

// ParseJWT decodes the claims of `token` without verifying its signature.
// It returns the claims along with ErrTokenExpired when exp is before now.
func ParseJWT(token string, now time.Time) (Claims, error) {
	parts := strings.Split(strings.TrimSpace(token), ".")
	if len(parts) != 3 {
		return Claims{}, ErrNotJWT
	}
	payload, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(parts[1], "="))
	if err != nil {
		return Claims{}, fmt.Errorf("decode jwt payload: %w", err)
	}

	var wire wireClaims
	err = json.Unmarshal(payload, &wire)
	if err != nil {
		return Claims{}, fmt.Errorf("decode jwt claims: %w", err)
	}

	claims := Claims{
		Subject:    string(wire.Sub),
		CustomerID: string(wire.CustomerID),
		Email:      string(wire.Email),
	}
	if claims.CustomerID == "" {
		claims.CustomerID = string(wire.CustomerId)
	}
	if wire.Exp != "" {
		exp, err := lots.ParseTime(string(wire.Exp))
		if err != nil {
			return claims, fmt.Errorf("decode jwt exp: %w", err)
		}
		claims.ExpiresAt = exp
	}
	if !claims.ExpiresAt.IsZero() && claims.ExpiresAt.Before(now) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}
