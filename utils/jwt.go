package utils

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTDecoder verifies HMAC-signed bearer tokens and exposes their claims.
type JWTDecoder struct {
	secret []byte
}

// NewJWTDecoder creates a decoder for tokens signed with secret.
func NewJWTDecoder(secret string) *JWTDecoder {
	return &JWTDecoder{secret: []byte(secret)}
}

// Decode validates signature and expiry and returns the token's claims.
func (d *JWTDecoder) Decode(tokenStr string) (map[string]any, error) {
	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return d.secret, nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// GenerateToken issues an HS256 token carrying the member number under userClaim.
func GenerateToken(secret, userClaim string, userNo uint, duration time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		userClaim: userNo,
		"iat":     jwt.NewNumericDate(now),
		"exp":     jwt.NewNumericDate(now.Add(duration)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
