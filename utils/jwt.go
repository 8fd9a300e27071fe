package utils

import (
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var JWTSecret = loadSecret()

func loadSecret() []byte {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		// Default untuk development
		secret = "CampusGateDevSecret"
	}
	return []byte(secret)
}

// SetJWTSecret dipanggil dari main setelah config dibaca
func SetJWTSecret(secret string) {
	if secret != "" {
		JWTSecret = []byte(secret)
	}
}

type GuardClaims struct {
	GuardID uint `json:"guard_id"`
	jwt.RegisteredClaims
}

func GenerateToken(guardID uint, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &GuardClaims{
		GuardID: guardID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "CampusGate",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(JWTSecret)
}

func ParseToken(tokenString string) (*GuardClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &GuardClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return JWTSecret, nil
	})

	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(*GuardClaims)
	if !ok || claims.GuardID == 0 {
		return nil, errors.New("invalid token claims")
	}

	return claims, nil
}
