package auth

import (
	"errors"
	"fmt"
	"time"

	"site-builder/internal/config"

	"github.com/golang-jwt/jwt/v5"
)

const (
	accessTokenTTL  = 15 * time.Minute
	refreshTokenTTL = 7 * 24 * time.Hour
)

func secret() []byte {
	return []byte(config.AppConfig.JWTSecret)
}

func GenerateAccessToken(userID uint64, tokenVersion uint64) (string, error) {
	return generate(userID, tokenVersion, accessTokenTTL)
}

func GenerateRefreshToken(userID uint64, tokenVersion uint64) (string, error) {
	return generate(userID, tokenVersion, refreshTokenTTL)
}

func generate(userID uint64, tokenVersion uint64, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id":       userID,
		"token_version": tokenVersion,
		"exp":           time.Now().Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret())
}

func VerifyJWT(tokenString string) (*jwt.Token, error) {
	jwtToken, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return secret(), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}

	if !jwtToken.Valid {
		return nil, errors.New("token invalid")
	}

	return jwtToken, nil
}

// GetDataFromToken extracts the user id and token version claims
func GetDataFromToken(token *jwt.Token) (uint64, uint64, error) {
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, 0, errors.New("unexpected claims type")
	}

	// numeric claims decode as float64
	userID, ok := claims["user_id"].(float64)
	if !ok || userID <= 0 {
		return 0, 0, fmt.Errorf("user_id claim missing")
	}
	tokenVersion, ok := claims["token_version"].(float64)
	if !ok {
		return 0, 0, fmt.Errorf("token_version claim missing")
	}

	return uint64(userID), uint64(tokenVersion), nil
}
