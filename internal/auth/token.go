package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VideoGrant mirrors the LiveKit video grant claim block.
type VideoGrant struct {
	RoomJoin     bool   `json:"roomJoin,omitempty"`
	Room         string `json:"room,omitempty"`
	CanPublish   *bool  `json:"canPublish,omitempty"`
	CanSubscribe *bool  `json:"canSubscribe,omitempty"`
	Hidden       bool   `json:"hidden,omitempty"`
	Agent        bool   `json:"agent,omitempty"`
}

// AccessTokenClaims are the JWT claims accepted by a LiveKit server.
type AccessTokenClaims struct {
	Video *VideoGrant `json:"video,omitempty"`
	Name  string      `json:"name,omitempty"`
	jwt.RegisteredClaims
}

const defaultTokenTTL = 10 * time.Minute

// NewAccessToken mints a room-join token for an agent participant. The
// identity goes into the JWT subject, the API key into the issuer, per the
// LiveKit token format.
func NewAccessToken(apiKey, apiSecret, room, identity string, ttl time.Duration) (string, error) {
	if apiKey == "" || apiSecret == "" {
		return "", errors.New("api key and secret are required")
	}
	if ttl == 0 {
		ttl = defaultTokenTTL
	}

	canPublish := true
	canSubscribe := true
	claims := &AccessTokenClaims{
		Video: &VideoGrant{
			RoomJoin:     true,
			Room:         room,
			CanPublish:   &canPublish,
			CanSubscribe: &canSubscribe,
			Agent:        true,
		},
		Name: identity,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    apiKey,
			Subject:   identity,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			NotBefore: jwt.NewNumericDate(time.Now()),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(apiSecret))
}

// ValidateToken parses and verifies a token produced by NewAccessToken.
func ValidateToken(tokenString, apiSecret string) (*AccessTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(apiSecret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*AccessTokenClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrTokenInvalidClaims
}
