// Package livekit mints and verifies LiveKit-compatible room access tokens.
package livekit

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTTL is the token lifetime when Grant.TTL is zero.
const DefaultTTL = time.Hour

var (
	ErrMissingCredentials = errors.New("livekit: api key and secret required")
	ErrMissingRoom        = errors.New("livekit: room required")
	ErrInvalidToken       = errors.New("livekit: invalid token")
)

// Grant describes who may join which room, and for how long.
type Grant struct {
	Room     string
	Identity string
	Name     string
	TTL      time.Duration

	// Agent marks the participant as an agent.
	Agent bool
}

// VideoGrant is the room permission block of a token.
type VideoGrant struct {
	Room         string `json:"room"`
	RoomJoin     bool   `json:"roomJoin"`
	CanPublish   bool   `json:"canPublish"`
	CanSubscribe bool   `json:"canSubscribe"`
	Agent        bool   `json:"agent,omitempty"`
}

// Claims is the token payload.
type Claims struct {
	jwt.RegisteredClaims
	Name  string     `json:"name,omitempty"`
	Video VideoGrant `json:"video"`
}

// AccessToken returns an HS256 JWT issued by apiKey and signed with apiSecret.
func AccessToken(apiKey, apiSecret string, g Grant) (string, error) {
	if apiKey == "" || apiSecret == "" {
		return "", ErrMissingCredentials
	}
	if g.Room == "" {
		return "", ErrMissingRoom
	}
	ttl := g.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    apiKey,
			Subject:   g.Identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Name: g.Name,
		Video: VideoGrant{
			Room:         g.Room,
			RoomJoin:     true,
			CanPublish:   true,
			CanSubscribe: true,
			Agent:        g.Agent,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(apiSecret))
	if err != nil {
		return "", fmt.Errorf("livekit: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses token, checks its signature and lifetime, and returns the claims.
func Verify(apiSecret, token string) (*Claims, error) {
	if apiSecret == "" {
		return nil, ErrMissingCredentials
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(apiSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyRoom verifies token and checks that it grants joining room.
func VerifyRoom(apiSecret, token, room string) (*Claims, error) {
	claims, err := Verify(apiSecret, token)
	if err != nil {
		return nil, err
	}
	if !claims.Video.RoomJoin || claims.Video.Room != room {
		return nil, fmt.Errorf("%w: not granted room %q", ErrInvalidToken, room)
	}
	return claims, nil
}
