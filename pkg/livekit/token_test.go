package livekit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	token, err := AccessToken("key", "secret", Grant{Room: "barista-1", Identity: "user-7", Name: "Sam"})
	require.NoError(t, err)

	claims, err := Verify("secret", token)
	require.NoError(t, err)
	assert.Equal(t, "key", claims.Issuer)
	assert.Equal(t, "user-7", claims.Subject)
	assert.Equal(t, "Sam", claims.Name)
	assert.Equal(t, "barista-1", claims.Video.Room)
	assert.True(t, claims.Video.RoomJoin)
	assert.NotEmpty(t, claims.ID)
	assert.WithinDuration(t, time.Now().Add(DefaultTTL), claims.ExpiresAt.Time, 5*time.Second)
}

func TestAccessTokenErrors(t *testing.T) {
	_, err := AccessToken("", "secret", Grant{Room: "r"})
	assert.ErrorIs(t, err, ErrMissingCredentials)

	_, err = AccessToken("key", "secret", Grant{})
	assert.ErrorIs(t, err, ErrMissingRoom)
}

func TestVerifyRejects(t *testing.T) {
	token, err := AccessToken("key", "secret", Grant{Room: "room-a"})
	require.NoError(t, err)

	tests := []struct {
		name   string
		secret string
		token  string
		room   string
	}{
		{"wrong secret", "other", token, "room-a"},
		{"wrong room", "secret", token, "room-b"},
		{"garbage", "secret", "not.a.jwt", "room-a"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyRoom(tt.secret, tt.token, tt.room)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}

	_, err = VerifyRoom("secret", token, "room-a")
	assert.NoError(t, err)
}

func TestVerifyExpired(t *testing.T) {
	token, err := AccessToken("key", "secret", Grant{Room: "r", TTL: time.Nanosecond})
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	_, err = Verify("secret", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
