package media

import (
	"fmt"
	"time"

	lkauth "github.com/livekit/protocol/auth"
)

// TokenMinter issues LiveKit access tokens scoped to a single room.
type TokenMinter struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
}

func NewTokenMinter(apiKey, apiSecret string, ttl time.Duration) *TokenMinter {
	return &TokenMinter{apiKey: apiKey, apiSecret: apiSecret, ttl: ttl}
}

// Mint returns a join token allowing identity to publish and subscribe in
// room. The identity must be stable per user so a reconnect replaces the
// stale participant instead of duplicating it.
func (m *TokenMinter) Mint(room, identity, name string) (string, error) {
	grant := &lkauth.VideoGrant{
		RoomJoin: true,
		Room:     room,
	}
	grant.SetCanPublish(true)
	grant.SetCanSubscribe(true)
	grant.SetCanPublishData(true)

	at := lkauth.NewAccessToken(m.apiKey, m.apiSecret).
		SetVideoGrant(grant).
		SetIdentity(identity).
		SetName(name).
		SetValidFor(m.ttl)

	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return token, nil
}
