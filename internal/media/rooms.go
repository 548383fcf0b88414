// Package media binds the call core to LiveKit: room lookup, access tokens,
// and a file-backed transport for headless participants.
package media

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
)

// RoomName derives the deterministic room name both parties compute
// independently for an appointment, so neither side needs to exchange it.
func RoomName(appointmentID uuid.UUID, roomType string) string {
	return fmt.Sprintf("appointment_%s_%s", appointmentID, roomType)
}

// RoomInfo is the subset of room state the service reports to pollers.
type RoomInfo struct {
	Name             string
	ParticipantCount int
	CreatedAt        time.Time
}

// RoomDirectory answers whether a named room currently exists on the media
// server. A missing room is reported via the ok flag, not an error.
type RoomDirectory interface {
	LookupRoom(ctx context.Context, name string) (RoomInfo, bool, error)
}

// LiveKitDirectory queries the LiveKit server API.
type LiveKitDirectory struct {
	svc *lksdk.RoomServiceClient
}

func NewLiveKitDirectory(host, apiKey, apiSecret string) *LiveKitDirectory {
	return &LiveKitDirectory{svc: lksdk.NewRoomServiceClient(host, apiKey, apiSecret)}
}

func (d *LiveKitDirectory) LookupRoom(ctx context.Context, name string) (RoomInfo, bool, error) {
	resp, err := d.svc.ListRooms(ctx, &livekit.ListRoomsRequest{Names: []string{name}})
	if err != nil {
		return RoomInfo{}, false, fmt.Errorf("list rooms: %w", err)
	}
	for _, room := range resp.Rooms {
		if room.Name != name {
			continue
		}
		return RoomInfo{
			Name:             room.Name,
			ParticipantCount: int(room.NumParticipants),
			CreatedAt:        time.Unix(room.CreationTime, 0),
		}, true, nil
	}
	return RoomInfo{}, false, nil
}
