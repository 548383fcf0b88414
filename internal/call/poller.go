package call

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// RoomStatusClient is the backend operation the poller wraps: a single
// request/response asking whether an appointment's room has participants.
// Implementations return ErrRoomNotFound when the room does not exist yet.
type RoomStatusClient interface {
	CheckRoomStatus(ctx context.Context, appointmentID uuid.UUID, asDoctor bool) (RoomStatus, error)
}

// tickTimeout bounds one scheduled tick so a stalled backend cannot pile
// ticks on top of each other indefinitely.
const tickTimeout = 20 * time.Second

// Poller schedules room-status checks on a fixed interval. It holds no state
// beyond its configuration; consumers own whatever the results mean.
type Poller struct {
	client   RoomStatusClient
	interval time.Duration
	asDoctor bool
}

func NewPoller(client RoomStatusClient, interval time.Duration, asDoctor bool) *Poller {
	return &Poller{
		client:   client,
		interval: interval,
		asDoctor: asDoctor,
	}
}

// Poll performs a single room-status check.
func (p *Poller) Poll(ctx context.Context, appointmentID uuid.UUID) (RoomStatus, error) {
	return p.client.CheckRoomStatus(ctx, appointmentID, p.asDoctor)
}

// Run fires tick immediately, then once per interval until ctx is cancelled.
// Ticks execute on this goroutine, so two ticks can never overlap; a tick
// that outlives its slot delays the next one instead of racing it.
func (p *Poller) Run(ctx context.Context, tick func(ctx context.Context)) {
	runOnce := func() {
		tickCtx, cancel := context.WithTimeout(ctx, tickTimeout)
		defer cancel()
		tick(tickCtx)
	}

	runOnce()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
