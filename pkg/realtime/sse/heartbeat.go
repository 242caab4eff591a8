package sse

import (
	"context"
	"time"
)

type heartbeatKey struct{}

func (b *Broadcaster[I]) startHeartbeat() {
	ctx, cancel := context.WithCancel(context.Background())
	b.stopHeartbeat = cancel
	b.wg.Add(1)
	go b.runHeartbeat(ctx)
}

// runHeartbeat sends the keep-alive comment after the initial delay and then
// on every interval until ctx is cancelled.
func (b *Broadcaster[I]) runHeartbeat(ctx context.Context) {
	defer b.wg.Done()

	timer := time.NewTimer(b.cfg.HeartbeatDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			b.Heartbeat(context.WithValue(ctx, heartbeatKey{}, true))
			timer.Reset(b.cfg.HeartbeatInterval)
		}
	}
}

// notifyRemovedFrom marks observer calls made on the heartbeat goroutine so
// that Close invoked from one of them does not wait for its own goroutine.
func (b *Broadcaster[I]) notifyRemovedFrom(ctx context.Context, count int) {
	if fromHeartbeat, _ := ctx.Value(heartbeatKey{}).(bool); fromHeartbeat {
		b.heartbeatNotifying.Store(true)
		defer b.heartbeatNotifying.Store(false)
	}
	b.notifyRemoved(count)
}
