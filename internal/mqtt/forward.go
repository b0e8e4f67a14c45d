package mqtt

import (
	"context"

	"github.com/sweeney/pump-controller/internal/logger"
	"github.com/sweeney/pump-controller/internal/logic"
)

// Forward publishes controller events until ctx is done or events is
// closed. Publish failures are logged and do not stop forwarding.
func Forward(ctx context.Context, events <-chan logic.Event, pub Publisher) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := pub.Publish(ev); err != nil {
				logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("Failed to publish event")
				continue
			}
			logger.Debug().
				Str("event", string(ev.Type)).
				Int("cycles", ev.Cycles).
				Msg("Published event")
		}
	}
}
