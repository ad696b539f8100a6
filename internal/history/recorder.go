package history

import (
	"context"
	"time"

	"slacklog/internal/eventbus"
	"slacklog/pkg/logx"
	"slacklog/pkg/slacklog"
)

// Record copies delivery events into st until ctx is done or events is
// closed. Subscribe before starting it so no early event is missed.
// Records skipped by the level gate are not persisted.
func Record(ctx context.Context, events <-chan eventbus.Event, st Store, log logx.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			d, ok := ev.Data.(eventbus.Delivery)
			if ev.Type != eventbus.TypeDelivery || !ok {
				continue
			}
			if d.Outcome == slacklog.OutcomeSkipped.String() {
				continue
			}
			actx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := st.Append(actx, FromDelivery(d)); err != nil {
				log.Warn("history append failed", logx.Err(err), logx.String("id", d.ID), logx.NoSlack())
			}
			cancel()
		}
	}
}
