package webhook

import (
	"context"
	"encoding/json"
	"sync"

	"slacklog/pkg/logx"
	"slacklog/pkg/slacklog"
)

// Dummy writes payloads to a logger instead of the network and always
// succeeds. It keeps the last payloads it saw for inspection.
type Dummy struct {
	log logx.Logger

	mu   sync.Mutex
	last []string
}

var _ slacklog.Sender = (*Dummy)(nil)

const dummyKeep = 64

func NewDummy(log logx.Logger) *Dummy {
	return &Dummy{log: log}
}

func (d *Dummy) Send(_ context.Context, p slacklog.Payload, _ string) error {
	b, err := json.Marshal(p)
	if err != nil {
		return &DeliveryError{Kind: KindPayload, Err: err}
	}
	d.log.Info("webhook dry run", logx.String("payload", string(b)), logx.NoSlack())

	d.mu.Lock()
	d.last = append(d.last, string(b))
	if len(d.last) > dummyKeep {
		d.last = d.last[len(d.last)-dummyKeep:]
	}
	d.mu.Unlock()
	return nil
}

// Sent returns the JSON payloads seen so far, oldest first.
func (d *Dummy) Sent() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.last...)
}
