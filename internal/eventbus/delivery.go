package eventbus

import (
	"time"

	"github.com/google/uuid"

	"slacklog/pkg/slacklog"
)

// Delivery is the Data of a TypeDelivery event: one record's trip through
// the pipeline. Err is the error text; the webhook URL is never included.
type Delivery struct {
	ID          string    `json:"id"`
	Source      string    `json:"source"`
	Time        time.Time `json:"time"`
	Level       string    `json:"level"`
	Logger      string    `json:"logger,omitempty"`
	Service     string    `json:"service,omitempty"`
	Environment string    `json:"environment,omitempty"`
	Message     string    `json:"message"`
	Outcome     string    `json:"outcome"`
	Err         string    `json:"error,omitempty"`
}

// NewDelivery summarizes a pipeline outcome. Long messages are cut to
// keep events small.
func NewDelivery(source string, r slacklog.Record, o slacklog.Outcome, err error) Delivery {
	d := Delivery{
		ID:          uuid.NewString(),
		Source:      source,
		Time:        time.Now().UTC(),
		Level:       r.Level.String(),
		Logger:      r.Logger,
		Service:     r.Service,
		Environment: r.Environment,
		Message:     truncate(r.Message, 512),
		Outcome:     o.String(),
	}
	if err != nil {
		d.Err = truncate(err.Error(), 512)
	}
	return d
}

// Observer returns a pipeline observer publishing TypeDelivery events.
func Observer(b Bus, source string) slacklog.Observer {
	return func(r slacklog.Record, o slacklog.Outcome, err error) {
		d := NewDelivery(source, r, o, err)
		b.Publish(Event{Type: TypeDelivery, Time: d.Time, Data: d})
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
