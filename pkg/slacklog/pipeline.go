package slacklog

import (
	"context"
	"errors"
)

// Sender delivers a finished payload. Implementations own transport errors;
// the pipeline returns them unchanged and never retries.
type Sender interface {
	Send(ctx context.Context, p Payload, target string) error
}

// Outcome reports what the pipeline did with a record.
type Outcome int

const (
	OutcomeDelivered Outcome = iota
	OutcomeSkipped
	OutcomeFiltered
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFiltered:
		return "filtered"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

var ErrNoSender = errors.New("slacklog: pipeline has no sender")

// Observer is told about every processed record. It runs on the caller's
// goroutine and must not block.
type Observer func(r Record, o Outcome, err error)

// Pipeline chains filtering, formatting and delivery. A nil Formatter sends
// the message as a plain text payload.
type Pipeline struct {
	Formatter *Formatter
	Filters   []Filter
	Sender    Sender
	Target    string
	MinLevel  Level
	Observer  Observer
}

// Accept reports whether r passes the level gate and every filter.
//
// Filters are checked against the formatter configuration's context first,
// then against the record's own filter context when it carries one.
func (p *Pipeline) Accept(r Record) (Outcome, bool) {
	if r.Level < p.MinLevel {
		return OutcomeSkipped, false
	}
	if len(p.Filters) == 0 {
		return OutcomeDelivered, true
	}
	if p.Formatter != nil && p.Formatter.Config() != nil {
		if !Evaluate(p.Filters, p.Formatter.Config().FilterContext()) {
			return OutcomeFiltered, false
		}
	}
	if r.Filter != nil && !Evaluate(p.Filters, r.Filter) {
		return OutcomeFiltered, false
	}
	return OutcomeDelivered, true
}

// Build formats r without sending it.
func (p *Pipeline) Build(r Record) (Payload, error) {
	if p.Formatter == nil {
		if r.Level < LevelNotSet {
			return Payload{}, configErrorf("record severity %d is not a level", int(r.Level))
		}
		if r.Body() == "" {
			return Payload{}, configErrorf("record has no message")
		}
		return Payload{Text: r.Body()}, nil
	}
	return p.Formatter.Format(r)
}

// Process runs r through the pipeline. Formatting and delivery errors are
// returned to the caller.
func (p *Pipeline) Process(ctx context.Context, r Record) (Outcome, error) {
	o, err := p.process(ctx, r)
	if p.Observer != nil {
		p.Observer(r, o, err)
	}
	return o, err
}

func (p *Pipeline) process(ctx context.Context, r Record) (Outcome, error) {
	// checked before the level gate, which would otherwise skip it silently
	if r.Level < LevelNotSet {
		return OutcomeFailed, configErrorf("record severity %d is not a level", int(r.Level))
	}
	if o, ok := p.Accept(r); !ok {
		return o, nil
	}
	payload, err := p.Build(r)
	if err != nil {
		return OutcomeFailed, err
	}
	if p.Sender == nil {
		return OutcomeFailed, ErrNoSender
	}
	if err := p.Sender.Send(ctx, payload, p.Target); err != nil {
		return OutcomeFailed, err
	}
	return OutcomeDelivered, nil
}
