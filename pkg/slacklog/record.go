package slacklog

import "time"

// Record is the normalized view of one log event.
//
// Service and Environment override the Configuration for this record only.
// Filter is the per-call filter context; nil means the caller supplied none.
type Record struct {
	Level       Level
	Message     string
	Trace       string
	Time        time.Time
	Logger      string
	Service     string
	Environment string
	ExtraFields map[string]string
	Filter      map[string]string
}

func (r Record) HasTrace() bool { return r.Trace != "" }

// Body is the message followed by the trace on its own line, if any.
func (r Record) Body() string {
	if r.Trace == "" {
		return r.Message
	}
	if r.Message == "" {
		return r.Trace
	}
	return r.Message + "\n" + r.Trace
}
