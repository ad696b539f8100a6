package config

type Config struct {
	Logging LoggingConfig `json:"logging"`
	Slack   SlackConfig   `json:"slack"`

	Relay     *RelayConfig     `json:"relay,omitempty"`
	Heartbeat *HeartbeatConfig `json:"heartbeat,omitempty"`
	History   *HistoryConfig   `json:"history,omitempty"`
}

type LoggingConfig struct {
	Level   string       `json:"level"`
	Console bool         `json:"console"`
	File    LoggingFile  `json:"file"`
	Slack   LoggingSlack `json:"slack"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingSlack forwards the process's own log lines through the Slack
// pipeline. Lines below MinLevel (default "error") stay local.
type LoggingSlack struct {
	Enabled   bool   `json:"enabled"`
	MinLevel  string `json:"min_level"`
	QueueSize int    `json:"queue_size,omitempty"`
}

// SlackConfig describes the delivery pipeline.
//
// Example:
//
//	"slack": {
//	  "webhook_url": "https://hooks.slack.com/services/T/B/X",
//	  "design": "default",
//	  "min_level": "warning",
//	  "filters": [{ "type": "any_deny_list", "environment": "dev" }]
//	}
type SlackConfig struct {
	WebhookURL string `json:"webhook_url"` // secret; never logged
	// Design is one of "plain", "minimal", "default". Empty means default.
	Design   string `json:"design,omitempty"`
	MinLevel string `json:"min_level,omitempty"`
	// Timeout is a Go duration string. Default "5s".
	Timeout string `json:"timeout,omitempty"`
	// DryRun logs payloads instead of posting them.
	DryRun bool `json:"dry_run,omitempty"`

	Service     string            `json:"service,omitempty"`
	Environment string            `json:"environment,omitempty"`
	Context     []string          `json:"context,omitempty"`
	Emojis      map[string]string `json:"emojis,omitempty"`
	ExtraFields map[string]string `json:"extra_fields,omitempty"`

	Filters []FilterSpec `json:"filters,omitempty"`
}

// FilterSpec is one filter rule. Type accepts the names understood by
// slacklog.ParseFilterType; empty means any_allow_list.
type FilterSpec struct {
	Type        string            `json:"type,omitempty"`
	Environment string            `json:"environment,omitempty"`
	Service     string            `json:"service,omitempty"`
	Fields      map[string]string `json:"fields,omitempty"`
}

// RelayConfig controls the HTTP ingest API.
//
// Prefer binding to localhost; the API has no authentication.
type RelayConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"` // default: "127.0.0.1:8088"

	// Server timeouts (Go duration strings).
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`

	// MaxBodyBytes caps POST bodies. Default 1 MiB.
	MaxBodyBytes int64 `json:"max_body_bytes,omitempty"`

	// RatePerSec limits ingest requests; 0 disables the limit. Burst
	// defaults to max(1, ceil(RatePerSec)).
	RatePerSec float64 `json:"rate_per_sec,omitempty"`
	Burst      int     `json:"burst,omitempty"`

	// Pprof mounts net/http/pprof under /debug. Loopback clients only.
	Pprof bool `json:"pprof,omitempty"`
}

// HeartbeatConfig schedules a periodic record through the pipeline.
// Schedule accepts cron specs and descriptors ("@every 1h", "@daily").
type HeartbeatConfig struct {
	Enabled  bool   `json:"enabled"`
	Schedule string `json:"schedule"`
	Message  string `json:"message,omitempty"`
	Level    string `json:"level,omitempty"` // default "info"
	Timezone string `json:"timezone,omitempty"`
}

// HistoryConfig controls the delivery audit log.
//
// Example:
//
//	"history": { "driver": "file", "path": "./data/history" }
type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	// Keep bounds the rows retained. Zero means 10000.
	Keep int `json:"keep,omitempty"`
}
