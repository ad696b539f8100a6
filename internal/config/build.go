package config

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"slacklog/pkg/slacklog"
	"slacklog/pkg/webhook"
)

const (
	DefaultRelayAddr     = "127.0.0.1:8088"
	DefaultSlackTimeout  = 5 * time.Second
	DefaultHistoryKeep   = 10000
	DefaultMaxBodyBytes  = 1 << 20
	DefaultHeartbeatText = "slackrelay heartbeat"
)

// Configuration builds the immutable formatter configuration. Emoji keys
// are level names ("error", "warning", ...).
func (s SlackConfig) Configuration() (*slacklog.Configuration, error) {
	opts := []slacklog.Option{
		slacklog.WithService(strings.TrimSpace(s.Service)),
		slacklog.WithEnvironment(strings.TrimSpace(s.Environment)),
		slacklog.WithExtraFields(s.ExtraFields),
	}
	if len(s.Context) > 0 {
		opts = append(opts, slacklog.WithContext(s.Context...))
	}
	for name, marker := range s.Emojis {
		l, err := slacklog.ParseLevel(name)
		if err != nil {
			return nil, fmt.Errorf("slack.emojis: %w", err)
		}
		opts = append(opts, slacklog.WithEmoji(l, marker))
	}
	return slacklog.NewConfiguration(opts...), nil
}

func (s SlackConfig) Formatter() (*slacklog.Formatter, error) {
	cfg, err := s.Configuration()
	if err != nil {
		return nil, err
	}
	f, err := slacklog.ByName(strings.TrimSpace(s.Design), cfg)
	if err != nil {
		return nil, fmt.Errorf("slack.design: %w", err)
	}
	return f, nil
}

func (s SlackConfig) BuildFilters() ([]slacklog.Filter, error) {
	out := make([]slacklog.Filter, 0, len(s.Filters))
	for i, spec := range s.Filters {
		t, err := slacklog.ParseFilterType(spec.Type)
		if err != nil {
			return nil, fmt.Errorf("slack.filters[%d].type: %w", i, err)
		}
		out = append(out, slacklog.NewFilter(slacklog.FilterConfig{
			Environment: strings.TrimSpace(spec.Environment),
			Service:     strings.TrimSpace(spec.Service),
			Fields:      spec.Fields,
		}, t))
	}
	return out, nil
}

// Level returns the pipeline threshold. Empty means every level passes.
func (s SlackConfig) Level() (slacklog.Level, error) {
	l, err := slacklog.ParseLevel(s.MinLevel)
	if err != nil {
		return 0, fmt.Errorf("slack.min_level: %w", err)
	}
	return l, nil
}

func (s SlackConfig) TimeoutOrDefault() (time.Duration, error) {
	return ParseDurationOrDefault("slack.timeout", s.Timeout, DefaultSlackTimeout)
}

// Pipeline assembles everything but the sender from the slack section.
func (s SlackConfig) Pipeline(sender slacklog.Sender) (*slacklog.Pipeline, error) {
	f, err := s.Formatter()
	if err != nil {
		return nil, err
	}
	filters, err := s.BuildFilters()
	if err != nil {
		return nil, err
	}
	lvl, err := s.Level()
	if err != nil {
		return nil, err
	}
	return &slacklog.Pipeline{
		Formatter: f,
		Filters:   filters,
		Sender:    sender,
		Target:    strings.TrimSpace(s.WebhookURL),
		MinLevel:  lvl,
	}, nil
}

func (r *RelayConfig) AddrOrDefault() string {
	if r == nil || strings.TrimSpace(r.Addr) == "" {
		return DefaultRelayAddr
	}
	return strings.TrimSpace(r.Addr)
}

func (r *RelayConfig) MaxBody() int64 {
	if r == nil || r.MaxBodyBytes <= 0 {
		return DefaultMaxBodyBytes
	}
	return r.MaxBodyBytes
}

func (h *HistoryConfig) KeepOrDefault() int {
	if h == nil || h.Keep <= 0 {
		return DefaultHistoryKeep
	}
	return h.Keep
}

// Validate reports every problem in cfg at once.
func Validate(_ context.Context, cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(cfg.Logging.Level) != "" {
		if _, err := slacklog.ParseLevel(cfg.Logging.Level); err != nil {
			add(fmt.Errorf("logging.level: %w", err))
		}
	}
	if strings.TrimSpace(cfg.Logging.Slack.MinLevel) != "" {
		if _, err := slacklog.ParseLevel(cfg.Logging.Slack.MinLevel); err != nil {
			add(fmt.Errorf("logging.slack.min_level: %w", err))
		}
	}

	s := cfg.Slack
	switch {
	case strings.TrimSpace(s.WebhookURL) != "":
		if _, err := webhook.ValidateTarget(s.WebhookURL); err != nil {
			add(fmt.Errorf("slack.webhook_url: %w", err))
		}
	case !s.DryRun:
		add(errors.New("slack.webhook_url is required unless slack.dry_run is set"))
	}
	_, err := s.Formatter()
	add(err)
	_, err = s.BuildFilters()
	add(err)
	_, err = s.Level()
	add(err)
	_, err = s.TimeoutOrDefault()
	add(err)

	if r := cfg.Relay; r != nil {
		_, err = ParseDurationField("relay.read_timeout", r.ReadTimeout)
		add(err)
		_, err = ParseDurationField("relay.write_timeout", r.WriteTimeout)
		add(err)
		if r.RatePerSec < 0 {
			add(errors.New("relay.rate_per_sec must be >= 0"))
		}
		if r.Burst < 0 {
			add(errors.New("relay.burst must be >= 0"))
		}
		if r.MaxBodyBytes < 0 {
			add(errors.New("relay.max_body_bytes must be >= 0"))
		}
	}

	if hb := cfg.Heartbeat; hb != nil && hb.Enabled {
		if _, err := cron.ParseStandard(hb.Schedule); err != nil {
			add(fmt.Errorf("heartbeat.schedule %q: %w", hb.Schedule, err))
		}
		if _, err := slacklog.ParseLevel(hb.Level); err != nil {
			add(fmt.Errorf("heartbeat.level: %w", err))
		}
		if tz := strings.TrimSpace(hb.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				add(fmt.Errorf("heartbeat.timezone: %w", err))
			}
		}
	}

	if h := cfg.History; h != nil {
		switch strings.ToLower(strings.TrimSpace(h.Driver)) {
		case "", "none", "file", "sqlite":
		default:
			add(fmt.Errorf("history.driver: unknown driver %q", h.Driver))
		}
		_, err = ParseDurationField("history.busy_timeout", h.BusyTimeout)
		add(err)
	}

	return errors.Join(errs...)
}

// ParseDurationOrDefault parses raw as a Go duration. Blank or zero yields
// def; negative values are rejected. path names the key in errors.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %w", path, err)
	case d < 0:
		return 0, fmt.Errorf("%s: negative duration %s", path, d)
	case d == 0:
		return def, nil
	}
	return d, nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	return ParseDurationOrDefault(path, raw, 0)
}
