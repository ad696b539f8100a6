package app

import (
	"strings"
	"time"

	"slacklog/internal/config"
	"slacklog/internal/eventbus"
	"slacklog/internal/heartbeat"
	"slacklog/internal/history"
	"slacklog/pkg/logx"
	"slacklog/pkg/slacklog"
	"slacklog/pkg/webhook"
)

// Delivery sources, as they appear in events, metrics and history.
const (
	SourceLogs      = "logx"
	SourceRelay     = "relay"
	SourceHeartbeat = "heartbeat"
)

// pipelines is one immutable generation of the Slack pipeline. Each source
// gets its own copy so outcomes are attributed correctly.
type pipelines struct {
	logs      *slacklog.Pipeline
	relay     *slacklog.Pipeline
	heartbeat *slacklog.Pipeline
	sender    slacklog.Sender
}

func buildPipelines(sc config.SlackConfig, sender slacklog.Sender, bus eventbus.Bus) (*pipelines, error) {
	base, err := sc.Pipeline(sender)
	if err != nil {
		return nil, err
	}
	derive := func(source string) *slacklog.Pipeline {
		p := *base
		p.Observer = eventbus.Observer(bus, source)
		return &p
	}
	return &pipelines{
		logs:      derive(SourceLogs),
		relay:     derive(SourceRelay),
		heartbeat: derive(SourceHeartbeat),
		sender:    sender,
	}, nil
}

func newSender(sc config.SlackConfig, log logx.Logger) (slacklog.Sender, error) {
	if sc.DryRun {
		return webhook.NewDummy(log.With(logx.String("comp", "webhook.dry_run"))), nil
	}
	timeout, err := sc.TimeoutOrDefault()
	if err != nil {
		return nil, err
	}
	return webhook.New(webhook.Config{Timeout: timeout}), nil
}

func logConfig(cfg *config.Config) logx.Config {
	timeout, _ := cfg.Slack.TimeoutOrDefault()
	minLevel := cfg.Logging.Slack.MinLevel
	if strings.TrimSpace(minLevel) == "" {
		minLevel = "error"
	}
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Slack: logx.SlackConfig{
			Enabled:   cfg.Logging.Slack.Enabled,
			MinLevel:  minLevel,
			QueueSize: cfg.Logging.Slack.QueueSize,
			Timeout:   timeout,
		},
	}
}

func heartbeatConfig(hc *config.HeartbeatConfig) (heartbeat.Config, error) {
	if hc == nil {
		return heartbeat.Config{}, nil
	}
	lvl, err := slacklog.ParseLevel(hc.Level)
	if err != nil {
		return heartbeat.Config{}, err
	}
	return heartbeat.Config{
		Enabled:  hc.Enabled,
		Schedule: hc.Schedule,
		Message:  hc.Message,
		Level:    lvl,
		Timezone: hc.Timezone,
	}, nil
}

// historyConfig reports whether history is enabled at all.
func historyConfig(hc *config.HistoryConfig) (history.Config, bool, error) {
	if hc == nil {
		return history.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(hc.Driver))
	if driver == "" || driver == "none" {
		return history.Config{}, false, nil
	}
	busy, err := config.ParseDurationOrDefault("history.busy_timeout", hc.BusyTimeout, 5*time.Second)
	if err != nil {
		return history.Config{}, false, err
	}
	return history.Config{
		Driver:      driver,
		Path:        hc.Path,
		BusyTimeout: busy,
		Keep:        hc.KeepOrDefault(),
	}, true, nil
}
