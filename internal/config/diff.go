package config

import (
	"reflect"
	"sort"
	"strings"

	"slacklog/pkg/logx"
)

// SummarizeConfigChange returns the changed top-level sections and safe
// structured attrs for logging. The webhook URL is never included; only
// whether it changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.slack_enabled", newCfg.Logging.Slack.Enabled),
		)
	}

	o, n := oldCfg.Slack, newCfg.Slack
	urlChanged := strings.TrimSpace(o.WebhookURL) != strings.TrimSpace(n.WebhookURL)
	o.WebhookURL, n.WebhookURL = "", ""
	if urlChanged || !reflect.DeepEqual(o, n) {
		changed = append(changed, "slack")
		attrs = append(attrs,
			logx.Bool("slack.webhook_changed", urlChanged),
			logx.String("slack.design", n.Design),
			logx.String("slack.min_level", n.MinLevel),
			logx.Bool("slack.dry_run", n.DryRun),
			logx.String("slack.service", n.Service),
			logx.String("slack.environment", n.Environment),
			logx.Int("slack.filters", len(n.Filters)),
		)
	}

	if !reflect.DeepEqual(derefRelay(oldCfg.Relay), derefRelay(newCfg.Relay)) {
		r := derefRelay(newCfg.Relay)
		changed = append(changed, "relay")
		attrs = append(attrs,
			logx.Bool("relay.enabled", r.Enabled),
			logx.String("relay.addr", newCfg.Relay.AddrOrDefault()),
		)
	}

	if !reflect.DeepEqual(derefHeartbeat(oldCfg.Heartbeat), derefHeartbeat(newCfg.Heartbeat)) {
		hb := derefHeartbeat(newCfg.Heartbeat)
		changed = append(changed, "heartbeat")
		attrs = append(attrs,
			logx.Bool("heartbeat.enabled", hb.Enabled),
			logx.String("heartbeat.schedule", hb.Schedule),
		)
	}

	if !reflect.DeepEqual(derefHistory(oldCfg.History), derefHistory(newCfg.History)) {
		h := derefHistory(newCfg.History)
		changed = append(changed, "history")
		attrs = append(attrs,
			logx.String("history.driver", strings.TrimSpace(h.Driver)),
			logx.Bool("history.path_set", strings.TrimSpace(h.Path) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

func derefRelay(r *RelayConfig) RelayConfig {
	if r == nil {
		return RelayConfig{}
	}
	return *r
}

func derefHeartbeat(h *HeartbeatConfig) HeartbeatConfig {
	if h == nil {
		return HeartbeatConfig{}
	}
	return *h
}

func derefHistory(h *HistoryConfig) HistoryConfig {
	if h == nil {
		return HistoryConfig{}
	}
	return *h
}
