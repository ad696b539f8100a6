package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slacklog/pkg/slacklog"
)

const sampleYAML = `
logging: { level: info, console: true }
slack:
  webhook_url: https://hooks.slack.com/services/T/B/X
  design: minimal
  min_level: warning
  timeout: 2s
  service: billing
  environment: prod
  emojis: { error: ":x:" }
  extra_fields: { region: eu-1 }
  filters:
    - { type: any_deny_list, environment: dev }
    - type: AnyWhitelist
      fields: { team: payments }
relay: { enabled: true, addr: "127.0.0.1:9000" }
heartbeat: { enabled: true, schedule: "@every 1h" }
history: { driver: sqlite, path: ./history.db }
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("relay.yaml", []byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "minimal", cfg.Slack.Design)
	assert.Equal(t, ":x:", cfg.Slack.Emojis["error"])
	require.Len(t, cfg.Slack.Filters, 2)
	assert.Equal(t, "payments", cfg.Slack.Filters[1].Fields["team"])
	assert.Equal(t, "127.0.0.1:9000", cfg.Relay.AddrOrDefault())
	require.NoError(t, Validate(context.Background(), cfg))
}

func TestDecodeYAMLKeepsScalarTypes(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("c.yml", []byte(`
slack:
  dry_run: true
  service: "2024"
  extra_fields: { build: "0042" }
relay: { enabled: true, max_body_bytes: 2048, rate_per_sec: 2.5 }
`))
	require.NoError(t, err)
	assert.True(t, cfg.Slack.DryRun)
	assert.Equal(t, "2024", cfg.Slack.Service)
	assert.Equal(t, "0042", cfg.Slack.ExtraFields["build"])
	assert.Equal(t, int64(2048), cfg.Relay.MaxBody())
	assert.Equal(t, 2.5, cfg.Relay.RatePerSec)

	empty, err := Decode("empty.yaml", nil)
	require.NoError(t, err)
	assert.Nil(t, empty.Relay)

	_, err = Decode("c.yaml", []byte("slack: { service: 2024 }\n"))
	require.Error(t, err, "unquoted numbers do not fill string fields")
}

func TestDecodeRejectsUnknownKeysAndTrailingData(t *testing.T) {
	t.Parallel()
	_, err := Decode("c.yaml", []byte("slack: { dry_run: true, enviroment: prod }\n"))
	require.Error(t, err)

	for _, body := range []string{
		`{"slack":{"dry_run":true}}{"x":1}`,
		`{"slack":{"dry_run":true}} 42`,
		`{"slack":{"dry_run":true}} }`,
	} {
		_, err = Decode("c.json", []byte(body))
		require.Error(t, err, body)
		assert.Contains(t, err.Error(), "trailing data", body)
		assert.NotContains(t, err.Error(), "unknown field", body)
	}

	cfg, err := Decode("c.yml", nil)
	require.NoError(t, err)
	assert.Nil(t, cfg.Relay)
}

func TestSlackPipelineFromConfig(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("relay.yaml", []byte(sampleYAML))
	require.NoError(t, err)

	p, err := cfg.Slack.Pipeline(nil)
	require.NoError(t, err)
	assert.Equal(t, slacklog.LevelWarn, p.MinLevel)
	assert.Equal(t, "https://hooks.slack.com/services/T/B/X", p.Target)
	require.Len(t, p.Filters, 2)
	assert.Equal(t, slacklog.AnyDenyList, p.Filters[0].Type)
	assert.Equal(t, slacklog.AnyAllowList, p.Filters[1].Type)

	conf := p.Formatter.Config()
	assert.Equal(t, "billing", conf.Service())
	assert.Equal(t, ":x:", slacklog.ResolveEmoji(conf, slacklog.LevelError))
	assert.Equal(t, "eu-1", conf.ExtraFields()["region"])

	d, err := cfg.Slack.TimeoutOrDefault()
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, d)
}

func TestValidateCollectsErrors(t *testing.T) {
	t.Parallel()
	cfg := &Config{
		Logging: LoggingConfig{Level: "loud"},
		Slack: SlackConfig{
			Design:   "fancy",
			MinLevel: "sometimes",
			Timeout:  "-1s",
			Emojis:   map[string]string{"shouting": "!"},
			Filters:  []FilterSpec{{Type: "maybe_list"}},
		},
		Heartbeat: &HeartbeatConfig{Enabled: true, Schedule: "every tuesday"},
		History:   &HistoryConfig{Driver: "postgres"},
	}
	err := Validate(context.Background(), cfg)
	require.Error(t, err)
	for _, want := range []string{
		"logging.level", "webhook_url is required", "slack.emojis", "slack.filters[0].type",
		"slack.min_level", "slack.timeout", "heartbeat.schedule", "history.driver",
	} {
		assert.Contains(t, err.Error(), want)
	}
	assert.ErrorIs(t, err, slacklog.ErrConfiguration)
}

func TestValidateRejectsBadWebhook(t *testing.T) {
	t.Parallel()
	err := Validate(context.Background(), &Config{Slack: SlackConfig{WebhookURL: "hooks.slack.com/x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack.webhook_url")

	require.NoError(t, Validate(context.Background(), &Config{Slack: SlackConfig{DryRun: true}}))
}

func TestSummarizeConfigChangeHidesWebhook(t *testing.T) {
	t.Parallel()
	oldCfg := &Config{Slack: SlackConfig{WebhookURL: "https://hooks.slack.com/services/old"}}
	newCfg := &Config{
		Slack: SlackConfig{WebhookURL: "https://hooks.slack.com/services/new"},
		Relay: &RelayConfig{Enabled: true},
	}
	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	assert.Equal(t, []string{"relay", "slack"}, changed)
	assert.NotEmpty(t, attrs)

	changed, _ = SummarizeConfigChange(newCfg, newCfg)
	assert.Empty(t, changed)
}

func TestManagerReloadPublishesOnlyChanges(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "relay.yaml", "slack: { dry_run: true, min_level: info }\n")
	m := NewManager(path)
	assert.Equal(t, path, m.Path())
	m.SetValidator(Validate)
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)
	ctx := context.Background()

	assert.False(t, m.reload(ctx), "unchanged content must not publish")

	require.NoError(t, os.WriteFile(path, []byte("slack: { dry_run: true, min_level: error }\n"), 0o600))
	require.True(t, m.reload(ctx))
	got := <-ch
	assert.Equal(t, "error", got.Slack.MinLevel)
	assert.Same(t, got, m.Get())

	require.NoError(t, os.WriteFile(path, []byte("slack: { min_level: error }\n"), 0o600))
	assert.False(t, m.reload(ctx), "invalid config must be rejected")
	assert.Equal(t, "error", m.Get().Slack.MinLevel)
}

func TestManagerWatchPicksUpWrites(t *testing.T) {
	path := writeFile(t, "relay.json", `{"slack":{"dry_run":true}}`)
	m := NewManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(4 * reloadDebounce)
	defer tick.Stop()
	n := 0
	for {
		select {
		case got := <-ch:
			assert.True(t, strings.HasPrefix(got.Slack.Service, "svc-"))
			return
		case <-tick.C:
			n++
			body := `{"slack":{"dry_run":true,"service":"svc-` + time.Now().Format("150405.000") + `"}}`
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
		case <-deadline:
			t.Fatalf("no reload published after %d writes", n)
		}
	}
}
