package logx

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"slacklog/pkg/slacklog"
)

type memSender struct {
	mu       sync.Mutex
	payloads []slacklog.Payload
}

func (m *memSender) Send(_ context.Context, p slacklog.Payload, _ string) error {
	m.mu.Lock()
	m.payloads = append(m.payloads, p)
	m.mu.Unlock()
	return nil
}

func (m *memSender) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.payloads)
}

func TestDecodeEvent(t *testing.T) {
	t.Parallel()
	line := []byte(`{"level":"error","time":"2026-01-02T03:04:05.000Z","caller":"x.go:1",` +
		`"comp":"billing","message":"charge failed","err":"card declined","stack":"main.go:10",` +
		`"service":"api","environment":"prod","attempt":3,"ok":false,` +
		`"filter":{"environment":"prod"},"extra_fields":{"cow":"moo"}}`)

	rec, ok, err := DecodeEvent(line)
	if err != nil || !ok {
		t.Fatalf("DecodeEvent ok=%v err=%v", ok, err)
	}
	if rec.Level != slacklog.LevelError {
		t.Fatalf("Level = %v, want ERROR", rec.Level)
	}
	if rec.Message != "charge failed" || rec.Logger != "billing" {
		t.Fatalf("unexpected message/logger: %q %q", rec.Message, rec.Logger)
	}
	if rec.Trace != "card declined\nmain.go:10" {
		t.Fatalf("Trace = %q", rec.Trace)
	}
	if rec.Service != "api" || rec.Environment != "prod" {
		t.Fatalf("unexpected overrides: %q %q", rec.Service, rec.Environment)
	}
	if got := rec.Filter["environment"]; got != "prod" {
		t.Fatalf("Filter[environment] = %q", got)
	}
	want := map[string]string{"attempt": "3", "ok": "false", "cow": "moo"}
	if len(rec.ExtraFields) != len(want) {
		t.Fatalf("ExtraFields = %v, want %v", rec.ExtraFields, want)
	}
	for k, v := range want {
		if rec.ExtraFields[k] != v {
			t.Fatalf("ExtraFields[%s] = %q, want %q", k, rec.ExtraFields[k], v)
		}
	}
	if rec.Time.Year() != 2026 {
		t.Fatalf("Time = %v", rec.Time)
	}
}

func TestDecodeEventSkipsMarked(t *testing.T) {
	t.Parallel()
	_, ok, err := DecodeEvent([]byte(`{"level":"warn","message":"x","slack_skip":true}`))
	if err != nil || ok {
		t.Fatalf("expected skip, ok=%v err=%v", ok, err)
	}
	if _, _, err := DecodeEvent([]byte(`not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if _, _, err := DecodeEvent([]byte(`[1,2]`)); err == nil {
		t.Fatal("expected error for non-object event")
	}
}

func TestSlackSinkDeliversAboveMinLevel(t *testing.T) {
	sender := &memSender{}
	svc, log := New(Config{
		Level: "debug",
		Slack: SlackConfig{Enabled: true, MinLevel: "warn", Timeout: time.Second},
	})
	svc.SetPipeline(&slacklog.Pipeline{Formatter: slacklog.Plain(), Sender: sender})

	log.Info("below threshold")
	log.Warn("disk almost full", String("mount", "/var"))
	log.Error("delivery failed", Err(errors.New("boom")), NoSlack())
	log.With(String("comp", "worker")).Error("job crashed", Err(errors.New("panic")))

	_ = svc.Close()

	if got := sender.len(); got != 2 {
		t.Fatalf("delivered = %d, want 2", got)
	}
	first := sender.payloads[0].Blocks[0].(*slacklog.SectionBlock)
	if first.Text != "disk almost full" {
		t.Fatalf("first payload text = %q", first.Text)
	}
	second := sender.payloads[1].Blocks[0].(*slacklog.SectionBlock)
	if second.Text != "job crashed\npanic" {
		t.Fatalf("second payload text = %q", second.Text)
	}
}

func TestSlackSinkIdleWithoutPipeline(t *testing.T) {
	svc, log := New(Config{Slack: SlackConfig{Enabled: true}})
	log.Error("nobody listens")
	_ = svc.Close()
	if svc.Dropped() != 0 {
		t.Fatalf("Dropped = %d, want 0", svc.Dropped())
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	if ParseLevel("warning", LevelInfo) != LevelWarn {
		t.Fatal("warning should map to warn")
	}
	if ParseLevel("nonsense", LevelError) != LevelError {
		t.Fatal("unknown level should return default")
	}
}
