// Package heartbeat pushes a scheduled "still alive" record through the
// Slack pipeline so a silent channel can be told apart from a dead relay.
package heartbeat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"slacklog/internal/eventbus"
	"slacklog/pkg/logx"
	"slacklog/pkg/slacklog"
)

type Config struct {
	Enabled  bool
	Schedule string // cron spec or descriptor ("@every 1h")
	Message  string
	Level    slacklog.Level
	Timezone string // IANA name; empty means local
}

// PipelineFunc returns the pipeline in effect right now; it may be nil.
type PipelineFunc func() *slacklog.Pipeline

type Service struct {
	log      logx.Logger
	pipeline PipelineFunc
	bus      eventbus.Bus
	started  time.Time

	parser cron.Parser

	cfg atomic.Pointer[Config]

	// mu guards c. Jobs never take it, so Stop can wait for them.
	mu sync.Mutex
	c  *cron.Cron
}

func New(pipeline PipelineFunc, bus eventbus.Bus, log logx.Logger) *Service {
	return &Service{
		log:      log.With(logx.String("comp", "heartbeat")),
		pipeline: pipeline,
		bus:      bus,
		started:  time.Now(),
		parser:   cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

// Start schedules heartbeats per cfg. Calling it again replaces the
// schedule; a disabled cfg stops it.
func (s *Service) Start(ctx context.Context, cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()
	s.cfg.Store(&cfg)
	if !cfg.Enabled {
		return nil
	}

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("heartbeat timezone: %w", err)
		}
		loc = l
	}
	sched, err := s.parser.Parse(strings.TrimSpace(cfg.Schedule))
	if err != nil {
		return fmt.Errorf("heartbeat schedule %q: %w", cfg.Schedule, err)
	}

	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	s.c.Schedule(sched, cron.FuncJob(func() { _ = s.Fire(ctx) }))
	s.c.Start()
	s.log.Info("heartbeat scheduled", logx.String("schedule", cfg.Schedule), logx.String("tz", loc.String()))
	return nil
}

func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Service) stopLocked() {
	if s.c == nil {
		return
	}
	<-s.c.Stop().Done()
	s.c = nil
}

// Record builds the heartbeat record for the current config.
func (s *Service) Record(now time.Time) slacklog.Record {
	var cfg Config
	if c := s.cfg.Load(); c != nil {
		cfg = *c
	}

	msg := strings.TrimSpace(cfg.Message)
	if msg == "" {
		msg = "slackrelay heartbeat"
	}
	lvl := cfg.Level
	if lvl == slacklog.LevelNotSet {
		lvl = slacklog.LevelInfo
	}
	return slacklog.Record{
		Level:   lvl,
		Message: msg,
		Time:    now,
		Logger:  "heartbeat",
		ExtraFields: map[string]string{
			"uptime": now.Sub(s.started).Truncate(time.Second).String(),
		},
	}
}

// Fire sends one heartbeat now.
func (s *Service) Fire(ctx context.Context) error {
	p := s.pipeline()
	if p == nil {
		return errors.New("heartbeat: no pipeline")
	}
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeHeartbeat})
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	o, err := p.Process(ctx, s.Record(time.Now()))
	if err != nil {
		s.log.Warn("heartbeat delivery failed", logx.Err(err), logx.NoSlack())
		return err
	}
	if o == slacklog.OutcomeSkipped {
		s.log.Debug("heartbeat below slack.min_level", logx.String("outcome", o.String()))
	}
	return nil
}
