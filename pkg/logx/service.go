package logx

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"slacklog/pkg/slacklog"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
	Slack   SlackConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

// SlackConfig controls the Slack sink. The pipeline itself is installed
// with Service.SetPipeline; the sink stays idle until one is set.
type SlackConfig struct {
	Enabled   bool
	MinLevel  string
	QueueSize int
	// Timeout bounds one delivery. Zero means 10s.
	Timeout time.Duration
}

// Service owns the process-wide zerolog root and its sinks. Apply swaps
// outputs at runtime; Loggers obtained from the Service follow along.
type Service struct {
	mu  sync.Mutex
	cfg Config

	root atomic.Value // zerolog.Logger

	file *os.File

	pipeline atomic.Pointer[slacklog.Pipeline]
	slQueue  chan slacklog.Record
	slOnce   sync.Once
	slCancel context.CancelFunc
	slWG     sync.WaitGroup
	dropped  atomic.Uint64

	// guarded by mu
	minLevel zerolog.Level
	timeout  time.Duration
}

// New creates the logging service, applies cfg and returns the Service and
// a root Logger.
func New(cfg Config) (*Service, Logger) {
	zerolog.ErrorFieldName = "err"
	zerolog.TimeFieldFormat = consoleTimeFormat

	qs := cfg.Slack.QueueSize
	if qs <= 0 {
		qs = 256
	}
	s := &Service{
		cfg:     cfg,
		slQueue: make(chan slacklog.Record, qs),
	}
	s.root.Store(newConsoleRoot(ParseLevel(cfg.Level, zerolog.InfoLevel)))
	s.Apply(cfg)
	return s, Logger{svc: s}
}

func (s *Service) current() zerolog.Logger {
	v := s.root.Load()
	if v == nil {
		return zerolog.Nop()
	}
	zl, ok := v.(zerolog.Logger)
	if !ok {
		return zerolog.Nop()
	}
	return zl
}

func (s *Service) Logger() Logger { return Logger{svc: s} }

// SetPipeline installs the pipeline used by the Slack sink. Passing nil
// parks the sink.
func (s *Service) SetPipeline(p *slacklog.Pipeline) { s.pipeline.Store(p) }

// Dropped reports how many events the Slack sink discarded on a full queue.
func (s *Service) Dropped() uint64 { return s.dropped.Load() }

// Close stops the Slack worker after draining queued events, then closes
// the log file.
func (s *Service) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	cancel := s.slCancel
	s.slCancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		s.slWG.Wait()
	}
	if f != nil {
		_ = f.Close()
	}
	return nil
}

// Apply swaps logger outputs and levels. Safe to call concurrently.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cfg = cfg
	s.minLevel = ParseLevel(cfg.Slack.MinLevel, zerolog.WarnLevel)
	s.timeout = cfg.Slack.Timeout
	if s.timeout <= 0 {
		s.timeout = 10 * time.Second
	}

	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}

	lvl := ParseLevel(cfg.Level, zerolog.InfoLevel)

	writers := make([]io.Writer, 0, 3)
	if cfg.Console {
		writers = append(writers, newConsoleWriter(Stdout()))
	}
	if cfg.File.Enabled {
		path := strings.TrimSpace(cfg.File.Path)
		if path == "" {
			path = "./slackrelay.log"
		}
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(Stderr(), "logx: failed opening log file %q: %v\n", path, err)
		} else {
			s.file = f
			writers = append(writers, zerolog.SyncWriter(f))
		}
	}
	if cfg.Slack.Enabled {
		s.slOnce.Do(func() {
			ctx, cancel := context.WithCancel(context.Background())
			s.slCancel = cancel
			s.slWG.Add(1)
			go func() {
				defer s.slWG.Done()
				s.slackWorker(ctx)
			}()
		})
		writers = append(writers, &slackWriter{svc: s})
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(Stdout()))
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).Level(lvl).With().Timestamp().Logger()
	s.root.Store(zl)
}

func newConsoleRoot(lvl zerolog.Level) zerolog.Logger {
	return zerolog.New(newConsoleWriter(Stdout())).Level(lvl).With().Timestamp().Logger()
}

func newConsoleWriter(w io.Writer) io.Writer {
	cw := zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
	cw.FormatCaller = func(i interface{}) string {
		s, _ := i.(string)
		return s
	}
	cw.FieldsExclude = []string{SkipSlackKey}
	return cw
}

func Stdout() io.Writer { return os.Stdout }

func Stderr() io.Writer { return os.Stderr }
