package app

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"slacklog/internal/config"
	"slacklog/internal/eventbus"
	"slacklog/internal/heartbeat"
	"slacklog/internal/history"
	"slacklog/internal/metrics"
	"slacklog/internal/relay"
	"slacklog/internal/runtime/supervisor"
	"slacklog/pkg/logx"
	"slacklog/pkg/slacklog"
)

type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSignal     StopReason = "signal"
	StopFatalError StopReason = "fatal_error"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log     logx.Logger
	logs    *logx.Service
	bus     eventbus.Bus
	store   history.Store
	metrics *metrics.Metrics

	// senderOverride replaces the webhook client (tests).
	senderOverride slacklog.Sender
	pipes          atomic.Pointer[pipelines]

	hb *heartbeat.Service

	relay        *relay.Server
	relayAddr    string
	readTimeout  time.Duration
	writeTimeout time.Duration
}

type Option func(*App)

// WithSender makes every pipeline generation deliver through s.
func WithSender(s slacklog.Sender) Option { return func(a *App) { a.senderOverride = s } }

// New loads and validates the config file and wires every component. Nothing
// runs until Start.
func New(cfgPath string, opts ...Option) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", cfgPath, err)
	}

	a := &App{cfgm: cfgm}
	for _, o := range opts {
		o(a)
	}

	logSvc, log := logx.New(logConfig(cfg))
	a.logs = logSvc
	a.log = log.With(logx.String("comp", "app"))

	a.bus = eventbus.New()
	a.metrics = metrics.New(a.bus.Dropped)

	pipes, err := a.newPipelines(cfg.Slack)
	if err != nil {
		logSvc.Close()
		return nil, err
	}
	a.pipes.Store(pipes)
	logSvc.SetPipeline(pipes.logs)

	if hc, enabled, err := historyConfig(cfg.History); err != nil {
		logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := history.Open(hc, log.With(logx.String("comp", "history")))
		if err != nil {
			logSvc.Close()
			return nil, err
		}
		a.store = st
		a.log.Info("history enabled", logx.String("driver", hc.Driver))
	}

	a.hb = heartbeat.New(func() *slacklog.Pipeline {
		if p := a.pipes.Load(); p != nil {
			return p.heartbeat
		}
		return nil
	}, a.bus, log)

	if rc := cfg.Relay; rc != nil && rc.Enabled {
		a.relayAddr = rc.AddrOrDefault()
		a.readTimeout, _ = config.ParseDurationField("relay.read_timeout", rc.ReadTimeout)
		a.writeTimeout, _ = config.ParseDurationField("relay.write_timeout", rc.WriteTimeout)
		a.relay = relay.New(relay.Options{
			Pipeline: func() *slacklog.Pipeline {
				if p := a.pipes.Load(); p != nil {
					return p.relay
				}
				return nil
			},
			History:      a.store,
			Metrics:      a.metrics,
			Log:          log,
			MaxBodyBytes: rc.MaxBody(),
			RatePerSec:   rc.RatePerSec,
			Burst:        rc.Burst,
			Pprof:        rc.Pprof,
		})
	}
	return a, nil
}

func (a *App) newPipelines(sc config.SlackConfig) (*pipelines, error) {
	sender := a.senderOverride
	if sender == nil {
		s, err := newSender(sc, a.log)
		if err != nil {
			return nil, err
		}
		sender = s
	}
	return buildPipelines(sc, sender, a.bus)
}

// Logger returns the process logger. Error lines reach Slack when
// logging.slack is enabled.
func (a *App) Logger() logx.Logger { return a.log }

// Done is closed when the supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(config.Validate)

	// subscribe before anything can publish
	metricEvents, unsubMetrics := a.bus.Subscribe(512)
	a.sup.Go0("metrics", func(c context.Context) {
		defer unsubMetrics()
		a.metrics.Run(c, metricEvents)
	})
	if a.store != nil {
		historyEvents, unsubHistory := a.bus.Subscribe(256)
		a.sup.Go0("history.record", func(c context.Context) {
			defer unsubHistory()
			history.Record(c, historyEvents, a.store, a.log.With(logx.String("comp", "history")))
		})
	}

	hbCfg, err := heartbeatConfig(a.cfgm.Get().Heartbeat)
	if err != nil {
		return err
	}
	if err := a.hb.Start(a.sup.Context(), hbCfg); err != nil {
		return err
	}

	if a.relay != nil {
		a.sup.Go("relay", func(c context.Context) error {
			return a.relay.Serve(c, a.relayAddr, a.readTimeout, a.writeTimeout)
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// coalesce bursts
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.apply(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch, supervisor.WithMaxRestarts(5))

	a.log.Info("app started",
		logx.String("config", a.cfgm.Path()),
		logx.Bool("relay", a.relay != nil),
		logx.Bool("history", a.store != nil),
		logx.Bool("heartbeat", hbCfg.Enabled),
	)
	return nil
}

// apply moves the running components from oldCfg to newCfg. A section that
// fails to build keeps its previous state.
func (a *App) apply(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	if slices.Contains(sections, "history") {
		a.log.Warn("history config changed; restart required for changes to take effect")
	}
	if slices.Contains(sections, "relay") {
		a.log.Warn("relay config changed; restart required for changes to take effect")
	}

	if slices.Contains(sections, "logging") || slices.Contains(sections, "slack") {
		a.logs.Apply(logConfig(newCfg))
	}

	if slices.Contains(sections, "slack") {
		next, err := a.newPipelines(newCfg.Slack)
		if err != nil {
			a.log.Warn("invalid slack config; keeping previous pipeline", logx.Err(err), logx.NoSlack())
		} else {
			prev := a.pipes.Swap(next)
			a.logs.SetPipeline(next.logs)
			if prev != nil && prev.sender != next.sender {
				if c, ok := prev.sender.(io.Closer); ok {
					_ = c.Close()
				}
			}
		}
	}

	if slices.Contains(sections, "heartbeat") {
		hbCfg, err := heartbeatConfig(newCfg.Heartbeat)
		if err == nil {
			err = a.hb.Start(ctx, hbCfg)
		}
		if err != nil {
			a.log.Warn("invalid heartbeat config; heartbeat stopped", logx.Err(err))
		}
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.TypeConfigReloaded, Time: time.Now(), Data: sections})
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	// step bounds one shutdown action so a stuck component cannot stall
	// the rest. It never extends the caller's deadline.
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		if dl, ok := ctx.Deadline(); ok {
			max = min(max, time.Until(dl))
		}
		if max <= 0 {
			a.log.Warn("stop step skipped; deadline reached", logx.String("name", name))
			return
		}
		stepCtx, cancel := context.WithTimeout(ctx, max)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("heartbeat", 2*time.Second, func(context.Context) error { a.hb.Stop(); return nil })
	// relay shutdown, history recorder and config loops all exit with the
	// supervisor context
	step("supervisor", 6*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("history", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	a.log.Info("stopped", logx.Int64("log_events_dropped", int64(a.logs.Dropped())))
	a.logs.Close()
	if p := a.pipes.Load(); p != nil {
		if c, ok := p.sender.(io.Closer); ok {
			_ = c.Close()
		}
	}
	return nil
}
