package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"slacklog/internal/eventbus"
	"slacklog/pkg/slacklog"
)

// Metrics owns a private registry so tests and multiple instances do not
// collide on the default one.
type Metrics struct {
	reg *prometheus.Registry

	Records      *prometheus.CounterVec
	HTTPRequests *prometheus.CounterVec
	Heartbeats   prometheus.Counter
	Reloads      prometheus.Counter
}

// New registers the collectors. dropped, when non-nil, is exported as the
// number of bus events lost to slow subscribers.
func New(dropped func() uint64) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		reg: reg,
		Records: f.NewCounterVec(prometheus.CounterOpts{
			Name: "slackrelay_records_total",
			Help: "Records processed by the Slack pipeline, by outcome",
		}, []string{"source", "level", "outcome"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "slackrelay_http_requests_total",
			Help: "Relay HTTP requests, by status and method",
		}, []string{"status", "method"}),
		Heartbeats: f.NewCounter(prometheus.CounterOpts{
			Name: "slackrelay_heartbeats_total",
			Help: "Heartbeat records fired",
		}),
		Reloads: f.NewCounter(prometheus.CounterOpts{
			Name: "slackrelay_config_reloads_total",
			Help: "Config reloads applied",
		}),
	}
	if dropped != nil {
		f.NewCounterFunc(prometheus.CounterOpts{
			Name: "slackrelay_bus_events_dropped_total",
			Help: "Internal events dropped because a subscriber was slow",
		}, func() float64 { return float64(dropped()) })
	}
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Observe updates counters from one bus event.
func (m *Metrics) Observe(ev eventbus.Event) {
	switch ev.Type {
	case eventbus.TypeDelivery:
		if d, ok := ev.Data.(eventbus.Delivery); ok {
			m.Records.WithLabelValues(d.Source, levelLabel(d.Level), d.Outcome).Inc()
		}
	case eventbus.TypeHeartbeat:
		m.Heartbeats.Inc()
	case eventbus.TypeConfigReloaded:
		m.Reloads.Inc()
	}
}

// levelLabel keeps the level label to the named levels. The relay accepts
// any non-negative severity, so gap values share one series.
func levelLabel(name string) string {
	if name == "" {
		return "other"
	}
	l, err := slacklog.ParseLevel(name)
	if err != nil {
		return "other"
	}
	return l.String()
}

// Run feeds events into the counters until ctx is done or events closes.
func (m *Metrics) Run(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.Observe(ev)
		}
	}
}
