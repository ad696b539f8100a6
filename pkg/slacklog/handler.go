package slacklog

import (
	"context"
	"log/slog"
	"strings"
)

// Attribute keys with a special meaning to Handler. Everything else becomes
// an extra field; grouped keys are joined with dots. AttrFilter and
// AttrExtraFields take either a group or a map[string]string value.
const (
	AttrFilter      = "filter"
	AttrExtraFields = "extra_fields"
	AttrService     = "service"
	AttrEnvironment = "environment"
	AttrLogger      = "logger"
	AttrTrace       = "trace"
	AttrError       = "error"
)

type HandlerOptions struct {
	// Level is the minimum slog level handled. Defaults to slog.LevelInfo.
	Level slog.Leveler
}

// Handler is a slog.Handler that runs every record through a Pipeline.
// Handle blocks for the duration of delivery and returns its error.
type Handler struct {
	pipeline *Pipeline
	level    slog.Leveler
	groups   []string
	base     collector
}

func NewHandler(p *Pipeline, opts *HandlerOptions) *Handler {
	var lvl slog.Leveler = slog.LevelInfo
	if opts != nil && opts.Level != nil {
		lvl = opts.Level
	}
	return &Handler{pipeline: p, level: lvl}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(ctx context.Context, sr slog.Record) error {
	c := h.base.clone()
	sr.Attrs(func(a slog.Attr) bool {
		c.add(h.groups, a)
		return true
	})
	r := Record{
		Level:       FromSlog(sr.Level),
		Message:     sr.Message,
		Trace:       c.trace,
		Time:        sr.Time,
		Logger:      c.logger,
		Service:     c.service,
		Environment: c.environment,
		ExtraFields: c.extra,
		Filter:      c.filter,
	}
	_, err := h.pipeline.Process(ctx, r)
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	h2 := *h
	h2.base = h.base.clone()
	for _, a := range attrs {
		h2.base.add(h.groups, a)
	}
	return &h2
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.groups = append(append([]string(nil), h.groups...), name)
	return &h2
}

type collector struct {
	extra       map[string]string
	filter      map[string]string
	service     string
	environment string
	logger      string
	trace       string
}

func (c collector) clone() collector {
	out := c
	out.extra = copyMap(c.extra)
	if c.filter != nil {
		out.filter = copyMap(c.filter)
	}
	return out
}

func (c *collector) add(groups []string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if len(groups) == 0 && c.special(a) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		next := groups
		if a.Key != "" {
			next = append(append([]string(nil), groups...), a.Key)
		}
		for _, sub := range a.Value.Group() {
			c.add(next, sub)
		}
		return
	}
	if c.extra == nil {
		c.extra = map[string]string{}
	}
	c.extra[joinKey(groups, a.Key)] = a.Value.String()
}

func (c *collector) special(a slog.Attr) bool {
	switch a.Key {
	case AttrFilter:
		return mergeFields(&c.filter, a.Value)
	case AttrExtraFields:
		return mergeFields(&c.extra, a.Value)
	case AttrService:
		c.service = a.Value.String()
	case AttrEnvironment:
		c.environment = a.Value.String()
	case AttrLogger:
		c.logger = a.Value.String()
	case AttrTrace:
		c.trace = a.Value.String()
	case AttrError, "err":
		if err, ok := a.Value.Any().(error); ok && err != nil {
			c.trace = err.Error()
			return true
		}
		return false
	default:
		return false
	}
	return true
}

// mergeFields copies a group or a map[string]string value into *dst. Any
// other value is left for the caller to treat as an ordinary attribute.
func mergeFields(dst *map[string]string, v slog.Value) bool {
	switch v.Kind() {
	case slog.KindGroup:
		if *dst == nil {
			*dst = map[string]string{}
		}
		flatten(nil, v.Group(), *dst)
		return true
	case slog.KindAny:
		m, ok := v.Any().(map[string]string)
		if !ok {
			return false
		}
		if *dst == nil {
			*dst = make(map[string]string, len(m))
		}
		for k, val := range m {
			(*dst)[k] = val
		}
		return true
	}
	return false
}

func flatten(groups []string, attrs []slog.Attr, dst map[string]string) {
	for _, a := range attrs {
		a.Value = a.Value.Resolve()
		if a.Value.Kind() == slog.KindGroup {
			flatten(append(append([]string(nil), groups...), a.Key), a.Value.Group(), dst)
			continue
		}
		dst[joinKey(groups, a.Key)] = a.Value.String()
	}
}

func joinKey(groups []string, key string) string {
	if len(groups) == 0 {
		return key
	}
	return strings.Join(groups, ".") + "." + key
}
