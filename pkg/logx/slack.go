package logx

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/valyala/fastjson"

	"slacklog/pkg/slacklog"
)

var eventParsers fastjson.ParserPool

// slackWriter is the zerolog sink. It decodes the event synchronously
// (zerolog reuses the buffer) and hands the record to the worker.
type slackWriter struct{ svc *Service }

func (w *slackWriter) Write(p []byte) (int, error) {
	return w.WriteLevel(zerolog.NoLevel, p)
}

func (w *slackWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s := w.svc
	if s == nil || s.pipeline.Load() == nil {
		return len(p), nil
	}

	s.mu.Lock()
	min := s.minLevel
	s.mu.Unlock()
	if level != zerolog.NoLevel && level < min {
		return len(p), nil
	}

	rec, ok, err := DecodeEvent(p)
	if err != nil {
		fmt.Fprintf(Stderr(), "logx: slack sink: undecodable event: %v\n", err)
		return len(p), nil
	}
	if !ok {
		return len(p), nil
	}
	if level != zerolog.NoLevel {
		rec.Level = slacklog.FromZerolog(level)
	}

	select {
	case s.slQueue <- rec:
	default:
		n := s.dropped.Add(1)
		fmt.Fprintf(Stderr(), "logx: slack sink queue full, dropped %q (total dropped %d)\n", rec.Message, n)
	}
	return len(p), nil
}

func (s *Service) slackWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case rec := <-s.slQueue:
					s.deliver(rec)
				default:
					return
				}
			}
		case rec := <-s.slQueue:
			s.deliver(rec)
		}
	}
}

func (s *Service) deliver(rec slacklog.Record) {
	p := s.pipeline.Load()
	if p == nil {
		return
	}
	s.mu.Lock()
	timeout := s.timeout
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if _, err := p.Process(ctx, rec); err != nil {
		fmt.Fprintf(Stderr(), "logx: slack delivery failed for %q: %v\n", rec.Message, err)
	}
}

// DecodeEvent turns one zerolog JSON line into a record. ok is false for
// events marked with SkipSlackKey.
//
// Recognized keys: level, message, time, comp/logger, err, stack, service,
// environment, filter{...}, extra_fields{...}. caller is dropped; any other
// key becomes an extra field.
func DecodeEvent(b []byte) (rec slacklog.Record, ok bool, err error) {
	p := eventParsers.Get()
	defer eventParsers.Put(p)

	v, err := p.ParseBytes(b)
	if err != nil {
		return rec, false, err
	}
	obj, err := v.Object()
	if err != nil {
		return rec, false, err
	}
	if v.GetBool(SkipSlackKey) {
		return rec, false, nil
	}

	rec.Time = time.Now()
	var stack string
	obj.Visit(func(key []byte, val *fastjson.Value) {
		k := string(key)
		switch k {
		case zerolog.LevelFieldName:
			if l, perr := zerolog.ParseLevel(scalar(val)); perr == nil {
				rec.Level = slacklog.FromZerolog(l)
			}
		case zerolog.MessageFieldName:
			rec.Message = scalar(val)
		case zerolog.TimestampFieldName:
			if ts, terr := time.Parse(zerolog.TimeFieldFormat, scalar(val)); terr == nil {
				rec.Time = ts
			}
		case zerolog.CallerFieldName, SkipSlackKey:
		case "comp", slacklog.AttrLogger:
			rec.Logger = scalar(val)
		case zerolog.ErrorFieldName:
			rec.Trace = scalar(val)
		case zerolog.ErrorStackFieldName:
			stack = scalar(val)
		case slacklog.AttrService:
			rec.Service = scalar(val)
		case slacklog.AttrEnvironment:
			rec.Environment = scalar(val)
		case slacklog.AttrFilter:
			if val.Type() == fastjson.TypeObject {
				rec.Filter = objectStrings(val)
				return
			}
			addExtra(&rec, k, scalar(val))
		case slacklog.AttrExtraFields:
			if val.Type() == fastjson.TypeObject {
				for kk, vv := range objectStrings(val) {
					addExtra(&rec, kk, vv)
				}
				return
			}
			addExtra(&rec, k, scalar(val))
		default:
			addExtra(&rec, k, scalar(val))
		}
	})
	if stack != "" {
		if rec.Trace != "" {
			rec.Trace += "\n"
		}
		rec.Trace += stack
	}
	return rec, true, nil
}

func addExtra(rec *slacklog.Record, k, v string) {
	if rec.ExtraFields == nil {
		rec.ExtraFields = map[string]string{}
	}
	rec.ExtraFields[k] = v
}

func objectStrings(v *fastjson.Value) map[string]string {
	out := map[string]string{}
	o, err := v.Object()
	if err != nil {
		return out
	}
	o.Visit(func(key []byte, val *fastjson.Value) {
		out[string(key)] = scalar(val)
	})
	return out
}

// scalar renders strings unquoted and everything else as JSON.
func scalar(v *fastjson.Value) string {
	if v.Type() == fastjson.TypeString {
		b, _ := v.StringBytes()
		return string(b)
	}
	return v.String()
}
