package relay

import (
	"errors"
	"fmt"
	"time"

	"github.com/valyala/fastjson"

	"slacklog/pkg/slacklog"
)

var bodyParsers fastjson.ParserPool

var errEmptyBody = errors.New("empty body")

// decodeRecords accepts a single record object or an array of them.
//
//	{"level":"error","message":"...","trace":"...","time":"RFC3339",
//	 "logger":"...","service":"...","environment":"...",
//	 "extra_fields":{...},"filter":{...}}
//
// level may be a name or a non-negative number.
func decodeRecords(b []byte) ([]slacklog.Record, error) {
	p := bodyParsers.Get()
	defer bodyParsers.Put(p)

	v, err := p.ParseBytes(b)
	if err != nil {
		return nil, err
	}
	switch v.Type() {
	case fastjson.TypeObject:
		r, err := decodeRecord(v)
		if err != nil {
			return nil, err
		}
		return []slacklog.Record{r}, nil
	case fastjson.TypeArray:
		items, _ := v.Array()
		if len(items) == 0 {
			return nil, errEmptyBody
		}
		out := make([]slacklog.Record, 0, len(items))
		for i, it := range items {
			r, err := decodeRecord(it)
			if err != nil {
				return nil, fmt.Errorf("record %d: %w", i, err)
			}
			out = append(out, r)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected object or array, got %s", v.Type())
	}
}

func decodeRecord(v *fastjson.Value) (slacklog.Record, error) {
	var r slacklog.Record
	if v.Type() != fastjson.TypeObject {
		return r, fmt.Errorf("expected object, got %s", v.Type())
	}

	lv := v.Get("level")
	switch {
	case lv == nil:
		r.Level = slacklog.LevelNotSet
	case lv.Type() == fastjson.TypeNumber:
		n, err := lv.Int()
		if err != nil || n < 0 {
			return r, fmt.Errorf("level %s is not a severity", lv.String())
		}
		r.Level = slacklog.Level(n)
	default:
		l, err := slacklog.ParseLevel(str(lv))
		if err != nil {
			return r, err
		}
		r.Level = l
	}

	r.Message = string(v.GetStringBytes("message"))
	r.Trace = string(v.GetStringBytes("trace"))
	r.Logger = string(v.GetStringBytes("logger"))
	r.Service = string(v.GetStringBytes("service"))
	r.Environment = string(v.GetStringBytes("environment"))

	r.Time = time.Now()
	if ts := v.GetStringBytes("time"); len(ts) > 0 {
		t, err := time.Parse(time.RFC3339Nano, string(ts))
		if err != nil {
			return r, fmt.Errorf("time: %w", err)
		}
		r.Time = t
	}

	var err error
	if r.ExtraFields, err = stringMap(v, "extra_fields"); err != nil {
		return r, err
	}
	if r.Filter, err = stringMap(v, "filter"); err != nil {
		return r, err
	}
	return r, nil
}

// stringMap reads an object of scalars. Missing keys yield nil.
func stringMap(v *fastjson.Value, key string) (map[string]string, error) {
	f := v.Get(key)
	if f == nil || f.Type() == fastjson.TypeNull {
		return nil, nil
	}
	o, err := f.Object()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	out := make(map[string]string, o.Len())
	o.Visit(func(k []byte, val *fastjson.Value) {
		out[string(k)] = str(val)
	})
	return out, nil
}

func str(v *fastjson.Value) string {
	if v.Type() == fastjson.TypeString {
		b, _ := v.StringBytes()
		return string(b)
	}
	return v.String()
}
