package slacklog

import (
	"sort"
	"strings"
)

// Context keys the filter engine and the configuration agree on.
const (
	KeyService     = "service"
	KeyEnvironment = "environment"
)

// FilterType decides how the conditions of one filter combine.
type FilterType int

const (
	AnyAllowList FilterType = iota
	AllAllowList
	AnyDenyList
	AllDenyList
)

func (t FilterType) String() string {
	switch t {
	case AnyAllowList:
		return "AnyAllowList"
	case AllAllowList:
		return "AllAllowList"
	case AnyDenyList:
		return "AnyDenyList"
	case AllDenyList:
		return "AllDenyList"
	default:
		return "FilterType(?)"
	}
}

// ParseFilterType accepts the canonical names, snake_case variants and the
// older white/black list spellings.
func ParseFilterType(s string) (FilterType, error) {
	norm := strings.ToLower(strings.NewReplacer("_", "", "-", "", " ", "").Replace(strings.TrimSpace(s)))
	switch norm {
	case "anyallowlist", "anywhitelist", "":
		return AnyAllowList, nil
	case "allallowlist", "allwhitelist":
		return AllAllowList, nil
	case "anydenylist", "anyblacklist":
		return AnyDenyList, nil
	case "alldenylist", "allblacklist":
		return AllDenyList, nil
	}
	return AnyAllowList, configErrorf("unknown filter type %q", s)
}

// FilterConfig holds the conditions of one filter. Every non-empty
// attribute is one equality condition against the record context.
type FilterConfig struct {
	Environment string
	Service     string
	Fields      map[string]string
}

type condition struct {
	key   string
	value string
}

func (fc FilterConfig) conditions() []condition {
	out := make([]condition, 0, 2+len(fc.Fields))
	if fc.Environment != "" {
		out = append(out, condition{key: KeyEnvironment, value: fc.Environment})
	}
	if fc.Service != "" {
		out = append(out, condition{key: KeyService, value: fc.Service})
	}
	keys := make([]string, 0, len(fc.Fields))
	for k := range fc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out = append(out, condition{key: k, value: fc.Fields[k]})
	}
	return out
}

func (c condition) satisfied(ctx map[string]string) bool {
	v, ok := ctx[c.key]
	return ok && v == c.value
}

// Filter is a fixed FilterConfig plus the policy that combines it.
type Filter struct {
	Config FilterConfig
	Type   FilterType
}

func NewFilter(cfg FilterConfig, t FilterType) Filter {
	return Filter{Config: cfg, Type: t.orDefault()}
}

// FilterByFields lets records through whose context carries the fields.
// The type defaults to AnyAllowList.
func FilterByFields(fields map[string]string, t ...FilterType) Filter {
	ft := AnyAllowList
	if len(t) > 0 {
		ft = t[0]
	}
	return NewFilter(FilterConfig{Fields: copyMap(fields)}, ft)
}

// HideByFields drops records whose context carries the fields.
// The type defaults to AnyDenyList.
func HideByFields(fields map[string]string, t ...FilterType) Filter {
	ft := AnyDenyList
	if len(t) > 0 {
		ft = t[0]
	}
	return NewFilter(FilterConfig{Fields: copyMap(fields)}, ft)
}

func (t FilterType) orDefault() FilterType {
	if t < AnyAllowList || t > AllDenyList {
		return AnyAllowList
	}
	return t
}

// Passes evaluates the filter against a record context. Keys missing from
// ctx never satisfy a condition. A filter without conditions always passes.
func (f Filter) Passes(ctx map[string]string) bool {
	conds := f.Config.conditions()
	if len(conds) == 0 {
		return true
	}
	matched := 0
	for _, c := range conds {
		if c.satisfied(ctx) {
			matched++
		}
	}
	switch f.Type {
	case AllAllowList:
		return matched == len(conds)
	case AnyDenyList:
		return matched == 0
	case AllDenyList:
		return matched < len(conds)
	default:
		return matched > 0
	}
}

// Evaluate is the AND of every filter's verdict. Order does not matter.
func Evaluate(filters []Filter, ctx map[string]string) bool {
	for _, f := range filters {
		if !f.Passes(ctx) {
			return false
		}
	}
	return true
}
