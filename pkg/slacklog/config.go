package slacklog

import "sort"

// Configuration describes the service a formatter speaks for.
// Build it with NewConfiguration; it is never mutated afterwards, so one
// value can be shared by any number of goroutines.
type Configuration struct {
	service     string
	environment string
	context     []string
	emojis      map[Level]string
	extraFields map[string]string
}

type Option func(*Configuration)

func WithService(name string) Option { return func(c *Configuration) { c.service = name } }

func WithEnvironment(name string) Option { return func(c *Configuration) { c.environment = name } }

// WithContext sets the labels shown in the context block. When set they
// replace the environment/service pair.
func WithContext(labels ...string) Option {
	return func(c *Configuration) { c.context = append(c.context, labels...) }
}

// WithEmoji overrides the marker for one level.
func WithEmoji(l Level, marker string) Option {
	return func(c *Configuration) { c.emojis[l] = marker }
}

func WithEmojis(m map[Level]string) Option {
	return func(c *Configuration) {
		for l, e := range m {
			c.emojis[l] = e
		}
	}
}

func WithExtraField(key, value string) Option {
	return func(c *Configuration) { c.extraFields[key] = value }
}

func WithExtraFields(m map[string]string) Option {
	return func(c *Configuration) {
		for k, v := range m {
			c.extraFields[k] = v
		}
	}
}

func NewConfiguration(opts ...Option) *Configuration {
	c := &Configuration{
		emojis:      DefaultEmojis(),
		extraFields: map[string]string{},
	}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	return c
}

func (c *Configuration) Service() string     { return c.service }
func (c *Configuration) Environment() string { return c.environment }

func (c *Configuration) Context() []string { return append([]string(nil), c.context...) }

func (c *Configuration) Emojis() map[Level]string {
	out := make(map[Level]string, len(c.emojis))
	for k, v := range c.emojis {
		out[k] = v
	}
	return out
}

func (c *Configuration) ExtraFields() map[string]string { return copyMap(c.extraFields) }

// Field is one rendered key/value pair.
type Field struct {
	Key   string
	Value string
}

// MergeFields merges static fields with the record's fields; the record wins
// on collisions. The result is sorted by key.
func (c *Configuration) MergeFields(r Record) []Field {
	merged := make(map[string]string, len(c.extraFields)+len(r.ExtraFields))
	for k, v := range c.extraFields {
		merged[k] = v
	}
	for k, v := range r.ExtraFields {
		merged[k] = v
	}
	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]Field, 0, len(keys))
	for _, k := range keys {
		out = append(out, Field{Key: k, Value: merged[k]})
	}
	return out
}

// FilterContext is the context this configuration presents to filters:
// service and environment (when set) plus the static extra fields.
func (c *Configuration) FilterContext() map[string]string {
	out := copyMap(c.extraFields)
	if c.service != "" {
		out[KeyService] = c.service
	}
	if c.environment != "" {
		out[KeyEnvironment] = c.environment
	}
	return out
}

func (c *Configuration) serviceFor(r Record) string {
	if r.Service != "" {
		return r.Service
	}
	if c != nil && c.service != "" {
		return c.service
	}
	return r.Logger
}

func (c *Configuration) environmentFor(r Record) string {
	if r.Environment != "" {
		return r.Environment
	}
	if c != nil {
		return c.environment
	}
	return ""
}

func copyMap(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
