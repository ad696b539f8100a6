package slacklog

import "strings"

// MessageDesign turns a record into an ordered list of blocks. Entries may
// be nil; the formatter drops them before building the payload.
type MessageDesign interface {
	FormatBlocks(r Record) []Block
}

// DesignFunc lets an ordinary function act as a MessageDesign.
type DesignFunc func(r Record) []Block

func (f DesignFunc) FormatBlocks(r Record) []Block { return f(r) }

// PlainDesign renders the message (and trace) as one plain-text section.
// It never looks at a Configuration.
type PlainDesign struct{}

func (PlainDesign) FormatBlocks(r Record) []Block {
	return []Block{PlainSection(r.Body())}
}

// MinimalDesign renders a header and the message.
type MinimalDesign struct {
	Config *Configuration
}

func (d MinimalDesign) FormatBlocks(r Record) []Block {
	return []Block{
		headerBlock(d.Config, r),
		Section(r.Body()),
	}
}

// DefaultDesign renders header, context, divider, message and extra fields.
type DefaultDesign struct {
	Config *Configuration
}

func (d DefaultDesign) FormatBlocks(r Record) []Block {
	return []Block{
		headerBlock(d.Config, r),
		contextBlock(d.Config, r),
		Divider(),
		Section(r.Body()),
		fieldsSection(d.Config, r),
	}
}

func headerBlock(cfg *Configuration, r Record) Block {
	parts := []string{ResolveEmoji(cfg, r.Level), r.Level.String(), cfg.serviceFor(r)}
	return Header(joinPresent(parts, " "))
}

func contextBlock(cfg *Configuration, r Record) Block {
	if cfg != nil && len(cfg.context) > 0 {
		return Context(cfg.Context()...)
	}
	service := r.Service
	if service == "" && cfg != nil {
		service = cfg.service
	}
	elems := presentOnly([]string{cfg.environmentFor(r), service})
	if len(elems) == 0 {
		return nil
	}
	return Context(elems...)
}

func fieldsSection(cfg *Configuration, r Record) Block {
	if cfg == nil {
		cfg = NewConfiguration()
	}
	fields := cfg.MergeFields(r)
	if len(fields) == 0 {
		return nil
	}
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, f.Key+": "+f.Value)
	}
	return Section(strings.Join(lines, "\n"))
}

func presentOnly(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

func joinPresent(in []string, sep string) string {
	return strings.Join(presentOnly(in), sep)
}
