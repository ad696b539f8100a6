package slacklog

import "encoding/json"

// Formatter binds a MessageDesign to an optional Configuration.
type Formatter struct {
	design MessageDesign
	config *Configuration
}

// New builds a formatter around any design, built-in or custom.
// cfg may be nil for designs that do not need one.
func New(design MessageDesign, cfg *Configuration) (*Formatter, error) {
	if design == nil {
		return nil, configErrorf("message design is required")
	}
	return &Formatter{design: design, config: cfg}, nil
}

// Plain formats the bare message. It takes no Configuration.
func Plain() *Formatter {
	return &Formatter{design: PlainDesign{}}
}

func Minimal(cfg *Configuration) (*Formatter, error) {
	if cfg == nil {
		return nil, configErrorf("minimal design requires a configuration")
	}
	return &Formatter{design: MinimalDesign{Config: cfg}, config: cfg}, nil
}

func Default(cfg *Configuration) (*Formatter, error) {
	if cfg == nil {
		return nil, configErrorf("default design requires a configuration")
	}
	return &Formatter{design: DefaultDesign{Config: cfg}, config: cfg}, nil
}

// ByName resolves "plain", "minimal" or "default" (the empty name).
func ByName(name string, cfg *Configuration) (*Formatter, error) {
	switch name {
	case "plain":
		return Plain(), nil
	case "minimal":
		return Minimal(cfg)
	case "default", "":
		return Default(cfg)
	}
	return nil, configErrorf("unknown message design %q", name)
}

// Config returns the bound configuration, nil for Plain.
func (f *Formatter) Config() *Configuration { return f.config }

func (f *Formatter) Design() MessageDesign { return f.design }

// Format runs the design and returns the compacted payload.
func (f *Formatter) Format(r Record) (Payload, error) {
	if r.Level < LevelNotSet {
		return Payload{}, configErrorf("record severity %d is not a level", int(r.Level))
	}
	p := Payload{Blocks: Compact(f.design.FormatBlocks(r))}
	if p.empty() {
		return Payload{}, configErrorf("message design produced no content")
	}
	return p, nil
}

func (f *Formatter) FormatJSON(r Record) ([]byte, error) {
	p, err := f.Format(r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(p)
}
