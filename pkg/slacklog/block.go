package slacklog

import "encoding/json"

// Block is one unit of a block-kit message. The set of variants is closed:
// HeaderBlock, ContextBlock, SectionBlock and DividerBlock.
type Block interface {
	json.Marshaler
	Type() string
	block()
}

const (
	textPlain    = "plain_text"
	textMarkdown = "mrkdwn"
)

type textObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func textObjects(kind string, texts []string) []textObject {
	out := make([]textObject, 0, len(texts))
	for _, t := range texts {
		out = append(out, textObject{Type: kind, Text: t})
	}
	return out
}

type HeaderBlock struct {
	Text string
}

func Header(text string) *HeaderBlock { return &HeaderBlock{Text: text} }

func (*HeaderBlock) Type() string { return "header" }
func (*HeaderBlock) block()       {}

func (b *HeaderBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type string     `json:"type"`
		Text textObject `json:"text"`
	}{Type: b.Type(), Text: textObject{Type: textPlain, Text: b.Text}})
}

type ContextBlock struct {
	Elements []string
}

func Context(elements ...string) *ContextBlock { return &ContextBlock{Elements: elements} }

func (*ContextBlock) Type() string { return "context" }
func (*ContextBlock) block()       {}

func (b *ContextBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     string       `json:"type"`
		Elements []textObject `json:"elements"`
	}{Type: b.Type(), Elements: textObjects(textMarkdown, b.Elements)})
}

// SectionBlock carries markdown text (plain text when Plain is set) and an
// optional list of markdown fields.
type SectionBlock struct {
	Text   string
	Plain  bool
	Fields []string
}

func Section(text string, fields ...string) *SectionBlock {
	return &SectionBlock{Text: text, Fields: fields}
}

func PlainSection(text string) *SectionBlock { return &SectionBlock{Text: text, Plain: true} }

func (*SectionBlock) Type() string { return "section" }
func (*SectionBlock) block()       {}

func (b *SectionBlock) Empty() bool { return b.Text == "" && len(b.Fields) == 0 }

func (b *SectionBlock) MarshalJSON() ([]byte, error) {
	var text *textObject
	if b.Text != "" {
		kind := textMarkdown
		if b.Plain {
			kind = textPlain
		}
		text = &textObject{Type: kind, Text: b.Text}
	}
	return json.Marshal(struct {
		Type   string       `json:"type"`
		Text   *textObject  `json:"text,omitempty"`
		Fields []textObject `json:"fields,omitempty"`
	}{Type: b.Type(), Text: text, Fields: textObjects(textMarkdown, b.Fields)})
}

type DividerBlock struct{}

func Divider() *DividerBlock { return &DividerBlock{} }

func (*DividerBlock) Type() string { return "divider" }
func (*DividerBlock) block()       {}

func (b *DividerBlock) MarshalJSON() ([]byte, error) {
	return []byte(`{"type":"divider"}`), nil
}

// Compact drops absent entries (nil interfaces and typed nil pointers) and
// collapses runs of empty sections to one.
func Compact(in []Block) []Block {
	out := make([]Block, 0, len(in))
	prevEmptySection := false
	for _, b := range in {
		if isNilBlock(b) {
			continue
		}
		s, isSection := b.(*SectionBlock)
		empty := isSection && s.Empty()
		if empty && prevEmptySection {
			continue
		}
		prevEmptySection = empty
		out = append(out, b)
	}
	return out
}

func isNilBlock(b Block) bool {
	switch v := b.(type) {
	case nil:
		return true
	case *HeaderBlock:
		return v == nil
	case *ContextBlock:
		return v == nil
	case *SectionBlock:
		return v == nil
	case *DividerBlock:
		return v == nil
	}
	return false
}

// Payload is the document handed to a Sender.
type Payload struct {
	Text   string
	Blocks []Block
}

// empty reports whether p has nothing Slack would render: no text and no
// block other than empty sections.
func (p Payload) empty() bool {
	if p.Text != "" {
		return false
	}
	for _, b := range p.Blocks {
		if s, ok := b.(*SectionBlock); !ok || !s.Empty() {
			return false
		}
	}
	return true
}

func (p Payload) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Text   string  `json:"text,omitempty"`
		Blocks []Block `json:"blocks,omitempty"`
	}{Text: p.Text, Blocks: p.Blocks})
}
