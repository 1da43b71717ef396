package uischema

import (
	"encoding/json"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Config is the UI side of a wizard configuration: one screen per logical
// table. It is immutable once loaded.
type Config struct {
	Screens []Screen `json:"screens" yaml:"screens"`
}

// Screen describes the form presented for one table.
type Screen struct {
	ID          string    `json:"id" yaml:"id"`
	Table       string    `json:"table" yaml:"table"`
	Title       string    `json:"title,omitempty" yaml:"title,omitempty"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	Sections    []Section `json:"sections" yaml:"sections"`
}

// Section is one block of a screen. Its Body is either Simple or Repeat.
type Section struct {
	ID                   string
	Title                string
	Description          string
	IsBusinessKeySection bool
	Body                 SectionBody
}

// SectionBody is the closed set of section shapes. Consumers dispatch with a
// type switch over Simple and Repeat.
type SectionBody interface {
	sectionBody()
}

// Simple is a flat list of fields written as one record of the owning table.
// Nested, when set, is a repeat block whose rows reference that record.
type Simple struct {
	Fields []Field
	Nested *RepeatSpec
}

// Repeat is a repeated-rows block writing child rows to Spec.Table on behalf
// of the owning table.
type Repeat struct {
	Spec RepeatSpec
}

func (Simple) sectionBody() {}
func (Repeat) sectionBody() {}

// RepeatSpec describes a repeated-row sub-table. Its sections form the row
// form and may nest further repeat blocks.
type RepeatSpec struct {
	Table    string    `json:"table" yaml:"table"`
	Title    string    `json:"title,omitempty" yaml:"title,omitempty"`
	MinRows  int       `json:"minRows,omitempty" yaml:"minRows,omitempty"`
	Sections []Section `json:"sections" yaml:"sections"`
}

// Field describes one input.
type Field struct {
	Name        string   `json:"name" yaml:"name"`
	Label       string   `json:"label,omitempty" yaml:"label,omitempty"`
	Widget      string   `json:"widget,omitempty" yaml:"widget,omitempty"`
	Options     []Option `json:"options,omitempty" yaml:"options,omitempty"`
	Required    bool     `json:"required,omitempty" yaml:"required,omitempty"`
	Placeholder string   `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	HelpText    string   `json:"helpText,omitempty" yaml:"helpText,omitempty"`
}

// Option is one enumerated value of a field.
type Option struct {
	Label string `json:"label" yaml:"label"`
	Value string `json:"value" yaml:"value"`
}

// DisplayLabel returns the label, falling back to a humanised field name.
func (f Field) DisplayLabel() string {
	if strings.TrimSpace(f.Label) != "" {
		return f.Label
	}
	words := strings.Fields(strings.ReplaceAll(f.Name, "_", " "))
	for idx, word := range words {
		first, size := utf8.DecodeRuneInString(word)
		words[idx] = string(unicode.ToUpper(first)) + word[size:]
	}
	return strings.Join(words, " ")
}

// Fields returns the section's own fields. Repeat sections own none.
func (s Section) Fields() []Field {
	if simple, ok := s.Body.(Simple); ok {
		return simple.Fields
	}
	return nil
}

// MinRowCount returns the minimum number of saved rows a repeat block needs
// before it can complete. The floor is one.
func (r RepeatSpec) MinRowCount() int {
	if r.MinRows < 1 {
		return 1
	}
	return r.MinRows
}

// RowFields flattens the fields of the repeat block's own sections. Nested
// blocks below it contribute nothing.
func (r RepeatSpec) RowFields() []Field {
	var out []Field
	for _, section := range r.Sections {
		out = append(out, section.Fields()...)
	}
	return out
}

// NestedRepeat returns the first nested repeat block declared among the row
// sections, if any.
func (r RepeatSpec) NestedRepeat() (*RepeatSpec, bool) {
	for _, section := range r.Sections {
		switch body := section.Body.(type) {
		case Simple:
			if body.Nested != nil {
				return body.Nested, true
			}
		case Repeat:
			spec := body.Spec
			return &spec, true
		}
	}
	return nil, false
}

// ScreenFor returns the first screen bound to table.
func (c Config) ScreenFor(table string) (int, Screen, bool) {
	for idx, screen := range c.Screens {
		if screen.Table == table {
			return idx, screen, true
		}
	}
	return -1, Screen{}, false
}

// Screen returns the screen at idx.
func (c Config) Screen(idx int) (Screen, bool) {
	if idx < 0 || idx >= len(c.Screens) {
		return Screen{}, false
	}
	return c.Screens[idx], true
}

// BusinessKeySection returns the index of the first section flagged as the
// business-key section, or -1.
func (s Screen) BusinessKeySection() int {
	for idx, section := range s.Sections {
		if section.IsBusinessKeySection {
			return idx
		}
	}
	return -1
}

type sectionJSON struct {
	ID                   string      `json:"id"`
	Title                string      `json:"title,omitempty"`
	Description          string      `json:"description,omitempty"`
	IsBusinessKeySection bool        `json:"isBusinessKeySection,omitempty"`
	Kind                 string      `json:"kind"`
	Fields               []Field     `json:"fields,omitempty"`
	Nested               *RepeatSpec `json:"nested,omitempty"`
	Repeat               *RepeatSpec `json:"repeat,omitempty"`
}

// MarshalJSON renders the section with an explicit kind discriminator.
func (s Section) MarshalJSON() ([]byte, error) {
	out := sectionJSON{
		ID:                   s.ID,
		Title:                s.Title,
		Description:          s.Description,
		IsBusinessKeySection: s.IsBusinessKeySection,
	}
	switch body := s.Body.(type) {
	case Simple:
		out.Kind = "simple"
		out.Fields = body.Fields
		out.Nested = body.Nested
	case Repeat:
		out.Kind = "repeat"
		spec := body.Spec
		out.Repeat = &spec
	default:
		out.Kind = "simple"
	}
	return json.Marshal(out)
}
