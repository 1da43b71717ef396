package widgets

import (
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-formwizard/pkg/uischema"
)

// Built-in widget identifiers exposed by the registry.
const (
	WidgetText     = "text"
	WidgetTextArea = "textarea"
	WidgetSelect   = "select"
	WidgetToggle   = "toggle"
	WidgetCheckbox = "checkbox"
	WidgetNumber   = "number"
	WidgetDate     = "date"
	WidgetPassword = "password"
)

// Matcher decides whether a widget should handle the supplied field.
type Matcher func(field uischema.Field) bool

type rule struct {
	name     string
	priority int
	match    Matcher
	order    int
}

// Registry selects widgets for fields based on explicit hints or registered
// matchers. Higher priority wins; ties fall back to registration order. An
// empty registry never resolves a widget.
type Registry struct {
	mu    sync.RWMutex
	rules []rule
}

// NewRegistry constructs a registry with the built-in widget matchers
// registered.
func NewRegistry() *Registry {
	reg := &Registry{}
	reg.registerBuiltins()
	return reg
}

// Register adds a widget matcher with the provided name and priority. Higher
// priority values take precedence.
func (r *Registry) Register(name string, priority int, matcher Matcher) {
	if r == nil || matcher == nil {
		return
	}
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rules = append(r.rules, rule{
		name:     trimmed,
		priority: priority,
		match:    matcher,
		order:    len(r.rules),
	})
}

// Resolve returns the widget name for a field. The field's own widget is
// honoured before matcher evaluation.
func (r *Registry) Resolve(field uischema.Field) (string, bool) {
	if explicit := strings.TrimSpace(field.Widget); explicit != "" {
		return strings.ToLower(explicit), true
	}
	if r == nil {
		return "", false
	}
	r.mu.RLock()
	if len(r.rules) == 0 {
		r.mu.RUnlock()
		return "", false
	}
	rules := append([]rule(nil), r.rules...)
	r.mu.RUnlock()
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].priority == rules[j].priority {
			return rules[i].order < rules[j].order
		}
		return rules[i].priority > rules[j].priority
	})
	for _, entry := range rules {
		if entry.match(field) {
			return entry.name, true
		}
	}
	return "", false
}

// WidgetFor resolves a widget and falls back to plain text.
func (r *Registry) WidgetFor(field uischema.Field) string {
	if widget, ok := r.Resolve(field); ok {
		return widget
	}
	return WidgetText
}

// Decorate returns a copy of fields with every empty Widget filled in.
func (r *Registry) Decorate(fields []uischema.Field) []uischema.Field {
	if len(fields) == 0 {
		return fields
	}
	decorated := make([]uischema.Field, len(fields))
	for idx, field := range fields {
		if field.Widget == "" {
			field.Widget = r.WidgetFor(field)
		}
		decorated[idx] = field
	}
	return decorated
}

// DecorateConfig fills widgets on every field of every screen, nested repeat
// blocks included.
func (r *Registry) DecorateConfig(cfg uischema.Config) uischema.Config {
	out := uischema.Config{Screens: make([]uischema.Screen, len(cfg.Screens))}
	for idx, screen := range cfg.Screens {
		screen.Sections = r.decorateSections(screen.Sections)
		out.Screens[idx] = screen
	}
	return out
}

func (r *Registry) decorateSections(sections []uischema.Section) []uischema.Section {
	if len(sections) == 0 {
		return sections
	}
	out := make([]uischema.Section, len(sections))
	for idx, section := range sections {
		switch body := section.Body.(type) {
		case uischema.Simple:
			body.Fields = r.Decorate(body.Fields)
			if body.Nested != nil {
				nested := r.decorateSpec(*body.Nested)
				body.Nested = &nested
			}
			section.Body = body
		case uischema.Repeat:
			body.Spec = r.decorateSpec(body.Spec)
			section.Body = body
		}
		out[idx] = section
	}
	return out
}

func (r *Registry) decorateSpec(spec uischema.RepeatSpec) uischema.RepeatSpec {
	spec.Sections = r.decorateSections(spec.Sections)
	return spec
}

func (r *Registry) registerBuiltins() {
	r.Register(WidgetSelect, 90, func(field uischema.Field) bool {
		return len(field.Options) > 0
	})

	r.Register(WidgetPassword, 80, func(field uischema.Field) bool {
		name := strings.ToLower(field.Name)
		return strings.Contains(name, "password") || strings.Contains(name, "secret")
	})

	r.Register(WidgetToggle, 70, func(field uischema.Field) bool {
		name := strings.ToLower(field.Name)
		return hasAnyPrefix(name, "is_", "has_", "can_") || name == "active" || name == "enabled"
	})

	r.Register(WidgetDate, 60, func(field uischema.Field) bool {
		name := strings.ToLower(field.Name)
		return hasAnySuffix(name, "_on", "_at", "_date") || name == "date"
	})

	r.Register(WidgetNumber, 50, func(field uischema.Field) bool {
		name := strings.ToLower(field.Name)
		return hasAnySuffix(name, "_count", "_qty", "quantity", "amount", "weight") || strings.HasPrefix(name, "num_")
	})

	r.Register(WidgetTextArea, 40, func(field uischema.Field) bool {
		name := strings.ToLower(field.Name)
		return hasAnySuffix(name, "notes", "description", "comment", "comments")
	})
}

func hasAnyPrefix(value string, prefixes ...string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}

func hasAnySuffix(value string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(value, suffix) {
			return true
		}
	}
	return false
}
