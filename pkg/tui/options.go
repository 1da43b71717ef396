package tui

import (
	"log/slog"

	"github.com/goliatone/go-formwizard/pkg/widgets"
)

// Theme captures optional message prefixes the runner applies when printing.
type Theme struct {
	InfoPrefix  string
	ErrorPrefix string
	DoneMark    string
	LockedMark  string
}

func defaultTheme() Theme {
	return Theme{
		InfoPrefix:  "",
		ErrorPrefix: "! ",
		DoneMark:    "[x]",
		LockedMark:  "(locked)",
	}
}

// Option configures the Runner.
type Option func(*Runner)

// WithPromptDriver overrides the prompt driver used by the runner.
func WithPromptDriver(driver PromptDriver) Option {
	return func(r *Runner) {
		if driver != nil {
			r.driver = driver
		}
	}
}

// WithRegistry overrides the widget registry used to pick prompts.
func WithRegistry(registry *widgets.Registry) Option {
	return func(r *Runner) {
		if registry != nil {
			r.registry = registry
		}
	}
}

// WithTheme applies message prefixes and step marks. Empty fields keep the
// defaults.
func WithTheme(theme Theme) Option {
	return func(r *Runner) {
		if theme.InfoPrefix != "" {
			r.theme.InfoPrefix = theme.InfoPrefix
		}
		if theme.ErrorPrefix != "" {
			r.theme.ErrorPrefix = theme.ErrorPrefix
		}
		if theme.DoneMark != "" {
			r.theme.DoneMark = theme.DoneMark
		}
		if theme.LockedMark != "" {
			r.theme.LockedMark = theme.LockedMark
		}
	}
}

// WithLogger sets the structured logger. Nil keeps the discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}
