// Package tui walks a wizard session in the terminal: a step menu, one prompt
// per field chosen through the widget registry, add-row loops for repeat
// blocks and a summary of the resolved keys once the wizard finishes.
package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/goliatone/go-formwizard/pkg/persist"
	"github.com/goliatone/go-formwizard/pkg/steps"
	"github.com/goliatone/go-formwizard/pkg/uischema"
	"github.com/goliatone/go-formwizard/pkg/widgets"
	"github.com/goliatone/go-formwizard/pkg/wizard"
)

const (
	menuBack = "Back"
	menuQuit = "Quit"

	choiceCreate = "Create new"
	choiceAddRow = "Add row"
	choiceSkip   = "(skip)"
)

// Runner drives a wizard.Session through a PromptDriver.
type Runner struct {
	driver   PromptDriver
	registry *widgets.Registry
	theme    Theme
	logger   *slog.Logger
}

// New constructs a runner with defaults (survey driver, built-in widgets).
func New(options ...Option) *Runner {
	r := &Runner{
		registry: widgets.NewRegistry(),
		theme:    defaultTheme(),
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(r)
	}
	if r.driver == nil {
		r.driver = NewSurveyDriver(nil)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r
}

// Run loops until the user quits or declines to start over after finishing.
// Quitting from the menu returns ErrQuit with the last view.
func (r *Runner) Run(ctx context.Context, session *wizard.Session) (wizard.View, error) {
	if ctx == nil {
		return wizard.View{}, errors.New("tui: context is required")
	}
	if session == nil {
		return wizard.View{}, errors.New("tui: session is required")
	}

	for {
		if err := ctx.Err(); err != nil {
			return session.View(), err
		}
		view := session.View()

		if view.Finished {
			if err := r.printSummary(ctx, view); err != nil {
				return view, err
			}
			again, err := r.driver.Confirm(ctx, ConfirmConfig{Message: "Start another entry?"})
			if err != nil || !again {
				return view, err
			}
			session.OnReset()
			continue
		}

		labels, targets := r.menu(view)
		choice, err := r.driver.Select(ctx, SelectConfig{
			Message:      "Choose a step",
			Options:      labels,
			DefaultIndex: defaultChoice(targets, view.Progress.Current),
		})
		if err != nil {
			return view, err
		}
		if choice < 0 || choice >= len(targets) {
			continue
		}

		target := targets[choice]
		switch {
		case target.quit:
			return view, ErrQuit
		case target.back:
			session.OnGoBack()
		default:
			if err := r.openStep(ctx, session, target.step); err != nil {
				return session.View(), err
			}
		}
	}
}

type menuTarget struct {
	step wizard.StepView
	back bool
	quit bool
}

func (r *Runner) menu(view wizard.View) ([]string, []menuTarget) {
	var (
		labels  []string
		targets []menuTarget
	)
	for _, step := range view.Steps {
		if !step.Displayable {
			continue
		}
		mark := "[ ]"
		if step.Completed {
			mark = r.theme.DoneMark
		}
		label := fmt.Sprintf("%s %s", mark, step.Title)
		if step.Disabled {
			label += " " + r.theme.LockedMark
		}
		labels = append(labels, label)
		targets = append(targets, menuTarget{step: step})
	}
	if len(view.Progress.History) > 1 {
		labels = append(labels, menuBack)
		targets = append(targets, menuTarget{back: true})
	}
	labels = append(labels, menuQuit)
	targets = append(targets, menuTarget{quit: true})
	return labels, targets
}

func defaultChoice(targets []menuTarget, current int) int {
	for idx, target := range targets {
		if !target.back && !target.quit && target.step.Index == current {
			return idx
		}
	}
	return 0
}

// openStep re-opens a locked step for editing when the user confirms, then
// runs it.
func (r *Runner) openStep(ctx context.Context, session *wizard.Session, step wizard.StepView) error {
	if step.Disabled {
		edit, err := r.driver.Confirm(ctx, ConfirmConfig{Message: fmt.Sprintf("Edit %s?", step.Title)})
		if err != nil || !edit {
			return err
		}
		if result := session.OnGoToStep(step.ID); !result.Applied {
			return r.report(ctx, fmt.Sprintf("cannot edit %s: %s", step.Title, result.Reason))
		}
	}
	return r.runStep(ctx, session, step)
}

func (r *Runner) runStep(ctx context.Context, session *wizard.Session, step wizard.StepView) error {
	section, ok := session.Section(step.ID)
	if !ok {
		return r.report(ctx, fmt.Sprintf("step %s has no section", step.ID))
	}

	switch body := section.Body.(type) {
	case uischema.Simple:
		if step.RequiresBusinessKey || step.Kind == steps.KindTable {
			selected, err := r.offerExisting(ctx, session, step)
			if err != nil || selected {
				return err
			}
		}
		values, err := r.promptFields(ctx, body.Fields, step.Values)
		if err != nil {
			return err
		}
		outcome, err := session.OnStepSectionSaved(ctx, step.ID, values)
		if err != nil {
			return r.recoverable(ctx, err)
		}
		if outcome.Done {
			return nil
		}
		return r.runRows(ctx, session, step.ID)
	case uischema.Repeat:
		return r.runRows(ctx, session, step.ID)
	default:
		return r.report(ctx, fmt.Sprintf("step %s has an empty section", step.ID))
	}
}

// offerExisting lets the user pick an existing record by business key. It
// reports whether the step was completed by selection.
func (r *Runner) offerExisting(ctx context.Context, session *wizard.Session, step wizard.StepView) (bool, error) {
	options, err := session.BusinessKeyOptions(ctx, step.ID)
	if err != nil {
		r.logger.Warn("tui: business keys unavailable", "step", step.ID, "error", err)
		return false, nil
	}
	if len(options) == 0 {
		return false, nil
	}
	labels := make([]string, 0, len(options)+1)
	labels = append(labels, choiceCreate)
	for _, option := range options {
		labels = append(labels, option.Value)
	}
	choice, err := r.driver.Select(ctx, SelectConfig{Message: step.Title, Options: labels})
	if err != nil {
		return false, err
	}
	if choice <= 0 || choice > len(options) {
		return false, nil
	}
	if _, err := session.SelectRecord(ctx, step.ID, options[choice-1].Value); err != nil {
		return false, r.recoverable(ctx, err)
	}
	return true, nil
}

// runRows loops over the active repeat block until the outermost block
// completes or the user backs out through an error.
func (r *Runner) runRows(ctx context.Context, session *wizard.Session, stepID string) error {
	for {
		frames, err := session.Blocks(ctx, stepID)
		if err != nil {
			return r.recoverable(ctx, err)
		}
		if len(frames) == 0 {
			return nil
		}
		top := frames[len(frames)-1]
		if top.Kind != persist.FrameRows {
			return nil
		}

		title := top.Title
		if title == "" {
			title = top.Table
		}
		choice, err := r.driver.Select(ctx, SelectConfig{
			Message: fmt.Sprintf("%s: %d saved row(s)", title, len(top.Rows)),
			Options: []string{choiceAddRow, "Finish " + title},
		})
		if err != nil {
			return err
		}

		if choice == 0 {
			if err := r.addRow(ctx, session, stepID, top.Fields); err != nil {
				return err
			}
			continue
		}

		outcome, err := session.CompleteRows(ctx, stepID)
		if err != nil {
			if rerr := r.recoverable(ctx, err); rerr != nil {
				return rerr
			}
			continue
		}
		if outcome.Done {
			return nil
		}
	}
}

func (r *Runner) addRow(ctx context.Context, session *wizard.Session, stepID string, fields []uischema.Field) error {
	draft, err := session.AddRow(ctx, stepID, nil)
	if err != nil {
		return r.recoverable(ctx, err)
	}
	values, err := r.promptFields(ctx, fields, nil)
	if err != nil {
		_ = session.DiscardRow(stepID, draft)
		return err
	}
	if _, err := session.SaveRow(ctx, stepID, draft, values); err != nil {
		_ = session.DiscardRow(stepID, draft)
		return r.recoverable(ctx, err)
	}
	return nil
}

// promptFields asks for every field and returns the non-empty answers.
func (r *Runner) promptFields(ctx context.Context, fields []uischema.Field, defaults persist.Record) (persist.Record, error) {
	values := make(persist.Record, len(fields))
	for _, field := range fields {
		value, set, err := r.promptField(ctx, field, defaults[field.Name])
		if err != nil {
			return nil, err
		}
		if set {
			values[field.Name] = value
		}
	}
	return values, nil
}

func (r *Runner) promptField(ctx context.Context, field uischema.Field, current any) (any, bool, error) {
	label := field.DisplayLabel()
	help := field.HelpText
	defaultText := ""
	if current != nil {
		defaultText = fmt.Sprint(current)
	}

	switch r.registry.WidgetFor(field) {
	case widgets.WidgetSelect:
		return r.promptSelect(ctx, field, defaultText)
	case widgets.WidgetToggle, widgets.WidgetCheckbox:
		currentBool, _ := current.(bool)
		answer, err := r.driver.Confirm(ctx, ConfirmConfig{Message: label, Default: currentBool, Help: help})
		return answer, err == nil, err
	case widgets.WidgetTextArea:
		answer, err := r.driver.TextArea(ctx, TextAreaConfig{Message: label, Default: defaultText, Help: help})
		return textAnswer(answer, err)
	case widgets.WidgetPassword:
		answer, err := r.driver.Password(ctx, InputConfig{Message: label, Default: defaultText, Help: help, Validator: required(field)})
		return textAnswer(answer, err)
	case widgets.WidgetNumber:
		answer, err := r.driver.Input(ctx, InputConfig{Message: label, Default: defaultText, Help: help, Validator: chain(required(field), numeric)})
		if err != nil || strings.TrimSpace(answer) == "" {
			return nil, false, err
		}
		return parseNumber(answer), true, nil
	case widgets.WidgetDate:
		answer, err := r.driver.Input(ctx, InputConfig{Message: label, Default: defaultText, Help: firstNonEmpty(help, "YYYY-MM-DD"), Validator: chain(required(field), date)})
		return textAnswer(answer, err)
	default:
		answer, err := r.driver.Input(ctx, InputConfig{Message: label, Default: defaultText, Help: help, Validator: required(field)})
		return textAnswer(answer, err)
	}
}

func (r *Runner) promptSelect(ctx context.Context, field uischema.Field, current string) (any, bool, error) {
	labels := make([]string, 0, len(field.Options)+1)
	defaultIdx := 0
	for idx, option := range field.Options {
		labels = append(labels, firstNonEmpty(option.Label, option.Value))
		if option.Value == current {
			defaultIdx = idx
		}
	}
	if !field.Required {
		labels = append(labels, choiceSkip)
	}
	choice, err := r.driver.Select(ctx, SelectConfig{
		Message:      field.DisplayLabel(),
		Options:      labels,
		DefaultIndex: defaultIdx,
		Help:         field.HelpText,
	})
	if err != nil {
		return nil, false, err
	}
	if choice < 0 || choice >= len(field.Options) {
		return nil, false, nil
	}
	return field.Options[choice].Value, true, nil
}

// recoverable reports section-level failures and returns nil so the menu
// resumes; anything else is returned as is.
func (r *Runner) recoverable(ctx context.Context, err error) error {
	var sectionErr *persist.SectionError
	switch {
	case errors.As(err, &sectionErr):
		return r.report(ctx, sectionErr.Message)
	case errors.Is(err, wizard.ErrStepLocked),
		errors.Is(err, wizard.ErrUnknownStep),
		errors.Is(err, persist.ErrWrongFrame),
		errors.Is(err, persist.ErrUnknownDraft):
		return r.report(ctx, err.Error())
	default:
		return err
	}
}

func (r *Runner) report(ctx context.Context, msg string) error {
	return r.driver.Info(ctx, r.theme.ErrorPrefix+msg)
}

func (r *Runner) printSummary(ctx context.Context, view wizard.View) error {
	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "ID"})
	for _, entry := range view.Summary {
		t.AppendRow(table.Row{entry.Table, entry.ID})
	}
	return r.driver.Info(ctx, r.theme.InfoPrefix+"Wizard complete\n"+t.Render())
}

func textAnswer(answer string, err error) (any, bool, error) {
	if err != nil {
		return nil, false, err
	}
	trimmed := strings.TrimSpace(answer)
	if trimmed == "" {
		return nil, false, nil
	}
	return trimmed, true, nil
}

func required(field uischema.Field) func(string) error {
	if !field.Required {
		return nil
	}
	return func(value string) error {
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s is required", field.DisplayLabel())
		}
		return nil
	}
}

func numeric(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	if _, err := strconv.ParseFloat(trimmed, 64); err != nil {
		return errors.New("enter a number")
	}
	return nil
}

func date(value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	if _, err := time.Parse("2006-01-02", trimmed); err != nil {
		return errors.New("use YYYY-MM-DD")
	}
	return nil
}

func chain(validators ...func(string) error) func(string) error {
	return func(value string) error {
		for _, validate := range validators {
			if validate == nil {
				continue
			}
			if err := validate(value); err != nil {
				return err
			}
		}
		return nil
	}
}

func parseNumber(value string) any {
	trimmed := strings.TrimSpace(value)
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return n
	}
	f, _ := strconv.ParseFloat(trimmed, 64)
	return f
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
