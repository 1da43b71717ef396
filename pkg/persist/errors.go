package persist

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a business-key lookup matches no row.
	ErrNotFound = errors.New("persist: record not found")
	// ErrNoRows blocks completing a repeat block that has too few saved rows.
	ErrNoRows = errors.New("persist: add at least one row")
	// ErrMissingRequired reports required fields left empty.
	ErrMissingRequired = errors.New("persist: required fields missing")
	// ErrOwnerUnresolved means a repeat block tried to complete before its
	// owning record had a key in the FK context.
	ErrOwnerUnresolved = errors.New("persist: owning record not saved")
	// ErrWrongFrame is returned when an action does not match the active
	// block (for example saving a row while a simple form is active).
	ErrWrongFrame = errors.New("persist: action does not match the active block")
	// ErrUnknownDraft is returned for a draft id that is not open.
	ErrUnknownDraft = errors.New("persist: unknown draft")
	// ErrFlowDone is returned for actions on a flow that already completed.
	ErrFlowDone = errors.New("persist: flow already completed")
)

// SectionError is the user-facing error of one section save. State is never
// mutated when a SectionError is returned.
type SectionError struct {
	StepID  string   `json:"stepId"`
	Section string   `json:"section"`
	Message string   `json:"message"`
	Fields  []string `json:"fields,omitempty"`
	Err     error    `json:"-"`
}

func (e *SectionError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("persist: section %s: %s", e.Section, e.Message)
}

func (e *SectionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func sectionError(stepID, section string, err error, fields ...string) *SectionError {
	return &SectionError{
		StepID:  stepID,
		Section: section,
		Message: userMessage(err),
		Fields:  normalizeMessages(fields),
		Err:     err,
	}
}

// userMessage strips package prefixes so the message reads well in a form.
func userMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoRows):
		return "add at least one row"
	case errors.Is(err, ErrNotFound):
		return "no record matches that key"
	}
	msg := err.Error()
	for _, prefix := range []string{"persist: ", "store: "} {
		msg = strings.TrimPrefix(msg, prefix)
	}
	return msg
}

// normalizeMessages trims, drops empties and de-duplicates while keeping order.
func normalizeMessages(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
