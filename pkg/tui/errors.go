package tui

import "errors"

var (
	// ErrAborted signals the user aborted input (e.g., Ctrl+C).
	ErrAborted = errors.New("tui: aborted")
	// ErrQuit is returned when the user leaves the wizard from the step menu.
	ErrQuit = errors.New("tui: quit")
)
