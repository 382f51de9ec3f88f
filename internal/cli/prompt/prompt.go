// Package prompt wraps promptui for the interactive client.
package prompt

import (
	"errors"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user aborts a prompt (Ctrl+C or Ctrl+D).
var ErrAborted = errors.New("aborted")

// IsAborted returns true if the error indicates the user aborted.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) ||
		errors.Is(err, promptui.ErrEOF) || errors.Is(err, ErrAborted)
}

// wrapError converts promptui interrupt/abort errors to ErrAborted for
// consistent handling.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Line prompts for one command line. Empty input is allowed.
func Line(label string) (string, error) {
	prompt := promptui.Prompt{
		Label:       label,
		AllowEdit:   true,
		HideEntered: false,
	}

	result, err := prompt.Run()
	return result, wrapError(err)
}
