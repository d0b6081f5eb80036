// Package prompt provides interactive terminal confirmation for CLI commands.
package prompt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user aborts a prompt (Ctrl+C).
var ErrAborted = errors.New("aborted")

// IsAborted returns true if the error indicates the user aborted (Ctrl+C).
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) || errors.Is(err, ErrAborted)
}

// Confirm prompts the user for yes/no confirmation.
// Returns true if the user confirms, false otherwise.
// Returns ErrAborted if the user presses Ctrl+C.
func Confirm(label string, defaultYes bool) (bool, error) {
	defaultStr := "y/N"
	if defaultYes {
		defaultStr = "Y/n"
	}

	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("%s [%s]", label, defaultStr),
		IsConfirm: true,
		Default:   "",
	}

	result, err := prompt.Run()
	if err != nil {
		// Ctrl+C should abort
		if err == promptui.ErrInterrupt {
			return false, ErrAborted
		}
		// promptui returns ErrAbort for "n" response
		if err == promptui.ErrAbort {
			return false, nil
		}
		// Empty input uses default
		if result == "" {
			return defaultYes, nil
		}
		return false, err
	}

	return strings.ToLower(result) == "y" || strings.ToLower(result) == "yes", nil
}

// ConfirmWithForce returns true immediately if force is true,
// otherwise prompts for confirmation.
func ConfirmWithForce(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	return Confirm(label, false)
}
