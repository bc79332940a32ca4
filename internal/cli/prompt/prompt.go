// Package prompt wraps promptui for the interactive parts of the CLI,
// mainly the configuration wizard.
package prompt

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
)

// ErrAborted is returned when the user interrupts a prompt.
var ErrAborted = errors.New("aborted")

// IsAborted reports whether err means the user gave up on a prompt.
func IsAborted(err error) bool {
	return errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) || errors.Is(err, ErrAborted)
}

func wrap(err error) error {
	if err != nil && IsAborted(err) {
		return ErrAborted
	}
	return err
}

// Confirm asks a yes/no question. An empty answer picks defaultYes.
func Confirm(label string, defaultYes bool) (bool, error) {
	hint := "y/N"
	if defaultYes {
		hint = "Y/n"
	}

	p := promptui.Prompt{Label: fmt.Sprintf("%s [%s]", label, hint), IsConfirm: true}
	answer, err := p.Run()
	switch {
	case errors.Is(err, promptui.ErrAbort):
		// promptui reports "n" and empty input as ErrAbort.
		if answer == "" {
			return defaultYes, nil
		}
		return false, nil
	case err != nil:
		return false, wrap(err)
	}
	return ParseYes(answer), nil
}

// ConfirmWithForce skips the question when force is set.
func ConfirmWithForce(label string, force bool) (bool, error) {
	if force {
		return true, nil
	}
	return Confirm(label, false)
}

// ParseYes reports whether answer is an affirmative reply.
func ParseYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}

// Input asks for free text. validate may be nil.
func Input(label, defaultValue string, validate func(string) error) (string, error) {
	p := promptui.Prompt{Label: label, Default: defaultValue, Validate: validate}
	result, err := p.Run()
	return strings.TrimSpace(result), wrap(err)
}

// Int asks for an integer in [min, max].
func Int(label string, defaultValue, min, max int) (int, error) {
	result, err := Input(label, strconv.Itoa(defaultValue), IntRange(min, max))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(result)
}

// Duration asks for a duration such as "90s" or "6m". A bare number is
// taken as seconds.
func Duration(label string, defaultValue time.Duration) (time.Duration, error) {
	result, err := Input(label, defaultValue.String(), ValidateDuration)
	if err != nil {
		return 0, err
	}
	return ParseDuration(result)
}

// Secret asks for a masked value of at least minLength characters.
func Secret(label string, minLength int) (string, error) {
	p := promptui.Prompt{Label: label, Mask: '*', Validate: MinLength(minLength)}
	result, err := p.Run()
	return result, wrap(err)
}

// Option is one entry of a Select list.
type Option struct {
	Label       string
	Value       string
	Description string
}

// Select asks the user to pick one option and returns its Value.
func Select(label string, options []Option) (string, error) {
	templates := &promptui.SelectTemplates{
		Label:    "{{ . }}",
		Active:   "> {{ .Label | cyan }}",
		Inactive: "  {{ .Label }}",
		Selected: "* {{ .Label | green }}",
		Details:  `{{ with .Description }}{{ "Description:" | faint }}	{{ . }}{{ end }}`,
	}

	p := promptui.Select{Label: label, Items: options, Templates: templates, Size: 8}
	i, _, err := p.Run()
	if err != nil {
		return "", wrap(err)
	}
	return options[i].Value, nil
}

// IntRange returns a validator accepting integers in [min, max].
func IntRange(min, max int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return errors.New("must be an integer")
		}
		if n < min || n > max {
			return fmt.Errorf("must be between %d and %d", min, max)
		}
		return nil
	}
}

// MinLength returns a validator requiring at least n characters.
func MinLength(n int) func(string) error {
	return func(s string) error {
		if len(s) < n {
			return fmt.Errorf("must be at least %d characters", n)
		}
		return nil
	}
}

// NonEmpty rejects blank input.
func NonEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("value is required")
	}
	return nil
}

// ValidateDuration accepts anything ParseDuration accepts.
func ValidateDuration(s string) error {
	_, err := ParseDuration(s)
	return err
}

// ParseDuration parses a non-negative duration, reading a bare integer as
// seconds.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0, errors.New("must not be negative")
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	if d < 0 {
		return 0, errors.New("must not be negative")
	}
	return d, nil
}
