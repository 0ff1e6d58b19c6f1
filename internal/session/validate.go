package session

import (
	"errors"
	"fmt"
	"regexp"
)

// MaxNameLength bounds session names so socket paths stay short.
const MaxNameLength = 64

// ErrInvalidName is wrapped by every ValidateName failure.
var ErrInvalidName = errors.New("invalid session name")

// Names become directory names under the base dir and may not start with
// a dash, which the CLIs would read as a flag.
var nameRegexp = regexp.MustCompile(`^[a-z0-9_][a-z0-9_-]*$`)

func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case len(name) > MaxNameLength:
		return fmt.Errorf("%w %q: longer than %d characters", ErrInvalidName, name, MaxNameLength)
	case !nameRegexp.MatchString(name):
		return fmt.Errorf("%w %q: use lowercase letters, digits, '_' and '-', not starting with '-'", ErrInvalidName, name)
	}
	return nil
}
