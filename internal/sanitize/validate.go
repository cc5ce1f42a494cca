// Package sanitize provides shared input validation for caller-supplied identifiers.
package sanitize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// MaxNamespaceLength is the maximum length of a namespace name.
const MaxNamespaceLength = 64

// ErrInvalidNamespace indicates the namespace name format is invalid.
var ErrInvalidNamespace = errors.New("invalid namespace name")

// namespacePattern matches names that start with a letter or digit and
// continue with letters, digits, '_', '-' or '.'.
var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidateNamespace checks that a namespace name is safe to store and to
// echo back in URLs and log lines.
func ValidateNamespace(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", ErrInvalidNamespace)
	}
	if len(name) > MaxNamespaceLength {
		return fmt.Errorf("%w: longer than %d characters", ErrInvalidNamespace, MaxNamespaceLength)
	}

	// Check for path traversal characters
	if strings.Contains(name, "..") {
		return fmt.Errorf("%w: contains '..'", ErrInvalidNamespace)
	}

	if !namespacePattern.MatchString(name) {
		return fmt.Errorf("%w: must be alphanumeric with '_', '-' or '.'", ErrInvalidNamespace)
	}
	return nil
}
