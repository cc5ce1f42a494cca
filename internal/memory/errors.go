package memory

import (
	"errors"
	"fmt"

	"github.com/fyrsmithlabs/memoryd/internal/provider"
)

var (
	// ErrNotFound indicates a missing namespace, slug reference or session.
	ErrNotFound = errors.New("not found")

	// ErrValidation indicates a request that can never succeed as sent.
	ErrValidation = errors.New("validation failed")
)

// Kind is the error class an operation failure falls into.
type Kind string

const (
	KindNone       Kind = ""
	KindNotFound   Kind = "not_found"
	KindValidation Kind = "validation"
	KindProvider   Kind = "provider"
	KindUnexpected Kind = "unexpected"
)

// Classify maps err onto the error taxonomy.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, provider.ErrProvider):
		return KindProvider
	default:
		return KindUnexpected
	}
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func namespaceNotFound(namespace string) error {
	return notFoundf("namespace '%s' not found", namespace)
}

func referenceNotFound(role, slug, namespace string) error {
	return notFoundf("%s '%s' not found in namespace '%s'", role, slug, namespace)
}

func checkDimension(vec []float32, want int) error {
	if vec == nil || len(vec) == want {
		return nil
	}
	return validationf("embedding dimension mismatch: expected %d, got %d", want, len(vec))
}

// checkVector is checkDimension plus a zero-norm check. Cosine distance is
// undefined for the zero vector.
func checkVector(vec []float32, want int) error {
	if err := checkDimension(vec, want); err != nil {
		return err
	}
	if vec == nil {
		return nil
	}
	for _, v := range vec {
		if v != 0 {
			return nil
		}
	}
	return validationf("embedding must not be the zero vector")
}
