// Package provider holds what the embedding, summarization and reranking
// provider families share: the availability contract, the error types and a
// JSON-over-HTTP client with bounded timeouts.
//
// Availability is a static precondition computed at construction from the
// provider's configuration. It is never a live health probe.
package provider

// Availability is implemented by every provider variant.
type Availability interface {
	// Name identifies the backend, e.g. "openai" or "none".
	Name() string
	// Available reports whether calls can be attempted.
	Available() bool
	// UnavailableReason explains why Available is false. Empty when available.
	UnavailableReason() string
}

// Static is an embeddable Availability computed once at construction.
type Static struct {
	name   string
	reason string
}

// NewStatic returns an Availability that is available when reason is empty.
func NewStatic(name, reason string) Static {
	return Static{name: name, reason: reason}
}

func (s Static) Name() string              { return s.name }
func (s Static) Available() bool           { return s.reason == "" }
func (s Static) UnavailableReason() string { return s.reason }

// Check returns an Unavailable error when s cannot serve calls.
func (s Static) Check() error {
	if s.reason != "" {
		return Unavailable(s.name, s.reason)
	}
	return nil
}
