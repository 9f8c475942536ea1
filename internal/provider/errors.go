package provider

import "fmt"

// TransportError wraps a network or API failure from one backend so the
// fallback loop can tell it apart from a usable-but-empty reply.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// MalformedResponseError marks a reply that arrived but carried no usable
// text.
type MalformedResponseError struct {
	Provider string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("provider %s returned no usable content", e.Provider)
}

// ExhaustedError is returned when every backend in the queue failed.
// LastErr holds the final attempt's failure for logging.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf("all %d providers failed, last error: %v", e.Attempts, e.LastErr)
	}
	return fmt.Sprintf("all %d providers failed", e.Attempts)
}

func (e *ExhaustedError) Unwrap() error { return e.LastErr }
