package event

import "fmt"

// Reason classifies why a payload could not be normalized.
type Reason string

// Normalization failure reasons.
const (
	ReasonMissingField     Reason = "missing_field"
	ReasonUnknownKind      Reason = "unknown_kind"
	ReasonMalformedContent Reason = "malformed_content"
)

// NormalizeError reports a payload that could not be turned into an Event.
// The request that carried it is rejected and never dispatched.
type NormalizeError struct {
	Reason Reason
	Detail string
}

func (e *NormalizeError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("normalize: %s", e.Reason)
	}
	return fmt.Sprintf("normalize: %s: %s", e.Reason, e.Detail)
}

func newError(reason Reason, format string, args ...any) *NormalizeError {
	return &NormalizeError{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
