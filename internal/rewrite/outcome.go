package rewrite

import (
	"fmt"

	"github.com/dativo-io/cloak/internal/llm"
)

// Kind is the closed set of rewrite results.
type Kind string

// Outcome kinds.
const (
	KindSuccess      Kind = "success"
	KindBlocked      Kind = "blocked"
	KindUnavailable  Kind = "unavailable"
	KindTimeout      Kind = "timeout"
	KindServiceError Kind = "service_error"
)

// Fallback messages returned in place of a rewrite.
const (
	MessageBlockedSafety     = "AI response blocked by content safety filters"
	MessageBlockedRecitation = "AI response blocked because it resembled existing content"
	MessageBlockedRefusal    = "AI declined to rewrite this text"
	MessageUnavailable       = "AI unavailable"
	MessageTimeout           = "AI request timed out"
	MessageServiceError      = "AI service error"
)

// Outcome is the result of one rewrite. Only the fields of its Kind are set.
type Outcome struct {
	Kind Kind
	// Text is the normalized rewrite (KindSuccess).
	Text string
	// Reason is one of llm.BlockSafety, llm.BlockRecitation, llm.BlockRefusal (KindBlocked).
	Reason string
	// Cause is the transport error (KindUnavailable).
	Cause error
	// Status and Detail describe a provider error (KindServiceError).
	// Status is 0 when the provider answered without an HTTP error.
	Status int
	Detail string
	// Attempts is the number of provider calls made.
	Attempts int
}

// OK reports whether the rewrite succeeded.
func (o Outcome) OK() bool { return o.Kind == KindSuccess }

// Message returns the rewritten text on success and a human-readable
// fallback for every other kind.
func (o Outcome) Message() string {
	switch o.Kind {
	case KindSuccess:
		return o.Text
	case KindBlocked:
		switch o.Reason {
		case llm.BlockRecitation:
			return MessageBlockedRecitation
		case llm.BlockRefusal:
			return MessageBlockedRefusal
		default:
			return MessageBlockedSafety
		}
	case KindTimeout:
		return MessageTimeout
	case KindServiceError:
		if o.Status != 0 {
			return fmt.Sprintf("%s (status %d)", MessageServiceError, o.Status)
		}
		return MessageServiceError
	default:
		return MessageUnavailable
	}
}
