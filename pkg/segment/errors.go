package segment

import (
	"errors"
	"fmt"

	"github.com/Sternrassler/vk-bilingual-corpus/pkg/lang"
)

// Segmentation failures. Every error returned by Segment is an *Error that
// wraps one of these or a *lang.PairingError.
var (
	// ErrMissingMarker is returned when the post does not carry the corpus marker.
	ErrMissingMarker = errors.New("corpus marker not found")

	// ErrUnmatchedAside is returned when an aside lead phrase is found but its
	// blank-line delimited block is not closed on both sides.
	ErrUnmatchedAside = errors.New("aside block is not delimited")

	// ErrOddParagraphs is returned when paragraphs cannot be split into pairs.
	ErrOddParagraphs = errors.New("odd number of paragraphs")

	// ErrEmptyPost is returned when no paragraphs remain after cleanup.
	ErrEmptyPost = errors.New("post has no paragraphs")
)

// Reason classifies a segmentation failure for logs and metrics.
type Reason string

const (
	ReasonMissingMarker  Reason = "missing_marker"
	ReasonUnmatchedAside Reason = "unmatched_aside"
	ReasonOddParagraphs  Reason = "odd_paragraphs"
	ReasonEmptyPost      Reason = "empty_post"
	ReasonPairing        Reason = "pairing"
	ReasonUnknown        Reason = "unknown"
)

// Error is the failure of a whole post. Segmentation never returns a partial
// result alongside it.
type Error struct {
	Reason Reason
	// Paragraphs is the number of paragraphs left after cleanup, when known.
	Paragraphs int
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Paragraphs > 0 {
		return fmt.Sprintf("segmentation failed (%s, %d paragraphs): %v", e.Reason, e.Paragraphs, e.Err)
	}
	return fmt.Sprintf("segmentation failed (%s): %v", e.Reason, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// newError derives the reason from the wrapped cause.
func newError(err error, paragraphs int) *Error {
	return &Error{
		Reason:     reasonOf(err),
		Paragraphs: paragraphs,
		Err:        err,
	}
}

func reasonOf(err error) Reason {
	var pe *lang.PairingError
	switch {
	case errors.Is(err, ErrMissingMarker):
		return ReasonMissingMarker
	case errors.Is(err, ErrUnmatchedAside):
		return ReasonUnmatchedAside
	case errors.Is(err, ErrOddParagraphs):
		return ReasonOddParagraphs
	case errors.Is(err, ErrEmptyPost):
		return ReasonEmptyPost
	case errors.As(err, &pe):
		return ReasonPairing
	default:
		return ReasonUnknown
	}
}

// ReasonOf returns the Reason carried by err, or ReasonUnknown.
func ReasonOf(err error) Reason {
	var se *Error
	if errors.As(err, &se) {
		return se.Reason
	}
	return ReasonUnknown
}
