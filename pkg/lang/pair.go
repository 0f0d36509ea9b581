package lang

import (
	"errors"
	"fmt"
)

// ErrEmptyFragment is returned when a pair is built from an empty fragment.
var ErrEmptyFragment = errors.New("empty fragment")

// PairingError reports two fragments that resolved to the same language and
// therefore cannot be translations of each other.
type PairingError struct {
	Language Language
	Left     string
	Right    string
}

// Error implements the error interface.
func (e *PairingError) Error() string {
	return fmt.Sprintf("pair with the same language %q: %q / %q", e.Language, e.Left, e.Right)
}

// Fragment is a piece of text tagged with its detected language.
type Fragment struct {
	Text     string   `json:"text"`
	Language Language `json:"language"`
}

// Pair is one aligned unit: Primary is in the canonical first language
// whenever that can be detected, Secondary holds its counterpart.
type Pair struct {
	Primary   Fragment `json:"primary"`
	Secondary Fragment `json:"secondary"`
}

// NewPair builds a pair and checks its invariants.
func NewPair(primary, secondary Fragment) (Pair, error) {
	if primary.Text == "" || secondary.Text == "" {
		return Pair{}, ErrEmptyFragment
	}
	if primary.Language != Unknown && primary.Language == secondary.Language {
		return Pair{}, &PairingError{
			Language: primary.Language,
			Left:     primary.Text,
			Right:    secondary.Text,
		}
	}
	return Pair{Primary: primary, Secondary: secondary}, nil
}

// Orderer turns candidate fragment pairs into canonical Pairs.
type Orderer struct {
	Classifier Classifier
	// Primary is the language that must come first in every pair.
	Primary Language
}

// DefaultOrderer puts the translation target (Russian) first.
func DefaultOrderer() Orderer {
	return Orderer{
		Classifier: DefaultClassifier(),
		Primary:    Russian,
	}
}

// Order classifies both fragments and swaps them when only the right one is
// in the primary language. Fragments of unknown language keep their order.
func (o Orderer) Order(left, right string) (Pair, error) {
	l := Fragment{Text: left, Language: o.Classifier.Classify(left)}
	r := Fragment{Text: right, Language: o.Classifier.Classify(right)}

	if r.Language == o.Primary && l.Language != o.Primary {
		l, r = r, l
	}
	return NewPair(l, r)
}
