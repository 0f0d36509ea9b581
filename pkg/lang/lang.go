// Package lang classifies text fragments by script and orders bilingual
// fragment pairs so the canonical primary language always comes first.
package lang

import (
	"unicode"
)

// Language is an ISO 639-3 style language code. The zero value is Unknown.
type Language string

const (
	// Unknown marks a fragment with no characters from either known script.
	Unknown Language = ""

	// Russian is language A of the corpus (alphabetic, Cyrillic script).
	Russian Language = "rus"

	// Chinese is language B of the corpus (ideographic, Han script).
	Chinese Language = "zho"
)

// cjkUnified covers the CJK Unified Ideographs block (U+4E00..U+9FFF).
var cjkUnified = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x4e00, Hi: 0x9fff, Stride: 1},
	},
}

// Script binds a language to the character ranges that identify it.
type Script struct {
	Language Language
	Table    *unicode.RangeTable
}

// Classifier detects the language of a fragment from the scripts it contains.
// When a fragment contains characters from both scripts, B wins.
type Classifier struct {
	A Script
	B Script
}

// DefaultClassifier returns the Russian (A) / Chinese (B) classifier.
func DefaultClassifier() Classifier {
	return Classifier{
		A: Script{Language: Russian, Table: unicode.Cyrillic},
		B: Script{Language: Chinese, Table: cjkUnified},
	}
}

// Classify returns the language of fragment, or Unknown.
func (c Classifier) Classify(fragment string) Language {
	var hasA bool
	for _, r := range fragment {
		if c.B.Table != nil && unicode.Is(c.B.Table, r) {
			return c.B.Language
		}
		if !hasA && c.A.Table != nil && unicode.Is(c.A.Table, r) {
			hasA = true
		}
	}
	if hasA {
		return c.A.Language
	}
	return Unknown
}

// Knows reports whether l is one of the classifier's two languages.
func (c Classifier) Knows(l Language) bool {
	return l != Unknown && (l == c.A.Language || l == c.B.Language)
}

// Other returns the counterpart of l, or Unknown if l is not known.
func (c Classifier) Other(l Language) Language {
	switch l {
	case c.A.Language:
		return c.B.Language
	case c.B.Language:
		return c.A.Language
	default:
		return Unknown
	}
}
