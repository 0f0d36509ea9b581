package segment

import (
	"fmt"
	"regexp"
	"strings"
)

// Rule removes one kind of noise block from a post's text. Rules are applied
// once each, in order.
type Rule interface {
	Name() string
	Apply(text string) (string, error)
}

// Lead phrases of the "phrase of the day" aside. The Russian pattern keeps
// the misspelled "словосочетение" seen in published posts.
const (
	KeyPhrasePattern   = `(?i)ключев(ая|ое) (фраза|слово|словосочетание|словосочетение)`
	DailyPhrasePattern = `(每日|今日)(一句|一词|词汇)`
)

// AsideRule removes the blank-line delimited block that contains its lead
// phrase. The block must be closed on both sides: a lead phrase in the first
// block or in the last block is an error rather than a guessed removal.
type AsideRule struct {
	name string
	lead *regexp.Regexp
}

// NewAsideRule compiles an aside rule.
func NewAsideRule(name, leadPattern string) (*AsideRule, error) {
	re, err := regexp.Compile(leadPattern)
	if err != nil {
		return nil, fmt.Errorf("compile %s lead phrase: %w", name, err)
	}
	return &AsideRule{name: name, lead: re}, nil
}

// MustAsideRule is NewAsideRule for patterns known at compile time.
func MustAsideRule(name, leadPattern string) *AsideRule {
	r, err := NewAsideRule(name, leadPattern)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultRules returns the aside rules for both languages, Russian first.
func DefaultRules() []Rule {
	return []Rule{
		MustAsideRule("key-phrase", KeyPhrasePattern),
		MustAsideRule("daily-phrase", DailyPhrasePattern),
	}
}

// Name returns the rule name.
func (r *AsideRule) Name() string {
	return r.name
}

// Apply returns text without the aside block, or text unchanged if the lead
// phrase does not occur. text must already be canonicalized.
func (r *AsideRule) Apply(text string) (string, error) {
	loc := r.lead.FindStringIndex(text)
	if loc == nil {
		return text, nil
	}

	open := strings.LastIndex(text[:loc[0]], blankLine)
	end := strings.Index(text[loc[1]:], blankLine)
	if open < 0 || end < 0 {
		return "", fmt.Errorf("%s at byte %d: %w", r.name, loc[0], ErrUnmatchedAside)
	}

	closeAt := loc[1] + end
	return text[:open] + blankLine + text[closeAt+len(blankLine):], nil
}

const blankLine = "\n\n"

// canonicalize normalizes line endings and empties whitespace-only lines so
// that every paragraph break reads as "\n\n".
func canonicalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
		}
	}
	return strings.Join(lines, "\n")
}
