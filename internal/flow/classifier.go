package flow

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Intent is the coarse meaning assigned to an inbound text.
type Intent int

const (
	IntentNone Intent = iota
	IntentGreeting
	IntentHelp
)

func (i Intent) String() string {
	switch i {
	case IntentGreeting:
		return "greeting"
	case IntentHelp:
		return "help"
	default:
		return "none"
	}
}

// Classifier maps free text to an Intent. Implementations must accept any
// input, including empty strings.
type Classifier interface {
	Classify(text string) Intent
}

var (
	DefaultGreetings = []string{
		"oi", "olá", "ola", "bom dia", "boa tarde", "boa noite",
		"hello", "hi", "reiniciar", "começar", "start", "início",
	}
	DefaultHelp = []string{"ajuda", "help", "menu"}
)

// KeywordClassifier matches normalized text against keyword lists. A keyword
// matches only the whole text, so "oi, meu CPF é ..." is not a greeting.
type KeywordClassifier struct {
	greetings []string
	help      []string
}

// NewKeywordClassifier builds a classifier from the given lists. Keywords are
// normalized once here so callers may pass them accented or capitalized.
func NewKeywordClassifier(greetings, help []string) *KeywordClassifier {
	return &KeywordClassifier{
		greetings: normalizeAll(greetings),
		help:      normalizeAll(help),
	}
}

// DefaultClassifier returns a classifier over DefaultGreetings and DefaultHelp.
func DefaultClassifier() *KeywordClassifier {
	return NewKeywordClassifier(DefaultGreetings, DefaultHelp)
}

func (c *KeywordClassifier) Classify(text string) Intent {
	n := Normalize(text)
	if n == "" {
		return IntentNone
	}
	if matchesAny(n, c.help) {
		return IntentHelp
	}
	if matchesAny(n, c.greetings) {
		return IntentGreeting
	}
	return IntentNone
}

// Normalize lowercases text, strips diacritics, turns every non letter or
// digit into a space and collapses runs of spaces.
func Normalize(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, text)
	if err != nil {
		stripped = text
	}
	stripped = strings.ToLower(stripped)

	fields := strings.FieldsFunc(stripped, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}

func matchesAny(normalized string, keywords []string) bool {
	for _, kw := range keywords {
		if normalized == kw {
			return true
		}
	}
	return false
}

func normalizeAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if n := Normalize(s); n != "" {
			out = append(out, n)
		}
	}
	return out
}
