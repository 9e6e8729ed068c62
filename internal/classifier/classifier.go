// Package classifier derives a PQRS category from free-text subjects.
package classifier

import (
	"strings"
	"unicode"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

// Category is one classification bucket and its trigger keywords.
type Category struct {
	Name     string
	Keywords []string
}

// RuleSet is the ordered list of categories evaluated by the Classifier.
type RuleSet struct {
	Default    string
	Categories []Category
}

type compiledCategory struct {
	name     string
	keywords map[string]struct{}
}

// Classifier maps subjects to categories. It is immutable after construction and safe
// for concurrent use.
type Classifier struct {
	fallback   string
	categories []compiledCategory
}

// New compiles the rule set. Keywords are lowercased; categories keep their order.
func New(rules RuleSet) *Classifier {
	fallback := strings.TrimSpace(rules.Default)
	if fallback == "" {
		fallback = domain.DefaultCategory
	}
	compiled := make([]compiledCategory, 0, len(rules.Categories))
	for _, cat := range rules.Categories {
		set := make(map[string]struct{}, len(cat.Keywords))
		for _, kw := range cat.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				set[kw] = struct{}{}
			}
		}
		compiled = append(compiled, compiledCategory{name: cat.Name, keywords: set})
	}
	return &Classifier{fallback: fallback, categories: compiled}
}

// Classify returns the category for subject. When several categories match, the last
// one in rule-set order wins.
func (c *Classifier) Classify(subject string) string {
	tokens := Tokenize(subject)
	result := c.fallback
	for _, cat := range c.categories {
		if cat.matchesAny(tokens) {
			result = cat.name
		}
	}
	return result
}

// Default returns the fallback category.
func (c *Classifier) Default() string {
	return c.fallback
}

func (c compiledCategory) matchesAny(tokens []string) bool {
	for _, tok := range tokens {
		if _, ok := c.keywords[tok]; ok {
			return true
		}
	}
	return false
}

// Tokenize lowercases text and splits it into words made of letters and digits.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
