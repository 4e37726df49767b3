// Package intent maps a free-text user message to the retrieval action the
// assistant should run before calling the model.
package intent

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

type ActionType string

const (
	ActionSearch  ActionType = "search"
	ActionDetails ActionType = "details"
	ActionPopular ActionType = "popular"
)

// Action is what the client sends alongside a message. Query is set for
// search, BookID for details.
type Action struct {
	Type   ActionType `json:"type"`
	Query  string     `json:"query,omitempty"`
	BookID string     `json:"bookId,omitempty"`
}

// minQueryLen is the shortest query worth searching for.
const minQueryLen = 3

var searchPhrases = []string{
	"find books about",
	"find books on",
	"find book by",
	"search for",
	"looking for",
	"books by",
	"book by",
	"novels by",
	"novel by",
	"books about",
	"book about",
	"books on",
	"book on",
	"find",
	"search",
}

var genres = []string{
	"fiction",
	"non-fiction",
	"science fiction",
	"sci-fi",
	"fantasy",
	"mystery",
	"thriller",
	"romance",
	"horror",
	"biography",
	"autobiography",
	"history",
	"poetry",
	"drama",
	"adventure",
}

var popularKeywords = []string{
	"popular",
	"recommend",
	"best seller",
	"bestseller",
	"most read",
	"top books",
}

var titlePattern = regexp.MustCompile(`(?i)(?:details|availability|about|info|tell me about|do you have)(.*?)(book|novel|title)(.*)`)

// Rule inspects a message and its lower-cased form. It returns nil when it
// does not apply.
type Rule struct {
	Name  string
	Match func(text, lower string) *Action
}

// DefaultRules in precedence order.
var DefaultRules = []Rule{
	{Name: "search-phrase", Match: matchSearchPhrase},
	{Name: "genre", Match: matchGenre},
	{Name: "popular", Match: matchPopular},
	{Name: "title", Match: matchTitle},
}

type Classifier struct {
	rules []Rule
}

func NewClassifier(rules ...Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules
	}
	return &Classifier{rules: rules}
}

// Classify returns the action of the first matching rule, or nil.
func (c *Classifier) Classify(text string) *Action {
	lower := strings.ToLower(text)
	for _, rule := range c.rules {
		if action := rule.Match(text, lower); action != nil {
			return action
		}
	}
	return nil
}

var defaultClassifier = NewClassifier()

// Classify runs the default rules.
func Classify(text string) *Action {
	return defaultClassifier.Classify(text)
}

func matchSearchPhrase(text, lower string) *Action {
	for _, phrase := range searchPhrases {
		idx := strings.Index(lower, phrase)
		if idx < 0 {
			continue
		}
		query := strings.TrimSpace(text[originalOffset(text, idx+len(phrase)):])
		if utf8.RuneCountInString(query) >= minQueryLen {
			return &Action{Type: ActionSearch, Query: query}
		}
	}
	return nil
}

// originalOffset maps a byte offset in strings.ToLower(text) back onto text.
// Lowering can change the encoded length of a rune, so offsets differ.
func originalOffset(text string, lowerOffset int) int {
	n := 0
	for i, r := range text {
		if n >= lowerOffset {
			return i
		}
		n += utf8.RuneLen(unicode.ToLower(r))
	}
	return len(text)
}

func matchGenre(_, lower string) *Action {
	for _, genre := range genres {
		if strings.Contains(lower, genre) {
			return &Action{Type: ActionSearch, Query: genre}
		}
	}
	return nil
}

func matchPopular(_, lower string) *Action {
	for _, kw := range popularKeywords {
		if strings.Contains(lower, kw) {
			return &Action{Type: ActionPopular}
		}
	}
	return nil
}

func matchTitle(_, lower string) *Action {
	m := titlePattern.FindStringSubmatch(lower)
	if m == nil {
		return nil
	}
	title := strings.TrimSpace(m[3])
	if utf8.RuneCountInString(title) < minQueryLen {
		return nil
	}
	return &Action{Type: ActionSearch, Query: title}
}
