package action

import (
	"fmt"
	"strings"
	"sync"
)

type ruleKind int

const (
	ruleLiteral ruleKind = iota
	rulePrefix
	ruleSuffix
)

// Rule is one entry of an accept list: a literal type, "prefix*" or
// "*suffix". A glob rule only matches types strictly longer than its fixed
// part, so "ANY*" does not match "ANY".
type Rule struct {
	raw  string
	kind ruleKind
	text string
}

// RuleError reports an accept rule with an unsupported wildcard placement.
type RuleError struct {
	Rule string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("Invalid rule: %s", e.Rule)
}

// ParseRule validates and compiles a single accept rule. An unbound
// generic type such as "SET:*" is a literal rule, not a glob.
func ParseRule(s string) (Rule, error) {
	if isGenericLiteral(s) {
		return Rule{raw: s, kind: ruleLiteral, text: s}, nil
	}
	switch n := strings.Count(s, wildcard); {
	case n == 0:
		return Rule{raw: s, kind: ruleLiteral, text: s}, nil
	case n == 1 && len(s) > 1 && strings.HasSuffix(s, wildcard):
		return Rule{raw: s, kind: rulePrefix, text: strings.TrimSuffix(s, wildcard)}, nil
	case n == 1 && len(s) > 1 && strings.HasPrefix(s, wildcard):
		return Rule{raw: s, kind: ruleSuffix, text: strings.TrimPrefix(s, wildcard)}, nil
	default:
		return Rule{}, &RuleError{Rule: s}
	}
}

func isGenericLiteral(s string) bool {
	name, scope, ok := strings.Cut(s, ":")
	return ok && scope == wildcard && name != "" && !strings.Contains(name, wildcard)
}

// String returns the rule as written.
func (r Rule) String() string {
	return r.raw
}

// Match reports whether t satisfies the rule.
func (r Rule) Match(t string) bool {
	switch r.kind {
	case rulePrefix:
		return len(t) > len(r.text) && strings.HasPrefix(t, r.text)
	case ruleSuffix:
		return len(t) > len(r.text) && strings.HasSuffix(t, r.text)
	default:
		return t == r.text
	}
}

// ParseRules compiles every rule, failing on the first invalid one.
func ParseRules(patterns []string) ([]Rule, error) {
	rules := make([]Rule, 0, len(patterns))
	for _, p := range patterns {
		r, err := ParseRule(p)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// MatchType reports whether t matches any of patterns. Invalid patterns are
// reported as errors at match time.
func MatchType(patterns []string, t string) (bool, error) {
	rules, err := ParseRules(patterns)
	if err != nil {
		return false, err
	}
	for _, r := range rules {
		if r.Match(t) {
			return true, nil
		}
	}
	return false, nil
}

// Matcher is a compiled accept list with a per-instance result cache.
// A nil accept list matches every type.
//
// Thread-safety: Matcher is safe for concurrent use.
type Matcher struct {
	patterns []string
	rules    []Rule
	all      bool

	mu    sync.Mutex
	cache map[string]bool
}

// NewMatcher compiles patterns. Pass nil to accept everything.
func NewMatcher(patterns []string) (*Matcher, error) {
	if patterns == nil {
		return &Matcher{all: true}, nil
	}
	rules, err := ParseRules(patterns)
	if err != nil {
		return nil, err
	}
	return &Matcher{
		patterns: append([]string{}, patterns...),
		rules:    rules,
		cache:    make(map[string]bool),
	}, nil
}

// Match reports whether t is accepted.
func (m *Matcher) Match(t string) bool {
	if m.all {
		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if hit, ok := m.cache[t]; ok {
		return hit
	}
	result := false
	for _, r := range m.rules {
		if r.Match(t) {
			result = true
			break
		}
	}
	m.cache[t] = result
	return result
}

// Patterns returns the accept list, or nil when everything is accepted.
func (m *Matcher) Patterns() []string {
	if m.all {
		return nil
	}
	return append([]string{}, m.patterns...)
}

// AcceptsAll reports whether the matcher has no accept list.
func (m *Matcher) AcceptsAll() bool {
	return m.all
}
