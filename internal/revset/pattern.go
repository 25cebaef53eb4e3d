package revset

import (
	"fmt"
	"path"
	"strings"
)

// PatternKind selects how a string pattern matches.
type PatternKind int

const (
	PatternAll PatternKind = iota
	PatternExact
	PatternGlob
	PatternSubstring
)

// Pattern is a string matcher used by bookmarks(), description() and friends.
type Pattern struct {
	Kind  PatternKind
	Value string
}

// ParsePattern parses "kind:value". A value without a known kind prefix
// uses fallback.
func ParsePattern(s string, fallback PatternKind) Pattern {
	if kind, value, ok := strings.Cut(s, ":"); ok {
		if k, known := patternKinds[kind]; known {
			return Pattern{Kind: k, Value: value}
		}
	}
	return Pattern{Kind: fallback, Value: s}
}

var patternKinds = map[string]PatternKind{
	"exact":     PatternExact,
	"glob":      PatternGlob,
	"substring": PatternSubstring,
}

// PatternFromNode converts a function argument into a pattern.
func PatternFromNode(n *Node, fallback PatternKind) (Pattern, error) {
	switch n.Kind {
	case KindPattern:
		k, ok := patternKinds[n.Name]
		if !ok {
			return Pattern{}, fmt.Errorf("invalid string pattern kind %q", n.Name)
		}
		if k == PatternGlob {
			if _, err := path.Match(n.Value, ""); err != nil {
				return Pattern{}, fmt.Errorf("invalid glob %q: %w", n.Value, err)
			}
		}
		return Pattern{Kind: k, Value: n.Value}, nil
	case KindSymbol, KindString:
		return Pattern{Kind: fallback, Value: n.Name}, nil
	}
	return Pattern{}, fmt.Errorf("expected a string pattern, got %s", n)
}

// Match reports whether s matches the pattern.
func (p Pattern) Match(s string) bool {
	switch p.Kind {
	case PatternAll:
		return true
	case PatternExact:
		return s == p.Value
	case PatternGlob:
		ok, _ := path.Match(p.Value, s)
		return ok
	case PatternSubstring:
		return strings.Contains(s, p.Value)
	}
	return false
}

func (p Pattern) String() string {
	switch p.Kind {
	case PatternAll:
		return "*"
	case PatternExact:
		return "exact:" + quote(p.Value)
	case PatternGlob:
		return "glob:" + quote(p.Value)
	}
	return "substring:" + quote(p.Value)
}
