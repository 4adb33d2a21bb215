package scanner

import (
	"github.com/bmatcuk/doublestar/v4"
)

// Matcher decides which basenames and subdirectories a scan keeps.
type Matcher struct {
	patterns []string
	dirs     map[string]struct{}
}

// NewMatcher builds a Matcher. An empty pattern list matches every file and an
// empty dir list allows descending into every subdirectory.
func NewMatcher(patterns, includeDirs []string) *Matcher {
	m := &Matcher{patterns: append([]string(nil), patterns...)}
	if len(includeDirs) > 0 {
		m.dirs = make(map[string]struct{}, len(includeDirs))
		for _, d := range includeDirs {
			m.dirs[d] = struct{}{}
		}
	}
	return m
}

// MatchFile reports whether a basename matches at least one pattern.
// Matching is case-sensitive shell-glob and never sees directory components,
// so "*" also matches dotfiles.
func (m *Matcher) MatchFile(name string) bool {
	if len(m.patterns) == 0 {
		return true
	}
	for _, pattern := range m.patterns {
		// Invalid patterns are rejected at config load; here they never match.
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

// Descend reports whether a subdirectory with the given basename is walked.
func (m *Matcher) Descend(name string) bool {
	if m.dirs == nil {
		return true
	}
	_, ok := m.dirs[name]
	return ok
}
