// Package exclude matches page hostnames against the user's site-exclusion
// patterns.
//
// A pattern containing '*' is a wildcard rule: each '*' matches any run of
// characters, everything else is literal, and the whole hostname must match
// (case-insensitive). A pattern without '*' matches any hostname that
// contains it, case-insensitively.
package exclude

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

type rule struct {
	re  *regexp.Regexp
	sub string
}

// List is a compiled, ordered set of exclusion patterns.
type List struct {
	rules []rule
}

// Compile builds a List. Blank patterns are ignored.
func Compile(patterns []string) (*List, error) {
	l := &List{rules: make([]rule, 0, len(patterns))}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.Contains(p, "*") {
			l.rules = append(l.rules, rule{sub: strings.ToLower(p)})
			continue
		}
		parts := strings.Split(p, "*")
		for i := range parts {
			parts[i] = regexp.QuoteMeta(parts[i])
		}
		re, err := regexp.Compile("(?i)^" + strings.Join(parts, ".*") + "$")
		if err != nil {
			return nil, errors.Wrapf(err, "exclusion pattern %q", p)
		}
		l.rules = append(l.rules, rule{re: re})
	}
	return l, nil
}

// Match reports whether host is excluded.
func (l *List) Match(host string) bool {
	if l == nil {
		return false
	}
	lower := strings.ToLower(host)
	for _, r := range l.rules {
		if r.re != nil {
			if r.re.MatchString(host) {
				return true
			}
			continue
		}
		if strings.Contains(lower, r.sub) {
			return true
		}
	}
	return false
}

// Len returns the number of active rules.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.rules)
}
