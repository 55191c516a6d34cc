// Package policy assigns admission limits to groups of gRPC methods.
//
// A [Group] collects method patterns (exact, prefix or regular expression)
// and the [Limit] that applies to them. A [Resolver] maps a full method name
// such as "/ipcache.Lookup/ClearCache" to the best-matching group.
package policy

import (
	"regexp"
	"strings"
)

// Limit is a token-bucket admission limit: RPS requests per second on
// average with bursts of up to Burst requests.
type Limit struct {
	RPS   float64
	Burst int
}

type matchKind int

const (
	kindExact  matchKind = iota // highest priority
	kindPrefix                  // medium priority
	kindRegex                   // lowest priority
)

type pattern struct {
	kind matchKind
	text string
	re   *regexp.Regexp
}

// match reports whether p matches fullMethod and the length of the matched
// portion, which breaks ties between patterns of the same kind.
func (p pattern) match(fullMethod string) (bool, int) {
	switch p.kind {
	case kindExact:
		if fullMethod == p.text {
			return true, len(p.text)
		}
	case kindPrefix:
		if strings.HasPrefix(fullMethod, p.text) {
			return true, len(p.text)
		}
	case kindRegex:
		if loc := p.re.FindStringIndex(fullMethod); loc != nil {
			return true, loc[1] - loc[0]
		}
	}
	return false, 0
}

// MethodGroup is a named set of method patterns sharing one Limit.
type MethodGroup struct {
	name     string
	patterns []pattern
	limit    Limit
}

// Group starts a method group with the given name.
func Group(name string) *MethodGroup {
	return &MethodGroup{name: name}
}

// Name returns the group name.
func (g *MethodGroup) Name() string { return g.name }

// Exact matches fullMethod exactly.
func (g *MethodGroup) Exact(fullMethod string) *MethodGroup {
	g.patterns = append(g.patterns, pattern{kind: kindExact, text: fullMethod})
	return g
}

// Prefix matches every method starting with prefix, e.g. "/ipcache.Lookup/".
func (g *MethodGroup) Prefix(prefix string) *MethodGroup {
	g.patterns = append(g.patterns, pattern{kind: kindPrefix, text: prefix})
	return g
}

// Regex matches methods against expr. An invalid expression panics.
func (g *MethodGroup) Regex(expr string) *MethodGroup {
	g.patterns = append(g.patterns, pattern{kind: kindRegex, text: expr, re: regexp.MustCompile(expr)})
	return g
}

// Limit sets the admission limit for the group.
func (g *MethodGroup) Limit(rps float64, burst int) *MethodGroup {
	g.limit = Limit{RPS: rps, Burst: burst}
	return g
}
