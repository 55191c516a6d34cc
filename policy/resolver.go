package policy

// Resolver maps full method names to method groups.
type Resolver struct {
	groups []*MethodGroup
}

// NewResolver creates a Resolver over groups. Nil groups are ignored.
func NewResolver(groups ...*MethodGroup) *Resolver {
	r := &Resolver{}
	for _, g := range groups {
		if g != nil {
			r.groups = append(r.groups, g)
		}
	}
	return r
}

// Len returns the number of groups.
func (r *Resolver) Len() int {
	if r == nil {
		return 0
	}
	return len(r.groups)
}

// Resolve returns the group that best matches fullMethod.
//
// Exact patterns beat prefix patterns, which beat regular expressions.
// Among patterns of the same kind the longer match wins, and on a full tie
// the group registered first wins. A nil Resolver matches nothing.
func (r *Resolver) Resolve(fullMethod string) (name string, limit Limit, ok bool) {
	if r == nil {
		return "", Limit{}, false
	}

	bestKind := matchKind(-1)
	bestLen := -1
	for _, g := range r.groups {
		for _, p := range g.patterns {
			matched, n := p.match(fullMethod)
			if !matched {
				continue
			}
			if bestKind < 0 || p.kind < bestKind || (p.kind == bestKind && n > bestLen) {
				bestKind, bestLen = p.kind, n
				name, limit, ok = g.name, g.limit, true
			}
		}
	}
	return name, limit, ok
}
