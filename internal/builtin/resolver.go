package builtin

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/memris/internal/ir"
	"github.com/roach88/memris/internal/meta"
)

// Score ranks a non-exact match. Lower TotalDistance is more specific;
// ExactCount breaks ties.
type Score struct {
	ExactCount    int
	TotalDistance int
}

func (s Score) String() string {
	return fmt.Sprintf("exact=%d, distance=%d", s.ExactCount, s.TotalDistance)
}

// Resolver picks the built-in signature a method dispatches to. Decisions
// are memoized per table and method signature. Safe for concurrent use.
type Resolver struct {
	mu    sync.Mutex
	cache map[string]decision
}

type decision struct {
	op    ir.OpCode
	found bool
	err   error
}

// NewResolver creates a Resolver with an empty decision cache.
func NewResolver() *Resolver {
	return &Resolver{cache: make(map[string]decision)}
}

// Resolve returns the op code of the single best matching signature in
// table. found is false when nothing matches. Ties are ambiguity errors
// naming every tied candidate.
func (r *Resolver) Resolve(method *meta.Method, table Table) (ir.OpCode, bool, error) {
	key := cacheKey(method, table)

	r.mu.Lock()
	d, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return d.op, d.found, d.err
	}

	op, found, err := resolve(method, table.Signatures)
	r.mu.Lock()
	r.cache[key] = decision{op: op, found: found, err: err}
	r.mu.Unlock()
	return op, found, err
}

func cacheKey(method *meta.Method, table Table) string {
	var b strings.Builder
	b.WriteString(table.Name)
	b.WriteByte('|')
	b.WriteString(method.Name)
	for _, p := range method.Params {
		fmt.Fprintf(&b, "|%s@%p", p.Type.Name, p.Type)
	}
	return b.String()
}

type scored struct {
	sig   Signature
	score Score
}

func resolve(method *meta.Method, signatures []Signature) (ir.OpCode, bool, error) {
	var candidates []Signature
	for _, s := range signatures {
		if s.Key.Matches(method) {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return 0, false, nil
	}

	var exact []Signature
	for _, s := range candidates {
		if s.Key.IsExact(method) {
			exact = append(exact, s)
		}
	}
	switch {
	case len(exact) == 1:
		return exact[0].Op, true, nil
	case len(exact) > 1:
		return 0, false, ambiguous(method, exact, "multiple exact built-in matches")
	}

	ranked := make([]scored, len(candidates))
	for i, s := range candidates {
		ranked[i] = scored{sig: s, score: specificity(s.Key, method)}
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		if c := cmp.Compare(a.score.TotalDistance, b.score.TotalDistance); c != 0 {
			return c
		}
		return cmp.Compare(b.score.ExactCount, a.score.ExactCount)
	})

	best := ranked[0]
	var tied []Signature
	for _, sc := range ranked {
		if sc.score == best.score {
			tied = append(tied, sc.sig)
		}
	}
	if len(tied) > 1 {
		return 0, false, ambiguous(method, tied,
			fmt.Sprintf("ambiguous built-in match (tie on specificity score %s)", best.score))
	}
	return best.sig.Op, true, nil
}

func specificity(key MethodKey, method *meta.Method) Score {
	var s Score
	for i, expected := range key.Params {
		actual := method.Params[i].Type.Boxed()
		switch {
		case expected.IsWildcard():
			// More specific than Object, less specific than any concrete type.
			s.TotalDistance++
		case expected.Boxed() == actual:
			s.ExactCount++
		default:
			s.TotalDistance += Distance(actual, expected.Boxed())
		}
	}
	return s
}

// Distance is the minimal number of supertype/interface edges from actual
// up to target, found breadth-first (superclass before interfaces). It is
// math.MaxInt32 when target is not a supertype of actual. An interface
// reaches Object one step past its deepest ancestor.
func Distance(actual, target *meta.Type) int {
	actual, target = actual.Boxed(), target.Boxed()
	if actual == target {
		return 0
	}
	if !meta.IsAssignable(target, actual) {
		return math.MaxInt32
	}

	seen := map[*meta.Type]bool{actual: true}
	frontier := []*meta.Type{actual}
	depth := 0
	for len(frontier) > 0 {
		depth++
		var next []*meta.Type
		for _, cur := range frontier {
			for _, p := range cur.Parents() {
				p = p.Boxed()
				if p == target {
					return depth
				}
				if !seen[p] {
					seen[p] = true
					next = append(next, p)
				}
			}
		}
		frontier = next
	}
	// Only Object is assignable without being reachable.
	return depth
}

func ambiguous(method *meta.Method, matches []Signature, reason string) error {
	details := make([]string, len(matches))
	for i, m := range matches {
		details[i] = m.String()
	}
	return &ir.QueryError{
		Kind:    ir.KindAmbiguity,
		Code:    ir.ErrCodeAmbiguousBuiltIn,
		Method:  method.Name,
		Pos:     -1,
		Message: fmt.Sprintf("%s for %s. Matches: [%s]", reason, method.Signature(), strings.Join(details, ", ")),
	}
}
