package expr

import (
	"fmt"
	"strings"
)

const (
	connAnd = "AND"
	connOr  = "OR"
)

// Q is a boolean condition tree over field lookups. Conditions
// combine with And, Or, and Not; each combinator returns a new tree.
type Q struct {
	connector string
	negated   bool
	children  []qChild
}

// qChild is either a nested group or a single lookup leaf.
type qChild struct {
	q      *Q
	lookup *lookup
}

// lookup is one "field__op = value" leaf. lhs is nil until the
// condition is resolved.
type lookup struct {
	path string
	op   string
	lhs  Expr
	rhs  any
}

// lookups the condition resolver understands. in, isnull, and range
// compile structurally; the rest go through the dialect operator
// table.
var knownLookups = map[string]bool{
	"exact": true, "iexact": true,
	"gt": true, "gte": true, "lt": true, "lte": true,
	"in": true, "isnull": true, "range": true,
	"contains": true, "icontains": true,
	"startswith": true, "istartswith": true,
	"endswith": true, "iendswith": true,
}

// NewQ builds a condition from field/value pairs, ANDed together.
// Keys take the form "field" or "field__lookup"; values may be plain
// Go values or expressions. An empty NewQ() matches every row.
// Panics on an odd argument count or a non-string key.
func NewQ(pairs ...any) *Q {
	if len(pairs)%2 != 0 {
		panic("expr: NewQ requires field/value pairs")
	}
	q := &Q{connector: connAnd}
	for i := 0; i < len(pairs); i += 2 {
		key, ok := pairs[i].(string)
		if !ok {
			panic(fmt.Sprintf("expr: NewQ key %d is %T, want string", i/2, pairs[i]))
		}
		q.children = append(q.children, qChild{lookup: &lookup{path: key, rhs: pairs[i+1]}})
	}
	return q
}

// And returns a new condition matching both q and other.
func (q *Q) And(other *Q) *Q {
	return combine(q, other, connAnd)
}

// Or returns a new condition matching either q or other.
func (q *Q) Or(other *Q) *Q {
	return combine(q, other, connOr)
}

// Not returns a new, negated copy of the condition.
func (q *Q) Not() *Q {
	cp := q.clone()
	cp.negated = !cp.negated
	return cp
}

func combine(a, b *Q, connector string) *Q {
	if len(a.children) == 0 && !a.negated {
		return b.clone()
	}
	if len(b.children) == 0 && !b.negated {
		return a.clone()
	}
	return &Q{
		connector: connector,
		children:  []qChild{{q: a.clone()}, {q: b.clone()}},
	}
}

func (q *Q) clone() *Q {
	cp := &Q{connector: q.connector, negated: q.negated}
	cp.children = make([]qChild, len(q.children))
	for i, ch := range q.children {
		if ch.q != nil {
			cp.children[i] = qChild{q: ch.q.clone()}
			continue
		}
		lk := *ch.lookup
		cp.children[i] = qChild{lookup: &lk}
	}
	return cp
}

// splitLookup separates "field__op" into field path and lookup name;
// a bare field name means an exact match.
func splitLookup(path string) (string, string) {
	if i := strings.LastIndex(path, "__"); i >= 0 {
		if op := path[i+2:]; knownLookups[op] {
			return path[:i], op
		}
	}
	return path, "exact"
}
