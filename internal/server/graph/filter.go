package graph

import "strings"

// predicate is one optional filter clause paired with its bound parameter.
type predicate struct {
	clause string
	name   string
	value  any
}

// whereBuilder collects optional predicate clauses and joins them with a
// fixed AND conjunction. Caller-supplied values always travel as bound
// parameters; clause text is static per backend and never carries user input.
type whereBuilder struct {
	preds []predicate
}

// add appends a clause bound to a single named parameter.
func (b *whereBuilder) add(clause, name string, value any) {
	b.preds = append(b.preds, predicate{clause: clause, name: name, value: value})
}

// where returns "WHERE c1 AND c2 ..." or the empty string when no clause
// was added.
func (b *whereBuilder) where() string {
	if len(b.preds) == 0 {
		return ""
	}
	clauses := make([]string, len(b.preds))
	for i, p := range b.preds {
		clauses[i] = p.clause
	}
	return "WHERE " + strings.Join(clauses, " AND ")
}

// params returns the bound parameters as a map, the shape the Neo4j driver
// consumes.
func (b *whereBuilder) params() map[string]any {
	m := make(map[string]any, len(b.preds))
	for _, p := range b.preds {
		m[p.name] = p.value
	}
	return m
}
