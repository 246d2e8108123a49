package query

// Children returns the direct sub-expressions of e.
func Children(e Expression) []Expression {
	switch q := e.(type) {
	case *Boost:
		return []Expression{q.Expr}
	case *DisMax:
		return q.Disjuncts
	case *Boolean:
		out := make([]Expression, len(q.Clauses))
		for i, c := range q.Clauses {
			out[i] = c.Expr
		}
		return out
	case *FunctionBoost:
		return []Expression{q.Expr}
	}
	return nil
}

// Walk visits e and its descendants depth first. Returning false from fn
// skips the children of the visited node.
func Walk(e Expression, fn func(Expression) bool) {
	if e == nil || !fn(e) {
		return
	}
	for _, c := range Children(e) {
		Walk(c, fn)
	}
}

// CountTerms counts the TermSet nodes below e.
func CountTerms(e Expression) int {
	n := 0
	Walk(e, func(x Expression) bool {
		if _, ok := x.(*TermSet); ok {
			n++
		}
		return true
	})
	return n
}
