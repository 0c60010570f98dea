package queryir

import "slices"

// Walk calls fn for every node of e in depth-first pre-order. If fn returns
// false the node's children are skipped.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch n := e.(type) {
	case Compare:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case And:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case Or:
		Walk(n.Left, fn)
		Walk(n.Right, fn)
	case Not:
		Walk(n.X, fn)
	case Call:
		Walk(n.Target, fn)
		for _, a := range n.Args {
			Walk(a, fn)
		}
	}
}

// Map rebuilds e bottom-up, replacing every node by fn(node) after its
// children have been mapped. The input tree is not modified.
func Map(e Expr, fn func(Expr) Expr) Expr {
	if e == nil {
		return nil
	}
	switch n := e.(type) {
	case Compare:
		e = Compare{Op: n.Op, Left: Map(n.Left, fn), Right: Map(n.Right, fn)}
	case And:
		e = And{Left: Map(n.Left, fn), Right: Map(n.Right, fn)}
	case Or:
		e = Or{Left: Map(n.Left, fn), Right: Map(n.Right, fn)}
	case Not:
		e = Not{X: Map(n.X, fn)}
	case Call:
		var args []Expr
		for _, a := range n.Args {
			args = append(args, Map(a, fn))
		}
		e = Call{Method: n.Method, Target: Map(n.Target, fn), Args: args}
	}
	return fn(e)
}

// Rebind substitutes parameter from with to. Only the parameter name
// changes; the shape of the tree is preserved.
func Rebind(e Expr, from, to string) Expr {
	if from == to {
		return e
	}
	return Map(e, func(n Expr) Expr {
		switch x := n.(type) {
		case Field:
			if x.Param == from {
				x.Param = to
			}
			return x
		case Param:
			if x.Name == from {
				x.Name = to
			}
			return x
		}
		return n
	})
}

// Conjoin combines two predicates into one bound to a's parameter:
// b is rebound onto a's parameter and the bodies are joined with And.
// A nil a yields b unchanged; a nil b yields a.
func Conjoin(a, b *Predicate) *Predicate {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}
	return &Predicate{
		Param: a.Param,
		Body:  And{Left: a.Body, Right: Rebind(b.Body, b.Param, a.Param)},
	}
}

// FieldNames returns the sorted, de-duplicated names of the fields
// referenced by exprs.
func FieldNames(exprs ...Expr) []string {
	var names []string
	for _, e := range exprs {
		Walk(e, func(n Expr) bool {
			if f, ok := n.(Field); ok {
				names = append(names, f.Name)
			}
			return true
		})
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// Params returns the sorted set of parameter names referenced by e.
func Params(e Expr) []string {
	var params []string
	Walk(e, func(n Expr) bool {
		switch x := n.(type) {
		case Field:
			params = append(params, x.Param)
		case Param:
			params = append(params, x.Name)
		}
		return true
	})
	slices.Sort(params)
	return slices.Compact(params)
}
