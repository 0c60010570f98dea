// Package queryir is the predicate intermediate representation used by the
// planner.
//
// A predicate is an expression tree over exactly one entity parameter:
//
//	e => e.status == "a" && e.total > 10
//
// is
//
//	Predicate{Param: "e", Body: And{
//	    Left:  Compare{Op: OpEq, Left: Field{Param: "e", Name: "status"}, Right: Const{Value: ir.IRString("a")}},
//	    Right: Compare{Op: OpGt, Left: Field{Param: "e", Name: "total"}, Right: Const{Value: ir.IRInt(10)}},
//	}}
//
// SEALED INTERFACES:
//
// Expr is a sealed interface using the marker method pattern. Only the node
// kinds in this package implement it, so classification, rewriting, SQL
// compilation and evaluation are exhaustive type switches:
//
//	switch n := expr.(type) {
//	case Compare:
//	case And, Or, Not:
//	case Field, TagRef, Const:
//	case Call:
//	case Param:
//	}
//
// Trees are immutable values. Rebind, Conjoin and the tag rewriter return
// new trees and never modify their input.
//
// NULL SEMANTICS:
//
// A missing field reads as null. Null equals null and nothing else; ordering
// comparisons involving null (or values of different kinds) are false.
// Logical operators treat null as false.
//
// Literal values are ir.IRValue (no floats).
package queryir
