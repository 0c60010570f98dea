// Package query is the public face of the query layer: a mutable Builder
// accumulates predicates, a projection and a result bound, and Build
// freezes them into an immutable Query whose Results sequence is pulled
// by exactly one consumer.
//
// Building:
//
//	b := query.NewBuilder(s, schema)
//	_ = b.Where(queryir.Where(queryir.Eq(queryir.F("status"), queryir.Str("open"))))
//	_ = b.Take(10)
//	q, err := b.Build()
//
// Enumerating:
//
//	for r, err := range q.Results(ctx) {
//		if err != nil {
//			return err
//		}
//		fmt.Println(r.Locator)
//	}
//
// A Query is single-use. A second enumeration fails with ALREADY_CONSUMED;
// build a fresh query to run the same predicate again.
package query
