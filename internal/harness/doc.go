// Package harness runs YAML query scenarios against in-memory stores.
//
// A scenario seeds entities of one CUE-declared schema, runs a flow of
// queries and deletes, and checks the results. Every scenario runs once per
// mode: "tags" (tag indexing enabled) and "no-tags" (disabled), each on a
// fresh store, so a scenario doubles as a differential test of the
// execution strategies.
//
// # Scenario Format
//
//	name: open_orders
//	description: "Open orders are found through the tag index"
//	schema: ../schemas/orders.cue
//	entity: Order
//	setup:
//	  - key: p1/o1
//	    fields: { status: open, total: 120 }
//	flow:
//	  - name: open
//	    where: 'e.status == "open"'
//	    expect:
//	      keys: [p1/o1]
//	      strategy: { tags: TagQuery, no-tags: NativeQuery }
//	  - name: purge
//	    query: closedOrders        # named query from the schema file
//	    delete: transaction
//	    expect:
//	      deleted: 1
//	assertions:
//	  - type: remaining
//	    keys: [p1/o1]
//	  - type: downloads
//	    step: open
//	    mode: tags
//	    count: 0
//	  - type: consistent
//
// # Assertion Types
//
//   - remaining: the keys left in the store after the flow, in every mode
//     (or only in Mode)
//   - downloads: the exact number of body downloads of one step
//   - consistent: every query step returned the same keys in all modes
//
// # Golden Files
//
// RunWithGolden snapshots the trace, including each step's plan
// explanation, under testdata/golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
