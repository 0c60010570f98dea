// Package dispatch selects and runs the execution strategy for a
// predicate: which store listing to issue, and whether candidates must be
// materialized and re-checked on the client.
package dispatch

import (
	"fmt"
)

// Strategy is one fixed execution plan. The constants are ordered by
// preference; the planner picks the first applicable one.
type Strategy int

const (
	// FullListing enumerates every entity without filtering.
	FullListing Strategy = iota
	// NativeQuery issues the native filter; results are exact.
	NativeQuery
	// TagQuery issues the tag filter; results are exact.
	TagQuery
	// TagQueryResidual issues a narrowing tag filter and re-checks every
	// candidate with the original predicate.
	TagQueryResidual
	// TagMetadataScan lists tag metadata, rejects candidates the rewritten
	// tag predicate disproves and re-checks the rest unless the rewritten
	// predicate is decided by tags alone.
	TagMetadataScan
	// FullScanCompiled materializes every entity and tests it with the
	// compiled predicate.
	FullScanCompiled
)

var strategyNames = map[Strategy]string{
	FullListing:      "FullListing",
	NativeQuery:      "NativeQuery",
	TagQuery:         "TagQuery",
	TagQueryResidual: "TagQueryResidual",
	TagMetadataScan:  "TagMetadataScan",
	FullScanCompiled: "FullScanCompiled",
}

func (s Strategy) String() string {
	if name, ok := strategyNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Strategy(%d)", int(s))
}

// ParseStrategy maps a strategy name to a Strategy.
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "FullListing":
		return FullListing, nil
	case "NativeQuery":
		return NativeQuery, nil
	case "TagQuery":
		return TagQuery, nil
	case "TagQueryResidual":
		return TagQueryResidual, nil
	case "TagMetadataScan":
		return TagMetadataScan, nil
	case "FullScanCompiled":
		return FullScanCompiled, nil
	}
	return 0, fmt.Errorf("unknown strategy %q", name)
}

// RequiresTagIndexing reports whether the strategy reads the tag index.
func (s Strategy) RequiresTagIndexing() bool {
	switch s {
	case TagQuery, TagQueryResidual, TagMetadataScan:
		return true
	}
	return false
}

// Materializes reports whether the strategy downloads candidates to test
// them.
func (s Strategy) Materializes() bool {
	switch s {
	case TagQueryResidual, TagMetadataScan, FullScanCompiled:
		return true
	}
	return false
}
