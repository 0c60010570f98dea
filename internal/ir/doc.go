// Package ir provides the canonical value representation for entq.
//
// This package contains value types and their encodings only. All other
// internal packages import ir; ir imports nothing internal. This ensures IR
// remains the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - NO float types anywhere (CP-5) - use int64 for numbers
//   - Times are UTC with a fixed-width text form (TimeLayout)
//   - Entity bodies are stored as RFC 8785 canonical JSON
//   - Tag values are strings whose byte order matches the order of the
//     values they encode (see EncodeTagValue)
package ir
