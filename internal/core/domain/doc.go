// Package domain defines the core business entities for docmind.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - DocumentRecord: Metadata for one organised document
//   - MemoryFact: An aggregated fact inside a named bucket
//   - SearchOptions / SearchResult: The query contract
//   - RuleSet: Versioned extraction and synonym tables
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
