// Package recovery reconstructs usable workspace state from corrupted or
// partial persisted data.
//
// It provides four independently callable building blocks:
//
//   - ValidateBasicStructure: structural check over a raw JSON blob
//   - ExtractPartialState: best-effort JSON fragment extraction
//   - Repair: normalization of a partial object into a complete state
//   - Completeness: heuristic richness scoring for candidate ranking
//
// All functions are pure transforms over in-memory data; data-quality
// problems are reported through ValidationResult rather than errors.
package recovery
