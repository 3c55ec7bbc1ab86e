// Package sanitizer normalizes request input before validation.
//
// All functions are idempotent: applying them twice gives the same result.
// Invalid input yields an empty string or an empty slice, never an error.
//
// Normalization includes:
//   - Text: drop control characters, collapse whitespace, trim
//   - Identifiers: trim surrounding whitespace
//   - Identifier lists: remove empty values and duplicates, keep first-seen order
package sanitizer
