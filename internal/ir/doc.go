// Package ir provides the canonical value representation used for content
// identity in gluedb.
//
// Notices and confirmation documents are converted into the sealed Value
// types defined here and serialised with MarshalCanonical (RFC 8785 canonical
// JSON). Content hashes are SHA-256 over the canonical bytes with a domain
// prefix, so two notices carrying identical content always hash identically
// regardless of field order on the wire.
//
// Key constraints:
//   - No float values: money is carried as integer cents
//   - No null values: absent fields are omitted, never encoded as null
//   - Dates are ISO-8601 strings (2006-01-02)
//
// ir imports nothing internal; every other package may import it.
package ir
