package ir

// Version constants stamped on persisted markers and log rows.
const (
	// SchemaVersion is the version of the canonical notice representation.
	// Changing the notice encoding changes every content hash, so it is bumped
	// together with the hash domains.
	SchemaVersion = "1"

	// EngineVersion is the reconciliation engine version.
	EngineVersion = "0.3.0"
)
