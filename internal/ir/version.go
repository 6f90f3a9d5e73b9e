package ir

// Version constants for persisted documents and the tool.
const (
	// DocumentVersion is the hierarchy document schema version.
	DocumentVersion = "1"

	// ToolVersion is the graft release version.
	ToolVersion = "0.1.0"
)
