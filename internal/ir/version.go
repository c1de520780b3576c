package ir

// Version constants for persisted artifacts and the tool itself.
const (
	// SchemaDocVersion is written into every schema document.
	SchemaDocVersion = "1"

	// ToolVersion is the provision release version.
	ToolVersion = "0.3.0"
)
