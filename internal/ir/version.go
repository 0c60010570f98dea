package ir

// Version constants for the IR and the tag value encoding.
const (
	// IRVersion is the IR schema version.
	IRVersion = "1"

	// TagEncodingVersion identifies the EncodeTagValue format. Stores that
	// persist tags record it so a format change can be detected.
	TagEncodingVersion = "1"
)
