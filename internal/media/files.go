package media

import (
	"github.com/h2non/filetype"
)

// DetectExtension sniffs a file extension from the payload's magic bytes,
// falling back to the given default when the type is unknown.
func DetectExtension(payload []byte, fallback string) string {
	kind, err := filetype.Match(payload)
	if err != nil || kind == filetype.Unknown {
		return fallback
	}
	return "." + kind.Extension
}

// ContentTypeOf returns the MIME type of a payload, defaulting to
// application/octet-stream when sniffing fails.
func ContentTypeOf(payload []byte) string {
	kind, err := filetype.Match(payload)
	if err != nil || kind == filetype.Unknown {
		return "application/octet-stream"
	}
	return kind.MIME.Value
}
