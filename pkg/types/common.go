package types

import (
	"github.com/oklog/ulid/v2"
)

// JSONSchema represents a JSON Schema definition
type JSONSchema map[string]any

// Message roles understood by the providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// GenerateID returns prefix followed by a fresh ULID.
func GenerateID(prefix string) string {
	return prefix + "_" + ulid.Make().String()
}

// GenerateRequestID tags an inbound HTTP request.
func GenerateRequestID() string { return GenerateID("req") }
