package homeassistant

import (
	"errors"
	"fmt"
)

var (
	// ErrNoToken is returned when no access token is configured.
	ErrNoToken = errors.New("home assistant token not available")
	// ErrAuthFailed is returned when the websocket handshake is rejected.
	ErrAuthFailed = errors.New("home assistant authentication failed")
	// ErrCallFailed is returned when a command result reports success=false.
	ErrCallFailed = errors.New("home assistant call failed")
	// ErrConfigInvalid is returned by CheckConfig when the configuration is rejected.
	ErrConfigInvalid = errors.New("home assistant configuration is invalid")
)

// Record is a registry entry as returned by Home Assistant. Registry entries
// are open-ended, so they are kept as decoded JSON objects.
type Record map[string]any

// String returns the string value of key, or "" when absent.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

// DeviceUpdate holds the writable fields of a device registry entry.
// Nil pointers are left untouched by Home Assistant.
type DeviceUpdate struct {
	NameByUser *string  `json:"name_by_user,omitempty"`
	AreaID     *string  `json:"area_id,omitempty"`
	Labels     []string `json:"labels"`
	DisabledBy *string  `json:"disabled_by,omitempty"`
}

// EntityUpdate holds the writable fields of an entity registry entry.
type EntityUpdate struct {
	Name        *string  `json:"name,omitempty"`
	Icon        *string  `json:"icon,omitempty"`
	AreaID      *string  `json:"area_id,omitempty"`
	Labels      []string `json:"labels"`
	NewEntityID *string  `json:"new_entity_id,omitempty"`
}

// AreaUpdate holds the writable fields of an area registry entry.
type AreaUpdate struct {
	Name    *string  `json:"name,omitempty"`
	Picture *string  `json:"picture,omitempty"`
	Icon    *string  `json:"icon,omitempty"`
	Aliases []string `json:"aliases"`
}

// HasName reports whether the update carries a non-empty name.
func (u AreaUpdate) HasName() bool {
	return u.Name != nil && *u.Name != ""
}

// callError is the error object of a failed command result.
type callError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *callError) asError(msgType string) error {
	if e == nil {
		return fmt.Errorf("%w: %s", ErrCallFailed, msgType)
	}
	return fmt.Errorf("%w: %s: %s (%s)", ErrCallFailed, msgType, e.Message, e.Code)
}
