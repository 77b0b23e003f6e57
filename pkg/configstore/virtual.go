package configstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/yinzara/ha-config-ai-agent/pkg/homeassistant"
)

// Kind classifies a configuration path.
type Kind int

const (
	KindFile Kind = iota
	KindDevice
	KindEntity
	KindArea
	KindDashboard
)

// Virtual path prefixes and names.
const (
	DevicePrefix  = "devices/"
	EntityPrefix  = "entities/"
	AreaPrefix    = "areas/"
	DashboardPath = "lovelace.yaml"
)

func (k Kind) String() string {
	switch k {
	case KindDevice:
		return "device"
	case KindEntity:
		return "entity"
	case KindArea:
		return "area"
	case KindDashboard:
		return "dashboard"
	default:
		return "file"
	}
}

// ParseVirtual classifies path. For registry resources it also returns the
// registry id encoded in the path.
func ParseVirtual(path string) (Kind, string) {
	switch {
	case strings.HasPrefix(path, DevicePrefix):
		return KindDevice, strings.TrimSuffix(strings.TrimPrefix(path, DevicePrefix), ".json")
	case strings.HasPrefix(path, EntityPrefix):
		return KindEntity, strings.TrimSuffix(strings.TrimPrefix(path, EntityPrefix), ".json")
	case strings.HasPrefix(path, AreaPrefix):
		return KindArea, strings.TrimSuffix(strings.TrimPrefix(path, AreaPrefix), ".json")
	case path == DashboardPath:
		return KindDashboard, ""
	default:
		return KindFile, ""
	}
}

// IsVirtual reports whether path addresses a registry resource.
func IsVirtual(path string) bool {
	k, _ := ParseVirtual(path)
	return k != KindFile
}

// DevicePath, EntityPath and AreaPath build virtual paths.
func DevicePath(id string) string { return DevicePrefix + id + ".json" }
func EntityPath(id string) string { return EntityPrefix + id + ".json" }
func AreaPath(id string) string   { return AreaPrefix + id + ".json" }

// Registry is the subset of the Home Assistant client used for writes.
type Registry interface {
	UpdateDevice(ctx context.Context, deviceID string, u homeassistant.DeviceUpdate) error
	UpdateEntity(ctx context.Context, entityID string, u homeassistant.EntityUpdate) error
	ListAreas(ctx context.Context) ([]homeassistant.Record, error)
	CreateArea(ctx context.Context, u homeassistant.AreaUpdate) (homeassistant.Record, error)
	UpdateArea(ctx context.Context, areaID string, u homeassistant.AreaUpdate) error
	SaveDashboardConfig(ctx context.Context, doc map[string]any) error
}

var errNoRegistry = errors.New("home assistant registry not configured")

func (s *Store) writeVirtual(ctx context.Context, kind Kind, id, content string) error {
	if s.registry == nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, errNoRegistry)
	}

	var err error
	switch kind {
	case KindDevice:
		var u homeassistant.DeviceUpdate
		if err = json.Unmarshal([]byte(content), &u); err == nil {
			err = s.registry.UpdateDevice(ctx, id, u)
		}
	case KindEntity:
		var u homeassistant.EntityUpdate
		if err = json.Unmarshal([]byte(content), &u); err == nil {
			err = s.registry.UpdateEntity(ctx, id, u)
		}
	case KindArea:
		err = s.writeArea(ctx, id, content)
	case KindDashboard:
		var doc map[string]any
		if doc, err = homeassistant.ParseDashboardYAML(content); err == nil {
			err = s.registry.SaveDashboardConfig(ctx, doc)
		}
	}
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrWriteFailed, kind, id, err)
	}
	s.log.Info("wrote registry resource", "kind", kind.String(), "id", id)
	return nil
}

// writeArea updates the area when it exists and creates it otherwise.
func (s *Store) writeArea(ctx context.Context, areaID, content string) error {
	var u homeassistant.AreaUpdate
	if err := json.Unmarshal([]byte(content), &u); err != nil {
		return err
	}

	areas, err := s.registry.ListAreas(ctx)
	if err != nil {
		return err
	}
	for _, a := range areas {
		if a.String("area_id") == areaID {
			return s.registry.UpdateArea(ctx, areaID, u)
		}
	}

	if !u.HasName() {
		return fmt.Errorf("cannot create area %s: 'name' is required", areaID)
	}
	_, err = s.registry.CreateArea(ctx, u)
	return err
}
