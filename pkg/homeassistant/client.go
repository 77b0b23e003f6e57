// Package homeassistant talks to the Home Assistant core: registry and
// dashboard commands over the websocket API, configuration checks over REST.
package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"gopkg.in/yaml.v3"
)

// Config locates the websocket API.
type Config struct {
	URL     string
	Token   string
	Timeout time.Duration
}

// Client issues registry commands. Every operation opens its own
// authenticated connection and closes it when done.
type Client struct {
	config Config
	dialer *websocket.Dialer
	log    *slog.Logger
}

// NewClient creates a websocket client.
func NewClient(cfg Config, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		config: cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.Timeout},
		log:    log,
	}
}

// Available reports whether a token is configured.
func (c *Client) Available() bool {
	return c.config.Token != ""
}

type frame struct {
	ID      int             `json:"id,omitempty"`
	Type    string          `json:"type"`
	Success *bool           `json:"success,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *callError      `json:"error,omitempty"`
}

type session struct {
	ws      *websocket.Conn
	nextID  int
	timeout time.Duration
}

func (c *Client) connect(ctx context.Context) (*session, error) {
	if c.config.Token == "" {
		return nil, ErrNoToken
	}

	ws, _, err := c.dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.config.URL, err)
	}
	s := &session{ws: ws, nextID: 1, timeout: c.config.Timeout}

	var hello frame
	if err := s.read(ctx, &hello); err != nil {
		ws.Close()
		return nil, fmt.Errorf("read auth_required: %w", err)
	}
	if hello.Type != "auth_required" {
		ws.Close()
		return nil, fmt.Errorf("unexpected message type: %s", hello.Type)
	}

	if err := s.write(ctx, map[string]string{"type": "auth", "access_token": c.config.Token}); err != nil {
		ws.Close()
		return nil, fmt.Errorf("send auth: %w", err)
	}

	var reply frame
	if err := s.read(ctx, &reply); err != nil {
		ws.Close()
		return nil, fmt.Errorf("read auth reply: %w", err)
	}
	if reply.Type != "auth_ok" {
		ws.Close()
		return nil, fmt.Errorf("%w: %s", ErrAuthFailed, reply.Type)
	}

	c.log.Debug("websocket authenticated", "url", c.config.URL)
	return s, nil
}

func (s *session) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(s.timeout)
	if cd, ok := ctx.Deadline(); ok && cd.Before(d) {
		return cd
	}
	return d
}

func (s *session) read(ctx context.Context, v any) error {
	if err := s.ws.SetReadDeadline(s.deadline(ctx)); err != nil {
		return err
	}
	return s.ws.ReadJSON(v)
}

func (s *session) write(ctx context.Context, v any) error {
	if err := s.ws.SetWriteDeadline(s.deadline(ctx)); err != nil {
		return err
	}
	return s.ws.WriteJSON(v)
}

func (s *session) close() {
	_ = s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = s.ws.Close()
}

// call sends one command and waits for the result frame with the same id.
// Fields of params are merged into the command message.
func (s *session) call(ctx context.Context, msgType string, params any) (json.RawMessage, error) {
	msg := map[string]any{}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode %s params: %w", msgType, err)
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("encode %s params: %w", msgType, err)
		}
	}
	id := s.nextID
	s.nextID++
	msg["id"] = id
	msg["type"] = msgType

	if err := s.write(ctx, msg); err != nil {
		return nil, fmt.Errorf("send %s: %w", msgType, err)
	}

	for {
		var resp frame
		if err := s.read(ctx, &resp); err != nil {
			return nil, fmt.Errorf("read %s result: %w", msgType, err)
		}
		if resp.ID != id {
			continue
		}
		if resp.Type != "result" {
			return nil, fmt.Errorf("unexpected response type: %s", resp.Type)
		}
		if resp.Success != nil && !*resp.Success {
			return nil, resp.Error.asError(msgType)
		}
		return resp.Result, nil
	}
}

// do runs one command on a fresh connection.
func (c *Client) do(ctx context.Context, msgType string, params any) (json.RawMessage, error) {
	s, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer s.close()
	return s.call(ctx, msgType, params)
}

func (c *Client) list(ctx context.Context, msgType string) ([]Record, error) {
	raw, err := c.do(ctx, msgType, nil)
	if err != nil {
		return nil, err
	}
	var records []Record
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &records); err != nil {
			return nil, fmt.Errorf("decode %s: %w", msgType, err)
		}
	}
	return records, nil
}

// ListDevices returns the device registry.
func (c *Client) ListDevices(ctx context.Context) ([]Record, error) {
	return c.list(ctx, "config/device_registry/list")
}

// ListEntities returns the entity registry.
func (c *Client) ListEntities(ctx context.Context) ([]Record, error) {
	return c.list(ctx, "config/entity_registry/list")
}

// ListAreas returns the area registry.
func (c *Client) ListAreas(ctx context.Context) ([]Record, error) {
	return c.list(ctx, "config/area_registry/list")
}

// UpdateDevice updates a device registry entry.
func (c *Client) UpdateDevice(ctx context.Context, deviceID string, u DeviceUpdate) error {
	if u.Labels == nil {
		u.Labels = []string{}
	}
	params := struct {
		DeviceID string `json:"device_id"`
		DeviceUpdate
	}{deviceID, u}
	if _, err := c.do(ctx, "config/device_registry/update", params); err != nil {
		return err
	}
	c.log.Info("updated device", "device_id", deviceID)
	return nil
}

// UpdateEntity updates an entity registry entry.
func (c *Client) UpdateEntity(ctx context.Context, entityID string, u EntityUpdate) error {
	if u.Labels == nil {
		u.Labels = []string{}
	}
	params := struct {
		EntityID string `json:"entity_id"`
		EntityUpdate
	}{entityID, u}
	if _, err := c.do(ctx, "config/entity_registry/update", params); err != nil {
		return err
	}
	c.log.Info("updated entity", "entity_id", entityID)
	return nil
}

// CreateArea creates an area. The name is required.
func (c *Client) CreateArea(ctx context.Context, u AreaUpdate) (Record, error) {
	if !u.HasName() {
		return nil, fmt.Errorf("create area: name is required")
	}
	if u.Aliases == nil {
		u.Aliases = []string{}
	}
	raw, err := c.do(ctx, "config/area_registry/create", u)
	if err != nil {
		return nil, err
	}
	var created Record
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &created); err != nil {
			c.log.Debug("unexpected area create result", "result", string(raw), "error", err)
			created = nil
		}
	}
	c.log.Info("created area", "name", *u.Name, "area_id", created.String("area_id"))
	return created, nil
}

// UpdateArea updates an existing area.
func (c *Client) UpdateArea(ctx context.Context, areaID string, u AreaUpdate) error {
	if u.Aliases == nil {
		u.Aliases = []string{}
	}
	params := struct {
		AreaID string `json:"area_id"`
		AreaUpdate
	}{areaID, u}
	if _, err := c.do(ctx, "config/area_registry/update", params); err != nil {
		return err
	}
	c.log.Info("updated area", "area_id", areaID)
	return nil
}

// GetDashboardConfig returns the default Lovelace dashboard document.
func (c *Client) GetDashboardConfig(ctx context.Context) (map[string]any, error) {
	raw, err := c.do(ctx, "lovelace/config", map[string]any{"force": false})
	if err != nil {
		return nil, err
	}
	doc := map[string]any{}
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode lovelace config: %w", err)
		}
	}
	return doc, nil
}

// SaveDashboardConfig replaces the default Lovelace dashboard document.
func (c *Client) SaveDashboardConfig(ctx context.Context, doc map[string]any) error {
	if _, err := c.do(ctx, "lovelace/config/save", map[string]any{"config": doc}); err != nil {
		return err
	}
	c.log.Info("saved lovelace config")
	return nil
}

// GetDashboardYAML returns the dashboard document rendered as YAML.
func (c *Client) GetDashboardYAML(ctx context.Context) (string, error) {
	doc, err := c.GetDashboardConfig(ctx)
	if err != nil {
		return "", err
	}
	return DashboardYAML(doc)
}

// ReloadConfiguration reloads every reloadable integration.
func (c *Client) ReloadConfiguration(ctx context.Context) error {
	params := map[string]any{
		"domain":          "homeassistant",
		"service":         "reload_all",
		"return_response": false,
		"service_data":    map[string]any{},
	}
	if _, err := c.do(ctx, "call_service", params); err != nil {
		return err
	}
	c.log.Info("triggered configuration reload")
	return nil
}

// DashboardYAML renders a dashboard document as YAML.
func DashboardYAML(doc map[string]any) (string, error) {
	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encode lovelace yaml: %w", err)
	}
	return string(out), nil
}

// ParseDashboardYAML parses a YAML dashboard document.
func ParseDashboardYAML(text string) (map[string]any, error) {
	doc := map[string]any{}
	if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
		return nil, fmt.Errorf("parse lovelace yaml: %w", err)
	}
	return doc, nil
}
