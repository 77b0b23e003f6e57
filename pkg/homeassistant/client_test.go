package homeassistant

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCore is a minimal websocket endpoint speaking the Home Assistant
// auth handshake and answering commands from a handler table.
type fakeCore struct {
	t        *testing.T
	token    string
	handlers map[string]func(msg map[string]any) (any, bool)

	mu       sync.Mutex
	received []map[string]any
}

func newFakeCore(t *testing.T, token string) *fakeCore {
	return &fakeCore{t: t, token: token, handlers: map[string]func(map[string]any) (any, bool){}}
}

func (f *fakeCore) start() (*httptest.Server, string) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(map[string]any{"type": "auth_required", "ha_version": "2025.1.0"})
		var auth map[string]any
		if err := conn.ReadJSON(&auth); err != nil {
			return
		}
		if auth["type"] != "auth" || auth["access_token"] != f.token {
			_ = conn.WriteJSON(map[string]any{"type": "auth_invalid", "message": "bad token"})
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "auth_ok"})

		for {
			var msg map[string]any
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			f.mu.Lock()
			f.received = append(f.received, msg)
			f.mu.Unlock()

			// Unrelated event frames must be skipped by the client.
			_ = conn.WriteJSON(map[string]any{"id": 999, "type": "event"})

			msgType, _ := msg["type"].(string)
			h, ok := f.handlers[msgType]
			if !ok {
				_ = conn.WriteJSON(map[string]any{
					"id": msg["id"], "type": "result", "success": false,
					"error": map[string]any{"code": "unknown_command", "message": "Unknown command."},
				})
				continue
			}
			result, success := h(msg)
			_ = conn.WriteJSON(map[string]any{"id": msg["id"], "type": "result", "success": success, "result": result})
		}
	}))
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (f *fakeCore) last() map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.received) == 0 {
		return nil
	}
	return f.received[len(f.received)-1]
}

func TestClientListDevices(t *testing.T) {
	core := newFakeCore(t, "secret")
	core.handlers["config/device_registry/list"] = func(map[string]any) (any, bool) {
		return []map[string]any{{"id": "abc", "name": "Lamp"}}, true
	}
	srv, url := core.start()
	defer srv.Close()

	client := NewClient(Config{URL: url, Token: "secret"}, nil)
	devices, err := client.ListDevices(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "abc", devices[0].String("id"))
	assert.Equal(t, float64(1), core.last()["id"])
}

func TestClientRejectsBadToken(t *testing.T) {
	core := newFakeCore(t, "secret")
	srv, url := core.start()
	defer srv.Close()

	client := NewClient(Config{URL: url, Token: "wrong"}, nil)
	_, err := client.ListAreas(context.Background())
	require.ErrorIs(t, err, ErrAuthFailed)
}

func TestClientWithoutToken(t *testing.T) {
	client := NewClient(Config{URL: "ws://127.0.0.1:1", Token: ""}, nil)
	assert.False(t, client.Available())
	_, err := client.ListEntities(context.Background())
	require.ErrorIs(t, err, ErrNoToken)
}

func TestClientCallFailure(t *testing.T) {
	core := newFakeCore(t, "secret")
	srv, url := core.start()
	defer srv.Close()

	client := NewClient(Config{URL: url, Token: "secret"}, nil)
	err := client.ReloadConfiguration(context.Background())
	require.ErrorIs(t, err, ErrCallFailed)
	assert.Contains(t, err.Error(), "Unknown command.")
}

func TestClientUpdateDeviceSendsOnlyPresentFields(t *testing.T) {
	core := newFakeCore(t, "secret")
	core.handlers["config/device_registry/update"] = func(map[string]any) (any, bool) {
		return map[string]any{}, true
	}
	srv, url := core.start()
	defer srv.Close()

	name := "Desk lamp"
	client := NewClient(Config{URL: url, Token: "secret"}, nil)
	require.NoError(t, client.UpdateDevice(context.Background(), "dev1", DeviceUpdate{NameByUser: &name}))

	msg := core.last()
	assert.Equal(t, "config/device_registry/update", msg["type"])
	assert.Equal(t, "dev1", msg["device_id"])
	assert.Equal(t, "Desk lamp", msg["name_by_user"])
	assert.Equal(t, []any{}, msg["labels"])
	_, hasArea := msg["area_id"]
	assert.False(t, hasArea)
	_, hasDisabled := msg["disabled_by"]
	assert.False(t, hasDisabled)
}

func TestClientCreateAreaRequiresName(t *testing.T) {
	client := NewClient(Config{URL: "ws://127.0.0.1:1", Token: "secret"}, nil)
	_, err := client.CreateArea(context.Background(), AreaUpdate{})
	require.Error(t, err)
}

func TestClientCreateAreaUndecodableResult(t *testing.T) {
	core := newFakeCore(t, "secret")
	var sent map[string]any
	core.handlers["config/area_registry/create"] = func(msg map[string]any) (any, bool) {
		sent = msg
		return "created", true
	}
	srv, url := core.start()
	defer srv.Close()

	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := NewClient(Config{URL: url, Token: "secret"}, log)

	name := "Garage"
	rec, err := client.CreateArea(context.Background(), AreaUpdate{Name: &name})
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, "Garage", sent["name"])
	assert.Contains(t, buf.String(), "unexpected area create result")
}

func TestClientDashboardRoundTrip(t *testing.T) {
	core := newFakeCore(t, "secret")
	core.handlers["lovelace/config"] = func(msg map[string]any) (any, bool) {
		return map[string]any{"title": "Home", "views": []any{map[string]any{"path": "default"}}}, msg["force"] == false
	}
	var saved map[string]any
	core.handlers["lovelace/config/save"] = func(msg map[string]any) (any, bool) {
		saved, _ = msg["config"].(map[string]any)
		return nil, true
	}
	srv, url := core.start()
	defer srv.Close()

	client := NewClient(Config{URL: url, Token: "secret"}, nil)
	text, err := client.GetDashboardYAML(context.Background())
	require.NoError(t, err)
	assert.Contains(t, text, "title: Home")

	doc, err := ParseDashboardYAML("title: Office\nviews: []\n")
	require.NoError(t, err)
	require.NoError(t, client.SaveDashboardConfig(context.Background(), doc))
	assert.Equal(t, "Office", saved["title"])
}

func TestClientReloadConfiguration(t *testing.T) {
	core := newFakeCore(t, "secret")
	core.handlers["call_service"] = func(msg map[string]any) (any, bool) {
		return nil, msg["domain"] == "homeassistant" && msg["service"] == "reload_all"
	}
	srv, url := core.start()
	defer srv.Close()

	client := NewClient(Config{URL: url, Token: "secret"}, nil)
	require.NoError(t, client.ReloadConfiguration(context.Background()))
}
