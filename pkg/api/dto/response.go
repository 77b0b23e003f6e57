package dto

import (
	"time"

	"github.com/yinzara/ha-config-ai-agent/pkg/configstore"
)

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status             string    `json:"status"`
	Timestamp          time.Time `json:"timestamp"`
	Version            string    `json:"version"`
	ConfigManagerReady bool      `json:"config_manager_ready"`
	AgentSystemReady   bool      `json:"agent_system_ready"`
	LLMConfigured      bool      `json:"llm_configured"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// BackupListResponse lists backups newest first.
type BackupListResponse struct {
	Backups []configstore.BackupInfo `json:"backups"`
}

// RestoreBackupResponse reports a restore.
type RestoreBackupResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// SocketFrame is one event sent over the chat WebSocket.
type SocketFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}
