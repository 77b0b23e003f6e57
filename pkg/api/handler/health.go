package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yinzara/ha-config-ai-agent/pkg/api/dto"
)

// HealthHandler reports liveness and readiness.
type HealthHandler struct {
	version    string
	storeReady bool
	chat       Chatter
}

// NewHealthHandler creates a HealthHandler. chat may be nil.
func NewHealthHandler(version string, storeReady bool, chat Chatter) *HealthHandler {
	return &HealthHandler{version: version, storeReady: storeReady, chat: chat}
}

// Health godoc
// @Summary      Health check
// @Description  Returns server health, version and readiness flags
// @Tags         global
// @Produce      json
// @Success      200 {object} dto.HealthResponse
// @Router       /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	configured := h.chat != nil && h.chat.Configured()
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:             "healthy",
		Timestamp:          time.Now(),
		Version:            h.version,
		ConfigManagerReady: h.storeReady,
		AgentSystemReady:   h.chat != nil,
		LLMConfigured:      configured,
	})
}
