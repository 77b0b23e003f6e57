package api

import (
	"github.com/yinzara/ha-config-ai-agent/pkg/api/handler"
	"github.com/yinzara/ha-config-ai-agent/pkg/api/middleware"
)

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health (no auth required)
	health := handler.NewHealthHandler(s.config.Version, s.deps.Backups != nil, s.deps.Chat)
	s.engine.GET("/health", health.Health)
	s.engine.GET("/healthz", health.Health)

	auth := middleware.Auth(s.config.APIKey)
	chat := handler.NewChatHandler(s.deps.Chat, s.log)

	api := s.engine.Group("/api")
	api.Use(auth)
	api.POST("/chat", chat.Stream)

	approval := handler.NewApprovalHandler(s.deps.Approver)
	api.POST("/approve", approval.Approve)

	backups := handler.NewBackupHandler(s.deps.Backups)
	api.GET("/backups", backups.List)
	api.POST("/backups/restore", backups.Restore)

	s.engine.GET("/ws/chat", auth, chat.Socket)
}
