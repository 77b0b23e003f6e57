package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yinzara/ha-config-ai-agent/pkg/api/dto"
	"github.com/yinzara/ha-config-ai-agent/pkg/configstore"
)

// BackupStore lists and restores backups.
type BackupStore interface {
	ListBackups(path string) ([]configstore.BackupInfo, error)
	RestoreBackup(ctx context.Context, name string, validate bool) error
}

// BackupHandler exposes backup maintenance.
type BackupHandler struct {
	store BackupStore
}

// NewBackupHandler creates a BackupHandler.
func NewBackupHandler(store BackupStore) *BackupHandler {
	return &BackupHandler{store: store}
}

func storeStatus(err error) int {
	switch {
	case errors.Is(err, configstore.ErrPathViolation):
		return http.StatusBadRequest
	case errors.Is(err, configstore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, configstore.ErrValidationFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// List godoc
// @Summary      List backups
// @Tags         backup
// @Produce      json
// @Param        file query string false "Only backups of this config file"
// @Success      200 {object} dto.BackupListResponse
// @Router       /api/backups [get]
func (h *BackupHandler) List(c *gin.Context) {
	infos, err := h.store.ListBackups(c.Query("file"))
	if err != nil {
		c.JSON(storeStatus(err), dto.ErrorResponse{Error: err.Error()})
		return
	}
	if infos == nil {
		infos = []configstore.BackupInfo{}
	}
	c.JSON(http.StatusOK, dto.BackupListResponse{Backups: infos})
}

// Restore godoc
// @Summary      Restore a backup
// @Tags         backup
// @Accept       json
// @Produce      json
// @Param        request body dto.RestoreBackupRequest true "Restore request"
// @Success      200 {object} dto.RestoreBackupResponse
// @Failure      400 {object} dto.ErrorResponse
// @Failure      404 {object} dto.ErrorResponse
// @Router       /api/backups/restore [post]
func (h *BackupHandler) Restore(c *gin.Context) {
	var req dto.RestoreBackupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "backup_name is required"})
		return
	}
	ctx := context.WithoutCancel(c.Request.Context())
	if err := h.store.RestoreBackup(ctx, req.BackupName, dto.BoolOr(req.Validate, true)); err != nil {
		c.JSON(storeStatus(err), dto.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.RestoreBackupResponse{
		Success: true,
		Message: "Restored " + req.BackupName,
	})
}
