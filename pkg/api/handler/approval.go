package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yinzara/ha-config-ai-agent/pkg/api/dto"
	"github.com/yinzara/ha-config-ai-agent/pkg/runtime"
)

// Approver processes approval decisions.
type Approver interface {
	Process(ctx context.Context, req runtime.ApprovalRequest) runtime.ApprovalResult
}

// ApprovalHandler handles approval requests.
type ApprovalHandler struct {
	approver Approver
}

// NewApprovalHandler creates an ApprovalHandler.
func NewApprovalHandler(approver Approver) *ApprovalHandler {
	return &ApprovalHandler{approver: approver}
}

// Approve godoc
// @Summary      Approve or reject a changeset
// @Tags         approval
// @Accept       json
// @Produce      json
// @Param        request body dto.ApprovalRequest true "Approval request"
// @Success      200 {object} runtime.ApprovalResult
// @Failure      400 {object} dto.ErrorResponse
// @Router       /api/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	var req dto.ApprovalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: err.Error()})
		return
	}
	id := req.ID()
	if id == "" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "changeset_id is required"})
		return
	}

	// A started apply finishes even if the client disconnects.
	ctx := context.WithoutCancel(c.Request.Context())
	res := h.approver.Process(ctx, runtime.ApprovalRequest{
		ChangesetID: id,
		Approved:    req.Approved,
		Validate:    dto.BoolOr(req.Validate, true),
	})
	c.JSON(http.StatusOK, res)
}
