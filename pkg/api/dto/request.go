package dto

import "github.com/yinzara/ha-config-ai-agent/pkg/types"

// ChatRequest is the body of a chat turn, over HTTP or WebSocket.
type ChatRequest struct {
	Message             string          `json:"message"`
	ConversationHistory []types.Message `json:"conversation_history,omitempty"`
}

// ApprovalRequest is the user's decision on a proposed changeset.
// ChangeID is the older name of ChangesetID.
type ApprovalRequest struct {
	ChangesetID string `json:"changeset_id"`
	ChangeID    string `json:"change_id"`
	Approved    bool   `json:"approved"`
	Validate    *bool  `json:"validate"`
}

// ID returns the changeset id under either field name.
func (r ApprovalRequest) ID() string {
	if r.ChangesetID != "" {
		return r.ChangesetID
	}
	return r.ChangeID
}

// RestoreBackupRequest restores one backup file.
type RestoreBackupRequest struct {
	BackupName string `json:"backup_name" binding:"required"`
	Validate   *bool  `json:"validate"`
}

// BoolOr dereferences b, returning def when it is nil.
func BoolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
