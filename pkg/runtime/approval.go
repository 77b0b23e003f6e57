package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yinzara/ha-config-ai-agent/pkg/changeset"
	"github.com/yinzara/ha-config-ai-agent/pkg/configstore"
)

// ValidationFile names the synthetic failed file that reports a failed
// combined validation.
const ValidationFile = "validation"

// FileWriter is the part of the config store used to apply changesets.
type FileWriter interface {
	WriteRaw(ctx context.Context, path, content string, opts configstore.WriteOptions) error
	ValidateConfig(ctx context.Context) error
}

// Reloader asks Home Assistant to reload its configuration.
type Reloader interface {
	Available() bool
	ReloadConfiguration(ctx context.Context) error
}

// ApprovalRequest is the user's decision on a changeset.
type ApprovalRequest struct {
	ChangesetID string
	Approved    bool
	Validate    bool
}

// FailedFile reports one file that could not be applied.
type FailedFile struct {
	FilePath string `json:"file_path"`
	Error    string `json:"error"`
}

// ApprovalResult is the outcome of an approval request.
type ApprovalResult struct {
	Success        bool         `json:"success"`
	Applied        bool         `json:"applied"`
	Message        string       `json:"message"`
	AppliedFiles   []string     `json:"applied_files,omitempty"`
	FailedFiles    []FailedFile `json:"failed_files,omitempty"`
	ConfigReloaded *bool        `json:"config_reloaded,omitempty"`
}

// Approver applies or discards pending changesets.
type Approver struct {
	changesets *changeset.Store
	files      FileWriter
	reloader   Reloader
	onApplied  func(paths []string)
	log        *slog.Logger
}

// NewApprover creates an Approver. reloader may be nil.
func NewApprover(changesets *changeset.Store, files FileWriter, reloader Reloader, log *slog.Logger) *Approver {
	if log == nil {
		log = slog.Default()
	}
	return &Approver{
		changesets: changesets,
		files:      files,
		reloader:   reloader,
		log:        log,
	}
}

// OnApplied registers a callback receiving the paths written by each
// approved changeset.
func (a *Approver) OnApplied(fn func(paths []string)) {
	a.onApplied = fn
}

// Process handles one approval decision. The changeset is consumed in
// every case where it exists.
func (a *Approver) Process(ctx context.Context, req ApprovalRequest) ApprovalResult {
	decision := "rejected"
	if req.Approved {
		decision = "approved"
	}
	a.log.Info("processing approval", "changeset_id", req.ChangesetID, "decision", decision)

	cs, err := a.changesets.Claim(req.ChangesetID)
	switch {
	case errors.Is(err, changeset.ErrExpired):
		a.log.Warn("changeset expired", "changeset_id", req.ChangesetID)
		return expiredResult()
	case err != nil:
		return ApprovalResult{
			Success: false,
			Applied: false,
			Message: fmt.Sprintf("Changeset %s not found or has expired", req.ChangesetID),
		}
	}

	if !req.Approved {
		return ApprovalResult{Success: true, Applied: false, Message: "Changes rejected by user"}
	}

	if changeset.IsExpired(cs, a.changesets.Now()) {
		a.log.Warn("changeset expired", "changeset_id", cs.ID, "expires_at", cs.ExpiresAt)
		return expiredResult()
	}

	return a.apply(ctx, cs, req.Validate)
}

func expiredResult() ApprovalResult {
	return ApprovalResult{
		Success: false,
		Applied: false,
		Message: "Changeset has expired. Please re-propose the changes.",
	}
}

func (a *Approver) apply(ctx context.Context, cs *changeset.Changeset, validate bool) ApprovalResult {
	var (
		applied []string
		failed  []FailedFile
	)

	// Each write is validated on its own and rolled back by the store when
	// it fails; the combined validation below covers the files together.
	opts := configstore.WriteOptions{Validate: validate, CreateBackup: true}
	for _, fc := range cs.FileChanges {
		err := a.files.WriteRaw(ctx, fc.FilePath, fc.NewContent, opts)
		if err != nil {
			a.log.Error("failed to apply change", "path", fc.FilePath, "error", err)
			failed = append(failed, FailedFile{FilePath: fc.FilePath, Error: err.Error()})
			continue
		}
		a.log.Info("applied change", "path", fc.FilePath)
		applied = append(applied, fc.FilePath)
	}

	validationFailed := false
	if validate && len(applied) > 0 {
		a.log.Info("validating configuration after writing all files")
		if err := a.files.ValidateConfig(ctx); err != nil {
			// Applied files stay in place; their backups allow a manual restore.
			a.log.Error("configuration validation failed", "error", err)
			validationFailed = true
			failed = append(failed, FailedFile{
				FilePath: ValidationFile,
				Error:    fmt.Sprintf("Configuration validation failed: %v", err),
			})
		}
	}

	if len(applied) > 0 && a.onApplied != nil {
		a.onApplied(applied)
	}

	reloaded := false
	if len(applied) > 0 && !validationFailed {
		reloaded = a.reload(ctx)
	}

	if len(failed) > 0 {
		return ApprovalResult{
			Success:        true,
			Applied:        len(applied) > 0,
			Message:        fmt.Sprintf("Partially applied: %d succeeded, %d failed", len(applied), len(failed)),
			AppliedFiles:   applied,
			FailedFiles:    failed,
			ConfigReloaded: &reloaded,
		}
	}

	msg := fmt.Sprintf("Successfully applied changes to %d file(s)", len(applied))
	if reloaded {
		msg += " and reloaded Home Assistant configuration"
	}
	return ApprovalResult{
		Success:        true,
		Applied:        true,
		Message:        msg,
		AppliedFiles:   applied,
		ConfigReloaded: &reloaded,
	}
}

// reload is best effort: failures are logged only.
func (a *Approver) reload(ctx context.Context) bool {
	if a.reloader == nil || !a.reloader.Available() {
		a.log.Warn("no token available, skipping config reload")
		return false
	}
	if err := a.reloader.ReloadConfiguration(ctx); err != nil {
		a.log.Warn("failed to reload Home Assistant config", "error", err)
		return false
	}
	a.log.Info("Home Assistant configuration reloaded")
	return true
}
