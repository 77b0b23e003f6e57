package homeassistant

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ValidatorConfig locates the REST API used for configuration checks.
type ValidatorConfig struct {
	APIURL  string
	Token   string
	Timeout time.Duration
}

// Validator runs the core configuration check.
type Validator struct {
	config ValidatorConfig
	client *http.Client
	log    *slog.Logger
}

// NewValidator creates a configuration validator.
func NewValidator(cfg ValidatorConfig, log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Validator{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    log,
	}
}

type checkConfigResponse struct {
	Result string `json:"result"`
	Errors any    `json:"errors"`
}

// CheckConfig asks Home Assistant to validate its configuration. Without a
// token the check is skipped and nil is returned.
func (v *Validator) CheckConfig(ctx context.Context) error {
	if v.config.Token == "" {
		v.log.Warn("no home assistant token, skipping configuration validation")
		return nil
	}

	url := strings.TrimRight(v.config.APIURL, "/") + "/config/core/check_config"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("build check_config request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+v.config.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("check_config: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		v.log.Error("check_config returned error status", "status", resp.StatusCode, "body", string(body))
		return fmt.Errorf("%w (HTTP %d)", ErrConfigInvalid, resp.StatusCode)
	}

	var result checkConfigResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode check_config response: %w", err)
	}
	if result.Result == "valid" {
		v.log.Info("configuration validation passed")
		return nil
	}

	detail := result.Errors
	if detail == nil {
		detail = "unknown validation error"
	}
	return fmt.Errorf("%w:\n%v", ErrConfigInvalid, detail)
}
