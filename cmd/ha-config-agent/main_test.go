package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{name: "debug", input: "DEBUG", want: slog.LevelDebug},
		{name: "verbose", input: "verbose", want: slog.LevelDebug},
		{name: "warning", input: "WARNING", want: slog.LevelWarn},
		{name: "warn", input: " warn ", want: slog.LevelWarn},
		{name: "error", input: "ERROR", want: slog.LevelError},
		{name: "info default", input: "INFO", want: slog.LevelInfo},
		{name: "empty", input: "", want: slog.LevelInfo},
		{name: "unknown", input: "nope", want: slog.LevelInfo},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := parseLogLevel(tc.input)
			if got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !strings.HasPrefix(out.String(), "ha-config-agent v"+Version) {
		t.Fatalf("unexpected output %q", out.String())
	}
}

func writeConfig(t *testing.T) (cfgPath, configDir string) {
	t.Helper()
	root := t.TempDir()
	configDir = filepath.Join(root, "config")
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	cfgPath = filepath.Join(root, "agent.yaml")
	body := "storage:\n  config_dir: " + configDir + "\n  backup_dir: " + filepath.Join(root, "backup") + "\nlog_level: ERROR\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath, configDir
}

func TestBackupsCommands(t *testing.T) {
	cfgPath, configDir := writeConfig(t)
	backupDir := filepath.Join(filepath.Dir(configDir), "backup")
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "scripts.yaml"), []byte("current: {}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	name := "scripts_20240102_030405.yaml.backup"
	if err := os.WriteFile(filepath.Join(backupDir, name), []byte("old: {}\n"), 0o644); err != nil {
		t.Fatalf("write backup: %v", err)
	}

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", cfgPath, "backups", "list", "scripts.yaml"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out.String(), name) || !strings.Contains(out.String(), "scripts.yaml") {
		t.Fatalf("backup missing from listing:\n%s", out.String())
	}

	out.Reset()
	cmd = newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--config", cfgPath, "backups", "restore", name, "--no-validate"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("restore: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(configDir, "scripts.yaml"))
	if err != nil || string(data) != "old: {}\n" {
		t.Fatalf("restore did not replace file: %q %v", data, err)
	}
}

func TestBackupsRestoreUnknown(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "backups", "restore", "missing_20240102_030405.yaml.backup"})
	if err := cmd.Execute(); err == nil {
		t.Fatalf("expected error for missing backup")
	}
}
