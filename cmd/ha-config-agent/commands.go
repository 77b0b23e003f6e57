package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	goruntime "runtime"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/yinzara/ha-config-ai-agent/pkg/api"
	"github.com/yinzara/ha-config-ai-agent/pkg/app"
	"github.com/yinzara/ha-config-ai-agent/pkg/config"
	"github.com/yinzara/ha-config-ai-agent/pkg/configstore"
)

// Version can be overridden at build time with -ldflags "-X main.Version=...".
var Version = "0.1.0"

const janitorInterval = time.Minute

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "ha-config-agent",
		Short:         "AI assistant for Home Assistant configuration",
		Long:          "Chat with a model that reads Home Assistant configuration and proposes changes for approval.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (yaml or toml)")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newBackupsCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ha-config-agent v%s (%s/%s)\n", Version, goruntime.GOOS, goruntime.GOARCH)
		},
	}
}

func newBackupsCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List and restore configuration backups",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list [file]",
		Short: "List backups, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			store, _, err := app.OpenStore(cfg, logger)
			if err != nil {
				return err
			}
			file := ""
			if len(args) == 1 {
				file = args[0]
			}
			infos, err := store.ListBackups(file)
			if err != nil {
				return err
			}
			return printBackups(cmd.OutOrStdout(), infos)
		},
	})

	var noValidate bool
	restore := &cobra.Command{
		Use:   "restore <backup-name>",
		Short: "Restore a backup over its original file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts.configPath)
			if err != nil {
				return err
			}
			store, _, err := app.OpenStore(cfg, logger)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := store.RestoreBackup(ctx, args[0], !noValidate); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %s\n", args[0])
			return nil
		},
	}
	restore.Flags().BoolVar(&noValidate, "no-validate", false, "Skip the Home Assistant configuration check")
	cmd.AddCommand(restore)

	return cmd
}

func printBackups(w io.Writer, infos []configstore.BackupInfo) error {
	if len(infos) == 0 {
		fmt.Fprintln(w, "no backups")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tFILE\tTIMESTAMP\tSIZE")
	for _, b := range infos {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", b.Name, b.OriginalFile, b.Timestamp.Format(time.DateTime), b.Size)
	}
	return tw.Flush()
}

func loadConfig(path string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	return cfg, logger, nil
}

func runServe(parent context.Context, opts *rootOptions) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, logger, err := loadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Info("=== Home Assistant config agent starting ===", "version", Version)
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	go a.RunJanitor(ctx, janitorInterval)

	srv := api.NewServer(api.Config{
		Addr:    cfg.HTTP.Addr,
		APIKey:  cfg.HTTP.APIKey,
		Version: Version,
	}, api.Deps{
		Chat:     a.Runtime,
		Approver: a.Approver,
		Backups:  a.Store,
	}, logger.With("component", "api"))

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("http api stopped")
	return nil
}

func parseLogLevel(level string) slog.Level {
	normalized := strings.ToUpper(strings.TrimSpace(level))
	switch normalized {
	case "DEBUG", "VERBOSE":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
