// Command mcp-server exposes the analysis tools over the Model Context
// Protocol on stdio. It needs no external services.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cds-reasoning-server/internal/app"
	"github.com/cds-reasoning-server/internal/config"
	"github.com/cds-reasoning-server/internal/logging"
	"github.com/cds-reasoning-server/internal/mcp"
	"github.com/cds-reasoning-server/internal/setup"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var userID string

	root := &cobra.Command{
		Use:          "cds-mcp-server",
		Short:        "Clinical decision support MCP server",
		SilenceUsage: true,
	}

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP tools on stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(userID)
		},
	}
	serve.Flags().StringVar(&userID, "user", mcp.DefaultUserID, "user id recorded on audit entries")
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve, newSetupCmd())
	return root
}

func runServe(userID string) error {
	cfg := config.LoadLiteConfig()

	// stdout carries the protocol
	logger := logging.NewWithOutput(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.NewLite(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("Failed to release resources")
		}
	}()

	server, err := mcp.NewServer(a.Service, logger, mcp.WithUserID(userID))
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"data_dir": cfg.DataDir,
		"tools":    mcp.ToolNames,
	}).Info("Starting MCP server on stdio")

	return server.RunStdio(ctx)
}

func newSetupCmd() *cobra.Command {
	var (
		configPath string
		opts       setup.Options
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Register this server with a desktop MCP client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := clientConfigPath(configPath)
			if err != nil {
				return err
			}
			if opts.BinaryPath == "" {
				if opts.BinaryPath, err = currentBinary(); err != nil {
					return err
				}
			}
			entry, err := setup.Register(path, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registered %q in %s\n  command: %s\n", setup.ServerName, path, entry.Command)
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&configPath, "client-config", "", "MCP client config file (default: the desktop client's config)")
	cmd.Flags().StringVar(&opts.BinaryPath, "binary", "", "server binary to register (default: this executable)")
	cmd.Flags().StringVar(&opts.DataDir, "data-dir", "", "data directory passed as CDS_DATA_DIR")
	cmd.Flags().StringVar(&opts.LogLevel, "log-level", "", "log level passed as CDS_LOG_LEVEL")
	cmd.Flags().StringVar(&opts.ReferenceRangesFile, "reference-ranges", "", "reference range file passed as CDS_REFERENCE_RANGES_FILE")

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether the server is registered",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := clientConfigPath(configPath)
			if err != nil {
				return err
			}
			st, err := setup.GetStatus(path, config.DefaultLiteConfig().DataDir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config:     %s\n", st.ConfigPath)
			fmt.Fprintf(out, "Registered: %t\n", st.Configured)
			if st.Command != "" {
				fmt.Fprintf(out, "Command:    %s\n", st.Command)
			}
			fmt.Fprintf(out, "Data dir:   %s\n", st.DataDir)
			for _, issue := range st.Issues {
				fmt.Fprintf(out, "  ! %s\n", issue)
			}
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove",
		Short: "Remove the server from the MCP client config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := clientConfigPath(configPath)
			if err != nil {
				return err
			}
			removed, err := setup.Unregister(path)
			if err != nil {
				return err
			}
			if removed {
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %q from %s\n", setup.ServerName, path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%q was not registered in %s\n", setup.ServerName, path)
			}
			return nil
		},
	}

	cmd.AddCommand(status, remove)
	return cmd
}

func clientConfigPath(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	return setup.DefaultClientConfigPath()
}

func currentBinary() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate executable: %w", err)
	}
	return filepath.EvalSymlinks(exe)
}
