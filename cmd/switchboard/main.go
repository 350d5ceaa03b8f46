// ABOUTME: Entry point for the switchboard support routing server
// ABOUTME: Cobra root command with serve plus operator subcommands

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/switchboard/internal/config"
	"github.com/2389/switchboard/internal/gateway"
)

// Version is set at build time.
var version = "dev"

const banner = `
               _ _       _     _                         _
 _____      __(_) |_ ___| |__ | |__   ___   __ _ _ __ __| |
/ __\ \ /\ / /| | __/ __| '_ \| '_ \ / _ \ / _' | '__/ _' |
\__ \\ V  V / | | || (__| | | | |_) | (_) | (_| | | | (_| |
|___/ \_/\_/  |_|\__\___|_| |_|_.__/ \___/ \__,_|_|  \__,_|
`

var configPath string

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "switchboard",
		Short:         "Real-time support routing between customers, representatives and an assistant",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $SWITCHBOARD_CONFIG or ~/.config/switchboard/config.yaml)")

	root.AddCommand(
		newServeCommand(),
		newHealthCommand(),
		newStatusCommand(),
		newRepsCommand(),
		newTokenCommand(),
	)
	return root
}

// loadConfig reads the --config file, falling back to config.DefaultPath.
func loadConfig() (*config.Config, string, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the switchboard server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, path, err := loadConfig()
	if err != nil {
		return err
	}
	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", path)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Assistant: ")
	if cfg.Assistant.Enabled() {
		cyan.Print(cfg.Assistant.Model)
		if !cfg.Assistant.HandoffEnabled() {
			gray.Print(" (auto handoff off)")
		}
	} else {
		yellow.Print("disabled")
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("Notify:    %s\n", notifyChannels(cfg.Notify))
	if cfg.Auth.JWTSecret == "" {
		yellow.Println("    ! auth.jwt_secret is empty: representative identities are not verified")
	}
	fmt.Println()

	logger.Info("starting switchboard",
		"config", path,
		"http_addr", cfg.Server.HTTPAddr,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}
	return gw.Run(ctx)
}

func notifyChannels(cfg config.NotifyConfig) string {
	var out string
	add := func(enabled bool, name string) {
		if !enabled {
			return
		}
		if out != "" {
			out += ", "
		}
		out += name
	}
	add(cfg.Email.Enabled, "email")
	add(cfg.Slack.Enabled, "slack")
	add(cfg.Matrix.Enabled, "matrix")
	if out == "" {
		return "none"
	}
	return out
}
