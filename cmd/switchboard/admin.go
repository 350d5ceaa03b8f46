// ABOUTME: Operator subcommands for health checks, representative accounts and tokens
// ABOUTME: Talks to a running server over HTTP or to the database directly

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/2389/switchboard/internal/auth"
	"github.com/2389/switchboard/internal/store"
)

func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that a running server is healthy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			resp, err := get(cmd.Context(), fmt.Sprintf("http://%s/health", cfg.Server.HTTPAddr))
			if err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
			}
			fmt.Println("healthy")
			return nil
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show live and polling connection counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			resp, err := get(cmd.Context(), fmt.Sprintf("http://%s/api/polling/status", cfg.Server.HTTPAddr))
			if err != nil {
				return fmt.Errorf("fetching status: %w", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("status request failed: %d", resp.StatusCode)
			}

			var st struct {
				Status            string    `json:"status"`
				ActiveConnections int       `json:"activeConnections"`
				WaitingPolls      int       `json:"waitingPolls"`
				LiveConnections   int       `json:"liveConnections"`
				Timestamp         time.Time `json:"timestamp"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
				return fmt.Errorf("decoding status: %w", err)
			}

			green := color.New(color.FgGreen)
			green.Printf("%s", st.Status)
			fmt.Printf(" at %s\n", st.Timestamp.Local().Format(time.RFC3339))
			fmt.Printf("  websocket connections: %d\n", st.LiveConnections)
			fmt.Printf("  poll sessions:         %d (%d waiting)\n", st.ActiveConnections, st.WaitingPolls)
			return nil
		},
	}
}

func newRepsCommand() *cobra.Command {
	reps := &cobra.Command{
		Use:   "reps",
		Short: "Manage representative accounts",
	}

	var (
		id, name, email string
		admin           bool
	)
	add := &cobra.Command{
		Use:   "add",
		Short: "Create a representative",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name = strings.TrimSpace(name)
			if name == "" {
				return errors.New("--name is required")
			}
			if id == "" {
				id = uuid.NewString()
			}
			role := store.RoleRepresentative
			if admin {
				role = store.RoleAdmin
			}

			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			user := &store.User{ID: id, Name: name, Email: email, Role: role, Status: store.UserOffline}
			if err := s.CreateUser(cmd.Context(), user); err != nil {
				return fmt.Errorf("creating representative: %w", err)
			}

			color.New(color.FgGreen).Print("✓ ")
			fmt.Printf("created %s %s (%s)\n", role, user.Name, user.ID)
			return nil
		},
	}
	add.Flags().StringVar(&id, "id", "", "user id (default: random UUID)")
	add.Flags().StringVarP(&name, "name", "n", "", "display name shown to customers")
	add.Flags().StringVar(&email, "email", "", "contact email")
	add.Flags().BoolVar(&admin, "admin", false, "grant the admin role")

	list := &cobra.Command{
		Use:   "list",
		Short: "List representatives",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			users, err := s.ListUsers(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing representatives: %w", err)
			}
			if len(users) == 0 {
				fmt.Println("no representatives")
				return nil
			}
			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNAME\tROLE\tSTATUS\tEMAIL")
			for _, u := range users {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Role, u.Status, u.Email)
			}
			return tw.Flush()
		},
	}

	reps.AddCommand(add, list)
	return reps
}

func newTokenCommand() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a representative",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("auth.jwt_secret is not configured")
			}
			verifier, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
			if err != nil {
				return err
			}

			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			// Refuse tokens the server would reject anyway.
			if _, err := auth.NewResolver(s, nil).Resolve(cmd.Context(), userID, ""); err != nil {
				return fmt.Errorf("user %s: %w", userID, err)
			}

			token, err := verifier.Generate(userID, ttl)
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "representative user id")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}

func openStore() (*store.SQLiteStore, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	path := cfg.Database.Path
	if env := os.Getenv("SWITCHBOARD_DB_PATH"); env != "" {
		path = env
	}
	s, err := store.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return s, nil
}

func get(ctx context.Context, url string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c cancelOnClose) Close() error {
	defer c.cancel()
	return c.ReadCloser.Close()
}
