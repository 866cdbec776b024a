package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/notes-bin/imghost/internal/auth"
	"github.com/notes-bin/imghost/internal/cleanup"
	"github.com/notes-bin/imghost/internal/model"

	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired guest uploads",
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		every, _ := cmd.Flags().GetDuration("every")

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if every > 0 {
			fmt.Printf("Sweeping every %s\n", every)
			a.Sweeper.Loop(ctx, every, dryRun)
			return nil
		}

		report, err := a.Sweeper.Run(ctx, dryRun)
		if err != nil {
			return err
		}
		printReport(report, dryRun)
		return nil
	},
}

func printReport(report *cleanup.Report, dryRun bool) {
	if len(report.Found) == 0 {
		fmt.Println("No expired images found.")
		return
	}
	if dryRun {
		fmt.Printf("[DRY RUN] Would delete %d expired images:\n", len(report.Found))
		for _, img := range report.Found {
			fmt.Printf("  - %s (expired at %s)\n", img.OriginalFilename, img.ExpiresAt.Format(time.RFC3339))
		}
		return
	}
	fmt.Println("Cleanup completed:")
	fmt.Printf("  - Deleted %d files\n", report.DeletedFiles)
	fmt.Printf("  - Deleted %d database records\n", report.DeletedRecords)
	if len(report.Errors) > 0 {
		fmt.Printf("  - %d errors occurred\n", len(report.Errors))
		for _, e := range report.Errors {
			fmt.Printf("    %s\n", e)
		}
	} else {
		fmt.Println("  - No errors")
	}
}

// token command
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage API access tokens",
}

var tokenCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		tok, err := a.Registry.Issue(ctx, name)
		if err != nil {
			return fmt.Errorf("creating token: %w", err)
		}
		fmt.Printf("Token created: %s\n", tok.Token)
		fmt.Printf("Name: %s\n", tok.Name)
		return nil
	},
}

var tokenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List access tokens",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		tokens, err := a.Registry.List(ctx)
		if err != nil {
			return fmt.Errorf("listing tokens: %w", err)
		}
		if len(tokens) == 0 {
			fmt.Println("No tokens.")
			return nil
		}
		for _, tok := range tokens {
			fmt.Println(formatToken(tok))
		}
		return nil
	},
}

func formatToken(tok *model.AccessToken) string {
	status := "active"
	if !tok.IsActive {
		status = "disabled"
	}
	lastUsed := "never"
	if tok.LastUsedAt != nil {
		lastUsed = tok.LastUsedAt.Format(time.RFC3339)
	}
	return fmt.Sprintf("%-20s %-8s uses=%-6d last_used=%s name=%s",
		tok.Preview(), status, tok.UsageCount, lastUsed, tok.Name)
}

var tokenDisableCmd = &cobra.Command{
	Use:   "disable <token>",
	Short: "Disable an access token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Registry.Disable(ctx, args[0]); err != nil {
			return fmt.Errorf("disabling token: %w", err)
		}
		fmt.Println("Token disabled.")
		return nil
	},
}

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Mint a session bearer token for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		username, _ := cmd.Flags().GetString("username")
		isAdmin, _ := cmd.Flags().GetBool("admin")
		ttl, _ := cmd.Flags().GetDuration("ttl")
		if userID == "" {
			return fmt.Errorf("--user is required")
		}
		if username == "" {
			username = userID
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		token, err := auth.NewSessions(cfg.JWTSecret).Issue(&model.User{ID: userID, Username: username, IsAdmin: isAdmin}, ttl)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	cleanupCmd.Flags().Bool("dry-run", false, "Show what would be deleted without deleting")
	cleanupCmd.Flags().Duration("every", 0, "Keep running and sweep at this interval")
	rootCmd.AddCommand(cleanupCmd)

	tokenCreateCmd.Flags().String("name", "", "Token name/description")
	tokenCreateCmd.MarkFlagRequired("name")
	tokenCmd.AddCommand(tokenCreateCmd)
	tokenCmd.AddCommand(tokenListCmd)
	tokenCmd.AddCommand(tokenDisableCmd)
	rootCmd.AddCommand(tokenCmd)

	sessionCmd.Flags().String("user", "", "User ID")
	sessionCmd.Flags().String("username", "", "Username (defaults to the user ID)")
	sessionCmd.Flags().Bool("admin", false, "Grant admin rights")
	sessionCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(sessionCmd)
}
