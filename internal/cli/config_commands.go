// Package cli: configuration management commands.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/crs4/moodle.omero-repository/internal/api"
	"github.com/crs4/moodle.omero-repository/internal/config"
	"github.com/crs4/moodle.omero-repository/internal/models"
)

// newConfigCmd creates the 'config' command group.
func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage omero-repo configuration",
		Long: `Configuration management commands for omero-repo.

Commands:
  show  - Display current configuration
  test  - Test the remote OMERO connection
  path  - Show configuration file path`,
	}

	configCmd.AddCommand(newConfigShowCmd())
	configCmd.AddCommand(newConfigTestCmd())
	configCmd.AddCommand(newConfigPathCmd())
	return configCmd
}

// newConfigShowCmd creates the 'config show' command.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("Endpoint:        %s\n", cfg.Endpoint)
			fmt.Printf("API dialect:     %s\n", cfg.APIDialect)
			fmt.Printf("API key:         %s\n", maskSecret(cfg.APIKey))
			fmt.Printf("Cache limit:     %d bytes\n", cfg.CacheLimitBytes)
			fmt.Printf("Blacklist:       %s\n", strings.Join(cfg.Blacklist, ", "))
			fmt.Printf("Listen:          %s\n", cfg.Server.Listen)
			fmt.Printf("References DB:   %s\n", cfg.Server.ReferencesDB)
			fmt.Printf("Sync interval:   %d min\n", cfg.Sync.IntervalMinutes)
			return nil
		},
	}
}

// newConfigTestCmd creates the 'config test' command.
func newConfigTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "test",
		Short: "Test the remote OMERO connection",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := api.NewClient(cfg, GetLogger())
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			creds := models.Credentials{AccessKey: cfg.APIKey, AccessSecret: cfg.APISecret}
			start := time.Now()
			projects, err := client.ListProjects(ctx, creds)
			if err != nil {
				return fmt.Errorf("connection test failed: %w", err)
			}
			fmt.Printf("OK: %d projects visible (%.2fs)\n", len(projects), time.Since(start).Seconds())
			return nil
		},
	}
}

// newConfigPathCmd creates the 'config path' command.
func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				fmt.Println(cfgFile)
				return nil
			}
			fmt.Println(config.DefaultConfigPath())
			return nil
		},
	}
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:4] + strings.Repeat("*", len(s)-4)
}
