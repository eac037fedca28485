// Package main implements the voicectl CLI for manual operations against the
// voiced HTTP server.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the voiced HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "voicectl",
	Short: "CLI for voiced HTTP server operations",
	Long: `voicectl is a command-line interface for interacting with the voiced server.
It provides commands for inspecting tenants, statistics, and storage, and for
deleting voice data.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8000", "voiced server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(usersCmd)
	rootCmd.AddCommand(personsCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(storageCmd)
	rootCmd.AddCommand(deleteUserCmd)
	rootCmd.AddCommand(deletePersonCmd)
	rootCmd.AddCommand(resetCmd)
	rootCmd.AddCommand(cacheClearCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check voiced server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/health")
	},
}

// usersCmd lists all tenants
var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List all registered users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/api/v1/users")
	},
}

// personsCmd lists a user's registered persons
var personsCmd = &cobra.Command{
	Use:   "persons <user-id>",
	Short: "List the persons registered for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/api/v1/users/" + url.PathEscape(args[0]) + "/persons")
	},
}

// statsCmd shows global or per-user statistics
var statsCmd = &cobra.Command{
	Use:   "stats [user-id]",
	Short: "Show global statistics, or one user's statistics",
	Long: `Show statistics about stored voice features.

Examples:
  # Global statistics across all users
  voicectl stats

  # One user's statistics
  voicectl stats alice`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return getJSON("/api/v1/stats/" + url.PathEscape(args[0]))
		}
		return getJSON("/api/v1/stats")
	},
}

// storageCmd shows storage backend info
var storageCmd = &cobra.Command{
	Use:   "storage",
	Short: "Show storage backend information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getJSON("/api/v1/storage/info")
	},
}

// deleteUserCmd removes all of a user's voice data
var deleteUserCmd = &cobra.Command{
	Use:   "delete-user <user-id>",
	Short: "Delete all voice features for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return doJSON(http.MethodDelete, "/api/v1/users/"+url.PathEscape(args[0]))
	},
}

// deletePersonCmd removes one person's records for a user
var deletePersonCmd = &cobra.Command{
	Use:   "delete-person <user-id> <person-name>",
	Short: "Delete one person's voice features for a user",
	Long: `Delete every non-self record registered under the given person name.
The user's own voice records are never removed by this command; use
delete-user for that.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return doJSON(http.MethodDelete,
			"/api/v1/users/"+url.PathEscape(args[0])+"/persons/"+url.PathEscape(args[1]))
	},
}

// resetCmd wipes the whole store
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Drop every user's collection and clear caches",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			return fmt.Errorf("refusing to reset without --force")
		}
		return doJSON(http.MethodPost, "/api/v1/storage/reset")
	},
}

// cacheClearCmd clears the read cache
var cacheClearCmd = &cobra.Command{
	Use:   "cache-clear",
	Short: "Clear the server's read cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		return doJSON(http.MethodPost, "/api/v1/cache/clear")
	},
}

func init() {
	resetCmd.Flags().Bool("force", false, "confirm the destructive reset")
}

// getJSON fetches a path and pretty-prints the JSON response.
func getJSON(path string) error {
	return doJSON(http.MethodGet, path)
}

// doJSON performs a request against the server and pretty-prints the JSON
// response body.
func doJSON(method, path string) error {
	client := &http.Client{Timeout: 30 * time.Second}

	req, err := http.NewRequest(method, serverURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("requesting %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}

	var pretty map[string]any
	if err := json.Unmarshal(body, &pretty); err != nil {
		// Not a JSON object; print as-is.
		fmt.Println(string(body))
		return nil
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
