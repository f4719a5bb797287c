// Package main implements the revctl CLI for manual operations against
// the reviewd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the reviewd HTTP server
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
	Use:   "revctl",
	Short: "CLI for reviewd HTTP server operations",
	Long: `revctl is a command-line interface for interacting with the reviewd server.
It provides commands for creating review sessions, advancing them through the
workflow, and fetching their reports.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "reviewd server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(createCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(advanceCmd)
	rootCmd.AddCommand(reportCmd)
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check reviewd server health",
	RunE:  runHealth,
}

var createCmd = &cobra.Command{
	Use:   "create [key=value ...]",
	Short: "Create a review session",
	Long: `Create a review session, optionally attaching metadata.

Examples:
  revctl create
  revctl create project=C06-4997 standard=gold`,
	RunE: runCreate,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List review sessions",
	RunE:  runList,
}

var statusCmd = &cobra.Command{
	Use:   "status <session-id>",
	Short: "Show a session's stage progress",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var advanceCmd = &cobra.Command{
	Use:   "advance <session-id> <stage>",
	Short: "Run the named stage of a session",
	Long: `Run the named stage of a session.

Stages run in order: initialize, discover, map, extract_evidence,
validate, report, human_review, complete. A completed stage may be
re-run; skipping ahead is refused.`,
	Args: cobra.ExactArgs(2),
	RunE: runAdvance,
}

var reportCmd = &cobra.Command{
	Use:   "report <session-id>",
	Short: "Fetch a session's review report as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runReport,
}

// HealthResponse matches internal/httpapi HealthResponse
type HealthResponse struct {
	Status string `json:"status"`
}

func runHealth(cmd *cobra.Command, args []string) error {
	body, err := get("/health", 5*time.Second)
	if err != nil {
		return err
	}

	var health HealthResponse
	if err := json.Unmarshal(body, &health); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", health.Status)
	return nil
}

func runCreate(cmd *cobra.Command, args []string) error {
	metadata := make(map[string]string)
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || k == "" {
			return fmt.Errorf("metadata must be key=value, got %q", arg)
		}
		metadata[k] = v
	}

	payload := map[string]any{}
	if len(metadata) > 0 {
		payload["metadata"] = metadata
	}

	body, err := post("/api/v1/sessions", payload, 10*time.Second)
	if err != nil {
		return err
	}
	return printJSON(body)
}

func runList(cmd *cobra.Command, args []string) error {
	body, err := get("/api/v1/sessions", 10*time.Second)
	if err != nil {
		return err
	}
	return printJSON(body)
}

func runStatus(cmd *cobra.Command, args []string) error {
	body, err := get("/api/v1/sessions/"+args[0], 10*time.Second)
	if err != nil {
		return err
	}
	return printJSON(body)
}

func runAdvance(cmd *cobra.Command, args []string) error {
	body, err := post("/api/v1/sessions/"+args[0]+"/advance",
		map[string]any{"stage": args[1]}, 10*time.Minute)
	if err != nil {
		return err
	}
	return printJSON(body)
}

func runReport(cmd *cobra.Command, args []string) error {
	body, err := get("/api/v1/sessions/"+args[0]+"/report", 30*time.Second)
	if err != nil {
		return err
	}
	return printJSON(body)
}

func get(path string, timeout time.Duration) ([]byte, error) {
	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(serverURL + path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s%s: %w", serverURL, path, err)
	}
	defer resp.Body.Close()
	return readResponse(resp)
}

func post(path string, payload any, timeout time.Duration) ([]byte, error) {
	reqJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, serverURL+path, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s%s: %w", serverURL, path, err)
	}
	defer resp.Body.Close()
	return readResponse(resp)
}

func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func printJSON(body []byte) error {
	var out bytes.Buffer
	if err := json.Indent(&out, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(out.String())
	return nil
}
