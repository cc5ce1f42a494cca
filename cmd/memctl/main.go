// Package main implements the memctl CLI for manual operations against the memoryd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/memoryd/internal/memory"
)

var (
	// serverURL is the base URL for the memoryd HTTP server
	serverURL string
	// namespace is sent with every namespaced request; empty means the server default
	namespace string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "memctl",
	Short: "CLI for memoryd HTTP server operations",
	Long: `memctl is a command-line interface for interacting with the memoryd HTTP server.
It ingests memory payloads, runs keyword and vector recall, compacts sessions
and performs namespace administration.`,
	Version:      version,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8088", "memoryd server URL")
	rootCmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "", "namespace (default: server default)")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(recallCmd)
	rootCmd.AddCommand(summarizeCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(namespaceCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check memoryd server health",
	Long: `Check the health status of the memoryd HTTP server and its providers.

Examples:
  # Check health
  memctl health

  # Check health on a different server
  memctl health --server http://localhost:9090`,
	Args: cobra.NoArgs,
	RunE: runHealth,
}

// runHealth handles the health command
func runHealth(cmd *cobra.Command, _ []string) error {
	var health memory.Health
	if err := doJSON(http.MethodGet, "/health", nil, &health, 5*time.Second); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Server Status: %s\n", health.Status)
	fmt.Fprintf(out, "Server URL: %s\n", serverURL)
	fmt.Fprintf(out, "Embeddings: %s\n", providerStatus(health.EmbeddingProvider, health.EmbeddingAvailable))
	fmt.Fprintf(out, "Summarizer: %s\n", providerStatus(health.SummarizerProvider, health.SummarizerAvailable))
	fmt.Fprintf(out, "Reranker:   %s\n", providerStatus(health.RerankerProvider, health.RerankerAvailable))
	fmt.Fprintf(out, "Compaction: %t\n", health.CompactionEnabled)
	return nil
}

func providerStatus(name string, available bool) string {
	if available {
		return name + " (available)"
	}
	return name + " (unavailable)"
}

// errorResponse matches internal/http ErrorResponse
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// doJSON sends body as JSON (when non-nil) and decodes a 200 response into out.
func doJSON(method, path string, body, out any, timeout time.Duration) error {
	var reader io.Reader
	if body != nil {
		reqJSON, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(reqJSON)
	}

	endpoint := strings.TrimRight(serverURL, "/") + path
	httpReq, err := http.NewRequest(method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{
		Timeout: timeout,
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("failed to send request to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
		}
		var apiErr errorResponse
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned status %d (%s): %s", resp.StatusCode, apiErr.Kind, apiErr.Error)
		}
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// printJSON writes v as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func queryString(params map[string]string) string {
	values := url.Values{}
	for k, v := range params {
		if v != "" {
			values.Set(k, v)
		}
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}
