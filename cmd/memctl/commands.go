package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/memoryd/internal/memory"
	"github.com/fyrsmithlabs/memoryd/internal/store"
)

var (
	queryProject string
	queryEntity  string
	queryLimit   int

	recallScope   string
	recallProject string
	recallEntity  string
	recallTopK    int

	summarizeProject   string
	summarizeMaxEvents int

	backfillScope     string
	backfillLimit     int
	backfillBatchSize int
	backfillDryRun    bool
)

func init() {
	queryCmd.Flags().StringVar(&queryProject, "project", "", "restrict to a project slug")
	queryCmd.Flags().StringVar(&queryEntity, "entity", "", "restrict to an entity slug")
	queryCmd.Flags().IntVar(&queryLimit, "limit", 0, "maximum results (default: server default)")

	recallCmd.Flags().StringVar(&recallScope, "scope", string(memory.ScopeKnowledge), "knowledge, requirements or events")
	recallCmd.Flags().StringVar(&recallProject, "project", "", "restrict to a project slug")
	recallCmd.Flags().StringVar(&recallEntity, "entity", "", "restrict to an entity slug")
	recallCmd.Flags().IntVar(&recallTopK, "top-k", 0, "number of results (default: server default)")

	summarizeCmd.Flags().StringVar(&summarizeProject, "project", "", "restrict to a project slug")
	summarizeCmd.Flags().IntVar(&summarizeMaxEvents, "max-events", 0, "archive at most this many of the oldest events")

	backfillCmd.Flags().StringVar(&backfillScope, "scope", string(memory.ScopeKnowledge), "knowledge, requirements or events")
	backfillCmd.Flags().IntVar(&backfillLimit, "limit", 0, "maximum rows to process (0 = all)")
	backfillCmd.Flags().IntVar(&backfillBatchSize, "batch-size", 0, "rows per embedding batch (default: server default)")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "count rows without writing embeddings")

	namespaceCmd.AddCommand(namespaceCreateCmd)
}

// ingestCmd posts an ingest payload from a file or stdin
var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Ingest a JSON payload from a file or stdin",
	Long: `Ingest entities, requirements, knowledge items and events.

The payload is the JSON body accepted by POST /ingest. --namespace overrides
the namespace field of the payload.

Examples:
  # Ingest a file
  memctl ingest payload.json

  # Ingest from stdin into a namespace
  cat payload.json | memctl ingest - --namespace team-a`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func runIngest(cmd *cobra.Command, args []string) error {
	var content []byte
	var err error

	if len(args) == 0 || args[0] == "-" {
		content, err = io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read from stdin: %w", err)
		}
	} else {
		content, err = os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
	}

	if len(strings.TrimSpace(string(content))) == 0 {
		return fmt.Errorf("no content to ingest")
	}

	var req memory.IngestRequest
	if err := json.Unmarshal(content, &req); err != nil {
		return fmt.Errorf("invalid ingest payload: %w", err)
	}
	if namespace != "" {
		req.Namespace = namespace
	}

	var resp struct {
		Namespace string              `json:"namespace"`
		Counts    memory.IngestCounts `json:"counts"`
	}
	if err := doJSON(http.MethodPost, "/ingest", req, &resp, 2*time.Minute); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Ingested into %s: %d entities, %d requirements, %d knowledge items, %d events\n",
		resp.Namespace, resp.Counts.Entities, resp.Counts.Requirements, resp.Counts.KnowledgeItems, resp.Counts.Events)
	return nil
}

// queryCmd runs a keyword query
var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Keyword search across entities, requirements, knowledge and events",
	Long: `Run a keyword query. Without text, the most recent records are returned.

Examples:
  memctl query deploy --project api --limit 10`,
	Args: cobra.ArbitraryArgs,
	RunE: runQuery,
}

func runQuery(cmd *cobra.Command, args []string) error {
	params := map[string]string{
		"q":            strings.Join(args, " "),
		"namespace":    namespace,
		"project_slug": queryProject,
		"entity_slug":  queryEntity,
	}
	if queryLimit > 0 {
		params["limit"] = strconv.Itoa(queryLimit)
	}

	var resp memory.QueryResponse
	if err := doJSON(http.MethodGet, "/query"+queryString(params), nil, &resp, 30*time.Second); err != nil {
		return err
	}
	return printJSON(cmd, resp)
}

// recallCmd runs a vector recall
var recallCmd = &cobra.Command{
	Use:   "recall <text>",
	Short: "Vector recall over knowledge, requirements or events",
	Long: `Embed the query text on the server and return the nearest records.

Examples:
  memctl recall "how do we deploy" --scope knowledge --top-k 3`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRecall,
}

func runRecall(cmd *cobra.Command, args []string) error {
	req := memory.RecallRequest{
		Namespace:   namespace,
		Scope:       memory.Scope(recallScope),
		QueryText:   strings.Join(args, " "),
		ProjectSlug: recallProject,
		EntitySlug:  recallEntity,
	}
	if cmd.Flags().Changed("top-k") {
		topK := recallTopK
		req.TopK = &topK
	}

	var resp memory.RecallResponse
	if err := doJSON(http.MethodPost, "/recall", req, &resp, time.Minute); err != nil {
		return err
	}
	return printJSON(cmd, resp)
}

// summarizeCmd summarizes and archives a session
var summarizeCmd = &cobra.Command{
	Use:   "summarize <session-id>",
	Short: "Summarize a session into knowledge and archive its events",
	Long: `Summarize the unarchived events of a session into a knowledge item and
archive them.

Examples:
  memctl summarize sess-42 --max-events 100`,
	Args: cobra.ExactArgs(1),
	RunE: runSummarize,
}

func runSummarize(cmd *cobra.Command, args []string) error {
	req := memory.SummarizeRequest{
		Namespace:   namespace,
		SessionID:   args[0],
		ProjectSlug: summarizeProject,
		MaxEvents:   summarizeMaxEvents,
	}

	var resp memory.SummarizeResult
	if err := doJSON(http.MethodPost, "/summarize_clear", req, &resp, 5*time.Minute); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Archived %d events from session %s\n", resp.ArchivedEvents, resp.SessionID)
	fmt.Fprintf(cmd.OutOrStdout(), "Summary knowledge item: %s\n", resp.SummaryKnowledgeItemID)
	return nil
}

// backfillCmd embeds rows that have no embedding yet
var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Backfill missing embeddings",
	Long: `Compute embeddings for rows stored without one, newest first.

Examples:
  # See how many knowledge items would be embedded
  memctl backfill --dry-run

  # Embed events in batches of 32
  memctl backfill --scope events --batch-size 32`,
	Args: cobra.NoArgs,
	RunE: runBackfill,
}

func runBackfill(cmd *cobra.Command, _ []string) error {
	req := memory.BackfillRequest{
		Namespace: namespace,
		Scope:     memory.Scope(backfillScope),
		Limit:     backfillLimit,
		BatchSize: backfillBatchSize,
		DryRun:    backfillDryRun,
	}

	var resp memory.BackfillResult
	if err := doJSON(http.MethodPost, "/admin/backfill-embeddings", req, &resp, 30*time.Minute); err != nil {
		return err
	}

	verb := "Updated"
	if resp.DryRun {
		verb = "Would update"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %d %s rows in %s (%d skipped)\n", verb, resp.Updated, resp.Scope, resp.Namespace, resp.Skipped)
	return nil
}

var namespaceCmd = &cobra.Command{
	Use:   "namespace",
	Short: "Manage namespaces",
}

var namespaceCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a namespace (no-op if it exists)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var ns store.Namespace
		req := map[string]string{"name": args[0]}
		if err := doJSON(http.MethodPost, "/admin/namespaces", req, &ns, 30*time.Second); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Namespace %s (created %s)\n", ns.Name, ns.CreatedAt.Format(time.RFC3339))
		return nil
	},
}
