package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/cloo-solutions/unirank/internal/pagination"
	"github.com/cloo-solutions/unirank/internal/repository"
	"github.com/spf13/cobra"
)

func QueriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Inspect the query log",
		Long:  "List logged queries and summarize how they ended",
	}

	cmd.AddCommand(QueriesListCmd())
	cmd.AddCommand(QueriesStatsCmd())

	return cmd
}

func QueriesListCmd() *cobra.Command {
	var (
		limit  int
		cursor string
		state  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List logged queries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			outputFormat, _ := cmd.Flags().GetString("output")
			return runQueriesList(cmd, outputFormat, limit, cursor, domain.QueryState(state))
		},
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of results")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Pagination cursor from previous response")
	cmd.Flags().StringVar(&state, "state", "", "Only show queries that ended in this state (answered or failed)")

	return cmd
}

func runQueriesList(cmd *cobra.Command, outputFormat string, limit int, cursorStr string, state domain.QueryState) error {
	ctx := context.Background()

	if state != "" && !state.Terminal() {
		return fmt.Errorf("--state must be %s or %s", domain.QueryStateAnswered, domain.QueryStateFailed)
	}
	cursor, err := pagination.DecodeCursor(cursorStr)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cmd.Flags())
	if err != nil {
		return err
	}
	defer a.Close()

	page, err := repository.NewQueryLogRepository(a.pool).ListWithCursor(ctx, cursor, state, limit)
	if err != nil {
		return fmt.Errorf("failed to list queries: %w", err)
	}

	return printQueryPage(cmd.OutOrStdout(), outputFormat, page)
}

func printQueryPage(w io.Writer, format string, page *repository.QueryLogPage) error {
	if format == "json" {
		data := make([]map[string]interface{}, len(page.Items))
		for i, e := range page.Items {
			item := map[string]interface{}{
				"id":             e.ID,
				"session_id":     e.SessionID,
				"query":          e.Query,
				"state":          e.State,
				"prompt_version": e.PromptVersion,
				"retrieved":      e.RetrievedCount,
				"passages":       e.PassageCount,
				"fallback":       e.CompressionFallback,
				"duration_ms":    e.DurationMs,
				"created_at":     e.CreatedAt,
			}
			if e.State == domain.QueryStateFailed {
				item["failed_stage"] = e.FailedStage
				item["error_code"] = e.ErrorCode
			}
			data[i] = item
		}
		output := map[string]interface{}{
			"items":    data,
			"cursor":   page.NextCursor,
			"has_more": page.HasMore,
		}
		jsonBytes, err := json.MarshalIndent(output, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(jsonBytes))
		return err
	}

	if len(page.Items) == 0 {
		fmt.Fprintln(w, "No queries found")
		return nil
	}
	fmt.Fprintln(w, "Queries:")
	for _, e := range page.Items {
		outcome := string(e.State)
		if e.State == domain.QueryStateFailed {
			outcome = fmt.Sprintf("failed at %s (%s)", e.FailedStage, e.ErrorCode)
		}
		fmt.Fprintf(w, "  %s  %-40q %s, %d passages, %dms\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"), e.Query, outcome, e.PassageCount, e.DurationMs)
	}
	if page.HasMore && page.NextCursor != "" {
		fmt.Fprintf(w, "\nMore results available. Use --cursor %s\n", page.NextCursor)
	}
	return nil
}

func QueriesStatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count queries by final state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			since, _ := cmd.Flags().GetDuration("since")

			a, err := newApp(ctx, cmd.Flags())
			if err != nil {
				return err
			}
			defer a.Close()

			counts, err := repository.NewQueryLogRepository(a.pool).CountByState(ctx, time.Now().Add(-since))
			if err != nil {
				return fmt.Errorf("failed to count queries: %w", err)
			}
			printQueryStats(cmd.OutOrStdout(), since, counts)
			return nil
		},
	}

	cmd.Flags().Duration("since", 24*time.Hour, "Only count queries logged within this window")

	return cmd
}

func printQueryStats(w io.Writer, since time.Duration, counts map[string]int64) {
	var total int64
	for _, n := range counts {
		total += n
	}

	fmt.Fprintf(w, "Queries in the last %s: %d\n", since, total)
	for _, state := range sortedKeys(counts) {
		fmt.Fprintf(w, "  %s: %d\n", state, counts[state])
	}
}
