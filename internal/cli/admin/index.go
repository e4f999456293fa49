package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/cloo-solutions/unirank/internal/domain"
	"github.com/cloo-solutions/unirank/internal/repository"
	"github.com/spf13/cobra"
)

func IndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Manage vector indexes",
		Long:  "Create, describe and list the vector indexes that hold ranking chunks",
	}

	cmd.AddCommand(IndexCreateCmd())
	cmd.AddCommand(IndexDescribeCmd())
	cmd.AddCommand(IndexListCmd())

	return cmd
}

func IndexCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the configured index",
		Long: `Create the index named by UNIRANK_INDEX_NAME with the configured embedding
dimensions and similarity metric. Creating an existing, compatible index is a no-op.`,
		RunE: runIndexCreate,
	}

	cmd.Flags().String("index", "", "Index name (overrides UNIRANK_INDEX_NAME)")
	cmd.Flags().Bool("recreate", false, "Drop the existing index and all its chunks first")

	return cmd
}

func runIndexCreate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	recreate, _ := cmd.Flags().GetBool("recreate")

	a, err := newApp(ctx, cmd.Flags())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := repository.NewIndexRepository(a.pool).Create(ctx, a.spec, recreate); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Index ready: %s (%d dimensions, %s)\n", a.spec.Name, a.spec.Dimensions, a.spec.Metric)
	return nil
}

func IndexDescribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "describe [name]",
		Short: "Show an index and its chunk counts",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runIndexDescribe,
	}

	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runIndexDescribe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	outputFormat, _ := cmd.Flags().GetString("output")

	a, err := newApp(ctx, cmd.Flags())
	if err != nil {
		return err
	}
	defer a.Close()

	name := a.spec.Name
	if len(args) == 1 {
		name = args[0]
	}

	info, err := repository.NewIndexRepository(a.pool).Describe(ctx, name)
	if err != nil {
		return err
	}
	chunks := repository.NewChunkRepository(a.pool, info.IndexSpec)
	bySource, err := chunks.CountBySource(ctx)
	if err != nil {
		return fmt.Errorf("failed to count chunks: %w", err)
	}

	return printIndex(cmd.OutOrStdout(), outputFormat, info, bySource)
}

func printIndex(w io.Writer, format string, info *domain.IndexInfo, bySource map[string]int64) error {
	var total int64
	for _, n := range bySource {
		total += n
	}

	if format == "json" {
		data := map[string]interface{}{
			"name":       info.Name,
			"dimensions": info.Dimensions,
			"metric":     info.Metric,
			"created_at": info.CreatedAt,
			"chunks":     total,
			"sources":    bySource,
		}
		jsonBytes, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(jsonBytes))
		return err
	}

	fmt.Fprintf(w, "Index %s\n", info.Name)
	fmt.Fprintf(w, "  dimensions: %d\n", info.Dimensions)
	fmt.Fprintf(w, "  metric:     %s\n", info.Metric)
	fmt.Fprintf(w, "  created:    %s\n", info.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "  chunks:     %d\n", total)
	for _, source := range sortedKeys(bySource) {
		fmt.Fprintf(w, "    %s: %d\n", source, bySource[source])
	}
	return nil
}

func IndexListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered indexes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			a, err := newApp(ctx, cmd.Flags())
			if err != nil {
				return err
			}
			defer a.Close()

			indexes, err := repository.NewIndexRepository(a.pool).List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list indexes: %w", err)
			}

			w := cmd.OutOrStdout()
			if len(indexes) == 0 {
				fmt.Fprintln(w, "No indexes found")
				return nil
			}
			fmt.Fprintln(w, "Indexes:")
			for _, info := range indexes {
				fmt.Fprintf(w, "  %s: %d dimensions, %s (created: %s)\n",
					info.Name, info.Dimensions, info.Metric, info.CreatedAt.Format("2006-01-02 15:04:05"))
			}
			return nil
		},
	}
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
