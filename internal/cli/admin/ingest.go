package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cloo-solutions/unirank/internal/repository"
	"github.com/cloo-solutions/unirank/internal/service"
	"github.com/spf13/cobra"
)

func IngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Index ranking source files",
		Long: `Read ranking JSON files from UNIRANK_SOURCE_DIR (or the configured S3 bucket),
embed every valid record and replace each ranking source's chunks in the index.
Files whose checksum is unchanged since their last ingestion are skipped unless --force is set.`,
		RunE: runIngest,
	}

	cmd.Flags().Bool("force", false, "Re-index every file, even unchanged ones")
	cmd.Flags().String("dir", "", "Local directory of ranking files (overrides UNIRANK_SOURCE_DIR)")
	cmd.Flags().String("prefix", "", "Bucket key prefix (overrides UNIRANK_S3_PREFIX)")
	cmd.Flags().String("index", "", "Vector index to write to (overrides UNIRANK_INDEX_NAME)")
	cmd.Flags().Bool("create-index", true, "Create the index when it does not exist")
	cmd.Flags().StringP("output", "o", "text", "Output format (text or json)")

	return cmd
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	force, _ := cmd.Flags().GetBool("force")
	createIndex, _ := cmd.Flags().GetBool("create-index")
	outputFormat, _ := cmd.Flags().GetString("output")

	a, err := newApp(ctx, cmd.Flags())
	if err != nil {
		return err
	}
	defer a.Close()

	if createIndex {
		if err := repository.NewIndexRepository(a.pool).Create(ctx, a.spec, false); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	} else if err := a.verifyIndex(ctx); err != nil {
		return err
	}

	ingestion, err := a.ingestion(ctx)
	if err != nil {
		return err
	}

	report, runErr := ingestion.Run(ctx, force)
	if report != nil {
		if outputFormat == "json" {
			if err := printReportJSON(cmd.OutOrStdout(), report); err != nil {
				return err
			}
		} else {
			printReport(cmd.OutOrStdout(), report)
		}
	}
	if runErr != nil {
		return fmt.Errorf("ingestion finished with errors: %w", runErr)
	}
	return nil
}

func printReport(w io.Writer, report *service.IngestionReport) {
	fmt.Fprintf(w, "Ranking sources at %s:\n", report.Location)
	if len(report.Objects) == 0 {
		fmt.Fprintln(w, "  no ranking files found")
		return
	}
	for _, o := range report.Objects {
		switch {
		case o.Skipped:
			fmt.Fprintf(w, "  %s: unchanged\n", o.Key)
		case o.Err != nil:
			fmt.Fprintf(w, "  %s: failed: %v\n", o.Key, o.Err)
		case o.Removed:
			fmt.Fprintf(w, "  %s: removed, %d chunks deleted\n", o.Key, o.Deleted)
		default:
			fmt.Fprintf(w, "  %s: %d records, %d invalid, %d chunks (%s)\n",
				o.Key, o.Records, o.Invalid, o.Written, o.Duration.Round(time.Millisecond))
		}
		for _, p := range o.Problems {
			fmt.Fprintf(w, "    skipped %s\n", p)
		}
	}
	fmt.Fprintf(w, "\n%d of %d files indexed, %d chunks written\n", report.Ingested(), len(report.Objects), report.Chunks())
}

func printReportJSON(w io.Writer, report *service.IngestionReport) error {
	objects := make([]map[string]interface{}, len(report.Objects))
	for i, o := range report.Objects {
		item := map[string]interface{}{
			"key":      o.Key,
			"checksum": o.Checksum,
			"skipped":  o.Skipped,
			"removed":  o.Removed,
			"records":  o.Records,
			"invalid":  o.Invalid,
			"chunks":   o.Written,
			"sources":  o.Sources,
			"problems": o.Problems,
		}
		if o.Err != nil {
			item["error"] = o.Err.Error()
		}
		objects[i] = item
	}
	output := map[string]interface{}{
		"location": report.Location,
		"ingested": report.Ingested(),
		"chunks":   report.Chunks(),
		"objects":  objects,
	}
	jsonBytes, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(jsonBytes))
	return err
}
