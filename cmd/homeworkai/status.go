package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/royengg/homeworkai/internal/db"
	"github.com/royengg/homeworkai/internal/observability"
)

var (
	statusJobID string
	statusJSON  bool
)

var statusCmd = &cobra.Command{
	Use:   "status <analysis-id>",
	Short: "Show an analysis record and its output",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusJobID, "job", "", "Queue job id to show alongside the record")
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Print the raw record as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	analysisID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid analysis id %q: %w", args[0], err)
	}

	ctx := cmd.Context()
	e, err := connect(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	record, err := e.db.GetAnalysis(ctx, analysisID)
	if err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("analysis not found: %s", analysisID)
	}

	if statusJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(record)
	}

	var job *db.QueueJob
	if statusJobID != "" {
		jobID, err := uuid.Parse(statusJobID)
		if err != nil {
			return fmt.Errorf("invalid job id %q: %w", statusJobID, err)
		}
		if job, err = e.db.GetJob(ctx, jobID); err != nil {
			return err
		}
	}

	observability.NewPrinter(cmd.OutOrStdout()).PrintAnalysis(record, job)
	return nil
}
