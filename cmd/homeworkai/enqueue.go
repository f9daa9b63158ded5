package main

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/royengg/homeworkai/internal/analysis"
	"github.com/royengg/homeworkai/internal/queue"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <upload-id>",
	Short: "Create an analysis for an upload and queue it",
	Args:  cobra.ExactArgs(1),
	RunE:  runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	uploadID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid upload id %q: %w", args[0], err)
	}

	ctx := cmd.Context()
	e, err := connect(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	q, err := queue.New(e.db, queue.AnalysisQueue, e.cfg.QueueOptions())
	if err != nil {
		return fmt.Errorf("failed to create queue: %w", err)
	}
	sub, err := analysis.NewSubmitter(e.db, q).Submit(ctx, uploadID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(sub)
}
