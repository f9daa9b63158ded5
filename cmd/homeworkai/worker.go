package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/royengg/homeworkai/internal/analysis"
	"github.com/royengg/homeworkai/internal/llm"
	"github.com/royengg/homeworkai/internal/queue"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Process analysis jobs from the queue",
	Long: `Claim analysis jobs one at a time, run the homework or assignment strategy and record the
result. Assignment sections are checkpointed as they finish, so an interrupted job resumes on its
next attempt. Stops gracefully on SIGINT/SIGTERM; an interrupted job is picked up again once its
lease expires.`,
	Args: cobra.NoArgs,
	RunE: runWorker,
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func runWorker(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	e, err := connect(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	if err := e.cfg.RequireAPIKey(); err != nil {
		return err
	}

	llmConfig := e.cfg.LLMConfig()
	client, err := llm.NewClient(ctx, llmConfig, e.cfg.GoogleAPIKey)
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	defer client.Close() //nolint:errcheck

	caller := llm.NewCaller(client, llmConfig, e.logger)
	processor := analysis.NewProcessor(e.db,
		analysis.NewHomeworkStrategy(caller, e.db),
		analysis.NewAssignmentStrategy(caller, e.db, analysis.WithThrottle(e.cfg.Worker.SectionThrottle)),
		e.logger,
	)

	worker, err := queue.NewWorker(e.db, queue.AnalysisQueue, processor.Handle, e.cfg.QueueOptions(), e.logger,
		queue.WithDeadLetter(processor.Abandon),
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	e.logger.Info("model chain", "provider", llmConfig.Provider, "models", caller.Models())
	return worker.Run(ctx)
}
