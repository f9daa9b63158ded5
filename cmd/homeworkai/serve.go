package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/royengg/homeworkai/internal/analysis"
	"github.com/royengg/homeworkai/internal/queue"
	"github.com/royengg/homeworkai/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server that submits analyses to the queue and streams their status.`,
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	e, err := connect(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	if servePort != 0 {
		e.cfg.Server.Port = servePort
	}

	q, err := queue.New(e.db, queue.AnalysisQueue, e.cfg.QueueOptions())
	if err != nil {
		return fmt.Errorf("failed to create queue: %w", err)
	}

	srv := server.New(server.Config{
		Addr:        e.cfg.Addr(),
		CORSOrigins: e.cfg.Server.CORSOrigins,
		Logger:      e.logger,
	}, analysis.NewSubmitter(e.db, q), e.db)
	return srv.Start(ctx)
}
