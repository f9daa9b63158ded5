package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/royengg/homeworkai/internal/analysis"
	"github.com/royengg/homeworkai/internal/db"
)

var uploadCmd = &cobra.Command{
	Use:   "upload <text-file>",
	Short: "Register an already parsed document as an upload",
	Long: `Create an upload from a plain text file and store its text as the parse result, so it can
be analysed with 'enqueue'. Prints the upload id.`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func init() {
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	path := args[0]
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	text := string(content)
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%s is empty", path)
	}

	ctx := cmd.Context()
	e, err := connect(ctx)
	if err != nil {
		return err
	}
	defer e.Close()

	upload, err := e.db.CreateUpload(ctx, &db.UploadInput{
		Filename:   filepath.Base(path),
		StorageKey: "local/" + filepath.Base(path),
	})
	if err != nil {
		return err
	}
	if err := e.db.SaveParseText(ctx, upload.ID, text); err != nil {
		return err
	}

	kind := "homework"
	if analysis.IsAssignment(text) {
		kind = "assignment"
	}
	e.logger.Info("upload created", "upload_id", upload.ID, "chars", len([]rune(text)), "detected", kind)
	fmt.Fprintln(cmd.OutOrStdout(), upload.ID)
	return nil
}
