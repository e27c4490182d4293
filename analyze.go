package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"pdf_unmark/config"
	"pdf_unmark/logging"
	"pdf_unmark/pdf"
	"pdf_unmark/processor"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file>",
	Short: "Ask the processing service for watermark candidates",
	Args:  cobra.ExactArgs(1),
	RunE:  runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile, envFile)
	if err != nil {
		return err
	}
	logger := logging.New(logging.Config{
		Level:       cfg.Log.Level,
		Format:      "console",
		Output:      os.Stderr,
		ServiceName: "pdf_unmark",
	})

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	name := filepath.Base(path)
	_, mimeType, err := pdf.DetectKind(name, "", data)
	if err != nil {
		return err
	}

	client := processor.NewClient(cfg.Processor.URL, cfg.Processor.Timeout, logger)
	resp, err := client.Analyze(cmd.Context(), processor.File{Name: name, MIMEType: mimeType, Data: data})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
