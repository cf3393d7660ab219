package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"sqltrace.xyz/sqlna/internal/config"
	"sqltrace.xyz/sqlna/internal/engine"
	"sqltrace.xyz/sqlna/internal/log"
)

var outputFormat string

var analyzeCmd = &cobra.Command{
	Use:   "analyze <file-spec>",
	Short: "Ingest capture files and summarize the reconstructed conversations",
	Long: `Analyze expands the file spec (wildcards * and ? are allowed), orders
the matched capture files by the timestamp of their first frame, ingests
them into one trace and prints a per-conversation summary.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().StringVarP(&outputFormat, "output", "o", "text",
		"output format: text | yaml")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	logger, err := log.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}

	eng := engine.New(cfg.Engine, logger)
	t, err := eng.Analyze(args[0])
	if err != nil {
		return err
	}

	summary := engine.Summarize(t)
	switch outputFormat {
	case "text":
		return summary.WriteText(os.Stdout)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		defer enc.Close()
		return enc.Encode(summary)
	default:
		return fmt.Errorf("unsupported output format: %s (must be text or yaml)", outputFormat)
	}
}
