package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dativo-io/cloak/internal/config"
	"github.com/dativo-io/cloak/internal/server"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [text|-]",
	Short: "Analyze one text and print the JSON result",
	Long: `Runs the full pipeline once: recognize, sanitize, rewrite, restore.
Reads the text from the argument, or from stdin when the argument is "-" or
missing. The output has the same shape as the POST /analyze response.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "analyze")
	defer span.End()

	text, err := readInput(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	pipe, err := buildPipeline(cfg)
	if err != nil {
		return err
	}

	res, err := pipe.Analyze(ctx, text)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(server.NewAnalyzeResponse(res))
}

func readInput(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	data, err := io.ReadAll(io.LimitReader(stdin, server.DefaultMaxBodyBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading stdin: %w", err)
	}
	if int64(len(data)) > server.DefaultMaxBodyBytes {
		return "", fmt.Errorf("input exceeds %d bytes", server.DefaultMaxBodyBytes)
	}
	return strings.TrimRight(string(data), "\n"), nil
}
