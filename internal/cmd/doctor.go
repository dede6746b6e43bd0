package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dativo-io/cloak/internal/config"
	"github.com/dativo-io/cloak/internal/doctor"
	"github.com/dativo-io/cloak/internal/llm"
)

var (
	doctorFormat       string
	doctorSkipUpstream bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run preflight checks (API key, provider, recognizer)",
	Long: `Verifies that an API key is configured and is not the sample value,
that the generation provider answers a test prompt, and that the entity
recognizer is ready.`,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().StringVar(&doctorFormat, "format", "text", "output format (text, json)")
	doctorCmd.Flags().BoolVar(&doctorSkipUpstream, "skip-upstream", false, "skip the provider test prompt")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx, span := tracer.Start(cmd.Context(), "doctor")
	defer span.End()

	opts := doctor.Options{SkipUpstream: doctorSkipUpstream}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "config: %v\n", err)
	} else {
		opts.Config = cfg
		opts.Provider, opts.ProviderErr = llm.New(cfg.LLMConfig())
		if rec, recErr := buildRecognizer(cfg); recErr == nil {
			opts.Recognizer = rec
		} else {
			fmt.Fprintf(cmd.ErrOrStderr(), "recognizer: %v\n", recErr)
		}
	}

	report := doctor.Run(ctx, opts)

	out := cmd.OutOrStdout()
	if doctorFormat == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		for _, c := range report.Checks {
			fmt.Fprintf(out, "%s %-22s %s\n", statusMark(c.Status), c.Name, c.Message)
			if c.Fix != "" && c.Status != "pass" {
				fmt.Fprintf(out, "  fix: %s\n", c.Fix)
			}
		}
		fmt.Fprintf(out, "\n%d passed, %d warnings, %d failed\n", report.Summary.Pass, report.Summary.Warn, report.Summary.Fail)
	}

	if report.Status == "fail" {
		return fmt.Errorf("doctor checks failed")
	}
	return nil
}

func statusMark(status string) string {
	switch status {
	case "pass":
		return "✓"
	case "warn":
		return "⚠"
	default:
		return "✗"
	}
}
