package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dativo-io/cloak/internal/config"
	cloakotel "github.com/dativo-io/cloak/internal/otel"
)

// resolvedVersion returns Version unless it is "dev" and Go build info
// contains a real module version (e.g. from go install ...@v0.3.1).
func resolvedVersion() string {
	if Version != "dev" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return Version
}

// tracer is the package-level tracer for all CLI commands
var tracer = cloakotel.Tracer("github.com/dativo-io/cloak/internal/cmd")

var (
	// otelShutdown holds the OTel shutdown function, called from Execute()
	otelShutdown func(context.Context) error

	// logFileWriter is closed from Execute() when --log-file is set
	logFileWriter *lumberjack.Logger

	// Version info injected via ldflags at build time
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	// Global flags
	cfgFile      string
	verbose      bool
	logLevel     string
	logFormat    string
	logFile      string
	logMaxSizeMB int
	otelFlag     bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cloak",
	Short: "PII-safe text rewriting",
	Long: `Cloak finds personal information in text, replaces it with category
placeholders such as [Name] or [Location], has a language model reword the
sanitized text, and puts the original values back into the answer.

The model never sees the detected personal data.`,
	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()

		// Initialize OpenTelemetry when --otel, -v, or CLOAK_OTEL_ENABLED=true
		otelEnabled := otelFlag || verbose || os.Getenv("CLOAK_OTEL_ENABLED") == "true"
		shutdown, err := cloakotel.Setup("cloak", resolvedVersion(), otelEnabled)
		if err != nil {
			return fmt.Errorf("initializing OpenTelemetry: %w", err)
		}
		otelShutdown = shutdown
		return nil
	},
}

func setupLogging() {
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// All structured logs go to stderr so stdout stays clean for piping (e.g. cloak analyze | jq).
	var console io.Writer = os.Stderr
	if logFormat != "json" {
		console = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	out := console
	if logFile != "" {
		logFileWriter = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    logMaxSizeMB,
			MaxBackups: 5,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(console, logFileWriter)
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./cloak.config.yaml or ~/.cloak/cloak.config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log format (console, json)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write JSON logs to this file, rotated by size")
	rootCmd.PersistentFlags().IntVar(&logMaxSizeMB, "log-max-size", 100, "log file size in MB before rotation")
	rootCmd.PersistentFlags().BoolVar(&otelFlag, "otel", false, "enable OpenTelemetry (traces and metrics to stdout)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("otel", rootCmd.PersistentFlags().Lookup("otel"))
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log_format", rootCmd.PersistentFlags().Lookup("log-format"))
}

func initConfig() {
	// .env first so its values are visible to viper's env lookup.
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.cloak")
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("cloak.config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("CLOAK")
	viper.AutomaticEnv()

	// Read config (ignore errors - file may not exist)
	_ = viper.ReadInConfig()
}

// Execute runs the root command and flushes OTel on exit
func Execute() error {
	err := rootCmd.Execute()
	if otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = otelShutdown(ctx)
	}
	if logFileWriter != nil {
		_ = logFileWriter.Close()
	}
	return err
}
