package main

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "creative-agent",
	Short: "AdCP creative agent: format catalog, manifest validation, previews and generation",
	Long: `creative-agent serves the AdCP standard creative formats.

Commands:
  creative-agent            Run the HTTP and MCP service (default)
  creative-agent serve      Same as above
  creative-agent formats    Print the format catalog
  creative-agent validate   Check a manifest file against a format`,
	CompletionOptions: cobra.CompletionOptions{
		DisableDefaultCmd: true,
	},
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, formatsCmd, validateCmd)
}

// newLogger builds the JSON logger used by every command. level accepts
// trace, debug, info, warn and error in any case.
func newLogger(level string, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "trace":
		logLevel = slog.LevelDebug - 4
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		AddSource: true,
		Level:     logLevel,
	}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
