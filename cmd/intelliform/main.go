// Command intelliform is a terminal front end for the IntelliForm assistant.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ashureev/intelliform/internal/backend"
	"github.com/ashureev/intelliform/internal/pacing"
)

var (
	backendURL string
	thinkPause time.Duration
	timeout    time.Duration
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "intelliform",
	Short: "Government form assistant in the terminal",
	Long: `IntelliForm guides you through government forms (PAN card, driving
licence, passport) in a conversation and generates the completed PDF.

Available subcommands:
  chat   - Start an interactive conversation
  health - Probe the assistant backend once`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	_ = godotenv.Load()

	defaultURL := os.Getenv("BACKEND_URL")
	if defaultURL == "" {
		defaultURL = backend.DefaultClientConfig().BaseURL
	}
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend", defaultURL, "assistant backend base URL")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", backend.DefaultClientConfig().Timeout, "backend request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
	chatCmd.Flags().DurationVar(&thinkPause, "pause", pacing.DefaultThinkPause, "pause between consecutive assistant messages")

	rootCmd.AddCommand(chatCmd, healthCmd)
}

func newClient() (*backend.Client, error) {
	return backend.NewClient(backend.ClientConfig{BaseURL: backendURL, Timeout: timeout}, slog.Default())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
