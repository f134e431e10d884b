// Package cli implements the kwizz command-line client: watching a game's
// leaderboard live, running a game as host, playing as a team and managing
// credits and quizzes.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kwizz/kwizz-go/internal/apiclient"
)

const defaultServer = "http://localhost:8080"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Server  string
	Token   string
	Format  string // "text" | "json" | "yaml"
	Verbose bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

func (o *RootOptions) client() *apiclient.Client {
	return apiclient.New(o.Server, apiclient.WithToken(o.Token))
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout()}
}

// NewRootCommand creates the root command for the kwizz CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "kwizz",
		Short: "Kwizz live trivia client",
		Long:  "Host, play and watch Kwizz trivia games from the terminal.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			configureLogging(cmd.ErrOrStderr(), opts.Verbose)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.Server, "server", envOr("KWIZZ_SERVER", defaultServer), "Kwizz API base URL")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", os.Getenv("KWIZZ_TOKEN"), "host API token")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log sync activity to stderr")

	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewHostCommand(opts))
	cmd.AddCommand(NewPlayCommand(opts))
	cmd.AddCommand(NewCreditsCommand(opts))
	cmd.AddCommand(NewQuizCommand(opts))

	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cmd := NewRootCommand()
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	if err := cmd.ExecuteContext(ctx); err != nil {
		format, _ := cmd.PersistentFlags().GetString("format")
		f := &OutputFormatter{Format: format, Writer: cmd.ErrOrStderr()}
		_ = f.Error(err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

func configureLogging(w io.Writer, verbose bool) {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}).
		Level(level).
		With().Timestamp().Logger()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
