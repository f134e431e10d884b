package cli

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/kwizz/kwizz-go/internal/apiclient"
	"github.com/kwizz/kwizz-go/internal/gamesync"
	"github.com/kwizz/kwizz-go/internal/model"
	"github.com/kwizz/kwizz-go/internal/telemetry"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	PollInterval time.Duration
	MaxRetries   int
}

func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <game-id>",
		Short: "Follow a game's leaderboard live",
		Long: `Follow a game's leaderboard as answers are scored.

The leaderboard is redrawn on every change pushed by the server. While the
change feed is down the game is polled instead, also after reconnecting has
been abandoned. Watching ends when the game finishes or on interrupt.

Examples:
  kwizz watch 0192f6c1-7d4e-7b0a-9c1e-3f5a2b8d9e10
  kwizz watch 0192f6c1-7d4e-7b0a-9c1e-3f5a2b8d9e10 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), opts, args[0], opts.formatter(cmd))
		},
	}

	cmd.Flags().DurationVar(&opts.PollInterval, "poll", gamesync.DefaultPollInterval, "poll interval while the feed is down")
	cmd.Flags().IntVar(&opts.MaxRetries, "max-retries", gamesync.DefaultMaxRetries, "reconnect attempts before giving up")

	return cmd
}

func runWatch(ctx context.Context, opts *WatchOptions, gameID string, out *OutputFormatter) error {
	client := opts.client()
	recorder := telemetry.NewRecorder(log.Logger, 0)

	handle, err := openHandle(ctx, client, gameID, gamesync.Options{
		PollInterval: opts.PollInterval,
		MaxRetries:   opts.MaxRetries,
		Telemetry:    recorder,
	})
	if err != nil {
		return err
	}
	defer handle.Close()

	show := func() error {
		lb := leaderboardFromHandle(handle)
		return out.Success(lb, func(w io.Writer) error { return RenderLeaderboard(w, lb) })
	}
	if err := show(); err != nil {
		return err
	}

	warned := false
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-handle.Updates():
			if !ok {
				return nil
			}
			if err := show(); err != nil {
				return err
			}
			if handle.Status() == gamesync.StatusError && !warned {
				warned = true
				health := recorder.Health()
				log.Warn().Err(handle.Err()).Str("health", string(health.Status)).Msg("Change feed lost, following by polling")
			}
			if handle.Game().Game.Status == model.GameStatusFinished {
				return nil
			}
		}
	}
}

func openHandle(ctx context.Context, client *apiclient.Client, gameID string, opts gamesync.Options) (*gamesync.Handle, error) {
	if opts.Telemetry == nil {
		opts.Telemetry = telemetry.NewRecorder(log.Logger, 0)
	}
	return gamesync.Open(ctx, gameID, client, client, opts)
}
