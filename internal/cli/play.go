package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kwizz/kwizz-go/internal/apiclient"
	"github.com/kwizz/kwizz-go/internal/gamesync"
)

func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Join a game and answer questions",
	}
	cmd.AddCommand(newPlayJoinCommand(rootOpts))
	cmd.AddCommand(newPlayAnswerCommand(rootOpts))
	return cmd
}

func newPlayJoinCommand(rootOpts *RootOptions) *cobra.Command {
	var pin, team, buzzer string
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join a game by its pin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := rootOpts.client().Join(cmd.Context(), pin, team, buzzer)
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Success(res, func(w io.Writer) error {
				fmt.Fprintf(w, "Joined game %s as %q\n", res.GameID, res.Player.TeamName)
				fmt.Fprintf(w, "Player id: %s\n", res.PlayerID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&pin, "pin", "", "game pin (required)")
	cmd.Flags().StringVar(&team, "team", "", "team name (required)")
	cmd.Flags().StringVar(&buzzer, "buzzer", "", "buzzer sound")
	_ = cmd.MarkFlagRequired("pin")
	_ = cmd.MarkFlagRequired("team")
	return cmd
}

func newPlayAnswerCommand(rootOpts *RootOptions) *cobra.Command {
	var playerID string
	cmd := &cobra.Command{
		Use:   "answer <game-id> <answer>",
		Short: "Answer the question in play",
		Long: `Answer the question in play.

Sequence answers are separated by "|". Buzz-in questions take "BUZZ".
An answer given after the question's time limit is not sent.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, err := runAnswer(cmd.Context(), rootOpts, args[0], playerID, args[1])
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Success(outcome, func(w io.Writer) error { return renderOutcome(w, outcome) })
		},
	}
	cmd.Flags().StringVar(&playerID, "player", "", "player id from join (required)")
	_ = cmd.MarkFlagRequired("player")
	return cmd
}

func runAnswer(ctx context.Context, rootOpts *RootOptions, gameID, playerID, raw string) (*apiclient.AnswerOutcome, error) {
	client := rootOpts.client()
	handle, err := openHandle(ctx, client, gameID, gamesync.Options{})
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	return apiclient.NewPlayerController(client, handle, playerID).Answer(ctx, raw)
}

func renderOutcome(w io.Writer, o *apiclient.AnswerOutcome) error {
	if o.TimedOut {
		_, err := fmt.Fprintln(w, "Time is up, answer not sent")
		return err
	}
	r := o.Result.Response
	verdict := "incorrect"
	if r.IsCorrect != nil && *r.IsCorrect {
		verdict = "correct"
	}
	fmt.Fprintf(w, "Answer %q is %s: %d points\n", o.Answer.Encode(), verdict, r.Points)
	if o.Result.Duplicate {
		fmt.Fprintln(w, "(already answered, original response kept)")
	}
	return nil
}
