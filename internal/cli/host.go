package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kwizz/kwizz-go/internal/apiclient"
	"github.com/kwizz/kwizz-go/internal/gamesync"
	"github.com/kwizz/kwizz-go/internal/model"
)

func NewHostCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "host",
		Short: "Register as a host and run games",
	}
	cmd.AddCommand(newHostRegisterCommand(rootOpts))
	cmd.AddCommand(newHostCreateCommand(rootOpts))
	cmd.AddCommand(newHostControlCommand(rootOpts, "start", "Start a game at its first question", (*apiclient.HostController).Start))
	cmd.AddCommand(newHostControlCommand(rootOpts, "next", "Move a game to its next question", (*apiclient.HostController).Advance))
	cmd.AddCommand(newHostControlCommand(rootOpts, "finish", "End a game", (*apiclient.HostController).Finish))
	return cmd
}

type registerResult struct {
	Host  *model.Host `json:"host"`
	Token string      `json:"token"`
}

func newHostRegisterCommand(rootOpts *RootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a host account and print its API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			host, token, err := rootOpts.client().RegisterHost(cmd.Context(), name)
			if err != nil {
				return err
			}
			res := registerResult{Host: host, Token: token}
			return rootOpts.formatter(cmd).Success(res, func(w io.Writer) error {
				fmt.Fprintf(w, "Host %s registered with %d free credits\n", host.ID, host.FreeCreditsRemaining)
				fmt.Fprintf(w, "Token (shown once): %s\n", token)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "host display name (required)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newHostCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var quizID string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a game lobby for a quiz, spending one credit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			game, err := rootOpts.client().CreateGame(cmd.Context(), quizID)
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Success(game, func(w io.Writer) error { return renderGame(w, game) })
		},
	}
	cmd.Flags().StringVar(&quizID, "quiz", "", "quiz id (required)")
	_ = cmd.MarkFlagRequired("quiz")
	return cmd
}

type hostAction func(*apiclient.HostController, context.Context) (*model.Game, error)

func newHostControlCommand(rootOpts *RootOptions, use, short string, action hostAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <game-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			game, err := runHostAction(cmd.Context(), rootOpts, args[0], action)
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Success(game, func(w io.Writer) error { return renderGame(w, game) })
		},
	}
}

// runHostAction mirrors the game so the command's effect is applied
// locally first and rolled back if the server rejects it.
func runHostAction(ctx context.Context, rootOpts *RootOptions, gameID string, action hostAction) (*model.Game, error) {
	client := rootOpts.client()
	handle, err := openHandle(ctx, client, gameID, gamesync.Options{})
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	questions, err := client.QuizQuestions(ctx, handle.Game().Game.QuizID)
	if err != nil {
		return nil, err
	}
	return action(apiclient.NewHostController(client, handle, questions), ctx)
}
