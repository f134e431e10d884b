package cli

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kwizz/kwizz-go/internal/model"
)

func NewQuizCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Upload and inspect quizzes",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "load <file.yaml>",
		Short: "Upload a quiz from a YAML file",
		Long: `Upload a quiz from a YAML file of the form:

  questions:
    - text: Capital of Peru?
      kind: letters
      answer: Lima
    - text: Pick the mammal
      kind: multiple_choice
      options: [Shark, Dolphin, Trout]
      answer: Dolphin
      time_limit_seconds: 15`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			quiz, err := LoadQuiz(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load quiz", err)
			}
			quizID, err := rootOpts.client().ImportQuiz(cmd.Context(), *quiz)
			if err != nil {
				return err
			}
			res := map[string]any{"quizId": quizID, "count": len(quiz.Questions)}
			return rootOpts.formatter(cmd).Success(res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "Quiz %s uploaded with %d questions\n", quizID, len(quiz.Questions))
				return err
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <quiz-id>",
		Short: "List a quiz's questions without answers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			questions, err := rootOpts.client().QuizQuestions(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Success(questions, func(w io.Writer) error { return renderQuestions(w, questions) })
		},
	})

	return cmd
}

// LoadQuiz reads a quiz file. Unknown fields are rejected so typos in
// field names are not silently dropped.
func LoadQuiz(path string) (*model.QuizImport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read quiz file: %w", err)
	}

	var quiz model.QuizImport
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&quiz); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if len(quiz.Questions) == 0 {
		return nil, errors.New("quiz has no questions")
	}
	return &quiz, nil
}
