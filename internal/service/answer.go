package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	apperrors "github.com/kwizz/kwizz-go/internal/errors"
	"github.com/kwizz/kwizz-go/internal/model"
	"github.com/kwizz/kwizz-go/internal/repository"
	"github.com/kwizz/kwizz-go/internal/scoring"
)

// AnswerGrace is how long after a question's deadline an answer is still
// accepted, to absorb transit time from a player who answered in time.
const AnswerGrace = 2 * time.Second

type SubmitAnswerParams struct {
	GameID     string
	PlayerID   string
	QuestionID string
	Answer     string
	SpeedMs    int
}

type SubmitResult struct {
	Response *model.Response `json:"response"`
	// Duplicate is set when the player had already answered; Response is
	// then the original submission.
	Duplicate bool `json:"duplicate"`
}

// AnswerService scores and records player answers.
type AnswerService struct {
	db        TxRunner
	games     repository.GameRepository
	players   repository.PlayerRepository
	responses repository.ResponseRepository
	questions repository.QuestionRepository
	now       func() time.Time
}

func NewAnswerService(
	db TxRunner,
	games repository.GameRepository,
	players repository.PlayerRepository,
	responses repository.ResponseRepository,
	questions repository.QuestionRepository,
) *AnswerService {
	return &AnswerService{
		db:        db,
		games:     games,
		players:   players,
		responses: responses,
		questions: questions,
		now:       time.Now,
	}
}

// Submit scores an answer to the current question and credits the player.
// A second submission for the same question returns the first unchanged.
//
// The game row stays locked from the first read until the response and the
// score increment commit, so answers to one game are scored one at a time:
// at most one buzz-in wins and a recorded correct answer is always credited.
func (s *AnswerService) Submit(ctx context.Context, params SubmitAnswerParams) (*SubmitResult, error) {
	if !validID(params.GameID) {
		return nil, apperrors.NotFound("Game")
	}
	if !validID(params.PlayerID) {
		return nil, apperrors.NotFound("Player")
	}
	if !validID(params.QuestionID) {
		return nil, apperrors.NotFound("Question")
	}

	var result *SubmitResult
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		result, err = s.submit(ctx, tx, params)
		return err
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return s.existingResult(ctx, params.PlayerID, params.QuestionID)
		}
		return nil, err
	}
	if result.Duplicate {
		return result, nil
	}

	if err := s.players.Touch(ctx, params.PlayerID); err != nil {
		log.Warn().Err(err).Str("playerId", params.PlayerID).Msg("failed to update last seen")
	}

	response := result.Response
	log.Info().
		Str("gameId", params.GameID).
		Str("playerId", params.PlayerID).
		Str("questionId", params.QuestionID).
		Bool("correct", response.IsCorrect != nil && *response.IsCorrect).
		Int("points", response.Points).
		Msg("answer recorded")

	return result, nil
}

func (s *AnswerService) submit(ctx context.Context, tx *sqlx.Tx, params SubmitAnswerParams) (*SubmitResult, error) {
	games := s.games.WithTx(tx)
	players := s.players.WithTx(tx)
	responses := s.responses.WithTx(tx)
	questions := s.questions.WithTx(tx)

	game, err := games.LockByID(ctx, params.GameID)
	if err != nil {
		return nil, fmt.Errorf("lock game: %w", err)
	}
	if game == nil {
		return nil, apperrors.NotFound("Game")
	}
	if game.Status != model.GameStatusActive {
		return nil, apperrors.Conflict("Game is not accepting answers")
	}
	if game.CurrentQuestionID == nil || *game.CurrentQuestionID != params.QuestionID {
		return nil, apperrors.Conflict("Question is not the current question")
	}

	player, err := players.FindByID(ctx, params.PlayerID)
	if err != nil {
		return nil, fmt.Errorf("find player: %w", err)
	}
	if player == nil || player.GameID != game.ID {
		return nil, apperrors.NotFound("Player")
	}

	if existing, err := responses.FindByPlayerAndQuestion(ctx, player.ID, params.QuestionID); err != nil {
		return nil, fmt.Errorf("find response: %w", err)
	} else if existing != nil {
		return &SubmitResult{Response: existing, Duplicate: true}, nil
	}

	question, err := questions.FindByID(ctx, params.QuestionID)
	if err != nil {
		return nil, fmt.Errorf("find question: %w", err)
	}
	if question == nil {
		return nil, apperrors.NotFound("Question")
	}

	// The reported speed is the client's; the window is enforced here.
	if deadline := game.QuestionDeadline(question.TimeLimit()); deadline != nil {
		if s.now().After(deadline.Add(AnswerGrace)) {
			return nil, apperrors.Conflict("Answer window has closed")
		}
	}

	var prior []model.Response
	if question.Kind == model.KindBuzzIn {
		prior, err = responses.ListByQuestion(ctx, game.ID, question.ID)
		if err != nil {
			return nil, fmt.Errorf("list responses: %w", err)
		}
	}

	// An unknown kind leaves answer nil, which scores as incorrect.
	answer, _ := model.ParseAnswer(question.Kind, params.Answer)
	result := scoring.Score(question, scoring.Submission{Answer: answer, ElapsedMs: params.SpeedMs}, prior)

	encoded := params.Answer
	if answer != nil {
		encoded = answer.Encode()
	}
	speed := params.SpeedMs
	if speed < 0 {
		speed = 0
	}

	response, err := responses.Create(ctx, model.CreateResponseParams{
		GameID:     game.ID,
		PlayerID:   player.ID,
		QuestionID: question.ID,
		Answer:     &encoded,
		IsCorrect:  &result.IsCorrect,
		SpeedMs:    speed,
		Points:     result.Points,
	})
	if err != nil {
		return nil, fmt.Errorf("create response: %w", err)
	}

	if result.IsCorrect && result.Points > 0 {
		credited, err := players.AddScore(ctx, player.ID, result.Points)
		if err != nil {
			return nil, fmt.Errorf("add score: %w", err)
		}
		if credited == nil {
			return nil, fmt.Errorf("add score: player %s vanished", player.ID)
		}
	}

	return &SubmitResult{Response: response}, nil
}

// existingResult resolves a concurrent duplicate submission to the row that
// won the insert.
func (s *AnswerService) existingResult(ctx context.Context, playerID, questionID string) (*SubmitResult, error) {
	existing, err := s.responses.FindByPlayerAndQuestion(ctx, playerID, questionID)
	if err != nil {
		return nil, fmt.Errorf("find response: %w", err)
	}
	if existing == nil {
		return nil, apperrors.Conflict("Answer could not be recorded")
	}
	return &SubmitResult{Response: existing, Duplicate: true}, nil
}
