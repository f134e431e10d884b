package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/kwizz/kwizz-go/internal/errors"
	"github.com/kwizz/kwizz-go/internal/model"
	"github.com/kwizz/kwizz-go/internal/repository"
)

const maxTeamNameLength = 32

var pinPattern = regexp.MustCompile(`^[1-9][0-9]{3}$`)

// GameService runs the host-side lifecycle of a game and player joins.
type GameService struct {
	games     repository.GameRepository
	players   repository.PlayerRepository
	responses repository.ResponseRepository
	questions repository.QuestionRepository
	ledger    *CreditLedger
	now       func() time.Time
}

func NewGameService(
	games repository.GameRepository,
	players repository.PlayerRepository,
	responses repository.ResponseRepository,
	questions repository.QuestionRepository,
	ledger *CreditLedger,
) *GameService {
	return &GameService{
		games:     games,
		players:   players,
		responses: responses,
		questions: questions,
		ledger:    ledger,
		now:       time.Now,
	}
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func (s *GameService) CreateSession(ctx context.Context, quizID, hostID string) (*model.Game, error) {
	if !validID(quizID) {
		return nil, apperrors.InvalidInput("quizId", "must be a UUID")
	}
	return s.ledger.ReserveAndCreateSession(ctx, quizID, hostID)
}

// Game returns one game without its players or responses.
func (s *GameService) Game(ctx context.Context, gameID string) (*model.Game, error) {
	return s.findGame(ctx, gameID)
}

// Snapshot returns the game with all its players and responses.
func (s *GameService) Snapshot(ctx context.Context, gameID string) (*model.Snapshot, error) {
	game, err := s.findGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	players, err := s.players.ListByGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	responses, err := s.responses.ListByGame(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("list responses: %w", err)
	}
	return &model.Snapshot{Game: game, Players: players, Responses: responses}, nil
}

// Join adds a team to the unfinished game holding pin.
func (s *GameService) Join(ctx context.Context, pin, teamName, buzzerSound string) (*model.Player, error) {
	pin = strings.TrimSpace(pin)
	if !pinPattern.MatchString(pin) {
		return nil, apperrors.InvalidInput("pin", "must be four digits")
	}
	teamName = strings.TrimSpace(teamName)
	if teamName == "" {
		return nil, apperrors.MissingRequired("teamName")
	}
	if utf8.RuneCountInString(teamName) > maxTeamNameLength {
		return nil, apperrors.ValidationError(fmt.Sprintf("Team name must be at most %d characters", maxTeamNameLength))
	}

	game, err := s.games.FindOpenByPin(ctx, pin)
	if err != nil {
		return nil, fmt.Errorf("find game by pin: %w", err)
	}
	if game == nil {
		return nil, apperrors.NotFound("Game")
	}

	player, err := s.players.Create(ctx, model.CreatePlayerParams{
		GameID:      game.ID,
		TeamName:    teamName,
		BuzzerSound: strings.TrimSpace(buzzerSound),
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, apperrors.DuplicateParticipantName(teamName)
		}
		return nil, fmt.Errorf("create player: %w", err)
	}

	log.Info().
		Str("gameId", game.ID).
		Str("playerId", player.ID).
		Str("teamName", teamName).
		Msg("player joined")

	return player, nil
}

// Start moves a lobby game to its first question.
func (s *GameService) Start(ctx context.Context, gameID, hostID string) (*model.Game, error) {
	game, err := s.hostGame(ctx, gameID, hostID)
	if err != nil {
		return nil, err
	}
	if game.Status != model.GameStatusLobby {
		return nil, apperrors.InvalidStateTransition(string(game.Status), string(model.GameStatusActive))
	}

	first, err := s.questions.First(ctx, game.QuizID)
	if err != nil {
		return nil, fmt.Errorf("find first question: %w", err)
	}
	if first == nil {
		return nil, apperrors.ValidationError("Quiz has no questions")
	}

	return s.transition(ctx, game, model.GameStatusActive, &first.ID)
}

// Advance moves to the next question, or finishes the game after the last.
func (s *GameService) Advance(ctx context.Context, gameID, hostID string) (*model.Game, error) {
	game, err := s.hostGame(ctx, gameID, hostID)
	if err != nil {
		return nil, err
	}
	if game.Status != model.GameStatusActive {
		return nil, apperrors.InvalidStateTransition(string(game.Status), string(model.GameStatusActive))
	}

	var next *model.Question
	if game.CurrentQuestionID == nil {
		next, err = s.questions.First(ctx, game.QuizID)
	} else {
		var current *model.Question
		current, err = s.questions.FindByID(ctx, *game.CurrentQuestionID)
		if err == nil && current != nil {
			next, err = s.questions.NextAfter(ctx, game.QuizID, current.QuestionOrder)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("find next question: %w", err)
	}

	if next == nil {
		return s.transition(ctx, game, model.GameStatusFinished, nil)
	}
	return s.transition(ctx, game, model.GameStatusActive, &next.ID)
}

func (s *GameService) Finish(ctx context.Context, gameID, hostID string) (*model.Game, error) {
	game, err := s.hostGame(ctx, gameID, hostID)
	if err != nil {
		return nil, err
	}
	if !game.Status.CanTransitionTo(model.GameStatusFinished) {
		return nil, apperrors.InvalidStateTransition(string(game.Status), string(model.GameStatusFinished))
	}
	return s.transition(ctx, game, model.GameStatusFinished, nil)
}

// CurrentQuestion returns the question in play, or nil between questions.
func (s *GameService) CurrentQuestion(ctx context.Context, gameID string) (*model.Question, error) {
	game, err := s.findGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.CurrentQuestionID == nil {
		return nil, nil
	}
	q, err := s.questions.FindByID(ctx, *game.CurrentQuestionID)
	if err != nil {
		return nil, fmt.Errorf("find question: %w", err)
	}
	return q, nil
}

// transition writes the new state conditionally on the status just read.
// The question start time is stamped whenever the question changes.
func (s *GameService) transition(ctx context.Context, game *model.Game, to model.GameStatus, questionID *string) (*model.Game, error) {
	update := model.GameProgress{Status: to, CurrentQuestionID: questionID}
	if questionID != nil {
		startedAt := s.now().UTC()
		update.QuestionStartedAt = &startedAt
	}

	updated, err := s.games.SetProgress(ctx, game.ID, game.Status, update)
	if err != nil {
		return nil, fmt.Errorf("update game: %w", err)
	}
	if updated == nil {
		return nil, apperrors.Conflict("Game was changed concurrently")
	}

	log.Info().
		Str("gameId", game.ID).
		Str("from", string(game.Status)).
		Str("to", string(to)).
		Msg("game transitioned")

	return updated, nil
}

func (s *GameService) findGame(ctx context.Context, gameID string) (*model.Game, error) {
	if !validID(gameID) {
		return nil, apperrors.NotFound("Game")
	}
	game, err := s.games.FindByID(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("find game: %w", err)
	}
	if game == nil {
		return nil, apperrors.NotFound("Game")
	}
	return game, nil
}

func (s *GameService) hostGame(ctx context.Context, gameID, hostID string) (*model.Game, error) {
	game, err := s.findGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game.HostID != hostID {
		return nil, apperrors.Forbidden("Only the host can control this game")
	}
	return game, nil
}
