package apiclient

import (
	"context"
	"sort"
	"time"

	apperrors "github.com/kwizz/kwizz-go/internal/errors"
	"github.com/kwizz/kwizz-go/internal/gamesync"
	"github.com/kwizz/kwizz-go/internal/model"
)

// GameMirror is the part of a sync handle the controllers drive.
type GameMirror interface {
	GameID() string
	Game() gamesync.GameView
	ApplyOptimistic(fn gamesync.Mutator) gamesync.MutationID
	Revert(id gamesync.MutationID) bool
}

type HostCommands interface {
	Start(ctx context.Context, gameID string) (*model.Game, error)
	Advance(ctx context.Context, gameID string) (*model.Game, error)
	Finish(ctx context.Context, gameID string) (*model.Game, error)
}

// HostController issues host commands and shows their effect locally before
// the server confirms it. A rejected command is rolled back.
type HostController struct {
	commands  HostCommands
	mirror    GameMirror
	questions []model.Question
	now       func() time.Time
}

// NewHostController takes the quiz's questions so the next question can be
// predicted. They are sorted by question order.
func NewHostController(commands HostCommands, mirror GameMirror, questions []model.Question) *HostController {
	sorted := append([]model.Question(nil), questions...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].QuestionOrder < sorted[j].QuestionOrder })
	return &HostController{commands: commands, mirror: mirror, questions: sorted, now: time.Now}
}

func (h *HostController) Start(ctx context.Context) (*model.Game, error) {
	var first *string
	if len(h.questions) > 0 {
		first = &h.questions[0].ID
	}
	return h.apply(ctx, h.commands.Start, h.moveTo(model.GameStatusActive, first))
}

// Advance moves to the next question, or finishes after the last one.
func (h *HostController) Advance(ctx context.Context) (*model.Game, error) {
	current := h.mirror.Game().Game
	next := h.nextAfter(current.CurrentQuestionID)
	if next == nil {
		return h.apply(ctx, h.commands.Advance, h.moveTo(model.GameStatusFinished, nil))
	}
	return h.apply(ctx, h.commands.Advance, h.moveTo(model.GameStatusActive, &next.ID))
}

func (h *HostController) Finish(ctx context.Context) (*model.Game, error) {
	return h.apply(ctx, h.commands.Finish, h.moveTo(model.GameStatusFinished, nil))
}

func (h *HostController) apply(
	ctx context.Context,
	cmd func(ctx context.Context, gameID string) (*model.Game, error),
	mutate gamesync.Mutator,
) (*model.Game, error) {
	id := h.mirror.ApplyOptimistic(mutate)
	game, err := cmd(ctx, h.mirror.GameID())
	if err != nil {
		h.mirror.Revert(id)
		return nil, err
	}
	return game, nil
}

func (h *HostController) moveTo(status model.GameStatus, questionID *string) gamesync.Mutator {
	startedAt := h.now().UTC()
	return func(g *model.Game) {
		g.Status = status
		if questionID == nil {
			g.CurrentQuestionID = nil
			g.QuestionStartedAt = nil
			return
		}
		id := *questionID
		g.CurrentQuestionID = &id
		g.QuestionStartedAt = &startedAt
	}
}

func (h *HostController) nextAfter(currentID *string) *model.Question {
	if currentID == nil {
		if len(h.questions) == 0 {
			return nil
		}
		return &h.questions[0]
	}
	for i := range h.questions {
		if h.questions[i].ID == *currentID {
			if i+1 < len(h.questions) {
				return &h.questions[i+1]
			}
			return nil
		}
	}
	return nil
}

type PlayerCommands interface {
	CurrentQuestion(ctx context.Context, gameID string) (*model.QuestionInPlay, error)
	SubmitAnswer(ctx context.Context, gameID string, req AnswerRequest) (*AnswerResult, error)
}

// AnswerOutcome is what happened to a player's answer. TimedOut answers
// were never sent.
type AnswerOutcome struct {
	Answer   model.Answer
	TimedOut bool
	Result   *AnswerResult
}

type PlayerController struct {
	commands PlayerCommands
	mirror   GameMirror
	playerID string
	now      func() time.Time

	question *model.Question
}

func NewPlayerController(commands PlayerCommands, mirror GameMirror, playerID string) *PlayerController {
	return &PlayerController{commands: commands, mirror: mirror, playerID: playerID, now: time.Now}
}

// Question returns the question in play, fetching it when it changed.
func (p *PlayerController) Question(ctx context.Context) (*model.Question, error) {
	game := p.mirror.Game().Game
	if game.Status != model.GameStatusActive || game.CurrentQuestionID == nil {
		return nil, apperrors.Conflict("No question in play")
	}
	if p.question != nil && p.question.ID == *game.CurrentQuestionID {
		return p.question, nil
	}

	inPlay, err := p.commands.CurrentQuestion(ctx, p.mirror.GameID())
	if err != nil {
		return nil, err
	}
	if inPlay.Question == nil || inPlay.Question.ID != *game.CurrentQuestionID {
		return nil, apperrors.Conflict("Question changed while loading")
	}
	p.question = inPlay.Question
	return p.question, nil
}

// Answer submits raw for the current question. Once the question's time
// has run out the answer becomes a local timeout and nothing is sent.
func (p *PlayerController) Answer(ctx context.Context, raw string) (*AnswerOutcome, error) {
	q, err := p.Question(ctx)
	if err != nil {
		return nil, err
	}

	game := p.mirror.Game().Game
	now := p.now()
	if deadline := game.QuestionDeadline(q.TimeLimit()); deadline != nil && !now.Before(*deadline) {
		return &AnswerOutcome{Answer: model.TimeoutAnswer{}, TimedOut: true}, nil
	}

	answer, err := model.ParseAnswer(q.Kind, raw)
	if err != nil {
		return nil, apperrors.InvalidInput("answer", err.Error())
	}

	var elapsed int
	if game.QuestionStartedAt != nil {
		elapsed = int(now.Sub(*game.QuestionStartedAt).Milliseconds())
	}

	result, err := p.commands.SubmitAnswer(ctx, p.mirror.GameID(), AnswerRequest{
		PlayerID:   p.playerID,
		QuestionID: q.ID,
		Answer:     answer.Encode(),
		SpeedMs:    elapsed,
	})
	if err != nil {
		return nil, err
	}
	return &AnswerOutcome{Answer: answer, Result: result}, nil
}
