package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/kwizz/kwizz-go/internal/errors"
	"github.com/kwizz/kwizz-go/internal/middleware"
	"github.com/kwizz/kwizz-go/internal/model"
	"github.com/kwizz/kwizz-go/internal/service"
)

// GameService is the server side of the session controller.
type GameService interface {
	CreateSession(ctx context.Context, quizID, hostID string) (*model.Game, error)
	Game(ctx context.Context, gameID string) (*model.Game, error)
	Snapshot(ctx context.Context, gameID string) (*model.Snapshot, error)
	Join(ctx context.Context, pin, teamName, buzzerSound string) (*model.Player, error)
	Start(ctx context.Context, gameID, hostID string) (*model.Game, error)
	Advance(ctx context.Context, gameID, hostID string) (*model.Game, error)
	Finish(ctx context.Context, gameID, hostID string) (*model.Game, error)
	CurrentQuestion(ctx context.Context, gameID string) (*model.Question, error)
}

type AnswerSubmitter interface {
	Submit(ctx context.Context, params service.SubmitAnswerParams) (*service.SubmitResult, error)
}

type GameHandler struct {
	games     GameService
	answers   AnswerSubmitter
	hostAuth  func(http.Handler) http.Handler
	joinLimit func(http.Handler) http.Handler
}

func NewGameHandler(
	games GameService,
	answers AnswerSubmitter,
	hostAuth func(http.Handler) http.Handler,
	joinLimit func(http.Handler) http.Handler,
) *GameHandler {
	return &GameHandler{
		games:     games,
		answers:   answers,
		hostAuth:  hostAuth,
		joinLimit: joinLimit,
	}
}

// Routes mounts under /v1/games. Change streams are mounted separately.
func (h *GameHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.With(h.joinLimit).Post("/join", h.Join)

	r.Group(func(r chi.Router) {
		r.Use(h.hostAuth)
		r.Post("/", h.Create)
		r.Post("/{gameID}/start", h.control(h.games.Start))
		r.Post("/{gameID}/advance", h.control(h.games.Advance))
		r.Post("/{gameID}/finish", h.control(h.games.Finish))
	})

	r.Get("/{gameID}", h.Get)
	r.Get("/{gameID}/snapshot", h.Snapshot)
	r.Get("/{gameID}/questions/current", h.CurrentQuestion)
	r.Post("/{gameID}/responses", h.SubmitResponse)

	return r
}

type createGameRequest struct {
	QuizID string `json:"quizId"`
}

// POST /v1/games
func (h *GameHandler) Create(w http.ResponseWriter, r *http.Request) {
	host := middleware.GetHost(r.Context())
	if host == nil {
		writeError(w, r, apperrors.Unauthorized("Host authentication required"))
		return
	}

	var req createGameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.QuizID == "" {
		writeError(w, r, apperrors.MissingRequired("quizId"))
		return
	}

	game, err := h.games.CreateSession(r.Context(), req.QuizID, host.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, game)
}

type joinRequest struct {
	Pin         string `json:"pin"`
	TeamName    string `json:"teamName"`
	BuzzerSound string `json:"buzzerSound"`
}

type joinResponse struct {
	GameID   string        `json:"gameId"`
	PlayerID string        `json:"playerId"`
	Player   *model.Player `json:"player"`
}

// POST /v1/games/join
func (h *GameHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	player, err := h.games.Join(r.Context(), req.Pin, req.TeamName, req.BuzzerSound)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, joinResponse{GameID: player.GameID, PlayerID: player.ID, Player: player})
}

// GET /v1/games/{gameID}
func (h *GameHandler) Get(w http.ResponseWriter, r *http.Request) {
	game, err := h.games.Game(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, game)
}

// GET /v1/games/{gameID}/snapshot
func (h *GameHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.games.Snapshot(r.Context(), chi.URLParam(r, "gameID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type gameCommand func(ctx context.Context, gameID, hostID string) (*model.Game, error)

// control wraps a host-only state transition.
func (h *GameHandler) control(cmd gameCommand) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		host := middleware.GetHost(r.Context())
		if host == nil {
			writeError(w, r, apperrors.Unauthorized("Host authentication required"))
			return
		}

		game, err := cmd(r.Context(), chi.URLParam(r, "gameID"), host.ID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, game)
	}
}

// GET /v1/games/{gameID}/questions/current
//
// The answer is never serialised; see model.Question.
func (h *GameHandler) CurrentQuestion(w http.ResponseWriter, r *http.Request) {
	gameID := chi.URLParam(r, "gameID")
	game, err := h.games.Game(r.Context(), gameID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	q, err := h.games.CurrentQuestion(r.Context(), gameID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := model.QuestionInPlay{Question: q}
	if q != nil && game.QuestionStartedAt != nil {
		resp.StartedAt = game.QuestionStartedAt
		resp.Deadline = game.QuestionDeadline(q.TimeLimit())
	}
	writeJSON(w, http.StatusOK, resp)
}

type submitResponseRequest struct {
	PlayerID   string `json:"playerId"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	SpeedMs    int    `json:"speedMs"`
}

// POST /v1/games/{gameID}/responses
func (h *GameHandler) SubmitResponse(w http.ResponseWriter, r *http.Request) {
	var req submitResponseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.PlayerID == "" {
		writeError(w, r, apperrors.MissingRequired("playerId"))
		return
	}
	if req.QuestionID == "" {
		writeError(w, r, apperrors.MissingRequired("questionId"))
		return
	}

	result, err := h.answers.Submit(r.Context(), service.SubmitAnswerParams{
		GameID:     chi.URLParam(r, "gameID"),
		PlayerID:   req.PlayerID,
		QuestionID: req.QuestionID,
		Answer:     req.Answer,
		SpeedMs:    req.SpeedMs,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}
