package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kwizz/kwizz-go/internal/model"
)

type QuizService interface {
	Import(ctx context.Context, questions []model.Question) (string, error)
	Questions(ctx context.Context, quizID string) ([]model.Question, error)
}

type QuizHandler struct {
	quizzes QuizService
}

func NewQuizHandler(quizzes QuizService) *QuizHandler {
	return &QuizHandler{quizzes: quizzes}
}

// Routes mounts under /v1/quizzes behind host auth.
func (h *QuizHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.Import)
	r.Get("/{quizID}/questions", h.Questions)
	return r
}

type ImportQuizResponse struct {
	QuizID string `json:"quizId"`
	Count  int    `json:"count"`
}

// POST /v1/quizzes
func (h *QuizHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req model.QuizImport
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	questions := make([]model.Question, len(req.Questions))
	for i, in := range req.Questions {
		questions[i] = in.Question()
	}

	quizID, err := h.quizzes.Import(r.Context(), questions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, ImportQuizResponse{QuizID: quizID, Count: len(questions)})
}

// GET /v1/quizzes/{quizID}/questions
func (h *QuizHandler) Questions(w http.ResponseWriter, r *http.Request) {
	questions, err := h.quizzes.Questions(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, questions)
}
