// Package apiclient talks to the Kwizz HTTP API and adapts it into the
// snapshot and change feed sources the sync engine consumes.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/kwizz/kwizz-go/internal/errors"
	"github.com/kwizz/kwizz-go/internal/httputil"
	"github.com/kwizz/kwizz-go/internal/model"
)

const defaultTimeout = 15 * time.Second

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	dialer  *websocket.Dialer
	// feedIdle bounds how long the feed may stay silent, pings included.
	feedIdle time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken authenticates requests as a host.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: defaultTimeout},
		dialer:   &websocket.Dialer{HandshakeTimeout: defaultTimeout},
		feedIdle: feedIdleTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// decodeError turns an API error body back into an AppError so callers can
// branch on its code.
func decodeError(resp *http.Response) error {
	var body httputil.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Code == "" {
		return apperrors.External("kwizz api", fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return apperrors.New(body.Code, body.Error).WithDetails(body.Details)
}

func escape(id string) string { return url.PathEscape(id) }

func (c *Client) RegisterHost(ctx context.Context, name string) (*model.Host, string, error) {
	var out struct {
		Host  *model.Host `json:"host"`
		Token string      `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/hosts", map[string]string{"name": name}, &out); err != nil {
		return nil, "", err
	}
	return out.Host, out.Token, nil
}

func (c *Client) CreateGame(ctx context.Context, quizID string) (*model.Game, error) {
	var game model.Game
	if err := c.do(ctx, http.MethodPost, "/v1/games", map[string]string{"quizId": quizID}, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

type JoinResult struct {
	GameID   string        `json:"gameId"`
	PlayerID string        `json:"playerId"`
	Player   *model.Player `json:"player"`
}

func (c *Client) Join(ctx context.Context, pin, teamName, buzzerSound string) (*JoinResult, error) {
	req := map[string]string{"pin": pin, "teamName": teamName, "buzzerSound": buzzerSound}
	var out JoinResult
	if err := c.do(ctx, http.MethodPost, "/v1/games/join", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Game(ctx context.Context, gameID string) (*model.Game, error) {
	var game model.Game
	if err := c.do(ctx, http.MethodGet, "/v1/games/"+escape(gameID), nil, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

// Snapshot implements gamesync.Snapshotter.
func (c *Client) Snapshot(ctx context.Context, gameID string) (*model.Snapshot, error) {
	var snap model.Snapshot
	if err := c.do(ctx, http.MethodGet, "/v1/games/"+escape(gameID)+"/snapshot", nil, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *Client) control(ctx context.Context, gameID, action string) (*model.Game, error) {
	var game model.Game
	if err := c.do(ctx, http.MethodPost, "/v1/games/"+escape(gameID)+"/"+action, nil, &game); err != nil {
		return nil, err
	}
	return &game, nil
}

func (c *Client) Start(ctx context.Context, gameID string) (*model.Game, error) {
	return c.control(ctx, gameID, "start")
}

func (c *Client) Advance(ctx context.Context, gameID string) (*model.Game, error) {
	return c.control(ctx, gameID, "advance")
}

func (c *Client) Finish(ctx context.Context, gameID string) (*model.Game, error) {
	return c.control(ctx, gameID, "finish")
}

func (c *Client) CurrentQuestion(ctx context.Context, gameID string) (*model.QuestionInPlay, error) {
	var out model.QuestionInPlay
	if err := c.do(ctx, http.MethodGet, "/v1/games/"+escape(gameID)+"/questions/current", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type AnswerRequest struct {
	PlayerID   string `json:"playerId"`
	QuestionID string `json:"questionId"`
	Answer     string `json:"answer"`
	SpeedMs    int    `json:"speedMs"`
}

type AnswerResult struct {
	Response  *model.Response `json:"response"`
	Duplicate bool            `json:"duplicate"`
}

func (c *Client) SubmitAnswer(ctx context.Context, gameID string, req AnswerRequest) (*AnswerResult, error) {
	var out AnswerResult
	if err := c.do(ctx, http.MethodPost, "/v1/games/"+escape(gameID)+"/responses", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Balance(ctx context.Context) (model.Balance, error) {
	var balance model.Balance
	err := c.do(ctx, http.MethodGet, "/v1/credits", nil, &balance)
	return balance, err
}

func (c *Client) PurchaseLot(ctx context.Context, size int) (*model.CreditLot, error) {
	var lot model.CreditLot
	if err := c.do(ctx, http.MethodPost, "/v1/credits/lots", map[string]int{"size": size}, &lot); err != nil {
		return nil, err
	}
	return &lot, nil
}

// ImportQuiz uploads a question set and returns the new quiz id.
func (c *Client) ImportQuiz(ctx context.Context, quiz model.QuizImport) (string, error) {
	var out struct {
		QuizID string `json:"quizId"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/quizzes", quiz, &out); err != nil {
		return "", err
	}
	return out.QuizID, nil
}

func (c *Client) QuizQuestions(ctx context.Context, quizID string) ([]model.Question, error) {
	var out []model.Question
	if err := c.do(ctx, http.MethodGet, "/v1/quizzes/"+escape(quizID)+"/questions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
