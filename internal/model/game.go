package model

import "time"

// Game is one run of a quiz from lobby to finished. JSON tags follow the
// column names so rows emitted by the change triggers decode directly.
type Game struct {
	ID                string     `db:"id" json:"id"`
	QuizID            string     `db:"quiz_id" json:"quiz_id"`
	Pin               string     `db:"pin" json:"pin"`
	Status            GameStatus `db:"status" json:"status"`
	CurrentQuestionID *string    `db:"current_question_id" json:"current_question_id"`
	QuestionStartedAt *time.Time `db:"question_started_at" json:"question_started_at"`
	HostID            string     `db:"host_id" json:"host_id"`
	PaidAt            *time.Time `db:"paid_at" json:"paid_at,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// Clone returns a deep copy so callers can mutate it freely.
func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	c := *g
	if g.CurrentQuestionID != nil {
		id := *g.CurrentQuestionID
		c.CurrentQuestionID = &id
	}
	if g.QuestionStartedAt != nil {
		at := *g.QuestionStartedAt
		c.QuestionStartedAt = &at
	}
	return &c
}

// QuestionDeadline is when the current question's answer window closes, or
// nil when no question is in play.
func (g *Game) QuestionDeadline(limit time.Duration) *time.Time {
	if g == nil || g.QuestionStartedAt == nil {
		return nil
	}
	deadline := g.QuestionStartedAt.Add(limit)
	return &deadline
}

type CreateGameParams struct {
	QuizID string
	HostID string
	Pin    string
}

type Player struct {
	ID          string    `db:"id" json:"id"`
	GameID      string    `db:"game_id" json:"game_id"`
	TeamName    string    `db:"team_name" json:"team_name"`
	BuzzerSound string    `db:"buzzer_sound" json:"buzzer_sound"`
	Score       int       `db:"score" json:"score"`
	LastSeenAt  time.Time `db:"last_seen_at" json:"last_seen_at"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type CreatePlayerParams struct {
	GameID      string
	TeamName    string
	BuzzerSound string
}

type Response struct {
	ID         string    `db:"id" json:"id"`
	GameID     string    `db:"game_id" json:"game_id"`
	PlayerID   string    `db:"player_id" json:"player_id"`
	QuestionID string    `db:"question_id" json:"question_id"`
	Answer     *string   `db:"answer" json:"answer"`
	IsCorrect  *bool     `db:"is_correct" json:"is_correct"`
	SpeedMs    int       `db:"speed_ms" json:"speed_ms"`
	Points     int       `db:"points" json:"points"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// PressedBuzzer reports whether the response is a buzz-in press.
func (r *Response) PressedBuzzer() bool {
	return r.Answer != nil && isBuzzToken(*r.Answer)
}

// CorrectBuzz reports whether the response is a press already credited as
// the first responder.
func (r *Response) CorrectBuzz() bool {
	return r.PressedBuzzer() && r.IsCorrect != nil && *r.IsCorrect
}

type CreateResponseParams struct {
	GameID     string
	PlayerID   string
	QuestionID string
	Answer     *string
	IsCorrect  *bool
	SpeedMs    int
	Points     int
}

// Snapshot is the full state of one game at a point in time.
type Snapshot struct {
	Game      *Game      `json:"game"`
	Players   []Player   `json:"players"`
	Responses []Response `json:"responses"`
}

// GameProgress is the host-controlled part of a game row.
type GameProgress struct {
	Status            GameStatus
	CurrentQuestionID *string
	QuestionStartedAt *time.Time
}
