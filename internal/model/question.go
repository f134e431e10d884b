package model

import (
	"time"

	"github.com/lib/pq"
)

const DefaultQuestionTimeLimit = 10 * time.Second

type Question struct {
	ID               string         `db:"id" json:"id"`
	QuizID           string         `db:"quiz_id" json:"quiz_id"`
	Text             string         `db:"text" json:"text"`
	Kind             QuestionKind   `db:"kind" json:"kind"`
	Options          pq.StringArray `db:"options" json:"options"`
	Answer           string         `db:"answer" json:"-"`
	Fact             string         `db:"fact" json:"fact,omitempty"`
	Difficulty       string         `db:"difficulty" json:"difficulty,omitempty"`
	QuestionOrder    int            `db:"question_order" json:"question_order"`
	TimeLimitSeconds int            `db:"time_limit_seconds" json:"time_limit_seconds"`
}

func (q *Question) TimeLimit() time.Duration {
	if q.TimeLimitSeconds <= 0 {
		return DefaultQuestionTimeLimit
	}
	return time.Duration(q.TimeLimitSeconds) * time.Second
}

// QuestionInput is the import form of a question. Unlike Question it
// serialises the answer.
type QuestionInput struct {
	Text             string   `json:"text" yaml:"text"`
	Kind             string   `json:"kind" yaml:"kind"`
	Options          []string `json:"options,omitempty" yaml:"options,omitempty"`
	Answer           string   `json:"answer" yaml:"answer"`
	Fact             string   `json:"fact,omitempty" yaml:"fact,omitempty"`
	Difficulty       string   `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	TimeLimitSeconds int      `json:"timeLimitSeconds,omitempty" yaml:"time_limit_seconds,omitempty"`
}

func (in QuestionInput) Question() Question {
	return Question{
		Text:             in.Text,
		Kind:             QuestionKind(in.Kind),
		Options:          in.Options,
		Answer:           in.Answer,
		Fact:             in.Fact,
		Difficulty:       in.Difficulty,
		TimeLimitSeconds: in.TimeLimitSeconds,
	}
}

// QuizImport is a question set as uploaded by a host.
type QuizImport struct {
	Questions []QuestionInput `json:"questions" yaml:"questions"`
}

// QuestionInPlay is the current question as shown to players, with the
// window in which answers are accepted.
type QuestionInPlay struct {
	Question  *Question  `json:"question"`
	StartedAt *time.Time `json:"question_started_at,omitempty"`
	Deadline  *time.Time `json:"deadline,omitempty"`
}
