// Package scoring decides whether a submitted answer is correct and how many
// points it earns. It has no side effects and never returns an error: an
// answer that cannot be judged scores as incorrect.
package scoring

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/kwizz/kwizz-go/internal/model"
)

const (
	MaxPoints  = 1000
	MinPoints  = 100
	BuzzPoints = 500

	// msPerPoint is how much elapsed time costs one point.
	msPerPoint = 10
)

type Submission struct {
	Answer    model.Answer
	ElapsedMs int
}

type Result struct {
	IsCorrect bool `json:"is_correct"`
	Points    int  `json:"points"`
}

var incorrect = Result{}

// Score judges sub against q. existing holds the responses already recorded
// for the question and is only consulted for buzz-in questions.
func Score(q *model.Question, sub Submission, existing []model.Response) Result {
	if q == nil || sub.Answer == nil {
		return incorrect
	}
	if _, ok := sub.Answer.(model.TimeoutAnswer); ok {
		return incorrect
	}

	if q.Kind == model.KindBuzzIn {
		return scoreBuzz(q, sub.Answer, existing)
	}

	if !correct(q, sub.Answer) {
		return incorrect
	}
	return Result{IsCorrect: true, Points: Points(sub.ElapsedMs)}
}

// Points is the award for a correct non-buzz answer given after elapsedMs.
func Points(elapsedMs int) int {
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	return max(MinPoints, MaxPoints-elapsedMs/msPerPoint)
}

func correct(q *model.Question, answer model.Answer) bool {
	switch q.Kind {
	case model.KindMultipleChoice, model.KindLetters:
		text, ok := textOf(answer)
		return ok && equalFold(text, q.Answer)

	case model.KindSequence:
		seq, ok := answer.(model.SequenceAnswer)
		if !ok {
			return false
		}
		want := strings.Split(q.Answer, "|")
		if len(seq.Items) != len(want) {
			return false
		}
		for i := range want {
			if !equalFold(seq.Items[i], want[i]) {
				return false
			}
		}
		return true

	case model.KindNumeral:
		num, ok := answer.(model.NumericAnswer)
		if !ok {
			return false
		}
		got, ok := num.Decimal()
		if !ok {
			return false
		}
		want, ok := model.NumericAnswer{Raw: q.Answer}.Decimal()
		return ok && got.Equal(want)

	default:
		return false
	}
}

func scoreBuzz(q *model.Question, answer model.Answer, existing []model.Response) Result {
	if _, ok := answer.(model.BuzzAnswer); !ok {
		return incorrect
	}
	for i := range existing {
		r := &existing[i]
		if r.QuestionID != "" && r.QuestionID != q.ID {
			continue
		}
		if r.CorrectBuzz() {
			return incorrect
		}
	}
	return Result{IsCorrect: true, Points: BuzzPoints}
}

func textOf(answer model.Answer) (string, bool) {
	switch a := answer.(type) {
	case model.ChoiceAnswer:
		return a.Text, true
	case model.TextAnswer:
		return a.Text, true
	default:
		return "", false
	}
}

// equalFold compares two strings ignoring surrounding space, Unicode case
// and composition differences.
func equalFold(a, b string) bool {
	return normalize(a) == normalize(b)
}

func normalize(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}
