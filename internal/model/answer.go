package model

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	buzzToken         = "BUZZ"
	sequenceSeparator = "|"
)

// Answer is a submitted answer, one variant per question kind.
type Answer interface {
	// Encode returns the persisted form of the answer.
	Encode() string
	isAnswer()
}

type ChoiceAnswer struct{ Text string }

type TextAnswer struct{ Text string }

type SequenceAnswer struct{ Items []string }

// NumericAnswer keeps the raw input; parsing happens at scoring time so an
// unparseable entry is simply incorrect.
type NumericAnswer struct{ Raw string }

type BuzzAnswer struct{}

// TimeoutAnswer is synthesised locally when a player lets the clock run out.
// It is never persisted.
type TimeoutAnswer struct{}

func (a ChoiceAnswer) Encode() string   { return a.Text }
func (a TextAnswer) Encode() string     { return a.Text }
func (a SequenceAnswer) Encode() string { return strings.Join(a.Items, sequenceSeparator) }
func (a NumericAnswer) Encode() string  { return a.Raw }
func (BuzzAnswer) Encode() string       { return buzzToken }
func (TimeoutAnswer) Encode() string    { return "" }

func (ChoiceAnswer) isAnswer()   {}
func (TextAnswer) isAnswer()     {}
func (SequenceAnswer) isAnswer() {}
func (NumericAnswer) isAnswer()  {}
func (BuzzAnswer) isAnswer()     {}
func (TimeoutAnswer) isAnswer()  {}

// Decimal parses the raw numeric input.
func (a NumericAnswer) Decimal() (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(a.Raw))
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ParseAnswer decodes a persisted or submitted answer for a question kind.
// A buzz-in question accepts only the buzz token; anything else decodes as
// plain text and scores as incorrect.
func ParseAnswer(kind QuestionKind, raw string) (Answer, error) {
	switch kind {
	case KindMultipleChoice:
		return ChoiceAnswer{Text: raw}, nil
	case KindLetters:
		return TextAnswer{Text: raw}, nil
	case KindSequence:
		return SequenceAnswer{Items: strings.Split(raw, sequenceSeparator)}, nil
	case KindNumeral:
		return NumericAnswer{Raw: raw}, nil
	case KindBuzzIn:
		if isBuzzToken(raw) {
			return BuzzAnswer{}, nil
		}
		return TextAnswer{Text: raw}, nil
	default:
		return nil, fmt.Errorf("unknown question kind %q", kind)
	}
}

func isBuzzToken(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), buzzToken)
}
