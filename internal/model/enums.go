package model

type GameStatus string

const (
	GameStatusLobby    GameStatus = "lobby"
	GameStatusActive   GameStatus = "active"
	GameStatusFinished GameStatus = "finished"
)

func (s GameStatus) rank() int {
	switch s {
	case GameStatusLobby:
		return 0
	case GameStatusActive:
		return 1
	case GameStatusFinished:
		return 2
	default:
		return -1
	}
}

// CanTransitionTo reports whether moving from s to next is a forward step.
func (s GameStatus) CanTransitionTo(next GameStatus) bool {
	from, to := s.rank(), next.rank()
	return from >= 0 && to > from
}

type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindLetters        QuestionKind = "letters"
	KindSequence       QuestionKind = "sequence"
	KindNumeral        QuestionKind = "numeral"
	KindBuzzIn         QuestionKind = "buzzin"
)

func (k QuestionKind) Valid() bool {
	switch k {
	case KindMultipleChoice, KindLetters, KindSequence, KindNumeral, KindBuzzIn:
		return true
	}
	return false
}

type ChangeTable string

const (
	TableGames     ChangeTable = "games"
	TablePlayers   ChangeTable = "players"
	TableResponses ChangeTable = "responses"
)

type ChangeOp string

const (
	OpInsert ChangeOp = "INSERT"
	OpUpdate ChangeOp = "UPDATE"
	OpDelete ChangeOp = "DELETE"
)
