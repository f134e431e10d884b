package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/kwizz/kwizz-go/internal/gamesync"
	"github.com/kwizz/kwizz-go/internal/model"
)

// Standing is one team's row on the leaderboard.
type Standing struct {
	Rank     int    `json:"rank"`
	TeamName string `json:"teamName"`
	Score    int    `json:"score"`
}

// Leaderboard is what watch shows after every update.
type Leaderboard struct {
	GameID      string           `json:"gameId"`
	Pin         string           `json:"pin"`
	Status      model.GameStatus `json:"status"`
	QuestionID  string           `json:"questionId,omitempty"`
	Answered    int              `json:"answered"`
	Sync        gamesync.Status  `json:"sync"`
	Speculative bool             `json:"speculative,omitempty"`
	Standings   []Standing       `json:"standings"`
}

// BuildLeaderboard ranks players, which must already be ordered by score.
// Tied scores share a rank and the next rank is skipped.
func BuildLeaderboard(view gamesync.GameView, players []model.Player, responses []model.Response, sync gamesync.Status) Leaderboard {
	lb := Leaderboard{
		Sync:        sync,
		Speculative: view.Speculative,
		Standings:   make([]Standing, 0, len(players)),
	}
	if g := view.Game; g != nil {
		lb.GameID = g.ID
		lb.Pin = g.Pin
		lb.Status = g.Status
		if g.CurrentQuestionID != nil {
			lb.QuestionID = *g.CurrentQuestionID
			for _, r := range responses {
				if r.QuestionID == lb.QuestionID {
					lb.Answered++
				}
			}
		}
	}

	for i, p := range players {
		rank := i + 1
		if i > 0 && p.Score == players[i-1].Score {
			rank = lb.Standings[i-1].Rank
		}
		lb.Standings = append(lb.Standings, Standing{Rank: rank, TeamName: p.TeamName, Score: p.Score})
	}
	return lb
}

func leaderboardFromHandle(h *gamesync.Handle) Leaderboard {
	return BuildLeaderboard(h.Game(), h.Players(), h.Responses(), h.Status())
}

// RenderLeaderboard draws lb as a table.
func RenderLeaderboard(w io.Writer, lb Leaderboard) error {
	header := fmt.Sprintf("Game %s  [%s]", lb.Pin, lb.Status)
	if lb.Speculative {
		header += " (pending)"
	}
	if lb.Sync != gamesync.StatusConnected {
		header += "  sync: " + string(lb.Sync)
	}
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}
	if lb.QuestionID != "" {
		fmt.Fprintf(w, "Question %s: %d answered\n", lb.QuestionID, lb.Answered)
	}
	fmt.Fprintln(w, strings.Repeat("-", 32))

	if len(lb.Standings) == 0 {
		_, err := fmt.Fprintln(w, "No teams yet")
		return err
	}
	width := 0
	for _, s := range lb.Standings {
		width = max(width, utf8.RuneCountInString(s.TeamName))
	}
	for _, s := range lb.Standings {
		if _, err := fmt.Fprintf(w, "%3d. %-*s %6d\n", s.Rank, width, s.TeamName, s.Score); err != nil {
			return err
		}
	}
	return nil
}

func renderGame(w io.Writer, g *model.Game) error {
	fmt.Fprintf(w, "Game %s\n", g.ID)
	fmt.Fprintf(w, "  pin:     %s\n", g.Pin)
	fmt.Fprintf(w, "  status:  %s\n", g.Status)
	if g.CurrentQuestionID != nil {
		fmt.Fprintf(w, "  question: %s\n", *g.CurrentQuestionID)
	}
	return nil
}

func renderBalance(w io.Writer, b model.Balance) error {
	fmt.Fprintf(w, "Credits: %d (free %d)\n", b.TotalRemaining, b.FreeRemaining)
	if len(b.Lots) == 0 {
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LOT\tSIZE\tREMAINING\tPURCHASED")
	for _, lot := range b.Lots {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", lot.ID, lot.Size, lot.Remaining, lot.PurchasedAt.Format(time.DateOnly))
	}
	return tw.Flush()
}

func renderQuestions(w io.Writer, questions []model.Question) error {
	for _, q := range questions {
		fmt.Fprintf(w, "%2d. [%s] %s\n", q.QuestionOrder, q.Kind, q.Text)
		for _, opt := range q.Options {
			fmt.Fprintf(w, "      - %s\n", opt)
		}
	}
	return nil
}
