package gamesync

import (
	"fmt"
	"sort"

	"github.com/kwizz/kwizz-go/internal/model"
)

// MutationID identifies a pending optimistic change to the mirrored game.
type MutationID uint64

// Mutator transforms a copy of the game. It must not retain g.
type Mutator func(g *model.Game)

// GameView is the mirrored game with any pending optimistic changes applied.
type GameView struct {
	Game        *model.Game
	Speculative bool
}

type pendingMutation struct {
	id MutationID
	fn Mutator
}

// mirror holds the replicated state of one game. It is not safe for
// concurrent use; Handle serializes access.
type mirror struct {
	gameID    string
	base      *model.Game
	pending   []pendingMutation
	nextID    MutationID
	players   map[string]model.Player
	responses []model.Response
	seen      map[string]struct{}
}

func newMirror(gameID string, snap *model.Snapshot) *mirror {
	m := &mirror{
		gameID:  gameID,
		players: make(map[string]model.Player),
		seen:    make(map[string]struct{}),
	}
	m.applySnapshot(snap)
	return m
}

// replaceGame installs an authoritative game and drops every pending
// optimistic change.
func (m *mirror) replaceGame(g *model.Game) {
	m.base = g.Clone()
	m.pending = nil
}

// applySnapshot merges a full fetch: the game is replaced, players are
// upserted and those no longer present removed, unseen responses appended.
func (m *mirror) applySnapshot(snap *model.Snapshot) {
	if snap == nil {
		return
	}
	if snap.Game != nil {
		m.replaceGame(snap.Game)
	}

	present := make(map[string]struct{}, len(snap.Players))
	for _, p := range snap.Players {
		present[p.ID] = struct{}{}
		m.players[p.ID] = p
	}
	for id := range m.players {
		if _, ok := present[id]; !ok {
			delete(m.players, id)
		}
	}

	for _, r := range snap.Responses {
		m.appendResponse(r)
	}
}

// applyChange merges one pushed change. It reports whether the mirror changed.
func (m *mirror) applyChange(c model.Change) (bool, error) {
	if c.GameID != m.gameID {
		return false, nil
	}

	switch c.Table {
	case model.TableGames:
		if c.Op == model.OpDelete {
			return false, nil
		}
		g, err := c.DecodeGame()
		if err != nil {
			return false, err
		}
		if g.ID != m.gameID {
			return false, nil
		}
		m.replaceGame(g)
		return true, nil

	case model.TablePlayers:
		p, err := c.DecodePlayer()
		if err != nil {
			return false, err
		}
		switch c.Op {
		case model.OpInsert:
			if _, ok := m.players[p.ID]; ok {
				return false, nil
			}
			m.players[p.ID] = *p
		case model.OpUpdate:
			m.players[p.ID] = *p
		case model.OpDelete:
			if _, ok := m.players[p.ID]; !ok {
				return false, nil
			}
			delete(m.players, p.ID)
		}
		return true, nil

	case model.TableResponses:
		if c.Op != model.OpInsert {
			return false, nil
		}
		r, err := c.DecodeResponse()
		if err != nil {
			return false, err
		}
		return m.appendResponse(*r), nil

	default:
		return false, fmt.Errorf("unknown change table %q", c.Table)
	}
}

func (m *mirror) appendResponse(r model.Response) bool {
	if _, ok := m.seen[r.ID]; ok {
		return false
	}
	m.seen[r.ID] = struct{}{}
	m.responses = append(m.responses, r)
	return true
}

func (m *mirror) applyOptimistic(fn Mutator) MutationID {
	m.nextID++
	m.pending = append(m.pending, pendingMutation{id: m.nextID, fn: fn})
	return m.nextID
}

func (m *mirror) revert(id MutationID) bool {
	for i, p := range m.pending {
		if p.id == id {
			m.pending = append(m.pending[:i], m.pending[i+1:]...)
			return true
		}
	}
	return false
}

func (m *mirror) view() GameView {
	g := m.base.Clone()
	if g == nil {
		return GameView{}
	}
	for _, p := range m.pending {
		p.fn(g)
	}
	return GameView{Game: g, Speculative: len(m.pending) > 0}
}

// leaderboard returns players by score descending, then team name.
func (m *mirror) leaderboard() []model.Player {
	out := make([]model.Player, 0, len(m.players))
	for _, p := range m.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].TeamName != out[j].TeamName {
			return out[i].TeamName < out[j].TeamName
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *mirror) allResponses() []model.Response {
	return append([]model.Response(nil), m.responses...)
}

// responsesFor returns one question's responses, fastest first.
func (m *mirror) responsesFor(questionID string) []model.Response {
	var out []model.Response
	for _, r := range m.responses {
		if r.QuestionID == questionID {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SpeedMs < out[j].SpeedMs })
	return out
}
