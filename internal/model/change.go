package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Change is one row-level change emitted by the database triggers.
type Change struct {
	ID          string          `json:"id,omitempty"`
	Table       ChangeTable     `json:"table"`
	Op          ChangeOp        `json:"op"`
	GameID      string          `json:"game_id"`
	New         json.RawMessage `json:"new,omitempty"`
	Old         json.RawMessage `json:"old,omitempty"`
	CommittedAt time.Time       `json:"committed_at"`
}

func (c *Change) row() (json.RawMessage, error) {
	if c.Op == OpDelete {
		if len(c.Old) == 0 {
			return nil, fmt.Errorf("%s delete without old row", c.Table)
		}
		return c.Old, nil
	}
	if len(c.New) == 0 {
		return nil, fmt.Errorf("%s %s without new row", c.Table, c.Op)
	}
	return c.New, nil
}

func (c *Change) DecodeGame() (*Game, error) {
	raw, err := c.row()
	if err != nil {
		return nil, err
	}
	var g Game
	if err := json.Unmarshal(raw, &g); err != nil {
		return nil, fmt.Errorf("decode game row: %w", err)
	}
	return &g, nil
}

func (c *Change) DecodePlayer() (*Player, error) {
	raw, err := c.row()
	if err != nil {
		return nil, err
	}
	var p Player
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode player row: %w", err)
	}
	return &p, nil
}

func (c *Change) DecodeResponse() (*Response, error) {
	raw, err := c.row()
	if err != nil {
		return nil, err
	}
	var r Response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode response row: %w", err)
	}
	return &r, nil
}

// NewChange builds a change carrying row as its new (or old, for deletes) image.
func NewChange(table ChangeTable, op ChangeOp, gameID string, row any) (Change, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return Change{}, err
	}
	c := Change{Table: table, Op: op, GameID: gameID, CommittedAt: time.Now().UTC()}
	if op == OpDelete {
		c.Old = data
	} else {
		c.New = data
	}
	return c, nil
}

// Frame types of the WebSocket change feed.
const (
	FrameSubscribed = "subscribed"
	FrameChange     = "change"
	FrameError      = "error"
)

// FeedFrame is one WebSocket message of the change feed. The first frame is
// always FrameSubscribed, sent once the server-side subscription is live.
type FeedFrame struct {
	Type   string  `json:"type"`
	Change *Change `json:"change,omitempty"`
	Error  string  `json:"error,omitempty"`
}
