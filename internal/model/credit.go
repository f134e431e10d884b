package model

import "time"

type Host struct {
	ID                   string    `db:"id" json:"id"`
	Name                 string    `db:"name" json:"name"`
	APITokenHash         string    `db:"api_token_hash" json:"-"`
	FreeCreditsRemaining int       `db:"free_credits_remaining" json:"free_credits_remaining"`
	CreatedAt            time.Time `db:"created_at" json:"created_at"`
}

// CreditLot is one purchased batch of credits.
type CreditLot struct {
	ID          string    `db:"id" json:"id"`
	HostID      string    `db:"host_id" json:"host_id"`
	Size        int       `db:"size" json:"size"`
	Remaining   int       `db:"remaining" json:"remaining"`
	PurchasedAt time.Time `db:"purchased_at" json:"purchased_at"`
}

// Balance is a host's usable credit.
type Balance struct {
	HasCredit      bool        `json:"has_credit"`
	TotalRemaining int         `json:"total_remaining"`
	FreeRemaining  int         `json:"free_remaining"`
	Lots           []CreditLot `json:"lots"`
}

// NewBalance sums the free counter and lot remainders. Negative inputs are
// clamped so the total can never be negative.
func NewBalance(free int, lots []CreditLot) Balance {
	if free < 0 {
		free = 0
	}
	total := free
	for _, lot := range lots {
		if lot.Remaining > 0 {
			total += lot.Remaining
		}
	}
	if lots == nil {
		lots = []CreditLot{}
	}
	return Balance{
		HasCredit:      total > 0,
		TotalRemaining: total,
		FreeRemaining:  free,
		Lots:           lots,
	}
}

// DebitSource identifies where a debited credit came from.
type DebitSource struct {
	Free  bool
	LotID string
}
