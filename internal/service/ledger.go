package service

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/kwizz/kwizz-go/internal/audit"
	apperrors "github.com/kwizz/kwizz-go/internal/errors"
	"github.com/kwizz/kwizz-go/internal/model"
	"github.com/kwizz/kwizz-go/internal/repository"
)

// LotSizes are the purchasable credit packs.
var LotSizes = []int{1, 10, 52}

// CreditLedger tracks host credits and turns one credit into one game.
//
// Creating a game is not a single transaction: the balance is checked, the
// game inserted, then one credit debited and the game marked paid together.
// Each debit is a conditional decrement at the store, so a lost race shows
// up as a failed debit and the unpaid game is deleted again. Unpaid games
// cannot be joined.
type CreditLedger struct {
	db     TxRunner
	hosts  repository.HostRepository
	lots   repository.CreditLotRepository
	games  repository.GameRepository
	audit  audit.Logger
	newPin func() string
}

func NewCreditLedger(
	db TxRunner,
	hosts repository.HostRepository,
	lots repository.CreditLotRepository,
	games repository.GameRepository,
	auditLogger audit.Logger,
) *CreditLedger {
	if auditLogger == nil {
		auditLogger = audit.Default
	}
	return &CreditLedger{
		db:     db,
		hosts:  hosts,
		lots:   lots,
		games:  games,
		audit:  auditLogger,
		newPin: generatePin,
	}
}

func (l *CreditLedger) CheckBalance(ctx context.Context, hostID string) (model.Balance, error) {
	host, err := l.hosts.FindByID(ctx, hostID)
	if err != nil {
		return model.Balance{}, fmt.Errorf("find host: %w", err)
	}
	if host == nil {
		return model.Balance{}, apperrors.NotFound("Host")
	}

	lots, err := l.lots.ListActive(ctx, hostID)
	if err != nil {
		return model.Balance{}, fmt.Errorf("list credit lots: %w", err)
	}
	return model.NewBalance(host.FreeCreditsRemaining, lots), nil
}

// ReserveAndCreateSession creates a lobby game for the host and pays for it
// with one credit, free credits first, then the oldest purchased lot.
func (l *CreditLedger) ReserveAndCreateSession(ctx context.Context, quizID, hostID string) (*model.Game, error) {
	balance, err := l.CheckBalance(ctx, hostID)
	if err != nil {
		return nil, err
	}
	if !balance.HasCredit {
		return nil, apperrors.InsufficientCredit()
	}

	pin, err := allocatePin(ctx, l.games, l.newPin)
	if err != nil {
		return nil, err
	}

	game, err := l.games.Create(ctx, model.CreateGameParams{QuizID: quizID, HostID: hostID, Pin: pin})
	if err != nil {
		return nil, fmt.Errorf("create game: %w", err)
	}

	var source *model.DebitSource
	err = l.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		debited, err := l.debit(ctx, l.hosts.WithTx(tx), l.lots.WithTx(tx), hostID)
		if err != nil || debited == nil {
			return err
		}
		paid, err := l.games.WithTx(tx).MarkPaid(ctx, game.ID)
		if err != nil {
			return fmt.Errorf("mark game paid: %w", err)
		}
		if paid == nil {
			return fmt.Errorf("game %s vanished before payment", game.ID)
		}
		game, source = paid, debited
		return nil
	})
	if err != nil || source == nil {
		return nil, l.compensate(ctx, game, err)
	}

	details := map[string]interface{}{"source": "free"}
	if !source.Free {
		details = map[string]interface{}{"source": "lot", "lotId": source.LotID}
	}
	l.audit.Log(ctx, audit.Event{Type: audit.EventCreditDebit, HostID: hostID, GameID: game.ID, Details: details})

	log.Info().
		Str("gameId", game.ID).
		Str("hostId", hostID).
		Str("pin", game.Pin).
		Msg("game created")

	return game, nil
}

// debit takes one credit. It returns nil when the host has nothing left.
func (l *CreditLedger) debit(
	ctx context.Context,
	hosts repository.HostRepository,
	lots repository.CreditLotRepository,
	hostID string,
) (*model.DebitSource, error) {
	ok, err := hosts.DebitFree(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("debit free credit: %w", err)
	}
	if ok {
		return &model.DebitSource{Free: true}, nil
	}

	lot, err := lots.DebitOldest(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("debit credit lot: %w", err)
	}
	if lot == nil {
		return nil, nil
	}
	return &model.DebitSource{LotID: lot.ID}, nil
}

// compensate deletes a game whose credit could not be debited. When the
// delete fails too the game stays unpaid, unjoinable, and is left for the
// sweep job; the returned error says so in its details.
func (l *CreditLedger) compensate(ctx context.Context, game *model.Game, cause error) *apperrors.AppError {
	appErr := apperrors.CreditTransactionFailed()
	if cause != nil {
		appErr = appErr.WithCause(cause)
	}

	details := map[string]interface{}{"reason": "no credit to debit"}
	if cause != nil {
		details["reason"] = cause.Error()
	}
	if err := l.games.Delete(ctx, game.ID); err != nil {
		log.Error().Err(err).Str("gameId", game.ID).Msg("failed to delete unpaid game, leaving it to the sweep")
		details["cleanupError"] = err.Error()
		appErr = appErr.WithDetails(map[string]interface{}{
			"gameId":       game.ID,
			"cleanup":      "pending",
			"cleanupError": err.Error(),
		})
	}

	l.audit.Log(ctx, audit.Event{
		Type:    audit.EventCreditCompensate,
		HostID:  game.HostID,
		GameID:  game.ID,
		Details: details,
	})
	return appErr
}

// PurchaseLot records a purchased pack of credits. Payment happens elsewhere.
func (l *CreditLedger) PurchaseLot(ctx context.Context, hostID string, size int) (*model.CreditLot, error) {
	if !validLotSize(size) {
		return nil, apperrors.InvalidInput("size", "must be one of 1, 10 or 52")
	}

	host, err := l.hosts.FindByID(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("find host: %w", err)
	}
	if host == nil {
		return nil, apperrors.NotFound("Host")
	}

	lot, err := l.lots.Create(ctx, hostID, size)
	if err != nil {
		return nil, fmt.Errorf("create credit lot: %w", err)
	}

	l.audit.Log(ctx, audit.Event{
		Type:    audit.EventCreditPurchase,
		HostID:  hostID,
		Details: map[string]interface{}{"lotId": lot.ID, "size": size},
	})
	return lot, nil
}

func validLotSize(size int) bool {
	for _, s := range LotSizes {
		if s == size {
			return true
		}
	}
	return false
}
