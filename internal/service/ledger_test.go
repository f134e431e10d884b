package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kwizz/kwizz-go/internal/audit"
	apperrors "github.com/kwizz/kwizz-go/internal/errors"
	"github.com/kwizz/kwizz-go/internal/model"
	"github.com/kwizz/kwizz-go/internal/repository"
)

func newTestLedger() (*CreditLedger, *mockHostRepo, *mockCreditLotRepo, *mockGameRepo, *auditRecorder) {
	hosts := &mockHostRepo{}
	lots := &mockCreditLotRepo{}
	games := &mockGameRepo{}
	rec := &auditRecorder{}
	ledger := NewCreditLedger(&fakeTx{}, hosts, lots, games, rec)
	ledger.newPin = func() string { return "4821" }
	return ledger, hosts, lots, games, rec
}

func TestCreditLedger_CheckBalance(t *testing.T) {
	ctx := context.Background()

	t.Run("sums free credits and lots", func(t *testing.T) {
		ledger, hosts, lots, _, _ := newTestLedger()
		hosts.On("FindByID", mock.Anything, testHostID).Return(&model.Host{ID: testHostID, FreeCreditsRemaining: 1}, nil)
		lots.On("ListActive", mock.Anything, testHostID).Return([]model.CreditLot{{ID: "l1", Remaining: 9}}, nil)

		balance, err := ledger.CheckBalance(ctx, testHostID)
		require.NoError(t, err)
		assert.True(t, balance.HasCredit)
		assert.Equal(t, 10, balance.TotalRemaining)
		assert.Equal(t, 1, balance.FreeRemaining)
	})

	t.Run("unknown host", func(t *testing.T) {
		ledger, hosts, _, _, _ := newTestLedger()
		hosts.On("FindByID", mock.Anything, testHostID).Return(nil, nil)

		_, err := ledger.CheckBalance(ctx, testHostID)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
	})
}

func TestCreditLedger_ReserveAndCreateSession(t *testing.T) {
	ctx := context.Background()
	game := &model.Game{ID: testGameID, HostID: testHostID, QuizID: testQuizID, Pin: "4821", Status: model.GameStatusLobby}
	createParams := model.CreateGameParams{QuizID: testQuizID, HostID: testHostID, Pin: "4821"}
	paidAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	paid := &model.Game{ID: testGameID, HostID: testHostID, QuizID: testQuizID, Pin: "4821", Status: model.GameStatusLobby, PaidAt: &paidAt}

	t.Run("insufficient credit creates nothing", func(t *testing.T) {
		ledger, hosts, lots, games, _ := newTestLedger()
		hosts.On("FindByID", mock.Anything, testHostID).Return(&model.Host{ID: testHostID}, nil)
		lots.On("ListActive", mock.Anything, testHostID).Return([]model.CreditLot{}, nil)

		_, err := ledger.ReserveAndCreateSession(ctx, testQuizID, testHostID)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInsufficientCredit))
		games.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("free credit is used before lots", func(t *testing.T) {
		ledger, hosts, lots, games, rec := newTestLedger()
		hosts.On("FindByID", mock.Anything, testHostID).Return(&model.Host{ID: testHostID, FreeCreditsRemaining: 1}, nil)
		lots.On("ListActive", mock.Anything, testHostID).Return([]model.CreditLot{{ID: "l1", Remaining: 5}}, nil)
		games.On("PinInUse", mock.Anything, "4821").Return(false, nil)
		games.On("Create", mock.Anything, createParams).Return(game, nil)
		hosts.On("DebitFree", mock.Anything, testHostID).Return(true, nil)
		games.On("MarkPaid", mock.Anything, testGameID).Return(paid, nil)

		created, err := ledger.ReserveAndCreateSession(ctx, testQuizID, testHostID)
		require.NoError(t, err)
		assert.Equal(t, testGameID, created.ID)
		assert.Equal(t, &paidAt, created.PaidAt)
		lots.AssertNotCalled(t, "DebitOldest", mock.Anything, mock.Anything)
		assert.Equal(t, []audit.EventType{audit.EventCreditDebit}, rec.types())
		assert.Equal(t, "free", rec.events[0].Details["source"])
	})

	t.Run("oldest lot is debited when free credits are gone", func(t *testing.T) {
		ledger, hosts, lots, games, rec := newTestLedger()
		hosts.On("FindByID", mock.Anything, testHostID).Return(&model.Host{ID: testHostID}, nil)
		lots.On("ListActive", mock.Anything, testHostID).Return([]model.CreditLot{{ID: "old", Remaining: 1}, {ID: "new", Remaining: 10}}, nil)
		games.On("PinInUse", mock.Anything, "4821").Return(false, nil)
		games.On("Create", mock.Anything, createParams).Return(game, nil)
		hosts.On("DebitFree", mock.Anything, testHostID).Return(false, nil)
		lots.On("DebitOldest", mock.Anything, testHostID).Return(&model.CreditLot{ID: "old", Remaining: 0}, nil)
		games.On("MarkPaid", mock.Anything, testGameID).Return(paid, nil)

		_, err := ledger.ReserveAndCreateSession(ctx, testQuizID, testHostID)
		require.NoError(t, err)
		assert.Equal(t, "old", rec.events[0].Details["lotId"])
	})

	t.Run("missing debit target deletes the game", func(t *testing.T) {
		ledger, hosts, lots, games, rec := newTestLedger()
		hosts.On("FindByID", mock.Anything, testHostID).Return(&model.Host{ID: testHostID, FreeCreditsRemaining: 1}, nil)
		lots.On("ListActive", mock.Anything, testHostID).Return([]model.CreditLot{}, nil)
		games.On("PinInUse", mock.Anything, "4821").Return(false, nil)
		games.On("Create", mock.Anything, createParams).Return(game, nil)
		hosts.On("DebitFree", mock.Anything, testHostID).Return(false, nil)
		lots.On("DebitOldest", mock.Anything, testHostID).Return(nil, nil)
		games.On("Delete", mock.Anything, testGameID).Return(nil)

		created, err := ledger.ReserveAndCreateSession(ctx, testQuizID, testHostID)
		assert.Nil(t, created)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCreditTransactionFailed))
		games.AssertCalled(t, "Delete", mock.Anything, testGameID)
		assert.Equal(t, []audit.EventType{audit.EventCreditCompensate}, rec.types())
	})

	t.Run("debit error is not retried", func(t *testing.T) {
		ledger, hosts, lots, games, _ := newTestLedger()
		boom := errors.New("connection reset")
		hosts.On("FindByID", mock.Anything, testHostID).Return(&model.Host{ID: testHostID, FreeCreditsRemaining: 1}, nil)
		lots.On("ListActive", mock.Anything, testHostID).Return([]model.CreditLot{}, nil)
		games.On("PinInUse", mock.Anything, "4821").Return(false, nil)
		games.On("Create", mock.Anything, createParams).Return(game, nil)
		hosts.On("DebitFree", mock.Anything, testHostID).Return(false, boom)
		games.On("Delete", mock.Anything, testGameID).Return(nil)

		_, err := ledger.ReserveAndCreateSession(ctx, testQuizID, testHostID)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCreditTransactionFailed))
		assert.ErrorIs(t, err, boom)
		hosts.AssertNumberOfCalls(t, "DebitFree", 1)
	})

	t.Run("failed payment mark deletes the game", func(t *testing.T) {
		ledger, hosts, lots, games, rec := newTestLedger()
		hosts.On("FindByID", mock.Anything, testHostID).Return(&model.Host{ID: testHostID, FreeCreditsRemaining: 1}, nil)
		lots.On("ListActive", mock.Anything, testHostID).Return([]model.CreditLot{}, nil)
		games.On("PinInUse", mock.Anything, "4821").Return(false, nil)
		games.On("Create", mock.Anything, createParams).Return(game, nil)
		hosts.On("DebitFree", mock.Anything, testHostID).Return(true, nil)
		games.On("MarkPaid", mock.Anything, testGameID).Return(nil, errors.New("connection reset"))
		games.On("Delete", mock.Anything, testGameID).Return(nil)

		created, err := ledger.ReserveAndCreateSession(ctx, testQuizID, testHostID)
		assert.Nil(t, created)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeCreditTransactionFailed))
		assert.Contains(t, err.Error(), "mark game paid")
		games.AssertCalled(t, "Delete", mock.Anything, testGameID)
		assert.Equal(t, []audit.EventType{audit.EventCreditCompensate}, rec.types())
	})

	t.Run("failed cleanup is reported", func(t *testing.T) {
		ledger, hosts, lots, games, rec := newTestLedger()
		hosts.On("FindByID", mock.Anything, testHostID).Return(&model.Host{ID: testHostID, FreeCreditsRemaining: 1}, nil)
		lots.On("ListActive", mock.Anything, testHostID).Return([]model.CreditLot{}, nil)
		games.On("PinInUse", mock.Anything, "4821").Return(false, nil)
		games.On("Create", mock.Anything, createParams).Return(game, nil)
		hosts.On("DebitFree", mock.Anything, testHostID).Return(false, nil)
		lots.On("DebitOldest", mock.Anything, testHostID).Return(nil, nil)
		games.On("Delete", mock.Anything, testGameID).Return(errors.New("db down"))

		_, err := ledger.ReserveAndCreateSession(ctx, testQuizID, testHostID)
		appErr, ok := apperrors.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeCreditTransactionFailed, appErr.Code)
		details, ok := appErr.Details.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, testGameID, details["gameId"])
		assert.Equal(t, "pending", details["cleanup"])
		assert.Equal(t, "db down", details["cleanupError"])
		assert.Equal(t, "db down", rec.events[0].Details["cleanupError"])
	})

	t.Run("pin collisions are retried", func(t *testing.T) {
		ledger, hosts, lots, games, _ := newTestLedger()
		hosts.On("FindByID", mock.Anything, testHostID).Return(&model.Host{ID: testHostID, FreeCreditsRemaining: 1}, nil)
		lots.On("ListActive", mock.Anything, testHostID).Return([]model.CreditLot{}, nil)
		games.On("PinInUse", mock.Anything, "4821").Return(true, nil).Times(2)
		games.On("PinInUse", mock.Anything, "4821").Return(false, nil)
		games.On("Create", mock.Anything, createParams).Return(game, nil)
		hosts.On("DebitFree", mock.Anything, testHostID).Return(true, nil)
		games.On("MarkPaid", mock.Anything, testGameID).Return(paid, nil)

		_, err := ledger.ReserveAndCreateSession(ctx, testQuizID, testHostID)
		require.NoError(t, err)
		games.AssertNumberOfCalls(t, "PinInUse", 3)
	})

	t.Run("exhausted pins fail before creating", func(t *testing.T) {
		ledger, hosts, lots, games, _ := newTestLedger()
		hosts.On("FindByID", mock.Anything, testHostID).Return(&model.Host{ID: testHostID, FreeCreditsRemaining: 1}, nil)
		lots.On("ListActive", mock.Anything, testHostID).Return([]model.CreditLot{}, nil)
		games.On("PinInUse", mock.Anything, "4821").Return(true, nil)

		_, err := ledger.ReserveAndCreateSession(ctx, testQuizID, testHostID)
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict))
		games.AssertNumberOfCalls(t, "PinInUse", maxPinAttempts)
		games.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestCreditLedger_PurchaseLot(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects unknown pack sizes", func(t *testing.T) {
		ledger, _, lots, _, _ := newTestLedger()
		for _, size := range []int{0, 2, 11, -1} {
			_, err := ledger.PurchaseLot(ctx, testHostID, size)
			assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeInvalidInput), "size %d", size)
		}
		lots.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("creates lot", func(t *testing.T) {
		ledger, hosts, lots, _, rec := newTestLedger()
		hosts.On("FindByID", mock.Anything, testHostID).Return(&model.Host{ID: testHostID}, nil)
		lots.On("Create", mock.Anything, testHostID, 52).Return(&model.CreditLot{ID: "l1", Size: 52, Remaining: 52}, nil)

		lot, err := ledger.PurchaseLot(ctx, testHostID, 52)
		require.NoError(t, err)
		assert.Equal(t, 52, lot.Remaining)
		assert.Equal(t, []audit.EventType{audit.EventCreditPurchase}, rec.types())
	})
}

// In-memory stores for the concurrent creation property. Creates wait at a
// barrier so both callers pass the balance check before either debits.

type memHosts struct {
	mockHostRepo
	mu   sync.Mutex
	free int
}

func (h *memHosts) FindByID(_ context.Context, id string) (*model.Host, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return &model.Host{ID: id, FreeCreditsRemaining: h.free}, nil
}

func (h *memHosts) DebitFree(_ context.Context, _ string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.free == 0 {
		return false, nil
	}
	h.free--
	return true, nil
}

func (h *memHosts) WithTx(*sqlx.Tx) repository.HostRepository { return h }

type memLots struct {
	mockCreditLotRepo
}

func (l *memLots) WithTx(*sqlx.Tx) repository.CreditLotRepository { return l }

func (l *memLots) ListActive(context.Context, string) ([]model.CreditLot, error) {
	return []model.CreditLot{}, nil
}

func (l *memLots) DebitOldest(context.Context, string) (*model.CreditLot, error) {
	return nil, nil
}

type memGames struct {
	mockGameRepo
	mu      sync.Mutex
	rows    map[string]model.Game
	seq     int
	barrier sync.WaitGroup
}

func (g *memGames) PinInUse(context.Context, string) (bool, error) { return false, nil }

func (g *memGames) Create(_ context.Context, params model.CreateGameParams) (*model.Game, error) {
	g.barrier.Done()
	g.barrier.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	game := model.Game{ID: string(rune('a' + g.seq)), QuizID: params.QuizID, HostID: params.HostID, Pin: params.Pin}
	g.rows[game.ID] = game
	return &game, nil
}

func (g *memGames) Delete(_ context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rows, id)
	return nil
}

func (g *memGames) MarkPaid(_ context.Context, id string) (*model.Game, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	game, ok := g.rows[id]
	if !ok || game.PaidAt != nil {
		return nil, nil
	}
	now := time.Now()
	game.PaidAt = &now
	g.rows[id] = game
	return &game, nil
}

func (g *memGames) WithTx(*sqlx.Tx) repository.GameRepository { return g }

func TestCreditLedger_ConcurrentCreationWithOneCredit(t *testing.T) {
	hosts := &memHosts{free: 1}
	games := &memGames{rows: map[string]model.Game{}}
	games.barrier.Add(2)
	ledger := NewCreditLedger(&fakeTx{}, hosts, &memLots{}, games, &auditRecorder{})

	type outcome struct {
		game *model.Game
		err  error
	}
	results := make(chan outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			g, err := ledger.ReserveAndCreateSession(context.Background(), testQuizID, testHostID)
			results <- outcome{g, err}
		}()
	}

	var succeeded, failed int
	for i := 0; i < 2; i++ {
		select {
		case r := <-results:
			if r.err == nil {
				succeeded++
			} else {
				assert.True(t, apperrors.HasCode(r.err, apperrors.ErrCodeCreditTransactionFailed), "got %v", r.err)
				failed++
			}
		case <-time.After(2 * time.Second):
			t.Fatal("creation did not finish")
		}
	}

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, failed)
	assert.Len(t, games.rows, 1, "no orphaned game is left behind")
	assert.Equal(t, 0, hosts.free)
}
