package service

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/kwizz/kwizz-go/internal/audit"
	"github.com/kwizz/kwizz-go/internal/database"
	"github.com/kwizz/kwizz-go/internal/model"
	"github.com/kwizz/kwizz-go/internal/repository"
)

const (
	testGameID     = "11111111-1111-1111-1111-111111111111"
	testHostID     = "22222222-2222-2222-2222-222222222222"
	testQuizID     = "33333333-3333-3333-3333-333333333333"
	testPlayerID   = "44444444-4444-4444-4444-444444444444"
	testQuestionID = "55555555-5555-5555-5555-555555555555"
	testNextQID    = "66666666-6666-6666-6666-666666666666"
)

type mockGameRepo struct {
	mock.Mock
}

func (m *mockGameRepo) FindByID(ctx context.Context, id string) (*model.Game, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Game), args.Error(1)
}

func (m *mockGameRepo) LockByID(ctx context.Context, id string) (*model.Game, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Game), args.Error(1)
}

func (m *mockGameRepo) FindOpenByPin(ctx context.Context, pin string) (*model.Game, error) {
	args := m.Called(ctx, pin)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Game), args.Error(1)
}

func (m *mockGameRepo) PinInUse(ctx context.Context, pin string) (bool, error) {
	args := m.Called(ctx, pin)
	return args.Bool(0), args.Error(1)
}

func (m *mockGameRepo) Create(ctx context.Context, params model.CreateGameParams) (*model.Game, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Game), args.Error(1)
}

func (m *mockGameRepo) MarkPaid(ctx context.Context, id string) (*model.Game, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Game), args.Error(1)
}

func (m *mockGameRepo) SetProgress(ctx context.Context, id string, from model.GameStatus, update model.GameProgress) (*model.Game, error) {
	args := m.Called(ctx, id, from, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Game), args.Error(1)
}

func (m *mockGameRepo) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockGameRepo) FinishIdleSince(ctx context.Context, before time.Time) ([]string, error) {
	args := m.Called(ctx, before)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockGameRepo) DeleteUnpaidBefore(ctx context.Context, before time.Time) ([]string, error) {
	args := m.Called(ctx, before)
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockGameRepo) WithTx(tx *sqlx.Tx) repository.GameRepository { return m }

type mockPlayerRepo struct {
	mock.Mock
}

func (m *mockPlayerRepo) FindByID(ctx context.Context, id string) (*model.Player, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Player), args.Error(1)
}

func (m *mockPlayerRepo) ListByGame(ctx context.Context, gameID string) ([]model.Player, error) {
	args := m.Called(ctx, gameID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Player), args.Error(1)
}

func (m *mockPlayerRepo) Create(ctx context.Context, params model.CreatePlayerParams) (*model.Player, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Player), args.Error(1)
}

func (m *mockPlayerRepo) AddScore(ctx context.Context, id string, points int) (*model.Player, error) {
	args := m.Called(ctx, id, points)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Player), args.Error(1)
}

func (m *mockPlayerRepo) Touch(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *mockPlayerRepo) WithTx(tx *sqlx.Tx) repository.PlayerRepository { return m }

type mockResponseRepo struct {
	mock.Mock
}

func (m *mockResponseRepo) FindByPlayerAndQuestion(ctx context.Context, playerID, questionID string) (*model.Response, error) {
	args := m.Called(ctx, playerID, questionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Response), args.Error(1)
}

func (m *mockResponseRepo) ListByGame(ctx context.Context, gameID string) ([]model.Response, error) {
	args := m.Called(ctx, gameID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Response), args.Error(1)
}

func (m *mockResponseRepo) ListByQuestion(ctx context.Context, gameID, questionID string) ([]model.Response, error) {
	args := m.Called(ctx, gameID, questionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Response), args.Error(1)
}

func (m *mockResponseRepo) Create(ctx context.Context, params model.CreateResponseParams) (*model.Response, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Response), args.Error(1)
}

func (m *mockResponseRepo) WithTx(tx *sqlx.Tx) repository.ResponseRepository { return m }

type mockQuestionRepo struct {
	mock.Mock
}

func (m *mockQuestionRepo) FindByID(ctx context.Context, id string) (*model.Question, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Question), args.Error(1)
}

func (m *mockQuestionRepo) ListByQuiz(ctx context.Context, quizID string) ([]model.Question, error) {
	args := m.Called(ctx, quizID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Question), args.Error(1)
}

func (m *mockQuestionRepo) First(ctx context.Context, quizID string) (*model.Question, error) {
	args := m.Called(ctx, quizID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Question), args.Error(1)
}

func (m *mockQuestionRepo) NextAfter(ctx context.Context, quizID string, order int) (*model.Question, error) {
	args := m.Called(ctx, quizID, order)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Question), args.Error(1)
}

func (m *mockQuestionRepo) Create(ctx context.Context, q model.Question) (*model.Question, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Question), args.Error(1)
}

func (m *mockQuestionRepo) WithTx(tx *sqlx.Tx) repository.QuestionRepository { return m }

type mockHostRepo struct {
	mock.Mock
}

func (m *mockHostRepo) FindByID(ctx context.Context, id string) (*model.Host, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Host), args.Error(1)
}

func (m *mockHostRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Host, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Host), args.Error(1)
}

func (m *mockHostRepo) Create(ctx context.Context, name, tokenHash string, freeCredits int) (*model.Host, error) {
	args := m.Called(ctx, name, tokenHash, freeCredits)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Host), args.Error(1)
}

func (m *mockHostRepo) DebitFree(ctx context.Context, hostID string) (bool, error) {
	args := m.Called(ctx, hostID)
	return args.Bool(0), args.Error(1)
}

func (m *mockHostRepo) WithTx(tx *sqlx.Tx) repository.HostRepository { return m }

type mockCreditLotRepo struct {
	mock.Mock
}

func (m *mockCreditLotRepo) ListActive(ctx context.Context, hostID string) ([]model.CreditLot, error) {
	args := m.Called(ctx, hostID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.CreditLot), args.Error(1)
}

func (m *mockCreditLotRepo) Create(ctx context.Context, hostID string, size int) (*model.CreditLot, error) {
	args := m.Called(ctx, hostID, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CreditLot), args.Error(1)
}

func (m *mockCreditLotRepo) DebitOldest(ctx context.Context, hostID string) (*model.CreditLot, error) {
	args := m.Called(ctx, hostID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CreditLot), args.Error(1)
}

func (m *mockCreditLotRepo) WithTx(tx *sqlx.Tx) repository.CreditLotRepository { return m }

// auditRecorder captures audit events.
type auditRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *auditRecorder) Log(_ context.Context, event audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
}

func (a *auditRecorder) types() []audit.EventType {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]audit.EventType, 0, len(a.events))
	for _, e := range a.events {
		out = append(out, e.Type)
	}
	return out
}

// fakeTx runs fn with a nil transaction; the mocks ignore it.
type fakeTx struct {
	mu    sync.Mutex
	calls int
	open  int
}

func (f *fakeTx) WithTx(ctx context.Context, fn database.TxFunc) error {
	f.mu.Lock()
	f.calls++
	f.open++
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.open--
		f.mu.Unlock()
	}()
	return fn(nil)
}

// inTx reports whether a transaction body is running.
func (f *fakeTx) inTx() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open > 0
}
