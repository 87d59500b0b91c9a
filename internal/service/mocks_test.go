package service

import (
	"context"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/mock"

	"github.com/convinceme/convince-server-go/internal/database"
	"github.com/convinceme/convince-server-go/internal/model"
	"github.com/convinceme/convince-server-go/internal/repository"
)

// stubTxRunner runs the transaction function directly so the tx-scoped
// service paths exercise the same mocks as everything else.
type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn database.TxFunc) error {
	return fn(nil)
}

type mockAttemptRepo struct {
	mock.Mock
}

func (m *mockAttemptRepo) FindByID(ctx context.Context, id string) (*model.Attempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Attempt), args.Error(1)
}

func (m *mockAttemptRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Attempt, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Attempt), args.Error(1)
}

func (m *mockAttemptRepo) FindActiveByConvincerID(ctx context.Context, convincerID string) ([]model.Attempt, error) {
	args := m.Called(ctx, convincerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Attempt), args.Error(1)
}

func (m *mockAttemptRepo) FindActiveByConvincerIDForUpdate(ctx context.Context, convincerID string) ([]model.Attempt, error) {
	args := m.Called(ctx, convincerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Attempt), args.Error(1)
}

func (m *mockAttemptRepo) LockConvincer(ctx context.Context, convincerID string) error {
	args := m.Called(ctx, convincerID)
	return args.Error(0)
}

func (m *mockAttemptRepo) FindStaleActive(ctx context.Context, idleSince time.Time) ([]model.Attempt, error) {
	args := m.Called(ctx, idleSince)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Attempt), args.Error(1)
}

func (m *mockAttemptRepo) Create(ctx context.Context, params model.CreateAttemptParams) (*model.Attempt, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Attempt), args.Error(1)
}

func (m *mockAttemptRepo) UpdateScore(ctx context.Context, id string, score int) (bool, error) {
	args := m.Called(ctx, id, score)
	return args.Bool(0), args.Error(1)
}

func (m *mockAttemptRepo) MarkTerminal(ctx context.Context, id string, status model.AttemptStatus) (bool, error) {
	args := m.Called(ctx, id, status)
	return args.Bool(0), args.Error(1)
}

func (m *mockAttemptRepo) WithTx(tx *sqlx.Tx) repository.AttemptRepository {
	return m
}

type mockBalanceRepo struct {
	mock.Mock
}

func (m *mockBalanceRepo) FindByConvincerID(ctx context.Context, convincerID string) (*model.TimeBalance, error) {
	args := m.Called(ctx, convincerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TimeBalance), args.Error(1)
}

func (m *mockBalanceRepo) Read(ctx context.Context, convincerID string) (int, error) {
	args := m.Called(ctx, convincerID)
	return args.Int(0), args.Error(1)
}

func (m *mockBalanceRepo) Credit(ctx context.Context, convincerID string, seconds int) (int, error) {
	args := m.Called(ctx, convincerID, seconds)
	return args.Int(0), args.Error(1)
}

func (m *mockBalanceRepo) Debit(ctx context.Context, convincerID string, seconds int) (int, error) {
	args := m.Called(ctx, convincerID, seconds)
	return args.Int(0), args.Error(1)
}

func (m *mockBalanceRepo) WithTx(tx *sqlx.Tx) repository.TimeBalanceRepository {
	return m
}

type mockMessageRepo struct {
	mock.Mock
}

func (m *mockMessageRepo) FindByID(ctx context.Context, id string) (*model.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *mockMessageRepo) FindByAttemptID(ctx context.Context, attemptID string, limit, offset int) ([]model.Message, error) {
	args := m.Called(ctx, attemptID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Message), args.Error(1)
}

func (m *mockMessageRepo) CountByAttemptID(ctx context.Context, attemptID string) (int, error) {
	args := m.Called(ctx, attemptID)
	return args.Int(0), args.Error(1)
}

func (m *mockMessageRepo) Create(ctx context.Context, params model.CreateMessageParams) (*model.Message, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Message), args.Error(1)
}

func (m *mockMessageRepo) WithTx(tx *sqlx.Tx) repository.MessageRepository {
	return m
}

type mockPaymentRepo struct {
	mock.Mock
}

func (m *mockPaymentRepo) FindByReference(ctx context.Context, reference string) (*model.Payment, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *mockPaymentRepo) CreateIfAbsent(ctx context.Context, params model.CreatePaymentParams) (*model.Payment, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Payment), args.Error(1)
}

func (m *mockPaymentRepo) WithTx(tx *sqlx.Tx) repository.PaymentRepository {
	return m
}

type mockPrizeRepo struct {
	mock.Mock
}

func (m *mockPrizeRepo) FindByID(ctx context.Context, id string) (*model.Prize, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Prize), args.Error(1)
}

func (m *mockPrizeRepo) FindOpen(ctx context.Context) (*model.Prize, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Prize), args.Error(1)
}

func (m *mockPrizeRepo) FindOpenForUpdate(ctx context.Context) (*model.Prize, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Prize), args.Error(1)
}

func (m *mockPrizeRepo) Create(ctx context.Context, amountCents int64) (*model.Prize, error) {
	args := m.Called(ctx, amountCents)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Prize), args.Error(1)
}

func (m *mockPrizeRepo) MarkDistributed(ctx context.Context, id, convincerID, attemptID string) (bool, error) {
	args := m.Called(ctx, id, convincerID, attemptID)
	return args.Bool(0), args.Error(1)
}

func (m *mockPrizeRepo) CreateCertificate(ctx context.Context, cert model.PrizeCertificate) (*model.PrizeCertificate, error) {
	args := m.Called(ctx, cert)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PrizeCertificate), args.Error(1)
}

func (m *mockPrizeRepo) FindCertificateByPrizeID(ctx context.Context, prizeID string) (*model.PrizeCertificate, error) {
	args := m.Called(ctx, prizeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PrizeCertificate), args.Error(1)
}

func (m *mockPrizeRepo) WithTx(tx *sqlx.Tx) repository.PrizeRepository {
	return m
}

type mockConvincerRepo struct {
	mock.Mock
}

func (m *mockConvincerRepo) FindByID(ctx context.Context, id string) (*model.Convincer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Convincer), args.Error(1)
}

func (m *mockConvincerRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Convincer, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Convincer), args.Error(1)
}

func (m *mockConvincerRepo) FindByEmail(ctx context.Context, email string) (*model.Convincer, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Convincer), args.Error(1)
}

func (m *mockConvincerRepo) Create(ctx context.Context, params model.CreateConvincerParams) (*model.Convincer, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Convincer), args.Error(1)
}

// recordingNotifier captures notifications for assertions.
type recordingNotifier struct {
	mu      sync.Mutex
	updates []string
	closed  []string
}

func (n *recordingNotifier) AttemptUpdated(attemptID string, score int, status model.AttemptStatus) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, attemptID)
}

func (n *recordingNotifier) AIResponseCreated(resp *model.AIResponse) {}

func (n *recordingNotifier) AttemptClosed(attemptID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed = append(n.closed, attemptID)
}

func (n *recordingNotifier) closedAttempts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.closed...)
}
