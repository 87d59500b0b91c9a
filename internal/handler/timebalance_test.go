package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/convinceme/convince-server-go/internal/middleware"
	"github.com/convinceme/convince-server-go/internal/model"
	"github.com/convinceme/convince-server-go/internal/repository"
	"github.com/convinceme/convince-server-go/internal/service"
)

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

func serveAs(h http.HandlerFunc, pattern, method, target, body string, convincer *model.Convincer) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	r.MethodFunc(method, pattern, h)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if convincer != nil {
		ctx := context.WithValue(req.Context(), middleware.ConvincerContextKey, convincer)
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestTimeBalanceHandler_GetBalance(t *testing.T) {
	t.Run("returns the caller's balance", func(t *testing.T) {
		balanceRepo := new(mockBalanceRepo)
		h := NewTimeBalanceHandler(service.NewTimeLedgerService(nil, balanceRepo, nil))

		balanceRepo.On("Read", mock.Anything, "conv-1").Return(120, nil)

		rec := serveAs(h.GetBalance, "/v1/time-balance/{convincerID}",
			http.MethodGet, "/v1/time-balance/conv-1", "", &model.Convincer{ID: "conv-1"})

		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]int
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 120, body["balanceSeconds"])
	})

	t.Run("refuses another convincer's balance", func(t *testing.T) {
		h := NewTimeBalanceHandler(service.NewTimeLedgerService(nil, new(mockBalanceRepo), nil))

		rec := serveAs(h.GetBalance, "/v1/time-balance/{convincerID}",
			http.MethodGet, "/v1/time-balance/conv-other", "", &model.Convincer{ID: "conv-1"})

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestTimeBalanceHandler_Debit(t *testing.T) {
	t.Run("flushes seconds and returns the remaining balance", func(t *testing.T) {
		balanceRepo := new(mockBalanceRepo)
		h := NewTimeBalanceHandler(service.NewTimeLedgerService(nil, balanceRepo, nil))

		balanceRepo.On("Debit", mock.Anything, "conv-1", 15).Return(105, nil)

		rec := serveAs(h.Debit, "/v1/time-balance/{convincerID}",
			http.MethodPut, "/v1/time-balance/conv-1", `{"seconds_to_subtract":15}`,
			&model.Convincer{ID: "conv-1"})

		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]int
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 105, body["balanceSeconds"])
	})

	t.Run("rejects negative seconds", func(t *testing.T) {
		h := NewTimeBalanceHandler(service.NewTimeLedgerService(nil, new(mockBalanceRepo), nil))

		rec := serveAs(h.Debit, "/v1/time-balance/{convincerID}",
			http.MethodPut, "/v1/time-balance/conv-1", `{"seconds_to_subtract":-5}`,
			&model.Convincer{ID: "conv-1"})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("refuses another convincer's ledger", func(t *testing.T) {
		h := NewTimeBalanceHandler(service.NewTimeLedgerService(nil, new(mockBalanceRepo), nil))

		rec := serveAs(h.Debit, "/v1/time-balance/{convincerID}",
			http.MethodPut, "/v1/time-balance/conv-other", `{"seconds_to_subtract":5}`,
			&model.Convincer{ID: "conv-1"})

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
