package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	apperrors "github.com/convinceme/convince-server-go/internal/errors"
	"github.com/convinceme/convince-server-go/internal/model"
)

func newAttemptServiceForTest(attemptRepo *mockAttemptRepo, balanceRepo *mockBalanceRepo, notifier Notifier) *AttemptService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return NewAttemptService(nil, attemptRepo, nil, balanceRepo, nil, nil, notifier, 95)
}

func TestAttemptService_StartOrResume(t *testing.T) {
	t.Run("resumes the existing attempt with its score preserved", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		balanceRepo := new(mockBalanceRepo)
		svc := NewAttemptService(stubTxRunner{}, attemptRepo, nil, balanceRepo, nil, nil, NopNotifier{}, 95)

		ctx := context.Background()
		attemptRepo.On("LockConvincer", ctx, "conv-1").Return(nil)
		attemptRepo.On("FindActiveByConvincerIDForUpdate", ctx, "conv-1").Return([]model.Attempt{
			{ID: "att-1", ConvincerID: "conv-1", Status: model.AttemptStatusActive, ConvincingScore: 42},
		}, nil)
		balanceRepo.On("Read", ctx, "conv-1").Return(77, nil)

		result, err := svc.StartOrResume(ctx, "conv-1")

		assert.NoError(t, err)
		assert.True(t, result.Resumed)
		assert.Equal(t, "att-1", result.Attempt.ID)
		assert.Equal(t, 42, result.Attempt.ConvincingScore)
		assert.Equal(t, 77, result.BalanceSeconds)
		attemptRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})

	t.Run("creates a new attempt under the convincer lock", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		balanceRepo := new(mockBalanceRepo)
		svc := NewAttemptService(stubTxRunner{}, attemptRepo, nil, balanceRepo, nil, nil, NopNotifier{}, 95)

		ctx := context.Background()
		attemptRepo.On("LockConvincer", ctx, "conv-1").Return(nil).Once()
		attemptRepo.On("FindActiveByConvincerIDForUpdate", ctx, "conv-1").Return([]model.Attempt{}, nil)
		balanceRepo.On("Read", ctx, "conv-1").Return(60, nil)
		attemptRepo.On("Create", ctx, model.CreateAttemptParams{
			ConvincerID:          "conv-1",
			AvailableTimeSeconds: 60,
		}).Return(&model.Attempt{
			ID: "att-new", ConvincerID: "conv-1", Status: model.AttemptStatusActive,
		}, nil)

		result, err := svc.StartOrResume(ctx, "conv-1")

		assert.NoError(t, err)
		assert.False(t, result.Resumed)
		assert.Equal(t, "att-new", result.Attempt.ID)
		assert.Equal(t, 60, result.BalanceSeconds)
		attemptRepo.AssertExpectations(t)
	})

	t.Run("refuses to start against an empty ledger", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		balanceRepo := new(mockBalanceRepo)
		svc := NewAttemptService(stubTxRunner{}, attemptRepo, nil, balanceRepo, nil, nil, NopNotifier{}, 95)

		ctx := context.Background()
		attemptRepo.On("LockConvincer", ctx, "conv-1").Return(nil)
		attemptRepo.On("FindActiveByConvincerIDForUpdate", ctx, "conv-1").Return([]model.Attempt{}, nil)
		balanceRepo.On("Read", ctx, "conv-1").Return(0, nil)

		_, err := svc.StartOrResume(ctx, "conv-1")

		appErr, ok := apperrors.AsAppError(err)
		assert.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeInsufficientTime, appErr.Code)
		attemptRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	})
}

func TestAttemptService_SubmitMessage(t *testing.T) {
	t.Run("crossing the threshold completes the attempt and awards the prize once", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		messageRepo := new(mockMessageRepo)
		prizeRepo := new(mockPrizeRepo)
		notifier := &recordingNotifier{}
		prizes := NewPrizeService(prizeRepo, 100_000, 10)
		svc := NewAttemptService(stubTxRunner{}, attemptRepo, messageRepo, new(mockBalanceRepo), prizes, nil, notifier, 95)

		ctx := context.Background()
		attemptRepo.On("FindByIDForUpdate", ctx, "att-1").Return(&model.Attempt{
			ID: "att-1", ConvincerID: "conv-1", Status: model.AttemptStatusActive, ConvincingScore: 94,
		}, nil)
		messageRepo.On("Create", ctx, mock.Anything).Return(&model.Message{
			ID: "msg-1", AttemptID: "att-1",
		}, nil)
		// "porque" and "evidência" each score +3, lifting 94 to 100.
		attemptRepo.On("UpdateScore", ctx, "att-1", 100).Return(true, nil)
		attemptRepo.On("MarkTerminal", ctx, "att-1", model.AttemptStatusCompleted).Return(true, nil).Once()
		prizeRepo.On("FindOpenForUpdate", ctx).Return(&model.Prize{ID: "prize-1", AmountCents: 100_000}, nil)
		prizeRepo.On("MarkDistributed", ctx, "prize-1", "conv-1", "att-1").Return(true, nil).Once()
		prizeRepo.On("CreateCertificate", ctx, mock.Anything).Return(&model.PrizeCertificate{
			ID: "cert-1", PrizeID: "prize-1", ConvincerID: "conv-1",
		}, nil)
		prizeRepo.On("Create", ctx, int64(110_000)).Return(&model.Prize{ID: "prize-2"}, nil)

		result, err := svc.SubmitMessage(ctx, "conv-1", "att-1", "porque há evidência")

		assert.NoError(t, err)
		assert.True(t, result.Won)
		assert.Equal(t, 6, result.Delta)
		assert.Equal(t, 100, result.Attempt.ConvincingScore)
		assert.Equal(t, model.AttemptStatusCompleted, result.Attempt.Status)
		assert.Equal(t, []string{"att-1"}, notifier.closedAttempts())
		prizeRepo.AssertExpectations(t)
		prizeRepo.AssertNumberOfCalls(t, "MarkDistributed", 1)
	})

	t.Run("a completed attempt takes no further messages", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		messageRepo := new(mockMessageRepo)
		prizeRepo := new(mockPrizeRepo)
		prizes := NewPrizeService(prizeRepo, 100_000, 10)
		svc := NewAttemptService(stubTxRunner{}, attemptRepo, messageRepo, new(mockBalanceRepo), prizes, nil, NopNotifier{}, 95)

		ctx := context.Background()
		attemptRepo.On("FindByIDForUpdate", ctx, "att-1").Return(&model.Attempt{
			ID: "att-1", ConvincerID: "conv-1", Status: model.AttemptStatusCompleted, ConvincingScore: 100,
		}, nil)

		_, err := svc.SubmitMessage(ctx, "conv-1", "att-1", "mais um argumento")

		appErr, ok := apperrors.AsAppError(err)
		assert.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeAttemptNotActive, appErr.Code)
		messageRepo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		prizeRepo.AssertNotCalled(t, "MarkDistributed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects a blank body", func(t *testing.T) {
		svc := NewAttemptService(stubTxRunner{}, new(mockAttemptRepo), new(mockMessageRepo), new(mockBalanceRepo), nil, nil, NopNotifier{}, 95)

		_, err := svc.SubmitMessage(context.Background(), "conv-1", "att-1", "   ")

		appErr, ok := apperrors.AsAppError(err)
		assert.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeMissingRequired, appErr.Code)
	})
}

func TestAttemptService_ActiveAttempt(t *testing.T) {
	t.Run("returns the active attempt with a fresh balance", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		balanceRepo := new(mockBalanceRepo)
		svc := newAttemptServiceForTest(attemptRepo, balanceRepo, nil)

		ctx := context.Background()
		attemptRepo.On("FindActiveByConvincerID", ctx, "conv-1").Return([]model.Attempt{
			{ID: "att-1", ConvincerID: "conv-1", Status: model.AttemptStatusActive, ConvincingScore: 42},
		}, nil)
		balanceRepo.On("Read", ctx, "conv-1").Return(300, nil)

		attempt, balance, err := svc.ActiveAttempt(ctx, "conv-1")

		assert.NoError(t, err)
		assert.Equal(t, "att-1", attempt.ID)
		assert.Equal(t, 42, attempt.ConvincingScore)
		assert.Equal(t, 300, balance)
		attemptRepo.AssertExpectations(t)
	})

	t.Run("returns nil when nothing is active", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		balanceRepo := new(mockBalanceRepo)
		svc := newAttemptServiceForTest(attemptRepo, balanceRepo, nil)

		ctx := context.Background()
		attemptRepo.On("FindActiveByConvincerID", ctx, "conv-1").Return([]model.Attempt{}, nil)

		attempt, balance, err := svc.ActiveAttempt(ctx, "conv-1")

		assert.NoError(t, err)
		assert.Nil(t, attempt)
		assert.Equal(t, 0, balance)
	})

	t.Run("surfaces multiple active attempts as a consistency error", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		balanceRepo := new(mockBalanceRepo)
		svc := newAttemptServiceForTest(attemptRepo, balanceRepo, nil)

		ctx := context.Background()
		attemptRepo.On("FindActiveByConvincerID", ctx, "conv-1").Return([]model.Attempt{
			{ID: "att-1", Status: model.AttemptStatusActive},
			{ID: "att-2", Status: model.AttemptStatusActive},
		}, nil)

		_, _, err := svc.ActiveAttempt(ctx, "conv-1")

		appErr, ok := apperrors.AsAppError(err)
		assert.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeConsistency, appErr.Code)
	})
}

func TestAttemptService_ExpireCheck(t *testing.T) {
	active := func() *model.Attempt {
		return &model.Attempt{
			ID:              "att-1",
			ConvincerID:     "conv-1",
			Status:          model.AttemptStatusActive,
			ConvincingScore: 50,
		}
	}

	t.Run("re-arms when the fresh balance is positive", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		balanceRepo := new(mockBalanceRepo)
		svc := newAttemptServiceForTest(attemptRepo, balanceRepo, nil)

		ctx := context.Background()
		attemptRepo.On("FindByID", ctx, "att-1").Return(active(), nil)
		balanceRepo.On("Read", ctx, "conv-1").Return(120, nil)

		result, err := svc.ExpireCheck(ctx, "conv-1", "att-1")

		assert.NoError(t, err)
		assert.False(t, result.Expired)
		assert.Equal(t, 120, result.RearmSeconds)
		assert.Equal(t, model.AttemptStatusActive, result.Attempt.Status)
		attemptRepo.AssertNotCalled(t, "MarkTerminal", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("expires when the fresh balance is zero", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		balanceRepo := new(mockBalanceRepo)
		notifier := &recordingNotifier{}
		svc := newAttemptServiceForTest(attemptRepo, balanceRepo, notifier)

		ctx := context.Background()
		attemptRepo.On("FindByID", ctx, "att-1").Return(active(), nil)
		balanceRepo.On("Read", ctx, "conv-1").Return(0, nil)
		attemptRepo.On("MarkTerminal", ctx, "att-1", model.AttemptStatusExpired).Return(true, nil)

		result, err := svc.ExpireCheck(ctx, "conv-1", "att-1")

		assert.NoError(t, err)
		assert.True(t, result.Expired)
		assert.Equal(t, model.AttemptStatusExpired, result.Attempt.Status)
		assert.Equal(t, []string{"att-1"}, notifier.closedAttempts())
		attemptRepo.AssertExpectations(t)
	})

	t.Run("reports a terminal attempt without touching it", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		balanceRepo := new(mockBalanceRepo)
		svc := newAttemptServiceForTest(attemptRepo, balanceRepo, nil)

		ctx := context.Background()
		done := active()
		done.Status = model.AttemptStatusExpired
		attemptRepo.On("FindByID", ctx, "att-1").Return(done, nil)

		result, err := svc.ExpireCheck(ctx, "conv-1", "att-1")

		assert.NoError(t, err)
		assert.True(t, result.Expired)
		balanceRepo.AssertNotCalled(t, "Read", mock.Anything, mock.Anything)
	})

	t.Run("reports the winning status when a racing transition got there first", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		balanceRepo := new(mockBalanceRepo)
		svc := newAttemptServiceForTest(attemptRepo, balanceRepo, nil)

		ctx := context.Background()
		completed := active()
		completed.Status = model.AttemptStatusCompleted

		attemptRepo.On("FindByID", ctx, "att-1").Return(active(), nil).Once()
		balanceRepo.On("Read", ctx, "conv-1").Return(0, nil)
		attemptRepo.On("MarkTerminal", ctx, "att-1", model.AttemptStatusExpired).Return(false, nil)
		attemptRepo.On("FindByID", ctx, "att-1").Return(completed, nil).Once()

		result, err := svc.ExpireCheck(ctx, "conv-1", "att-1")

		assert.NoError(t, err)
		assert.False(t, result.Expired)
		assert.Equal(t, model.AttemptStatusCompleted, result.Attempt.Status)
	})

	t.Run("rejects a foreign attempt", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		balanceRepo := new(mockBalanceRepo)
		svc := newAttemptServiceForTest(attemptRepo, balanceRepo, nil)

		ctx := context.Background()
		foreign := active()
		foreign.ConvincerID = "conv-other"
		attemptRepo.On("FindByID", ctx, "att-1").Return(foreign, nil)

		_, err := svc.ExpireCheck(ctx, "conv-1", "att-1")

		appErr, ok := apperrors.AsAppError(err)
		assert.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeForbidden, appErr.Code)
	})
}

func TestAttemptService_Abandon(t *testing.T) {
	t.Run("flushes unspent seconds before going terminal", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		balanceRepo := new(mockBalanceRepo)
		notifier := &recordingNotifier{}
		svc := newAttemptServiceForTest(attemptRepo, balanceRepo, notifier)

		ctx := context.Background()
		attemptRepo.On("FindByID", ctx, "att-1").Return(&model.Attempt{
			ID: "att-1", ConvincerID: "conv-1", Status: model.AttemptStatusActive,
		}, nil)
		balanceRepo.On("Debit", ctx, "conv-1", 40).Return(80, nil)
		attemptRepo.On("MarkTerminal", ctx, "att-1", model.AttemptStatusAbandoned).Return(true, nil)

		attempt, err := svc.Abandon(ctx, "conv-1", "att-1", 40)

		assert.NoError(t, err)
		assert.Equal(t, model.AttemptStatusAbandoned, attempt.Status)
		assert.Equal(t, []string{"att-1"}, notifier.closedAttempts())
		balanceRepo.AssertExpectations(t)
		attemptRepo.AssertExpectations(t)
	})

	t.Run("skips the debit when nothing is unflushed", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		balanceRepo := new(mockBalanceRepo)
		svc := newAttemptServiceForTest(attemptRepo, balanceRepo, nil)

		ctx := context.Background()
		attemptRepo.On("FindByID", ctx, "att-1").Return(&model.Attempt{
			ID: "att-1", ConvincerID: "conv-1", Status: model.AttemptStatusActive,
		}, nil)
		attemptRepo.On("MarkTerminal", ctx, "att-1", model.AttemptStatusAbandoned).Return(true, nil)

		_, err := svc.Abandon(ctx, "conv-1", "att-1", 0)

		assert.NoError(t, err)
		balanceRepo.AssertNotCalled(t, "Debit", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects negative unflushed seconds", func(t *testing.T) {
		svc := newAttemptServiceForTest(new(mockAttemptRepo), new(mockBalanceRepo), nil)

		_, err := svc.Abandon(context.Background(), "conv-1", "att-1", -5)

		appErr, ok := apperrors.AsAppError(err)
		assert.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeInvalidInput, appErr.Code)
	})

	t.Run("rejects an attempt that already left active", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		svc := newAttemptServiceForTest(attemptRepo, new(mockBalanceRepo), nil)

		ctx := context.Background()
		attemptRepo.On("FindByID", ctx, "att-1").Return(&model.Attempt{
			ID: "att-1", ConvincerID: "conv-1", Status: model.AttemptStatusCompleted,
		}, nil)

		_, err := svc.Abandon(ctx, "conv-1", "att-1", 10)

		appErr, ok := apperrors.AsAppError(err)
		assert.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeAttemptNotActive, appErr.Code)
	})
}

func TestAttemptService_ExpireStale(t *testing.T) {
	t.Run("leaves an idle attempt with remaining balance alone", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		balanceRepo := new(mockBalanceRepo)
		svc := newAttemptServiceForTest(attemptRepo, balanceRepo, nil)

		ctx := context.Background()
		balanceRepo.On("Read", ctx, "conv-1").Return(60, nil)

		expired, err := svc.ExpireStale(ctx, &model.Attempt{ID: "att-1", ConvincerID: "conv-1"})

		assert.NoError(t, err)
		assert.False(t, expired)
		attemptRepo.AssertNotCalled(t, "MarkTerminal", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("expires an idle attempt backed by an empty ledger", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		balanceRepo := new(mockBalanceRepo)
		notifier := &recordingNotifier{}
		svc := newAttemptServiceForTest(attemptRepo, balanceRepo, notifier)

		ctx := context.Background()
		balanceRepo.On("Read", ctx, "conv-1").Return(0, nil)
		attemptRepo.On("MarkTerminal", ctx, "att-1", model.AttemptStatusExpired).Return(true, nil)

		expired, err := svc.ExpireStale(ctx, &model.Attempt{ID: "att-1", ConvincerID: "conv-1"})

		assert.NoError(t, err)
		assert.True(t, expired)
		assert.Equal(t, []string{"att-1"}, notifier.closedAttempts())
	})
}

func TestAttemptService_AuthorizeSubscription(t *testing.T) {
	t.Run("allows the owner", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		svc := newAttemptServiceForTest(attemptRepo, new(mockBalanceRepo), nil)

		ctx := context.Background()
		attemptRepo.On("FindByID", ctx, "att-1").Return(&model.Attempt{
			ID: "att-1", ConvincerID: "conv-1", Status: model.AttemptStatusActive,
		}, nil)

		assert.NoError(t, svc.AuthorizeSubscription(ctx, "conv-1", "att-1"))
	})

	t.Run("rejects an unknown attempt", func(t *testing.T) {
		attemptRepo := new(mockAttemptRepo)
		svc := newAttemptServiceForTest(attemptRepo, new(mockBalanceRepo), nil)

		ctx := context.Background()
		attemptRepo.On("FindByID", ctx, "att-missing").Return(nil, nil)

		err := svc.AuthorizeSubscription(ctx, "conv-1", "att-missing")

		appErr, ok := apperrors.AsAppError(err)
		assert.True(t, ok)
		assert.Equal(t, apperrors.ErrCodeNotFound, appErr.Code)
	})
}
