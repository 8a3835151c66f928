package services

import (
	"context"
	"testing"
	"time"

	"github.com/Dosada05/tournament-payments/models"
	"github.com/Dosada05/tournament-payments/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLedger() (*LedgerService, *fakeTransactionRepo) {
	repo := newFakeTransactionRepo()
	return NewLedgerService(repo, nil, testLogger()), repo
}

func TestInitiateCreatesPending(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger()

	tx, err := ledger.Initiate(ctx, "t1", "r1", 100)
	require.NoError(t, err)
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, models.TransactionPending, tx.Status)
	assert.Equal(t, int64(100), tx.Amount)
}

func TestInitiateRefusesSecondActive(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger()

	_, err := ledger.Initiate(ctx, "t1", "r1", 100)
	require.NoError(t, err)

	// Вторая попытка при живой PENDING — отказ, ничего не перезаписывается.
	_, err = ledger.Initiate(ctx, "t1", "r1", 100)
	assert.ErrorIs(t, err, ErrConcurrentPaymentExists)
}

func TestInitiateRefusesAfterSuccess(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger()

	tx, err := ledger.Initiate(ctx, "t1", "r1", 100)
	require.NoError(t, err)
	_, err = ledger.Resolve(ctx, tx.ID, models.TransactionSuccess, nil)
	require.NoError(t, err)

	_, err = ledger.Initiate(ctx, "t1", "r1", 100)
	assert.ErrorIs(t, err, ErrConcurrentPaymentExists)
}

func TestInitiateAllowsRetryAfterFailure(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger()

	tx, err := ledger.Initiate(ctx, "t1", "r1", 100)
	require.NoError(t, err)
	reason := "card declined"
	_, err = ledger.Resolve(ctx, tx.ID, models.TransactionFailed, &reason)
	require.NoError(t, err)

	retry, err := ledger.Initiate(ctx, "t1", "r1", 100)
	require.NoError(t, err)
	assert.NotEqual(t, tx.ID, retry.ID)
}

func TestInitiateValidation(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger()

	_, err := ledger.Initiate(ctx, "t1", "", 100)
	assert.ErrorIs(t, err, ErrMissingRegistrationReference)

	_, err = ledger.Initiate(ctx, "t1", "r1", 0)
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestResolveIsImmutableOnceTerminal(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger()

	tx, err := ledger.Initiate(ctx, "t1", "r1", 100)
	require.NoError(t, err)
	_, err = ledger.Resolve(ctx, tx.ID, models.TransactionSuccess, nil)
	require.NoError(t, err)

	reason := "late failure"
	_, err = ledger.Resolve(ctx, tx.ID, models.TransactionFailed, &reason)
	assert.ErrorIs(t, err, repositories.ErrTransactionTerminal)

	got, err := ledger.LatestTransaction(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionSuccess, got.Status)
}

func TestAwaitOutcomeTerminalImmediately(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newLedger()

	tx, err := ledger.Initiate(ctx, "t1", "r1", 100)
	require.NoError(t, err)
	_, err = ledger.Resolve(ctx, tx.ID, models.TransactionSuccess, nil)
	require.NoError(t, err)

	outcome, err := ledger.AwaitOutcome(ctx, tx.ID)
	require.NoError(t, err)
	assert.True(t, outcome.Known)
	assert.Equal(t, models.TransactionSuccess, outcome.Status)
}

func TestAwaitOutcomeUnknownOnCancel(t *testing.T) {
	ledger, _ := newLedger()

	tx, err := ledger.Initiate(context.Background(), "t1", "r1", 100)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Остановка наблюдения без терминального статуса — "исход неизвестен",
	// не успех и не провал; сама транзакция остаётся PENDING.
	outcome, err := ledger.AwaitOutcome(ctx, tx.ID)
	require.NoError(t, err)
	assert.False(t, outcome.Known)

	got, err := ledger.LatestTransaction(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionPending, got.Status)
}

func TestObserveUnknownTransaction(t *testing.T) {
	ledger, _ := newLedger()
	_, err := ledger.Observe(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestExpireStalePending(t *testing.T) {
	ctx := context.Background()
	ledger, repo := newLedger()

	tx, err := ledger.Initiate(ctx, "t1", "r1", 100)
	require.NoError(t, err)
	fresh, err := ledger.Initiate(ctx, "t1", "r2", 100)
	require.NoError(t, err)

	// Состариваем первую транзакцию напрямую в хранилище.
	repo.mu.Lock()
	repo.byID[tx.ID].CreatedAt = time.Now().Add(-48 * time.Hour)
	repo.mu.Unlock()

	expired, err := ledger.ExpireStalePending(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, expired)

	got, err := ledger.LatestTransaction(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionFailed, got.Status)
	require.NotNil(t, got.FailureReason)

	untouched, err := ledger.LatestTransaction(ctx, "r2")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionPending, untouched.Status)
	assert.Equal(t, fresh.ID, untouched.ID)
}
