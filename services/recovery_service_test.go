package services

import (
	"context"
	"testing"

	"github.com/Dosada05/tournament-payments/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recoveryFixture struct {
	cache  *fakePendingCache
	regSvc *RegistrationService
	ledger *LedgerService
	svc    *RecoveryService
	regID  string
}

func newRecoveryFixture(t *testing.T) *recoveryFixture {
	t.Helper()
	ctx := context.Background()

	regRepo := newFakeRegistrationRepo()
	txRepo := newFakeTransactionRepo()
	tournamentRepo := newFakeTournamentRepo()
	cache := newFakePendingCache()

	require.NoError(t, tournamentRepo.Create(ctx, soloTournament(100)))

	regSvc := NewRegistrationService(regRepo, tournamentRepo, NewFingerprintService(regRepo), testLogger())
	ledger := NewLedgerService(txRepo, nil, testLogger())
	svc := NewRecoveryService(cache, regSvc, ledger, testLogger())

	res, err := regSvc.Register(ctx, RegisterInput{TournamentID: "t-solo", Email: "crash@example.com"})
	require.NoError(t, err)

	return &recoveryFixture{cache: cache, regSvc: regSvc, ledger: ledger, svc: svc, regID: res.Registration.ID}
}

func (f *recoveryFixture) putPending(t *testing.T) {
	t.Helper()
	require.NoError(t, f.cache.Put(context.Background(), &models.LocalPendingPayment{
		TournamentID:   "t-solo",
		RegistrationID: f.regID,
		Amount:         100,
	}))
}

func TestReconcileAlreadyPaid(t *testing.T) {
	ctx := context.Background()
	f := newRecoveryFixture(t)
	f.putPending(t)
	require.NoError(t, f.regSvc.MarkPaid(ctx, f.regID, 100))

	reports, err := f.svc.ReconcilePendingPayments(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, RecoveryResolvedPaid, reports[0].Action)
	assert.Equal(t, 0, f.cache.size())
}

func TestReconcileCrashBeforeInitiate(t *testing.T) {
	ctx := context.Background()
	f := newRecoveryFixture(t)
	f.putPending(t)

	// Транзакции нет вообще: списания точно не было, запись снимается.
	reports, err := f.svc.ReconcilePendingPayments(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, RecoveryRetryAvailable, reports[0].Action)
	assert.Equal(t, 0, f.cache.size())
}

func TestReconcileCrashAfterSuccessBeforeMarkPaid(t *testing.T) {
	ctx := context.Background()
	f := newRecoveryFixture(t)
	f.putPending(t)

	tx, err := f.ledger.Initiate(ctx, "t-solo", f.regID, 100)
	require.NoError(t, err)
	_, err = f.ledger.Resolve(ctx, tx.ID, models.TransactionSuccess, nil)
	require.NoError(t, err)

	// Деньги получены, регистрация не помечена: досчёт без нового списания.
	reports, err := f.svc.ReconcilePendingPayments(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, RecoveryReverifiedPaid, reports[0].Action)
	assert.Equal(t, tx.ID, reports[0].TransactionID)
	assert.Equal(t, 0, f.cache.size())

	reg, err := f.regSvc.GetRegistration(ctx, f.regID)
	require.NoError(t, err)
	assert.True(t, reg.Paid)
	assert.Equal(t, int64(100), reg.PaidAmount)
}

func TestReconcileStillPending(t *testing.T) {
	ctx := context.Background()
	f := newRecoveryFixture(t)
	f.putPending(t)

	_, err := f.ledger.Initiate(ctx, "t-solo", f.regID, 100)
	require.NoError(t, err)

	reports, err := f.svc.ReconcilePendingPayments(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, RecoveryStillPending, reports[0].Action)
	// Исход не известен: запись сохраняется до следующей сверки.
	assert.Equal(t, 1, f.cache.size())
}

func TestReconcileFailedAllowsRetry(t *testing.T) {
	ctx := context.Background()
	f := newRecoveryFixture(t)
	f.putPending(t)

	tx, err := f.ledger.Initiate(ctx, "t-solo", f.regID, 100)
	require.NoError(t, err)
	reason := "card declined"
	_, err = f.ledger.Resolve(ctx, tx.ID, models.TransactionFailed, &reason)
	require.NoError(t, err)

	reports, err := f.svc.ReconcilePendingPayments(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, RecoveryRetryAvailable, reports[0].Action)
	assert.Equal(t, 0, f.cache.size())

	reg, err := f.regSvc.GetRegistration(ctx, f.regID)
	require.NoError(t, err)
	assert.False(t, reg.Paid)
}

func TestReconcileOrphanedEntry(t *testing.T) {
	ctx := context.Background()
	f := newRecoveryFixture(t)
	require.NoError(t, f.cache.Put(ctx, &models.LocalPendingPayment{
		TournamentID:   "t-solo",
		RegistrationID: "deleted-on-server",
		Amount:         100,
	}))

	reports, err := f.svc.ReconcilePendingPayments(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, RecoveryDiscarded, reports[0].Action)
	assert.Equal(t, 0, f.cache.size())
}

func TestReconcileEmptyCache(t *testing.T) {
	f := newRecoveryFixture(t)
	reports, err := f.svc.ReconcilePendingPayments(context.Background())
	require.NoError(t, err)
	assert.Empty(t, reports)
}
