package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/tournament-payments/models"
	"github.com/Dosada05/tournament-payments/payments"
	"github.com/Dosada05/tournament-payments/repositories"
	"github.com/Dosada05/tournament-payments/storage"
	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- registrations ---

type fakeRegistrationRepo struct {
	mu   sync.Mutex
	byID map[string]*models.Registration
}

func newFakeRegistrationRepo() *fakeRegistrationRepo {
	return &fakeRegistrationRepo{byID: map[string]*models.Registration{}}
}

func (r *fakeRegistrationRepo) Create(_ context.Context, reg *models.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg.Paid {
		for _, other := range r.byID {
			if other.TournamentID != reg.TournamentID || !other.Paid {
				continue
			}
			if (reg.Email != "" && other.Email == reg.Email) ||
				(reg.Phone != "" && other.Phone == reg.Phone) {
				return repositories.ErrRegistrationPaidConflict
			}
		}
	}
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	reg.CreatedAt = time.Now()
	cp := *reg
	r.byID[reg.ID] = &cp
	return nil
}

func (r *fakeRegistrationRepo) FindByID(_ context.Context, id string) (*models.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byID[id]
	if !ok {
		return nil, repositories.ErrRegistrationNotFound
	}
	cp := *reg
	return &cp, nil
}

func (r *fakeRegistrationRepo) findBy(tournamentID string, match func(*models.Registration) bool) (*models.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *models.Registration
	for _, reg := range r.byID {
		if reg.TournamentID != tournamentID || !match(reg) {
			continue
		}
		// Оплаченные записи имеют приоритет, затем более свежие.
		if best == nil ||
			(reg.Paid && !best.Paid) ||
			(reg.Paid == best.Paid && reg.CreatedAt.After(best.CreatedAt)) {
			best = reg
		}
	}
	if best == nil {
		return nil, repositories.ErrRegistrationNotFound
	}
	cp := *best
	return &cp, nil
}

func (r *fakeRegistrationRepo) FindByEmail(_ context.Context, tournamentID, email string) (*models.Registration, error) {
	return r.findBy(tournamentID, func(reg *models.Registration) bool { return reg.Email == email })
}

func (r *fakeRegistrationRepo) FindByPhone(_ context.Context, tournamentID, phone string) (*models.Registration, error) {
	return r.findBy(tournamentID, func(reg *models.Registration) bool { return reg.Phone == phone })
}

func (r *fakeRegistrationRepo) ListByTournament(_ context.Context, tournamentID string, onlyPaid bool) ([]*models.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Registration
	for _, reg := range r.byID {
		if reg.TournamentID != tournamentID {
			continue
		}
		if onlyPaid && !reg.Paid {
			continue
		}
		cp := *reg
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeRegistrationRepo) MarkPaid(_ context.Context, id string, amount int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byID[id]
	if !ok {
		return false, repositories.ErrRegistrationNotFound
	}
	if reg.Paid {
		return false, nil
	}
	reg.Paid = true
	reg.PaidAmount = amount
	reg.Status = models.RegistrationApproved
	return true, nil
}

func (r *fakeRegistrationRepo) SetPartner(_ context.Context, id string, partnerID *string, isDuoPayer bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byID[id]
	if !ok {
		return repositories.ErrRegistrationNotFound
	}
	reg.PartnerRegistrationID = partnerID
	reg.IsDuoPayer = isDuoPayer
	return nil
}

func (r *fakeRegistrationRepo) UpdateStatus(_ context.Context, id string, status models.RegistrationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byID[id]
	if !ok {
		return repositories.ErrRegistrationNotFound
	}
	reg.Status = status
	return nil
}

// --- transactions ---

type fakeTransactionRepo struct {
	mu   sync.Mutex
	byID map[string]*models.Transaction
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{byID: map[string]*models.Transaction{}}
}

func (r *fakeTransactionRepo) Create(_ context.Context, t *models.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.byID {
		if other.RegistrationID == t.RegistrationID &&
			(other.Status == models.TransactionPending || other.Status == models.TransactionSuccess) {
			return repositories.ErrTransactionActiveConflict
		}
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CreatedAt = time.Now()
	cp := *t
	r.byID[t.ID] = &cp
	return nil
}

func (r *fakeTransactionRepo) FindByID(_ context.Context, id string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, repositories.ErrTransactionNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTransactionRepo) FindActiveByRegistration(_ context.Context, registrationID string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.byID {
		if t.RegistrationID == registrationID &&
			(t.Status == models.TransactionPending || t.Status == models.TransactionSuccess) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repositories.ErrTransactionNotFound
}

func (r *fakeTransactionRepo) FindLatestByRegistration(_ context.Context, registrationID string) (*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *models.Transaction
	for _, t := range r.byID {
		if t.RegistrationID != registrationID {
			continue
		}
		if latest == nil || t.CreatedAt.After(latest.CreatedAt) {
			latest = t
		}
	}
	if latest == nil {
		return nil, repositories.ErrTransactionNotFound
	}
	cp := *latest
	return &cp, nil
}

func (r *fakeTransactionRepo) Resolve(_ context.Context, id string, status models.TransactionStatus, failureReason *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return repositories.ErrTransactionNotFound
	}
	if t.Status.IsTerminal() {
		return repositories.ErrTransactionTerminal
	}
	t.Status = status
	t.FailureReason = failureReason
	return nil
}

func (r *fakeTransactionRepo) ListStalePending(_ context.Context, olderThan time.Time) ([]*models.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Transaction
	for _, t := range r.byID {
		if t.Status == models.TransactionPending && t.CreatedAt.Before(olderThan) {
			cp := *t
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- tournaments ---

type fakeTournamentRepo struct {
	mu   sync.Mutex
	byID map[string]*models.Tournament
}

func newFakeTournamentRepo() *fakeTournamentRepo {
	return &fakeTournamentRepo{byID: map[string]*models.Tournament{}}
}

func (r *fakeTournamentRepo) Create(_ context.Context, t *models.Tournament) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = models.TournamentUpcoming
	}
	if t.SettlementStatus == "" {
		t.SettlementStatus = models.SettlementNone
	}
	cp := *t
	r.byID[t.ID] = &cp
	return nil
}

func (r *fakeTournamentRepo) FindByID(_ context.Context, id string) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTournamentRepo) ListAll(_ context.Context) ([]*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Tournament, 0, len(r.byID))
	for _, t := range r.byID {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r *fakeTournamentRepo) ClaimSettlement(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.Status != models.TournamentCompleted || t.SettlementStatus != models.SettlementNone {
		return repositories.ErrSettlementClaimLost
	}
	t.SettlementStatus = models.SettlementPending
	return nil
}

func (r *fakeTournamentRepo) CompleteSettlement(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.SettlementStatus != models.SettlementPending {
		return repositories.ErrSettlementClaimLost
	}
	t.SettlementStatus = models.SettlementCompleted
	return nil
}

func (r *fakeTournamentRepo) ReleaseSettlementClaim(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	if t.SettlementStatus != models.SettlementPending {
		return repositories.ErrSettlementClaimLost
	}
	t.SettlementStatus = models.SettlementNone
	return nil
}

func (r *fakeTournamentRepo) UpdateAggregates(_ context.Context, id string, totalCollections int64, totalPlayers int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.TotalCollections = totalCollections
	t.TotalPlayers = totalPlayers
	return nil
}

// --- settlement records ---

type fakeSettlementRepo struct {
	mu           sync.Mutex
	byTournament map[string]*models.SettlementRecord
}

func newFakeSettlementRepo() *fakeSettlementRepo {
	return &fakeSettlementRepo{byTournament: map[string]*models.SettlementRecord{}}
}

func (r *fakeSettlementRepo) Create(_ context.Context, rec *models.SettlementRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byTournament[rec.TournamentID]; ok {
		return repositories.ErrSettlementRecordExists
	}
	rec.GeneratedAt = time.Now()
	cp := *rec
	r.byTournament[rec.TournamentID] = &cp
	return nil
}

func (r *fakeSettlementRepo) FindByTournament(_ context.Context, tournamentID string) (*models.SettlementRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byTournament[tournamentID]
	if !ok {
		return nil, repositories.ErrSettlementRecordNotFound
	}
	cp := *rec
	return &cp, nil
}

// --- users ---

type fakeUserRepo struct {
	mu   sync.Mutex
	byID map[string]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]*models.User{}}
}

func (r *fakeUserRepo) Create(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.byID {
		if other.Email == u.Email {
			return repositories.ErrUserEmailConflict
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	cp := *u
	r.byID[u.ID] = &cp
	return nil
}

func (r *fakeUserRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.byID {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repositories.ErrUserNotFound
}

func (r *fakeUserRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, repositories.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// --- local pending-payment cache ---

type fakePendingCache struct {
	mu      sync.Mutex
	entries map[string]*models.LocalPendingPayment
}

func newFakePendingCache() *fakePendingCache {
	return &fakePendingCache{entries: map[string]*models.LocalPendingPayment{}}
}

func cacheKey(tournamentID, registrationID string) string {
	return tournamentID + ":" + registrationID
}

func (c *fakePendingCache) Put(_ context.Context, p *models.LocalPendingPayment) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *p
	c.entries[cacheKey(p.TournamentID, p.RegistrationID)] = &cp
	return nil
}

func (c *fakePendingCache) Get(_ context.Context, tournamentID, registrationID string) (*models.LocalPendingPayment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[cacheKey(tournamentID, registrationID)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (c *fakePendingCache) Remove(_ context.Context, tournamentID, registrationID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(tournamentID, registrationID))
	return nil
}

func (c *fakePendingCache) List(_ context.Context) ([]*models.LocalPendingPayment, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.LocalPendingPayment, 0, len(c.entries))
	for _, p := range c.entries {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

func (c *fakePendingCache) Close() error { return nil }

func (c *fakePendingCache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// --- payment provider fakes ---

type fakeGateway struct {
	mu       sync.Mutex
	err      error
	calls    int
	lastMeta payments.CheckoutMetadata
}

func (g *fakeGateway) OpenCheckout(_ context.Context, amount int64, currency string, meta payments.CheckoutMetadata) (*payments.ProviderProof, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.lastMeta = meta
	if g.err != nil {
		return nil, g.err
	}
	return &payments.ProviderProof{PaymentIntentID: "pi_" + meta.TransactionID}, nil
}

type fakeVerifier struct {
	mu     sync.Mutex
	result payments.VerificationResult
	err    error
	calls  int
}

func (v *fakeVerifier) Verify(_ context.Context, _ *payments.ProviderProof, _ string) (*payments.VerificationResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	res := v.result
	return &res, nil
}

type fakePayout struct {
	mu    sync.Mutex
	err   error
	calls int
	last  int64
}

func (p *fakePayout) Payout(_ context.Context, _ string, amount int64, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.last = amount
	if p.err != nil {
		return "", p.err
	}
	return "tr_" + uuid.NewString(), nil
}

type fakeUploader struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (u *fakeUploader) Upload(_ context.Context, key string, _ string, _ io.Reader) (*storage.UploadResult, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.err != nil {
		return nil, u.err
	}
	u.keys = append(u.keys, key)
	return &storage.UploadResult{Key: key}, nil
}

func (u *fakeUploader) Delete(_ context.Context, _ string) error { return nil }

func (u *fakeUploader) GetPublicURL(key string) string { return "https://cdn.test/" + key }
