package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Dosada05/tournament-payments/localcache"
	"github.com/Dosada05/tournament-payments/models"
)

// RecoveryAction — исход сверки одной локальной записи о начатой оплате.
type RecoveryAction string

const (
	// Сервер уже считает регистрацию оплаченной: запись снята, успех.
	RecoveryResolvedPaid RecoveryAction = "resolved_paid"
	// Последняя транзакция SUCCESS, но регистрация не была помечена:
	// досчитали без нового списания.
	RecoveryReverifiedPaid RecoveryAction = "reverified_paid"
	// Транзакция всё ещё PENDING: ждать или сверять, но не платить заново.
	RecoveryStillPending RecoveryAction = "still_pending"
	// Исхода нет (FAILED или транзакции не было): можно начать новую
	// попытку, её ограничит леджер.
	RecoveryRetryAvailable RecoveryAction = "retry_available"
	// Регистрация исчезла на сервере: запись кэша снята как мусор.
	RecoveryDiscarded RecoveryAction = "discarded"
)

type RecoveryReport struct {
	TournamentID   string         `json:"tournament_id"`
	RegistrationID string         `json:"registration_id"`
	Action         RecoveryAction `json:"action"`
	TransactionID  string         `json:"transaction_id,omitempty"`
}

// RecoveryService сверяет локальные записи "оплата начата" с серверной
// истиной после перезапуска или восстановления связи. Существует ради одного
// сценария: крэш между открытием checkout и подтверждением не должен
// привести ко второму списанию. Кэш консультативный, никогда не
// авторитетный.
type RecoveryService struct {
	cache         localcache.PendingPaymentCache
	registrations *RegistrationService
	ledger        *LedgerService
	logger        *slog.Logger
}

func NewRecoveryService(
	cache localcache.PendingPaymentCache,
	registrations *RegistrationService,
	ledger *LedgerService,
	logger *slog.Logger,
) *RecoveryService {
	return &RecoveryService{
		cache:         cache,
		registrations: registrations,
		ledger:        ledger,
		logger:        logger,
	}
}

// ReconcilePendingPayments обрабатывает каждую локальную запись и возвращает
// отчёт по всем. Ошибка по одной записи не прерывает сверку остальных.
func (s *RecoveryService) ReconcilePendingPayments(ctx context.Context) ([]RecoveryReport, error) {
	pending, err := s.cache.List(ctx)
	if err != nil {
		return nil, err
	}

	reports := make([]RecoveryReport, 0, len(pending))
	for _, p := range pending {
		report, err := s.reconcileOne(ctx, p)
		if err != nil {
			s.logger.Error("failed to reconcile pending payment",
				slog.String("registration_id", p.RegistrationID),
				slog.Any("error", err))
			continue
		}
		reports = append(reports, report)
	}
	return reports, nil
}

func (s *RecoveryService) reconcileOne(ctx context.Context, p *models.LocalPendingPayment) (RecoveryReport, error) {
	report := RecoveryReport{
		TournamentID:   p.TournamentID,
		RegistrationID: p.RegistrationID,
	}

	reg, err := s.registrations.GetRegistration(ctx, p.RegistrationID)
	if err != nil {
		if errors.Is(err, ErrRegistrationNotFound) {
			report.Action = RecoveryDiscarded
			return report, s.cache.Remove(ctx, p.TournamentID, p.RegistrationID)
		}
		return report, err
	}

	if reg.Paid {
		report.Action = RecoveryResolvedPaid
		return report, s.cache.Remove(ctx, p.TournamentID, p.RegistrationID)
	}

	tx, err := s.ledger.LatestTransaction(ctx, p.RegistrationID)
	if err != nil {
		return report, err
	}
	if tx == nil {
		// Крэш случился до Initiate: списания точно не было.
		report.Action = RecoveryRetryAvailable
		return report, s.cache.Remove(ctx, p.TournamentID, p.RegistrationID)
	}
	report.TransactionID = tx.ID

	switch tx.Status {
	case models.TransactionSuccess:
		// Деньги получены, но регистрация не была помечена (крэш между
		// верификацией и markPaid). Досчитываем, не списывая повторно.
		if err := s.registrations.MarkPaid(ctx, p.RegistrationID, tx.Amount); err != nil {
			return report, err
		}
		report.Action = RecoveryReverifiedPaid
		return report, s.cache.Remove(ctx, p.TournamentID, p.RegistrationID)

	case models.TransactionPending:
		// Исход ещё не известен: предлагать сверку или ожидание, но не
		// новое списание. Запись в кэше сохраняется.
		report.Action = RecoveryStillPending
		return report, nil

	default: // FAILED
		report.Action = RecoveryRetryAvailable
		return report, s.cache.Remove(ctx, p.TournamentID, p.RegistrationID)
	}
}
