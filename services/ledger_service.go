package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/tournament-payments/models"
	"github.com/Dosada05/tournament-payments/payments"
	"github.com/Dosada05/tournament-payments/repositories"
)

const (
	// ObserveWindow — максимальное окно наблюдения за транзакцией. По его
	// истечении наблюдение прекращается; сама транзакция не затрагивается.
	ObserveWindow = 60 * time.Second
	observePoll   = 2 * time.Second
)

// ObservationOutcome — итог наблюдения. Known == false означает "наблюдение
// остановлено, исход неизвестен" — это отдельный результат, не успех и не
// провал.
type ObservationOutcome struct {
	Known  bool
	Status models.TransactionStatus
}

// LedgerService создаёт и наблюдает платёжные попытки независимо от
// регистрации: повторная оплата не порождает вторую регистрацию.
type LedgerService struct {
	transactionRepo repositories.TransactionRepository
	hub             *payments.Hub
	logger          *slog.Logger
}

func NewLedgerService(transactionRepo repositories.TransactionRepository, hub *payments.Hub, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		transactionRepo: transactionRepo,
		hub:             hub,
		logger:          logger,
	}
}

// Initiate создаёт PENDING-транзакцию. Если по регистрации уже есть PENDING
// или SUCCESS, возвращает ErrConcurrentPaymentExists: вызывающая сторона
// показывает "уже оплачено" либо "платёж в обработке, подождите", но молча
// не перезаписывает ничего. Свежее чтение перед записью плюс частичный
// уникальный индекс закрывают гонку.
func (s *LedgerService) Initiate(ctx context.Context, tournamentID, registrationID string, amount int64) (*models.Transaction, error) {
	if registrationID == "" {
		return nil, ErrMissingRegistrationReference
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrValidationFailed)
	}

	active, err := s.transactionRepo.FindActiveByRegistration(ctx, registrationID)
	if err != nil && !errors.Is(err, repositories.ErrTransactionNotFound) {
		return nil, fmt.Errorf("failed to check active transaction: %w", err)
	}
	if active != nil {
		return nil, ErrConcurrentPaymentExists
	}

	t := &models.Transaction{
		TournamentID:   tournamentID,
		RegistrationID: registrationID,
		Amount:         amount,
		Status:         models.TransactionPending,
	}
	if err := s.transactionRepo.Create(ctx, t); err != nil {
		if errors.Is(err, repositories.ErrTransactionActiveConflict) {
			return nil, ErrConcurrentPaymentExists
		}
		return nil, fmt.Errorf("failed to initiate transaction: %w", err)
	}
	return t, nil
}

// ActiveTransaction возвращает PENDING/SUCCESS транзакцию регистрации, если
// она есть (nil без ошибки — нет).
func (s *LedgerService) ActiveTransaction(ctx context.Context, registrationID string) (*models.Transaction, error) {
	t, err := s.transactionRepo.FindActiveByRegistration(ctx, registrationID)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// LatestTransaction возвращает последнюю по времени транзакцию регистрации.
func (s *LedgerService) LatestTransaction(ctx context.Context, registrationID string) (*models.Transaction, error) {
	t, err := s.transactionRepo.FindLatestByRegistration(ctx, registrationID)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// Observe возвращает поток статусов транзакции. Гибрид push/poll: хранилище
// опрашивается каждые observePoll, окно наблюдения ограничено ObserveWindow.
// Канал закрывается по терминальному статусу, отмене контекста или истечению
// окна; закрытие без терминального значения трактуется как "исход неизвестен".
// Отмена останавливает только подписку — транзакция не мутируется.
func (s *LedgerService) Observe(ctx context.Context, transactionID string) (<-chan models.TransactionStatus, error) {
	initial, err := s.transactionRepo.FindByID(ctx, transactionID)
	if err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}

	updates := make(chan models.TransactionStatus, 8)
	go func() {
		defer close(updates)

		last := initial.Status
		updates <- last
		if last.IsTerminal() {
			return
		}

		deadline := time.NewTimer(ObserveWindow)
		defer deadline.Stop()
		ticker := time.NewTicker(observePoll)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-deadline.C:
				return
			case <-ticker.C:
				t, err := s.transactionRepo.FindByID(ctx, transactionID)
				if err != nil {
					s.logger.Warn("transaction observation poll failed",
						slog.String("transaction_id", transactionID),
						slog.Any("error", err))
					continue
				}
				if t.Status != last {
					last = t.Status
					updates <- last
				}
				if last.IsTerminal() {
					return
				}
			}
		}
	}()
	return updates, nil
}

// AwaitOutcome ждёт терминального статуса в пределах окна наблюдения.
func (s *LedgerService) AwaitOutcome(ctx context.Context, transactionID string) (ObservationOutcome, error) {
	updates, err := s.Observe(ctx, transactionID)
	if err != nil {
		return ObservationOutcome{}, err
	}
	var outcome ObservationOutcome
	for status := range updates {
		if status.IsTerminal() {
			return ObservationOutcome{Known: true, Status: status}, nil
		}
		outcome = ObservationOutcome{Known: false, Status: status}
	}
	return outcome, nil
}

// Resolve переводит транзакцию в конечный статус (путь верификатора/webhook)
// и оповещает подписчиков комнаты. Терминальная транзакция неизменяема.
func (s *LedgerService) Resolve(ctx context.Context, transactionID string, status models.TransactionStatus, failureReason *string) (*models.Transaction, error) {
	if err := s.transactionRepo.Resolve(ctx, transactionID, status, failureReason); err != nil {
		if errors.Is(err, repositories.ErrTransactionNotFound) {
			return nil, ErrTransactionNotFound
		}
		if errors.Is(err, repositories.ErrTransactionTerminal) {
			// Идемпотентный повтор того же вердикта — не ошибка; попытка
			// сменить один терминальный статус на другой — ошибка.
			current, ferr := s.transactionRepo.FindByID(ctx, transactionID)
			if ferr == nil && current.Status == status {
				return current, nil
			}
		}
		return nil, err
	}
	t, err := s.transactionRepo.FindByID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if s.hub != nil {
		s.hub.BroadcastToRoom(t.ID, payments.StatusMessage{
			Type:    "TRANSACTION_UPDATED",
			Payload: t,
		})
	}
	return t, nil
}

// ExpireStalePending гасит PENDING-транзакции старше порога, чтобы брошенные
// checkout-ы не блокировали повторную оплату вечно.
func (s *LedgerService) ExpireStalePending(ctx context.Context, olderThan time.Duration) (int, error) {
	stale, err := s.transactionRepo.ListStalePending(ctx, time.Now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	reason := "payment attempt expired without confirmation"
	expired := 0
	for _, t := range stale {
		if _, err := s.Resolve(ctx, t.ID, models.TransactionFailed, &reason); err != nil {
			// Гонка с webhook-ом допустима: терминальную запись не трогаем.
			if errors.Is(err, repositories.ErrTransactionTerminal) {
				continue
			}
			s.logger.Error("failed to expire stale transaction",
				slog.String("transaction_id", t.ID),
				slog.Any("error", err))
			continue
		}
		expired++
	}
	return expired, nil
}
