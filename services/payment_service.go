package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/tournament-payments/localcache"
	"github.com/Dosada05/tournament-payments/models"
	"github.com/Dosada05/tournament-payments/payments"
)

// PaymentState — состояние одной платёжной попытки оркестратора.
type PaymentState string

const (
	PaymentIdle             PaymentState = "idle"
	PaymentInitiating       PaymentState = "initiating"
	PaymentAwaitingProvider PaymentState = "awaiting_provider"
	PaymentVerifying        PaymentState = "verifying"
	PaymentSucceeded        PaymentState = "success"
	PaymentFailed           PaymentState = "failed"
)

type PayNowInput struct {
	TournamentID   string `json:"tournament_id"`
	RegistrationID string `json:"registration_id"`
	Currency       string `json:"currency,omitempty"`
}

type PaymentResult struct {
	State         PaymentState        `json:"state"`
	Transaction   *models.Transaction `json:"transaction,omitempty"`
	FailureReason string              `json:"failure_reason,omitempty"`
}

// PaymentService ведёт платёжную попытку от начала до конца: запись в
// леджер -> checkout провайдера -> серверная верификация -> конечный статус.
// Идемпотентность обеспечивают леджер (одна активная транзакция на
// регистрацию) и локальный кэш начатых оплат.
type PaymentService struct {
	ledger        *LedgerService
	registrations *RegistrationService
	gateway       payments.CheckoutGateway
	verifier      payments.ProofVerifier
	cache         localcache.PendingPaymentCache
	logger        *slog.Logger
}

func NewPaymentService(
	ledger *LedgerService,
	registrations *RegistrationService,
	gateway payments.CheckoutGateway,
	verifier payments.ProofVerifier,
	cache localcache.PendingPaymentCache,
	logger *slog.Logger,
) *PaymentService {
	return &PaymentService{
		ledger:        ledger,
		registrations: registrations,
		gateway:       gateway,
		verifier:      verifier,
		cache:         cache,
		logger:        logger,
	}
}

// PayNow проводит одну платёжную попытку. Ошибочный конечный статус всегда
// допускает повтор по той же регистрации; отмена пользователем — не ошибка.
func (s *PaymentService) PayNow(ctx context.Context, input PayNowInput) (*PaymentResult, error) {
	// Шаг 1: ссылка на регистрацию обязана разрешаться. Плейсхолдеры и
	// пустые id — нарушение инварианта, падаем сразу и громко.
	if input.RegistrationID == "" {
		s.logger.Error("payment attempted without registration reference",
			slog.String("tournament_id", input.TournamentID))
		return nil, ErrMissingRegistrationReference
	}
	owed, reg, err := s.registrations.OwedAmount(ctx, input.RegistrationID)
	if err != nil {
		if errors.Is(err, ErrRegistrationNotFound) {
			s.logger.Error("payment attempted for unknown registration",
				slog.String("registration_id", input.RegistrationID))
			return nil, ErrMissingRegistrationReference
		}
		return nil, err
	}
	if reg.TournamentID != input.TournamentID {
		return nil, ErrMissingRegistrationReference
	}
	if reg.Paid {
		return nil, ErrRegistrationAlreadyPaid
	}
	if owed == 0 {
		// Долга нет (партнёр предоплаченного duo): закрываем запись без
		// обращения к провайдеру.
		if err := s.registrations.MarkPaid(ctx, reg.ID, 0); err != nil {
			return nil, err
		}
		return &PaymentResult{State: PaymentSucceeded}, nil
	}

	// Шаг 2: initiating.
	tx, err := s.ledger.Initiate(ctx, reg.TournamentID, reg.ID, owed)
	if err != nil {
		return nil, err
	}
	pending := &models.LocalPendingPayment{
		TournamentID:   reg.TournamentID,
		RegistrationID: reg.ID,
		Amount:         owed,
	}
	if err := s.cache.Put(ctx, pending); err != nil {
		// Кэш консультативный: его сбой не отменяет оплату, но оставляет
		// дыру в восстановлении — фиксируем для оператора.
		s.logger.Error("failed to persist local pending payment",
			slog.String("registration_id", reg.ID),
			slog.Any("error", err))
	}

	// Шаг 3: awaiting_provider.
	proof, err := s.gateway.OpenCheckout(ctx, owed, input.Currency, payments.CheckoutMetadata{
		TournamentID:   reg.TournamentID,
		RegistrationID: reg.ID,
		TransactionID:  tx.ID,
		Email:          reg.Email,
		Phone:          reg.Phone,
	})
	if err != nil {
		if errors.Is(err, payments.ErrCheckoutCancelled) {
			// Возврат в idle: транзакция остаётся PENDING для поздней
			// сверки, запись в кэше — для восстановления.
			return &PaymentResult{State: PaymentIdle, Transaction: tx}, nil
		}
		return nil, fmt.Errorf("checkout failed: %w", err)
	}

	// Шаг 4: verifying. Повторная верификация тем же payload безопасна
	// (контракт верификатора), но молча мы её не повторяем: новая попытка
	// требует нового Initiate.
	verdict, err := s.verifier.Verify(ctx, proof, tx.ID)
	if err != nil {
		return nil, fmt.Errorf("verification call failed: %w", err)
	}

	if !verdict.Success {
		reason := verdict.Reason
		if reason == "" {
			reason = "payment verification failed"
		}
		if _, err := s.ledger.Resolve(ctx, tx.ID, models.TransactionFailed, &reason); err != nil {
			s.logger.Error("failed to record failed verification",
				slog.String("transaction_id", tx.ID),
				slog.Any("error", err))
		}
		return &PaymentResult{State: PaymentFailed, Transaction: tx, FailureReason: reason},
			fmt.Errorf("%w: %s", ErrVerificationFailed, reason)
	}

	resolved, err := s.ledger.Resolve(ctx, tx.ID, models.TransactionSuccess, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to record successful verification: %w", err)
	}
	if err := s.registrations.MarkPaid(ctx, reg.ID, owed); err != nil {
		return nil, fmt.Errorf("payment verified but registration not marked paid: %w", err)
	}
	if err := s.cache.Remove(ctx, reg.TournamentID, reg.ID); err != nil {
		s.logger.Warn("failed to clear local pending payment",
			slog.String("registration_id", reg.ID),
			slog.Any("error", err))
	}

	return &PaymentResult{State: PaymentSucceeded, Transaction: resolved}, nil
}

// AwaitConfirmation наблюдает уже начатую транзакцию (например, когда
// Initiate отказал из-за PENDING) в пределах окна наблюдения.
func (s *PaymentService) AwaitConfirmation(ctx context.Context, transactionID string) (ObservationOutcome, error) {
	return s.ledger.AwaitOutcome(ctx, transactionID)
}
