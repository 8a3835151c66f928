package payments

import (
	"context"
	"errors"
)

// ErrCheckoutCancelled возвращается шлюзом, когда пользователь сам закрыл
// checkout. Это не сбой: транзакция остаётся PENDING и сверяется позже.
var ErrCheckoutCancelled = errors.New("checkout was cancelled by the user")

// CheckoutMetadata передаётся провайдеру вместе с суммой, чтобы webhook и
// ручная сверка могли привязать платёж обратно к нашим записям.
type CheckoutMetadata struct {
	TournamentID   string
	RegistrationID string
	TransactionID  string
	Email          string
	Phone          string
}

// ProviderProof — доказательство от платёжного провайдера, которое сервер
// проверяет перед зачислением. Содержимое непрозрачно для ядра.
type ProviderProof struct {
	PaymentIntentID string
	ClientSecret    string
}

// CheckoutGateway открывает платёжную сессию у внешнего провайдера.
type CheckoutGateway interface {
	// OpenCheckout блокирует до завершения checkout, отмены пользователем
	// (ErrCheckoutCancelled) или отмены контекста.
	OpenCheckout(ctx context.Context, amount int64, currency string, meta CheckoutMetadata) (*ProviderProof, error)
}

// VerificationResult — ответ доверенного серверного верификатора.
type VerificationResult struct {
	Success bool
	Reason  string
}

// ProofVerifier — серверная проверка доказательства провайдера.
// По контракту идемпотентна: повторный Verify с тем же payload безопасен.
type ProofVerifier interface {
	Verify(ctx context.Context, proof *ProviderProof, transactionID string) (*VerificationResult, error)
}

// PayoutProvider выполняет выплату организатору. Вызывающая сторона обязана
// гарантировать не более одного вызова на турнир (см. SettlementService).
type PayoutProvider interface {
	Payout(ctx context.Context, destinationAccountID string, amount int64, memo string) (transferID string, err error)
}
