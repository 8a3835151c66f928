package services

import "errors"

// Общие ошибки ядра регистрации и расчётов, используемые в разных сервисах
// и маппинге HTTP.
var (
	// Ресурс не найден (универсальная)
	ErrNotFound = errors.New("requested resource not found")

	// Ошибки валидации и бизнес-правил
	ErrValidationFailed   = errors.New("validation failed")
	ErrIdentityRequired   = errors.New("email or phone is required")
	ErrRegistrationClosed = errors.New("tournament registration is closed")

	// Дубликаты и конкурентные платежи
	ErrDuplicateIdentity = errors.New("a paid registration already exists for this identity")
	// ErrConcurrentPaymentExists: по регистрации уже есть транзакция PENDING
	// или SUCCESS — ждать, сверить или ничего не делать, но не платить заново.
	ErrConcurrentPaymentExists = errors.New("a pending or successful payment already exists for this registration")
	ErrRegistrationAlreadyPaid = errors.New("registration is already paid")

	// Нарушения инвариантов — никогда не глушатся, всегда в лог оператору
	ErrMissingRegistrationReference = errors.New("payment attempted without a resolved registration reference")
	ErrAlreadySettled               = errors.New("tournament settlement has already been completed")
	ErrSettlementInProgress         = errors.New("tournament settlement is already in progress")

	// Платёжный провайдер
	ErrVerificationFailed = errors.New("payment verification failed")
	// ErrProviderCancelled — пользователь сам закрыл checkout. Не сбой:
	// оркестратор возвращается в idle, транзакция остаётся PENDING.
	ErrProviderCancelled = errors.New("checkout cancelled by the user")

	// Расчёты
	ErrTournamentNotCompleted = errors.New("tournament is not completed yet")

	// Duo
	ErrDuoLinkInvalid   = errors.New("registrations cannot be linked as a duo")
	ErrDuoAlreadyLinked = errors.New("registration is already linked to another partner")
	ErrDuoNotSupported  = errors.New("tournament entry type is not duo")
	ErrNothingOwed      = errors.New("nothing is owed for this registration")

	// Ошибки, специфичные для сущностей
	ErrTournamentNotFound   = errors.New("tournament not found")
	ErrRegistrationNotFound = errors.New("registration not found")
	ErrTransactionNotFound  = errors.New("transaction not found")

	// Аутентификация
	ErrAuthInvalidCredentials = errors.New("invalid email or password")
	ErrAuthEmailTaken         = errors.New("email is already taken")
	ErrForbiddenOperation     = errors.New("operation not allowed for the current user")
)
