package models

import "time"

// TransactionStatus — статус платёжной попытки, соответствует ENUM в БД.
type TransactionStatus string

const (
	TransactionPending TransactionStatus = "PENDING"
	TransactionSuccess TransactionStatus = "SUCCESS"
	TransactionFailed  TransactionStatus = "FAILED"
)

// IsTerminal сообщает, является ли статус конечным. Терминальная транзакция
// неизменяема.
func (s TransactionStatus) IsTerminal() bool {
	return s == TransactionSuccess || s == TransactionFailed
}

// Transaction — одна платёжная попытка по регистрации.
//
// Инвариант (ключевой для защиты от двойного списания): на одну регистрацию
// одновременно может существовать не более одной транзакции в статусе
// PENDING или SUCCESS. Обеспечивается частичным уникальным индексом.
type Transaction struct {
	ID             string            `json:"id" db:"id"`
	TournamentID   string            `json:"tournament_id" db:"tournament_id"`
	RegistrationID string            `json:"registration_id" db:"registration_id"`
	Amount         int64             `json:"amount" db:"amount"`
	Status         TransactionStatus `json:"status" db:"status"`
	FailureReason  *string           `json:"failure_reason,omitempty" db:"failure_reason"`
	CreatedAt      time.Time         `json:"created_at" db:"created_at"`
}
