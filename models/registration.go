package models

import "time"

// RegistrationStatus — статус заявки участника.
type RegistrationStatus string

const (
	RegistrationPending  RegistrationStatus = "pending"
	RegistrationApproved RegistrationStatus = "approved"
)

// CanTransitionTo: единственный допустимый переход pending -> approved.
func (s RegistrationStatus) CanTransitionTo(next RegistrationStatus) bool {
	return s == RegistrationPending && next == RegistrationApproved
}

// Registration представляет регистрацию одного участника в турнире.
//
// Инварианты:
//   - на пару (tournament_id, email) и (tournament_id, phone) может существовать
//     не более одной оплаченной регистрации (частичные уникальные индексы в БД);
//   - Paid меняется монотонно false -> true и никогда обратно;
//   - запись не удаляется, брошенная неоплаченная заявка переиспользуется
//     следующей попыткой оплаты той же личности.
type Registration struct {
	ID                    string             `json:"id" db:"id"`
	TournamentID          string             `json:"tournament_id" db:"tournament_id"`
	Email                 string             `json:"email" db:"email"`
	Phone                 string             `json:"phone" db:"phone"`
	EntryType             EntryType          `json:"entry_type" db:"entry_type"`
	PartnerRegistrationID *string            `json:"partner_registration_id,omitempty" db:"partner_registration_id"`
	IsDuoPayer            bool               `json:"is_duo_payer" db:"is_duo_payer"`
	Paid                  bool               `json:"paid" db:"paid"`
	PaidAmount            int64              `json:"paid_amount" db:"paid_amount"`
	Status                RegistrationStatus `json:"status" db:"status"`
	CreatedAt             time.Time          `json:"created_at" db:"created_at"`
}
