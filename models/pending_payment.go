package models

import "time"

// LocalPendingPayment — локальная (на устройстве) запись о начатой оплате.
// Создаётся перед открытием checkout и удаляется при подтверждённом успехе
// или явном сбросе. Нужна, чтобы после перезапуска приложения брошенная
// на вид оплата сверялась с серверной истиной, а не повторялась вслепую.
// Запись консультативная: источник истины — Transaction и Registration.
type LocalPendingPayment struct {
	TournamentID   string    `json:"tournament_id"`
	RegistrationID string    `json:"registration_id"`
	Amount         int64     `json:"amount"`
	CreatedAt      time.Time `json:"created_at"`
}
