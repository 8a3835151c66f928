package models

import "time"

// SettlementRecord — итог расчёта и выплаты по завершённому турниру.
// Создаётся не более одного раза на турнир и после создания неизменяем.
type SettlementRecord struct {
	TournamentID       string    `json:"tournament_id" db:"tournament_id"`
	TotalCollected     int64     `json:"total_collected" db:"total_collected"`
	PlatformCommission int64     `json:"platform_commission" db:"platform_commission"`
	OrganizerShare     int64     `json:"organizer_share" db:"organizer_share"`
	TransferID         string    `json:"transfer_id" db:"transfer_id"`
	GeneratedAt        time.Time `json:"generated_at" db:"generated_at"`
}

// SettlementBreakdown — чистый результат Calculate без побочных эффектов.
type SettlementBreakdown struct {
	TournamentID   string `json:"tournament_id"`
	TotalRevenue   int64  `json:"total_revenue"`
	PlatformFee    int64  `json:"platform_fee"`
	OrganizerShare int64  `json:"organizer_share"`
}
