package models

import "time"

// TournamentStatus представляет статусы турнира, соответствующие ENUM в БД.
type TournamentStatus string

const (
	TournamentUpcoming  TournamentStatus = "upcoming"
	TournamentOngoing   TournamentStatus = "ongoing"
	TournamentCompleted TournamentStatus = "completed"
)

// CanTransitionTo проверяет допустимость перехода статуса турнира.
// Разрешено только движение вперёд: upcoming -> ongoing -> completed.
func (s TournamentStatus) CanTransitionTo(next TournamentStatus) bool {
	switch s {
	case TournamentUpcoming:
		return next == TournamentOngoing
	case TournamentOngoing:
		return next == TournamentCompleted
	default:
		return false
	}
}

// SettlementStatus — статус выплаты организатору по турниру.
type SettlementStatus string

const (
	SettlementNone      SettlementStatus = "none"
	SettlementPending   SettlementStatus = "pending"
	SettlementCompleted SettlementStatus = "completed"
)

// CanTransitionTo: none -> pending -> completed, откат разрешён только pending -> none
// (неудавшаяся выплата освобождает claim для повторной попытки).
func (s SettlementStatus) CanTransitionTo(next SettlementStatus) bool {
	switch s {
	case SettlementNone:
		return next == SettlementPending
	case SettlementPending:
		return next == SettlementCompleted || next == SettlementNone
	default:
		return false
	}
}

// EntryType — тип участия в турнире.
type EntryType string

const (
	EntrySolo EntryType = "solo"
	EntryDuo  EntryType = "duo"
	EntryTeam EntryType = "team"
)

// Tournament представляет турнир.
// TotalCollections и TotalPlayers — производные агрегаты: они никогда не
// инкрементируются по месту, только пересчитываются целиком (см. TournamentService).
type Tournament struct {
	ID               string           `json:"id" db:"id"`
	Name             string           `json:"name" db:"name"`
	OrganizerID      string           `json:"organizer_id" db:"organizer_id"`
	PayoutAccountID  string           `json:"-" db:"payout_account_id"`
	EntryFee         int64            `json:"entry_fee" db:"entry_fee"`
	EntryType        EntryType        `json:"entry_type" db:"entry_type"`
	Status           TournamentStatus `json:"status" db:"status"`
	SettlementStatus SettlementStatus `json:"settlement_status" db:"settlement_status"`
	TotalCollections int64            `json:"total_collections" db:"total_collections"`
	TotalPlayers     int              `json:"total_players" db:"total_players"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
}
