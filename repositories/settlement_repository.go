package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-payments/models"
	"github.com/lib/pq"
)

var (
	ErrSettlementRecordNotFound = errors.New("settlement record not found")
	ErrSettlementRecordExists   = errors.New("settlement record already exists for this tournament")
)

type SettlementRepository interface {
	// Create вставляет итоговую запись расчёта. tournament_id — первичный ключ,
	// вторая запись на турнир невозможна.
	Create(ctx context.Context, rec *models.SettlementRecord) error
	FindByTournament(ctx context.Context, tournamentID string) (*models.SettlementRecord, error)
}

type postgresSettlementRepository struct {
	db *sql.DB
}

func NewPostgresSettlementRepository(db *sql.DB) SettlementRepository {
	return &postgresSettlementRepository{db: db}
}

func (r *postgresSettlementRepository) Create(ctx context.Context, rec *models.SettlementRecord) error {
	query := `
		INSERT INTO settlement_records (tournament_id, total_collected, platform_commission, organizer_share, transfer_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING generated_at`

	err := r.db.QueryRowContext(ctx, query,
		rec.TournamentID,
		rec.TotalCollected,
		rec.PlatformCommission,
		rec.OrganizerShare,
		rec.TransferID,
	).Scan(&rec.GeneratedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrSettlementRecordExists
		}
		return fmt.Errorf("failed to create settlement record: %w", err)
	}
	return nil
}

func (r *postgresSettlementRepository) FindByTournament(ctx context.Context, tournamentID string) (*models.SettlementRecord, error) {
	query := `
		SELECT tournament_id, total_collected, platform_commission, organizer_share, transfer_id, generated_at
		FROM settlement_records
		WHERE tournament_id = $1`

	rec := &models.SettlementRecord{}
	row := r.db.QueryRowContext(ctx, query, tournamentID)
	err := row.Scan(
		&rec.TournamentID,
		&rec.TotalCollected,
		&rec.PlatformCommission,
		&rec.OrganizerShare,
		&rec.TransferID,
		&rec.GeneratedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSettlementRecordNotFound
		}
		return nil, fmt.Errorf("failed to find settlement record: %w", err)
	}
	return rec, nil
}
