package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-payments/models"
	"github.com/google/uuid"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	// ErrSettlementClaimLost: условный апдейт статуса расчёта затронул 0 строк —
	// claim уже взят другим вызовом или расчёт завершён.
	ErrSettlementClaimLost = errors.New("settlement status precondition failed")
)

type TournamentRepository interface {
	Create(ctx context.Context, t *models.Tournament) error
	FindByID(ctx context.Context, id string) (*models.Tournament, error)
	ListAll(ctx context.Context) ([]*models.Tournament, error)
	// ClaimSettlement атомарно переводит settlement_status none -> pending
	// при условии status = completed. Нулевое число строк означает, что
	// предусловие не выполнено (гонка закрыта на уровне БД).
	ClaimSettlement(ctx context.Context, id string) error
	// CompleteSettlement переводит pending -> completed.
	CompleteSettlement(ctx context.Context, id string) error
	// ReleaseSettlementClaim откатывает pending -> none после неудавшейся выплаты.
	ReleaseSettlementClaim(ctx context.Context, id string) error
	UpdateAggregates(ctx context.Context, id string, totalCollections int64, totalPlayers int) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

const tournamentColumns = `id, name, organizer_id, payout_account_id, entry_fee, entry_type, status, settlement_status, total_collections, total_players, created_at`

func (r *postgresTournamentRepository) Create(ctx context.Context, t *models.Tournament) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = models.TournamentUpcoming
	}
	if t.SettlementStatus == "" {
		t.SettlementStatus = models.SettlementNone
	}
	query := `
		INSERT INTO tournaments (id, name, organizer_id, payout_account_id, entry_fee, entry_type, status, settlement_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		t.ID, t.Name, t.OrganizerID, t.PayoutAccountID,
		t.EntryFee, t.EntryType, t.Status, t.SettlementStatus,
	).Scan(&t.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create tournament: %w", err)
	}
	return nil
}

func (r *postgresTournamentRepository) FindByID(ctx context.Context, id string) (*models.Tournament, error) {
	query := fmt.Sprintf(`SELECT %s FROM tournaments WHERE id = $1`, tournamentColumns)
	t := &models.Tournament{}
	row := r.db.QueryRowContext(ctx, query, id)
	err := row.Scan(
		&t.ID, &t.Name, &t.OrganizerID, &t.PayoutAccountID,
		&t.EntryFee, &t.EntryType, &t.Status, &t.SettlementStatus,
		&t.TotalCollections, &t.TotalPlayers, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to find tournament: %w", err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) ListAll(ctx context.Context) ([]*models.Tournament, error) {
	query := fmt.Sprintf(`SELECT %s FROM tournaments ORDER BY created_at ASC`, tournamentColumns)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if err := rows.Scan(
			&t.ID, &t.Name, &t.OrganizerID, &t.PayoutAccountID,
			&t.EntryFee, &t.EntryType, &t.Status, &t.SettlementStatus,
			&t.TotalCollections, &t.TotalPlayers, &t.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", err)
		}
		tournaments = append(tournaments, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tournament rows: %w", err)
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) conditionalSettlementUpdate(ctx context.Context, query, id string) error {
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to update settlement status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows for settlement status update: %w", err)
	}
	if rowsAffected == 0 {
		if _, err := r.FindByID(ctx, id); err != nil {
			return err
		}
		return ErrSettlementClaimLost
	}
	return nil
}

func (r *postgresTournamentRepository) ClaimSettlement(ctx context.Context, id string) error {
	query := `
		UPDATE tournaments SET settlement_status = 'pending'
		WHERE id = $1 AND status = 'completed' AND settlement_status = 'none'`
	return r.conditionalSettlementUpdate(ctx, query, id)
}

func (r *postgresTournamentRepository) CompleteSettlement(ctx context.Context, id string) error {
	query := `
		UPDATE tournaments SET settlement_status = 'completed'
		WHERE id = $1 AND settlement_status = 'pending'`
	return r.conditionalSettlementUpdate(ctx, query, id)
}

func (r *postgresTournamentRepository) ReleaseSettlementClaim(ctx context.Context, id string) error {
	query := `
		UPDATE tournaments SET settlement_status = 'none'
		WHERE id = $1 AND settlement_status = 'pending'`
	return r.conditionalSettlementUpdate(ctx, query, id)
}

func (r *postgresTournamentRepository) UpdateAggregates(ctx context.Context, id string, totalCollections int64, totalPlayers int) error {
	query := `UPDATE tournaments SET total_collections = $2, total_players = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, totalCollections, totalPlayers)
	if err != nil {
		return fmt.Errorf("failed to update tournament aggregates: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows for aggregates update: %w", err)
	}
	if rowsAffected == 0 {
		return ErrTournamentNotFound
	}
	return nil
}
