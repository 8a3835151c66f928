package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/tournament-payments/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrTransactionActiveConflict: на регистрацию уже существует транзакция
	// в статусе PENDING или SUCCESS (частичный уникальный индекс).
	ErrTransactionActiveConflict = errors.New("an active (pending or successful) transaction already exists for this registration")
	// ErrTransactionTerminal: попытка изменить транзакцию в конечном статусе.
	ErrTransactionTerminal = errors.New("transaction is already in a terminal status")
)

type TransactionRepository interface {
	Create(ctx context.Context, t *models.Transaction) error
	FindByID(ctx context.Context, id string) (*models.Transaction, error)
	// FindActiveByRegistration возвращает PENDING/SUCCESS транзакцию регистрации,
	// если она есть. Индекс гарантирует, что такая не более одной.
	FindActiveByRegistration(ctx context.Context, registrationID string) (*models.Transaction, error)
	FindLatestByRegistration(ctx context.Context, registrationID string) (*models.Transaction, error)
	// Resolve переводит PENDING-транзакцию в конечный статус. Терминальные
	// записи неизменяемы: повторный Resolve возвращает ErrTransactionTerminal.
	Resolve(ctx context.Context, id string, status models.TransactionStatus, failureReason *string) error
	ListStalePending(ctx context.Context, olderThan time.Time) ([]*models.Transaction, error)
}

type postgresTransactionRepository struct {
	db *sql.DB
}

func NewPostgresTransactionRepository(db *sql.DB) TransactionRepository {
	return &postgresTransactionRepository{db: db}
}

const transactionColumns = `id, tournament_id, registration_id, amount, status, failure_reason, created_at`

func (r *postgresTransactionRepository) Create(ctx context.Context, t *models.Transaction) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	query := `
		INSERT INTO transactions (id, tournament_id, registration_id, amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		t.ID,
		t.TournamentID,
		t.RegistrationID,
		t.Amount,
		t.Status,
	).Scan(&t.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			if pqErr.Constraint == "transactions_registration_active_key" {
				return ErrTransactionActiveConflict
			}
		}
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *postgresTransactionRepository) scanTransaction(row interface {
	Scan(dest ...interface{}) error
}, t *models.Transaction) error {
	return row.Scan(
		&t.ID,
		&t.TournamentID,
		&t.RegistrationID,
		&t.Amount,
		&t.Status,
		&t.FailureReason,
		&t.CreatedAt,
	)
}

func (r *postgresTransactionRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Transaction, error) {
	t := &models.Transaction{}
	row := r.db.QueryRowContext(ctx, query, args...)
	if err := r.scanTransaction(row, t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return t, nil
}

func (r *postgresTransactionRepository) FindByID(ctx context.Context, id string) (*models.Transaction, error) {
	query := fmt.Sprintf(`SELECT %s FROM transactions WHERE id = $1`, transactionColumns)
	return r.findOne(ctx, query, id)
}

func (r *postgresTransactionRepository) FindActiveByRegistration(ctx context.Context, registrationID string) (*models.Transaction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE registration_id = $1 AND status IN ('PENDING', 'SUCCESS')
		LIMIT 1`, transactionColumns)
	return r.findOne(ctx, query, registrationID)
}

func (r *postgresTransactionRepository) FindLatestByRegistration(ctx context.Context, registrationID string) (*models.Transaction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE registration_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, transactionColumns)
	return r.findOne(ctx, query, registrationID)
}

func (r *postgresTransactionRepository) Resolve(ctx context.Context, id string, status models.TransactionStatus, failureReason *string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("resolve requires a terminal status, got %q", status)
	}
	query := `
		UPDATE transactions
		SET status = $2, failure_reason = $3
		WHERE id = $1 AND status = 'PENDING'`
	result, err := r.db.ExecContext(ctx, query, id, status, failureReason)
	if err != nil {
		return fmt.Errorf("failed to resolve transaction: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows for transaction resolve: %w", err)
	}
	if rowsAffected == 0 {
		existing, err := r.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if existing.Status.IsTerminal() {
			return ErrTransactionTerminal
		}
		return fmt.Errorf("transaction %s was not resolved", id)
	}
	return nil
}

func (r *postgresTransactionRepository) ListStalePending(ctx context.Context, olderThan time.Time) ([]*models.Transaction, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM transactions
		WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at ASC`, transactionColumns)

	rows, err := r.db.QueryContext(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]*models.Transaction, 0)
	for rows.Next() {
		var t models.Transaction
		if err := r.scanTransaction(rows, &t); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		transactions = append(transactions, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transaction rows: %w", err)
	}
	return transactions, nil
}
