package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-payments/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrRegistrationNotFound = errors.New("registration not found")
	// ErrRegistrationPaidConflict возвращается, когда запись нарушает частичный
	// уникальный индекс "одна оплаченная регистрация на личность в турнире".
	ErrRegistrationPaidConflict = errors.New("a paid registration already exists for this identity in the tournament")
)

type RegistrationRepository interface {
	Create(ctx context.Context, r *models.Registration) error
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	FindByEmail(ctx context.Context, tournamentID, email string) (*models.Registration, error)
	FindByPhone(ctx context.Context, tournamentID, phone string) (*models.Registration, error)
	ListByTournament(ctx context.Context, tournamentID string, onlyPaid bool) ([]*models.Registration, error)
	// MarkPaid переводит paid в true идемпотентно: возвращает flipped=false,
	// если запись уже была оплачена (это не ошибка).
	MarkPaid(ctx context.Context, id string, amount int64) (flipped bool, err error)
	SetPartner(ctx context.Context, id string, partnerID *string, isDuoPayer bool) error
	UpdateStatus(ctx context.Context, id string, status models.RegistrationStatus) error
}

type postgresRegistrationRepository struct {
	db *sql.DB
}

func NewPostgresRegistrationRepository(db *sql.DB) RegistrationRepository {
	return &postgresRegistrationRepository{db: db}
}

const registrationColumns = `id, tournament_id, email, phone, entry_type, partner_registration_id, is_duo_payer, paid, paid_amount, status, created_at`

func (r *postgresRegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	query := `
		INSERT INTO registrations (id, tournament_id, email, phone, entry_type, partner_registration_id, is_duo_payer, paid, paid_amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		reg.ID,
		reg.TournamentID,
		reg.Email,
		reg.Phone,
		reg.EntryType,
		reg.PartnerRegistrationID,
		reg.IsDuoPayer,
		reg.Paid,
		reg.PaidAmount,
		reg.Status,
	).Scan(&reg.CreatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			// Частичные индексы WHERE paid: вторая оплаченная запись на ту же
			// личность невозможна на уровне БД.
			if pqErr.Constraint == "registrations_paid_email_key" ||
				pqErr.Constraint == "registrations_paid_phone_key" {
				return ErrRegistrationPaidConflict
			}
		}
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

func (r *postgresRegistrationRepository) scanRegistration(row interface {
	Scan(dest ...interface{}) error
}, reg *models.Registration) error {
	return row.Scan(
		&reg.ID,
		&reg.TournamentID,
		&reg.Email,
		&reg.Phone,
		&reg.EntryType,
		&reg.PartnerRegistrationID,
		&reg.IsDuoPayer,
		&reg.Paid,
		&reg.PaidAmount,
		&reg.Status,
		&reg.CreatedAt,
	)
}

func (r *postgresRegistrationRepository) findOne(ctx context.Context, query string, args ...interface{}) (*models.Registration, error) {
	reg := &models.Registration{}
	row := r.db.QueryRowContext(ctx, query, args...)
	if err := r.scanRegistration(row, reg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to find registration: %w", err)
	}
	return reg, nil
}

func (r *postgresRegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	query := fmt.Sprintf(`SELECT %s FROM registrations WHERE id = $1`, registrationColumns)
	return r.findOne(ctx, query, id)
}

func (r *postgresRegistrationRepository) FindByEmail(ctx context.Context, tournamentID, email string) (*models.Registration, error) {
	// Оплаченная запись важнее неоплаченной, свежая — старой.
	query := fmt.Sprintf(`
		SELECT %s FROM registrations
		WHERE tournament_id = $1 AND email = $2
		ORDER BY paid DESC, created_at DESC
		LIMIT 1`, registrationColumns)
	return r.findOne(ctx, query, tournamentID, email)
}

func (r *postgresRegistrationRepository) FindByPhone(ctx context.Context, tournamentID, phone string) (*models.Registration, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM registrations
		WHERE tournament_id = $1 AND phone = $2
		ORDER BY paid DESC, created_at DESC
		LIMIT 1`, registrationColumns)
	return r.findOne(ctx, query, tournamentID, phone)
}

func (r *postgresRegistrationRepository) ListByTournament(ctx context.Context, tournamentID string, onlyPaid bool) ([]*models.Registration, error) {
	query := fmt.Sprintf(`SELECT %s FROM registrations WHERE tournament_id = $1`, registrationColumns)
	if onlyPaid {
		query += ` AND paid = true`
	}
	query += ` ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations by tournament: %w", err)
	}
	defer rows.Close()

	registrations := make([]*models.Registration, 0)
	for rows.Next() {
		var reg models.Registration
		if err := r.scanRegistration(rows, &reg); err != nil {
			return nil, fmt.Errorf("failed to scan registration row: %w", err)
		}
		registrations = append(registrations, &reg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registration rows: %w", err)
	}
	return registrations, nil
}

func (r *postgresRegistrationRepository) MarkPaid(ctx context.Context, id string, amount int64) (bool, error) {
	// Условие paid = false делает операцию идемпотентной: повторный вызов
	// по уже оплаченной записи затрагивает 0 строк.
	query := `
		UPDATE registrations
		SET paid = true, paid_amount = $2, status = 'approved'
		WHERE id = $1 AND paid = false`
	result, err := r.db.ExecContext(ctx, query, id, amount)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return false, ErrRegistrationPaidConflict
		}
		return false, fmt.Errorf("failed to mark registration paid: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows for mark paid: %w", err)
	}
	if rowsAffected == 0 {
		// Либо запись не существует, либо уже оплачена — различаем чтением.
		if _, err := r.FindByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *postgresRegistrationRepository) SetPartner(ctx context.Context, id string, partnerID *string, isDuoPayer bool) error {
	query := `UPDATE registrations SET partner_registration_id = $2, is_duo_payer = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, partnerID, isDuoPayer)
	if err != nil {
		return fmt.Errorf("failed to set registration partner: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows for set partner: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}

func (r *postgresRegistrationRepository) UpdateStatus(ctx context.Context, id string, status models.RegistrationStatus) error {
	query := `UPDATE registrations SET status = $1 WHERE id = $2`
	result, err := r.db.ExecContext(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update registration status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows for registration status update: %w", err)
	}
	if rowsAffected == 0 {
		return ErrRegistrationNotFound
	}
	return nil
}
