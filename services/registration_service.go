package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/tournament-payments/models"
	"github.com/Dosada05/tournament-payments/repositories"
)

// RegistrationService владеет жизненным циклом одной регистрации: создание,
// duo-связка, вычисление суммы к оплате и переходы статусов.
type RegistrationService struct {
	registrationRepo repositories.RegistrationRepository
	tournamentRepo   repositories.TournamentRepository
	fingerprints     *FingerprintService
	logger           *slog.Logger
}

func NewRegistrationService(
	registrationRepo repositories.RegistrationRepository,
	tournamentRepo repositories.TournamentRepository,
	fingerprints *FingerprintService,
	logger *slog.Logger,
) *RegistrationService {
	return &RegistrationService{
		registrationRepo: registrationRepo,
		tournamentRepo:   tournamentRepo,
		fingerprints:     fingerprints,
		logger:           logger,
	}
}

type RegisterInput struct {
	TournamentID string  `json:"tournament_id"`
	Email        string  `json:"email"`
	Phone        string  `json:"phone"`
	DuoPartnerID *string `json:"duo_partner_id,omitempty"`
	IsDuoPayer   bool    `json:"is_duo_payer"`
}

type RegisterResult struct {
	Registration *models.Registration `json:"registration"`
	// Reused: найдена неоплаченная запись той же личности, она
	// переиспользована для повторной попытки оплаты вместо создания новой.
	Reused     bool  `json:"reused"`
	OwedAmount int64 `json:"owed_amount"`
}

// ComputeOwedAmount вычисляет сумму, которую должна эта регистрация.
// Solo/Team/обычный Duo — базовый взнос; duo-плательщик за обоих — двойной;
// партнёр уже оплаченного duo — ноль.
func ComputeOwedAmount(entryFee int64, entryType models.EntryType, isDuoPayer, partnerPaidForMe bool) int64 {
	if entryType != models.EntryDuo {
		return entryFee
	}
	if isDuoPayer {
		return 2 * entryFee
	}
	if partnerPaidForMe {
		return 0
	}
	return entryFee
}

// Register создаёт регистрацию либо возвращает существующую неоплаченную
// для переиспользования. Отпечаток личности перепроверяется непосредственно
// перед записью, а частичные уникальные индексы БД закрывают остаток гонки.
func (s *RegistrationService) Register(ctx context.Context, input RegisterInput) (*RegisterResult, error) {
	email := NormalizeEmail(input.Email)
	phone := NormalizePhone(input.Phone)
	if email == "" && phone == "" {
		return nil, ErrIdentityRequired
	}

	tournament, err := s.tournamentRepo.FindByID(ctx, input.TournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("ошибка при проверке турнира: %w", err)
	}
	if tournament.Status == models.TournamentCompleted {
		return nil, ErrRegistrationClosed
	}

	if input.DuoPartnerID != nil && tournament.EntryType != models.EntryDuo {
		return nil, ErrDuoNotSupported
	}

	// Повторная проверка отпечатка в момент записи, а не при отрисовке экрана.
	existing, err := s.fingerprints.Resolve(ctx, tournament.ID, email, phone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if existing.Paid {
			return nil, ErrDuplicateIdentity
		}
		// Неоплаченная запись переиспользуется: новая не создаётся никогда.
		owed, err := s.owedFor(ctx, tournament, existing)
		if err != nil {
			return nil, err
		}
		return &RegisterResult{Registration: existing, Reused: true, OwedAmount: owed}, nil
	}

	partnerPaidForMe := false
	if input.DuoPartnerID != nil {
		partner, err := s.registrationRepo.FindByID(ctx, *input.DuoPartnerID)
		if err != nil {
			if errors.Is(err, repositories.ErrRegistrationNotFound) {
				return nil, ErrDuoLinkInvalid
			}
			return nil, fmt.Errorf("ошибка при проверке партнёра: %w", err)
		}
		if partner.TournamentID != tournament.ID {
			return nil, ErrDuoLinkInvalid
		}
		if partner.PartnerRegistrationID != nil {
			return nil, ErrDuoAlreadyLinked
		}
		partnerPaidForMe = partner.IsDuoPayer && partner.Paid
	}

	owed := ComputeOwedAmount(tournament.EntryFee, tournament.EntryType, input.IsDuoPayer, partnerPaidForMe)

	reg := &models.Registration{
		TournamentID:          tournament.ID,
		Email:                 email,
		Phone:                 phone,
		EntryType:             tournament.EntryType,
		PartnerRegistrationID: input.DuoPartnerID,
		IsDuoPayer:            input.IsDuoPayer,
		Paid:                  owed == 0,
		PaidAmount:            0,
		Status:                models.RegistrationPending,
	}
	if reg.Paid {
		// Сумма к оплате нулевая (партнёр предоплаченного duo) — сразу approved.
		reg.Status = models.RegistrationApproved
	}

	if err := s.registrationRepo.Create(ctx, reg); err != nil {
		if errors.Is(err, repositories.ErrRegistrationPaidConflict) {
			// Гонка двух create: победила чужая оплаченная запись.
			return nil, ErrDuplicateIdentity
		}
		return nil, fmt.Errorf("ошибка создания регистрации: %w", err)
	}

	// Обратная ссылка партнёра, чтобы связка была видна с обеих сторон.
	if input.DuoPartnerID != nil {
		if err := s.registrationRepo.SetPartner(ctx, *input.DuoPartnerID, &reg.ID, !input.IsDuoPayer && owed == 0); err != nil {
			s.logger.Error("failed to backlink duo partner",
				slog.String("registration_id", reg.ID),
				slog.String("partner_id", *input.DuoPartnerID),
				slog.Any("error", err))
		}
	}

	return &RegisterResult{Registration: reg, Reused: false, OwedAmount: owed}, nil
}

// owedFor пересчитывает долг существующей регистрации по текущему состоянию
// её duo-связки.
func (s *RegistrationService) owedFor(ctx context.Context, tournament *models.Tournament, reg *models.Registration) (int64, error) {
	if reg.Paid {
		return 0, nil
	}
	partnerPaidForMe := false
	if reg.PartnerRegistrationID != nil {
		partner, err := s.registrationRepo.FindByID(ctx, *reg.PartnerRegistrationID)
		if err != nil && !errors.Is(err, repositories.ErrRegistrationNotFound) {
			return 0, fmt.Errorf("ошибка при проверке партнёра: %w", err)
		}
		if partner != nil {
			partnerPaidForMe = partner.IsDuoPayer && partner.Paid
		}
	}
	return ComputeOwedAmount(tournament.EntryFee, tournament.EntryType, reg.IsDuoPayer, partnerPaidForMe), nil
}

// OwedAmount возвращает актуальный долг регистрации.
func (s *RegistrationService) OwedAmount(ctx context.Context, registrationID string) (int64, *models.Registration, error) {
	reg, err := s.registrationRepo.FindByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return 0, nil, ErrRegistrationNotFound
		}
		return 0, nil, err
	}
	tournament, err := s.tournamentRepo.FindByID(ctx, reg.TournamentID)
	if err != nil {
		return 0, nil, fmt.Errorf("ошибка при проверке турнира: %w", err)
	}
	owed, err := s.owedFor(ctx, tournament, reg)
	if err != nil {
		return 0, nil, err
	}
	return owed, reg, nil
}

// LinkDuo связывает две регистрации в duo-пару с одним плательщиком.
func (s *RegistrationService) LinkDuo(ctx context.Context, aID, bID, payerID string) error {
	if aID == bID {
		return ErrDuoLinkInvalid
	}
	if payerID != aID && payerID != bID {
		return ErrDuoLinkInvalid
	}

	a, err := s.registrationRepo.FindByID(ctx, aID)
	if err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return ErrRegistrationNotFound
		}
		return err
	}
	b, err := s.registrationRepo.FindByID(ctx, bID)
	if err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return ErrRegistrationNotFound
		}
		return err
	}

	if a.TournamentID != b.TournamentID {
		return ErrDuoLinkInvalid
	}
	if a.EntryType != models.EntryDuo || b.EntryType != models.EntryDuo {
		return ErrDuoNotSupported
	}
	if (a.PartnerRegistrationID != nil && *a.PartnerRegistrationID != bID) ||
		(b.PartnerRegistrationID != nil && *b.PartnerRegistrationID != aID) {
		return ErrDuoAlreadyLinked
	}

	if err := s.registrationRepo.SetPartner(ctx, aID, &bID, payerID == aID); err != nil {
		return fmt.Errorf("ошибка связывания duo: %w", err)
	}
	if err := s.registrationRepo.SetPartner(ctx, bID, &aID, payerID == bID); err != nil {
		return fmt.Errorf("ошибка связывания duo: %w", err)
	}

	// Если плательщик уже оплатил, партнёр не должен ничего: закрываем его
	// запись сразу (идемпотентно).
	payer, partner := a, b
	if payerID == bID {
		payer, partner = b, a
	}
	if payer.Paid {
		if err := s.MarkPaid(ctx, partner.ID, 0); err != nil {
			return err
		}
	}
	return nil
}

// MarkPaid помечает регистрацию оплаченной. Идемпотентна: повторный вызов
// по уже оплаченной записи — no-op, не ошибка. После оплаты duo-плательщика
// долг партнёра становится нулевым навсегда, его запись закрывается тоже.
func (s *RegistrationService) MarkPaid(ctx context.Context, registrationID string, amount int64) error {
	flipped, err := s.registrationRepo.MarkPaid(ctx, registrationID, amount)
	if err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return ErrRegistrationNotFound
		}
		return err
	}
	if !flipped {
		return nil
	}

	reg, err := s.registrationRepo.FindByID(ctx, registrationID)
	if err != nil {
		return err
	}
	if reg.IsDuoPayer && reg.PartnerRegistrationID != nil {
		// Оплата за обоих: партнёру засчитываем 0.
		if _, err := s.registrationRepo.MarkPaid(ctx, *reg.PartnerRegistrationID, 0); err != nil {
			s.logger.Error("failed to settle duo partner after payer payment",
				slog.String("payer_id", registrationID),
				slog.String("partner_id", *reg.PartnerRegistrationID),
				slog.Any("error", err))
		}
	}
	return nil
}

type ExistingCheck struct {
	Exists       bool                 `json:"exists"`
	Paid         bool                 `json:"paid"`
	Registration *models.Registration `json:"registration,omitempty"`
}

// CheckExisting — предварительная проверка для UI. Результат носит
// информационный характер и обязательно перепроверяется при записи.
func (s *RegistrationService) CheckExisting(ctx context.Context, tournamentID, email, phone string) (*ExistingCheck, error) {
	reg, err := s.fingerprints.Resolve(ctx, tournamentID, email, phone)
	if err != nil {
		return nil, err
	}
	if reg == nil {
		return &ExistingCheck{}, nil
	}
	return &ExistingCheck{Exists: true, Paid: reg.Paid, Registration: reg}, nil
}

// GetRegistration возвращает регистрацию по ID.
func (s *RegistrationService) GetRegistration(ctx context.Context, id string) (*models.Registration, error) {
	reg, err := s.registrationRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return nil, ErrRegistrationNotFound
		}
		return nil, err
	}
	return reg, nil
}
