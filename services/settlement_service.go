package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/tournament-payments/models"
	"github.com/Dosada05/tournament-payments/payments"
	"github.com/Dosada05/tournament-payments/repositories"
	"github.com/Dosada05/tournament-payments/storage"
)

// Комиссия платформы — 5%. Оба значения округляются вниз: дробные единицы
// валюты невыплачиваемы, остаток округления остаётся платформе.
const platformFeePercent = 5

// SettlementService считает сплит выручки завершённого турнира и выполняет
// выплату организатору ровно один раз.
type SettlementService struct {
	tournamentRepo   repositories.TournamentRepository
	registrationRepo repositories.RegistrationRepository
	settlementRepo   repositories.SettlementRepository
	payout           payments.PayoutProvider
	uploader         storage.ReportUploader
	logger           *slog.Logger
}

func NewSettlementService(
	tournamentRepo repositories.TournamentRepository,
	registrationRepo repositories.RegistrationRepository,
	settlementRepo repositories.SettlementRepository,
	payout payments.PayoutProvider,
	uploader storage.ReportUploader,
	logger *slog.Logger,
) *SettlementService {
	return &SettlementService{
		tournamentRepo:   tournamentRepo,
		registrationRepo: registrationRepo,
		settlementRepo:   settlementRepo,
		payout:           payout,
		uploader:         uploader,
		logger:           logger,
	}
}

// Calculate — чистый расчёт сплита. Выручка берётся из кэшированного
// total_collections; если он нулевой или не заполнен — пересчитывается как
// сумма paid_amount по оплаченным регистрациям (кэш мог устареть).
// Инвариант: platformFee + organizerShare <= totalRevenue.
func (s *SettlementService) Calculate(ctx context.Context, tournamentID string) (*models.SettlementBreakdown, error) {
	tournament, err := s.tournamentRepo.FindByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}

	revenue := tournament.TotalCollections
	if revenue == 0 {
		revenue, err = s.collectedRevenue(ctx, tournamentID)
		if err != nil {
			return nil, err
		}
	}

	return &models.SettlementBreakdown{
		TournamentID:   tournamentID,
		TotalRevenue:   revenue,
		PlatformFee:    revenue * platformFeePercent / 100,
		OrganizerShare: revenue * (100 - platformFeePercent) / 100,
	}, nil
}

func (s *SettlementService) collectedRevenue(ctx context.Context, tournamentID string) (int64, error) {
	regs, err := s.registrationRepo.ListByTournament(ctx, tournamentID, true)
	if err != nil {
		return 0, fmt.Errorf("failed to list paid registrations: %w", err)
	}
	var total int64
	for _, reg := range regs {
		// Duo-плательщик несёт paid_amount за обоих, партнёр — ноль:
		// сумма по paid_amount считает каждый взнос ровно один раз.
		total += reg.PaidAmount
	}
	return total, nil
}

// Release выполняет выплату организатору ровно один раз на турнир.
// Предусловия: турнир завершён, расчёт ещё не выполнен. Claim берётся
// условным апдейтом непосредственно перед мутацией — повторный вызов после
// успеха получает ErrAlreadySettled и не платит повторно.
func (s *SettlementService) Release(ctx context.Context, tournamentID string) (*models.SettlementRecord, error) {
	tournament, err := s.tournamentRepo.FindByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	if tournament.Status != models.TournamentCompleted {
		return nil, ErrTournamentNotCompleted
	}
	if tournament.SettlementStatus == models.SettlementCompleted {
		return nil, ErrAlreadySettled
	}

	// Атомарный claim none -> pending; проигравший гонку вызов получает
	// отказ здесь, а не второй transfer у провайдера.
	if err := s.tournamentRepo.ClaimSettlement(ctx, tournamentID); err != nil {
		if errors.Is(err, repositories.ErrSettlementClaimLost) {
			current, ferr := s.tournamentRepo.FindByID(ctx, tournamentID)
			if ferr == nil && current.SettlementStatus == models.SettlementPending {
				return nil, ErrSettlementInProgress
			}
			s.logger.Error("settlement release attempted after completion",
				slog.String("tournament_id", tournamentID))
			return nil, ErrAlreadySettled
		}
		return nil, err
	}

	breakdown, err := s.Calculate(ctx, tournamentID)
	if err != nil {
		s.releaseClaim(ctx, tournamentID)
		return nil, err
	}

	transferID := ""
	if breakdown.OrganizerShare > 0 {
		memo := fmt.Sprintf("settlement for tournament %s", tournamentID)
		transferID, err = s.payout.Payout(ctx, tournament.PayoutAccountID, breakdown.OrganizerShare, memo)
		if err != nil {
			// Выплата не прошла: возвращаем claim, чтобы повтор был возможен.
			s.releaseClaim(ctx, tournamentID)
			return nil, fmt.Errorf("payout failed: %w", err)
		}
	}

	record := &models.SettlementRecord{
		TournamentID:       tournamentID,
		TotalCollected:     breakdown.TotalRevenue,
		PlatformCommission: breakdown.PlatformFee,
		OrganizerShare:     breakdown.OrganizerShare,
		TransferID:         transferID,
	}
	if err := s.settlementRepo.Create(ctx, record); err != nil {
		// Деньги уже ушли: запись обязана появиться, это ошибка операторского
		// уровня, но откатывать claim нельзя — повтор оплатил бы дважды.
		s.logger.Error("payout succeeded but settlement record was not created",
			slog.String("tournament_id", tournamentID),
			slog.String("transfer_id", transferID),
			slog.Any("error", err))
		if !errors.Is(err, repositories.ErrSettlementRecordExists) {
			return nil, fmt.Errorf("payout done, settlement record failed: %w", err)
		}
	}
	if err := s.tournamentRepo.CompleteSettlement(ctx, tournamentID); err != nil {
		s.logger.Error("failed to mark settlement completed",
			slog.String("tournament_id", tournamentID),
			slog.Any("error", err))
	}

	s.uploadReport(ctx, record)
	return record, nil
}

func (s *SettlementService) releaseClaim(ctx context.Context, tournamentID string) {
	if err := s.tournamentRepo.ReleaseSettlementClaim(ctx, tournamentID); err != nil {
		s.logger.Error("failed to release settlement claim",
			slog.String("tournament_id", tournamentID),
			slog.Any("error", err))
	}
}

// uploadReport выгружает JSON-отчёт о расчёте для дашбордов. Неудача не
// отменяет расчёт — отчёт можно перегенерировать из settlement_records.
func (s *SettlementService) uploadReport(ctx context.Context, record *models.SettlementRecord) {
	if s.uploader == nil {
		return
	}
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		s.logger.Error("failed to marshal settlement report", slog.Any("error", err))
		return
	}
	key := fmt.Sprintf("settlements/%s.json", record.TournamentID)
	if _, err := s.uploader.Upload(ctx, key, "application/json", bytes.NewReader(data)); err != nil {
		s.logger.Warn("failed to upload settlement report",
			slog.String("tournament_id", record.TournamentID),
			slog.Any("error", err))
	}
}

// GetRecord возвращает итоговую запись расчёта по турниру.
func (s *SettlementService) GetRecord(ctx context.Context, tournamentID string) (*models.SettlementRecord, error) {
	rec, err := s.settlementRepo.FindByTournament(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrSettlementRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}
