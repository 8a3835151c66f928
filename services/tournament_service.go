package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/tournament-payments/models"
	"github.com/Dosada05/tournament-payments/repositories"
	"golang.org/x/sync/errgroup"
)

// TournamentService — доверенный путь пересчёта агрегатов турнира.
// total_collections и total_players никогда не инкрементируются по месту из
// клиентского кода: они выводятся заново из регистраций (derive, don't store).
type TournamentService struct {
	tournamentRepo   repositories.TournamentRepository
	registrationRepo repositories.RegistrationRepository
	logger           *slog.Logger
}

func NewTournamentService(
	tournamentRepo repositories.TournamentRepository,
	registrationRepo repositories.RegistrationRepository,
	logger *slog.Logger,
) *TournamentService {
	return &TournamentService{
		tournamentRepo:   tournamentRepo,
		registrationRepo: registrationRepo,
		logger:           logger,
	}
}

// GetTournament возвращает турнир по ID.
func (s *TournamentService) GetTournament(ctx context.Context, id string) (*models.Tournament, error) {
	t, err := s.tournamentRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}
	return t, nil
}

// RecomputeAggregates пересчитывает агрегаты одного турнира с нуля.
// Идемпотентна: повторный вызов на неизменных данных ничего не меняет.
func (s *TournamentService) RecomputeAggregates(ctx context.Context, tournamentID string) error {
	regs, err := s.registrationRepo.ListByTournament(ctx, tournamentID, false)
	if err != nil {
		return fmt.Errorf("failed to list registrations for recompute: %w", err)
	}

	var collections int64
	players := 0
	for _, reg := range regs {
		if reg.Paid {
			collections += reg.PaidAmount
			players++
		}
	}

	if err := s.tournamentRepo.UpdateAggregates(ctx, tournamentID, collections, players); err != nil {
		return fmt.Errorf("failed to store recomputed aggregates: %w", err)
	}
	return nil
}

// RecomputeAll пересчитывает агрегаты всех турниров с ограниченным
// параллелизмом. Вызывается планировщиком.
func (s *TournamentService) RecomputeAll(ctx context.Context) error {
	tournaments, err := s.tournamentRepo.ListAll(ctx)
	if err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, t := range tournaments {
		g.Go(func() error {
			if err := s.RecomputeAggregates(gCtx, t.ID); err != nil {
				s.logger.Error("aggregate recompute failed",
					slog.String("tournament_id", t.ID),
					slog.Any("error", err))
			}
			// Сбой одного турнира не должен останавливать остальные.
			return nil
		})
	}
	return g.Wait()
}
