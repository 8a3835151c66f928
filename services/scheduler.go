package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Сколько PENDING-транзакция может ждать подтверждения, прежде чем sweep
// погасит её как истёкшую.
const stalePendingAge = 24 * time.Hour

// StartScheduler запускает фоновые задачи: пересчёт агрегатов турниров и
// гашение брошенных PENDING-транзакций. Возвращает функцию остановки.
func StartScheduler(
	tournaments *TournamentService,
	ledger *LedgerService,
	logger *slog.Logger,
) (stop func(), err error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
			defer cancel()
			if err := tournaments.RecomputeAll(ctx); err != nil {
				logger.Error("scheduled aggregate recompute failed", slog.Any("error", err))
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	_, err = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Second)
			defer cancel()
			expired, err := ledger.ExpireStalePending(ctx, stalePendingAge)
			if err != nil {
				logger.Error("stale pending sweep failed", slog.Any("error", err))
				return
			}
			if expired > 0 {
				logger.Info("expired stale pending transactions", slog.Int("count", expired))
			}
		}),
	)
	if err != nil {
		return nil, err
	}

	sched.Start()
	return func() {
		if err := sched.Shutdown(); err != nil {
			logger.Error("scheduler shutdown failed", slog.Any("error", err))
		}
	}, nil
}
