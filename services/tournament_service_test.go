package services

import (
	"context"
	"testing"

	"github.com/Dosada05/tournament-payments/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecomputeAggregates(t *testing.T) {
	ctx := context.Background()
	regRepo := newFakeRegistrationRepo()
	tournamentRepo := newFakeTournamentRepo()
	svc := NewTournamentService(tournamentRepo, regRepo, testLogger())

	require.NoError(t, tournamentRepo.Create(ctx, &models.Tournament{
		ID:        "t1",
		Name:      "Cup",
		EntryFee:  100,
		EntryType: models.EntrySolo,
		Status:    models.TournamentOngoing,
	}))

	seed := []struct {
		email  string
		paid   bool
		amount int64
	}{
		{"a@example.com", true, 100},
		{"b@example.com", true, 200},
		{"c@example.com", false, 0}, // неоплаченная не учитывается
	}
	for _, s := range seed {
		require.NoError(t, regRepo.Create(ctx, &models.Registration{
			TournamentID: "t1",
			Email:        s.email,
			EntryType:    models.EntrySolo,
			Paid:         s.paid,
			PaidAmount:   s.amount,
			Status:       models.RegistrationPending,
		}))
	}

	require.NoError(t, svc.RecomputeAggregates(ctx, "t1"))

	tour, err := tournamentRepo.FindByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), tour.TotalCollections)
	assert.Equal(t, 2, tour.TotalPlayers)

	// Пересчёт идемпотентен: повтор не меняет агрегаты.
	require.NoError(t, svc.RecomputeAggregates(ctx, "t1"))
	tour, err = tournamentRepo.FindByID(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), tour.TotalCollections)
	assert.Equal(t, 2, tour.TotalPlayers)
}

func TestRecomputeAllCoversEveryTournament(t *testing.T) {
	ctx := context.Background()
	regRepo := newFakeRegistrationRepo()
	tournamentRepo := newFakeTournamentRepo()
	svc := NewTournamentService(tournamentRepo, regRepo, testLogger())

	for _, id := range []string{"t1", "t2"} {
		require.NoError(t, tournamentRepo.Create(ctx, &models.Tournament{
			ID:        id,
			Name:      id,
			EntryFee:  100,
			EntryType: models.EntrySolo,
			Status:    models.TournamentOngoing,
		}))
		require.NoError(t, regRepo.Create(ctx, &models.Registration{
			TournamentID: id,
			Email:        id + "@example.com",
			EntryType:    models.EntrySolo,
			Paid:         true,
			PaidAmount:   100,
			Status:       models.RegistrationApproved,
		}))
	}

	require.NoError(t, svc.RecomputeAll(ctx))

	for _, id := range []string{"t1", "t2"} {
		tour, err := tournamentRepo.FindByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(100), tour.TotalCollections)
		assert.Equal(t, 1, tour.TotalPlayers)
	}
}
