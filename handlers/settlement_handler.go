package handlers

import (
	"net/http"

	"github.com/Dosada05/tournament-payments/services"
	"github.com/go-chi/chi/v5"
)

type SettlementHandler struct {
	settlementService *services.SettlementService
	tournamentService *services.TournamentService
}

func NewSettlementHandler(settlementService *services.SettlementService, tournamentService *services.TournamentService) *SettlementHandler {
	return &SettlementHandler{
		settlementService: settlementService,
		tournamentService: tournamentService,
	}
}

// Compute — GET /tournaments/{tournamentID}/settlement. Чистый расчёт сплита,
// без побочных эффектов; можно дёргать сколько угодно.
func (h *SettlementHandler) Compute(w http.ResponseWriter, r *http.Request) {
	breakdown, err := h.settlementService.Calculate(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"settlement": breakdown}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Release — POST /tournaments/{tournamentID}/settlement/release.
// Выплата организатору, ровно один раз: повтор после успеха получает 409.
func (h *SettlementHandler) Release(w http.ResponseWriter, r *http.Request) {
	record, err := h.settlementService.Release(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"settlement_record": record}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetRecord — GET /tournaments/{tournamentID}/settlement/record.
func (h *SettlementHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.settlementService.GetRecord(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"settlement_record": record}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Recompute — POST /tournaments/{tournamentID}/recompute. Доверенный путь
// пересчёта агрегатов; единственный способ их изменить снаружи планировщика.
func (h *SettlementHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	if err := h.tournamentService.RecomputeAggregates(r.Context(), chi.URLParam(r, "tournamentID")); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"recomputed": true}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetTournament — GET /tournaments/{tournamentID}.
func (h *SettlementHandler) GetTournament(w http.ResponseWriter, r *http.Request) {
	t, err := h.tournamentService.GetTournament(r.Context(), chi.URLParam(r, "tournamentID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": t}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
