package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/tournament-payments/services"
	"github.com/go-chi/chi/v5"
)

type RegistrationHandler struct {
	registrationService *services.RegistrationService
}

func NewRegistrationHandler(registrationService *services.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registrationService: registrationService}
}

// Register — POST /registrations. Создаёт регистрацию либо возвращает
// существующую неоплаченную для повторной оплаты. Оплаченный дубликат
// личности отдаёт 409 с id существующей записи.
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	var input services.RegisterInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.TournamentID == "" {
		badRequestResponse(w, r, errors.New("tournament_id is required"))
		return
	}

	result, err := h.registrationService.Register(r.Context(), input)
	if err != nil {
		if errors.Is(err, services.ErrDuplicateIdentity) {
			// Клиенту нужен id существующей записи для редиректа.
			existing, cerr := h.registrationService.CheckExisting(r.Context(), input.TournamentID, input.Email, input.Phone)
			if cerr == nil && existing.Exists {
				errorResponse(w, r, http.StatusConflict, jsonResponse{
					"message":                  err.Error(),
					"existing_registration_id": existing.Registration.ID,
				})
				return
			}
		}
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Reused {
		status = http.StatusOK
	}
	if err := writeJSON(w, status, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// CheckExisting — GET /tournaments/{tournamentID}/registrations/check.
// Предварительная проверка отпечатка для UI; при записи она повторяется.
func (h *RegistrationHandler) CheckExisting(w http.ResponseWriter, r *http.Request) {
	tournamentID := chi.URLParam(r, "tournamentID")
	email := r.URL.Query().Get("email")
	phone := r.URL.Query().Get("phone")

	check, err := h.registrationService.CheckExisting(r.Context(), tournamentID, email, phone)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"check": check}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type linkDuoInput struct {
	RegistrationA string `json:"registration_a"`
	RegistrationB string `json:"registration_b"`
	PayerID       string `json:"payer_id"`
}

// LinkDuo — POST /registrations/duo.
func (h *RegistrationHandler) LinkDuo(w http.ResponseWriter, r *http.Request) {
	var input linkDuoInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.RegistrationA == "" || input.RegistrationB == "" || input.PayerID == "" {
		badRequestResponse(w, r, errors.New("registration_a, registration_b and payer_id are required"))
		return
	}

	if err := h.registrationService.LinkDuo(r.Context(), input.RegistrationA, input.RegistrationB, input.PayerID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"linked": true}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetRegistration — GET /registrations/{registrationID}.
func (h *RegistrationHandler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	reg, err := h.registrationService.GetRegistration(r.Context(), chi.URLParam(r, "registrationID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"registration": reg}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
