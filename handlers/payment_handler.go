package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/tournament-payments/models"
	"github.com/Dosada05/tournament-payments/services"
	"github.com/go-chi/chi/v5"
)

type PaymentHandler struct {
	paymentService      *services.PaymentService
	ledgerService       *services.LedgerService
	recoveryService     *services.RecoveryService
	registrationService *services.RegistrationService
}

func NewPaymentHandler(
	paymentService *services.PaymentService,
	ledgerService *services.LedgerService,
	recoveryService *services.RecoveryService,
	registrationService *services.RegistrationService,
) *PaymentHandler {
	return &PaymentHandler{
		paymentService:      paymentService,
		ledgerService:       ledgerService,
		recoveryService:     recoveryService,
		registrationService: registrationService,
	}
}

// PayNow — POST /payments. Одна платёжная попытка целиком: леджер, checkout
// провайдера, верификация.
func (h *PaymentHandler) PayNow(w http.ResponseWriter, r *http.Request) {
	var input services.PayNowInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	result, err := h.paymentService.PayNow(r.Context(), input)
	if err != nil {
		// Провал верификации возвращает и результат, и ошибку: клиенту
		// нужны оба — конечное состояние и человекочитаемая причина.
		if errors.Is(err, services.ErrVerificationFailed) && result != nil {
			errorResponse(w, r, http.StatusPaymentRequired, jsonResponse{
				"message": err.Error(),
				"result":  result,
			})
			return
		}
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"result": result}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// AwaitTransaction — GET /payments/{transactionID}/wait. Ждёт терминального
// статуса в пределах окна наблюдения; по истечении отдаёт "unknown".
func (h *PaymentHandler) AwaitTransaction(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.paymentService.AwaitConfirmation(r.Context(), chi.URLParam(r, "transactionID"))
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	resp := jsonResponse{"known": outcome.Known}
	if outcome.Known {
		resp["status"] = outcome.Status
	} else {
		resp["status"] = "UNKNOWN"
	}
	if err := writeJSON(w, http.StatusOK, resp, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// Reconcile — POST /payments/reconcile. Сверка локальных записей о начатых
// оплатах с серверной истиной (после перезапуска/восстановления связи).
func (h *PaymentHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	reports, err := h.recoveryService.ReconcilePendingPayments(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"reports": reports}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type webhookInput struct {
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Reason        string `json:"reason,omitempty"`
}

// VerifierWebhook — POST /webhooks/payment. Доверенный серверный верификатор
// доносит терминальный статус транзакции. Идемпотентен: повтор по уже
// терминальной транзакции не меняет её.
func (h *PaymentHandler) VerifierWebhook(w http.ResponseWriter, r *http.Request) {
	var input webhookInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var status models.TransactionStatus
	switch input.Status {
	case string(models.TransactionSuccess):
		status = models.TransactionSuccess
	case string(models.TransactionFailed):
		status = models.TransactionFailed
	default:
		badRequestResponse(w, r, errors.New("status must be SUCCESS or FAILED"))
		return
	}

	var reason *string
	if input.Reason != "" {
		reason = &input.Reason
	}

	tx, err := h.ledgerService.Resolve(r.Context(), input.TransactionID, status, reason)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if tx.Status == models.TransactionSuccess {
		// Серверный путь подтверждения: регистрация закрывается здесь же,
		// даже если клиент умер до шага markPaid. Идемпотентно.
		if err := h.registrationService.MarkPaid(r.Context(), tx.RegistrationID, tx.Amount); err != nil {
			mapServiceErrorToHTTP(w, r, err)
			return
		}
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"transaction": tx}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
