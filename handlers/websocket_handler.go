package handlers

import (
	"log/slog"
	"net/http"

	"github.com/Dosada05/tournament-payments/payments"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// В продакшене здесь должна быть проверка Origin.
		return true
	},
}

type WebSocketHandler struct {
	hub    *payments.Hub
	logger *slog.Logger
}

func NewWebSocketHandler(hub *payments.Hub, logger *slog.Logger) *WebSocketHandler {
	return &WebSocketHandler{hub: hub, logger: logger}
}

// ServeWs — GET /ws/payments/{transactionID}. Подписывает клиента на
// обновления статуса транзакции, пока он ждёт подтверждения оплаты.
func (h *WebSocketHandler) ServeWs(w http.ResponseWriter, r *http.Request) {
	transactionID := chi.URLParam(r, "transactionID")
	if transactionID == "" {
		http.Error(w, "missing transactionID", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade сам отправляет HTTP-ошибку клиенту.
		h.logger.Warn("websocket upgrade failed",
			slog.String("transaction_id", transactionID),
			slog.Any("error", err))
		return
	}

	client := &payments.Client{
		Hub:  h.hub,
		Conn: conn,
		Send: make(chan []byte, 256),
		Room: transactionID,
	}
	client.Hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
