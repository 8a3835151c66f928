package routes

import (
	"github.com/Dosada05/tournament-payments/handlers"
	"github.com/Dosada05/tournament-payments/middleware"
	"github.com/Dosada05/tournament-payments/models"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware" // Alias to avoid conflict
	"github.com/go-chi/cors"
)

// SetupRoutes собирает всю HTTP-поверхность: регистрация, оплата, сверка,
// расчёт с организатором и websocket-подписка на статус транзакции.
func SetupRoutes(
	router *chi.Mux,
	jwtSecret string,
	authHandler *handlers.AuthHandler,
	registrationHandler *handlers.RegistrationHandler,
	paymentHandler *handlers.PaymentHandler,
	settlementHandler *handlers.SettlementHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	router.Route("/registrations", func(r chi.Router) {
		r.Post("/", registrationHandler.Register)
		r.Post("/duo", registrationHandler.LinkDuo)
		r.Get("/{registrationID}", registrationHandler.GetRegistration)
	})

	router.Route("/payments", func(r chi.Router) {
		r.Post("/", paymentHandler.PayNow)
		r.Post("/reconcile", paymentHandler.Reconcile)
		r.Get("/{transactionID}/wait", paymentHandler.AwaitTransaction)
	})

	// Серверный push от верификатора платежей.
	router.Post("/webhooks/payment", paymentHandler.VerifierWebhook)

	router.Route("/tournaments/{tournamentID}", func(r chi.Router) {
		r.Get("/", settlementHandler.GetTournament)
		r.Get("/registrations/check", registrationHandler.CheckExisting)
		r.Get("/settlement", settlementHandler.Compute)
		r.Get("/settlement/record", settlementHandler.GetRecord)

		// Только организатор или администратор: выплата и пересчёт агрегатов.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(jwtSecret))
			r.Use(middleware.Authorize(string(models.RoleOrganizer), string(models.RoleAdmin)))

			r.Post("/settlement/release", settlementHandler.Release)
			r.Post("/recompute", settlementHandler.Recompute)
		})
	})

	router.Get("/ws/payments/{transactionID}", webSocketHandler.ServeWs)
}
