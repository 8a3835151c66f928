package localcache

import (
	"context"

	"github.com/Dosada05/tournament-payments/models"
)

// PendingPaymentCache — устойчивое к перезапуску локальное хранилище записей
// "оплата начата". Консультативное: служит только для сверки после сбоя,
// истиной остаются Transaction и Registration на сервере.
type PendingPaymentCache interface {
	Put(ctx context.Context, p *models.LocalPendingPayment) error
	Get(ctx context.Context, tournamentID, registrationID string) (*models.LocalPendingPayment, error)
	Remove(ctx context.Context, tournamentID, registrationID string) error
	List(ctx context.Context) ([]*models.LocalPendingPayment, error)
	Close() error
}
