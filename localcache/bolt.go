package localcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dosada05/tournament-payments/models"
	bolt "go.etcd.io/bbolt"
)

var pendingBucket = []byte("pending_payments")

type boltCache struct {
	db *bolt.DB
}

// NewBoltCache открывает (или создаёт) файл кэша. Файл переживает перезапуск
// процесса, но не переустановку приложения — ровно та семантика, что нужна
// для сверки брошенных оплат.
func NewBoltCache(path string) (PendingPaymentCache, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open local cache at %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(pendingBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare local cache bucket: %w", err)
	}
	return &boltCache{db: db}, nil
}

func cacheKey(tournamentID, registrationID string) []byte {
	return []byte(tournamentID + ":" + registrationID)
}

func (c *boltCache) Put(ctx context.Context, p *models.LocalPendingPayment) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal pending payment: %w", err)
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingBucket).Put(cacheKey(p.TournamentID, p.RegistrationID), data)
	})
	if err != nil {
		return fmt.Errorf("failed to store pending payment: %w", err)
	}
	return nil
}

func (c *boltCache) Get(ctx context.Context, tournamentID, registrationID string) (*models.LocalPendingPayment, error) {
	var p *models.LocalPendingPayment
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(pendingBucket).Get(cacheKey(tournamentID, registrationID))
		if data == nil {
			return nil
		}
		p = &models.LocalPendingPayment{}
		return json.Unmarshal(data, p)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read pending payment: %w", err)
	}
	return p, nil
}

func (c *boltCache) Remove(ctx context.Context, tournamentID, registrationID string) error {
	err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingBucket).Delete(cacheKey(tournamentID, registrationID))
	})
	if err != nil {
		return fmt.Errorf("failed to remove pending payment: %w", err)
	}
	return nil
}

func (c *boltCache) List(ctx context.Context) ([]*models.LocalPendingPayment, error) {
	payments := make([]*models.LocalPendingPayment, 0)
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(pendingBucket).ForEach(func(k, v []byte) error {
			var p models.LocalPendingPayment
			if err := json.Unmarshal(v, &p); err != nil {
				// Повреждённая запись не должна блокировать сверку остальных.
				return nil
			}
			payments = append(payments, &p)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	return payments, nil
}

func (c *boltCache) Close() error {
	return c.db.Close()
}
