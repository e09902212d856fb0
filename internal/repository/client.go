package repository

import (
	"context"
	"errors"
	"time"

	"pulsehub/internal/model"

	"github.com/jellydator/ttlcache/v3"
	"gorm.io/gorm"
)

// ClientRepository resolves API keys of ingest producers.
type ClientRepository interface {
	Lookup(ctx context.Context, apiKey string) (*model.APIClient, error)
}

// APIClientRepository looks keys up in MySQL and remembers the answer for a
// while, including misses.
type APIClientRepository struct {
	db    *gorm.DB
	cache *ttlcache.Cache[string, *model.APIClient]
}

func NewAPIClientRepository(db *gorm.DB, ttl time.Duration) *APIClientRepository {
	if ttl <= 0 {
		ttl = time.Minute
	}
	cache := ttlcache.New[string, *model.APIClient](
		ttlcache.WithTTL[string, *model.APIClient](ttl),
		ttlcache.WithDisableTouchOnHit[string, *model.APIClient](),
	)
	go cache.Start()
	return &APIClientRepository{db: db, cache: cache}
}

// Lookup returns the active client owning apiKey, or nil if there is none.
func (r *APIClientRepository) Lookup(ctx context.Context, apiKey string) (*model.APIClient, error) {
	if item := r.cache.Get(apiKey); item != nil {
		return item.Value(), nil
	}
	var client model.APIClient
	err := r.db.WithContext(ctx).
		Where("api_key = ? AND status = 1", apiKey).
		First(&client).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r.cache.Set(apiKey, nil, ttlcache.DefaultTTL)
			return nil, nil
		}
		return nil, err
	}
	r.cache.Set(apiKey, &client, ttlcache.DefaultTTL)
	return &client, nil
}

func (r *APIClientRepository) Close() {
	r.cache.Stop()
}
