package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"FinRange/internal/domain/models"
	domrepo "FinRange/internal/domain/repository"
	pkgcache "FinRange/pkg/cache"
)

const stateKey = "scheduler:state"

// CacheState persists scheduler state and hands out job locks through a
// cache.Service, so the same code runs on Redis or the in-memory cache.
type CacheState struct {
	cache pkgcache.Service
}

func NewCacheState(c pkgcache.Service) *CacheState {
	return &CacheState{cache: c}
}

func (s *CacheState) Load(ctx context.Context) (models.SchedulerState, error) {
	var st models.SchedulerState
	err := s.cache.Get(ctx, stateKey, &st)
	if errors.Is(err, pkgcache.ErrCacheMiss) {
		return models.SchedulerState{}, nil
	}
	if err != nil {
		return models.SchedulerState{}, fmt.Errorf("load scheduler state: %w", err)
	}
	return st, nil
}

func (s *CacheState) Save(ctx context.Context, st models.SchedulerState) error {
	if err := s.cache.Set(ctx, stateKey, st, 0); err != nil {
		return fmt.Errorf("save scheduler state: %w", err)
	}
	return nil
}

func (s *CacheState) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.cache.TryLock(ctx, key, ttl)
}

func (s *CacheState) Unlock(ctx context.Context, key string) error {
	return s.cache.Unlock(ctx, key)
}

var (
	_ domrepo.StateStore = (*CacheState)(nil)
	_ domrepo.Locker     = (*CacheState)(nil)
)
