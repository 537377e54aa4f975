package cache

import (
	"bytes"
	"context"
	"sync"
	"time"
)

// ServiceConfig configures the cache service.
type ServiceConfig struct {
	Capacity   int
	DefaultTTL time.Duration
	// SweepInterval is how often expired entries are dropped.
	SweepInterval time.Duration
}

func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Capacity:      defaultCapacity,
		DefaultTTL:    defaultTTL,
		SweepInterval: time.Minute,
	}
}

// Service is the CacheService used in front of the session store. Values are
// copied on the way in and out so callers may reuse their buffers.
type Service struct {
	lru *LRU[[]byte]

	stop chan struct{}
	done sync.WaitGroup
	once sync.Once
}

// NewService starts a cache with a background sweeper. Call Close to stop it.
func NewService(cfg ServiceConfig) *Service {
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultServiceConfig().SweepInterval
	}
	s := &Service{
		lru:  NewLRU[[]byte](cfg.Capacity, cfg.DefaultTTL),
		stop: make(chan struct{}),
	}
	s.done.Add(1)
	go s.sweep(cfg.SweepInterval)
	return s
}

// Close stops the sweeper. It is safe to call more than once.
func (s *Service) Close() {
	s.once.Do(func() { close(s.stop) })
	s.done.Wait()
}

func (s *Service) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := s.lru.Get(key)
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

func (s *Service) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.lru.Put(key, bytes.Clone(value), ttl)
	return nil
}

func (s *Service) Delete(_ context.Context, key string) error {
	s.lru.Remove(key)
	return nil
}

func (s *Service) Stats() Stats {
	return s.lru.Stats()
}

func (s *Service) sweep(interval time.Duration) {
	defer s.done.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.lru.Sweep()
		}
	}
}

var _ CacheService = (*Service)(nil)
