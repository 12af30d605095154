package repository

import (
	"context"
	"fmt"
	"sync"

	"ChainPulse/internal/domain/models"
	"ChainPulse/internal/domain/repository"
)

// MemoryAssetRegistry is an in-process AssetRegistry. The tracked set
// is small and rebuilt from config/defaults at every start, so nothing
// heavier is needed here.
type MemoryAssetRegistry struct {
	mu     sync.RWMutex
	bySym  map[string]*models.Asset
	sorted []*models.Asset
}

// NewMemoryAssetRegistry creates an empty registry, optionally
// pre-populated.
func NewMemoryAssetRegistry(initial []*models.Asset) repository.AssetRegistry {
	r := &MemoryAssetRegistry{bySym: make(map[string]*models.Asset)}
	if len(initial) > 0 {
		_ = r.Seed(context.Background(), initial)
	}
	return r
}

func (r *MemoryAssetRegistry) List(ctx context.Context) ([]*models.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.Asset, len(r.sorted))
	for i, a := range r.sorted {
		cp := *a
		out[i] = &cp
	}
	return out, nil
}

func (r *MemoryAssetRegistry) Seed(ctx context.Context, assets []*models.Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range assets {
		if a == nil || a.Symbol == "" {
			continue
		}
		if _, exists := r.bySym[a.Symbol]; exists {
			continue
		}
		cp := *a
		r.bySym[cp.Symbol] = &cp
		r.sorted = append(r.sorted, &cp)
	}
	return nil
}

func (r *MemoryAssetRegistry) UpdateMarket(ctx context.Context, symbol string, price, marketCap float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.bySym[symbol]
	if !ok {
		return fmt.Errorf("unknown asset %s", symbol)
	}
	if price > 0 {
		a.Price = price
	}
	if marketCap > 0 {
		a.MarketCap = marketCap
	}
	return nil
}

func (r *MemoryAssetRegistry) Get(ctx context.Context, symbol string) (*models.Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.bySym[symbol]
	if !ok {
		return nil, fmt.Errorf("unknown asset %s", symbol)
	}
	cp := *a
	return &cp, nil
}
