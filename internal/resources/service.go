package resources

import (
	"context"
	"fmt"
	"strings"

	"github.com/odyssey-erp/slotbook/internal/platform/cache"
	"github.com/odyssey-erp/slotbook/internal/platform/httpx"
)

// ErrBinNotFound is returned for an unknown bin id.
var ErrBinNotFound = fmt.Errorf("resources: bin %w", httpx.ErrNotFound)

// Service serves cached, normalised resource lookups.
type Service struct {
	repo  Repository
	cache *cache.Versioned
}

// NewService builds Service. cache may be nil.
func NewService(repo Repository, c *cache.Versioned) *Service {
	return &Service{repo: repo, cache: c}
}

// Bins returns every bin with a non-empty id and name.
func (s *Service) Bins(ctx context.Context) ([]Bin, error) {
	key, err := s.cache.BuildKey(ctx, "bins")
	if err != nil {
		return nil, err
	}
	var bins []Bin
	err = s.cache.FetchJSON(ctx, key, &bins, func(ctx context.Context) (any, error) {
		raw, err := s.repo.ListBins(ctx)
		if err != nil {
			return nil, err
		}
		return cleanBins(raw), nil
	})
	if err != nil {
		return nil, err
	}
	if bins == nil {
		bins = []Bin{}
	}
	return bins, nil
}

// Bin looks up a single bin by id.
func (s *Service) Bin(ctx context.Context, id string) (Bin, error) {
	bins, err := s.Bins(ctx)
	if err != nil {
		return Bin{}, err
	}
	for _, b := range bins {
		if b.ID == id {
			return b, nil
		}
	}
	return Bin{}, fmt.Errorf("%w: %s", ErrBinNotFound, id)
}

// Products returns every product that carries a SKU.
func (s *Service) Products(ctx context.Context) ([]Product, error) {
	key, err := s.cache.BuildKey(ctx, "products")
	if err != nil {
		return nil, err
	}
	var products []Product
	err = s.cache.FetchJSON(ctx, key, &products, func(ctx context.Context) (any, error) {
		raw, err := s.repo.ListProducts(ctx)
		if err != nil {
			return nil, err
		}
		return cleanProducts(raw), nil
	})
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []Product{}
	}
	return products, nil
}

// Invalidate drops every cached lookup.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

func cleanBins(in []Bin) []Bin {
	out := make([]Bin, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, b := range in {
		b.Name = strings.TrimSpace(b.Name)
		if b.ID == "" || b.Name == "" {
			continue
		}
		if _, ok := seen[b.ID]; ok {
			continue
		}
		seen[b.ID] = struct{}{}
		out = append(out, b)
	}
	return out
}

func cleanProducts(in []Product) []Product {
	out := make([]Product, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, p := range in {
		p.SKU = strings.TrimSpace(p.SKU)
		if p.ID == "" || p.SKU == "" {
			continue
		}
		if _, ok := seen[p.SKU]; ok {
			continue
		}
		seen[p.SKU] = struct{}{}
		out = append(out, p)
	}
	return out
}
