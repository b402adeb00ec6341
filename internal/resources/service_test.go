package resources

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/slotbook/internal/platform/cache"
	"github.com/odyssey-erp/slotbook/internal/platform/httpx"
)

type stubRepo struct {
	bins         []Bin
	products     []Product
	binCalls     int
	productCalls int
}

func (s *stubRepo) ListBins(ctx context.Context) ([]Bin, error) {
	s.binCalls++
	return s.bins, nil
}

func (s *stubRepo) ListProducts(ctx context.Context) ([]Product, error) {
	s.productCalls++
	return s.products, nil
}

func newTestService(t *testing.T, repo Repository) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(repo, cache.NewVersioned(client, "resources", time.Minute))
}

func TestBinsAreCleanedAndCached(t *testing.T) {
	repo := &stubRepo{bins: []Bin{
		{ID: "b1", Name: " Small ", Width: decimal.RequireFromString("12.5")},
		{ID: "", Name: "orphan"},
		{ID: "b2", Name: "   "},
		{ID: "b1", Name: "dup"},
	}}
	svc := newTestService(t, repo)
	ctx := context.Background()

	bins, err := svc.Bins(ctx)
	require.NoError(t, err)
	require.Len(t, bins, 1)
	require.Equal(t, "Small", bins[0].Name)
	require.True(t, bins[0].Width.Equal(decimal.RequireFromString("12.5")))

	_, err = svc.Bins(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, repo.binCalls)

	require.NoError(t, svc.Invalidate(ctx))
	_, err = svc.Bins(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, repo.binCalls)
}

func TestBinLookupNotFound(t *testing.T) {
	svc := newTestService(t, &stubRepo{bins: []Bin{{ID: "b1", Name: "Small"}}})

	_, err := svc.Bin(context.Background(), "missing")
	require.ErrorIs(t, err, httpx.ErrNotFound)

	bin, err := svc.Bin(context.Background(), "b1")
	require.NoError(t, err)
	require.Equal(t, "Small", bin.Name)
}

func TestProductsDropBlankAndDuplicateSKUs(t *testing.T) {
	repo := &stubRepo{products: []Product{
		{ID: "p1", SKU: "SKU-1", Name: "Widget"},
		{ID: "p2", SKU: "", Name: "No sku"},
		{ID: "p3", SKU: "SKU-1", Name: "Widget again"},
	}}
	svc := newTestService(t, repo)

	products, err := svc.Products(context.Background())
	require.NoError(t, err)
	require.Equal(t, []Product{{ID: "p1", SKU: "SKU-1", Name: "Widget"}}, products)
}

func TestEmptyRepositoryYieldsEmptySlices(t *testing.T) {
	svc := NewService(&stubRepo{}, nil)

	bins, err := svc.Bins(context.Background())
	require.NoError(t, err)
	require.NotNil(t, bins)
	require.Empty(t, bins)
}
