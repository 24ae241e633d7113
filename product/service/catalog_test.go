package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/product/response"
)

type mockClient struct {
	products   []response.Product
	categories []string
	err        error
	delay      time.Duration
	calls      atomic.Int32
}

func (m *mockClient) FindProducts(c context.Context) ([]response.Product, error) {
	m.calls.Add(1)
	select {
	case <-time.After(m.delay):
	case <-c.Done():
		return nil, c.Err()
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.products, nil
}

func (m *mockClient) FindProductById(_ context.Context, id int) (response.Product, error) {
	m.calls.Add(1)
	if m.err != nil {
		return response.Product{}, m.err
	}
	for _, p := range m.products {
		if p.ID == id {
			return p, nil
		}
	}
	return response.Product{}, inErrors.ErrProductNotFound
}

func (m *mockClient) FindProductsByCategory(_ context.Context, category string) ([]response.Product, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	products := []response.Product{}
	for _, p := range m.products {
		if p.Category == category {
			products = append(products, p)
		}
	}
	return products, nil
}

func (m *mockClient) FindCategories(context.Context) ([]string, error) {
	m.calls.Add(1)
	if m.err != nil {
		return nil, m.err
	}
	return m.categories, nil
}

func newTestContext() context.Context {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339Nano}).
		WithContext(context.Background())
}

func testProducts() []response.Product {
	return []response.Product{
		{ID: 1, Title: "Backpack", Price: decimal.NewFromInt(10), Category: "bags"},
		{ID: 2, Title: "Ring", Price: decimal.NewFromInt(5), Category: "jewelery"},
	}
}

func TestFetchAll(t *testing.T) {
	tests := []struct {
		name             string
		client           *mockClient
		fetches          int
		expectedProducts int
		expectedCalls    int32
		expectedErr      string
	}{
		{
			name:             "given reachable catalog should load products once",
			client:           &mockClient{products: testProducts()},
			fetches:          3,
			expectedProducts: 2,
			expectedCalls:    1,
		},
		{
			name:             "given failing catalog should record error and keep listing empty",
			client:           &mockClient{err: errors.New("failed to fetch products")},
			fetches:          2,
			expectedProducts: 0,
			expectedCalls:    2,
			expectedErr:      "failed to fetch products",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContext()
			svc := NewCatalogService(tt.client)

			for range tt.fetches {
				svc.FetchAll(c)
			}

			assert.Len(t, svc.Products(), tt.expectedProducts)
			assert.Equal(t, tt.expectedCalls, tt.client.calls.Load())
			assert.Equal(t, tt.expectedErr, svc.Err())
			assert.False(t, svc.Loading())
		})
	}
}

func TestFetchAllClearsPreviousError(t *testing.T) {
	c := newTestContext()
	client := &mockClient{err: errors.New("boom")}
	svc := NewCatalogService(client)

	svc.FetchAll(c)
	require.Equal(t, "boom", svc.Err())

	client.err = nil
	client.products = testProducts()
	svc.FetchAll(c)
	assert.Empty(t, svc.Err())
	assert.Len(t, svc.Products(), 2)
}

func TestFetchAllLoadingIsObservableWhileInFlight(t *testing.T) {
	c := newTestContext()
	client := &mockClient{products: testProducts(), delay: 200 * time.Millisecond}
	svc := NewCatalogService(client)

	done := make(chan struct{})
	go func() {
		svc.FetchAll(c)
		close(done)
	}()

	assert.Eventually(t, svc.Loading, time.Second, 5*time.Millisecond)
	<-done
	assert.False(t, svc.Loading())
}

func TestFetchAllCoalescesConcurrentCalls(t *testing.T) {
	c := newTestContext()
	client := &mockClient{products: testProducts(), delay: 100 * time.Millisecond}
	svc := NewCatalogService(client)

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.FetchAll(c)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, client.calls.Load())
	assert.Len(t, svc.Products(), 2)
}

func TestFetchAllSurvivesFirstCallerCancellation(t *testing.T) {
	client := &mockClient{products: testProducts(), delay: 200 * time.Millisecond}
	svc := NewCatalogService(client)

	first, cancel := context.WithCancel(newTestContext())
	go svc.FetchAll(first)
	require.Eventually(t, svc.Loading, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		svc.FetchAll(newTestContext())
		close(done)
	}()
	cancel()
	<-done

	assert.Empty(t, svc.Err())
	assert.Len(t, svc.Products(), 2)
	assert.EqualValues(t, 1, client.calls.Load())
}

func TestFetchById(t *testing.T) {
	tests := []struct {
		name        string
		id          int
		expectedNil bool
		expectedErr string
	}{
		{name: "given existing id should return product", id: 2},
		{
			name:        "given unknown id should return nil and record error",
			id:          99,
			expectedNil: true,
			expectedErr: inErrors.ErrProductNotFound.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContext()
			svc := NewCatalogService(&mockClient{products: testProducts()})

			product := svc.FetchById(c, tt.id)
			if tt.expectedNil {
				assert.Nil(t, product)
			} else {
				require.NotNil(t, product)
				assert.Equal(t, tt.id, product.ID)
			}
			assert.Equal(t, tt.expectedErr, svc.Err())
			assert.Empty(t, svc.Products(), "fetching by id should not touch the listing")
			assert.False(t, svc.Loading())
		})
	}
}

func TestFetchByCategory(t *testing.T) {
	c := newTestContext()
	client := &mockClient{products: testProducts()}
	svc := NewCatalogService(client)

	products := svc.FetchByCategory(c, "jewelery")
	require.Len(t, products, 1)
	assert.Equal(t, "Ring", products[0].Title)

	client.err = errors.New("failed to fetch products")
	products = svc.FetchByCategory(c, "jewelery")
	assert.NotNil(t, products)
	assert.Empty(t, products)
	assert.Equal(t, "failed to fetch products", svc.Err())
	assert.False(t, svc.Loading())
}

func TestFetchCategories(t *testing.T) {
	c := newTestContext()
	client := &mockClient{categories: []string{"bags", "jewelery"}}
	svc := NewCatalogService(client)

	assert.Equal(t, []string{"bags", "jewelery"}, svc.FetchCategories(c))

	client.err = errors.New("failed to fetch categories")
	categories := svc.FetchCategories(c)
	assert.NotNil(t, categories)
	assert.Empty(t, categories)
}
