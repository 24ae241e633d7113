package session

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alturino/storefront/cart/storage"
	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/constants"
	inErrors "github.com/Alturino/storefront/internal/errors"
	productRes "github.com/Alturino/storefront/product/response"
)

// blockingStorage holds reads of one key until release is closed.
type blockingStorage struct {
	*storage.MemoryStorage
	key     string
	entered chan struct{}
	release chan struct{}
}

func (b blockingStorage) Get(c context.Context, key string) ([]byte, error) {
	if key == b.key {
		select {
		case b.entered <- struct{}{}:
		default:
		}
		<-b.release
	}
	return b.MemoryStorage.Get(c, key)
}

func newTestManager(store storage.Storage) *Manager {
	cfg := config.Config{
		Checkout: config.Checkout{
			Shipping: decimal.NewFromInt(10),
			TaxRate:  decimal.RequireFromString("0.10"),
		},
		Session:      config.Session{SecretKey: testSecret, TTL: time.Hour, SweepTick: time.Minute},
		Notification: config.Notification{Driver: "log"},
	}
	return NewManager(nil, store, nil, cfg)
}

func TestManagerCreateIssuesVerifiableToken(t *testing.T) {
	c := newTestContext()
	m := newTestManager(storage.NewMemoryStorage())

	s, token, err := m.Create(c)
	require.NoError(t, err)
	require.NotNil(t, s)

	id, err := m.VerifyToken(c, token)
	require.NoError(t, err)
	assert.Equal(t, s.ID, id)
	assert.Equal(t, 1, m.Len())
}

func TestManagerGetReturnsSameSession(t *testing.T) {
	c := newTestContext()
	m := newTestManager(storage.NewMemoryStorage())

	first, err := m.Get(c, "abc")
	require.NoError(t, err)
	second, err := m.Get(c, "abc")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestManagerRehydratesCartAfterClose(t *testing.T) {
	c := newTestContext()
	m := newTestManager(storage.NewMemoryStorage())

	s, err := m.Get(c, "abc")
	require.NoError(t, err)
	require.NoError(t, s.Cart.Add(c, productRes.Product{ID: 1, Price: decimal.NewFromInt(10)}, 2))

	m.Close(c, "abc")
	assert.Zero(t, m.Len())

	s, err = m.Get(c, "abc")
	require.NoError(t, err)
	require.Len(t, s.Cart.Items(), 1)
	assert.Equal(t, 2, s.Cart.Items()[0].Quantity)
}

func TestManagerSessionsAreIsolated(t *testing.T) {
	c := newTestContext()
	m := newTestManager(storage.NewMemoryStorage())

	a, err := m.Get(c, "a")
	require.NoError(t, err)
	b, err := m.Get(c, "b")
	require.NoError(t, err)

	require.NoError(t, a.Cart.Add(c, productRes.Product{ID: 1, Price: decimal.NewFromInt(10)}, 1))
	assert.Empty(t, b.Cart.Items())
}

func TestManagerSweepEvictsIdleSessions(t *testing.T) {
	c := newTestContext()
	now := time.Now()
	m := newTestManager(storage.NewMemoryStorage())
	m.now = func() time.Time { return now }

	_, err := m.Get(c, "idle")
	require.NoError(t, err)

	now = now.Add(30 * time.Minute)
	_, err = m.Get(c, "fresh")
	require.NoError(t, err)

	now = now.Add(45 * time.Minute)
	assert.Equal(t, 1, m.Sweep(c))
	assert.Equal(t, 1, m.Len())

	_, err = m.Get(c, "fresh")
	require.NoError(t, err)
	assert.Zero(t, m.Sweep(c))
}

func TestFromContext(t *testing.T) {
	c := newTestContext()
	_, ok := FromContext(c)
	assert.False(t, ok)

	s := &Session{ID: "abc"}
	got, ok := FromContext(AttachSessionToContext(c, s))
	require.True(t, ok)
	assert.Same(t, s, got)
}

func TestManagerSlowCartLoadDoesNotBlockOtherSessions(t *testing.T) {
	c := newTestContext()
	store := blockingStorage{
		MemoryStorage: storage.NewMemoryStorage(),
		key:           fmt.Sprintf(constants.KeyCartItems, "slow"),
		entered:       make(chan struct{}, 1),
		release:       make(chan struct{}),
	}
	m := newTestManager(store)

	var wg sync.WaitGroup
	sessions := make([]*Session, 2)
	for i := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := m.Get(c, "slow")
			assert.NoError(t, err)
			sessions[i] = s
		}()
	}
	<-store.entered

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := m.Get(c, "fast")
		assert.NoError(t, err)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("building one session should not wait on another session's storage read")
	}

	close(store.release)
	wg.Wait()
	require.NotNil(t, sessions[0])
	assert.Same(t, sessions[0], sessions[1], "concurrent builds should settle on one session")
	assert.Equal(t, 2, m.Len())
}

func TestManagerEvictedCartRefusesWrites(t *testing.T) {
	tests := []struct {
		name  string
		evict func(c context.Context, m *Manager, now *time.Time)
	}{
		{
			name: "given swept session should refuse writes from stale holders",
			evict: func(c context.Context, m *Manager, now *time.Time) {
				*now = now.Add(2 * time.Hour)
				m.Sweep(c)
			},
		},
		{
			name: "given closed session should refuse writes from stale holders",
			evict: func(c context.Context, m *Manager, _ *time.Time) {
				m.Close(c, "abc")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContext()
			now := time.Now()
			m := newTestManager(storage.NewMemoryStorage())
			m.now = func() time.Time { return now }

			stale, err := m.Get(c, "abc")
			require.NoError(t, err)
			require.NoError(t, stale.Cart.Add(c, productRes.Product{ID: 1, Price: decimal.NewFromInt(10)}, 1))

			tt.evict(c, m, &now)
			require.Zero(t, m.Len())

			fresh, err := m.Get(c, "abc")
			require.NoError(t, err)
			require.NotSame(t, stale, fresh)
			require.NoError(t, fresh.Cart.Add(c, productRes.Product{ID: 2, Price: decimal.NewFromInt(5)}, 3))

			err = stale.Cart.Clear(c)
			assert.ErrorIs(t, err, inErrors.ErrCartClosed)
			assert.Len(t, stale.Cart.Items(), 1, "refused mutation should not change the stale cart")

			reloaded, err := m.Get(c, "abc")
			require.NoError(t, err)
			assert.Len(t, reloaded.Cart.Items(), 2)
		})
	}
}
