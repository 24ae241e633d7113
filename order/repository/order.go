package repository

import (
	"context"
	"sync"

	"github.com/google/uuid"

	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/order/response"
)

// OrderRepository is the sink placed orders are appended to.
type OrderRepository interface {
	Append(c context.Context, order response.Order) error
	FindOrders(c context.Context) ([]response.Order, error)
	FindOrderById(c context.Context, id uuid.UUID) (response.Order, error)
}

// MemoryOrderRepository keeps the order history of one session in insertion order.
type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders []response.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: []response.Order{}}
}

func (r *MemoryOrderRepository) Append(_ context.Context, order response.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, order)
	return nil
}

func (r *MemoryOrderRepository) FindOrders(context.Context) ([]response.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	orders := make([]response.Order, len(r.orders))
	copy(orders, r.orders)
	return orders, nil
}

func (r *MemoryOrderRepository) FindOrderById(_ context.Context, id uuid.UUID) (response.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, order := range r.orders {
		if order.ID == id {
			return order, nil
		}
	}
	return response.Order{}, inErrors.ErrOrderNotFound
}
