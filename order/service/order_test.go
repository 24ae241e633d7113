package service

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cartRes "github.com/Alturino/storefront/cart/response"
	cartService "github.com/Alturino/storefront/cart/service"
	"github.com/Alturino/storefront/cart/storage"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/order/repository"
	"github.com/Alturino/storefront/order/request"
	"github.com/Alturino/storefront/order/response"
	productRes "github.com/Alturino/storefront/product/response"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (n *recordingNotifier) record(level string, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, level+": "+message)
}

func (n *recordingNotifier) Success(_ context.Context, message string) { n.record("success", message) }
func (n *recordingNotifier) Error(_ context.Context, message string)   { n.record("error", message) }
func (n *recordingNotifier) Info(_ context.Context, message string)    { n.record("info", message) }

type failingRepository struct {
	repository.OrderRepository
}

func (failingRepository) Append(context.Context, response.Order) error {
	return errors.New("order sink unavailable")
}

// concurrentAddCart adds a line right after the order snapshot is taken, like a request for the
// same session landing mid checkout.
type concurrentAddCart struct {
	*cartService.CartService
	t *testing.T
	c context.Context
}

func (cart concurrentAddCart) Cart() cartRes.Cart {
	snapshot := cart.CartService.Cart()
	product := productRes.Product{ID: 9, Title: "late", Price: decimal.NewFromInt(100)}
	require.NoError(cart.t, cart.CartService.Add(cart.c, product, 1))
	return snapshot
}

func newTestContext() context.Context {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339Nano}).
		WithContext(context.Background())
}

func testForm() request.CheckoutForm {
	return request.CheckoutForm{
		FirstName:  "Ada",
		LastName:   "Lovelace",
		Email:      "ada@example.com",
		Phone:      "555-0100",
		Address:    "12 Analytical St",
		City:       "London",
		PostalCode: "N1 9GU",
		Country:    "UK",
		CardNumber: "4242424242424242",
		CardExpiry: "12/30",
		CardCvc:    "123",
	}
}

func newTestCart(t *testing.T, c context.Context, lines ...[3]int64) *cartService.CartService {
	t.Helper()
	cart := cartService.NewCartService(storage.NewMemoryStorage(), "cart_items:test")
	for _, line := range lines {
		product := productRes.Product{
			ID:    int(line[0]),
			Title: "product",
			Price: decimal.NewFromInt(line[1]),
		}
		require.NoError(t, cart.Add(c, product, int(line[2])))
	}
	return cart
}

func TestPlaceOrder(t *testing.T) {
	tests := []struct {
		name             string
		lines            [][3]int64
		expectedErr      error
		expectedSubtotal string
		expectedTax      string
		expectedTotal    string
		expectedOrders   int
	}{
		{
			name:             "given two lines should compute subtotal shipping tax and total",
			lines:            [][3]int64{{1, 10, 2}, {2, 5, 1}},
			expectedSubtotal: "25",
			expectedTax:      "2.5",
			expectedTotal:    "37.5",
			expectedOrders:   1,
		},
		{
			name:             "given single line should add flat shipping",
			lines:            [][3]int64{{7, 100, 1}},
			expectedSubtotal: "100",
			expectedTax:      "10",
			expectedTotal:    "120",
			expectedOrders:   1,
		},
		{
			name:           "given empty cart should fail with empty cart",
			expectedErr:    inErrors.ErrEmptyCart,
			expectedOrders: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestContext()
			cart := newTestCart(t, c, tt.lines...)
			repo := repository.NewMemoryOrderRepository()
			notifier := &recordingNotifier{}
			svc := NewOrderService(cart, repo, notifier, DefaultPricing())

			order, err := svc.PlaceOrder(c, testForm())

			orders, findErr := svc.Orders(c)
			require.NoError(t, findErr)
			assert.Len(t, orders, tt.expectedOrders)
			assert.False(t, svc.Loading())

			if tt.expectedErr != nil {
				assert.ErrorIs(t, err, tt.expectedErr)
				assert.Equal(t, tt.expectedErr.Error(), svc.Err())
				assert.Equal(t, []string{"error: " + tt.expectedErr.Error()}, notifier.messages)
				return
			}

			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.expectedSubtotal).Equal(order.Subtotal))
			assert.True(t, decimal.NewFromInt(10).Equal(order.Shipping))
			assert.True(t, decimal.RequireFromString(tt.expectedTax).Equal(order.Tax))
			assert.True(t, decimal.RequireFromString(tt.expectedTotal).Equal(order.Total))
			assert.Equal(t, response.StatusConfirmed, order.Status)
			assert.Len(t, order.Items, len(tt.lines))
			assert.Equal(t, "ada@example.com", order.UserEmail)
			assert.Equal(t, "Ada Lovelace", order.UserName)
			assert.Equal(t, "London", order.ShippingAddress.City)
			assert.NotEqual(t, uuid.Nil, order.ID)
			assert.Regexp(t, `^ORD-\d+$`, order.OrderNumber)
			assert.Empty(t, cart.Items(), "cart should be empty once the order is returned")
			assert.Empty(t, svc.Err())
			assert.Len(t, notifier.messages, 1)
		})
	}
}

func TestPlaceOrderIdFailureKeepsCart(t *testing.T) {
	c := newTestContext()
	cart := newTestCart(t, c, [3]int64{1, 10, 2})
	repo := repository.NewMemoryOrderRepository()
	svc := NewOrderService(cart, repo, &recordingNotifier{}, DefaultPricing())
	svc.newID = func() (uuid.UUID, error) { return uuid.Nil, errors.New("entropy exhausted") }

	_, err := svc.PlaceOrder(c, testForm())
	assert.ErrorContains(t, err, "entropy exhausted")
	assert.Contains(t, svc.Err(), "entropy exhausted")
	assert.False(t, svc.Loading())
	assert.Len(t, cart.Items(), 1)

	orders, err := svc.Orders(c)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPlaceOrderAppendFailureKeepsCart(t *testing.T) {
	c := newTestContext()
	cart := newTestCart(t, c, [3]int64{1, 10, 2})
	svc := NewOrderService(cart, failingRepository{}, &recordingNotifier{}, DefaultPricing())

	_, err := svc.PlaceOrder(c, testForm())
	assert.ErrorContains(t, err, "order sink unavailable")
	assert.Len(t, cart.Items(), 1)
}

func TestPlaceOrderUsesConfiguredPricing(t *testing.T) {
	c := newTestContext()
	cart := newTestCart(t, c, [3]int64{1, 50, 2})
	pricing := Pricing{Shipping: decimal.Zero, TaxRate: decimal.RequireFromString("0.2")}
	svc := NewOrderService(cart, repository.NewMemoryOrderRepository(), &recordingNotifier{}, pricing)

	order, err := svc.PlaceOrder(c, testForm())
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(120).Equal(order.Total))
}

func TestOrderNumbersAreUnique(t *testing.T) {
	c := newTestContext()
	now := time.UnixMilli(1_700_000_000_000)
	repo := repository.NewMemoryOrderRepository()
	cart := newTestCart(t, c)
	svc := NewOrderService(cart, repo, &recordingNotifier{}, DefaultPricing())
	svc.now = func() time.Time { return now }

	numbers := map[string]bool{}
	for range 3 {
		require.NoError(t, cart.Add(c, productRes.Product{ID: 1, Price: decimal.NewFromInt(1)}, 1))
		order, err := svc.PlaceOrder(c, testForm())
		require.NoError(t, err)
		numbers[order.OrderNumber] = true
	}
	assert.Len(t, numbers, 3)
	assert.True(t, numbers["ORD-1700000000000"])
}

func TestFindOrderById(t *testing.T) {
	c := newTestContext()
	cart := newTestCart(t, c, [3]int64{1, 10, 1})
	svc := NewOrderService(cart, repository.NewMemoryOrderRepository(), &recordingNotifier{}, DefaultPricing())

	placed, err := svc.PlaceOrder(c, testForm())
	require.NoError(t, err)

	found, err := svc.FindOrderById(c, placed.ID)
	require.NoError(t, err)
	assert.Equal(t, placed.OrderNumber, found.OrderNumber)

	_, err = svc.FindOrderById(c, uuid.New())
	assert.ErrorIs(t, err, inErrors.ErrOrderNotFound)
}

func TestPlaceOrderKeepsItemsAddedDuringCheckout(t *testing.T) {
	c := newTestContext()
	cart := newTestCart(t, c, [3]int64{1, 10, 2})
	svc := NewOrderService(
		concurrentAddCart{CartService: cart, t: t, c: c},
		repository.NewMemoryOrderRepository(),
		&recordingNotifier{},
		DefaultPricing(),
	)

	order, err := svc.PlaceOrder(c, testForm())
	require.NoError(t, err)

	require.Len(t, order.Items, 1)
	assert.Equal(t, 1, order.Items[0].ProductID)
	assert.True(t, decimal.NewFromInt(20).Equal(order.Subtotal), "subtotal=%s", order.Subtotal)
	assert.True(t, decimal.NewFromInt(32).Equal(order.Total), "total=%s", order.Total)

	remaining := cart.Items()
	require.Len(t, remaining, 1, "late line should survive checkout")
	assert.Equal(t, 9, remaining[0].ProductID)
	assert.Equal(t, 1, remaining[0].Quantity)
}
