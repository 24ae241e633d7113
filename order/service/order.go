package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	cartRes "github.com/Alturino/storefront/cart/response"
	"github.com/Alturino/storefront/internal/config"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/log"
	inOtel "github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/order/otel"
	"github.com/Alturino/storefront/order/repository"
	"github.com/Alturino/storefront/order/request"
	"github.com/Alturino/storefront/order/response"
)

var ordersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "storefront",
	Subsystem: "order",
	Name:      "placed_total",
	Help:      "Checkout attempts by result.",
}, []string{"result"})

type Cart interface {
	Cart() cartRes.Cart
	RemoveOrdered(c context.Context, ordered []cartRes.CartItem) error
}

type Notifier interface {
	Success(c context.Context, message string)
	Error(c context.Context, message string)
	Info(c context.Context, message string)
}

type Pricing struct {
	Shipping decimal.Decimal
	TaxRate  decimal.Decimal
}

func DefaultPricing() Pricing {
	return Pricing{Shipping: decimal.NewFromInt(10), TaxRate: decimal.RequireFromString("0.10")}
}

func NewPricing(cfg config.Checkout) Pricing {
	return Pricing{Shipping: cfg.Shipping, TaxRate: cfg.TaxRate}
}

// OrderService turns the session cart into orders. Unlike the catalog it returns its failures,
// while still exposing them through Loading and Err.
type OrderService struct {
	cart     Cart
	repo     repository.OrderRepository
	notifier Notifier
	pricing  Pricing

	now   func() time.Time
	newID func() (uuid.UUID, error)

	mu         sync.Mutex
	loading    bool
	err        string
	lastNumber int64
}

func NewOrderService(
	cart Cart,
	repo repository.OrderRepository,
	notifier Notifier,
	pricing Pricing,
) *OrderService {
	return &OrderService{
		cart:     cart,
		repo:     repo,
		notifier: notifier,
		pricing:  pricing,
		now:      time.Now,
		newID:    uuid.NewRandom,
	}
}

func (svc *OrderService) Loading() bool {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.loading
}

func (svc *OrderService) Err() string {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.err
}

func (svc *OrderService) setLoading(loading bool) {
	svc.mu.Lock()
	svc.loading = loading
	svc.mu.Unlock()
}

func (svc *OrderService) recordError(err error) {
	svc.mu.Lock()
	svc.err = err.Error()
	svc.mu.Unlock()
}

// orderNumber is derived from the clock and strictly increasing within a session.
func (svc *OrderService) orderNumber(now time.Time) string {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	number := now.UnixMilli()
	if number <= svc.lastNumber {
		number = svc.lastNumber + 1
	}
	svc.lastNumber = number
	return fmt.Sprintf("ORD-%d", number)
}

// PlaceOrder builds an order from one snapshot of the cart, appends it to the history and then
// takes the ordered lines out of the cart. An empty cart returns errors.ErrEmptyCart and nothing
// is changed.
func (svc *OrderService) PlaceOrder(c context.Context, form request.CheckoutForm) (response.Order, error) {
	c, span := otel.Tracer.Start(c, "OrderService PlaceOrder")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderService PlaceOrder").
		Logger()

	snapshot := svc.cart.Cart()
	items := snapshot.Items
	if len(items) == 0 {
		err := fmt.Errorf("failed placing order with error=%w", inErrors.ErrEmptyCart)
		ordersPlaced.WithLabelValues("empty_cart").Inc()
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		svc.recordError(inErrors.ErrEmptyCart)
		svc.notifier.Error(c, inErrors.ErrEmptyCart.Error())
		return response.Order{}, err
	}

	svc.mu.Lock()
	svc.loading = true
	svc.err = ""
	svc.mu.Unlock()
	defer svc.setLoading(false)

	logger = logger.With().Str(log.KeyProcess, "computing order totals").Logger()
	logger.Info().Msg("computing order totals")
	subtotal := snapshot.Total
	shipping := svc.pricing.Shipping
	tax := subtotal.Mul(svc.pricing.TaxRate)
	total := subtotal.Add(shipping).Add(tax)
	logger.Info().
		Str("subtotal", subtotal.String()).
		Str("tax", tax.String()).
		Str(log.KeyCartTotal, total.String()).
		Msg("computed order totals")

	logger = logger.With().Str(log.KeyProcess, "generating order id").Logger()
	logger.Info().Msg("generating order id")
	id, err := svc.newID()
	if err != nil {
		err = fmt.Errorf("failed generating order id with error=%w", err)
		ordersPlaced.WithLabelValues("failure").Inc()
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		svc.recordError(err)
		svc.notifier.Error(c, "failed to place order")
		return response.Order{}, err
	}
	createdAt := svc.now()
	logger = logger.With().Str(log.KeyOrderID, id.String()).Logger()
	logger.Info().Msg("generated order id")
	span.SetAttributes(attribute.String(log.KeyOrderID, id.String()))

	orderItems := make([]response.OrderItem, 0, len(items))
	for _, item := range items {
		orderItems = append(orderItems, response.OrderItem{
			ProductID: item.ProductID,
			Title:     item.Title,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Image:     item.Image,
		})
	}
	order := response.Order{
		ID:          id,
		OrderNumber: svc.orderNumber(createdAt),
		UserEmail:   form.Email,
		UserName:    form.FirstName + " " + form.LastName,
		Phone:       form.Phone,
		ShippingAddress: response.ShippingAddress{
			Address:    form.Address,
			City:       form.City,
			PostalCode: form.PostalCode,
			Country:    form.Country,
		},
		Items:     orderItems,
		Subtotal:  subtotal,
		Shipping:  shipping,
		Tax:       tax,
		Total:     total,
		Status:    response.StatusConfirmed,
		CreatedAt: createdAt,
	}
	logger = logger.With().Str(log.KeyOrderNumber, order.OrderNumber).Logger()

	logger = logger.With().Str(log.KeyProcess, "appending order to history").Logger()
	logger.Info().Msg("appending order to history")
	if err := svc.repo.Append(c, order); err != nil {
		err = fmt.Errorf("failed appending order with error=%w", err)
		ordersPlaced.WithLabelValues("failure").Inc()
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		svc.recordError(err)
		svc.notifier.Error(c, "failed to place order")
		return response.Order{}, err
	}
	logger.Info().Msg("appended order to history")

	logger = logger.With().Str(log.KeyProcess, "removing ordered items from cart").Logger()
	logger.Info().Msg("removing ordered items from cart")
	if err := svc.cart.RemoveOrdered(c, items); err != nil {
		// the order exists already, returning an error here would invite a second checkout
		err = fmt.Errorf("failed persisting cleared cart with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
	} else {
		logger.Info().Msg("removed ordered items from cart")
	}

	ordersPlaced.WithLabelValues("success").Inc()
	span.AddEvent("placed order")
	logger.Info().Str(log.KeyCartTotal, total.String()).Msg("placed order")
	svc.notifier.Success(c, fmt.Sprintf("Order %s placed successfully", order.OrderNumber))

	return order, nil
}

func (svc *OrderService) Orders(c context.Context) ([]response.Order, error) {
	c, span := otel.Tracer.Start(c, "OrderService Orders")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderService Orders").
		Str(log.KeyProcess, "finding orders").
		Logger()

	logger.Info().Msg("finding orders")
	orders, err := svc.repo.FindOrders(c)
	if err != nil {
		err = fmt.Errorf("failed finding orders with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	logger.Info().Int(log.KeyOrders, len(orders)).Msg("found orders")

	return orders, nil
}

func (svc *OrderService) FindOrderById(c context.Context, id uuid.UUID) (response.Order, error) {
	c, span := otel.Tracer.Start(
		c,
		"OrderService FindOrderById",
		trace.WithAttributes(attribute.String(log.KeyOrderID, id.String())),
	)
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderService FindOrderById").
		Str(log.KeyOrderID, id.String()).
		Str(log.KeyProcess, "finding order by id").
		Logger()

	logger.Info().Msg("finding order by id")
	order, err := svc.repo.FindOrderById(c, id)
	if err != nil {
		err = fmt.Errorf("failed finding orderId=%s with error=%w", id.String(), err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return response.Order{}, err
	}
	logger.Info().Msg("found order by id")

	return order, nil
}
