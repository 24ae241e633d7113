package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Alturino/storefront/cart/otel"
	"github.com/Alturino/storefront/cart/response"
	"github.com/Alturino/storefront/cart/storage"
	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/log"
	inOtel "github.com/Alturino/storefront/internal/otel"
	productRes "github.com/Alturino/storefront/product/response"
)

var cartMutations = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "storefront",
	Subsystem: "cart",
	Name:      "mutations_total",
	Help:      "Cart mutations by operation.",
}, []string{"operation"})

// CartService is the cart of a single session. Every mutation is written through to storage
// under key.
type CartService struct {
	storage storage.Storage
	key     string

	mu     sync.Mutex
	items  []response.CartItem
	closed bool
}

func NewCartService(storage storage.Storage, key string) *CartService {
	return &CartService{storage: storage, key: key, items: []response.CartItem{}}
}

// Load replaces the in-memory lines with the persisted slot. A missing or unparsable slot yields
// an empty cart. Only a failing storage read is returned.
func (svc *CartService) Load(c context.Context) error {
	c, span := otel.Tracer.Start(
		c,
		"CartService Load",
		trace.WithAttributes(attribute.String(log.KeyStorageKey, svc.key)),
	)
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService Load").
		Str(log.KeyStorageKey, svc.key).
		Logger()

	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.items = []response.CartItem{}

	logger = logger.With().Str(log.KeyProcess, "reading cart items from storage").Logger()
	logger.Info().Msg("reading cart items from storage")
	value, err := svc.storage.Get(c, svc.key)
	if errors.Is(err, inErrors.ErrCacheMiss) {
		logger.Info().Msg("no persisted cart items")
		return nil
	}
	if err != nil {
		err = fmt.Errorf("failed reading cart items with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("read cart items from storage")

	logger = logger.With().Str(log.KeyProcess, "unmarshaling cart items").Logger()
	logger.Trace().Msg("unmarshaling cart items")
	items := []response.CartItem{}
	if err := json.Unmarshal(value, &items); err != nil {
		err = fmt.Errorf("failed unmarshaling cart items with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Warn().Err(err).Msg("discarding corrupt cart items")
		return nil
	}
	svc.items = merge(items)
	logger.Info().Int(log.KeyCartItems, len(svc.items)).Msg("loaded cart items")

	return nil
}

// merge folds duplicated or invalid lines from a hand edited slot so the one line per product
// invariant holds after Load.
func merge(items []response.CartItem) []response.CartItem {
	merged := []response.CartItem{}
	index := map[int]int{}
	for _, item := range items {
		if item.Quantity <= 0 {
			continue
		}
		if i, ok := index[item.ProductID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

// Close refuses every later mutation. A closed cart may no longer own its storage slot because a
// newer instance was built for the same session.
func (svc *CartService) Close() {
	svc.mu.Lock()
	svc.closed = true
	svc.mu.Unlock()
}

func (svc *CartService) Save(c context.Context) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.save(c)
}

func (svc *CartService) save(c context.Context) error {
	c, span := otel.Tracer.Start(c, "CartService save")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService save").
		Str(log.KeyStorageKey, svc.key).
		Int(log.KeyCartItems, len(svc.items)).
		Str(log.KeyProcess, "writing cart items to storage").
		Logger()

	if svc.closed {
		err := fmt.Errorf("failed writing cart items with error=%w", inErrors.ErrCartClosed)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	value, err := json.Marshal(svc.items)
	if err != nil {
		err = fmt.Errorf("failed marshaling cart items with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	logger.Trace().Msg("writing cart items to storage")
	if err := svc.storage.Set(c, svc.key, value); err != nil {
		err = fmt.Errorf("failed writing cart items with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Trace().Msg("wrote cart items to storage")

	return nil
}

func (svc *CartService) Add(c context.Context, product productRes.Product, quantity int) error {
	c, span := otel.Tracer.Start(
		c,
		"CartService Add",
		trace.WithAttributes(
			attribute.Int(log.KeyProductID, product.ID),
			attribute.Int(log.KeyCartItemQuantity, quantity),
		),
	)
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService Add").
		Int(log.KeyProductID, product.ID).
		Int(log.KeyCartItemQuantity, quantity).
		Logger()

	if quantity <= 0 {
		err := fmt.Errorf("failed adding productId=%d with error=%w", product.ID, inErrors.ErrInvalidQuantity)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.closed {
		return svc.closedError(span, logger)
	}

	logger = logger.With().Str(log.KeyProcess, "adding cart item").Logger()
	logger.Info().Msg("adding cart item")
	added := false
	for i := range svc.items {
		if svc.items[i].ProductID == product.ID {
			svc.items[i].Quantity += quantity
			added = true
			logger.Info().Int("newQuantity", svc.items[i].Quantity).Msg("incremented cart item")
			break
		}
	}
	if !added {
		svc.items = append(svc.items, response.CartItem{
			ProductID: product.ID,
			Title:     product.Title,
			Price:     product.Price,
			Image:     product.Image,
			Quantity:  quantity,
		})
		logger.Info().Msg("appended cart item")
	}
	cartMutations.WithLabelValues("add").Inc()

	return svc.save(c)
}

// UpdateQuantity reports whether a line was updated. Unknown ids and non positive quantities
// are a no-op and do not touch storage.
func (svc *CartService) UpdateQuantity(c context.Context, id int, quantity int) (bool, error) {
	c, span := otel.Tracer.Start(
		c,
		"CartService UpdateQuantity",
		trace.WithAttributes(
			attribute.Int(log.KeyProductID, id),
			attribute.Int(log.KeyCartItemQuantity, quantity),
		),
	)
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService UpdateQuantity").
		Int(log.KeyProductID, id).
		Int(log.KeyCartItemQuantity, quantity).
		Logger()

	if quantity <= 0 {
		logger.Info().Msg("ignoring non positive quantity")
		return false, nil
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.closed {
		return false, svc.closedError(span, logger)
	}

	logger = logger.With().Str(log.KeyProcess, "updating cart item quantity").Logger()
	logger.Info().Msg("updating cart item quantity")
	for i := range svc.items {
		if svc.items[i].ProductID != id {
			continue
		}
		svc.items[i].Quantity = quantity
		cartMutations.WithLabelValues("update_quantity").Inc()
		logger.Info().Msg("updated cart item quantity")
		if err := svc.save(c); err != nil {
			return true, err
		}
		return true, nil
	}
	logger.Info().Msg("cart item not found")

	return false, nil
}

func (svc *CartService) Remove(c context.Context, id int) error {
	c, span := otel.Tracer.Start(
		c,
		"CartService Remove",
		trace.WithAttributes(attribute.Int(log.KeyProductID, id)),
	)
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService Remove").
		Int(log.KeyProductID, id).
		Str(log.KeyProcess, "removing cart item").
		Logger()

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.closed {
		return svc.closedError(span, logger)
	}

	logger.Info().Msg("removing cart item")
	items := make([]response.CartItem, 0, len(svc.items))
	for _, item := range svc.items {
		if item.ProductID != id {
			items = append(items, item)
		}
	}
	if len(items) == len(svc.items) {
		logger.Info().Msg("cart item not found")
	} else {
		logger.Info().Msg("removed cart item")
	}
	svc.items = items
	cartMutations.WithLabelValues("remove").Inc()

	return svc.save(c)
}

func (svc *CartService) Clear(c context.Context) error {
	c, span := otel.Tracer.Start(c, "CartService Clear")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService Clear").
		Str(log.KeyProcess, "clearing cart").
		Logger()

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.closed {
		return svc.closedError(span, logger)
	}

	logger.Info().Int(log.KeyCartItems, len(svc.items)).Msg("clearing cart")
	svc.items = []response.CartItem{}
	cartMutations.WithLabelValues("clear").Inc()

	return svc.save(c)
}

// RemoveOrdered takes the ordered quantities out of the cart and drops lines that reach zero.
// Lines or quantities added after the snapshot was taken stay in the cart.
func (svc *CartService) RemoveOrdered(c context.Context, ordered []response.CartItem) error {
	c, span := otel.Tracer.Start(c, "CartService RemoveOrdered")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService RemoveOrdered").
		Str(log.KeyProcess, "removing ordered cart items").
		Logger()

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.closed {
		return svc.closedError(span, logger)
	}

	logger.Info().Int(log.KeyCartItems, len(ordered)).Msg("removing ordered cart items")
	quantities := make(map[int]int, len(ordered))
	for _, item := range ordered {
		quantities[item.ProductID] += item.Quantity
	}
	items := make([]response.CartItem, 0, len(svc.items))
	for _, item := range svc.items {
		item.Quantity -= quantities[item.ProductID]
		if item.Quantity > 0 {
			items = append(items, item)
		}
	}
	svc.items = items
	cartMutations.WithLabelValues("remove_ordered").Inc()
	logger.Info().Int(log.KeyCartItems, len(items)).Msg("removed ordered cart items")

	return svc.save(c)
}

func (svc *CartService) closedError(span trace.Span, logger zerolog.Logger) error {
	err := fmt.Errorf("failed mutating cart with error=%w", inErrors.ErrCartClosed)
	inOtel.RecordError(err, span)
	logger.Error().Err(err).Msg(err.Error())
	return err
}

func (svc *CartService) Items() []response.CartItem {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	items := make([]response.CartItem, len(svc.items))
	copy(items, svc.items)
	return items
}

func (svc *CartService) Total() decimal.Decimal {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return total(svc.items)
}

func (svc *CartService) Count() int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return count(svc.items)
}

// Cart returns a consistent snapshot of items and derived values.
func (svc *CartService) Cart() response.Cart {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	items := make([]response.CartItem, len(svc.items))
	copy(items, svc.items)
	return response.Cart{Items: items, Total: total(items), Count: count(items)}
}

func total(items []response.CartItem) decimal.Decimal {
	sum := decimal.Zero
	for _, item := range items {
		sum = sum.Add(item.Subtotal())
	}
	return sum
}

func count(items []response.CartItem) int {
	n := 0
	for _, item := range items {
		n += item.Quantity
	}
	return n
}
