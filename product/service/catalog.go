package service

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/Alturino/storefront/internal/log"
	inOtel "github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/product/otel"
	"github.com/Alturino/storefront/product/response"
)

var catalogFetches = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "storefront",
	Subsystem: "catalog",
	Name:      "fetches_total",
	Help:      "Remote catalog fetches by operation and result.",
}, []string{"operation", "result"})

type CatalogClient interface {
	FindProducts(c context.Context) ([]response.Product, error)
	FindProductById(c context.Context, id int) (response.Product, error)
	FindProductsByCategory(c context.Context, category string) ([]response.Product, error)
	FindCategories(c context.Context) ([]string, error)
}

// CatalogService keeps the product listing fetched from the remote catalog. Failures never
// leave this type as errors: they are stored in Err and callers poll Loading and Err.
type CatalogService struct {
	client CatalogClient
	group  singleflight.Group

	mu       sync.RWMutex
	products []response.Product
	inFlight int
	err      string
}

func NewCatalogService(client CatalogClient) *CatalogService {
	return &CatalogService{client: client, products: []response.Product{}}
}

func (svc *CatalogService) Products() []response.Product {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	products := make([]response.Product, len(svc.products))
	copy(products, svc.products)
	return products
}

func (svc *CatalogService) Loading() bool {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.inFlight > 0
}

func (svc *CatalogService) Err() string {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.err
}

func (svc *CatalogService) startLoading() {
	svc.mu.Lock()
	svc.inFlight++
	svc.err = ""
	svc.mu.Unlock()
}

func (svc *CatalogService) stopLoading() {
	svc.mu.Lock()
	svc.inFlight--
	svc.mu.Unlock()
}

func (svc *CatalogService) recordError(err error) {
	svc.mu.Lock()
	svc.err = err.Error()
	svc.mu.Unlock()
}

func (svc *CatalogService) loaded() bool {
	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return len(svc.products) > 0
}

// FetchAll loads the full listing once. A loaded listing is never refetched.
func (svc *CatalogService) FetchAll(c context.Context) {
	c, span := otel.Tracer.Start(c, "CatalogService FetchAll")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CatalogService FetchAll").
		Logger()

	if svc.loaded() {
		logger.Trace().Msg("products already loaded")
		span.AddEvent("products already loaded")
		return
	}

	// concurrent sessions share one in flight request, so it must outlive the caller that
	// started it. The client timeout still bounds it.
	shared := context.WithoutCancel(c)
	svc.group.Do("products", func() (interface{}, error) {
		if svc.loaded() {
			return nil, nil
		}

		svc.startLoading()
		defer svc.stopLoading()

		logger = logger.With().Str(log.KeyProcess, "fetching products").Logger()
		logger.Info().Msg("fetching products")
		span.AddEvent("fetching products")
		products, err := svc.client.FindProducts(shared)
		if err != nil {
			catalogFetches.WithLabelValues("fetch_all", "failure").Inc()
			inOtel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			svc.recordError(err)
			return nil, nil
		}
		catalogFetches.WithLabelValues("fetch_all", "success").Inc()

		svc.mu.Lock()
		svc.products = products
		svc.mu.Unlock()

		span.AddEvent("fetched products")
		logger.Info().Int(log.KeyProducts, len(products)).Msg("fetched products")
		return nil, nil
	})
}

// FetchById returns nil when the product cannot be retrieved and records why in Err. The
// listing and loading flag are left untouched.
func (svc *CatalogService) FetchById(c context.Context, id int) *response.Product {
	c, span := otel.Tracer.Start(
		c,
		"CatalogService FetchById",
		trace.WithAttributes(attribute.Int(log.KeyProductID, id)),
	)
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CatalogService FetchById").
		Int(log.KeyProductID, id).
		Str(log.KeyProcess, "fetching product").
		Logger()

	logger.Info().Msg("fetching product")
	product, err := svc.client.FindProductById(c, id)
	if err != nil {
		catalogFetches.WithLabelValues("fetch_by_id", "failure").Inc()
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		svc.recordError(err)
		return nil
	}
	catalogFetches.WithLabelValues("fetch_by_id", "success").Inc()
	logger.Info().Msg("fetched product")

	return &product
}

func (svc *CatalogService) FetchByCategory(c context.Context, category string) []response.Product {
	c, span := otel.Tracer.Start(
		c,
		"CatalogService FetchByCategory",
		trace.WithAttributes(attribute.String(log.KeyCategory, category)),
	)
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CatalogService FetchByCategory").
		Str(log.KeyCategory, category).
		Str(log.KeyProcess, "fetching products by category").
		Logger()

	svc.startLoading()
	defer svc.stopLoading()

	logger.Info().Msg("fetching products by category")
	products, err := svc.client.FindProductsByCategory(c, category)
	if err != nil {
		catalogFetches.WithLabelValues("fetch_by_category", "failure").Inc()
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		svc.recordError(err)
		return []response.Product{}
	}
	catalogFetches.WithLabelValues("fetch_by_category", "success").Inc()
	logger.Info().Int(log.KeyProducts, len(products)).Msg("fetched products by category")

	return products
}

func (svc *CatalogService) FetchCategories(c context.Context) []string {
	c, span := otel.Tracer.Start(c, "CatalogService FetchCategories")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CatalogService FetchCategories").
		Str(log.KeyProcess, "fetching categories").
		Logger()

	logger.Info().Msg("fetching categories")
	categories, err := svc.client.FindCategories(c)
	if err != nil {
		catalogFetches.WithLabelValues("fetch_categories", "failure").Inc()
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		svc.recordError(err)
		return []string{}
	}
	catalogFetches.WithLabelValues("fetch_categories", "success").Inc()
	logger.Info().Strs(log.KeyCategories, categories).Msg("fetched categories")

	return categories
}
