package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/constants"
	inErrors "github.com/Alturino/storefront/internal/errors"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/log"
	inOtel "github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/product/otel"
	"github.com/Alturino/storefront/product/response"
)

// Client talks to the remote product catalog REST API. Every call is rate limited, bounded by
// the configured timeout and guarded by a circuit breaker.
type Client struct {
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[[]byte]
}

func NewClient(c context.Context, cfg config.Catalog) *Client {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CatalogClient NewClient").
		Str(log.KeyURL, cfg.BaseURL).
		Logger()

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}

	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    constants.AppCatalogClient,
		Timeout: cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, inErrors.ErrProductNotFound)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().
				Str(log.KeyBreakerState, to.String()).
				Msgf("circuit breaker %s changed from %s to %s", name, from.String(), to.String())
		},
	})

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(limit, burst),
		breaker: breaker,
	}
}

func (cl *Client) FindProducts(c context.Context) ([]response.Product, error) {
	products := []response.Product{}
	if err := cl.getJson(c, "FindProducts", &products, "products"); err != nil {
		return nil, fmt.Errorf("failed to fetch products with error=%w", err)
	}
	return products, nil
}

func (cl *Client) FindProductById(c context.Context, id int) (response.Product, error) {
	var product *response.Product
	if err := cl.getJson(c, "FindProductById", &product, "products", strconv.Itoa(id)); err != nil {
		return response.Product{}, fmt.Errorf("failed to fetch productId=%d with error=%w", id, err)
	}
	// the catalog answers 200 with an empty or null body for ids it does not know
	if product == nil {
		return response.Product{}, fmt.Errorf(
			"failed to fetch productId=%d with error=%w",
			id,
			inErrors.ErrProductNotFound,
		)
	}
	return *product, nil
}

func (cl *Client) FindProductsByCategory(
	c context.Context,
	category string,
) ([]response.Product, error) {
	products := []response.Product{}
	err := cl.getJson(c, "FindProductsByCategory", &products, "products", "category", category)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch products of category=%s with error=%w", category, err)
	}
	return products, nil
}

func (cl *Client) FindCategories(c context.Context) ([]string, error) {
	categories := []string{}
	if err := cl.getJson(c, "FindCategories", &categories, "products", "categories"); err != nil {
		return nil, fmt.Errorf("failed to fetch categories with error=%w", err)
	}
	return categories, nil
}

func (cl *Client) getJson(c context.Context, operation string, dst any, segments ...string) error {
	endpoint, err := url.JoinPath(cl.baseURL, segments...)
	if err != nil {
		return fmt.Errorf("failed building url with error=%w", err)
	}

	c, span := otel.Tracer.Start(
		c,
		"CatalogClient "+operation,
		trace.WithAttributes(attribute.String(log.KeyURL, endpoint)),
	)
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CatalogClient "+operation).
		Str(log.KeyURL, endpoint).
		Logger()

	logger = logger.With().Str(log.KeyProcess, "waiting rate limiter").Logger()
	logger.Trace().Msg("waiting rate limiter")
	if err := cl.limiter.Wait(c); err != nil {
		err = fmt.Errorf("failed waiting rate limiter with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}

	logger = logger.With().Str(log.KeyProcess, "requesting catalog").Logger()
	logger.Info().Msg("requesting catalog")
	span.AddEvent("requesting catalog")
	body, err := cl.breaker.Execute(func() ([]byte, error) { return cl.get(c, endpoint) })
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = errors.Join(inErrors.ErrCatalogUnavailable, err)
		}
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	span.AddEvent("requested catalog")
	logger.Info().Msg("requested catalog")

	logger = logger.With().Str(log.KeyProcess, "decoding response body").Logger()
	logger.Trace().Msg("decoding response body")
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		err = fmt.Errorf("failed decoding response body with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Trace().Msg("decoded response body")

	return nil
}

func (cl *Client) get(c context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(c, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed creating request with error=%w", err)
	}
	req.Header.Add("Accept", inHttp.ValueHeaderApplicationJson)
	if requestID := log.RequestIDFromContext(c); requestID != "" {
		req.Header.Add(inHttp.KeyHeaderRequestID, requestID)
	}

	resp, err := cl.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed requesting %s with error=%w", endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, inErrors.ErrProductNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf(
			"%w: catalog responded with status code=%d",
			inErrors.ErrCatalogUnavailable,
			resp.StatusCode,
		)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed reading response body with error=%w", err)
	}
	return body, nil
}
