package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	inErrors "github.com/Alturino/storefront/internal/errors"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/log"
	inOtel "github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/product/otel"
	"github.com/Alturino/storefront/product/service"
)

type ProductController struct {
	catalog *service.CatalogService
}

func AttachProductController(mux *mux.Router, catalog *service.CatalogService) {
	controller := ProductController{catalog: catalog}

	router := mux.PathPrefix("/products").Subrouter()
	router.HandleFunc("", controller.FindProducts).Methods(http.MethodGet)
	router.HandleFunc("/categories", controller.FindCategories).Methods(http.MethodGet)
	router.HandleFunc("/category/{category}", controller.FindProductsByCategory).
		Methods(http.MethodGet)
	router.HandleFunc("/{productId}", controller.FindProductById).Methods(http.MethodGet)
}

// FindProducts never fails: catalog errors are reported in the error field next to the listing.
func (ctrl ProductController) FindProducts(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "ProductController FindProducts")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "ProductController FindProducts").
		Str(log.KeyProcess, "fetching products").
		Logger()

	logger.Info().Msg("fetching products")
	c = logger.WithContext(c)
	ctrl.catalog.FetchAll(c)
	products := ctrl.catalog.Products()
	logger.Info().Int(log.KeyProducts, len(products)).Msg("fetched products")

	inHttp.WriteSuccess(c, w, http.StatusOK, "found products", map[string]interface{}{
		"products": products,
		"loading":  ctrl.catalog.Loading(),
		"error":    ctrl.catalog.Err(),
	})
}

func (ctrl ProductController) FindCategories(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "ProductController FindCategories")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "ProductController FindCategories").
		Str(log.KeyProcess, "fetching categories").
		Logger()

	logger.Info().Msg("fetching categories")
	c = logger.WithContext(c)
	categories := ctrl.catalog.FetchCategories(c)
	logger.Info().Msg("fetched categories")

	inHttp.WriteSuccess(c, w, http.StatusOK, "found categories", map[string]interface{}{
		"categories": categories,
	})
}

func (ctrl ProductController) FindProductsByCategory(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "ProductController FindProductsByCategory")
	defer span.End()

	category := mux.Vars(r)["category"]
	span.SetAttributes(attribute.String(log.KeyCategory, category))
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "ProductController FindProductsByCategory").
		Str(log.KeyCategory, category).
		Str(log.KeyProcess, "fetching products by category").
		Logger()

	logger.Info().Msg("fetching products by category")
	c = logger.WithContext(c)
	products := ctrl.catalog.FetchByCategory(c, category)
	logger.Info().Int(log.KeyProducts, len(products)).Msg("fetched products by category")

	inHttp.WriteSuccess(c, w, http.StatusOK, "found products", map[string]interface{}{
		"products": products,
	})
}

func (ctrl ProductController) FindProductById(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "ProductController FindProductById")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "ProductController FindProductById").
		Logger()

	logger = logger.With().Str(log.KeyProcess, "validating productId").Logger()
	logger.Trace().Msg("validating productId")
	id, err := strconv.Atoi(mux.Vars(r)["productId"])
	if err != nil {
		err = fmt.Errorf("failed validating productId with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusBadRequest, err)
		return
	}
	logger = logger.With().Int(log.KeyProductID, id).Logger()
	logger.Trace().Msg("validated productId")

	logger = logger.With().Str(log.KeyProcess, "fetching product").Logger()
	logger.Info().Msg("fetching product")
	c = logger.WithContext(c)
	product := ctrl.catalog.FetchById(c, id)
	if product == nil {
		err := CatalogError(ctrl.catalog.Err())
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, CatalogStatusCode(err), err)
		return
	}
	logger.Info().Msg("fetched product")

	inHttp.WriteSuccess(c, w, http.StatusOK, "found product", map[string]interface{}{
		"product": product,
	})
}

// CatalogError turns the message recorded by the catalog back into a sentinel error.
func CatalogError(message string) error {
	if strings.Contains(message, inErrors.ErrProductNotFound.Error()) {
		return fmt.Errorf("%w: %s", inErrors.ErrProductNotFound, message)
	}
	return fmt.Errorf("%w: %s", inErrors.ErrCatalogUnavailable, message)
}

func CatalogStatusCode(err error) int {
	if errors.Is(err, inErrors.ErrProductNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}
