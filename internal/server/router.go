package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"

	cartController "github.com/Alturino/storefront/cart/controller"
	"github.com/Alturino/storefront/internal/config"
	"github.com/Alturino/storefront/internal/constants"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/middleware"
	orderController "github.com/Alturino/storefront/order/controller"
	productController "github.com/Alturino/storefront/product/controller"
	productService "github.com/Alturino/storefront/product/service"
	"github.com/Alturino/storefront/session"
	sessionController "github.com/Alturino/storefront/session/controller"
)

// NewHandler builds the storefront HTTP API.
func NewHandler(
	cfg config.Application,
	catalog *productService.CatalogService,
	sessions *session.Manager,
) http.Handler {
	router := mux.NewRouter()
	router.StrictSlash(true)
	router.Use(
		otelmux.Middleware(constants.AppStorefront),
		middleware.Logging,
		middleware.RecoverPanic,
	)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	sessionController.AttachSessionController(router, sessions)
	productController.AttachProductController(router, catalog)
	cartController.AttachCartController(router, sessions)
	orderController.AttachOrderController(router, sessions)

	origins := cfg.CorsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			inHttp.KeyHeaderContentType,
			inHttp.KeyHeaderAuthorization,
			inHttp.KeyHeaderRequestID,
		},
		ExposedHeaders: []string{inHttp.KeyHeaderRequestID},
	}).Handler(router)
}
