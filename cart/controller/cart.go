package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Alturino/storefront/cart/otel"
	"github.com/Alturino/storefront/cart/request"
	inErrors "github.com/Alturino/storefront/internal/errors"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/middleware"
	inOtel "github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/internal/validate"
	productController "github.com/Alturino/storefront/product/controller"
	"github.com/Alturino/storefront/session"
)

type CartController struct{}

func AttachCartController(mux *mux.Router, sessions middleware.SessionProvider) {
	controller := CartController{}

	router := mux.PathPrefix("/carts").Subrouter()
	router.Use(middleware.Auth(sessions))
	router.HandleFunc("", controller.FindCart).Methods(http.MethodGet)
	router.HandleFunc("", controller.ClearCart).Methods(http.MethodDelete)
	router.HandleFunc("/items", controller.AddCartItem).Methods(http.MethodPost)
	router.HandleFunc("/items/{productId}", controller.UpdateCartItem).Methods(http.MethodPut)
	router.HandleFunc("/items/{productId}", controller.RemoveCartItem).Methods(http.MethodDelete)
}

func sessionFromRequest(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	s, ok := session.FromContext(r.Context())
	if !ok {
		inHttp.WriteFailed(r.Context(), w, http.StatusUnauthorized, inErrors.ErrSessionNotFound)
	}
	return s, ok
}

func productIdFromRequest(r *http.Request) (int, error) {
	id, err := strconv.Atoi(mux.Vars(r)["productId"])
	if err != nil {
		return 0, fmt.Errorf("failed validating productId with error=%w", err)
	}
	return id, nil
}

func (ctrl CartController) FindCart(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController FindCart")
	defer span.End()

	s, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}
	cart := s.Cart.Cart()
	zerolog.Ctx(c).
		Info().
		Str(log.KeyTag, "CartController FindCart").
		Int(log.KeyCartCount, cart.Count).
		Msg("found cart")

	inHttp.WriteSuccess(c, w, http.StatusOK, "found cart", map[string]interface{}{
		"cart": cart,
	})
}

func (ctrl CartController) AddCartItem(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController AddCartItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartController AddCartItem").
		Logger()

	s, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	logger.Trace().Msg("decoding request body")
	reqBody := request.AddCartItem{}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusBadRequest, err)
		return
	}
	logger.Trace().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "validating request body").Logger()
	logger.Trace().Msg("validating request body")
	if err := validate.New().StructCtx(c, reqBody); err != nil {
		err = fmt.Errorf("failed validating request body with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusBadRequest, err)
		return
	}
	if reqBody.Quantity == 0 {
		reqBody.Quantity = 1
	}
	span.SetAttributes(
		attribute.Int(log.KeyProductID, reqBody.ProductID),
		attribute.Int(log.KeyCartItemQuantity, reqBody.Quantity),
	)
	logger = logger.With().
		Int(log.KeyProductID, reqBody.ProductID).
		Int(log.KeyCartItemQuantity, reqBody.Quantity).
		Logger()
	logger.Trace().Msg("validated request body")

	logger = logger.With().Str(log.KeyProcess, "fetching product").Logger()
	logger.Info().Msg("fetching product")
	c = logger.WithContext(c)
	product := s.Catalog.FetchById(c, reqBody.ProductID)
	if product == nil {
		err := productController.CatalogError(s.Catalog.Err())
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		s.Notifier.Error(c, "Failed to add product to cart")
		inHttp.WriteFailed(c, w, productController.CatalogStatusCode(err), err)
		return
	}
	logger.Info().Msg("fetched product")

	logger = logger.With().Str(log.KeyProcess, "adding cart item").Logger()
	logger.Info().Msg("adding cart item")
	if err := s.Cart.Add(c, *product, reqBody.Quantity); err != nil {
		err = fmt.Errorf("failed adding cart item with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		statusCode := http.StatusInternalServerError
		if errors.Is(err, inErrors.ErrInvalidQuantity) {
			statusCode = http.StatusBadRequest
		}
		inHttp.WriteFailed(c, w, statusCode, err)
		return
	}
	logger.Info().Msg("added cart item")
	s.Notifier.Success(c, fmt.Sprintf("%s added to cart", product.Title))

	inHttp.WriteSuccess(c, w, http.StatusOK, "added cart item", map[string]interface{}{
		"cart": s.Cart.Cart(),
	})
}

func (ctrl CartController) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController UpdateCartItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartController UpdateCartItem").
		Logger()

	s, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	id, err := productIdFromRequest(r)
	if err != nil {
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusBadRequest, err)
		return
	}
	logger = logger.With().Int(log.KeyProductID, id).Logger()

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	logger.Trace().Msg("decoding request body")
	reqBody := request.UpdateCartItem{}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusBadRequest, err)
		return
	}
	logger.Trace().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "updating cart item quantity").Logger()
	logger.Info().Msg("updating cart item quantity")
	c = logger.WithContext(c)
	updated, err := s.Cart.UpdateQuantity(c, id, reqBody.Quantity)
	if err != nil {
		err = fmt.Errorf("failed updating cart item quantity with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusInternalServerError, err)
		return
	}
	logger.Info().Bool("updated", updated).Msg("updated cart item quantity")

	inHttp.WriteSuccess(c, w, http.StatusOK, "updated cart item", map[string]interface{}{
		"updated": updated,
		"cart":    s.Cart.Cart(),
	})
}

func (ctrl CartController) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController RemoveCartItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartController RemoveCartItem").
		Logger()

	s, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	id, err := productIdFromRequest(r)
	if err != nil {
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusBadRequest, err)
		return
	}
	span.SetAttributes(attribute.Int(log.KeyProductID, id))

	logger = logger.With().
		Int(log.KeyProductID, id).
		Str(log.KeyProcess, "removing cart item").
		Logger()
	logger.Info().Msg("removing cart item")
	c = logger.WithContext(c)
	if err := s.Cart.Remove(c, id); err != nil {
		err = fmt.Errorf("failed removing cart item with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusInternalServerError, err)
		return
	}
	logger.Info().Msg("removed cart item")
	s.Notifier.Info(c, "Item removed from cart")

	inHttp.WriteSuccess(c, w, http.StatusOK, "removed cart item", map[string]interface{}{
		"cart": s.Cart.Cart(),
	})
}

func (ctrl CartController) ClearCart(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController ClearCart")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartController ClearCart").
		Str(log.KeyProcess, "clearing cart").
		Logger()

	s, ok := sessionFromRequest(w, r)
	if !ok {
		return
	}

	logger.Info().Msg("clearing cart")
	c = logger.WithContext(c)
	if err := s.Cart.Clear(c); err != nil {
		err = fmt.Errorf("failed clearing cart with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusInternalServerError, err)
		return
	}
	logger.Info().Msg("cleared cart")

	inHttp.WriteSuccess(c, w, http.StatusOK, "cleared cart", map[string]interface{}{
		"cart": s.Cart.Cart(),
	})
}
