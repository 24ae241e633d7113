package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	inErrors "github.com/Alturino/storefront/internal/errors"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/internal/middleware"
	inOtel "github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/internal/validate"
	"github.com/Alturino/storefront/order/otel"
	"github.com/Alturino/storefront/order/request"
	"github.com/Alturino/storefront/session"
)

type OrderController struct{}

func AttachOrderController(mux *mux.Router, sessions middleware.SessionProvider) {
	controller := OrderController{}

	router := mux.PathPrefix("/orders").Subrouter()
	router.Use(middleware.Auth(sessions))
	router.HandleFunc("", controller.FindOrders).Methods(http.MethodGet)
	router.HandleFunc("/checkout", controller.Checkout).Methods(http.MethodPost)
	router.HandleFunc("/{orderId}", controller.FindOrderById).Methods(http.MethodGet)
}

func (ctrl OrderController) Checkout(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "OrderController Checkout")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderController Checkout").
		Logger()

	s, ok := session.FromContext(c)
	if !ok {
		inHttp.WriteFailed(c, w, http.StatusUnauthorized, inErrors.ErrSessionNotFound)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	logger.Trace().Msg("decoding request body")
	form := request.CheckoutForm{}
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusBadRequest, err)
		return
	}
	logger.Trace().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "validating request body").Logger()
	logger.Trace().Msg("validating request body")
	if err := validate.New().StructCtx(c, form); err != nil {
		err = fmt.Errorf("failed validating request body with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		s.Notifier.Error(c, "Please fill in all required fields")
		inHttp.WriteFailed(c, w, http.StatusBadRequest, err)
		return
	}
	logger.Trace().Msg("validated request body")

	logger = logger.With().Str(log.KeyProcess, "placing order").Logger()
	logger.Info().Msg("placing order")
	c = logger.WithContext(c)
	order, err := s.Orders.PlaceOrder(c, form)
	if err != nil {
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		statusCode := http.StatusInternalServerError
		if errors.Is(err, inErrors.ErrEmptyCart) {
			statusCode = http.StatusBadRequest
		}
		inHttp.WriteFailed(c, w, statusCode, err)
		return
	}
	logger.Info().Str(log.KeyOrderNumber, order.OrderNumber).Msg("placed order")

	inHttp.WriteSuccess(c, w, http.StatusCreated, "placed order", map[string]interface{}{
		"order": order,
	})
}

func (ctrl OrderController) FindOrders(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "OrderController FindOrders")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderController FindOrders").
		Str(log.KeyProcess, "finding orders").
		Logger()

	s, ok := session.FromContext(c)
	if !ok {
		inHttp.WriteFailed(c, w, http.StatusUnauthorized, inErrors.ErrSessionNotFound)
		return
	}

	logger.Info().Msg("finding orders")
	c = logger.WithContext(c)
	orders, err := s.Orders.Orders(c)
	if err != nil {
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusInternalServerError, err)
		return
	}
	logger.Info().Int(log.KeyOrders, len(orders)).Msg("found orders")

	inHttp.WriteSuccess(c, w, http.StatusOK, "found orders", map[string]interface{}{
		"orders":  orders,
		"loading": s.Orders.Loading(),
		"error":   s.Orders.Err(),
	})
}

func (ctrl OrderController) FindOrderById(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "OrderController FindOrderById")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderController FindOrderById").
		Logger()

	s, ok := session.FromContext(c)
	if !ok {
		inHttp.WriteFailed(c, w, http.StatusUnauthorized, inErrors.ErrSessionNotFound)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "validating orderId").Logger()
	logger.Trace().Msg("validating orderId")
	orderId, err := uuid.Parse(mux.Vars(r)["orderId"])
	if err != nil {
		err = fmt.Errorf("failed validating orderId with error=%w", err)
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusBadRequest, err)
		return
	}
	logger = logger.With().Str(log.KeyOrderID, orderId.String()).Logger()
	logger.Trace().Msg("validated orderId")

	logger = logger.With().Str(log.KeyProcess, "finding order by id").Logger()
	logger.Info().Msg("finding order by id")
	c = logger.WithContext(c)
	order, err := s.Orders.FindOrderById(c, orderId)
	if err != nil {
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		statusCode := http.StatusInternalServerError
		if errors.Is(err, inErrors.ErrOrderNotFound) {
			statusCode = http.StatusNotFound
		}
		inHttp.WriteFailed(c, w, statusCode, err)
		return
	}
	logger.Info().Msg("found order by id")

	inHttp.WriteSuccess(c, w, http.StatusOK, "found order", map[string]interface{}{
		"order": order,
	})
}
