package controller

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/log"
	inOtel "github.com/Alturino/storefront/internal/otel"
	"github.com/Alturino/storefront/session"
)

type SessionController struct {
	manager *session.Manager
}

func AttachSessionController(mux *mux.Router, manager *session.Manager) {
	controller := SessionController{manager: manager}

	router := mux.PathPrefix("/sessions").Subrouter()
	router.HandleFunc("", controller.CreateSession).Methods(http.MethodPost)
}

func (ctrl SessionController) CreateSession(w http.ResponseWriter, r *http.Request) {
	c, span := session.Tracer.Start(r.Context(), "SessionController CreateSession")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "SessionController CreateSession").
		Str(log.KeyProcess, "creating session").
		Logger()

	logger.Info().Msg("creating session")
	c = logger.WithContext(c)
	s, token, err := ctrl.manager.Create(c)
	if err != nil {
		inOtel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteFailed(c, w, http.StatusInternalServerError, err)
		return
	}
	logger.Info().Str(log.KeySessionID, s.ID).Msg("created session")

	inHttp.WriteSuccess(c, w, http.StatusCreated, "created session", map[string]interface{}{
		"sessionId": s.ID,
		"token":     token,
	})
}
