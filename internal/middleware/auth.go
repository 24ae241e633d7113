package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	inErrors "github.com/Alturino/storefront/internal/errors"
	inHttp "github.com/Alturino/storefront/internal/http"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/session"
)

type SessionProvider interface {
	VerifyToken(c context.Context, token string) (string, error)
	Get(c context.Context, id string) (*session.Session, error)
}

// Auth resolves the bearer token to a live session and attaches it to the request context.
func Auth(sessions SessionProvider) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := zerolog.Ctx(r.Context()).With().Str(log.KeyTag, "middleware Auth").Logger()
			c := logger.WithContext(r.Context())

			authorization := r.Header.Get(inHttp.KeyHeaderAuthorization)
			token, found := strings.CutPrefix(authorization, "Bearer ")
			if !found {
				token, found = strings.CutPrefix(authorization, "bearer ")
			}
			if !found || token == "" {
				logger.Error().Err(inErrors.ErrEmptyAuth).Msg(inErrors.ErrEmptyAuth.Error())
				inHttp.WriteFailed(c, w, http.StatusUnauthorized, inErrors.ErrEmptyAuth)
				return
			}

			logger = logger.With().Str(log.KeyProcess, "verifying token").Logger()
			logger.Trace().Msg("verifying token")
			sessionID, err := sessions.VerifyToken(c, token)
			if err != nil {
				logger.Error().Err(err).Msg(err.Error())
				inHttp.WriteFailed(c, w, http.StatusUnauthorized, inErrors.ErrTokenInvalid)
				return
			}
			logger = logger.With().Str(log.KeySessionID, sessionID).Logger()
			logger.Trace().Msg("verified token")

			logger = logger.With().Str(log.KeyProcess, "resolving session").Logger()
			c = logger.WithContext(c)
			s, err := sessions.Get(c, sessionID)
			if err != nil {
				err = fmt.Errorf("failed resolving session with error=%w", err)
				logger.Error().Err(err).Msg(err.Error())
				inHttp.WriteFailed(c, w, http.StatusServiceUnavailable, inErrors.ErrSessionNotFound)
				return
			}
			logger.Trace().Msg("resolved session")

			c = session.AttachSessionToContext(c, s)
			next.ServeHTTP(w, r.WithContext(c))
		})
	}
}
