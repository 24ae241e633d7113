package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	inErrors "github.com/Alturino/storefront/internal/errors"
	"github.com/Alturino/storefront/internal/log"
	"github.com/Alturino/storefront/session"
)

type fakeSessions struct {
	sessions map[string]*session.Session
	getErr   error
}

func (f fakeSessions) VerifyToken(_ context.Context, token string) (string, error) {
	if token == "valid" {
		return "s1", nil
	}
	return "", inErrors.ErrTokenInvalid
}

func (f fakeSessions) Get(_ context.Context, id string) (*session.Session, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.sessions[id], nil
}

func newTestRequest(method string, target string, body io.Reader) *http.Request {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339Nano})
	r := httptest.NewRequest(method, target, body)
	return r.WithContext(logger.WithContext(r.Context()))
}

func decodeStatusCode(t *testing.T, w *httptest.ResponseRecorder) float64 {
	t.Helper()
	body := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body["statusCode"].(float64)
}

func TestAuth(t *testing.T) {
	s1 := &session.Session{ID: "s1"}
	tests := []struct {
		name          string
		authorization string
		getErr        error
		expectedCode  int
	}{
		{name: "given valid bearer token should attach session", authorization: "Bearer valid", expectedCode: http.StatusOK},
		{name: "given lowercase bearer should attach session", authorization: "bearer valid", expectedCode: http.StatusOK},
		{name: "given no authorization should be unauthorized", expectedCode: http.StatusUnauthorized},
		{name: "given invalid token should be unauthorized", authorization: "Bearer forged", expectedCode: http.StatusUnauthorized},
		{
			name:          "given session that cannot be loaded should be unavailable",
			authorization: "Bearer valid",
			getErr:        errors.New("storage down"),
			expectedCode:  http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := fakeSessions{sessions: map[string]*session.Session{"s1": s1}, getErr: tt.getErr}
			handler := Auth(provider)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				s, ok := session.FromContext(r.Context())
				require.True(t, ok)
				assert.Same(t, s1, s)
				w.WriteHeader(http.StatusOK)
			}))

			r := newTestRequest(http.MethodGet, "/carts", nil)
			if tt.authorization != "" {
				r.Header.Set("Authorization", tt.authorization)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)

			assert.Equal(t, tt.expectedCode, w.Code)
		})
	}
}

func TestLoggingAttachesRequestIdAndKeepsBody(t *testing.T) {
	handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "req-1", log.RequestIDFromContext(r.Context()))
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"cardNumber":"4242424242424242"}`, string(body))
	}))

	r := newTestRequest(http.MethodPost, "/orders/checkout", strings.NewReader(`{"cardNumber":"4242424242424242"}`))
	r.Header.Set("X-Request-Id", "req-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	assert.Equal(t, "req-1", w.Header().Get("X-Request-Id"))
}

func TestRecoverPanic(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
	}{
		{name: "given panic with error should answer 500", value: errors.New("boom")},
		{name: "given panic with string should answer 500", value: "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := RecoverPanic(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				panic(tt.value)
			}))
			w := httptest.NewRecorder()
			assert.NotPanics(t, func() {
				handler.ServeHTTP(w, newTestRequest(http.MethodGet, "/", nil))
			})
			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.EqualValues(t, http.StatusInternalServerError, decodeStatusCode(t, w))
		})
	}
}
