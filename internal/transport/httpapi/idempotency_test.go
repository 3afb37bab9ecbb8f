package httpapi_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
	"github.com/vladislavdragonenkov/vfoody/internal/storage/memory"
	"github.com/vladislavdragonenkov/vfoody/internal/transport/httpapi"
)

func idempotentRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/customer/order", strings.NewReader(body))
	req.Header.Set(httpapi.IdempotencyKeyHeader, key)
	return req
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.NotNil(t, env.Error)
	return env.Error.Code
}

func TestIdempotency_PanicClosesKey(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	calls := 0
	handler := httpapi.NewIdempotency(repo, time.Hour, nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			panic("encoder exploded")
		}
		w.WriteHeader(http.StatusCreated)
	}))

	require.Panics(t, func() {
		handler.ServeHTTP(httptest.NewRecorder(), idempotentRequest("panic-1", `{"shopId":7}`))
	})

	record, err := repo.Get(t.Context(), "0:panic-1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusFailed, record.Status)
	require.Equal(t, http.StatusInternalServerError, record.HTTPStatus)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, idempotentRequest("panic-1", `{"shopId":7}`))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Equal(t, "true", rec.Header().Get("Idempotency-Replayed"))
	require.Equal(t, string(domain.CodePersistence), decodeErrorCode(t, rec))
	require.Equal(t, 1, calls)
}

func TestIdempotency_ConflictsUseConflictCode(t *testing.T) {
	var (
		handler  http.Handler
		inFlight *httptest.ResponseRecorder
	)
	handler = httpapi.NewIdempotency(memory.NewIdempotencyRepository(), time.Hour, nil).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inFlight == nil {
			inFlight = httptest.NewRecorder()
			handler.ServeHTTP(inFlight, idempotentRequest("order-1", `{"shopId":7}`))
		}
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, idempotentRequest("order-1", `{"shopId":7}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	require.Equal(t, http.StatusConflict, inFlight.Code)
	require.Equal(t, string(domain.CodeConflict), decodeErrorCode(t, inFlight))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, idempotentRequest("order-1", `{"shopId":8}`))
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, string(domain.CodeConflict), decodeErrorCode(t, rec))

	failure := &domain.Failure{Code: domain.CodeConflict}
	require.Equal(t, http.StatusConflict, failure.HTTPStatus())
	require.ErrorIs(t, failure, domain.ErrConflict)
}
