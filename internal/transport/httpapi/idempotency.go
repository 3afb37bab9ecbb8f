package httpapi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

const (
	IdempotencyKeyHeader  = "Idempotency-Key"
	idempotencyReplayHdr  = "Idempotency-Replayed"
	defaultIdempotencyTTL = 24 * time.Hour
	maxRequestBodyBytes   = 1 << 20
)

// Idempotency повторяет сохранённый ответ для запроса с тем же Idempotency-Key.
// Запросы без заголовка обрабатываются как обычно.
type Idempotency struct {
	repo   domain.IdempotencyRepository
	ttl    time.Duration
	now    func() time.Time
	logger *log.Entry
}

// NewIdempotency создаёт middleware; ttl <= 0 заменяется суткой.
func NewIdempotency(repo domain.IdempotencyRepository, ttl time.Duration, logger *log.Entry) *Idempotency {
	if ttl <= 0 {
		ttl = defaultIdempotencyTTL
	}
	if logger == nil {
		logger = log.New().WithField("component", "http-idempotency")
	}
	return &Idempotency{repo: repo, ttl: ttl, now: time.Now, logger: logger}
}

func (m *Idempotency) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
		if m == nil || m.repo == nil || key == "" {
			next.ServeHTTP(w, r)
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBodyBytes))
		if err != nil {
			writeFailure(w, http.StatusBadRequest, domain.CodeValidation, "request body cannot be read")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		actor := ActorFrom(r.Context())
		// Ключ действует в пределах участника.
		scopedKey := fmt.Sprintf("%d:%s", actor.AccountID, key)
		hash := requestHash(r.Method, r.URL.Path, body)
		logger := m.logger.WithField("idempotency_key", key)

		record, err := m.repo.CreateProcessing(r.Context(), scopedKey, hash, m.now().UTC().Add(m.ttl))
		if err != nil {
			m.replay(w, err, record, logger)
			return
		}

		storeCtx := context.WithoutCancel(r.Context())
		defer func() {
			if p := recover(); p != nil {
				m.failAfterPanic(storeCtx, scopedKey, logger)
				panic(p)
			}
		}()

		rec := &bufferedWriter{header: make(http.Header), status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status < http.StatusBadRequest {
			err = m.repo.MarkDone(storeCtx, scopedKey, rec.body.Bytes(), rec.status)
		} else {
			err = m.repo.MarkFailed(storeCtx, scopedKey, rec.body.Bytes(), rec.status)
		}
		if err != nil {
			logger.WithError(err).Warn("failed to store idempotent response")
		}

		rec.flushTo(w)
	})
}

// failAfterPanic закрывает ключ ответом 500 после паники обработчика.
func (m *Idempotency) failAfterPanic(ctx context.Context, scopedKey string, logger *log.Entry) {
	failed := &bufferedWriter{header: make(http.Header)}
	writeFailure(failed, http.StatusInternalServerError, domain.CodePersistence, "request handling failed")
	if err := m.repo.MarkFailed(ctx, scopedKey, failed.body.Bytes(), failed.status); err != nil {
		logger.WithError(err).Warn("failed to close idempotency key after panic")
	}
}

func (m *Idempotency) replay(w http.ResponseWriter, createErr error, record domain.IdempotencyRecord, logger *log.Entry) {
	if !domain.IsIdempotencyConflict(createErr) {
		logger.WithError(createErr).Warn("failed to create idempotency record")
		writeFailure(w, http.StatusInternalServerError, domain.CodePersistence, "failed to initialize idempotency request")
		return
	}
	if errors.Is(createErr, domain.ErrIdempotencyHashMismatch) {
		writeFailure(w, http.StatusConflict, domain.CodeConflict, "idempotency key is already used with different request payload")
		return
	}

	switch record.Status {
	case domain.IdempotencyStatusDone, domain.IdempotencyStatusFailed:
		if len(record.ResponseBody) == 0 || record.HTTPStatus == 0 {
			writeFailure(w, http.StatusInternalServerError, domain.CodePersistence, "idempotency cache is empty")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set(idempotencyReplayHdr, "true")
		w.WriteHeader(record.HTTPStatus)
		_, _ = w.Write(record.ResponseBody)
	case domain.IdempotencyStatusProcessing:
		writeFailure(w, http.StatusConflict, domain.CodeConflict, "request with the same idempotency key is already processing")
	default:
		writeFailure(w, http.StatusInternalServerError, domain.CodePersistence, "unknown idempotency record status")
	}
}

func requestHash(method, path string, body []byte) string {
	payload := make([]byte, 0, len(method)+len(path)+2+len(body))
	payload = append(payload, method...)
	payload = append(payload, ' ')
	payload = append(payload, path...)
	payload = append(payload, ':')
	payload = append(payload, body...)
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// bufferedWriter копит ответ, чтобы сохранить его до отправки клиенту.
type bufferedWriter struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.status = status
	b.wroteHeader = true
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	b.wroteHeader = true
	return b.body.Write(p)
}

func (b *bufferedWriter) flushTo(w http.ResponseWriter) {
	for k, v := range b.header {
		w.Header()[k] = v
	}
	w.WriteHeader(b.status)
	_, _ = w.Write(b.body.Bytes())
}
