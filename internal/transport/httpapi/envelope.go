package httpapi

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

// Envelope: единый формат ответа API.
type Envelope struct {
	IsSuccess bool           `json:"isSuccess"`
	Value     any            `json:"value,omitempty"`
	Error     *EnvelopeError `json:"error,omitempty"`
}

// EnvelopeError описывает ошибку в ответе.
type EnvelopeError struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.WithError(err).WithField("component", "httpapi").Warn("failed to encode response")
	}
}

func writeValue(w http.ResponseWriter, status int, value any) {
	writeJSON(w, status, Envelope{IsSuccess: true, Value: value})
}

// writeError переводит ошибку сервиса в HTTP-ответ. Внутренние подробности наружу не попадают.
func writeError(w http.ResponseWriter, err error) {
	failure := domain.AsFailure(err)
	writeJSON(w, failure.HTTPStatus(), Envelope{
		Error: &EnvelopeError{
			Code:    string(failure.Code),
			Message: failure.Message,
			Details: failure.Details,
		},
	})
}

func writeFailure(w http.ResponseWriter, status int, code domain.FailureCode, message string) {
	writeJSON(w, status, Envelope{Error: &EnvelopeError{Code: string(code), Message: message}})
}
