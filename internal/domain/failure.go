package domain

import (
	"errors"
	"net/http"
)

// FailureCode: стабильный код ошибки, отдаваемый наружу.
type FailureCode string

const (
	CodeValidation             FailureCode = "validation"
	CodeUnauthorized           FailureCode = "unauthorized"
	CodeForbidden              FailureCode = "forbidden"
	CodeNotFound               FailureCode = "not_found"
	CodeInvalidStateTransition FailureCode = "invalid_state_transition"
	CodeConflict               FailureCode = "conflict"
	CodePaymentGateway         FailureCode = "payment_gateway"
	CodePersistence            FailureCode = "persistence"
)

// Классы ошибок: Failure разворачивается в один из них, что позволяет проверять errors.Is.
var (
	ErrValidation             = errors.New("validation error")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrForbidden              = errors.New("forbidden")
	ErrNotFound               = errors.New("not found")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrConflict               = errors.New("request conflict")
	ErrPaymentGateway         = errors.New("payment gateway error")
	ErrPersistence            = errors.New("persistence error")
)

// Failure: типизированный результат ошибки сервисного слоя.
type Failure struct {
	Code    FailureCode
	Message string
	// Details уточняет ошибку, например перечисляет некорректные товары.
	Details []string
}

func (f *Failure) Error() string {
	return string(f.Code) + ": " + f.Message
}

// Unwrap возвращает класс ошибки по коду.
func (f *Failure) Unwrap() error {
	switch f.Code {
	case CodeValidation:
		return ErrValidation
	case CodeUnauthorized:
		return ErrUnauthorized
	case CodeForbidden:
		return ErrForbidden
	case CodeNotFound:
		return ErrNotFound
	case CodeInvalidStateTransition:
		return ErrInvalidStateTransition
	case CodeConflict:
		return ErrConflict
	case CodePaymentGateway:
		return ErrPaymentGateway
	default:
		return ErrPersistence
	}
}

// HTTPStatus возвращает HTTP-код для транспорта.
func (f *Failure) HTTPStatus() int {
	switch f.Code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidStateTransition, CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// NewFailure создаёт ошибку с кодом.
func NewFailure(code FailureCode, message string, details ...string) *Failure {
	return &Failure{Code: code, Message: message, Details: details}
}

// ValidationFailure: короткий конструктор для ошибок валидации.
func ValidationFailure(message string, details ...string) *Failure {
	return NewFailure(CodeValidation, message, details...)
}

// AsFailure приводит любую ошибку к Failure.
// Неизвестные ошибки считаются ошибками хранилища, их текст наружу не попадает.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}

	switch {
	case errors.Is(err, ErrActorInvalid):
		return NewFailure(CodeUnauthorized, err.Error())
	case errors.Is(err, ErrActorForbidden):
		return NewFailure(CodeForbidden, err.Error())
	case errors.Is(err, ErrOrderNotFound),
		errors.Is(err, ErrShopNotFound),
		errors.Is(err, ErrPromotionNotFound),
		errors.Is(err, ErrAccountNotFound):
		return NewFailure(CodeNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrOrderVersionConflict),
		errors.Is(err, ErrPaymentLinkExists):
		return NewFailure(CodeInvalidStateTransition, err.Error())
	case errors.Is(err, ErrReasonRequired),
		errors.Is(err, ErrStatusUnknown),
		errors.Is(err, ErrTransitionUnknown),
		errors.Is(err, ErrShopInactive),
		errors.Is(err, ErrProductNotOrderable),
		errors.Is(err, ErrOptionInvalid),
		errors.Is(err, ErrItemsRequired),
		errors.Is(err, ErrItemQtyInvalid),
		errors.Is(err, ErrPromotionInactive),
		errors.Is(err, ErrPromotionOutOfWindow),
		errors.Is(err, ErrPromotionExhausted),
		errors.Is(err, ErrPromotionMinimumNotMet),
		errors.Is(err, ErrPromotionShopMismatch),
		errors.Is(err, ErrPromotionApplyTypeUnset):
		return NewFailure(CodeValidation, err.Error())
	default:
		return NewFailure(CodePersistence, "internal storage error")
	}
}

// FailureCodeOf возвращает код ошибки, удобно для меток метрик.
func FailureCodeOf(err error) FailureCode {
	if err == nil {
		return ""
	}
	return AsFailure(err).Code
}
