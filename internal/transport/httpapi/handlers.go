package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

func (h *handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	order, err := h.checkout.CreateOrder(r.Context(), ActorFrom(r.Context()), req.toInput())
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, http.StatusCreated, toOrderResponse(order))
}

// transition строит обработчик команды над заказом {id}. withReason читает тело {reason}.
func (h *handler) transition(name domain.Transition, withReason bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := orderIDParam(r)
		if err != nil {
			writeError(w, err)
			return
		}

		var req reasonRequest
		if withReason {
			if err := decodeBody(r, &req); err != nil {
				writeError(w, err)
				return
			}
		}

		order, err := h.lifecycle.Apply(r.Context(), name, orderID, ActorFrom(r.Context()), req.Reason)
		if err != nil {
			writeError(w, err)
			return
		}
		writeValue(w, http.StatusOK, toOrderResponse(order))
	}
}

func (h *handler) orderDetail(w http.ResponseWriter, r *http.Request) {
	orderID, err := orderIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	detail, err := h.queries.OrderDetail(r.Context(), ActorFrom(r.Context()), orderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, http.StatusOK, toDetailResponse(detail))
}

func (h *handler) customerHistory(w http.ResponseWriter, r *http.Request) {
	statuses, err := statusParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	orders, err := h.queries.CustomerHistory(r.Context(), ActorFrom(r.Context()), statuses)
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, http.StatusOK, toOrderResponses(orders))
}

func (h *handler) shopOrders(w http.ResponseWriter, r *http.Request) {
	statuses, err := statusParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	orders, err := h.queries.ShopOrders(r.Context(), ActorFrom(r.Context()), statuses)
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, http.StatusOK, toOrderResponses(orders))
}

func (h *handler) adminList(w http.ResponseWriter, r *http.Request) {
	pageIndex, err := intParam(r, "pageIndex")
	if err != nil {
		writeError(w, err)
		return
	}
	pageSize, err := intParam(r, "pageSize")
	if err != nil {
		writeError(w, err)
		return
	}

	page, err := h.queries.AdminList(r.Context(), ActorFrom(r.Context()), pageIndex, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeValue(w, http.StatusOK, pageResponse{
		Items:     toOrderResponses(page.Items),
		PageIndex: page.PageIndex,
		PageSize:  page.PageSize,
	})
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.ValidationFailure("request body is required")
		}
		return domain.ValidationFailure("request body is malformed", err.Error())
	}
	return nil
}

func orderIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.ValidationFailure("order id must be a positive integer")
	}
	return id, nil
}

// statusParams читает ?status=a,b и повторяющиеся ?status=.
func statusParams(r *http.Request) ([]domain.OrderStatus, error) {
	var statuses []domain.OrderStatus
	for _, value := range r.URL.Query()["status"] {
		for _, raw := range strings.Split(value, ",") {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			status, err := domain.ParseOrderStatus(strings.ToLower(raw))
			if err != nil {
				return nil, domain.ValidationFailure("unknown order status", raw)
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}

func intParam(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.ValidationFailure(name + " must be an integer")
	}
	return v, nil
}
