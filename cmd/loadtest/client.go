package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
	"github.com/vladislavdragonenkov/vfoody/internal/transport/httpapi"
)

const transportErrorLabel = "transport_error"

// outcome: результат одного HTTP-вызова: код ответа либо ошибка транспорта.
type outcome struct {
	status int
	err    error
}

func (o outcome) ok() bool {
	return o.err == nil && o.status >= 200 && o.status < 300
}

func (o outcome) label() string {
	if o.err != nil && o.status == 0 {
		return transportErrorLabel
	}
	return strconv.Itoa(o.status)
}

func (o outcome) asError(step string) error {
	if o.ok() {
		return nil
	}
	if o.err != nil {
		return fmt.Errorf("%s: %w", step, o.err)
	}
	return fmt.Errorf("%s: unexpected status %d", step, o.status)
}

type createItemBody struct {
	ProductID int64   `json:"productId"`
	Quantity  int32   `json:"quantity"`
	OptionIDs []int64 `json:"optionIds,omitempty"`
}

type createOrderBody struct {
	ShopID int64            `json:"shopId"`
	Items  []createItemBody `json:"items"`
	Note   string           `json:"note,omitempty"`
}

type reasonBody struct {
	Reason string `json:"reason"`
}

type apiEnvelope struct {
	IsSuccess bool `json:"isSuccess"`
	Value     struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	} `json:"value"`
}

// apiClient ходит в /api/v1 от имени покупателей и магазина, подписывая токены общим секретом.
type apiClient struct {
	baseURL  string
	http     *http.Client
	auth     *httpapi.Authenticator
	tokenTTL time.Duration
}

func newAPIClient(baseURL, secret string, timeout time.Duration) (*apiClient, error) {
	auth, err := httpapi.NewAuthenticator(secret)
	if err != nil {
		return nil, err
	}
	return &apiClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		auth:     auth,
		tokenTTL: time.Hour,
	}, nil
}

func (c *apiClient) createOrder(ctx context.Context, customer domain.Actor, idempotencyKey string, body createOrderBody) (int64, outcome) {
	headers := map[string]string{httpapi.IdempotencyKeyHeader: idempotencyKey}
	env, res := c.do(ctx, http.MethodPost, "/api/v1/customer/order", customer, body, headers)
	if !res.ok() {
		return 0, res
	}
	if env.Value.ID <= 0 {
		res.err = fmt.Errorf("create response returned empty order id")
	}
	return env.Value.ID, res
}

func (c *apiClient) confirm(ctx context.Context, shop domain.Actor, orderID int64) outcome {
	_, res := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v1/shop/order/%d/confirmed", orderID), shop, nil, nil)
	return res
}

func (c *apiClient) startDelivery(ctx context.Context, shop domain.Actor, orderID int64) outcome {
	_, res := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v1/shop/order/%d/delivering", orderID), shop, nil, nil)
	return res
}

func (c *apiClient) markDelivered(ctx context.Context, shop domain.Actor, orderID int64) outcome {
	_, res := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v1/shop/order/%d/successful", orderID), shop, nil, nil)
	return res
}

func (c *apiClient) cancel(ctx context.Context, customer domain.Actor, orderID int64, reason string) outcome {
	_, res := c.do(ctx, http.MethodPut, fmt.Sprintf("/api/v1/customer/order/%d/cancel", orderID), customer, reasonBody{Reason: reason}, nil)
	return res
}

func (c *apiClient) do(ctx context.Context, method, path string, actor domain.Actor, body any, headers map[string]string) (apiEnvelope, outcome) {
	var env apiEnvelope

	token, err := c.auth.IssueToken(actor, c.tokenTTL)
	if err != nil {
		return env, outcome{err: fmt.Errorf("issue token: %w", err)}
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return env, outcome{err: fmt.Errorf("encode body: %w", err)}
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return env, outcome{err: err}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return env, outcome{err: err}
	}
	defer resp.Body.Close()

	res := outcome{status: resp.StatusCode}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && res.ok() {
		res.err = fmt.Errorf("decode response: %w", err)
	}
	return env, res
}
