package payos

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

const (
	defaultBaseURL = "https://api-merchant.payos.vn"
	successCode    = "00"
	// PayOS ограничивает описание платежа 25 символами.
	maxDescriptionLen = 25
)

// ErrGateway: PayOS вернул неуспешный ответ.
var ErrGateway = errors.New("payos request failed")

// Config: учётные данные и адреса возврата PayOS.
type Config struct {
	BaseURL     string
	ClientID    string
	APIKey      string
	ChecksumKey string
	ReturnURL   string
	CancelURL   string
}

// Client: HTTP-клиент платёжных ссылок PayOS.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *log.Entry
}

// NewClient создаёт клиент PayOS.
func NewClient(cfg Config, httpClient *http.Client, logger *log.Entry) (*Client, error) {
	if cfg.ClientID == "" || cfg.APIKey == "" || cfg.ChecksumKey == "" {
		return nil, errors.New("payos: client id, api key and checksum key are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = log.New().WithField("component", "payos")
	}
	return &Client{cfg: cfg, http: httpClient, logger: logger}, nil
}

type createRequest struct {
	OrderCode   int64  `json:"orderCode"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	CancelURL   string `json:"cancelUrl"`
	ReturnURL   string `json:"returnUrl"`
	Signature   string `json:"signature"`
}

type paymentLinkData struct {
	Bin           string `json:"bin"`
	AccountNumber string `json:"accountNumber"`
	Amount        int64  `json:"amount"`
	Description   string `json:"description"`
	OrderCode     int64  `json:"orderCode"`
	Currency      string `json:"currency"`
	PaymentLinkID string `json:"paymentLinkId"`
	Status        string `json:"status"`
	CheckoutURL   string `json:"checkoutUrl"`
	QRCode        string `json:"qrCode"`
}

type envelope struct {
	Code string          `json:"code"`
	Desc string          `json:"desc"`
	Data json.RawMessage `json:"data"`
}

// RequestPaymentLink создаёт платёжную ссылку для заказа.
func (c *Client) RequestPaymentLink(ctx context.Context, req domain.PaymentLinkRequest) (domain.PaymentLink, error) {
	description := truncate(req.Description, maxDescriptionLen)
	body := createRequest{
		OrderCode:   req.OrderID,
		Amount:      req.AmountMinor,
		Description: description,
		CancelURL:   c.cfg.CancelURL,
		ReturnURL:   c.cfg.ReturnURL,
	}
	body.Signature = c.sign(body)

	var data paymentLinkData
	if err := c.do(ctx, http.MethodPost, "/v2/payment-requests", body, &data); err != nil {
		return domain.PaymentLink{}, err
	}

	c.logger.WithFields(log.Fields{
		"order_id":        req.OrderID,
		"payment_link_id": data.PaymentLinkID,
	}).Info("payos payment link created")

	return domain.PaymentLink{
		PaymentLinkID: data.PaymentLinkID,
		CheckoutURL:   data.CheckoutURL,
		QRCode:        data.QRCode,
		Status:        data.Status,
		AmountMinor:   data.Amount,
		OrderCode:     data.OrderCode,
		Description:   data.Description,
		Currency:      data.Currency,
		Bin:           data.Bin,
		AccountNumber: data.AccountNumber,
		Provider:      "payos",
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// CancelPaymentLink аннулирует ссылку.
func (c *Client) CancelPaymentLink(ctx context.Context, paymentLinkID, reason string) error {
	path := "/v2/payment-requests/" + url.PathEscape(paymentLinkID) + "/cancel"
	body := map[string]string{"cancellationReason": reason}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// sign считает HMAC-SHA256 по отсортированным полям запроса.
func (c *Client) sign(req createRequest) string {
	payload := fmt.Sprintf("amount=%d&cancelUrl=%s&description=%s&orderCode=%d&returnUrl=%s",
		req.Amount, req.CancelURL, req.Description, req.OrderCode, req.ReturnURL)
	mac := hmac.New(sha256.New, []byte(c.cfg.ChecksumKey))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("payos: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("payos: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-client-id", c.cfg.ClientID)
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("payos: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("payos: read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: http status %d", ErrGateway, resp.StatusCode)
	}

	var env envelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return fmt.Errorf("payos: decode response: %w", err)
	}
	if env.Code != successCode {
		return fmt.Errorf("%w: code %s: %s", ErrGateway, env.Code, env.Desc)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("payos: decode data: %w", err)
	}
	return nil
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}

var _ domain.PaymentGateway = (*Client)(nil)
