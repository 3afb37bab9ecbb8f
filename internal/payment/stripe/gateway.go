package stripe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	stripego "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
)

type sessionAPI interface {
	New(params *stripego.CheckoutSessionParams) (*stripego.CheckoutSession, error)
	Expire(id string, params *stripego.CheckoutSessionExpireParams) (*stripego.CheckoutSession, error)
}

// Config: параметры Stripe Checkout.
type Config struct {
	APIKey     string
	SuccessURL string
	CancelURL  string
	Backends   *stripego.Backends
}

// Gateway выдаёт ссылки на оплату через Stripe Checkout Sessions.
type Gateway struct {
	sessions   sessionAPI
	successURL string
	cancelURL  string
	logger     *log.Entry
}

// NewGateway создаёт шлюз Stripe.
func NewGateway(cfg Config, logger *log.Entry) (*Gateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("stripe: api key is required")
	}
	sc := client.New(apiKey, cfg.Backends)
	return newGateway(sc.CheckoutSessions, cfg, logger), nil
}

func newGateway(sessions sessionAPI, cfg Config, logger *log.Entry) *Gateway {
	if logger == nil {
		logger = log.New().WithField("component", "stripe")
	}
	return &Gateway{
		sessions:   sessions,
		successURL: cfg.SuccessURL,
		cancelURL:  cfg.CancelURL,
		logger:     logger,
	}
}

// RequestPaymentLink создаёт Checkout Session на сумму заказа.
func (g *Gateway) RequestPaymentLink(ctx context.Context, req domain.PaymentLinkRequest) (domain.PaymentLink, error) {
	orderRef := strconv.FormatInt(req.OrderID, 10)
	currency := strings.ToLower(req.Currency)

	params := &stripego.CheckoutSessionParams{
		Mode:       stripego.String(string(stripego.CheckoutSessionModePayment)),
		SuccessURL: stripego.String(g.successURL),
		CancelURL:  stripego.String(g.cancelURL),
		LineItems: []*stripego.CheckoutSessionLineItemParams{{
			Quantity: stripego.Int64(1),
			PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripego.String(currency),
				UnitAmount: stripego.Int64(req.AmountMinor),
				ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripego.String(req.Description),
				},
			},
		}},
		ClientReferenceID: stripego.String(orderRef),
		Metadata:          map[string]string{"order_id": orderRef},
	}
	params.Context = ctx
	params.SetIdempotencyKey("vfoody-payment-link-" + orderRef)

	session, err := g.sessions.New(params)
	if err != nil {
		return domain.PaymentLink{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}

	g.logger.WithFields(log.Fields{
		"order_id":   req.OrderID,
		"session_id": session.ID,
	}).Info("stripe checkout session created")

	return domain.PaymentLink{
		PaymentLinkID: session.ID,
		CheckoutURL:   session.URL,
		Status:        string(session.Status),
		AmountMinor:   req.AmountMinor,
		OrderCode:     req.OrderID,
		Description:   req.Description,
		Currency:      strings.ToUpper(currency),
		Provider:      "stripe",
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// CancelPaymentLink истекает Checkout Session.
func (g *Gateway) CancelPaymentLink(ctx context.Context, paymentLinkID, reason string) error {
	params := &stripego.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := g.sessions.Expire(paymentLinkID, params); err != nil {
		return fmt.Errorf("stripe: expire checkout session: %w", err)
	}
	g.logger.WithFields(log.Fields{
		"session_id": paymentLinkID,
		"reason":     reason,
	}).Info("stripe checkout session expired")
	return nil
}

var _ domain.PaymentGateway = (*Gateway)(nil)
