package httpapi

import (
	"time"

	"github.com/vladislavdragonenkov/vfoody/internal/domain"
	"github.com/vladislavdragonenkov/vfoody/internal/service/checkout"
	"github.com/vladislavdragonenkov/vfoody/internal/service/query"
)

type createOrderItemRequest struct {
	ProductID int64   `json:"productId"`
	Quantity  int32   `json:"quantity"`
	OptionIDs []int64 `json:"optionIds"`
}

type createOrderRequest struct {
	ShopID      int64                    `json:"shopId"`
	Items       []createOrderItemRequest `json:"items"`
	PromotionID int64                    `json:"promotionId"`
	Note        string                   `json:"note"`
}

func (r createOrderRequest) toInput() checkout.CreateOrderInput {
	in := checkout.CreateOrderInput{
		ShopID:      r.ShopID,
		PromotionID: r.PromotionID,
		Note:        r.Note,
		Items:       make([]checkout.ItemInput, 0, len(r.Items)),
	}
	for _, item := range r.Items {
		in.Items = append(in.Items, checkout.ItemInput{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			OptionIDs: item.OptionIDs,
		})
	}
	return in
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type optionResponse struct {
	QuestionID   int64  `json:"questionId"`
	QuestionText string `json:"questionText"`
	OptionID     int64  `json:"optionId"`
	OptionText   string `json:"optionText"`
	PriceDelta   int64  `json:"priceDelta"`
}

type itemResponse struct {
	ProductID   int64            `json:"productId"`
	ProductName string           `json:"productName"`
	Quantity    int32            `json:"quantity"`
	UnitPrice   int64            `json:"unitPrice"`
	TotalPrice  int64            `json:"totalPrice"`
	Options     []optionResponse `json:"options,omitempty"`
}

type promotionResponse struct {
	PromotionID int64  `json:"promotionId"`
	Scope       string `json:"scope"`
	Title       string `json:"title"`
	Discount    int64  `json:"discount"`
}

type paymentLinkResponse struct {
	PaymentLinkID string `json:"paymentLinkId"`
	CheckoutURL   string `json:"checkoutUrl"`
	QRCode        string `json:"qrCode,omitempty"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	OrderCode     int64  `json:"orderCode"`
	Description   string `json:"description"`
	Currency      string `json:"currency"`
	Bin           string `json:"bin,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
}

type orderResponse struct {
	ID           int64                `json:"id"`
	Status       string               `json:"status"`
	CustomerID   int64                `json:"customerId"`
	ShopID       int64                `json:"shopId"`
	Items        []itemResponse       `json:"items"`
	Promotion    *promotionResponse   `json:"promotion,omitempty"`
	Subtotal     int64                `json:"subtotal"`
	Discount     int64                `json:"discount"`
	Total        int64                `json:"total"`
	CancelReason string               `json:"cancelReason,omitempty"`
	RejectReason string               `json:"rejectReason,omitempty"`
	FailReason   string               `json:"failReason,omitempty"`
	PaymentLink  *paymentLinkResponse `json:"paymentLink,omitempty"`
	Note         string               `json:"note,omitempty"`
	Version      int64                `json:"version"`
	CreatedAt    time.Time            `json:"createdAt"`
	UpdatedAt    time.Time            `json:"updatedAt"`
}

type timelineResponse struct {
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	ActorRole string    `json:"actorRole,omitempty"`
	Occurred  time.Time `json:"occurred"`
}

type orderDetailResponse struct {
	Order    orderResponse      `json:"order"`
	Timeline []timelineResponse `json:"timeline"`
}

type pageResponse struct {
	Items     []orderResponse `json:"items"`
	PageIndex int             `json:"pageIndex"`
	PageSize  int             `json:"pageSize"`
}

func toOrderResponse(o domain.Order) orderResponse {
	resp := orderResponse{
		ID:           o.ID,
		Status:       string(o.Status),
		CustomerID:   o.CustomerID,
		ShopID:       o.ShopID,
		Items:        make([]itemResponse, 0, len(o.Items)),
		Subtotal:     o.SubtotalMinor,
		Discount:     o.DiscountMinor,
		Total:        o.TotalMinor,
		CancelReason: o.CancelReason,
		RejectReason: o.RejectReason,
		FailReason:   o.FailReason,
		Note:         o.Note,
		Version:      o.Version,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
	for _, item := range o.Items {
		ir := itemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPriceMinor,
			TotalPrice:  item.TotalMinor(),
		}
		for _, opt := range item.Options {
			ir.Options = append(ir.Options, optionResponse{
				QuestionID:   opt.QuestionID,
				QuestionText: opt.QuestionText,
				OptionID:     opt.OptionID,
				OptionText:   opt.OptionText,
				PriceDelta:   opt.PriceDeltaMinor,
			})
		}
		resp.Items = append(resp.Items, ir)
	}
	if p := o.Promotion; p != nil {
		resp.Promotion = &promotionResponse{
			PromotionID: p.PromotionID,
			Scope:       string(p.Scope),
			Title:       p.Title,
			Discount:    p.DiscountMinor,
		}
	}
	if l := o.PaymentLink; l != nil {
		resp.PaymentLink = &paymentLinkResponse{
			PaymentLinkID: l.PaymentLinkID,
			CheckoutURL:   l.CheckoutURL,
			QRCode:        l.QRCode,
			Status:        l.Status,
			Amount:        l.AmountMinor,
			OrderCode:     l.OrderCode,
			Description:   l.Description,
			Currency:      l.Currency,
			Bin:           l.Bin,
			AccountNumber: l.AccountNumber,
		}
	}
	return resp
}

func toOrderResponses(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

func toDetailResponse(d query.OrderDetail) orderDetailResponse {
	resp := orderDetailResponse{
		Order:    toOrderResponse(d.Order),
		Timeline: make([]timelineResponse, 0, len(d.Timeline)),
	}
	for _, e := range d.Timeline {
		resp.Timeline = append(resp.Timeline, timelineResponse{
			Type:      e.Type,
			Status:    string(e.Status),
			Reason:    e.Reason,
			ActorRole: string(e.ActorRole),
			Occurred:  e.Occurred,
		})
	}
	return resp
}
