package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/checkout/internal/auth"
	"github.com/vladislavdragonenkov/checkout/internal/domain"
	"github.com/vladislavdragonenkov/checkout/internal/service/checkout"
)

const (
	moneyScale       = 2
	maxVerifyBodyLen = 4 << 10
)

type verifyRequest struct {
	IntentID  string `json:"intent_id" validate:"required,max=128"`
	PaymentID string `json:"payment_id" validate:"required,max=128"`
	Signature string `json:"signature" validate:"required,max=256"`
}

type verifyResponse struct {
	OrderID     string `json:"order_id"`
	TotalAmount string `json:"total_amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	Replayed    bool   `json:"replayed"`
}

type summaryLine struct {
	ProductID int64  `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice string `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	Subtotal  string `json:"subtotal"`
}

type summaryResponse struct {
	Items       []summaryLine `json:"items"`
	Total       string        `json:"total"`
	AmountMinor int64         `json:"amount_minor_units"`
	Currency    string        `json:"currency"`
	ItemCount   int           `json:"item_count"`
}

type orderItemResponse struct {
	ProductID       int64  `json:"product_id"`
	Quantity        int    `json:"quantity"`
	PriceAtPurchase string `json:"price_at_purchase"`
}

type orderResponse struct {
	OrderID     string              `json:"order_id"`
	UserID      string              `json:"user_id"`
	TotalAmount string              `json:"total_amount"`
	Currency    string              `json:"currency"`
	Status      string              `json:"status"`
	IntentID    string              `json:"intent_id,omitempty"`
	PaymentID   string              `json:"payment_id,omitempty"`
	Items       []orderItemResponse `json:"items"`
	CreatedAt   time.Time           `json:"created_at"`
}

type ordersResponse struct {
	Orders []orderResponse `json:"orders"`
}

// POST /checkout/initiate
func (h *Handler) handleInitiate(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))

	var (
		res      checkout.InitiateResult
		replayed bool
		err      error
	)
	if key != "" {
		res, replayed, err = h.svc.InitiateIdempotent(r.Context(), session.UserID, key)
	} else {
		res, err = h.svc.Initiate(r.Context(), session.UserID)
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	if replayed {
		w.Header().Set(IdempotencyReplayedHeader, "true")
	}
	respondJSON(w, http.StatusCreated, res)
}

// POST /checkout/verify
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())

	var req verifyRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		h.logger.WithError(err).WithField("user_id", session.UserID).Debug("rejecting verify request")
		h.writeDomainError(w, r, errors.Join(domain.ErrMalformedCallback, err))
		return
	}

	res, err := h.svc.Verify(r.Context(), session.UserID, domain.PaymentCallback{
		IntentID:  req.IntentID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, verifyResponse{
		OrderID:     res.Order.ID,
		TotalAmount: res.Order.TotalAmount.StringFixed(moneyScale),
		Currency:    res.Order.Currency,
		Status:      string(res.Order.Status),
		Replayed:    res.Replayed,
	})
}

// GET /checkout
func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())

	summary, err := h.svc.Summary(r.Context(), session.UserID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	lines := make([]summaryLine, 0, len(summary.Lines))
	for _, line := range summary.Lines {
		lines = append(lines, summaryLine{
			ProductID: line.ProductID,
			Name:      line.Name,
			UnitPrice: line.UnitPrice.StringFixed(moneyScale),
			Quantity:  line.Quantity,
			Subtotal:  line.Subtotal().StringFixed(moneyScale),
		})
	}
	respondJSON(w, http.StatusOK, summaryResponse{
		Items:       lines,
		Total:       summary.Total.StringFixed(moneyScale),
		AmountMinor: summary.AmountMinor,
		Currency:    summary.Currency,
		ItemCount:   summary.ItemCount,
	})
}

// GET /orders/history
func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	session, _ := auth.SessionFromContext(r.Context())

	orders, err := h.svc.History(r.Context(), session.UserID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, ordersResponse{Orders: mapOrders(orders)})
}

// GET /admin/orders?limit=N
func (h *Handler) handleAdminOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			respondError(w, http.StatusBadRequest, string(domain.KindInvalidArgument), "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	orders, err := h.svc.AllOrders(r.Context(), limit)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	session, _ := auth.SessionFromContext(r.Context())
	h.logger.WithFields(log.Fields{
		"admin_id": session.UserID,
		"count":    len(orders),
	}).Info("admin listed orders")
	respondJSON(w, http.StatusOK, ordersResponse{Orders: mapOrders(orders)})
}

func (h *Handler) decodeAndValidate(r *http.Request, dst any) error {
	defer r.Body.Close()

	if err := json.NewDecoder(io.LimitReader(r.Body, maxVerifyBodyLen)).Decode(dst); err != nil {
		return err
	}
	return h.validate.Struct(dst)
}

func mapOrders(orders []domain.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		items := make([]orderItemResponse, 0, len(o.Items))
		for _, item := range o.Items {
			items = append(items, orderItemResponse{
				ProductID:       item.ProductID,
				Quantity:        item.Quantity,
				PriceAtPurchase: item.PriceAtPurchase.StringFixed(moneyScale),
			})
		}
		out = append(out, orderResponse{
			OrderID:     o.ID,
			UserID:      o.UserID,
			TotalAmount: o.TotalAmount.StringFixed(moneyScale),
			Currency:    o.Currency,
			Status:      string(o.Status),
			IntentID:    o.IntentID,
			PaymentID:   o.PaymentID,
			Items:       items,
			CreatedAt:   o.CreatedAt,
		})
	}
	return out
}
