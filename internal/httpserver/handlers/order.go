package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MrSnakeDoc/orderfiles/internal/domain"
	"github.com/MrSnakeDoc/orderfiles/internal/httpserver/deps"
	"github.com/MrSnakeDoc/orderfiles/internal/logger"
)

const (
	msgValidationFailed = "Validation failed."
	msgUnexpected       = "An unexpected error occurred. Please try again later."
	msgOrderReceipt     = "Order receipt."
	msgOrderNotFound    = "Order not found."

	maxOrderBody = 1 << 20

	// notifyTimeout bounds the wake raise once the order is committed.
	notifyTimeout = 5 * time.Second
)

type createOrderRequest struct {
	Brand      string   `json:"brand"`
	Variant    string   `json:"variant"`
	NetContent string   `json:"netContent"`
	OrderNeed  string   `json:"orderNeed"`
	FileLinks  []string `json:"fileLinks"`
}

type createOrderResponse struct {
	Message string `json:"message"`
	OrderID int64  `json:"orderId"`
}

type fileLinkStatus struct {
	ID        int64  `json:"id"`
	URL       string `json:"url"`
	Processed bool   `json:"processed"`
}

type orderResponse struct {
	ID         int64            `json:"id"`
	Brand      string           `json:"brand"`
	Variant    string           `json:"variant"`
	NetContent string           `json:"netContent"`
	OrderNeed  string           `json:"orderNeed"`
	CreatedAt  time.Time        `json:"createdAt"`
	Pending    int              `json:"pending"`
	FileLinks  []fileLinkStatus `json:"fileLinks"`
}

// CreateOrder validates an order, stores it with its file links and wakes the
// worker. The order id is returned once the insert is durable.
func CreateOrder(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createOrderRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxOrderBody))
		if err := dec.Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{
				Error:   msgValidationFailed,
				Details: map[string][]string{"body": {"The request body must be a JSON order."}},
			})
			return
		}

		order := domain.Order{
			Brand:      req.Brand,
			Variant:    req.Variant,
			NetContent: req.NetContent,
			OrderNeed:  req.OrderNeed,
			FileLinks:  req.FileLinks,
		}

		if err := order.Validate(); err != nil {
			var verr domain.ValidationError
			if errors.As(err, &verr) {
				writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgValidationFailed, Details: verr})
				return
			}
			writeError(w, http.StatusBadRequest, msgValidationFailed)
			return
		}

		id, err := d.Orders.Add(r.Context(), order)
		if err != nil {
			d.Logger.Error("failed to store order",
				logger.String("request_id", middleware.GetReqID(r.Context())),
				logger.Error(err))
			writeError(w, http.StatusInternalServerError, msgUnexpected)
			return
		}

		// the order is stored, the wake must not depend on the client staying
		notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), notifyTimeout)
		d.Notifier.Notify(notifyCtx)
		cancel()

		d.Logger.Info("order received",
			logger.Int64("order_id", id),
			logger.Int("file_links", len(order.FileLinks)))

		writeJSON(w, http.StatusOK, createOrderResponse{Message: msgOrderReceipt, OrderID: id})
	}
}

// GetOrder reports an order and which of its file links are done.
func GetOrder(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil || id < 1 {
			writeError(w, http.StatusNotFound, msgOrderNotFound)
			return
		}

		order, links, err := d.Orders.Order(r.Context(), id)
		if errors.Is(err, domain.ErrOrderNotFound) {
			writeError(w, http.StatusNotFound, msgOrderNotFound)
			return
		}
		if err != nil {
			d.Logger.Error("failed to load order",
				logger.Int64("order_id", id),
				logger.Error(err))
			writeError(w, http.StatusInternalServerError, msgUnexpected)
			return
		}

		resp := orderResponse{
			ID:         order.ID,
			Brand:      order.Brand,
			Variant:    order.Variant,
			NetContent: order.NetContent,
			OrderNeed:  order.OrderNeed,
			CreatedAt:  order.CreatedAt,
			FileLinks:  make([]fileLinkStatus, 0, len(links)),
		}
		for _, l := range links {
			if !l.Processed {
				resp.Pending++
			}
			resp.FileLinks = append(resp.FileLinks, fileLinkStatus{ID: l.ID, URL: l.URL, Processed: l.Processed})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}
