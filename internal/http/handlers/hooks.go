package handlers

import (
	"errors"
	"net/http"
	"strings"

	"boxoffice/backend/internal/capacity"
	"boxoffice/backend/internal/commerce"
	"boxoffice/backend/internal/models"
)

type orderStatusRequest struct {
	OrderID int64  `json:"orderId" validate:"required,gt=0"`
	Status  string `json:"status" validate:"required,max=32"`
}

// OrderStatusHook applies capacity changes for an order status transition.
// Duplicate notifications are harmless.
func (h *Handler) OrderStatusHook(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	var req orderStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("action", "action", "order_status_hook", "status", "invalid_json")
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Status = normalizeOrderStatus(req.Status)
	if err := h.validator.Struct(req); err != nil {
		writeValidationError(w, err)
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	if h.ingester != nil {
		err := h.ingester.SetOrderStatus(ctx, req.OrderID, req.Status)
		if err != nil && !errors.Is(err, commerce.ErrOrderNotFound) {
			logger.Error("action", "action", "order_status_hook", "status", "db_error", "order_id", req.OrderID, "error", err)
			writeError(w, http.StatusInternalServerError, "db error")
			return
		}
	}

	res, err := h.capacity.HandleStatusChange(ctx, req.OrderID, req.Status)
	if err != nil {
		logger.Error("action", "action", "order_status_hook", "status", "capacity_failed", "order_id", req.OrderID, "error", err)
		writeError(w, http.StatusInternalServerError, "capacity update failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type ingestOrderResponse struct {
	OrderID  int64           `json:"orderId"`
	Capacity capacity.Result `json:"capacity"`
}

// IngestOrder stores an order snapshot pushed by the shop, attaching ticket
// snapshots to lines that lack them, and applies its status.
func (h *Handler) IngestOrder(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	if h.ingester == nil {
		writeError(w, http.StatusServiceUnavailable, "order ingest disabled")
		return
	}
	var order models.Order
	if err := decodeJSON(r, &order); err != nil {
		logger.Warn("action", "action", "ingest_order", "status", "invalid_json", "error", err)
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	order.Status = normalizeOrderStatus(order.Status)
	if order.ID <= 0 || order.Status == "" {
		writeError(w, http.StatusBadRequest, "id and status required")
		return
	}
	if order.Currency == "" {
		order.Currency = h.storeCurrency()
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	if h.sync != nil {
		for i := range order.Items {
			item := &order.Items[i]
			if commerce.HasLinkMeta(item.Meta) {
				continue
			}
			snapshot, ok := h.sync.Snapshot(ctx, *item, order.Currency)
			if !ok {
				continue
			}
			if item.Meta == nil {
				item.Meta = make(map[string]string, len(snapshot))
			}
			for key, value := range snapshot {
				item.Meta[key] = value
			}
		}
	}

	if err := h.ingester.PutOrder(ctx, order); err != nil {
		logger.Error("action", "action", "ingest_order", "status", "db_error", "order_id", order.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	res, err := h.capacity.HandleStatusChange(ctx, order.ID, order.Status)
	if err != nil {
		logger.Error("action", "action", "ingest_order", "status", "capacity_failed", "order_id", order.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "capacity update failed")
		return
	}
	logger.Info("action", "action", "ingest_order", "status", "success", "order_id", order.ID, "capacity", res.Outcome)
	writeJSON(w, http.StatusOK, ingestOrderResponse{OrderID: order.ID, Capacity: res})
}

type snapshotRequest struct {
	Item     models.LineItem `json:"item"`
	Currency string          `json:"currency"`
}

type snapshotResponse struct {
	Linked bool              `json:"linked"`
	Meta   map[string]string `json:"meta,omitempty"`
}

// LineItemSnapshot returns the ticket meta the shop should store on a line
// item at checkout.
func (h *Handler) LineItemSnapshot(w http.ResponseWriter, r *http.Request) {
	var req snapshotRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if h.sync == nil {
		writeJSON(w, http.StatusOK, snapshotResponse{})
		return
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = h.storeCurrency()
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()
	snapshot, ok := h.sync.Snapshot(ctx, req.Item, currency)
	writeJSON(w, http.StatusOK, snapshotResponse{Linked: ok, Meta: snapshot})
}

// normalizeOrderStatus accepts shop statuses with or without the "wc-"
// prefix.
func normalizeOrderStatus(status string) string {
	status = strings.ToLower(strings.TrimSpace(status))
	return strings.TrimPrefix(status, "wc-")
}
