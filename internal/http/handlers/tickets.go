package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"boxoffice/backend/internal/commerce"
	"boxoffice/backend/internal/models"
	"boxoffice/backend/internal/productsync"
	"boxoffice/backend/internal/ticketing"
)

type ticketsResponse struct {
	EventID  int64            `json:"eventId"`
	Schema   int              `json:"schema"`
	Tickets  []models.Ticket  `json:"tickets"`
	Products map[string]int64 `json:"products"`
}

type saveTicketsRequest struct {
	Tickets []ticketing.TicketInput `json:"tickets" validate:"max=100,dive"`
}

type saveTicketsResponse struct {
	ticketsResponse
	Sync *productsync.Result `json:"sync,omitempty"`
}

// GetEventTickets returns the stored ticket envelope of an event.
func (h *Handler) GetEventTickets(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	eventID, ok := eventIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	resp, err := h.loadTickets(ctx, eventID)
	if err != nil {
		logger.Error("action", "action", "get_tickets", "status", "db_error", "event_id", eventID, "error", err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// PutEventTickets normalizes and saves the admin ticket editor rows, then
// mirrors them onto shop products.
func (h *Handler) PutEventTickets(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	eventID, ok := eventIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	var req saveTicketsRequest
	if err := decodeJSON(r, &req); err != nil {
		logger.Warn("action", "action", "save_tickets", "status", "invalid_json", "error", err)
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		logger.Warn("action", "action", "save_tickets", "status", "invalid_payload", "error", err)
		writeValidationError(w, err)
		return
	}

	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	written, err := h.tickets.Update(ctx, eventID, func(env *models.Envelope) bool {
		env.Tickets = ticketing.NormalizeInput(req.Tickets, env.Tickets)
		return true
	})
	if err == nil && !written {
		env := models.NewEnvelope()
		env.Tickets = ticketing.NormalizeInput(req.Tickets, nil)
		err = h.tickets.Save(ctx, eventID, env)
	}
	if err != nil {
		logger.Error("action", "action", "save_tickets", "status", "db_error", "event_id", eventID, "error", err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}

	var syncResult *productsync.Result
	if h.sync != nil {
		res, err := h.sync.Sync(productsync.WithGuard(ctx), eventID)
		if err != nil {
			logger.Error("action", "action", "save_tickets", "status", "sync_failed", "event_id", eventID, "error", err)
		} else {
			syncResult = &res
		}
	}

	resp, err := h.loadTickets(ctx, eventID)
	if err != nil {
		logger.Error("action", "action", "save_tickets", "status", "db_error", "event_id", eventID, "error", err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	logger.Info("action", "action", "save_tickets", "status", "success", "event_id", eventID, "tickets", len(resp.Tickets))
	writeJSON(w, http.StatusOK, saveTicketsResponse{ticketsResponse: resp, Sync: syncResult})
}

// SyncEventProducts forces a product sync for the event.
func (h *Handler) SyncEventProducts(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	eventID, ok := eventIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	if h.sync == nil {
		writeError(w, http.StatusServiceUnavailable, "product sync disabled")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	res, err := h.sync.Sync(productsync.WithGuard(ctx), eventID)
	if err != nil {
		logger.Error("action", "action", "sync_products", "status", "failed", "event_id", eventID, "error", err)
		writeError(w, http.StatusInternalServerError, "sync failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type offersResponse struct {
	EventID    int64             `json:"eventId"`
	ServerTime time.Time         `json:"serverTime"`
	Currency   string            `json:"currency"`
	Tickets    []ticketing.Offer `json:"tickets"`
}

// ListEventOffers returns the public ticket list with prices resolved at a
// single point in time.
func (h *Handler) ListEventOffers(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	eventID, ok := eventIDParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid event id")
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	collection, err := h.tickets.Load(ctx, eventID)
	if err != nil {
		logger.Error("action", "action", "list_offers", "status", "db_error", "event_id", eventID, "error", err)
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	productMap := map[string]int64{}
	if h.sync != nil {
		if productMap, err = h.sync.ProductMap(ctx, eventID); err != nil {
			logger.Warn("action", "action", "list_offers", "status", "product_map_unavailable", "event_id", eventID, "error", err)
			productMap = map[string]int64{}
		}
	}

	now := h.now()
	writeJSON(w, http.StatusOK, offersResponse{
		EventID:    eventID,
		ServerTime: now,
		Currency:   h.storeCurrency(),
		Tickets:    ticketing.BuildOffers(collection.All(), productMap, now),
	})
}

type cartLineRequest struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"gte=0,lte=1000"`
}

// cartModeAdd checks lines before they enter the cart and rejects sold-out
// stock outright. The default "cart" mode revalidates existing lines.
const cartModeAdd = "add"

type cartValidateRequest struct {
	Mode  string            `json:"mode" validate:"omitempty,oneof=cart add"`
	Lines []cartLineRequest `json:"lines" validate:"required,max=100,dive"`
}

type cartLineResponse struct {
	ProductID int64                  `json:"productId"`
	EventID   int64                  `json:"eventId,omitempty"`
	Index     *int                   `json:"index,omitempty"`
	Decision  ticketing.CartDecision `json:"decision"`
	Pricing   *ticketing.Resolution  `json:"pricing,omitempty"`
}

type cartValidateResponse struct {
	Lines   []cartLineResponse `json:"lines"`
	Notices []ticketing.Notice `json:"notices"`
}

// ValidateCart revalidates cart lines against sale windows and remaining
// capacity and reprices the lines that stay.
func (h *Handler) ValidateCart(w http.ResponseWriter, r *http.Request) {
	logger := h.loggerForRequest(r)
	var req cartValidateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeValidationError(w, err)
		return
	}
	ctx, cancel := h.withTimeout(r.Context())
	defer cancel()

	now := h.now()
	resp := cartValidateResponse{Lines: make([]cartLineResponse, 0, len(req.Lines)), Notices: []ticketing.Notice{}}
	for _, line := range req.Lines {
		out := cartLineResponse{ProductID: line.ProductID}
		ticket, product, err := h.lookupCartLine(ctx, line.ProductID)
		if err != nil {
			logger.Error("action", "action", "validate_cart", "status", "lookup_failed", "product_id", line.ProductID, "error", err)
			writeError(w, http.StatusInternalServerError, "lookup failed")
			return
		}
		if product != nil {
			if link, ok := commerce.LinkFromMeta(product.Meta); ok {
				out.EventID = link.EventID
				index := link.Index
				out.Index = &index
			}
		}
		if req.Mode == cartModeAdd {
			out.Decision = ticketing.CheckAddToCart(ticket, product, line.Quantity, now)
		} else {
			out.Decision = ticketing.CheckCartLine(ticket, product, line.Quantity, now)
		}
		if !out.Decision.Remove && ticket != nil {
			pricing := ticketing.ResolvePrice(*ticket, now)
			out.Pricing = &pricing
		}
		if out.Decision.Notice != nil {
			resp.Notices = append(resp.Notices, *out.Decision.Notice)
		}
		resp.Lines = append(resp.Lines, out)
	}
	writeJSON(w, http.StatusOK, resp)
}

// lookupCartLine resolves the product and its linked ticket. Missing
// records come back as nil without error.
func (h *Handler) lookupCartLine(ctx context.Context, productID int64) (*models.Ticket, *models.Product, error) {
	product, err := h.orders.Product(ctx, productID)
	if errors.Is(err, commerce.ErrProductNotFound) || errors.Is(err, commerce.ErrUnavailable) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	link, ok := commerce.LinkFromMeta(product.Meta)
	if !ok {
		return nil, &product, nil
	}
	collection, err := h.tickets.Load(ctx, link.EventID)
	if err != nil {
		return nil, nil, err
	}
	ticket, ok := collection.At(link.Index)
	if !ok {
		return nil, &product, nil
	}
	return &ticket, &product, nil
}

func (h *Handler) loadTickets(ctx context.Context, eventID int64) (ticketsResponse, error) {
	collection, err := h.tickets.Load(ctx, eventID)
	if err != nil {
		return ticketsResponse{}, err
	}
	products := map[string]int64{}
	if h.sync != nil {
		if products, err = h.sync.ProductMap(ctx, eventID); err != nil {
			return ticketsResponse{}, err
		}
	}
	return ticketsResponse{
		EventID:  eventID,
		Schema:   models.EnvelopeSchema,
		Tickets:  collection.All(),
		Products: products,
	}, nil
}
