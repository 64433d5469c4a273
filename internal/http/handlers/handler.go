package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"boxoffice/backend/internal/capacity"
	"boxoffice/backend/internal/commerce"
	"boxoffice/backend/internal/config"
	authmw "boxoffice/backend/internal/http/middleware"
	"boxoffice/backend/internal/integrations"
	"boxoffice/backend/internal/models"
	"boxoffice/backend/internal/productsync"
	"boxoffice/backend/internal/reports"
	"boxoffice/backend/internal/ticketing"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

// OrderIngester persists order snapshots pushed by the shop.
type OrderIngester interface {
	PutOrder(ctx context.Context, order models.Order) error
	SetOrderStatus(ctx context.Context, id int64, status string) error
}

// ReportArchiver uploads CSV exports.
type ReportArchiver interface {
	PutReport(ctx context.Context, eventID int64, body []byte, now time.Time) (integrations.Archived, error)
}

// Deps are the services the HTTP layer dispatches to. Ingester and Archive
// are optional.
type Deps struct {
	Tickets  *ticketing.Collections
	Capacity *capacity.Service
	Reports  *reports.Aggregator
	Sync     *productsync.Syncer
	Orders   commerce.Store
	Ingester OrderIngester
	Archive  ReportArchiver
}

type Handler struct {
	tickets   *ticketing.Collections
	capacity  *capacity.Service
	reports   *reports.Aggregator
	sync      *productsync.Syncer
	orders    commerce.Store
	ingester  OrderIngester
	archive   ReportArchiver
	cfg       *config.Config
	logger    *slog.Logger
	validator *validator.Validate
	now       func() time.Time
}

func New(deps Deps, cfg *config.Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	orders := deps.Orders
	if orders == nil {
		orders = commerce.Unavailable{}
	}
	return &Handler{
		tickets:   deps.Tickets,
		capacity:  deps.Capacity,
		reports:   deps.Reports,
		sync:      deps.Sync,
		orders:    orders,
		ingester:  deps.Ingester,
		archive:   deps.Archive,
		cfg:       cfg,
		logger:    logger,
		validator: validator.New(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (h *Handler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, 5*time.Second)
}

func (h *Handler) loggerForRequest(r *http.Request) *slog.Logger {
	logger := h.logger
	if logger == nil {
		return slog.Default()
	}
	if reqID := chimw.GetReqID(r.Context()); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if login, ok := authmw.AdminLoginFromContext(r.Context()); ok {
		logger = logger.With("admin", login)
	}
	return logger
}

func eventIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	body := io.LimitReader(r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func (h *Handler) storeCurrency() string {
	if h.cfg == nil || h.cfg.StoreCurrency == "" {
		return "USD"
	}
	return h.cfg.StoreCurrency
}
