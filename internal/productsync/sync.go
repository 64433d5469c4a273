package productsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"boxoffice/backend/internal/commerce"
	"boxoffice/backend/internal/meta"
	"boxoffice/backend/internal/metrics"
	"boxoffice/backend/internal/models"
	"boxoffice/backend/internal/ticketing"
)

// Result summarizes one sync run.
type Result struct {
	Products    map[string]int64 `json:"products"`
	Created     int              `json:"created"`
	Updated     int              `json:"updated"`
	Drafted     int              `json:"drafted"`
	Skipped     bool             `json:"skipped"`
	Unavailable bool             `json:"unavailable"`
}

// Syncer mirrors an event's tickets onto hidden shop products.
type Syncer struct {
	tickets  *ticketing.Collections
	meta     meta.Store
	products commerce.Store
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func New(tickets *ticketing.Collections, store meta.Store, products commerce.Store, logger *slog.Logger, m *metrics.Metrics) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	if products == nil {
		products = commerce.Unavailable{}
	}
	return &Syncer{tickets: tickets, meta: store, products: products, logger: logger, metrics: m}
}

type guardKey struct{}

type guard struct {
	mu      sync.Mutex
	running map[int64]struct{}
}

// WithGuard marks ctx so that nested Sync calls for an event already being
// synced under the same ctx return early.
func WithGuard(ctx context.Context) context.Context {
	if _, ok := ctx.Value(guardKey{}).(*guard); ok {
		return ctx
	}
	return context.WithValue(ctx, guardKey{}, &guard{running: map[int64]struct{}{}})
}

func (g *guard) enter(eventID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.running[eventID]; ok {
		return false
	}
	g.running[eventID] = struct{}{}
	return true
}

func (g *guard) leave(eventID int64) {
	g.mu.Lock()
	delete(g.running, eventID)
	g.mu.Unlock()
}

// ProductMap returns the ticket index to product id map of the event.
func (s *Syncer) ProductMap(ctx context.Context, eventID int64) (map[string]int64, error) {
	raw, err := s.meta.Get(ctx, eventID, models.MetaKeyProductMap)
	if errors.Is(err, meta.ErrNotFound) {
		return map[string]int64{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load product map: %w", err)
	}
	productMap := map[string]int64{}
	if err := json.Unmarshal(raw, &productMap); err != nil {
		s.logger.Warn("product_map_ignored", "event_id", eventID, "error", err)
		return map[string]int64{}, nil
	}
	return productMap, nil
}

// Sync creates or updates one product per ticket, drafts products that no
// longer map to a ticket and stores the new map.
func (s *Syncer) Sync(ctx context.Context, eventID int64) (Result, error) {
	if g, ok := ctx.Value(guardKey{}).(*guard); ok {
		if !g.enter(eventID) {
			return Result{Skipped: true}, nil
		}
		defer g.leave(eventID)
	}
	logger := s.logger.With("event_id", eventID)

	collection, err := s.tickets.Load(ctx, eventID)
	if err != nil {
		return Result{}, err
	}
	oldMap, err := s.ProductMap(ctx, eventID)
	if err != nil {
		return Result{}, err
	}

	if collection.Count() == 0 {
		if err := meta.SetJSON(ctx, s.meta, eventID, models.MetaKeyProductMap, map[string]int64{}); err != nil {
			return Result{}, fmt.Errorf("clear product map: %w", err)
		}
		logger.Info("product_map_cleared")
		return Result{Products: map[string]int64{}}, nil
	}

	result := Result{Products: map[string]int64{}}
	for _, ticket := range collection.All() {
		key := strconv.Itoa(ticket.Index)
		product, existed, err := s.mappedProduct(ctx, oldMap[key], eventID, ticket.Index)
		if errors.Is(err, commerce.ErrUnavailable) {
			return Result{Unavailable: true}, nil
		}
		if err != nil {
			return Result{}, err
		}

		applyTicket(&product, ticket)
		product.Meta = commerce.SetLinkMeta(product.Meta, commerce.Link{EventID: eventID, Index: ticket.Index})

		id, err := s.products.SaveProduct(ctx, product)
		if errors.Is(err, commerce.ErrUnavailable) {
			return Result{Unavailable: true}, nil
		}
		if err != nil {
			return Result{}, fmt.Errorf("save product for ticket %d: %w", ticket.Index, err)
		}
		if existed {
			result.Updated++
		} else {
			result.Created++
		}
		s.metrics.ProductSynced()
		result.Products[key] = id
	}

	for _, key := range sortedKeys(oldMap) {
		productID := oldMap[key]
		if productID <= 0 || containsProduct(result.Products, productID) {
			continue
		}
		err := s.products.SetProductStatus(ctx, productID, models.ProductStatusDraft)
		if err != nil && !errors.Is(err, commerce.ErrProductNotFound) {
			logger.Warn("product_draft_failed", "product_id", productID, "error", err)
			continue
		}
		if err == nil {
			result.Drafted++
		}
	}

	if err := meta.SetJSON(ctx, s.meta, eventID, models.MetaKeyProductMap, result.Products); err != nil {
		return Result{}, fmt.Errorf("store product map: %w", err)
	}
	logger.Info("products_synced", "created", result.Created, "updated", result.Updated, "drafted", result.Drafted)
	return result, nil
}

// mappedProduct returns the product previously mapped to the ticket when it
// still links to the same event and index.
func (s *Syncer) mappedProduct(ctx context.Context, productID, eventID int64, index int) (models.Product, bool, error) {
	if productID <= 0 {
		return models.Product{}, false, nil
	}
	product, err := s.products.Product(ctx, productID)
	if errors.Is(err, commerce.ErrProductNotFound) {
		return models.Product{}, false, nil
	}
	if err != nil {
		return models.Product{}, false, err
	}
	link, ok := commerce.LinkFromMeta(product.Meta)
	if !ok || link.EventID != eventID || link.Index != index {
		return models.Product{}, false, nil
	}
	return product, true, nil
}

func applyTicket(product *models.Product, ticket models.Ticket) {
	product.Name = ticket.Name
	if product.Name == "" {
		product.Name = "Ticket " + strconv.Itoa(ticket.Index+1)
	}
	product.Description = ticket.Description
	if price, ok := ticketing.NormalizePrice(ticket.Price); ok {
		product.RegularPrice = price
	} else {
		product.RegularPrice = ticket.Price
	}
	product.SaleFrom = ticket.SaleStart
	product.SaleTo = ticket.SaleEnd
	product.Virtual = true
	product.Visibility = models.VisibilityHidden
	product.Status = models.ProductStatusPrivate

	if ticket.Capacity > 0 {
		product.Stock = models.StockState{
			ManageStock: true,
			Quantity:    ticket.Capacity,
			Status:      models.StockInStock,
			Backorders:  models.BackordersNo,
		}
		return
	}
	product.Stock = models.StockState{
		Status:     models.StockInStock,
		Backorders: models.BackordersNo,
	}
}

func containsProduct(productMap map[string]int64, productID int64) bool {
	for _, id := range productMap {
		if id == productID {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
