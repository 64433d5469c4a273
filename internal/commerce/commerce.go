package commerce

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"boxoffice/backend/internal/models"
)

var (
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
	ErrUnavailable     = errors.New("commerce backend unavailable")
)

// OrderQuery selects orders by status and creation time, newest first.
// Page is 1-based.
type OrderQuery struct {
	Statuses      []string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
	Page          int
}

// Offset returns the row offset of the page.
func (q OrderQuery) Offset() int {
	if q.Page <= 1 || q.Limit <= 0 {
		return 0
	}
	return (q.Page - 1) * q.Limit
}

// Store is the order and product model of the hosting shop.
type Store interface {
	Order(ctx context.Context, id int64) (models.Order, error)
	Orders(ctx context.Context, q OrderQuery) ([]models.Order, error)
	// ClaimOrderFlag sets flag on the order unless it is already set. When
	// requires is not empty the flag is only set if requires is present.
	// It reports whether this call set the flag.
	ClaimOrderFlag(ctx context.Context, orderID int64, flag, requires string) (bool, error)
	ReleaseOrderFlag(ctx context.Context, orderID int64, flag string) error
	Product(ctx context.Context, id int64) (models.Product, error)
	SaveProduct(ctx context.Context, p models.Product) (int64, error)
	UpdateProductStock(ctx context.Context, id int64, stock models.StockState) error
	SetProductStatus(ctx context.Context, id int64, status string) error
}

// Link ties a product or line item to a ticket of an event.
type Link struct {
	EventID int64
	Index   int
}

// LinkFromMeta reads the event/index pair. Both keys must be present and
// valid.
func LinkFromMeta(meta map[string]string) (Link, bool) {
	rawEvent := strings.TrimSpace(meta[models.MetaTicketEventID])
	rawIndex := strings.TrimSpace(meta[models.MetaTicketIndex])
	if rawEvent == "" || rawIndex == "" {
		return Link{}, false
	}
	eventID, err := strconv.ParseInt(rawEvent, 10, 64)
	if err != nil || eventID <= 0 {
		return Link{}, false
	}
	index, err := strconv.Atoi(rawIndex)
	if err != nil || index < 0 {
		return Link{}, false
	}
	return Link{EventID: eventID, Index: index}, true
}

// HasLinkMeta reports whether either linkage key is present.
func HasLinkMeta(meta map[string]string) bool {
	return strings.TrimSpace(meta[models.MetaTicketEventID]) != "" || strings.TrimSpace(meta[models.MetaTicketIndex]) != ""
}

// ResolveItemLink prefers the product's linkage and falls back to the
// snapshot stored on the line item.
func ResolveItemLink(ctx context.Context, store Store, item models.LineItem) (Link, bool) {
	if item.ProductID > 0 {
		product, err := store.Product(ctx, item.ProductID)
		if err == nil {
			if link, ok := LinkFromMeta(product.Meta); ok {
				return link, true
			}
		}
	}
	return LinkFromMeta(item.Meta)
}

// SetLinkMeta writes the linkage keys into meta, allocating it when nil.
func SetLinkMeta(meta map[string]string, link Link) map[string]string {
	if meta == nil {
		meta = make(map[string]string, 2)
	}
	meta[models.MetaTicketEventID] = strconv.FormatInt(link.EventID, 10)
	meta[models.MetaTicketIndex] = strconv.Itoa(link.Index)
	return meta
}

// Unavailable is the Store used when no shop backend is configured. Every
// call fails with ErrUnavailable; services treat that as a no-op.
type Unavailable struct{}

func (Unavailable) Order(context.Context, int64) (models.Order, error) {
	return models.Order{}, ErrUnavailable
}

func (Unavailable) Orders(context.Context, OrderQuery) ([]models.Order, error) {
	return nil, ErrUnavailable
}

func (Unavailable) ClaimOrderFlag(context.Context, int64, string, string) (bool, error) {
	return false, ErrUnavailable
}

func (Unavailable) ReleaseOrderFlag(context.Context, int64, string) error {
	return ErrUnavailable
}

func (Unavailable) Product(context.Context, int64) (models.Product, error) {
	return models.Product{}, ErrUnavailable
}

func (Unavailable) SaveProduct(context.Context, models.Product) (int64, error) {
	return 0, ErrUnavailable
}

func (Unavailable) UpdateProductStock(context.Context, int64, models.StockState) error {
	return ErrUnavailable
}

func (Unavailable) SetProductStatus(context.Context, int64, string) error {
	return ErrUnavailable
}
