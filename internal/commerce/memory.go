package commerce

import (
	"context"
	"sort"
	"sync"
	"time"

	"boxoffice/backend/internal/models"
)

// Memory is an in-process Store used by tests and local runs.
type Memory struct {
	mu            sync.Mutex
	orders        map[int64]models.Order
	products      map[int64]models.Product
	nextProductID int64
}

func NewMemory() *Memory {
	return &Memory{
		orders:        make(map[int64]models.Order),
		products:      make(map[int64]models.Product),
		nextProductID: 1000,
	}
}

// PutOrder inserts or replaces an order.
func (m *Memory) PutOrder(order models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	m.orders[order.ID] = cloneOrder(order)
}

// SetOrderStatus changes the stored status of an order.
func (m *Memory) SetOrderStatus(id int64, status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if order, ok := m.orders[id]; ok {
		order.Status = status
		m.orders[id] = order
	}
}

// PutProduct inserts or replaces a product, keeping its id.
func (m *Memory) PutProduct(product models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if product.ID >= m.nextProductID {
		m.nextProductID = product.ID + 1
	}
	m.products[product.ID] = cloneProduct(product)
}

func (m *Memory) Order(ctx context.Context, id int64) (models.Order, error) {
	if err := ctx.Err(); err != nil {
		return models.Order{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[id]
	if !ok {
		return models.Order{}, ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (m *Memory) Orders(ctx context.Context, q OrderQuery) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	statuses := make(map[string]struct{}, len(q.Statuses))
	for _, status := range q.Statuses {
		statuses[status] = struct{}{}
	}

	matched := make([]models.Order, 0, len(m.orders))
	for _, order := range m.orders {
		if len(statuses) > 0 {
			if _, ok := statuses[order.Status]; !ok {
				continue
			}
		}
		if !q.CreatedAfter.IsZero() && order.CreatedAt.Before(q.CreatedAfter) {
			continue
		}
		if !q.CreatedBefore.IsZero() && !order.CreatedAt.Before(q.CreatedBefore) {
			continue
		}
		matched = append(matched, order)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	start := q.Offset()
	if start >= len(matched) {
		return []models.Order{}, nil
	}
	end := len(matched)
	if q.Limit > 0 && start+q.Limit < end {
		end = start + q.Limit
	}
	out := make([]models.Order, 0, end-start)
	for _, order := range matched[start:end] {
		out = append(out, cloneOrder(order))
	}
	return out, nil
}

func (m *Memory) ClaimOrderFlag(ctx context.Context, orderID int64, flag, requires string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return false, ErrOrderNotFound
	}
	if order.HasFlag(flag) {
		return false, nil
	}
	if requires != "" && !order.HasFlag(requires) {
		return false, nil
	}
	if order.Meta == nil {
		order.Meta = make(map[string]string)
	}
	order.Meta[flag] = "1"
	m.orders[orderID] = order
	return true, nil
}

func (m *Memory) ReleaseOrderFlag(ctx context.Context, orderID int64, flag string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return ErrOrderNotFound
	}
	delete(order.Meta, flag)
	m.orders[orderID] = order
	return nil
}

func (m *Memory) Product(ctx context.Context, id int64) (models.Product, error) {
	if err := ctx.Err(); err != nil {
		return models.Product{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok {
		return models.Product{}, ErrProductNotFound
	}
	return cloneProduct(product), nil
}

func (m *Memory) SaveProduct(ctx context.Context, p models.Product) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID <= 0 {
		p.ID = m.nextProductID
		m.nextProductID++
	} else if _, ok := m.products[p.ID]; !ok {
		return 0, ErrProductNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	m.products[p.ID] = cloneProduct(p)
	return p.ID, nil
}

func (m *Memory) UpdateProductStock(ctx context.Context, id int64, stock models.StockState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok {
		return ErrProductNotFound
	}
	product.Stock = stock
	m.products[id] = product
	return nil
}

func (m *Memory) SetProductStatus(ctx context.Context, id int64, status string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	product, ok := m.products[id]
	if !ok {
		return ErrProductNotFound
	}
	product.Status = status
	m.products[id] = product
	return nil
}

func cloneOrder(order models.Order) models.Order {
	out := order
	out.Meta = cloneMeta(order.Meta)
	out.Items = make([]models.LineItem, len(order.Items))
	for i, item := range order.Items {
		item.Meta = cloneMeta(item.Meta)
		out.Items[i] = item
	}
	out.Refunds = make([]models.Refund, len(order.Refunds))
	for i, refund := range order.Refunds {
		refund.Lines = append([]models.RefundLine(nil), refund.Lines...)
		out.Refunds[i] = refund
	}
	return out
}

func cloneProduct(product models.Product) models.Product {
	out := product
	out.Meta = cloneMeta(product.Meta)
	return out
}

func cloneMeta(meta map[string]string) map[string]string {
	if meta == nil {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
