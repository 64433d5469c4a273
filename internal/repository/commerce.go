package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"boxoffice/backend/internal/commerce"
	"boxoffice/backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// CommerceStore reads and writes shop orders and products in Postgres.
type CommerceStore struct {
	repo *Repository
}

var _ commerce.Store = (*CommerceStore)(nil)

const orderColumns = `id, status, currency, meta, created_at`

func (s *CommerceStore) Order(ctx context.Context, id int64) (models.Order, error) {
	row := s.repo.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM commerce_orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Order{}, commerce.ErrOrderNotFound
	}
	if err != nil {
		return models.Order{}, err
	}
	orders := []models.Order{order}
	if err := s.loadLines(ctx, orders); err != nil {
		return models.Order{}, err
	}
	return orders[0], nil
}

func (s *CommerceStore) Orders(ctx context.Context, q commerce.OrderQuery) ([]models.Order, error) {
	var after, before *time.Time
	if !q.CreatedAfter.IsZero() {
		t := q.CreatedAfter.UTC()
		after = &t
	}
	if !q.CreatedBefore.IsZero() {
		t := q.CreatedBefore.UTC()
		before = &t
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.repo.pool.Query(ctx, `
SELECT `+orderColumns+`
FROM commerce_orders
WHERE (coalesce(cardinality($1::text[]), 0) = 0 OR status = ANY($1::text[]))
	AND ($2::timestamptz IS NULL OR created_at >= $2)
	AND ($3::timestamptz IS NULL OR created_at < $3)
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5;`, q.Statuses, after, before, limit, q.Offset())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := s.loadLines(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// PutOrder inserts or replaces an order snapshot pushed by the shop. Items
// and refunds are replaced; order meta flags already set are kept.
func (s *CommerceStore) PutOrder(ctx context.Context, order models.Order) error {
	if order.ID <= 0 {
		return fmt.Errorf("order id is required")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	orderMeta, err := encodeMeta(order.Meta)
	if err != nil {
		return err
	}
	return s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO commerce_orders (id, status, currency, meta, created_at)
VALUES ($1, $2, $3, $4::jsonb, $5)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	currency = EXCLUDED.currency,
	meta = EXCLUDED.meta || commerce_orders.meta,
	created_at = EXCLUDED.created_at,
	updated_at = now();`, order.ID, order.Status, order.Currency, orderMeta, order.CreatedAt.UTC()); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM commerce_order_items WHERE order_id = $1`, order.ID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM commerce_refunds WHERE order_id = $1`, order.ID); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, item := range order.Items {
			itemMeta, err := encodeMeta(item.Meta)
			if err != nil {
				return err
			}
			batch.Queue(`
INSERT INTO commerce_order_items (id, order_id, product_id, name, quantity, subtotal_cents, total_cents, meta)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb);`,
				item.ID, order.ID, item.ProductID, item.Name, item.Quantity, int64(item.Subtotal), int64(item.Total), itemMeta)
		}
		for _, refund := range order.Refunds {
			createdAt := refund.CreatedAt
			if createdAt.IsZero() {
				createdAt = time.Now().UTC()
			}
			batch.Queue(`INSERT INTO commerce_refunds (id, order_id, total_cents, created_at) VALUES ($1, $2, $3, $4);`,
				refund.ID, order.ID, int64(refund.Total), createdAt.UTC())
			for _, line := range refund.Lines {
				batch.Queue(`
INSERT INTO commerce_refund_lines (refund_id, line_type, refunded_item_id, quantity, total_cents)
VALUES ($1, $2, $3, $4, $5);`,
					refund.ID, line.Type, line.RefundedItemID, line.Quantity, int64(line.Total))
			}
		}
		if batch.Len() == 0 {
			return nil
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// SetOrderStatus updates the status of a stored order.
func (s *CommerceStore) SetOrderStatus(ctx context.Context, id int64, status string) error {
	tag, err := s.repo.pool.Exec(ctx, `UPDATE commerce_orders SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return commerce.ErrOrderNotFound
	}
	return nil
}

func (s *CommerceStore) ClaimOrderFlag(ctx context.Context, orderID int64, flag, requires string) (bool, error) {
	tag, err := s.repo.pool.Exec(ctx, `
UPDATE commerce_orders
SET meta = meta || jsonb_build_object($2::text, '1'::text),
	updated_at = now()
WHERE id = $1
	AND coalesce(meta->>$2::text, '') IN ('', '0')
	AND ($3::text = '' OR coalesce(meta->>$3::text, '') NOT IN ('', '0'));`, orderID, flag, requires)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}
	var exists bool
	if err := s.repo.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM commerce_orders WHERE id = $1)`, orderID).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, commerce.ErrOrderNotFound
	}
	return false, nil
}

func (s *CommerceStore) ReleaseOrderFlag(ctx context.Context, orderID int64, flag string) error {
	_, err := s.repo.pool.Exec(ctx, `UPDATE commerce_orders SET meta = meta - $2::text, updated_at = now() WHERE id = $1`, orderID, flag)
	return err
}

const productColumns = `id, name, description, regular_price, sale_from, sale_to, is_virtual, visibility, status,
	manage_stock, stock_quantity, stock_status, backorders, meta, updated_at`

func (s *CommerceStore) Product(ctx context.Context, id int64) (models.Product, error) {
	row := s.repo.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM commerce_products WHERE id = $1`, id)
	var out models.Product
	var rawMeta []byte
	err := row.Scan(&out.ID, &out.Name, &out.Description, &out.RegularPrice, &out.SaleFrom, &out.SaleTo, &out.Virtual,
		&out.Visibility, &out.Status, &out.Stock.ManageStock, &out.Stock.Quantity, &out.Stock.Status, &out.Stock.Backorders,
		&rawMeta, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Product{}, commerce.ErrProductNotFound
	}
	if err != nil {
		return models.Product{}, err
	}
	if out.Meta, err = decodeMeta(rawMeta); err != nil {
		return models.Product{}, err
	}
	return out, nil
}

func (s *CommerceStore) SaveProduct(ctx context.Context, p models.Product) (int64, error) {
	productMeta, err := encodeMeta(p.Meta)
	if err != nil {
		return 0, err
	}
	args := []any{p.Name, p.Description, p.RegularPrice, p.SaleFrom, p.SaleTo, p.Virtual, p.Visibility, p.Status,
		p.Stock.ManageStock, p.Stock.Quantity, p.Stock.Status, p.Stock.Backorders, productMeta}

	if p.ID <= 0 {
		var id int64
		err := s.repo.pool.QueryRow(ctx, `
INSERT INTO commerce_products (
	name, description, regular_price, sale_from, sale_to, is_virtual, visibility, status,
	manage_stock, stock_quantity, stock_status, backorders, meta
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::jsonb)
RETURNING id;`, args...).Scan(&id)
		return id, err
	}

	tag, err := s.repo.pool.Exec(ctx, `
UPDATE commerce_products SET
	name = $1,
	description = $2,
	regular_price = $3,
	sale_from = $4,
	sale_to = $5,
	is_virtual = $6,
	visibility = $7,
	status = $8,
	manage_stock = $9,
	stock_quantity = $10,
	stock_status = $11,
	backorders = $12,
	meta = $13::jsonb,
	updated_at = now()
WHERE id = $14;`, append(args, p.ID)...)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, commerce.ErrProductNotFound
	}
	return p.ID, nil
}

func (s *CommerceStore) UpdateProductStock(ctx context.Context, id int64, stock models.StockState) error {
	tag, err := s.repo.pool.Exec(ctx, `
UPDATE commerce_products SET
	manage_stock = $2,
	stock_quantity = $3,
	stock_status = $4,
	backorders = $5,
	updated_at = now()
WHERE id = $1;`, id, stock.ManageStock, stock.Quantity, stock.Status, stock.Backorders)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return commerce.ErrProductNotFound
	}
	return nil
}

func (s *CommerceStore) SetProductStatus(ctx context.Context, id int64, status string) error {
	tag, err := s.repo.pool.Exec(ctx, `UPDATE commerce_products SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return commerce.ErrProductNotFound
	}
	return nil
}

func scanOrder(row pgx.Row) (models.Order, error) {
	var out models.Order
	var rawMeta []byte
	if err := row.Scan(&out.ID, &out.Status, &out.Currency, &rawMeta, &out.CreatedAt); err != nil {
		return models.Order{}, err
	}
	meta, err := decodeMeta(rawMeta)
	if err != nil {
		return models.Order{}, err
	}
	out.Meta = meta
	out.CreatedAt = out.CreatedAt.UTC()
	return out, nil
}

// loadLines fills items and refunds of orders with two queries each.
func (s *CommerceStore) loadLines(ctx context.Context, orders []models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(orders))
	byID := make(map[int64]*models.Order, len(orders))
	for i := range orders {
		ids = append(ids, orders[i].ID)
		byID[orders[i].ID] = &orders[i]
	}

	rows, err := s.repo.pool.Query(ctx, `
SELECT id, order_id, product_id, name, quantity, subtotal_cents, total_cents, meta
FROM commerce_order_items
WHERE order_id = ANY($1)
ORDER BY order_id, id;`, ids)
	if err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	for rows.Next() {
		var item models.LineItem
		var orderID, subtotal, total int64
		var rawMeta []byte
		if err := rows.Scan(&item.ID, &orderID, &item.ProductID, &item.Name, &item.Quantity, &subtotal, &total, &rawMeta); err != nil {
			rows.Close()
			return err
		}
		item.Subtotal = models.Amount(subtotal)
		item.Total = models.Amount(total)
		if item.Meta, err = decodeMeta(rawMeta); err != nil {
			rows.Close()
			return err
		}
		if order, ok := byID[orderID]; ok {
			order.Items = append(order.Items, item)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = s.repo.pool.Query(ctx, `
SELECT r.id, r.order_id, r.total_cents, r.created_at,
	l.line_type, l.refunded_item_id, l.quantity, l.total_cents
FROM commerce_refunds r
LEFT JOIN commerce_refund_lines l ON l.refund_id = r.id
WHERE r.order_id = ANY($1)
ORDER BY r.order_id, r.created_at, r.id, l.id;`, ids)
	if err != nil {
		return fmt.Errorf("load refunds: %w", err)
	}
	defer rows.Close()
	refundPos := map[int64]int{}
	for rows.Next() {
		var refundID, orderID, refundTotal int64
		var createdAt time.Time
		var lineType *string
		var refundedItemID, lineTotal *int64
		var lineQty *int
		if err := rows.Scan(&refundID, &orderID, &refundTotal, &createdAt, &lineType, &refundedItemID, &lineQty, &lineTotal); err != nil {
			return err
		}
		order, ok := byID[orderID]
		if !ok {
			continue
		}
		pos, seen := refundPos[refundID]
		if !seen {
			order.Refunds = append(order.Refunds, models.Refund{
				ID:        refundID,
				Total:     models.Amount(refundTotal),
				CreatedAt: createdAt.UTC(),
			})
			pos = len(order.Refunds) - 1
			refundPos[refundID] = pos
		}
		if lineType == nil {
			continue
		}
		line := models.RefundLine{Type: *lineType}
		if refundedItemID != nil {
			line.RefundedItemID = *refundedItemID
		}
		if lineQty != nil {
			line.Quantity = *lineQty
		}
		if lineTotal != nil {
			line.Total = models.Amount(*lineTotal)
		}
		order.Refunds[pos].Lines = append(order.Refunds[pos].Lines, line)
	}
	return rows.Err()
}
