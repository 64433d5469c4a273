package reports

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"boxoffice/backend/internal/cache"
	"boxoffice/backend/internal/commerce"
	"boxoffice/backend/internal/metrics"
	"boxoffice/backend/internal/models"
)

const (
	DefaultCacheTTL = 600 * time.Second
	DefaultPageSize = 50

	UnattributedRowName = "Unattributed refunds"
	cacheKeyPrefix      = "tickets_reports_"
	orderDateLayout     = "2006-01-02 15:04:05"
)

// AllowedStatuses are the order statuses a report can be filtered by.
var AllowedStatuses = []string{
	models.OrderStatusProcessing,
	models.OrderStatusCompleted,
	models.OrderStatusRefunded,
	models.OrderStatusCancelled,
}

type Options struct {
	CacheTTL time.Duration
	PageSize int
}

// Aggregator reconciles sales and refunds of an event's tickets.
type Aggregator struct {
	orders   commerce.Store
	cache    cache.Cache
	ttl      time.Duration
	pageSize int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewAggregator(orders commerce.Store, c cache.Cache, opts Options, logger *slog.Logger, m *metrics.Metrics) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	if orders == nil {
		orders = commerce.Unavailable{}
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	return &Aggregator{
		orders:   orders,
		cache:    c,
		ttl:      opts.CacheTTL,
		pageSize: opts.PageSize,
		logger:   logger,
		metrics:  m,
	}
}

// NormalizeStatuses keeps allowed statuses in first-seen order. An empty
// result selects every allowed status.
func NormalizeStatuses(statuses []string) []string {
	seen := map[string]struct{}{}
	clean := make([]string, 0, len(statuses))
	for _, status := range statuses {
		status = strings.TrimSpace(status)
		if !isAllowed(status) {
			continue
		}
		if _, ok := seen[status]; ok {
			continue
		}
		seen[status] = struct{}{}
		clean = append(clean, status)
	}
	if len(clean) == 0 {
		return append([]string(nil), AllowedStatuses...)
	}
	return clean
}

// CacheKey derives the report cache key from every aggregation input.
func CacheKey(eventID int64, statuses []string, dr models.DateRange) string {
	raw := fmt.Sprintf("%d|%s|%s|%s", eventID, strings.Join(statuses, ","), formatBound(dr.After), formatBound(dr.Before))
	sum := md5.Sum([]byte(raw))
	return cacheKeyPrefix + hex.EncodeToString(sum[:])
}

// Aggregate returns the reconciled report, served from cache when fresh.
func (a *Aggregator) Aggregate(ctx context.Context, eventID int64, statuses []string, dr models.DateRange) (models.ReportResult, error) {
	statuses = NormalizeStatuses(statuses)
	key := CacheKey(eventID, statuses, dr)

	if a.cache != nil {
		var cached models.ReportResult
		found, err := a.cache.Get(ctx, key, &cached)
		if err != nil {
			a.logger.Warn("report_cache_read_failed", "event_id", eventID, "error", err)
		}
		a.metrics.ReportCache(found)
		if found {
			return cached, nil
		}
	}

	acc := newAccumulator(eventID, statuses)
	fetch := unionStatuses(statuses, models.OrderStatusCancelled, models.OrderStatusRefunded)
	err := a.iterateOrders(ctx, fetch, dr, func(order models.Order) {
		acc.addOrder(ctx, a.orders, order)
	})
	if errors.Is(err, commerce.ErrUnavailable) {
		return acc.result(), nil
	}
	if err != nil {
		return models.ReportResult{}, err
	}

	result := acc.result()
	if a.cache != nil {
		if err := a.cache.Set(ctx, key, result, a.ttl); err != nil {
			a.logger.Warn("report_cache_write_failed", "event_id", eventID, "error", err)
		}
	}
	a.logger.Info("report_aggregated", "event_id", eventID, "orders", result.Summary.OrdersCount, "tickets", result.Summary.TicketsSold)
	return result, nil
}

// IterateOrderItems streams one row per order line of the event. Refunds are
// not reconciled. It stops at the first error returned by fn.
func (a *Aggregator) IterateOrderItems(ctx context.Context, eventID int64, statuses []string, dr models.DateRange, fn func(models.ExportRow) error) error {
	statuses = NormalizeStatuses(statuses)
	lookup := newProductLookup(a.orders)
	var fnErr error
	err := a.iterateOrders(ctx, statuses, dr, func(order models.Order) {
		if fnErr != nil {
			return
		}
		for _, item := range order.Items {
			tc := itemContext(ctx, lookup, item)
			if tc.eventID != eventID {
				continue
			}
			row := models.ExportRow{
				OrderID:     order.ID,
				OrderDate:   formatOrderDate(order.CreatedAt),
				OrderStatus: order.Status,
				TicketName:  tc.name,
				TicketIndex: tc.index,
				Qty:         item.Quantity,
				UnitPrice:   item.Meta[models.MetaTicketUnitPrice],
				LineTotal:   item.Total.String(),
				Currency:    item.Meta[models.MetaTicketCurrency],
			}
			if err := fn(row); err != nil {
				fnErr = err
				return
			}
		}
	})
	if fnErr != nil {
		return fnErr
	}
	if errors.Is(err, commerce.ErrUnavailable) {
		return nil
	}
	return err
}

// iterateOrders pages through the order source until a short page.
func (a *Aggregator) iterateOrders(ctx context.Context, statuses []string, dr models.DateRange, fn func(models.Order)) error {
	for page := 1; ; page++ {
		orders, err := a.orders.Orders(ctx, commerce.OrderQuery{
			Statuses:      statuses,
			CreatedAfter:  dr.After,
			CreatedBefore: dr.Before,
			Limit:         a.pageSize,
			Page:          page,
		})
		if err != nil {
			if errors.Is(err, commerce.ErrUnavailable) {
				return err
			}
			return fmt.Errorf("list orders page %d: %w", page, err)
		}
		for _, order := range orders {
			fn(order)
		}
		if len(orders) < a.pageSize {
			return nil
		}
	}
}

type accumulator struct {
	eventID  int64
	statuses map[string]struct{}
	lookup   *productLookup
	summary  models.ReportSummary
	rows     map[string]*models.TicketReportRow
}

func newAccumulator(eventID int64, statuses []string) *accumulator {
	selected := make(map[string]struct{}, len(statuses))
	for _, status := range statuses {
		selected[status] = struct{}{}
	}
	return &accumulator{
		eventID:  eventID,
		statuses: selected,
		rows:     map[string]*models.TicketReportRow{},
	}
}

type orderTicket struct {
	name  string
	index string
	qty   int
	gross models.Amount
}

func (acc *accumulator) addOrder(ctx context.Context, store commerce.Store, order models.Order) {
	if acc.lookup == nil {
		acc.lookup = newProductLookup(store)
	}

	hasEventItems := false
	var orderGross models.Amount
	orderQty := 0
	var orderKeys []string
	orderRows := map[string]*orderTicket{}

	for _, item := range order.Items {
		tc := itemContext(ctx, acc.lookup, item)
		if tc.eventID != acc.eventID {
			continue
		}
		hasEventItems = true
		if item.Quantity <= 0 {
			acc.summary.AdjustmentsDetected = true
			continue
		}
		orderGross += item.Total
		orderQty += item.Quantity

		key := tc.key()
		row, ok := orderRows[key]
		if !ok {
			row = &orderTicket{name: tc.name, index: tc.index}
			orderRows[key] = row
			orderKeys = append(orderKeys, key)
		}
		row.qty += item.Quantity
		row.gross += item.Total
	}
	if !hasEventItems {
		return
	}

	var mappedSum, unattributed models.Amount
	mappedQty := 0
	for _, refund := range order.Refunds {
		refundTotal := refund.Total.Abs()
		ticketLines := refund.LinesOf(models.RefundLineItem)
		if len(ticketLines) == 0 {
			unattributed += refundTotal
			acc.summary.UnattributedRefundsCount++
			continue
		}

		var mappedThis models.Amount
		for _, line := range ticketLines {
			if line.RefundedItemID <= 0 {
				continue
			}
			original, ok := order.Item(line.RefundedItemID)
			if !ok {
				continue
			}
			tc := itemContext(ctx, acc.lookup, original)
			if tc.eventID != acc.eventID {
				continue
			}
			row := acc.row(tc.key(), tc.name, tc.index)
			qty := line.Quantity
			if qty < 0 {
				qty = -qty
			}
			amount := line.Total.Abs()
			row.RefundedQty += qty
			row.RefundedAmount += amount
			mappedThis += amount
			mappedQty += qty
		}

		var other models.Amount
		for _, kind := range []string{models.RefundLineShipping, models.RefundLineFee, models.RefundLineTax} {
			for _, line := range refund.LinesOf(kind) {
				other += line.Total.Abs()
			}
		}
		if remaining := refundTotal - mappedThis - other; remaining > 0 {
			unattributed += remaining
		}
		if other > 0 {
			unattributed += other
		}
		mappedSum += mappedThis
	}

	if mappedSum > 0 {
		acc.summary.RefundedMappedTotal += mappedSum
		acc.summary.RefundedQty += mappedQty
	}
	if unattributed > 0 {
		acc.summary.UnattributedRefundsAmount += unattributed
	}

	fullyRefunded := orderGross > 0 && mappedSum+unattributed >= orderGross
	_, selected := acc.statuses[order.Status]
	paid := order.Status == models.OrderStatusProcessing || order.Status == models.OrderStatusCompleted
	if !selected || !paid || fullyRefunded {
		return
	}

	acc.summary.GrossSales += orderGross
	acc.summary.TicketsSold += orderQty
	acc.summary.OrdersCount++
	for _, key := range orderKeys {
		data := orderRows[key]
		row := acc.row(key, data.name, data.index)
		row.SoldQty += data.qty
		row.Gross += data.gross
	}
}

func (acc *accumulator) row(key, name, index string) *models.TicketReportRow {
	row, ok := acc.rows[key]
	if !ok {
		row = &models.TicketReportRow{TicketName: name, TicketIndex: index}
		acc.rows[key] = row
	}
	return row
}

func (acc *accumulator) result() models.ReportResult {
	summary := acc.summary
	summary.RefundedAmount = summary.RefundedMappedTotal + summary.UnattributedRefundsAmount
	summary.NetSales = summary.GrossSales - summary.RefundedAmount

	rows := make([]models.TicketReportRow, 0, len(acc.rows)+1)
	for _, row := range acc.rows {
		r := *row
		r.Net = r.Gross - r.RefundedAmount
		rows = append(rows, r)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TicketName == rows[j].TicketName {
			return rows[i].TicketIndex < rows[j].TicketIndex
		}
		return rows[i].TicketName < rows[j].TicketName
	})
	if summary.UnattributedRefundsAmount > 0 {
		rows = append(rows, models.TicketReportRow{
			TicketName:     UnattributedRowName,
			RefundedAmount: summary.UnattributedRefundsAmount,
			Net:            -summary.UnattributedRefundsAmount,
		})
	}
	return models.ReportResult{Summary: summary, ByTicket: rows}
}

type ticketContext struct {
	eventID int64
	index   string
	name    string
}

// key groups rows by ticket index, falling back to the name.
func (tc ticketContext) key() string {
	if tc.index != "" {
		return tc.index
	}
	return tc.name
}

// itemContext reads the line snapshot first and falls back to the product's
// linkage when the snapshot has no event.
func itemContext(ctx context.Context, lookup *productLookup, item models.LineItem) ticketContext {
	eventID := parseEventID(item.Meta[models.MetaTicketEventID])
	index := strings.TrimSpace(item.Meta[models.MetaTicketIndex])
	if eventID <= 0 && item.ProductID > 0 {
		if productMeta, ok := lookup.meta(ctx, item.ProductID); ok {
			eventID = parseEventID(productMeta[models.MetaTicketEventID])
			index = strings.TrimSpace(productMeta[models.MetaTicketIndex])
		}
	}
	name := item.Meta[models.MetaTicketName]
	if name == "" {
		name = item.Name
	}
	return ticketContext{eventID: eventID, index: index, name: name}
}

func parseEventID(raw string) int64 {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// productLookup memoizes product meta for one aggregation pass.
type productLookup struct {
	store commerce.Store
	seen  map[int64]map[string]string
}

func newProductLookup(store commerce.Store) *productLookup {
	return &productLookup{store: store, seen: map[int64]map[string]string{}}
}

func (l *productLookup) meta(ctx context.Context, productID int64) (map[string]string, bool) {
	if m, ok := l.seen[productID]; ok {
		return m, m != nil
	}
	product, err := l.store.Product(ctx, productID)
	if err != nil {
		l.seen[productID] = nil
		return nil, false
	}
	l.seen[productID] = product.Meta
	return product.Meta, product.Meta != nil
}

func isAllowed(status string) bool {
	for _, allowed := range AllowedStatuses {
		if status == allowed {
			return true
		}
	}
	return false
}

func unionStatuses(statuses []string, extra ...string) []string {
	out := append([]string(nil), statuses...)
	for _, status := range extra {
		found := false
		for _, existing := range out {
			if existing == status {
				found = true
				break
			}
		}
		if !found {
			out = append(out, status)
		}
	}
	return out
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatOrderDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(orderDateLayout)
}
