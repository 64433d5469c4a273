package reports

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"boxoffice/backend/internal/cache"
	"boxoffice/backend/internal/commerce"
	"boxoffice/backend/internal/models"

	"github.com/stretchr/testify/require"
)

func amt(raw string) models.Amount {
	return models.MustAmount(raw)
}

func seedStore() *commerce.Memory {
	store := commerce.NewMemory()
	store.PutProduct(models.Product{ID: 701, Meta: commerce.SetLinkMeta(nil, commerce.Link{EventID: 7, Index: 0})})
	store.PutProduct(models.Product{ID: 702, Meta: commerce.SetLinkMeta(nil, commerce.Link{EventID: 7, Index: 1})})
	store.PutProduct(models.Product{ID: 801, Meta: commerce.SetLinkMeta(nil, commerce.Link{EventID: 8, Index: 0})})

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	store.PutOrder(models.Order{ID: 1, Status: models.OrderStatusCompleted, CreatedAt: base, Items: []models.LineItem{
		{ID: 11, ProductID: 701, Name: "GA", Quantity: 2, Total: amt("40.00"), Meta: map[string]string{
			models.MetaTicketUnitPrice: "20.00",
			models.MetaTicketCurrency:  "USD",
		}},
		{ID: 12, ProductID: 801, Name: "Other", Quantity: 1, Total: amt("99.00")},
	}})
	store.PutOrder(models.Order{ID: 2, Status: models.OrderStatusCompleted, CreatedAt: base.Add(time.Hour), Items: []models.LineItem{
		{ID: 21, ProductID: 702, Name: "VIP", Quantity: 1, Total: amt("100.00")},
	}, Refunds: []models.Refund{
		{ID: 201, Total: amt("100.00"), Lines: []models.RefundLine{
			{Type: models.RefundLineItem, RefundedItemID: 21, Quantity: -1, Total: amt("-100.00")},
		}},
	}})
	store.PutOrder(models.Order{ID: 3, Status: models.OrderStatusProcessing, CreatedAt: base.Add(2 * time.Hour), Items: []models.LineItem{
		{ID: 31, ProductID: 701, Name: "GA", Quantity: 1, Total: amt("20.00")},
	}, Refunds: []models.Refund{
		{ID: 301, Total: amt("15.00")},
	}})
	store.PutOrder(models.Order{ID: 4, Status: models.OrderStatusCancelled, CreatedAt: base.Add(3 * time.Hour), Items: []models.LineItem{
		{ID: 41, ProductID: 701, Name: "GA", Quantity: 1, Total: amt("20.00")},
	}})
	store.PutOrder(models.Order{ID: 5, Status: models.OrderStatusCompleted, CreatedAt: base.Add(4 * time.Hour), Items: []models.LineItem{
		{ID: 51, Name: "GA", Quantity: 0, Meta: commerce.SetLinkMeta(nil, commerce.Link{EventID: 7, Index: 0})},
		{ID: 52, ProductID: 701, Name: "GA", Quantity: 2, Total: amt("40.00")},
	}, Refunds: []models.Refund{
		{ID: 501, Total: amt("25.00"), Lines: []models.RefundLine{
			{Type: models.RefundLineItem, RefundedItemID: 52, Quantity: -1, Total: amt("-20.00")},
			{Type: models.RefundLineShipping, Total: amt("-5.00")},
		}},
	}})
	store.PutOrder(models.Order{ID: 6, Status: models.OrderStatusCompleted, CreatedAt: base.Add(5 * time.Hour), Items: []models.LineItem{
		{ID: 61, ProductID: 801, Name: "Other", Quantity: 3, Total: amt("30.00")},
	}})
	return store
}

func TestAggregateReconcilesRefunds(t *testing.T) {
	agg := NewAggregator(seedStore(), nil, Options{PageSize: 2}, nil, nil)

	result, err := agg.Aggregate(context.Background(), 7, nil, models.DateRange{})
	require.NoError(t, err)

	require.Equal(t, models.ReportSummary{
		GrossSales:                amt("100.00"),
		RefundedMappedTotal:       amt("120.00"),
		RefundedAmount:            amt("140.00"),
		NetSales:                  amt("-40.00"),
		OrdersCount:               3,
		TicketsSold:               5,
		RefundedQty:               2,
		UnattributedRefundsAmount: amt("20.00"),
		UnattributedRefundsCount:  1,
		AdjustmentsDetected:       true,
	}, result.Summary)

	require.Equal(t, []models.TicketReportRow{
		{TicketName: "GA", TicketIndex: "0", SoldQty: 5, Gross: amt("100.00"), RefundedQty: 1, RefundedAmount: amt("20.00"), Net: amt("80.00")},
		{TicketName: "VIP", TicketIndex: "1", RefundedQty: 1, RefundedAmount: amt("100.00"), Net: amt("-100.00")},
		{TicketName: UnattributedRowName, RefundedAmount: amt("20.00"), Net: amt("-20.00")},
	}, result.ByTicket)
}

func TestAggregateRespectsStatusAndRange(t *testing.T) {
	agg := NewAggregator(seedStore(), nil, Options{}, nil, nil)
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	result, err := agg.Aggregate(context.Background(), 7, []string{"processing", "bogus"}, models.DateRange{})
	require.NoError(t, err)
	require.Equal(t, 1, result.Summary.OrdersCount)
	require.Equal(t, amt("20.00"), result.Summary.GrossSales)

	result, err = agg.Aggregate(context.Background(), 7, nil, models.DateRange{
		After:  base,
		Before: base.Add(time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, 1, result.Summary.OrdersCount)
	require.Equal(t, 2, result.Summary.TicketsSold)
	require.Zero(t, result.Summary.RefundedAmount)
}

func TestAggregateUsesCache(t *testing.T) {
	store := seedStore()
	agg := NewAggregator(store, cache.NewMemory(), Options{CacheTTL: time.Minute}, nil, nil)
	ctx := context.Background()

	first, err := agg.Aggregate(ctx, 7, nil, models.DateRange{})
	require.NoError(t, err)

	store.SetOrderStatus(1, models.OrderStatusCancelled)
	second, err := agg.Aggregate(ctx, 7, nil, models.DateRange{})
	require.NoError(t, err)
	require.Equal(t, first, second)

	uncached := NewAggregator(store, nil, Options{}, nil, nil)
	fresh, err := uncached.Aggregate(ctx, 7, nil, models.DateRange{})
	require.NoError(t, err)
	require.Equal(t, 2, fresh.Summary.OrdersCount)
}

func TestAggregateUnavailableReturnsZeros(t *testing.T) {
	c := cache.NewMemory()
	agg := NewAggregator(commerce.Unavailable{}, c, Options{}, nil, nil)

	result, err := agg.Aggregate(context.Background(), 7, nil, models.DateRange{})
	require.NoError(t, err)
	require.Equal(t, models.ReportSummary{}, result.Summary)
	require.Empty(t, result.ByTicket)

	var cached models.ReportResult
	found, err := c.Get(context.Background(), CacheKey(7, AllowedStatuses, models.DateRange{}), &cached)
	require.NoError(t, err)
	require.False(t, found)
}

func TestNormalizeStatusesAndCacheKey(t *testing.T) {
	require.Equal(t, AllowedStatuses, NormalizeStatuses(nil))
	require.Equal(t, AllowedStatuses, NormalizeStatuses([]string{"pending"}))
	require.Equal(t, []string{"refunded", "completed"}, NormalizeStatuses([]string{"refunded", " completed", "refunded"}))

	a := CacheKey(7, []string{"completed"}, models.DateRange{})
	b := CacheKey(7, []string{"completed", "refunded"}, models.DateRange{})
	require.NotEqual(t, a, b)
	require.Equal(t, a, CacheKey(7, []string{"completed"}, models.DateRange{}))
	require.Len(t, a, len(cacheKeyPrefix)+32)
}

func TestWriteCSV(t *testing.T) {
	agg := NewAggregator(seedStore(), nil, Options{}, nil, nil)
	var buf bytes.Buffer

	rows, err := agg.WriteCSV(context.Background(), &buf, 7, []string{"completed"}, models.DateRange{})
	require.NoError(t, err)
	require.Equal(t, 4, rows)

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	require.Equal(t, exportHeader, records[0])

	last := records[4]
	require.Equal(t, []string{"1", "2025-03-01 12:00:00", "completed", "GA", "0", "2", "20.00", "40.00", "USD"}, last)
}
