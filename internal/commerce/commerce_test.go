package commerce

import (
	"context"
	"errors"
	"testing"
	"time"

	"boxoffice/backend/internal/models"
)

func TestLinkFromMeta(t *testing.T) {
	cases := []struct {
		name string
		meta map[string]string
		want Link
		ok   bool
	}{
		{"valid", map[string]string{models.MetaTicketEventID: "12", models.MetaTicketIndex: "0"}, Link{EventID: 12, Index: 0}, true},
		{"missing index", map[string]string{models.MetaTicketEventID: "12"}, Link{}, false},
		{"zero event", map[string]string{models.MetaTicketEventID: "0", models.MetaTicketIndex: "1"}, Link{}, false},
		{"negative index", map[string]string{models.MetaTicketEventID: "3", models.MetaTicketIndex: "-1"}, Link{}, false},
		{"garbage", map[string]string{models.MetaTicketEventID: "x", models.MetaTicketIndex: "1"}, Link{}, false},
		{"nil", nil, Link{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := LinkFromMeta(tc.meta)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("got %+v %v, want %+v %v", got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestResolveItemLinkPrefersProduct(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	store.PutProduct(models.Product{ID: 5, Meta: SetLinkMeta(nil, Link{EventID: 1, Index: 2})})

	item := models.LineItem{ProductID: 5, Meta: SetLinkMeta(nil, Link{EventID: 9, Index: 9})}
	link, ok := ResolveItemLink(ctx, store, item)
	if !ok || link.EventID != 1 || link.Index != 2 {
		t.Fatalf("expected product link, got %+v %v", link, ok)
	}

	item.ProductID = 404
	link, ok = ResolveItemLink(ctx, store, item)
	if !ok || link.EventID != 9 {
		t.Fatalf("expected item fallback link, got %+v %v", link, ok)
	}
}

func TestMemoryClaimOrderFlag(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	store.PutOrder(models.Order{ID: 1, Status: models.OrderStatusProcessing})

	ok, err := store.ClaimOrderFlag(ctx, 1, models.OrderFlagCapacityRestored, models.OrderFlagCapacityConsumed)
	if err != nil || ok {
		t.Fatalf("restore claim without consume should fail, got %v %v", ok, err)
	}
	ok, err = store.ClaimOrderFlag(ctx, 1, models.OrderFlagCapacityConsumed, "")
	if err != nil || !ok {
		t.Fatalf("first claim should succeed, got %v %v", ok, err)
	}
	ok, err = store.ClaimOrderFlag(ctx, 1, models.OrderFlagCapacityConsumed, "")
	if err != nil || ok {
		t.Fatalf("second claim should be refused, got %v %v", ok, err)
	}
	if err := store.ReleaseOrderFlag(ctx, 1, models.OrderFlagCapacityConsumed); err != nil {
		t.Fatalf("release: %v", err)
	}
	order, _ := store.Order(ctx, 1)
	if order.HasFlag(models.OrderFlagCapacityConsumed) {
		t.Fatalf("flag should be released")
	}
	if _, err := store.ClaimOrderFlag(ctx, 2, "x", ""); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}

func TestMemoryOrdersPaging(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := int64(1); i <= 5; i++ {
		store.PutOrder(models.Order{ID: i, Status: models.OrderStatusCompleted, CreatedAt: base.Add(time.Duration(i) * time.Hour)})
	}
	store.PutOrder(models.Order{ID: 6, Status: models.OrderStatusPending, CreatedAt: base})

	page1, err := store.Orders(ctx, OrderQuery{Statuses: []string{models.OrderStatusCompleted}, Limit: 2, Page: 1})
	if err != nil {
		t.Fatalf("orders: %v", err)
	}
	if len(page1) != 2 || page1[0].ID != 5 || page1[1].ID != 4 {
		t.Fatalf("unexpected first page %+v", page1)
	}
	page3, _ := store.Orders(ctx, OrderQuery{Statuses: []string{models.OrderStatusCompleted}, Limit: 2, Page: 3})
	if len(page3) != 1 || page3[0].ID != 1 {
		t.Fatalf("unexpected last page %+v", page3)
	}

	ranged, _ := store.Orders(ctx, OrderQuery{
		CreatedAfter:  base.Add(2 * time.Hour),
		CreatedBefore: base.Add(4 * time.Hour),
	})
	if len(ranged) != 2 || ranged[0].ID != 3 || ranged[1].ID != 2 {
		t.Fatalf("unexpected ranged result %+v", ranged)
	}
}

func TestUnavailable(t *testing.T) {
	var store Store = Unavailable{}
	if _, err := store.Orders(context.Background(), OrderQuery{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if _, err := store.ClaimOrderFlag(context.Background(), 1, "a", ""); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
