package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"boxoffice/backend/internal/capacity"
	"boxoffice/backend/internal/commerce"
	"boxoffice/backend/internal/models"
)

// reconciler replays recent order statuses through the capacity service so
// notifications the API missed are still applied. Claimed flags make the
// replay a no-op for orders already handled.
type reconciler struct {
	orders   commerce.Store
	capacity *capacity.Service
	lookback time.Duration
	pageSize int
	logger   *slog.Logger
	now      func() time.Time
}

type reconcileStats struct {
	Orders  int
	Applied int
	Failed  int
}

var reconcileStatuses = []string{
	models.OrderStatusProcessing,
	models.OrderStatusCompleted,
	models.OrderStatusCancelled,
	models.OrderStatusRefunded,
}

func (r *reconciler) runOnce(ctx context.Context) (reconcileStats, error) {
	var stats reconcileStats
	pageSize := r.pageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	query := commerce.OrderQuery{Statuses: reconcileStatuses, Limit: pageSize, Page: 1}
	if r.lookback > 0 {
		query.CreatedAfter = r.now().Add(-r.lookback)
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		page, err := r.orders.Orders(ctx, query)
		if errors.Is(err, commerce.ErrUnavailable) {
			return stats, nil
		}
		if err != nil {
			return stats, fmt.Errorf("list orders page %d: %w", query.Page, err)
		}
		for _, order := range page {
			stats.Orders++
			res, err := r.capacity.HandleStatusChange(ctx, order.ID, order.Status)
			if err != nil {
				stats.Failed++
				r.logger.Warn("reconcile_order_failed", "order_id", order.ID, "status", order.Status, "error", err)
				continue
			}
			if res.Outcome == capacity.OutcomeApplied {
				stats.Applied++
			}
		}
		if len(page) < pageSize {
			return stats, nil
		}
		query.Page++
	}
}
