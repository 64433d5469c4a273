package capacity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"boxoffice/backend/internal/commerce"
	"boxoffice/backend/internal/metrics"
	"boxoffice/backend/internal/models"
	"boxoffice/backend/internal/ticketing"
)

// Outcomes of a status notification.
const (
	OutcomeApplied     = "applied"
	OutcomeAlreadyDone = "already_done"
	OutcomeNotConsumed = "not_consumed"
	OutcomeIgnored     = "ignored"
	OutcomeUnavailable = "unavailable"
	OutcomeNoOrder     = "no_order"
)

// Result describes what a consume or restore call did.
type Result struct {
	Outcome  string `json:"outcome"`
	Adjusted int    `json:"adjusted"`
	Skipped  int    `json:"skipped"`
}

// Service keeps ticket capacity in step with order status transitions.
type Service struct {
	orders  commerce.Store
	tickets *ticketing.Collections
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func New(orders commerce.Store, tickets *ticketing.Collections, logger *slog.Logger, m *metrics.Metrics) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if orders == nil {
		orders = commerce.Unavailable{}
	}
	return &Service{orders: orders, tickets: tickets, logger: logger, metrics: m}
}

// HandleStatusChange consumes capacity for paid orders and restores it for
// cancelled or refunded ones. Other statuses are ignored.
func (s *Service) HandleStatusChange(ctx context.Context, orderID int64, status string) (Result, error) {
	switch status {
	case models.OrderStatusProcessing, models.OrderStatusCompleted:
		return s.Consume(ctx, orderID)
	case models.OrderStatusCancelled, models.OrderStatusRefunded:
		return s.Restore(ctx, orderID)
	default:
		return Result{Outcome: OutcomeIgnored}, nil
	}
}

// Consume subtracts ordered quantities from ticket capacity once per order.
func (s *Service) Consume(ctx context.Context, orderID int64) (Result, error) {
	return s.apply(ctx, orderID, metrics.DirectionConsume)
}

// Restore gives back capacity of a previously consumed order, once.
func (s *Service) Restore(ctx context.Context, orderID int64) (Result, error) {
	return s.apply(ctx, orderID, metrics.DirectionRestore)
}

type pendingLine struct {
	productID int64
	index     int
	quantity  int
}

type eventBatch struct {
	eventID int64
	lines   []pendingLine
}

func (s *Service) apply(ctx context.Context, orderID int64, direction string) (Result, error) {
	logger := s.logger.With("order_id", orderID, "direction", direction)

	order, err := s.orders.Order(ctx, orderID)
	if err != nil {
		switch {
		case errors.Is(err, commerce.ErrUnavailable):
			return s.finish(direction, Result{Outcome: OutcomeUnavailable}), nil
		case errors.Is(err, commerce.ErrOrderNotFound):
			logger.Warn("capacity_order_missing")
			return s.finish(direction, Result{Outcome: OutcomeNoOrder}), nil
		}
		return Result{}, fmt.Errorf("load order %d: %w", orderID, err)
	}

	flag, requires := models.OrderFlagCapacityConsumed, ""
	if direction == metrics.DirectionRestore {
		whole := order.HasFlag(models.OrderFlagCapacityConsumed)
		if !whole && !order.HasEventFlags(models.OrderFlagCapacityConsumed) {
			return s.finish(direction, Result{Outcome: OutcomeNotConsumed}), nil
		}
		flag = models.OrderFlagCapacityRestored
		if whole {
			requires = models.OrderFlagCapacityConsumed
		}
	}
	if order.HasFlag(flag) {
		return s.finish(direction, Result{Outcome: OutcomeAlreadyDone}), nil
	}

	claimed, err := s.orders.ClaimOrderFlag(ctx, orderID, flag, requires)
	if err != nil {
		if errors.Is(err, commerce.ErrUnavailable) {
			return s.finish(direction, Result{Outcome: OutcomeUnavailable}), nil
		}
		return Result{}, fmt.Errorf("claim %s on order %d: %w", flag, orderID, err)
	}
	if !claimed {
		return s.finish(direction, Result{Outcome: OutcomeAlreadyDone}), nil
	}

	// Events written before a failure keep their own flags, so releasing the
	// order flag lets a retry finish the remaining events only.
	result, err := s.adjust(ctx, order, direction, flag, logger)
	if err != nil {
		if releaseErr := s.orders.ReleaseOrderFlag(ctx, orderID, flag); releaseErr != nil {
			logger.Error("capacity_flag_release_failed", "flag", flag, "error", releaseErr)
		}
		return Result{}, err
	}
	result.Outcome = OutcomeApplied
	logger.Info("capacity_applied", "adjusted", result.Adjusted, "skipped", result.Skipped)
	return s.finish(direction, result), nil
}

func (s *Service) adjust(ctx context.Context, order models.Order, direction, flag string, logger *slog.Logger) (Result, error) {
	var result Result
	var batches []*eventBatch
	byEvent := map[int64]*eventBatch{}

	for _, item := range order.Items {
		link, ok := commerce.ResolveItemLink(ctx, s.orders, item)
		if !ok {
			s.skip(&result, direction, metrics.SkipNoLink)
			continue
		}
		quantity := item.Quantity
		if quantity <= 0 {
			s.skip(&result, direction, metrics.SkipZeroQuantity)
			continue
		}
		batch, ok := byEvent[link.EventID]
		if !ok {
			batch = &eventBatch{eventID: link.EventID}
			byEvent[link.EventID] = batch
			batches = append(batches, batch)
		}
		batch.lines = append(batch.lines, pendingLine{productID: item.ProductID, index: link.Index, quantity: quantity})
	}

	// Orders consumed as a whole carry no per-event consume flags.
	perEvent := order.HasEventFlags(models.OrderFlagCapacityConsumed)

	for _, batch := range batches {
		eventFlag, requires := models.EventFlag(flag, batch.eventID), ""
		if direction == metrics.DirectionRestore && perEvent {
			requires = models.EventFlag(models.OrderFlagCapacityConsumed, batch.eventID)
		}
		claimed, err := s.orders.ClaimOrderFlag(ctx, order.ID, eventFlag, requires)
		if err != nil {
			return result, fmt.Errorf("claim %s on order %d: %w", eventFlag, order.ID, err)
		}
		if !claimed {
			logger.Info("capacity_event_skipped", "event_id", batch.eventID)
			continue
		}

		type stockUpdate struct {
			productID int64
			remaining int
		}
		var updates []stockUpdate
		var skipped []string

		written, err := s.tickets.Update(ctx, batch.eventID, func(env *models.Envelope) bool {
			updates = updates[:0]
			skipped = skipped[:0]
			changed := false
			for _, line := range batch.lines {
				if line.index >= len(env.Tickets) {
					skipped = append(skipped, metrics.SkipNoTicket)
					continue
				}
				ticket := &env.Tickets[line.index]
				if ticket.Capacity <= 0 {
					skipped = append(skipped, metrics.SkipUnlimited)
					continue
				}
				if direction == metrics.DirectionConsume {
					ticket.Capacity -= line.quantity
					if ticket.Capacity < 0 {
						ticket.Capacity = 0
					}
				} else {
					ticket.Capacity += line.quantity
				}
				changed = true
				updates = append(updates, stockUpdate{productID: line.productID, remaining: ticket.Capacity})
			}
			return changed
		})
		if err != nil {
			if releaseErr := s.orders.ReleaseOrderFlag(ctx, order.ID, eventFlag); releaseErr != nil {
				logger.Error("capacity_flag_release_failed", "flag", eventFlag, "error", releaseErr)
			}
			return result, err
		}
		if !written && len(updates) == 0 && len(skipped) == 0 {
			for range batch.lines {
				s.skip(&result, direction, metrics.SkipNoEnvelope)
			}
			logger.Warn("capacity_envelope_missing", "event_id", batch.eventID)
			continue
		}
		for _, reason := range skipped {
			s.skip(&result, direction, reason)
		}
		for _, update := range updates {
			result.Adjusted++
			s.metrics.CapacityAdjusted(direction)
			s.syncStock(ctx, update.productID, update.remaining, logger)
		}
	}
	return result, nil
}

// syncStock mirrors remaining capacity onto the product's stock.
func (s *Service) syncStock(ctx context.Context, productID int64, remaining int, logger *slog.Logger) {
	if productID <= 0 {
		return
	}
	status := models.StockInStock
	if remaining <= 0 {
		status = models.StockOutOfStock
	}
	err := s.orders.UpdateProductStock(ctx, productID, models.StockState{
		ManageStock: true,
		Quantity:    remaining,
		Status:      status,
		Backorders:  models.BackordersNo,
	})
	if err != nil && !errors.Is(err, commerce.ErrProductNotFound) {
		logger.Warn("capacity_stock_sync_failed", "product_id", productID, "error", err)
	}
}

func (s *Service) skip(result *Result, direction, reason string) {
	result.Skipped++
	s.metrics.CapacitySkipped(direction, reason)
}

func (s *Service) finish(direction string, result Result) Result {
	s.metrics.OrderProcessed(direction, result.Outcome)
	return result
}
