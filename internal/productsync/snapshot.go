package productsync

import (
	"context"
	"strconv"

	"boxoffice/backend/internal/commerce"
	"boxoffice/backend/internal/models"
)

// Snapshot builds the ticket meta stored on an order line at checkout so the
// line stays attributable after the product changes. It returns false when
// the line's product is not linked to a ticket.
func (s *Syncer) Snapshot(ctx context.Context, item models.LineItem, currency string) (map[string]string, bool) {
	if item.ProductID <= 0 {
		return nil, false
	}
	product, err := s.products.Product(ctx, item.ProductID)
	if err != nil {
		return nil, false
	}
	link, ok := commerce.LinkFromMeta(product.Meta)
	if !ok {
		return nil, false
	}

	name := item.Name
	collection, err := s.tickets.Load(ctx, link.EventID)
	if err != nil {
		s.logger.Warn("snapshot_tickets_unavailable", "event_id", link.EventID, "error", err)
	} else if ticket, found := collection.At(link.Index); found && ticket.Name != "" {
		name = ticket.Name
	}

	quantity := item.Quantity
	if quantity < 1 {
		quantity = 1
	}

	snapshot := commerce.SetLinkMeta(nil, link)
	snapshot[models.MetaTicketName] = name
	snapshot[models.MetaTicketUnitPrice] = item.Subtotal.DivRound(quantity).String()
	snapshot[models.MetaTicketCurrency] = currency
	snapshot[models.MetaTicketSchema] = strconv.Itoa(models.EnvelopeSchema)
	return snapshot, true
}
