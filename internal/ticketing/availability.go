package ticketing

import (
	"fmt"
	"strconv"
	"time"

	"boxoffice/backend/internal/models"
)

// UnmanagedCartLimit caps the quantity of tickets without stock management.
const UnmanagedCartLimit = 10

// OnSale reports whether now falls inside the ticket's UTC sale window.
// Unparseable bounds are ignored.
func OnSale(ticket models.Ticket, now time.Time) bool {
	now = now.UTC()
	if start, ok := ParseUTC(ticket.SaleStart); ok && start.After(now) {
		return false
	}
	if end, ok := ParseUTC(ticket.SaleEnd); ok && end.Before(now) {
		return false
	}
	return true
}

// Notice levels.
const (
	NoticeError  = "error"
	NoticeNotice = "notice"
)

type Notice struct {
	Level   string `json:"level"`
	Message string `json:"message"`
}

// CartDecision is the outcome of revalidating one cart line.
type CartDecision struct {
	Remove   bool    `json:"remove"`
	Quantity int     `json:"quantity"`
	Notice   *Notice `json:"notice,omitempty"`
}

// CheckCartLine revalidates a cart line against its ticket and product.
// A nil ticket or product means the lookup failed.
func CheckCartLine(ticket *models.Ticket, product *models.Product, quantity int, now time.Time) CartDecision {
	if ticket == nil || product == nil || !product.Purchasable() {
		return removeLine("A ticket in your cart is no longer available and was removed.")
	}

	name := ticket.Name
	if name == "" {
		name = product.Name
	}
	if name == "" {
		name = "Ticket"
	}

	manages := product.Stock.ManageStock
	unstocked := !product.Stock.InStock() && product.Stock.Backorders == models.BackordersNo && !manages
	if unstocked || (ticket.Capacity <= 0 && ticket.InitialCapacity > 0) {
		return removeLine(fmt.Sprintf("Ticket %s is sold out and was removed from your cart.", name))
	}

	now = now.UTC()
	if start, ok := ParseUTC(ticket.SaleStart); ok && start.After(now) {
		return removeLine(fmt.Sprintf("Ticket %s is not on sale yet and was removed from your cart.", name))
	}
	if end, ok := ParseUTC(ticket.SaleEnd); ok && end.Before(now) {
		return removeLine(fmt.Sprintf("Ticket %s sales have ended and was removed from your cart.", name))
	}

	decision := CartDecision{Quantity: quantity}
	if manages {
		// Stock may be reserved during checkout, so zero does not remove.
		available := product.Stock.Quantity
		if available > 0 && quantity > available {
			decision.Quantity = available
			decision.Notice = &Notice{
				Level:   NoticeNotice,
				Message: fmt.Sprintf("Quantity for %s was reduced to %d due to limited availability.", name, available),
			}
		}
		return decision
	}
	if quantity > UnmanagedCartLimit {
		decision.Quantity = UnmanagedCartLimit
		decision.Notice = &Notice{
			Level:   NoticeNotice,
			Message: fmt.Sprintf("Quantity for %s was reduced to %d.", name, UnmanagedCartLimit),
		}
	}
	return decision
}

// CheckAddToCart applies CheckCartLine and also rejects managed stock that
// has run out.
func CheckAddToCart(ticket *models.Ticket, product *models.Product, quantity int, now time.Time) CartDecision {
	decision := CheckCartLine(ticket, product, quantity, now)
	if decision.Remove || !product.Stock.ManageStock || product.Stock.Quantity > 0 {
		return decision
	}
	name := ticket.Name
	if name == "" {
		name = "Ticket"
	}
	return removeLine(fmt.Sprintf("Ticket %s is sold out.", name))
}

func removeLine(message string) CartDecision {
	return CartDecision{Remove: true, Notice: &Notice{Level: NoticeError, Message: message}}
}

// Offer is a ticket as shown to shoppers.
type Offer struct {
	Index       int        `json:"index"`
	TicketKey   string     `json:"ticketKey"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	ProductID   int64      `json:"productId,omitempty"`
	Pricing     Resolution `json:"pricing"`
	OnSale      bool       `json:"onSale"`
	Unlimited   bool       `json:"unlimited"`
	Remaining   *int       `json:"remaining,omitempty"`
	Sold        *int       `json:"sold,omitempty"`
	SoldOut     bool       `json:"soldOut"`
}

// BuildOffers resolves every ticket against one shared now. Sold-out tickets
// flagged hide_sold_out are left out.
func BuildOffers(tickets []models.Ticket, productMap map[string]int64, now time.Time) []Offer {
	offers := make([]Offer, 0, len(tickets))
	for _, ticket := range tickets {
		offer := Offer{
			Index:       ticket.Index,
			TicketKey:   ticket.TicketKey,
			Name:        ticket.Name,
			Description: ticket.Description,
			ProductID:   productMap[strconv.Itoa(ticket.Index)],
			Pricing:     ResolvePrice(ticket, now),
			OnSale:      OnSale(ticket, now),
			Unlimited:   ticket.Unlimited(),
		}
		if !offer.Unlimited {
			remaining := ticket.Capacity
			offer.Remaining = &remaining
			if ticket.InitialCapacity > 0 {
				sold := ticket.InitialCapacity - ticket.Capacity
				if sold < 0 {
					sold = 0
				}
				offer.Sold = &sold
			}
		}
		// Capacity is clamped at zero, so a sold-out ticket reads as
		// unlimited unless it started with a limit.
		if ticket.Capacity <= 0 && ticket.InitialCapacity > 0 {
			offer.Unlimited = false
			offer.SoldOut = true
			zero := 0
			offer.Remaining = &zero
			sold := ticket.InitialCapacity
			offer.Sold = &sold
		}
		if offer.SoldOut && ticket.HideSoldOut {
			continue
		}
		offers = append(offers, offer)
	}
	return offers
}
