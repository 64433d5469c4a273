package models

import (
	"strconv"
	"strings"
	"time"
)

// Order statuses the service reacts to.
const (
	OrderStatusPending    = "pending"
	OrderStatusOnHold     = "on-hold"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusCancelled  = "cancelled"
	OrderStatusRefunded   = "refunded"
	OrderStatusFailed     = "failed"
)

// Order meta flags.
const (
	OrderFlagCapacityConsumed = "capacity_consumed"
	OrderFlagCapacityRestored = "capacity_restored"
)

// Product and line item meta keys linking commerce objects to tickets.
const (
	MetaTicketEventID   = "ticket_event_id"
	MetaTicketIndex     = "ticket_index"
	MetaTicketName      = "ticket_name"
	MetaTicketUnitPrice = "ticket_unit_price"
	MetaTicketCurrency  = "ticket_currency"
	MetaTicketSchema    = "ticket_schema"
)

const (
	StockInStock    = "instock"
	StockOutOfStock = "outofstock"
	BackordersNo    = "no"

	ProductStatusPublish = "publish"
	ProductStatusPrivate = "private"
	ProductStatusDraft   = "draft"
	VisibilityHidden     = "hidden"
)

// Refund line types.
const (
	RefundLineItem     = "line_item"
	RefundLineShipping = "shipping"
	RefundLineFee      = "fee"
	RefundLineTax      = "tax"
)

type Order struct {
	ID        int64             `json:"id"`
	Status    string            `json:"status"`
	Currency  string            `json:"currency"`
	CreatedAt time.Time         `json:"createdAt"`
	Items     []LineItem        `json:"items"`
	Refunds   []Refund          `json:"refunds"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Item returns the line item with the given id.
func (o Order) Item(id int64) (LineItem, bool) {
	for _, item := range o.Items {
		if item.ID == id {
			return item, true
		}
	}
	return LineItem{}, false
}

// HasFlag reports whether the order meta flag is set.
func (o Order) HasFlag(flag string) bool {
	v, ok := o.Meta[flag]
	return ok && v != "" && v != "0"
}

// EventFlag names the per-event variant of an order flag, e.g.
// "capacity_consumed:42".
func EventFlag(flag string, eventID int64) string {
	return flag + ":" + strconv.FormatInt(eventID, 10)
}

// HasEventFlags reports whether any per-event variant of flag is set.
func (o Order) HasEventFlags(flag string) bool {
	prefix := flag + ":"
	for key := range o.Meta {
		if strings.HasPrefix(key, prefix) && o.HasFlag(key) {
			return true
		}
	}
	return false
}

type LineItem struct {
	ID        int64             `json:"id"`
	ProductID int64             `json:"productId"`
	Name      string            `json:"name"`
	Quantity  int               `json:"quantity"`
	Subtotal  Amount            `json:"subtotal"`
	Total     Amount            `json:"total"`
	Meta      map[string]string `json:"meta,omitempty"`
}

type Refund struct {
	ID        int64        `json:"id"`
	Total     Amount       `json:"total"`
	Lines     []RefundLine `json:"lines"`
	CreatedAt time.Time    `json:"createdAt"`
}

// LinesOf returns refund lines of the given type.
func (r Refund) LinesOf(kind string) []RefundLine {
	var out []RefundLine
	for _, line := range r.Lines {
		if line.Type == kind {
			out = append(out, line)
		}
	}
	return out
}

// RefundLine represents one component of a refund. RefundedItemID points at
// the original order line item for line_item entries.
type RefundLine struct {
	Type           string `json:"type"`
	RefundedItemID int64  `json:"refundedItemId,omitempty"`
	Quantity       int    `json:"quantity"`
	Total          Amount `json:"total"`
}

type StockState struct {
	ManageStock bool   `json:"manageStock"`
	Quantity    int    `json:"quantity"`
	Status      string `json:"status"`
	Backorders  string `json:"backorders"`
}

// InStock reports whether the product can be sold right now.
func (s StockState) InStock() bool {
	return s.Status != StockOutOfStock
}

type Product struct {
	ID           int64             `json:"id"`
	Name         string            `json:"name"`
	Description  string            `json:"description"`
	RegularPrice string            `json:"regularPrice"`
	SaleFrom     string            `json:"saleFrom,omitempty"`
	SaleTo       string            `json:"saleTo,omitempty"`
	Virtual      bool              `json:"virtual"`
	Visibility   string            `json:"visibility"`
	Status       string            `json:"status"`
	Stock        StockState        `json:"stock"`
	Meta         map[string]string `json:"meta,omitempty"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Purchasable reports whether the product may be added to a cart.
func (p Product) Purchasable() bool {
	if p.ID <= 0 || p.RegularPrice == "" {
		return false
	}
	return p.Status == ProductStatusPublish || p.Status == ProductStatusPrivate
}
