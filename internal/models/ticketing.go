package models

// EnvelopeSchema is the only envelope layout this service reads and writes.
const EnvelopeSchema = 1

// Event meta keys.
const (
	MetaKeyTickets    = "tickets_v1"
	MetaKeyProductMap = "ticket_product_map"
)

// PricePhase represents a time-bounded price override. Start and End use
// "YYYY-MM-DD HH:MM" in UTC; empty means open.
type PricePhase struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Price string `json:"price"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Ticket represents a ticket type defined on an event.
type Ticket struct {
	Index           int          `json:"index"`
	TicketKey       string       `json:"ticket_key"`
	Name            string       `json:"name"`
	Description     string       `json:"description"`
	Price           string       `json:"price"`
	PricePhases     []PricePhase `json:"price_phases,omitempty"`
	Capacity        int          `json:"capacity"`
	InitialCapacity int          `json:"initial_capacity"`
	SaleStart       string       `json:"sale_start"`
	SaleEnd         string       `json:"sale_end"`
	SKU             string       `json:"sku,omitempty"`
	HideSoldOut     bool         `json:"hide_sold_out"`
}

// Unlimited reports whether the ticket has no capacity limit.
func (t Ticket) Unlimited() bool {
	return t.Capacity <= 0
}

// Envelope is the versioned container holding all tickets of an event.
type Envelope struct {
	Schema  int      `json:"schema"`
	Tickets []Ticket `json:"tickets"`
}

// NewEnvelope returns an empty envelope with the current schema.
func NewEnvelope() Envelope {
	return Envelope{Schema: EnvelopeSchema, Tickets: []Ticket{}}
}
