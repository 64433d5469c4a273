package ticketing

import (
	"strings"
	"time"

	"boxoffice/backend/internal/models"
)

// DateTimeLayout is the storage format of sale windows and phase bounds.
const DateTimeLayout = "2006-01-02 15:04"

var dateTimeLayouts = []string{
	DateTimeLayout,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

// Resolution is the outcome of resolving a ticket price at a point in time.
type Resolution struct {
	Price      string     `json:"price"`
	PhaseKey   string     `json:"phaseKey,omitempty"`
	PhaseLabel string     `json:"phaseLabel,omitempty"`
	PhaseEnd   *time.Time `json:"phaseEnd,omitempty"`
}

// HasPhase reports whether a price phase was applied.
func (r Resolution) HasPhase() bool {
	return r.PhaseKey != "" || r.PhaseLabel != "" || r.PhaseEnd != nil
}

// NormalizePrice formats a numeric price with two decimals.
func NormalizePrice(raw string) (string, bool) {
	amount, ok := models.ParseAmount(raw)
	if !ok {
		return "", false
	}
	return amount.String(), true
}

// ParseUTC parses a stored datetime as UTC. Empty or malformed input
// returns false and is treated by callers as an open bound.
func ParseUTC(raw string) (time.Time, bool) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateTimeLayouts {
		if parsed, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// ResolvePrice returns the price of the first active phase in stored order,
// or the base price when none applies. Phases with a non-numeric price are
// skipped.
func ResolvePrice(ticket models.Ticket, now time.Time) Resolution {
	base, ok := NormalizePrice(ticket.Price)
	if !ok {
		base = "0.00"
	}
	now = now.UTC()

	for _, phase := range ticket.PricePhases {
		price, ok := NormalizePrice(phase.Price)
		if !ok {
			continue
		}
		if start, ok := ParseUTC(phase.Start); ok && now.Before(start) {
			continue
		}
		end, hasEnd := ParseUTC(phase.End)
		if hasEnd && now.After(end) {
			continue
		}
		res := Resolution{
			Price:      price,
			PhaseKey:   phase.Key,
			PhaseLabel: phase.Label,
		}
		if hasEnd {
			res.PhaseEnd = &end
		}
		return res
	}

	return Resolution{Price: base}
}
