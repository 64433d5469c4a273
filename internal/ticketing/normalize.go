package ticketing

import (
	"regexp"
	"strconv"
	"strings"

	"boxoffice/backend/internal/models"
)

var storageDateTime = regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}$`)

// TicketInput is one row of the admin ticket editor, as submitted.
type TicketInput struct {
	TicketKey   string        `json:"ticket_key" validate:"max=64"`
	Name        string        `json:"name" validate:"max=200"`
	Description string        `json:"description" validate:"max=5000"`
	Price       string        `json:"price" validate:"max=32"`
	Capacity    string        `json:"capacity" validate:"max=16"`
	SaleStart   string        `json:"sale_start" validate:"max=32"`
	SaleEnd     string        `json:"sale_end" validate:"max=32"`
	SKU         string        `json:"sku" validate:"max=64"`
	HideSoldOut bool          `json:"hide_sold_out"`
	PricePhases *[]PhaseInput `json:"price_phases" validate:"omitempty,max=20,dive"`
}

type PhaseInput struct {
	Key   string `json:"key" validate:"max=64"`
	Label string `json:"label" validate:"max=200"`
	Price string `json:"price" validate:"max=32"`
	Start string `json:"start" validate:"max=32"`
	End   string `json:"end" validate:"max=32"`
}

// NormalizeInput turns submitted rows into tickets ready to be saved.
// Rows left entirely at defaults are dropped. initial_capacity is kept from
// the existing ticket at the same position, or set to the submitted capacity
// for new rows.
func NormalizeInput(rows []TicketInput, existing []models.Ticket) []models.Ticket {
	out := make([]models.Ticket, 0, len(rows))
	for position, row := range rows {
		name := SanitizeText(row.Name)
		description := SanitizeTextarea(row.Description)
		priceAmount := parseLoosePrice(row.Price)
		if priceAmount < 0 {
			priceAmount = 0
		}
		capacity := absInt(row.Capacity)
		saleStart := normalizeSaleBound(row.SaleStart)
		saleEnd := normalizeSaleBound(row.SaleEnd)
		if saleStart != "" && saleEnd != "" {
			start, okStart := ParseUTC(saleStart)
			end, okEnd := ParseUTC(saleEnd)
			if okStart && okEnd && end.Before(start) {
				saleStart, saleEnd = saleEnd, saleStart
			}
		}

		if name == "" && description == "" && saleStart == "" && saleEnd == "" && !row.HideSoldOut && capacity <= 0 && priceAmount <= 0 {
			continue
		}

		ticket := models.Ticket{
			TicketKey:       SanitizeText(row.TicketKey),
			Name:            name,
			Description:     description,
			Price:           priceAmount.String(),
			Capacity:        capacity,
			InitialCapacity: capacity,
			SaleStart:       saleStart,
			SaleEnd:         saleEnd,
			SKU:             SanitizeText(row.SKU),
			HideSoldOut:     row.HideSoldOut,
		}
		if position < len(existing) {
			prev := existing[position]
			ticket.InitialCapacity = prev.InitialCapacity
			if ticket.TicketKey == "" {
				ticket.TicketKey = prev.TicketKey
			}
		}
		if ticket.TicketKey == "" {
			ticket.TicketKey = GenerateKey()
		}
		if row.PricePhases != nil {
			ticket.PricePhases = normalizePhases(*row.PricePhases)
		}
		out = append(out, ticket)
	}
	for i := range out {
		out[i].Index = i
	}
	return out
}

func normalizePhases(rows []PhaseInput) []models.PricePhase {
	phases := make([]models.PricePhase, 0, len(rows))
	for _, row := range rows {
		rawPrice := strings.ReplaceAll(strings.TrimSpace(row.Price), ",", ".")
		price, ok := NormalizePrice(rawPrice)
		if !ok {
			price = SanitizeText(rawPrice)
		}
		phases = append(phases, models.PricePhase{
			Key:   SanitizeText(row.Key),
			Label: SanitizeText(row.Label),
			Price: price,
			Start: SanitizeText(row.Start),
			End:   SanitizeText(row.End),
		})
	}
	return phases
}

// normalizeSaleBound accepts "YYYY-MM-DD HH:MM" or the datetime-local form
// with a "T" separator. Anything else becomes empty.
func normalizeSaleBound(raw string) string {
	value := SanitizeText(raw)
	if value == "" {
		return ""
	}
	value = strings.TrimSpace(strings.Replace(value, "T", " ", 1))
	if !storageDateTime.MatchString(value) {
		return ""
	}
	return value
}

// parseLoosePrice reads the leading numeric part of a price, accepting a
// comma decimal separator. Unparseable input is zero.
func parseLoosePrice(raw string) models.Amount {
	value := strings.ReplaceAll(strings.TrimSpace(raw), ",", ".")
	end := 0
	for end < len(value) {
		c := value[end]
		if (c >= '0' && c <= '9') || c == '.' || (end == 0 && (c == '-' || c == '+')) {
			end++
			continue
		}
		break
	}
	amount, ok := models.ParseAmount(value[:end])
	if !ok {
		return 0
	}
	return amount
}

func absInt(raw string) int {
	value := strings.TrimSpace(raw)
	if value == "" {
		return 0
	}
	if n, err := strconv.Atoi(value); err == nil {
		if n < 0 {
			return -n
		}
		return n
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		n := int(f)
		if n < 0 {
			return -n
		}
		return n
	}
	return 0
}
