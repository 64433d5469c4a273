package ticketing

import (
	"testing"

	"boxoffice/backend/internal/models"
)

func TestNormalizeInput(t *testing.T) {
	phases := []PhaseInput{
		{Key: "early", Label: "<b>Early</b>", Price: "9,5", End: "2025-01-01 00:00"},
		{Key: "tbd", Price: "TBD"},
	}
	rows := []TicketInput{
		{Name: "  General <em>Admission</em> ", Price: "40,5", Capacity: "-25", SaleStart: "2025-03-01T10:00", SaleEnd: "2025-02-01 10:00", PricePhases: &phases},
		{},
		{Name: "Donation", Price: "-5", SaleStart: "next week"},
	}
	existing := []models.Ticket{{TicketKey: "keep-me", InitialCapacity: 80}}

	out := NormalizeInput(rows, existing)
	if len(out) != 2 {
		t.Fatalf("expected empty row dropped, got %d tickets", len(out))
	}

	first := out[0]
	if first.Name != "General Admission" {
		t.Fatalf("unexpected name %q", first.Name)
	}
	if first.Price != "40.50" {
		t.Fatalf("unexpected price %q", first.Price)
	}
	if first.Capacity != 25 {
		t.Fatalf("expected absolute capacity 25, got %d", first.Capacity)
	}
	if first.InitialCapacity != 80 || first.TicketKey != "keep-me" {
		t.Fatalf("expected values kept from existing ticket, got %+v", first)
	}
	if first.SaleStart != "2025-02-01 10:00" || first.SaleEnd != "2025-03-01 10:00" {
		t.Fatalf("expected swapped sale window, got %q..%q", first.SaleStart, first.SaleEnd)
	}
	if len(first.PricePhases) != 2 || first.PricePhases[0].Price != "9.50" || first.PricePhases[0].Label != "Early" {
		t.Fatalf("unexpected phases %+v", first.PricePhases)
	}
	if first.PricePhases[1].Price != "TBD" {
		t.Fatalf("non numeric phase price should be kept as text, got %q", first.PricePhases[1].Price)
	}

	second := out[1]
	if second.Index != 1 {
		t.Fatalf("expected index 1, got %d", second.Index)
	}
	if second.Price != "0.00" || second.SaleStart != "" {
		t.Fatalf("unexpected second ticket %+v", second)
	}
	if second.InitialCapacity != 0 || len(second.TicketKey) != 12 {
		t.Fatalf("expected generated key and initial capacity from input, got %+v", second)
	}
	if second.PricePhases != nil {
		t.Fatalf("phases should stay unset when not submitted")
	}
}

func TestSanitizeText(t *testing.T) {
	if got := SanitizeText("<p>Hello <script>alert(1)</script>world</p>\n"); got != "Hello world" {
		t.Fatalf("unexpected sanitized text %q", got)
	}
	if got := SanitizeText("Fish &amp; Chips"); got != "Fish & Chips" {
		t.Fatalf("unexpected entity handling %q", got)
	}
	if got := SanitizeTextarea("line one\n<i>line</i>   two"); got != "line one\nline two" {
		t.Fatalf("unexpected textarea text %q", got)
	}
}
