package reports

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"boxoffice/backend/internal/models"
)

var exportHeader = []string{
	"order_id",
	"order_date",
	"order_status",
	"ticket_name",
	"ticket_index",
	"qty",
	"unit_price",
	"line_total",
	"currency",
}

// WriteCSV streams the event's order lines as CSV and returns the number of
// data rows written.
func (a *Aggregator) WriteCSV(ctx context.Context, w io.Writer, eventID int64, statuses []string, dr models.DateRange) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	rows := 0
	err := a.IterateOrderItems(ctx, eventID, statuses, dr, func(row models.ExportRow) error {
		rows++
		return cw.Write([]string{
			strconv.FormatInt(row.OrderID, 10),
			row.OrderDate,
			row.OrderStatus,
			row.TicketName,
			row.TicketIndex,
			strconv.Itoa(row.Qty),
			row.UnitPrice,
			row.LineTotal,
			row.Currency,
		})
	})
	if err != nil {
		return rows, fmt.Errorf("export event %d: %w", eventID, err)
	}
	cw.Flush()
	return rows, cw.Error()
}
