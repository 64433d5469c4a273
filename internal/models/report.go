package models

import "time"

// DateRange bounds order creation time in UTC. After is inclusive, Before is
// exclusive; zero values leave that side open.
type DateRange struct {
	After  time.Time
	Before time.Time
}

type ReportSummary struct {
	GrossSales                Amount `json:"gross_sales"`
	RefundedMappedTotal       Amount `json:"refunded_mapped_total"`
	RefundedAmount            Amount `json:"refunded_amount"`
	NetSales                  Amount `json:"net_sales"`
	OrdersCount               int    `json:"orders_count"`
	TicketsSold               int    `json:"tickets_sold"`
	RefundedQty               int    `json:"refunded_qty"`
	UnattributedRefundsAmount Amount `json:"unattributed_refunds_amount"`
	UnattributedRefundsCount  int    `json:"unattributed_refunds_count"`
	AdjustmentsDetected       bool   `json:"adjustments_detected"`
}

type TicketReportRow struct {
	TicketName     string `json:"ticket_name"`
	TicketIndex    string `json:"ticket_index"`
	SoldQty        int    `json:"sold_qty"`
	Gross          Amount `json:"gross"`
	RefundedQty    int    `json:"refunded_qty"`
	RefundedAmount Amount `json:"refunded_amount"`
	Net            Amount `json:"net"`
}

// ReportResult is the reconciled revenue view of one event.
type ReportResult struct {
	Summary  ReportSummary     `json:"summary"`
	ByTicket []TicketReportRow `json:"by_ticket"`
}

// ExportRow is one flattened order line for CSV export.
type ExportRow struct {
	OrderID     int64
	OrderDate   string
	OrderStatus string
	TicketName  string
	TicketIndex string
	Qty         int
	UnitPrice   string
	LineTotal   string
	Currency    string
}
