package billing

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/westla/repairdesk-system/internal/model"
)

func cents(v int64) *int64 { return &v }

func TestCoerceCostCents(t *testing.T) {
	nan := math.NaN()
	inf := math.Inf(1)
	neg := -10.0
	ok := 150.0
	frac := 19.999

	tests := []struct {
		name string
		cost *float64
		want int64
	}{
		{name: "nil", cost: nil, want: 0},
		{name: "nan", cost: &nan, want: 0},
		{name: "inf", cost: &inf, want: 0},
		{name: "negative", cost: &neg, want: 0},
		{name: "regular", cost: &ok, want: 15000},
		{name: "rounded", cost: &frac, want: 2000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CoerceCostCents(tt.cost); got != tt.want {
				t.Errorf("CoerceCostCents() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestReconcile_AppendsItemToEmptyInvoice(t *testing.T) {
	inv := &model.Invoice{ID: 1, Status: model.InvoiceStatusUnpaid}
	ticket := &model.Ticket{
		ID:                 7,
		IssueDescription:   "Replace screen",
		EstimatedCostCents: cents(15000),
	}

	idx, created, err := Reconcile(inv, ticket)
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if idx != 0 || !created {
		t.Fatalf("idx/created = %d/%v, want 0/true", idx, created)
	}

	if len(inv.Items) != 1 {
		t.Fatalf("items count = %d, want 1", len(inv.Items))
	}
	it := inv.Items[0]
	if it.Description != "Replace screen" || it.Quantity != 1 ||
		it.UnitPriceCents != 15000 || it.AmountCents != 15000 {
		t.Fatalf("unexpected item: %+v", it)
	}
	if it.TicketRef == nil || *it.TicketRef != 7 {
		t.Fatalf("item must reference ticket 7, got %v", it.TicketRef)
	}
	if inv.SubtotalCents != 15000 || inv.TotalCents != 15000 {
		t.Fatalf("subtotal/total = %d/%d, want 15000/15000", inv.SubtotalCents, inv.TotalCents)
	}
}

func TestReconcile_UpdatesExistingItemInPlace(t *testing.T) {
	inv := &model.Invoice{ID: 1}
	ticket := &model.Ticket{ID: 7, IssueDescription: "Replace screen", EstimatedCostCents: cents(15000)}

	if _, _, err := Reconcile(inv, ticket); err != nil {
		t.Fatalf("first Reconcile error: %v", err)
	}

	ticket.IssueDescription = "Replace screen and battery"
	ticket.EstimatedCostCents = cents(20000)

	idx, created, err := Reconcile(inv, ticket)
	if err != nil {
		t.Fatalf("second Reconcile error: %v", err)
	}
	if idx != 0 || created {
		t.Fatalf("idx/created = %d/%v, want 0/false (update in place)", idx, created)
	}

	if len(inv.Items) != 1 {
		t.Fatalf("items count = %d, want 1 (no duplicates)", len(inv.Items))
	}
	it := inv.Items[0]
	if it.Description != "Replace screen and battery" || it.UnitPriceCents != 20000 || it.AmountCents != 20000 {
		t.Fatalf("unexpected item after update: %+v", it)
	}
	if inv.SubtotalCents != 20000 || inv.TotalCents != 20000 {
		t.Fatalf("subtotal/total = %d/%d, want 20000/20000", inv.SubtotalCents, inv.TotalCents)
	}
}

func TestReconcile_Idempotent(t *testing.T) {
	inv := &model.Invoice{
		ID:            1,
		DiscountCents: 500,
		Items: []model.LineItem{
			{Description: "Shipping", Quantity: 1, UnitPriceCents: 1000, AmountCents: 1000},
		},
	}
	ticket := &model.Ticket{ID: 7, IssueDescription: "Data recovery", EstimatedCostCents: cents(30000)}

	if _, _, err := Reconcile(inv, ticket); err != nil {
		t.Fatalf("first Reconcile error: %v", err)
	}
	first := *inv
	firstItems := make([]model.LineItem, len(inv.Items))
	copy(firstItems, inv.Items)

	if _, _, err := Reconcile(inv, ticket); err != nil {
		t.Fatalf("second Reconcile error: %v", err)
	}

	if !reflect.DeepEqual(firstItems, inv.Items) {
		t.Fatalf("items changed on repeated call:\nfirst: %+v\nsecond: %+v", firstItems, inv.Items)
	}
	if first.SubtotalCents != inv.SubtotalCents || first.TotalCents != inv.TotalCents {
		t.Fatalf("totals changed on repeated call: %d/%d -> %d/%d",
			first.SubtotalCents, first.TotalCents, inv.SubtotalCents, inv.TotalCents)
	}
}

func TestReconcile_PreservesManualItems(t *testing.T) {
	inv := &model.Invoice{
		ID:            1,
		DiscountCents: 2000,
		Items: []model.LineItem{
			{Description: "Shipping", Quantity: 1, UnitPriceCents: 1000, AmountCents: 1000},
		},
	}
	ticket := &model.Ticket{ID: 7, IssueDescription: "Replace screen", EstimatedCostCents: cents(20000)}

	idx, created, err := Reconcile(inv, ticket)
	if err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}
	if idx != 1 || !created {
		t.Fatalf("idx/created = %d/%v, want 1/true (appended after manual item)", idx, created)
	}

	if len(inv.Items) != 2 {
		t.Fatalf("items count = %d, want 2", len(inv.Items))
	}
	manual := inv.Items[0]
	if manual.Description != "Shipping" || manual.AmountCents != 1000 || manual.TicketRef != nil {
		t.Fatalf("manual item must stay unchanged, got %+v", manual)
	}
	if inv.SubtotalCents != 21000 {
		t.Fatalf("subtotal = %d, want 21000", inv.SubtotalCents)
	}
	if inv.TotalCents != 19000 {
		t.Fatalf("total = %d, want 19000 (subtotal - discount)", inv.TotalCents)
	}
}

func TestReconcile_MissingCostYieldsZeroItem(t *testing.T) {
	inv := &model.Invoice{ID: 1}
	ticket := &model.Ticket{ID: 7, IssueDescription: "Diagnostics"}

	if _, _, err := Reconcile(inv, ticket); err != nil {
		t.Fatalf("Reconcile error: %v", err)
	}

	it := inv.Items[0]
	if it.UnitPriceCents != 0 || it.AmountCents != 0 {
		t.Fatalf("absent cost must coerce to zero, got %+v", it)
	}
	if inv.SubtotalCents != 0 || inv.TotalCents != 0 {
		t.Fatalf("subtotal/total = %d/%d, want 0/0", inv.SubtotalCents, inv.TotalCents)
	}
}

func TestReconcile_RejectsNegativeTotal(t *testing.T) {
	inv := &model.Invoice{ID: 1, DiscountCents: 5000}
	ticket := &model.Ticket{ID: 7, IssueDescription: "Diagnostics"}

	_, _, err := Reconcile(inv, ticket)
	if !errors.Is(err, ErrNegativeTotal) {
		t.Fatalf("expected ErrNegativeTotal when discount exceeds subtotal, got %v", err)
	}
}

func TestRecalculate_InvariantOverItems(t *testing.T) {
	ref := int64(7)
	inv := &model.Invoice{
		DiscountCents: 2000,
		Items: []model.LineItem{
			{Description: "Replace screen", Quantity: 1, UnitPriceCents: 20000, AmountCents: 20000, TicketRef: &ref},
			{Description: "Shipping", Quantity: 1, UnitPriceCents: 1000, AmountCents: 1000},
		},
	}

	if err := Recalculate(inv); err != nil {
		t.Fatalf("Recalculate error: %v", err)
	}

	if inv.SubtotalCents != 21000 {
		t.Fatalf("subtotal = %d, want 21000", inv.SubtotalCents)
	}
	if inv.TotalCents != 19000 {
		t.Fatalf("total = %d, want 19000", inv.TotalCents)
	}
}

func TestBuildItems_SkipsIncompleteRows(t *testing.T) {
	items := BuildItems([]ItemInput{
		{Description: "RAM upgrade", Quantity: 2, UnitPriceCents: 4500},
		{Description: "", Quantity: 1, UnitPriceCents: 1000},
		{Description: "Labor", Quantity: 0, UnitPriceCents: 1000},
		{Description: "Cleaning", Quantity: 1, UnitPriceCents: 0},
	})

	if len(items) != 1 {
		t.Fatalf("items count = %d, want 1", len(items))
	}
	if items[0].AmountCents != 9000 {
		t.Fatalf("amount = %d, want quantity*unitPrice = 9000", items[0].AmountCents)
	}
}

func TestInvoiceNumber(t *testing.T) {
	issued := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)

	got := InvoiceNumber(issued, 17)
	if got != "INV-20250309-0017" {
		t.Fatalf("InvoiceNumber = %q, want INV-20250309-0017", got)
	}
}

func TestDefaultDueDate(t *testing.T) {
	issued := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)

	got := DefaultDueDate(issued)
	if got.Sub(issued) != 15*24*time.Hour {
		t.Fatalf("due date = %v, want issued + 15 days", got)
	}
}

func TestApplyOverdue(t *testing.T) {
	now := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		status model.InvoiceStatus
		due    time.Time
		want   model.InvoiceStatus
	}{
		{
			name:   "unpaid past due becomes overdue",
			status: model.InvoiceStatusUnpaid,
			due:    now.AddDate(0, 0, -1),
			want:   model.InvoiceStatusOverdue,
		},
		{
			name:   "unpaid before due stays unpaid",
			status: model.InvoiceStatusUnpaid,
			due:    now.AddDate(0, 0, 1),
			want:   model.InvoiceStatusUnpaid,
		},
		{
			name:   "paid past due stays paid",
			status: model.InvoiceStatusPaid,
			due:    now.AddDate(0, 0, -1),
			want:   model.InvoiceStatusPaid,
		},
		{
			name:   "cancelled past due stays cancelled",
			status: model.InvoiceStatusCancelled,
			due:    now.AddDate(0, 0, -1),
			want:   model.InvoiceStatusCancelled,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &model.Invoice{Status: tt.status, DueDate: tt.due}

			ApplyOverdue(inv, now)

			if inv.Status != tt.want {
				t.Fatalf("status = %s, want %s", inv.Status, tt.want)
			}
		})
	}
}
