package service

import (
	"context"
	"fmt"
	"time"

	"github.com/westla/repairdesk-system/internal/billing"
	"github.com/westla/repairdesk-system/internal/model"
	"github.com/westla/repairdesk-system/internal/payment"
)

// InvoiceItemInput — позиция счёта из запроса сотрудника.
type InvoiceItemInput struct {
	Description string
	Quantity    int
	UnitPrice   float64
}

// InvoiceInput — данные для выставления счёта по заявке.
type InvoiceInput struct {
	Items    []InvoiceItemInput
	Discount float64
	Notes    string
	DueDate  *time.Time
}

// InvoiceSummary — агрегаты по списку счетов.
type InvoiceSummary struct {
	TotalCents  int64
	PaidCents   int64
	UnpaidCents int64
}

// CreateInvoice выставляет счёт по заявке: присваивает номер, считает
// суммы и переводит заявку в статус «готово к выдаче», если ремонт
// ещё не завершён.
func (s *Service) CreateInvoice(ctx context.Context, ticketID int64, in InvoiceInput) (int64, error) {
	ticket, err := s.repo.GetTicketByID(ctx, ticketID)
	if err != nil {
		return 0, err
	}

	seq, err := s.repo.NextInvoiceSeq(ctx)
	if err != nil {
		return 0, fmt.Errorf("next invoice seq: %w", err)
	}

	issued := time.Now()
	due := billing.DefaultDueDate(issued)
	if in.DueDate != nil {
		due = *in.DueDate
	}

	items := make([]billing.ItemInput, 0, len(in.Items))
	for _, it := range in.Items {
		price := it.UnitPrice
		items = append(items, billing.ItemInput{
			Description:    it.Description,
			Quantity:       it.Quantity,
			UnitPriceCents: billing.CoerceCostCents(&price),
		})
	}

	invoice := &model.Invoice{
		Number:        billing.InvoiceNumber(issued, seq),
		ClientID:      ticket.ClientID,
		TicketID:      &ticket.ID,
		Status:        model.InvoiceStatusUnpaid,
		Items:         billing.BuildItems(items),
		DiscountCents: billing.CoerceCostCents(&in.Discount),
		Notes:         in.Notes,
		IssueDate:     issued,
		DueDate:       due,
	}
	if err := billing.Recalculate(invoice); err != nil {
		return 0, err
	}

	id, err := s.repo.CreateInvoice(ctx, invoice)
	if err != nil {
		return 0, fmt.Errorf("create invoice: %w", err)
	}

	if ticket.Status != model.TicketStatusCompleted {
		ticket.Status = model.TicketStatusReadyForPickup
		if err := s.repo.UpdateTicket(ctx, ticket); err != nil {
			return 0, fmt.Errorf("update ticket status: %w", err)
		}
	}
	return id, nil
}

// GetInvoice возвращает счёт. Клиент видит только свои счета.
func (s *Service) GetInvoice(ctx context.Context, id, userID int64, role model.Role) (*model.Invoice, error) {
	invoice, err := s.repo.GetInvoiceByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !role.IsStaff() && invoice.ClientID != userID {
		return nil, ErrAccessDenied
	}
	return invoice, nil
}

// ListInvoices возвращает счета пользователя вместе со сводкой сумм.
// Сотрудники видят все счета; непустой number сужает список до
// счёта с этим номером.
func (s *Service) ListInvoices(ctx context.Context, userID int64, role model.Role, number string) ([]model.Invoice, *InvoiceSummary, error) {
	var clientID *int64
	if !role.IsStaff() {
		clientID = &userID
	}
	invoices, err := s.repo.ListInvoices(ctx, clientID)
	if err != nil {
		return nil, nil, err
	}

	if number != "" {
		filtered := invoices[:0]
		for _, inv := range invoices {
			if inv.Number == number {
				filtered = append(filtered, inv)
			}
		}
		invoices = filtered
	}

	summary := &InvoiceSummary{}
	for _, inv := range invoices {
		summary.TotalCents += inv.TotalCents
		if inv.Status == model.InvoiceStatusPaid {
			summary.PaidCents += inv.TotalCents
		} else {
			summary.UnpaidCents += inv.TotalCents
		}
	}
	return invoices, summary, nil
}

// UpdateInvoiceStatus меняет статус счёта вручную (сотрудником).
func (s *Service) UpdateInvoiceStatus(ctx context.Context, id int64, status model.InvoiceStatus, method *model.PaymentMethod) error {
	return s.repo.UpdateInvoiceStatus(ctx, id, status, method, "")
}

// PayInvoice проводит оплату счёта владельцем. При оплате картой сумма
// списывается через платёжный шлюз и счёт помечается оплаченным;
// captured сообщает, было ли списание. Остальные способы только
// принимаются к ручной обработке: статус счёта меняет сотрудник
// через UpdateInvoiceStatus после фактического получения денег.
func (s *Service) PayInvoice(ctx context.Context, userID, id int64, method model.PaymentMethod, cardToken string) (bool, error) {
	invoice, err := s.repo.GetInvoiceByID(ctx, id)
	if err != nil {
		return false, err
	}
	if invoice.ClientID != userID {
		return false, ErrAccessDenied
	}
	if invoice.Status == model.InvoiceStatusPaid {
		return false, ErrInvoiceAlreadyPaid
	}

	if method != model.PaymentCreditCard || cardToken == "" {
		return false, nil
	}

	charge, err := s.payments.CreateCharge(ctx, payment.ChargeRequest{
		AmountCents: invoice.TotalCents,
		Currency:    "usd",
		Description: "Invoice " + invoice.Number,
		Source:      cardToken,
	})
	if err != nil {
		return false, err
	}

	if err := s.repo.UpdateInvoiceStatus(ctx, id, model.InvoiceStatusPaid, &method, charge.ID); err != nil {
		return true, fmt.Errorf("mark invoice paid: %w", err)
	}
	return true, nil
}
