// Package billing содержит расчётную логику счетов: синхронизацию позиций
// счёта с заявкой на ремонт и пересчёт итогов. Все функции работают с
// целыми центами и не обращаются к хранилищу.
package billing

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/westla/repairdesk-system/internal/model"
)

// ErrNegativeTotal возвращается, если скидка превышает сумму позиций счёта.
var ErrNegativeTotal = errors.New("invoice total is negative")

// CoerceCostCents приводит оценочную стоимость из запроса к неотрицательной
// сумме в центах. Отсутствующее, нечисловое (NaN/Inf) или отрицательное
// значение трактуется как ноль.
func CoerceCostCents(cost *float64) int64 {
	if cost == nil {
		return 0
	}
	v := *cost
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0
	}
	return int64(math.Round(v * 100))
}

// Recalculate пересчитывает subtotal и total счёта по текущим позициям.
// Возвращает ErrNegativeTotal, если скидка превышает subtotal; в этом случае
// вызывающий код не должен сохранять счёт.
func Recalculate(inv *model.Invoice) error {
	var subtotal int64
	for _, it := range inv.Items {
		subtotal += it.AmountCents
	}

	inv.SubtotalCents = subtotal
	inv.TotalCents = subtotal - inv.DiscountCents

	if inv.TotalCents < 0 {
		return fmt.Errorf("%w: subtotal %d, discount %d", ErrNegativeTotal, subtotal, inv.DiscountCents)
	}

	return nil
}

// Reconcile приводит позицию счёта, порождённую заявкой, в соответствие с
// её текущим описанием и оценочной стоимостью. Позиции, добавленные вручную,
// не затрагиваются. Повторный вызов с той же заявкой не меняет счёт.
// Возвращает индекс затронутой позиции и признак того, что позиция была
// добавлена, а не обновлена.
func Reconcile(inv *model.Invoice, ticket *model.Ticket) (int, bool, error) {
	cost := int64(0)
	if ticket.EstimatedCostCents != nil && *ticket.EstimatedCostCents > 0 {
		cost = *ticket.EstimatedCostCents
	}

	idx := -1
	for i, it := range inv.Items {
		if it.TicketRef != nil && *it.TicketRef == ticket.ID {
			idx = i
			break
		}
	}

	created := false
	if idx >= 0 {
		inv.Items[idx].Description = ticket.IssueDescription
		inv.Items[idx].UnitPriceCents = cost
		// Позиция по заявке всегда в одном экземпляре: amount повторяет цену.
		inv.Items[idx].AmountCents = cost
	} else {
		ref := ticket.ID
		inv.Items = append(inv.Items, model.LineItem{
			Description:    ticket.IssueDescription,
			Quantity:       1,
			UnitPriceCents: cost,
			AmountCents:    cost,
			TicketRef:      &ref,
		})
		idx = len(inv.Items) - 1
		created = true
	}

	if err := Recalculate(inv); err != nil {
		return idx, created, err
	}

	return idx, created, nil
}

// ItemInput описывает одну строку формы создания счёта.
type ItemInput struct {
	Description    string
	Quantity       int
	UnitPriceCents int64
}

// BuildItems собирает позиции счёта из строк формы. Неполные строки
// (без описания, количества или цены) пропускаются.
func BuildItems(inputs []ItemInput) []model.LineItem {
	items := make([]model.LineItem, 0, len(inputs))
	for _, in := range inputs {
		if in.Description == "" || in.Quantity <= 0 || in.UnitPriceCents <= 0 {
			continue
		}
		items = append(items, model.LineItem{
			Description:    in.Description,
			Quantity:       in.Quantity,
			UnitPriceCents: in.UnitPriceCents,
			AmountCents:    int64(in.Quantity) * in.UnitPriceCents,
		})
	}
	return items
}

// InvoiceNumber формирует человекочитаемый номер счёта вида INV-ГГГГММДД-NNNN
// из даты выставления и порядкового номера.
func InvoiceNumber(issued time.Time, seq int64) string {
	return fmt.Sprintf("INV-%s-%04d", issued.Format("20060102"), seq)
}

// DefaultDueDate возвращает срок оплаты по умолчанию: 15 дней с даты выставления.
func DefaultDueDate(issued time.Time) time.Time {
	return issued.AddDate(0, 0, 15)
}

// ApplyOverdue переводит неоплаченный счёт с истёкшим сроком в статус
// Overdue. Вызывается при чтении, чтобы просрочка была видна сразу,
// не дожидаясь фоновой записи статуса в хранилище.
func ApplyOverdue(inv *model.Invoice, now time.Time) {
	if inv.Status == model.InvoiceStatusUnpaid && inv.DueDate.Before(now) {
		inv.Status = model.InvoiceStatusOverdue
	}
}
