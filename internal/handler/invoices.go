package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/westla/repairdesk-system/internal/billing"
	"github.com/westla/repairdesk-system/internal/middleware"
	"github.com/westla/repairdesk-system/internal/model"
	"github.com/westla/repairdesk-system/internal/payment"
	"github.com/westla/repairdesk-system/internal/repository"
	"github.com/westla/repairdesk-system/internal/service"
	"github.com/westla/repairdesk-system/internal/validation"
)

type lineItemResponse struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Amount      float64 `json:"amount"`
	ServiceID   *int64  `json:"serviceId,omitempty"`
}

type invoiceResponse struct {
	ID            int64              `json:"id"`
	Number        string             `json:"number"`
	ServiceID     *int64             `json:"serviceId,omitempty"`
	ClientID      int64              `json:"clientId"`
	Items         []lineItemResponse `json:"items"`
	Subtotal      float64            `json:"subtotal"`
	Discount      float64            `json:"discount"`
	Total         float64            `json:"total"`
	Status        string             `json:"status"`
	Notes         string             `json:"notes,omitempty"`
	IssueDate     string             `json:"issueDate"`
	DueDate       string             `json:"dueDate"`
	PaymentDate   *string            `json:"paymentDate,omitempty"`
	PaymentMethod *string            `json:"paymentMethod,omitempty"`
	PaymentRef    string             `json:"paymentRef,omitempty"`
}

func toInvoiceResponse(inv *model.Invoice) invoiceResponse {
	resp := invoiceResponse{
		ID:          inv.ID,
		Number:      inv.Number,
		ServiceID:   inv.TicketID,
		ClientID:    inv.ClientID,
		Items:       make([]lineItemResponse, 0, len(inv.Items)),
		Subtotal:    dollars(inv.SubtotalCents),
		Discount:    dollars(inv.DiscountCents),
		Total:       dollars(inv.TotalCents),
		Status:      string(inv.Status),
		Notes:       inv.Notes,
		IssueDate:   formatTime(inv.IssueDate),
		DueDate:     formatTime(inv.DueDate),
		PaymentDate: formatTimePtr(inv.PaymentDate),
		PaymentRef:  inv.PaymentRef,
	}
	if inv.PaymentMethod != nil {
		method := string(*inv.PaymentMethod)
		resp.PaymentMethod = &method
	}
	for _, it := range inv.Items {
		resp.Items = append(resp.Items, lineItemResponse{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   dollars(it.UnitPriceCents),
			Amount:      dollars(it.AmountCents),
			ServiceID:   it.TicketRef,
		})
	}
	return resp
}

type createInvoiceRequest struct {
	Items []struct {
		Description string  `json:"description"`
		Quantity    int     `json:"quantity"`
		UnitPrice   float64 `json:"unitPrice"`
	} `json:"items"`
	Discount float64 `json:"discount"`
	Notes    string  `json:"notes"`
	DueDate  *string `json:"dueDate"`
}

// CreateInvoice выставляет счёт по заявке.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req createInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	in := service.InvoiceInput{
		Discount: req.Discount,
		Notes:    req.Notes,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, service.InvoiceItemInput{
			Description: it.Description,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}
	if req.DueDate != nil {
		due, err := time.Parse(time.RFC3339, *req.DueDate)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		in.DueDate = &due
	}

	id, err := h.service.CreateInvoice(r.Context(), ticketID, in)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTicketNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, billing.ErrNegativeTotal), errors.Is(err, repository.ErrInvoiceValidation):
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		default:
			h.logger.Error("create invoice error", zap.Error(err), zap.Int64("ticket", ticketID))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

type invoiceListResponse struct {
	Invoices []invoiceResponse `json:"invoices"`
	Summary  struct {
		Total  float64 `json:"total"`
		Paid   float64 `json:"paid"`
		Unpaid float64 `json:"unpaid"`
	} `json:"summary"`
}

// GetInvoices возвращает счета пользователя со сводкой сумм.
// Параметр number сужает список до счёта с указанным номером.
func (h *Handler) GetInvoices(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	role, _ := middleware.GetRoleFromContext(r.Context())

	number := r.URL.Query().Get("number")
	if number != "" && !validation.IsValidInvoiceNumber(number) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	invoices, summary, err := h.service.ListInvoices(r.Context(), userID, role, number)
	if err != nil {
		h.logger.Error("list invoices error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(invoices) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := invoiceListResponse{Invoices: make([]invoiceResponse, 0, len(invoices))}
	for _, inv := range invoices {
		resp.Invoices = append(resp.Invoices, toInvoiceResponse(&inv))
	}
	resp.Summary.Total = dollars(summary.TotalCents)
	resp.Summary.Paid = dollars(summary.PaidCents)
	resp.Summary.Unpaid = dollars(summary.UnpaidCents)
	h.writeJSON(w, http.StatusOK, resp)
}

// GetInvoice возвращает один счёт с позициями.
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	role, _ := middleware.GetRoleFromContext(r.Context())

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	invoice, err := h.service.GetInvoice(r.Context(), id, userID, role)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInvoiceNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrAccessDenied):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		default:
			h.logger.Error("get invoice error", zap.Error(err), zap.Int64("invoice", id))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, toInvoiceResponse(invoice))
}

type updateInvoiceStatusRequest struct {
	Status        string  `json:"status"`
	PaymentMethod *string `json:"paymentMethod"`
}

// UpdateInvoiceStatus меняет статус счёта вручную.
func (h *Handler) UpdateInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req updateInvoiceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if !model.ValidInvoiceStatus(req.Status) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}
	var method *model.PaymentMethod
	if req.PaymentMethod != nil {
		if !model.ValidPaymentMethod(*req.PaymentMethod) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		m := model.PaymentMethod(*req.PaymentMethod)
		method = &m
	}

	err := h.service.UpdateInvoiceStatus(r.Context(), id, model.InvoiceStatus(req.Status), method)
	if err != nil {
		if errors.Is(err, repository.ErrInvoiceNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("update invoice status error", zap.Error(err), zap.Int64("invoice", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type payInvoiceRequest struct {
	PaymentMethod string `json:"paymentMethod"`
	CardToken     string `json:"cardToken"`
}

// PayInvoice проводит оплату счёта его владельцем. Оплата картой уходит
// в платёжный шлюз; остальные способы принимаются к ручной обработке.
func (h *Handler) PayInvoice(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req payInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if !model.ValidPaymentMethod(req.PaymentMethod) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	captured, err := h.service.PayInvoice(r.Context(), userID, id, model.PaymentMethod(req.PaymentMethod), req.CardToken)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrInvoiceNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrAccessDenied):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, service.ErrInvoiceAlreadyPaid):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		case errors.Is(err, payment.ErrDeclined):
			http.Error(w, http.StatusText(http.StatusPaymentRequired), http.StatusPaymentRequired)
		default:
			h.logger.Error("pay invoice error", zap.Error(err), zap.Int64("invoice", id))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	if captured {
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
