package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/westla/repairdesk-system/internal/middleware"
	"github.com/westla/repairdesk-system/internal/model"
	"github.com/westla/repairdesk-system/internal/repository"
	"github.com/westla/repairdesk-system/internal/service"
	"github.com/westla/repairdesk-system/internal/validation"
)

type noteResponse struct {
	Text      string `json:"text"`
	AuthorID  int64  `json:"authorId"`
	IsPublic  bool   `json:"isPublic"`
	CreatedAt string `json:"createdAt"`
}

type ticketResponse struct {
	ID               int64          `json:"id"`
	ClientID         int64          `json:"clientId"`
	TechnicianID     *int64         `json:"technicianId,omitempty"`
	DeviceType       string         `json:"deviceType"`
	Brand            string         `json:"brand"`
	Model            string         `json:"model"`
	SerialNumber     string         `json:"serialNumber,omitempty"`
	IssueDescription string         `json:"issueDescription"`
	IssueTypes       []string       `json:"issueTypes"`
	Status           string         `json:"status"`
	EstimatedDone    *string        `json:"estimatedCompletionDate,omitempty"`
	EstimatedCost    *float64       `json:"estimatedCost,omitempty"`
	DiagnosticFee    float64        `json:"diagnosticFee"`
	Notes            []noteResponse `json:"notes,omitempty"`
	CreatedAt        string         `json:"createdAt"`
	UpdatedAt        string         `json:"updatedAt"`
}

// toTicketResponse формирует JSON-представление заявки.
// Клиент видит только публичные заметки.
func toTicketResponse(t *model.Ticket, role model.Role) ticketResponse {
	resp := ticketResponse{
		ID:               t.ID,
		ClientID:         t.ClientID,
		TechnicianID:     t.TechnicianID,
		DeviceType:       string(t.DeviceType),
		Brand:            t.Brand,
		Model:            t.Model,
		SerialNumber:     t.SerialNumber,
		IssueDescription: t.IssueDescription,
		IssueTypes:       t.IssueTypes,
		Status:           string(t.Status),
		EstimatedDone:    formatTimePtr(t.EstimatedDone),
		DiagnosticFee:    dollars(t.DiagnosticFeeCents),
		CreatedAt:        formatTime(t.CreatedAt),
		UpdatedAt:        formatTime(t.UpdatedAt),
	}
	if t.EstimatedCostCents != nil {
		cost := dollars(*t.EstimatedCostCents)
		resp.EstimatedCost = &cost
	}
	for _, n := range t.Notes {
		if !role.IsStaff() && !n.IsPublic {
			continue
		}
		resp.Notes = append(resp.Notes, noteResponse{
			Text:      n.Text,
			AuthorID:  n.AuthorID,
			IsPublic:  n.IsPublic,
			CreatedAt: formatTime(n.CreatedAt),
		})
	}
	return resp
}

type createTicketRequest struct {
	DeviceType       string                `json:"deviceType"`
	Brand            string                `json:"brand"`
	Model            string                `json:"model"`
	SerialNumber     string                `json:"serialNumber"`
	IssueDescription string                `json:"issueDescription"`
	IssueTypes       validation.StringList `json:"issueTypes"`
}

// CreateTicket регистрирует новую заявку на ремонт от текущего пользователя.
func (h *Handler) CreateTicket(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	var req createTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Brand == "" || req.IssueDescription == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if !model.ValidDeviceType(req.DeviceType) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	id, err := h.service.CreateTicket(r.Context(), userID, service.TicketInput{
		DeviceType:       model.DeviceType(req.DeviceType),
		Brand:            req.Brand,
		Model:            req.Model,
		SerialNumber:     req.SerialNumber,
		IssueDescription: req.IssueDescription,
		IssueTypes:       req.IssueTypes,
	})
	if err != nil {
		h.logger.Error("create ticket error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// GetTickets возвращает список заявок с необязательным фильтром по статусу.
func (h *Handler) GetTickets(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	role, _ := middleware.GetRoleFromContext(r.Context())

	var status *model.TicketStatus
	if s := r.URL.Query().Get("status"); s != "" {
		if !model.ValidTicketStatus(s) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		st := model.TicketStatus(s)
		status = &st
	}

	tickets, err := h.service.ListTickets(r.Context(), userID, role, status)
	if err != nil {
		h.logger.Error("list tickets error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(tickets) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]ticketResponse, 0, len(tickets))
	for _, t := range tickets {
		resp = append(resp, toTicketResponse(&t, role))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetTicket возвращает одну заявку с заметками.
func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	role, _ := middleware.GetRoleFromContext(r.Context())

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	ticket, err := h.service.GetTicket(r.Context(), id, userID, role)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrTicketNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrAccessDenied):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		default:
			h.logger.Error("get ticket error", zap.Error(err), zap.Int64("ticket", id))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, toTicketResponse(ticket, role))
}

type updateTicketRequest struct {
	Status        *string  `json:"status"`
	TechnicianID  *int64   `json:"technicianId"`
	EstimatedDone *string  `json:"estimatedCompletionDate"`
	EstimatedCost *float64 `json:"estimatedCost"`
	Note          *struct {
		Text     string `json:"text"`
		IsPublic bool   `json:"isPublic"`
	} `json:"note"`
}

type updateTicketResponse struct {
	Warning string `json:"warning,omitempty"`
}

// UpdateTicket применяет изменения сотрудника к заявке. Отсутствующие
// поля не меняются; ошибка синхронизации счёта возвращается
// предупреждением, а не ошибкой.
func (h *Handler) UpdateTicket(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req updateTicketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	upd := service.TicketUpdate{
		TechnicianID:  req.TechnicianID,
		EstimatedCost: req.EstimatedCost,
	}
	if req.Status != nil {
		if !model.ValidTicketStatus(*req.Status) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		st := model.TicketStatus(*req.Status)
		upd.Status = &st
	}
	if req.EstimatedDone != nil {
		done, err := time.Parse(time.RFC3339, *req.EstimatedDone)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		upd.EstimatedDone = &done
	}
	if req.Note != nil && req.Note.Text != "" {
		upd.NoteText = req.Note.Text
		upd.NoteIsPublic = req.Note.IsPublic
	}

	warning, err := h.service.UpdateTicket(r.Context(), userID, id, upd)
	if err != nil {
		if errors.Is(err, repository.ErrTicketNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("update ticket error", zap.Error(err), zap.Int64("ticket", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, updateTicketResponse{Warning: warning})
}

// DeleteTicket удаляет заявку без счетов.
func (h *Handler) DeleteTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteTicket(r.Context(), id); err != nil {
		switch {
		case errors.Is(err, repository.ErrTicketNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrTicketHasInvoices):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		default:
			h.logger.Error("delete ticket error", zap.Error(err), zap.Int64("ticket", id))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
