package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/westla/repairdesk-system/internal/billing"
	"github.com/westla/repairdesk-system/internal/model"
	"github.com/westla/repairdesk-system/internal/validation"
)

// TicketInput — данные для создания заявки на ремонт.
type TicketInput struct {
	DeviceType       model.DeviceType
	Brand            string
	Model            string
	SerialNumber     string
	IssueTypes       []string
	IssueDescription string
}

// TicketUpdate — частичное обновление заявки сотрудником.
// Нулевые указатели означают «поле не меняется».
type TicketUpdate struct {
	Status        *model.TicketStatus
	TechnicianID  *int64
	EstimatedDone *time.Time
	EstimatedCost *float64
	NoteText      string
	NoteIsPublic  bool
}

// CreateTicket создаёт заявку от имени клиента.
func (s *Service) CreateTicket(ctx context.Context, clientID int64, in TicketInput) (int64, error) {
	ticket := &model.Ticket{
		ClientID:         clientID,
		DeviceType:       in.DeviceType,
		Brand:            in.Brand,
		Model:            in.Model,
		SerialNumber:     in.SerialNumber,
		IssueTypes:       validation.NormalizeIssueTypes(in.IssueTypes),
		IssueDescription: in.IssueDescription,
		Status:           model.TicketStatusNew,
	}
	id, err := s.repo.CreateTicket(ctx, ticket)
	if err != nil {
		return 0, fmt.Errorf("create ticket: %w", err)
	}
	return id, nil
}

// GetTicket возвращает заявку. Клиент видит только свои заявки.
func (s *Service) GetTicket(ctx context.Context, id, userID int64, role model.Role) (*model.Ticket, error) {
	ticket, err := s.repo.GetTicketByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !role.IsStaff() && ticket.ClientID != userID {
		return nil, ErrAccessDenied
	}
	return ticket, nil
}

// ListTickets возвращает заявки: клиенту — свои, сотрудникам — все.
func (s *Service) ListTickets(ctx context.Context, userID int64, role model.Role, status *model.TicketStatus) ([]model.Ticket, error) {
	var clientID *int64
	if !role.IsStaff() {
		clientID = &userID
	}
	return s.repo.ListTickets(ctx, clientID, status)
}

// UpdateTicket применяет изменения сотрудника к заявке и синхронизирует
// связанный счёт. Ошибка синхронизации не откатывает обновление заявки:
// клиент получает предупреждение, детали уходят в лог.
func (s *Service) UpdateTicket(ctx context.Context, actorID, ticketID int64, upd TicketUpdate) (string, error) {
	ticket, err := s.repo.GetTicketByID(ctx, ticketID)
	if err != nil {
		return "", err
	}

	if upd.Status != nil {
		ticket.Status = *upd.Status
	}
	if upd.TechnicianID != nil {
		ticket.TechnicianID = upd.TechnicianID
	}
	if upd.EstimatedDone != nil {
		ticket.EstimatedDone = upd.EstimatedDone
	}
	if upd.EstimatedCost != nil {
		cents := billing.CoerceCostCents(upd.EstimatedCost)
		ticket.EstimatedCostCents = &cents
	}

	if err := s.repo.UpdateTicket(ctx, ticket); err != nil {
		return "", fmt.Errorf("update ticket: %w", err)
	}

	if upd.NoteText != "" {
		note := &model.TicketNote{
			TicketID: ticketID,
			AuthorID: actorID,
			Text:     upd.NoteText,
			IsPublic: upd.NoteIsPublic,
		}
		if err := s.repo.AddTicketNote(ctx, note); err != nil {
			return "", fmt.Errorf("add note: %w", err)
		}
	}

	if err := s.repo.ReconcileInvoice(ctx, ticket); err != nil {
		s.logger.Warn("invoice reconcile failed",
			zap.Int64("ticket", ticketID), zap.Error(err))
		return WarnInvoiceSyncFailed, nil
	}
	return "", nil
}

// DeleteTicket удаляет заявку, если по ней нет счетов.
func (s *Service) DeleteTicket(ctx context.Context, id int64) error {
	return s.repo.DeleteTicket(ctx, id)
}
