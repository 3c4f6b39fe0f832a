// Package handler содержит HTTP-обработчики API ремонтной мастерской.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/westla/repairdesk-system/internal/middleware"
	"github.com/westla/repairdesk-system/internal/model"
	"github.com/westla/repairdesk-system/internal/repository"
	"github.com/westla/repairdesk-system/internal/service"
	"github.com/westla/repairdesk-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, name, email, password, phone string) (int64, error)
	AuthenticateUser(ctx context.Context, email, password string) (*model.User, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	UpdateProfile(ctx context.Context, userID int64, upd service.ProfileUpdate) error
	Dashboard(ctx context.Context, userID int64, role model.Role) (*service.DashboardStats, error)

	CreateTicket(ctx context.Context, clientID int64, in service.TicketInput) (int64, error)
	GetTicket(ctx context.Context, id, userID int64, role model.Role) (*model.Ticket, error)
	ListTickets(ctx context.Context, userID int64, role model.Role, status *model.TicketStatus) ([]model.Ticket, error)
	UpdateTicket(ctx context.Context, actorID, ticketID int64, upd service.TicketUpdate) (string, error)
	DeleteTicket(ctx context.Context, id int64) error

	CreateInvoice(ctx context.Context, ticketID int64, in service.InvoiceInput) (int64, error)
	GetInvoice(ctx context.Context, id, userID int64, role model.Role) (*model.Invoice, error)
	ListInvoices(ctx context.Context, userID int64, role model.Role, number string) ([]model.Invoice, *service.InvoiceSummary, error)
	UpdateInvoiceStatus(ctx context.Context, id int64, status model.InvoiceStatus, method *model.PaymentMethod) error
	PayInvoice(ctx context.Context, userID, id int64, method model.PaymentMethod, cardToken string) (bool, error)

	StartConversation(ctx context.Context, senderID, recipientID int64, ticketID *int64, subject, content string) (int64, error)
	ListConversations(ctx context.Context, userID int64) ([]model.Conversation, error)
	GetConversation(ctx context.Context, id, userID int64) (*model.Conversation, []model.Message, error)
	SendMessage(ctx context.Context, userID, conversationID int64, content string, uploads []service.AttachmentUpload) (int64, error)
	SetConversationArchived(ctx context.Context, id, userID int64, archived bool) error

	SaveDocument(ctx context.Context, uploaderID int64, in service.DocumentInput) (int64, error)
	ListDocuments(ctx context.Context, userID int64, role model.Role) ([]model.Document, error)
	GetDocument(ctx context.Context, id, userID int64, role model.Role) (*model.Document, io.ReadCloser, error)
	ShareDocument(ctx context.Context, id int64, share service.DocumentShare) error
	DeleteDocument(ctx context.Context, id int64) error
}

// Handler реализует HTTP-обработчики API мастерской.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// dollars переводит центы в денежное значение для JSON-ответа.
func dollars(cents int64) float64 {
	return float64(cents) / 100
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

// idParam извлекает числовой идентификатор из пути запроса.
func idParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

// Register обрабатывает регистрацию нового клиента.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Name == "" || !validation.IsValidEmail(req.Email) || len(req.Password) < 6 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Name, req.Email, req.Password, req.Phone)
	if err != nil {
		if errors.Is(err, repository.ErrUserExists) {
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
			return
		}
		h.logger.Error("register user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID, model.RoleClient)
	h.writeJSON(w, http.StatusOK, map[string]int64{"id": userID})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Email == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	user, err := h.service.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, user.ID, user.Role)
	h.writeJSON(w, http.StatusOK, map[string]any{"id": user.ID, "name": user.Name, "role": user.Role})
}

// Logout сбрасывает авторизационную cookie.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}

type profileRequest struct {
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// UpdateProfile изменяет данные профиля текущего пользователя. Смена
// пароля требует подтверждения действующим паролем.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.NewPassword != "" && len(req.NewPassword) < 6 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.UpdateProfile(r.Context(), userID, service.ProfileUpdate{
		Name:            req.Name,
		Phone:           req.Phone,
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("update profile error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type dashboardResponse struct {
	Services      []ticketResponse       `json:"services"`
	Invoices      []invoiceResponse      `json:"invoices"`
	Conversations []conversationResponse `json:"conversations"`
	Documents     []documentResponse     `json:"documents,omitempty"`
	StatusCounts  map[string]int64       `json:"statusCounts,omitempty"`
	UnreadCount   int64                  `json:"unreadCount"`
}

// GetDashboard возвращает сводку для главной страницы: клиенту — его
// данные, сотрудникам — картину по мастерской.
func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	role, _ := middleware.GetRoleFromContext(r.Context())

	stats, err := h.service.Dashboard(r.Context(), userID, role)
	if err != nil {
		h.logger.Error("dashboard error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := dashboardResponse{
		Services:      make([]ticketResponse, 0, len(stats.Tickets)),
		Invoices:      make([]invoiceResponse, 0, len(stats.Invoices)),
		Conversations: make([]conversationResponse, 0, len(stats.Conversations)),
		UnreadCount:   stats.UnreadCount,
	}
	for _, t := range stats.Tickets {
		resp.Services = append(resp.Services, toTicketResponse(&t, role))
	}
	for _, inv := range stats.Invoices {
		resp.Invoices = append(resp.Invoices, toInvoiceResponse(&inv))
	}
	for _, c := range stats.Conversations {
		resp.Conversations = append(resp.Conversations, toConversationResponse(&c, userID))
	}
	for _, d := range stats.Documents {
		resp.Documents = append(resp.Documents, toDocumentResponse(&d))
	}
	if stats.StatusCounts != nil {
		resp.StatusCounts = make(map[string]int64, len(stats.StatusCounts))
		for status, n := range stats.StatusCounts {
			resp.StatusCounts[string(status)] = n
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
