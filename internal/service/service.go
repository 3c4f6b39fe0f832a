// Package service содержит бизнес-логику ремонтной мастерской.
package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/westla/repairdesk-system/internal/model"
	"github.com/westla/repairdesk-system/internal/payment"
	"github.com/westla/repairdesk-system/internal/upload"
)

// Ошибки бизнес-логики.
var (
	// ErrInvalidCredentials возвращается при неверной паре email/пароль.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccessDenied возвращается при попытке доступа к чужому ресурсу.
	ErrAccessDenied = errors.New("access denied")
	// ErrInvoiceAlreadyPaid возвращается при повторной оплате счёта.
	ErrInvoiceAlreadyPaid = errors.New("invoice already paid")
)

// WarnInvoiceSyncFailed — предупреждение, которое возвращается клиенту,
// когда заявка обновлена, но синхронизировать счёт не удалось.
const WarnInvoiceSyncFailed = "service updated, but invoice sync failed"

// Repository определяет контракт хранилища данных.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, name, email string, passwordHash []byte, role model.Role, phone string) (int64, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	UpdateUser(ctx context.Context, user *model.User) error

	CreateTicket(ctx context.Context, ticket *model.Ticket) (int64, error)
	GetTicketByID(ctx context.Context, id int64) (*model.Ticket, error)
	ListTickets(ctx context.Context, clientID *int64, status *model.TicketStatus) ([]model.Ticket, error)
	UpdateTicket(ctx context.Context, ticket *model.Ticket) error
	AddTicketNote(ctx context.Context, note *model.TicketNote) error
	DeleteTicket(ctx context.Context, id int64) error
	CountTicketsByStatus(ctx context.Context) (map[model.TicketStatus]int64, error)

	NextInvoiceSeq(ctx context.Context) (int64, error)
	CreateInvoice(ctx context.Context, invoice *model.Invoice) (int64, error)
	GetInvoiceByID(ctx context.Context, id int64) (*model.Invoice, error)
	ListInvoices(ctx context.Context, clientID *int64) ([]model.Invoice, error)
	ListRecentInvoices(ctx context.Context, limit int) ([]model.Invoice, error)
	UpdateInvoiceStatus(ctx context.Context, id int64, status model.InvoiceStatus, method *model.PaymentMethod, reference string) error
	ReconcileInvoice(ctx context.Context, ticket *model.Ticket) error
	MarkOverdueInvoices(ctx context.Context) (int64, error)

	CreateConversation(ctx context.Context, conv *model.Conversation, first *model.Message) (int64, error)
	GetConversation(ctx context.Context, id, userID int64) (*model.Conversation, error)
	ListConversations(ctx context.Context, userID int64) ([]model.Conversation, error)
	AddMessage(ctx context.Context, msg *model.Message) (int64, error)
	ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error)
	MarkMessagesRead(ctx context.Context, conversationID, userID int64) error
	SetConversationArchived(ctx context.Context, id, userID int64, archived bool) error
	CountUnreadConversations(ctx context.Context, userID int64) (int64, error)

	CreateDocument(ctx context.Context, doc *model.Document) (int64, error)
	GetDocumentByID(ctx context.Context, id int64) (*model.Document, error)
	ListDocuments(ctx context.Context, clientID *int64) ([]model.Document, error)
	UpdateDocumentSharing(ctx context.Context, id int64, clientID *int64, isPublic bool) error
	DeleteDocument(ctx context.Context, id int64) error
}

// Service реализует бизнес-логику поверх хранилища,
// платёжного шлюза и файлового хранилища.
type Service struct {
	repo     Repository
	payments *payment.Client
	files    *upload.Store
	logger   *zap.Logger
}

// NewService создаёт сервис.
func NewService(repo Repository, payments *payment.Client, files *upload.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, payments: payments, files: files, logger: logger}
}

// Close освобождает ресурсы хранилища.
func (s *Service) Close() error {
	return s.repo.Close()
}

// hashPassword хеширует пароль с email в качестве соли.
func hashPassword(email, password string) []byte {
	sum := sha256.Sum256([]byte(email + ":" + password))
	return sum[:]
}

// RegisterUser регистрирует нового клиента мастерской.
func (s *Service) RegisterUser(ctx context.Context, name, email, password, phone string) (int64, error) {
	id, err := s.repo.CreateUser(ctx, name, email, hashPassword(email, password), model.RoleClient, phone)
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

// AuthenticateUser проверяет пару email/пароль и возвращает пользователя.
func (s *Service) AuthenticateUser(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if !bytes.Equal(hashPassword(email, password), user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetUser возвращает пользователя по идентификатору.
func (s *Service) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// ProfileUpdate — изменяемые поля профиля. Пустые строки означают
// «поле не меняется»; смена пароля требует текущего пароля.
type ProfileUpdate struct {
	Name            string
	Phone           string
	CurrentPassword string
	NewPassword     string
}

// UpdateProfile обновляет имя, телефон и пароль пользователя.
// Смена пароля выполняется только после проверки текущего.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, upd ProfileUpdate) error {
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}

	if upd.Name != "" {
		user.Name = upd.Name
	}
	if upd.Phone != "" {
		user.Phone = upd.Phone
	}
	if upd.NewPassword != "" {
		if !bytes.Equal(hashPassword(user.Email, upd.CurrentPassword), user.PasswordHash) {
			return ErrInvalidCredentials
		}
		user.PasswordHash = hashPassword(user.Email, upd.NewPassword)
	}

	if err := s.repo.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return nil
}

// DashboardStats — сводка для главной страницы пользователя.
type DashboardStats struct {
	Tickets       []model.Ticket
	Invoices      []model.Invoice
	Conversations []model.Conversation
	Documents     []model.Document
	StatusCounts  map[model.TicketStatus]int64
	UnreadCount   int64
}

// Dashboard собирает сводку: клиент видит свои данные,
// сотрудники — общую картину по мастерской.
func (s *Service) Dashboard(ctx context.Context, userID int64, role model.Role) (*DashboardStats, error) {
	stats := &DashboardStats{}

	var clientID *int64
	if !role.IsStaff() {
		clientID = &userID
	}

	tickets, err := s.repo.ListTickets(ctx, clientID, nil)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	stats.Tickets = tickets

	if role.IsStaff() {
		stats.Invoices, err = s.repo.ListRecentInvoices(ctx, 5)
		if err != nil {
			return nil, fmt.Errorf("list recent invoices: %w", err)
		}
		stats.StatusCounts, err = s.repo.CountTicketsByStatus(ctx)
		if err != nil {
			return nil, fmt.Errorf("count tickets: %w", err)
		}
	} else {
		stats.Invoices, err = s.repo.ListInvoices(ctx, &userID)
		if err != nil {
			return nil, fmt.Errorf("list invoices: %w", err)
		}
		stats.Documents, err = s.repo.ListDocuments(ctx, &userID)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
	}

	stats.Conversations, err = s.repo.ListConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	stats.UnreadCount, err = s.repo.CountUnreadConversations(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count unread: %w", err)
	}
	return stats, nil
}

// StartOverdueSweeps запускает фоновый перевод просроченных счетов
// в статус overdue. Останавливается при отмене контекста.
func (s *Service) StartOverdueSweeps(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.repo.MarkOverdueInvoices(ctx)
				if err != nil {
					s.logger.Warn("overdue sweep failed", zap.Error(err))
					continue
				}
				if n > 0 {
					s.logger.Info("invoices marked overdue", zap.Int64("count", n))
				}
			}
		}
	}()
}
