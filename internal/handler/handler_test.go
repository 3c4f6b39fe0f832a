package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/westla/repairdesk-system/internal/middleware"
	"github.com/westla/repairdesk-system/internal/model"
	"github.com/westla/repairdesk-system/internal/payment"
	"github.com/westla/repairdesk-system/internal/repository"
	"github.com/westla/repairdesk-system/internal/service"
)

// stubService реализует Service; каждый тест задаёт нужные ему поля.
type stubService struct {
	registerID    int64
	registerErr   error
	authUser      *model.User
	authErr       error
	ticket        *model.Ticket
	tickets       []model.Ticket
	warning       string
	updateErr     error
	payCaptured   bool
	payErr        error
	createInvErr  error
	deleteTickErr error
	profileErr    error
	profileUpd    *service.ProfileUpdate
	shareErr      error
	shareUpd      *service.DocumentShare
}

func (s *stubService) RegisterUser(_ context.Context, _, _, _, _ string) (int64, error) {
	return s.registerID, s.registerErr
}

func (s *stubService) AuthenticateUser(_ context.Context, _, _ string) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) GetUser(_ context.Context, _ int64) (*model.User, error) {
	return s.authUser, s.authErr
}

func (s *stubService) UpdateProfile(_ context.Context, _ int64, upd service.ProfileUpdate) error {
	s.profileUpd = &upd
	return s.profileErr
}

func (s *stubService) Dashboard(_ context.Context, _ int64, _ model.Role) (*service.DashboardStats, error) {
	return &service.DashboardStats{}, nil
}

func (s *stubService) CreateTicket(_ context.Context, _ int64, _ service.TicketInput) (int64, error) {
	return 1, nil
}

func (s *stubService) GetTicket(_ context.Context, _, _ int64, _ model.Role) (*model.Ticket, error) {
	if s.ticket == nil {
		return nil, repository.ErrTicketNotFound
	}
	return s.ticket, nil
}

func (s *stubService) ListTickets(_ context.Context, _ int64, _ model.Role, _ *model.TicketStatus) ([]model.Ticket, error) {
	return s.tickets, nil
}

func (s *stubService) UpdateTicket(_ context.Context, _, _ int64, _ service.TicketUpdate) (string, error) {
	return s.warning, s.updateErr
}

func (s *stubService) DeleteTicket(_ context.Context, _ int64) error { return s.deleteTickErr }

func (s *stubService) CreateInvoice(_ context.Context, _ int64, _ service.InvoiceInput) (int64, error) {
	return 1, s.createInvErr
}

func (s *stubService) GetInvoice(_ context.Context, _, _ int64, _ model.Role) (*model.Invoice, error) {
	return nil, repository.ErrInvoiceNotFound
}

func (s *stubService) ListInvoices(_ context.Context, _ int64, _ model.Role, _ string) ([]model.Invoice, *service.InvoiceSummary, error) {
	return nil, &service.InvoiceSummary{}, nil
}

func (s *stubService) UpdateInvoiceStatus(_ context.Context, _ int64, _ model.InvoiceStatus, _ *model.PaymentMethod) error {
	return nil
}

func (s *stubService) PayInvoice(_ context.Context, _, _ int64, _ model.PaymentMethod, _ string) (bool, error) {
	return s.payCaptured, s.payErr
}

func (s *stubService) StartConversation(_ context.Context, _, _ int64, _ *int64, _, _ string) (int64, error) {
	return 1, nil
}

func (s *stubService) ListConversations(_ context.Context, _ int64) ([]model.Conversation, error) {
	return nil, nil
}

func (s *stubService) GetConversation(_ context.Context, _, _ int64) (*model.Conversation, []model.Message, error) {
	return nil, nil, repository.ErrConversationNotFound
}

func (s *stubService) SendMessage(_ context.Context, _, _ int64, _ string, _ []service.AttachmentUpload) (int64, error) {
	return 1, nil
}

func (s *stubService) SetConversationArchived(_ context.Context, _, _ int64, _ bool) error {
	return nil
}

func (s *stubService) SaveDocument(_ context.Context, _ int64, _ service.DocumentInput) (int64, error) {
	return 1, nil
}

func (s *stubService) ListDocuments(_ context.Context, _ int64, _ model.Role) ([]model.Document, error) {
	return nil, nil
}

func (s *stubService) GetDocument(_ context.Context, _, _ int64, _ model.Role) (*model.Document, io.ReadCloser, error) {
	return nil, nil, repository.ErrDocumentNotFound
}

func (s *stubService) ShareDocument(_ context.Context, _ int64, share service.DocumentShare) error {
	s.shareUpd = &share
	return s.shareErr
}

func (s *stubService) DeleteDocument(_ context.Context, _ int64) error { return nil }

func newTestHandler(svc Service) (*Handler, *middleware.AuthMiddleware) {
	auth := middleware.NewAuthMiddleware("test-secret")
	return NewHandler(svc, zap.NewNop(), auth), auth
}

// authCookie создаёт валидную авторизационную cookie для запроса.
func authCookie(auth *middleware.AuthMiddleware, userID int64, role model.Role) *http.Cookie {
	rec := httptest.NewRecorder()
	auth.SetAuthCookie(rec, userID, role)
	return rec.Result().Cookies()[0]
}

func TestRegister(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		svc        *stubService
		wantStatus int
	}{
		{
			name:       "success",
			body:       `{"name":"Ann","email":"ann@example.com","password":"secret1","phone":"555-0101"}`,
			svc:        &stubService{registerID: 7},
			wantStatus: http.StatusOK,
		},
		{
			name:       "duplicate email",
			body:       `{"name":"Ann","email":"ann@example.com","password":"secret1"}`,
			svc:        &stubService{registerErr: repository.ErrUserExists},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "short password",
			body:       `{"name":"Ann","email":"ann@example.com","password":"123"}`,
			svc:        &stubService{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "invalid email",
			body:       `{"name":"Ann","email":"not-an-email","password":"secret1"}`,
			svc:        &stubService{},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(tt.svc)
			router := h.SetupRouter()

			req := httptest.NewRequest(http.MethodPost, "/api/user/register", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && len(rec.Result().Cookies()) == 0 {
				t.Errorf("successful register must set auth cookie")
			}
		})
	}
}

func TestLogin(t *testing.T) {
	t.Run("valid credentials set role cookie", func(t *testing.T) {
		svc := &stubService{authUser: &model.User{ID: 3, Name: "Tech", Role: model.RoleTechnician}}
		h, _ := newTestHandler(svc)
		router := h.SetupRouter()

		req := httptest.NewRequest(http.MethodPost, "/api/user/login",
			strings.NewReader(`{"email":"tech@example.com","password":"secret1"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("got status %d, want 200", rec.Code)
		}
		if len(rec.Result().Cookies()) == 0 {
			t.Errorf("login must set auth cookie")
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		svc := &stubService{authErr: service.ErrInvalidCredentials}
		h, _ := newTestHandler(svc)
		router := h.SetupRouter()

		req := httptest.NewRequest(http.MethodPost, "/api/user/login",
			strings.NewReader(`{"email":"tech@example.com","password":"wrong"}`))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("got status %d, want 401", rec.Code)
		}
	})
}

func TestGetTickets(t *testing.T) {
	t.Run("empty list", func(t *testing.T) {
		h, auth := newTestHandler(&stubService{})
		router := h.SetupRouter()

		req := httptest.NewRequest(http.MethodGet, "/api/services/", nil)
		req.AddCookie(authCookie(auth, 5, model.RoleClient))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNoContent {
			t.Errorf("got status %d, want 204", rec.Code)
		}
	})

	t.Run("invalid status filter", func(t *testing.T) {
		h, auth := newTestHandler(&stubService{})
		router := h.SetupRouter()

		req := httptest.NewRequest(http.MethodGet, "/api/services/?status=Exploded", nil)
		req.AddCookie(authCookie(auth, 5, model.RoleClient))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("got status %d, want 422", rec.Code)
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		h, _ := newTestHandler(&stubService{})
		router := h.SetupRouter()

		req := httptest.NewRequest(http.MethodGet, "/api/services/", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("got status %d, want 401", rec.Code)
		}
	})
}

func TestUpdateTicket(t *testing.T) {
	t.Run("client forbidden", func(t *testing.T) {
		h, auth := newTestHandler(&stubService{})
		router := h.SetupRouter()

		req := httptest.NewRequest(http.MethodPut, "/api/services/3",
			strings.NewReader(`{"status":"In Progress"}`))
		req.AddCookie(authCookie(auth, 5, model.RoleClient))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Errorf("got status %d, want 403", rec.Code)
		}
	})

	t.Run("invalid status", func(t *testing.T) {
		h, auth := newTestHandler(&stubService{})
		router := h.SetupRouter()

		req := httptest.NewRequest(http.MethodPut, "/api/services/3",
			strings.NewReader(`{"status":"Exploded"}`))
		req.AddCookie(authCookie(auth, 2, model.RoleTechnician))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("got status %d, want 422", rec.Code)
		}
	})

	t.Run("reconcile warning in response", func(t *testing.T) {
		h, auth := newTestHandler(&stubService{warning: service.WarnInvoiceSyncFailed})
		router := h.SetupRouter()

		req := httptest.NewRequest(http.MethodPut, "/api/services/3",
			strings.NewReader(`{"status":"In Progress"}`))
		req.AddCookie(authCookie(auth, 2, model.RoleTechnician))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("got status %d, want 200", rec.Code)
		}
		var resp updateTicketResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		if resp.Warning != service.WarnInvoiceSyncFailed {
			t.Errorf("got warning %q, want %q", resp.Warning, service.WarnInvoiceSyncFailed)
		}
	})

	t.Run("clean update has no warning", func(t *testing.T) {
		h, auth := newTestHandler(&stubService{})
		router := h.SetupRouter()

		req := httptest.NewRequest(http.MethodPut, "/api/services/3",
			strings.NewReader(`{"status":"In Progress"}`))
		req.AddCookie(authCookie(auth, 2, model.RoleTechnician))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("got status %d, want 200", rec.Code)
		}
		if bytes.Contains(rec.Body.Bytes(), []byte("warning")) {
			t.Errorf("clean update must omit warning: %s", rec.Body.String())
		}
	})
}

func TestDeleteTicket(t *testing.T) {
	t.Run("ticket with invoices", func(t *testing.T) {
		h, auth := newTestHandler(&stubService{deleteTickErr: repository.ErrTicketHasInvoices})
		router := h.SetupRouter()

		req := httptest.NewRequest(http.MethodDelete, "/api/services/3", nil)
		req.AddCookie(authCookie(auth, 2, model.RoleTechnician))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusConflict {
			t.Errorf("got status %d, want 409", rec.Code)
		}
	})
}

func TestPayInvoice(t *testing.T) {
	tests := []struct {
		name       string
		svc        *stubService
		body       string
		wantStatus int
	}{
		{
			name:       "card captured",
			svc:        &stubService{payCaptured: true},
			body:       `{"paymentMethod":"Credit Card","cardToken":"tok_visa"}`,
			wantStatus: http.StatusOK,
		},
		{
			name:       "manual method accepted",
			svc:        &stubService{},
			body:       `{"paymentMethod":"Cash"}`,
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "declined",
			svc:        &stubService{payErr: payment.ErrDeclined},
			body:       `{"paymentMethod":"Credit Card","cardToken":"tok_visa"}`,
			wantStatus: http.StatusPaymentRequired,
		},
		{
			name:       "already paid",
			svc:        &stubService{payErr: service.ErrInvoiceAlreadyPaid},
			body:       `{"paymentMethod":"Cash"}`,
			wantStatus: http.StatusConflict,
		},
		{
			name:       "foreign invoice",
			svc:        &stubService{payErr: service.ErrAccessDenied},
			body:       `{"paymentMethod":"Cash"}`,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "unknown method",
			svc:        &stubService{},
			body:       `{"paymentMethod":"Barter"}`,
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, auth := newTestHandler(tt.svc)
			router := h.SetupRouter()

			req := httptest.NewRequest(http.MethodPost, "/api/invoices/10/pay", strings.NewReader(tt.body))
			req.AddCookie(authCookie(auth, 5, model.RoleClient))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("got status %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestCreateInvoice(t *testing.T) {
	t.Run("negative total rejected", func(t *testing.T) {
		h, auth := newTestHandler(&stubService{createInvErr: repository.ErrInvoiceValidation})
		router := h.SetupRouter()

		req := httptest.NewRequest(http.MethodPost, "/api/services/3/invoice",
			strings.NewReader(`{"items":[{"description":"Labor","quantity":1,"unitPrice":10}],"discount":100}`))
		req.AddCookie(authCookie(auth, 2, model.RoleTechnician))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnprocessableEntity {
			t.Errorf("got status %d, want 422", rec.Code)
		}
	})

	t.Run("client forbidden", func(t *testing.T) {
		h, auth := newTestHandler(&stubService{})
		router := h.SetupRouter()

		req := httptest.NewRequest(http.MethodPost, "/api/services/3/invoice",
			strings.NewReader(`{"items":[]}`))
		req.AddCookie(authCookie(auth, 5, model.RoleClient))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Errorf("got status %d, want 403", rec.Code)
		}
	})
}

func TestUpdateProfile(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := &stubService{}
		h, auth := newTestHandler(svc)
		router := h.SetupRouter()

		req := httptest.NewRequest(http.MethodPut, "/api/user/profile",
			strings.NewReader(`{"name":"Anna","phone":"555-0202"}`))
		req.AddCookie(authCookie(auth, 5, model.RoleClient))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("got status %d, want 200", rec.Code)
		}
		if svc.profileUpd == nil || svc.profileUpd.Name != "Anna" || svc.profileUpd.Phone != "555-0202" {
			t.Errorf("profile update not passed: %+v", svc.profileUpd)
		}
	})

	t.Run("wrong current password", func(t *testing.T) {
		svc := &stubService{profileErr: service.ErrInvalidCredentials}
		h, auth := newTestHandler(svc)
		router := h.SetupRouter()

		req := httptest.NewRequest(http.MethodPut, "/api/user/profile",
			strings.NewReader(`{"currentPassword":"wrong","newPassword":"secret2"}`))
		req.AddCookie(authCookie(auth, 5, model.RoleClient))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("got status %d, want 401", rec.Code)
		}
	})

	t.Run("short new password", func(t *testing.T) {
		svc := &stubService{}
		h, auth := newTestHandler(svc)
		router := h.SetupRouter()

		req := httptest.NewRequest(http.MethodPut, "/api/user/profile",
			strings.NewReader(`{"currentPassword":"secret1","newPassword":"123"}`))
		req.AddCookie(authCookie(auth, 5, model.RoleClient))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusBadRequest {
			t.Errorf("got status %d, want 400", rec.Code)
		}
		if svc.profileUpd != nil {
			t.Errorf("invalid request must not reach service layer")
		}
	})
}

func TestShareDocument(t *testing.T) {
	t.Run("staff shares with client", func(t *testing.T) {
		svc := &stubService{}
		h, auth := newTestHandler(svc)
		router := h.SetupRouter()

		req := httptest.NewRequest(http.MethodPost, "/api/documents/4/share",
			strings.NewReader(`{"clientId":5,"isPublic":false}`))
		req.AddCookie(authCookie(auth, 2, model.RoleTechnician))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("got status %d, want 200", rec.Code)
		}
		if svc.shareUpd == nil || svc.shareUpd.ClientID == nil || *svc.shareUpd.ClientID != 5 {
			t.Errorf("client id not passed: %+v", svc.shareUpd)
		}
		if svc.shareUpd.IsPublic == nil || *svc.shareUpd.IsPublic {
			t.Errorf("visibility flag not passed: %+v", svc.shareUpd)
		}
	})

	t.Run("client forbidden", func(t *testing.T) {
		h, auth := newTestHandler(&stubService{})
		router := h.SetupRouter()

		req := httptest.NewRequest(http.MethodPost, "/api/documents/4/share",
			strings.NewReader(`{"isPublic":true}`))
		req.AddCookie(authCookie(auth, 5, model.RoleClient))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusForbidden {
			t.Errorf("got status %d, want 403", rec.Code)
		}
	})

	t.Run("unknown document", func(t *testing.T) {
		svc := &stubService{shareErr: repository.ErrDocumentNotFound}
		h, auth := newTestHandler(svc)
		router := h.SetupRouter()

		req := httptest.NewRequest(http.MethodPost, "/api/documents/404/share",
			strings.NewReader(`{"isPublic":true}`))
		req.AddCookie(authCookie(auth, 2, model.RoleTechnician))
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code != http.StatusNotFound {
			t.Errorf("got status %d, want 404", rec.Code)
		}
	})
}

func TestErrorsIsMapping(t *testing.T) {
	// Обёрнутые ошибки тоже должны попадать в правильный статус.
	wrapped := &stubService{payErr: errors.Join(service.ErrInvoiceAlreadyPaid)}
	h, auth := newTestHandler(wrapped)
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/invoices/10/pay",
		strings.NewReader(`{"paymentMethod":"Cash"}`))
	req.AddCookie(authCookie(auth, 5, model.RoleClient))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Errorf("got status %d, want 409", rec.Code)
	}
}
