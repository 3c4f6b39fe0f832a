// Package model содержит доменные сущности сервиса учёта ремонтов.
package model

import "time"

// Role описывает роль пользователя в системе.
type Role string

const (
	RoleClient     Role = "client"
	RoleTechnician Role = "technician"
	RoleAdmin      Role = "admin"
)

// IsStaff сообщает, имеет ли роль права технического персонала.
func (r Role) IsStaff() bool {
	return r == RoleTechnician || r == RoleAdmin
}

// User представляет зарегистрированного пользователя: клиента, техника или администратора.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash []byte
	Role         Role
	Phone        string
	CreatedAt    time.Time
}

// TicketStatus описывает статус заявки на ремонт.
type TicketStatus string

const (
	TicketStatusNew              TicketStatus = "New"
	TicketStatusDiagnosing       TicketStatus = "Diagnosing"
	TicketStatusAwaitingApproval TicketStatus = "Awaiting Approval"
	TicketStatusInProgress       TicketStatus = "In Progress"
	TicketStatusReadyForPickup   TicketStatus = "Ready for Pickup"
	TicketStatusCompleted        TicketStatus = "Completed"
	TicketStatusCancelled        TicketStatus = "Cancelled"
)

// ValidTicketStatus проверяет, что строка является допустимым статусом заявки.
func ValidTicketStatus(s string) bool {
	switch TicketStatus(s) {
	case TicketStatusNew, TicketStatusDiagnosing, TicketStatusAwaitingApproval,
		TicketStatusInProgress, TicketStatusReadyForPickup,
		TicketStatusCompleted, TicketStatusCancelled:
		return true
	}
	return false
}

// DeviceType описывает тип устройства, принятого в ремонт.
type DeviceType string

const (
	DeviceLaptop  DeviceType = "Laptop"
	DeviceDesktop DeviceType = "Desktop"
	DevicePhone   DeviceType = "Phone"
	DeviceTablet  DeviceType = "Tablet"
	DeviceOther   DeviceType = "Other"
)

// ValidDeviceType проверяет, что строка является допустимым типом устройства.
func ValidDeviceType(s string) bool {
	switch DeviceType(s) {
	case DeviceLaptop, DeviceDesktop, DevicePhone, DeviceTablet, DeviceOther:
		return true
	}
	return false
}

// TicketNote представляет заметку на заявке.
type TicketNote struct {
	ID        int64
	TicketID  int64
	Text      string
	AuthorID  int64
	IsPublic  bool
	CreatedAt time.Time
}

// Ticket представляет заявку на ремонт устройства.
// Денежные поля хранятся в центах; EstimatedCostCents отсутствует,
// пока техник не оценил стоимость работ.
type Ticket struct {
	ID                 int64
	ClientID           int64
	TechnicianID       *int64
	DeviceType         DeviceType
	Brand              string
	Model              string
	SerialNumber       string
	IssueDescription   string
	IssueTypes         []string
	Status             TicketStatus
	EstimatedDone      *time.Time
	DiagnosticFeeCents int64
	EstimatedCostCents *int64
	Notes              []TicketNote
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// InvoiceStatus описывает статус счёта.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid    InvoiceStatus = "Unpaid"
	InvoiceStatusPaid      InvoiceStatus = "Paid"
	InvoiceStatusOverdue   InvoiceStatus = "Overdue"
	InvoiceStatusCancelled InvoiceStatus = "Cancelled"
)

// ValidInvoiceStatus проверяет, что строка является допустимым статусом счёта.
func ValidInvoiceStatus(s string) bool {
	switch InvoiceStatus(s) {
	case InvoiceStatusUnpaid, InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled:
		return true
	}
	return false
}

// PaymentMethod описывает способ оплаты счёта.
type PaymentMethod string

const (
	PaymentCreditCard   PaymentMethod = "Credit Card"
	PaymentDebitCard    PaymentMethod = "Debit Card"
	PaymentCash         PaymentMethod = "Cash"
	PaymentCheck        PaymentMethod = "Check"
	PaymentBankTransfer PaymentMethod = "Bank Transfer"
	PaymentPayPal       PaymentMethod = "PayPal"
	PaymentOther        PaymentMethod = "Other"
)

// ValidPaymentMethod проверяет, что строка является допустимым способом оплаты.
func ValidPaymentMethod(s string) bool {
	switch PaymentMethod(s) {
	case PaymentCreditCard, PaymentDebitCard, PaymentCash, PaymentCheck,
		PaymentBankTransfer, PaymentPayPal, PaymentOther:
		return true
	}
	return false
}

// LineItem представляет одну позицию счёта. Позиция, созданная синхронизацией
// с заявкой, несёт ссылку на заявку в TicketRef; позиции, добавленные вручную,
// ссылки не имеют.
type LineItem struct {
	Description    string
	Quantity       int
	UnitPriceCents int64
	AmountCents    int64
	TicketRef      *int64
}

// Invoice представляет счёт за ремонт. Инварианты: SubtotalCents равен сумме
// AmountCents всех позиций, TotalCents равен SubtotalCents - DiscountCents.
type Invoice struct {
	ID            int64
	Number        string
	TicketID      *int64
	ClientID      int64
	Items         []LineItem
	SubtotalCents int64
	DiscountCents int64
	TotalCents    int64
	Status        InvoiceStatus
	Notes         string
	IssueDate     time.Time
	DueDate       time.Time
	PaymentDate   *time.Time
	PaymentMethod *PaymentMethod
	PaymentRef    string
	CreatedAt     time.Time
}

// Attachment описывает файл, приложенный к сообщению.
type Attachment struct {
	Filename string
	Path     string
	MIMEType string
	Size     int64
}

// Message представляет сообщение в переписке.
type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	Content        string
	Attachments    []Attachment
	ReadBy         []int64
	CreatedAt      time.Time
}

// Conversation представляет переписку между клиентом и техником,
// опционально привязанную к заявке.
type Conversation struct {
	ID           int64
	Subject      string
	TicketID     *int64
	Participants []int64
	LastMessage  *Message
	IsArchived   bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Document представляет загруженный документ: квитанцию, отчёт о диагностике
// или публичную инструкцию.
type Document struct {
	ID          int64
	Title       string
	Description string
	ClientID    *int64
	TicketID    *int64
	UploaderID  int64
	Filename    string
	Path        string
	MIMEType    string
	Size        int64
	IsPublic    bool
	CreatedAt   time.Time
}
