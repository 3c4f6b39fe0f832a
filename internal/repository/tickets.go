package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/westla/repairdesk-system/internal/model"
)

// CreateTicket сохраняет новую заявку на ремонт и возвращает её идентификатор.
func (r *PostgresRepository) CreateTicket(ctx context.Context, t *model.Ticket) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO tickets
		     (client_id, device_type, brand, model, serial_number, issue_description, issue_types, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		t.ClientID, string(t.DeviceType), t.Brand, t.Model, t.SerialNumber,
		t.IssueDescription, t.IssueTypes, string(t.Status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create ticket: %w", err)
	}
	return id, nil
}

const ticketColumns = `id, client_id, technician_id, device_type, brand, model, serial_number,
	issue_description, issue_types, status, estimated_done, diagnostic_fee, estimated_cost,
	created_at, updated_at`

func scanTicket(row pgx.Row) (*model.Ticket, error) {
	var t model.Ticket
	var deviceType, status string
	err := row.Scan(&t.ID, &t.ClientID, &t.TechnicianID, &deviceType, &t.Brand, &t.Model,
		&t.SerialNumber, &t.IssueDescription, &t.IssueTypes, &status, &t.EstimatedDone,
		&t.DiagnosticFeeCents, &t.EstimatedCostCents, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.DeviceType = model.DeviceType(deviceType)
	t.Status = model.TicketStatus(status)
	return &t, nil
}

// GetTicketByID возвращает заявку вместе с заметками.
func (r *PostgresRepository) GetTicketByID(ctx context.Context, id int64) (*model.Ticket, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id)

	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTicketNotFound
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, ticket_id, author_id, text, is_public, created_at
		 FROM ticket_notes
		 WHERE ticket_id = $1
		 ORDER BY created_at`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("select ticket notes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var n model.TicketNote
		if err := rows.Scan(&n.ID, &n.TicketID, &n.AuthorID, &n.Text, &n.IsPublic, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket note: %w", err)
		}
		t.Notes = append(t.Notes, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return t, nil
}

// ListTickets возвращает заявки, новые первыми. Ненулевой clientID ограничивает
// выборку заявками одного клиента, ненулевой status — заявками в одном статусе.
func (r *PostgresRepository) ListTickets(ctx context.Context, clientID *int64, status *model.TicketStatus) ([]model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE 1=1`
	args := []any{}

	if clientID != nil {
		args = append(args, *clientID)
		query += fmt.Sprintf(" AND client_id = $%d", len(args))
	}
	if status != nil {
		args = append(args, string(*status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select tickets: %w", err)
	}
	defer rows.Close()

	var tickets []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, *t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return tickets, nil
}

// UpdateTicket сохраняет изменяемые поля заявки и помечает её обновлённой.
func (r *PostgresRepository) UpdateTicket(ctx context.Context, t *model.Ticket) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE tickets
		 SET technician_id = $2, status = $3, estimated_done = $4, estimated_cost = $5, updated_at = now()
		 WHERE id = $1`,
		t.ID, t.TechnicianID, string(t.Status), t.EstimatedDone, t.EstimatedCostCents,
	)
	if err != nil {
		return fmt.Errorf("update ticket: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrTicketNotFound
	}
	return nil
}

// AddTicketNote добавляет заметку к заявке.
func (r *PostgresRepository) AddTicketNote(ctx context.Context, n *model.TicketNote) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO ticket_notes (ticket_id, author_id, text, is_public) VALUES ($1, $2, $3, $4)`,
		n.TicketID, n.AuthorID, n.Text, n.IsPublic,
	)
	if err != nil {
		return fmt.Errorf("add ticket note: %w", err)
	}
	return nil
}

// DeleteTicket удаляет заявку. Заявка, на которую ссылаются счета,
// не удаляется — сначала должны быть удалены счета.
func (r *PostgresRepository) DeleteTicket(ctx context.Context, id int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var invoiceCount int64
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM invoices WHERE ticket_id = $1`, id,
	).Scan(&invoiceCount)
	if err != nil {
		return fmt.Errorf("count invoices: %w", err)
	}

	if invoiceCount > 0 {
		return ErrTicketHasInvoices
	}

	cmdTag, err := tx.Exec(ctx, `DELETE FROM tickets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete ticket: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrTicketNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// CountTicketsByStatus возвращает количество заявок в каждом статусе.
func (r *PostgresRepository) CountTicketsByStatus(ctx context.Context) (map[model.TicketStatus]int64, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count tickets by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.TicketStatus]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[model.TicketStatus(status)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return counts, nil
}
