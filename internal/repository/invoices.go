package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/westla/repairdesk-system/internal/billing"
	"github.com/westla/repairdesk-system/internal/model"
)

// ErrInvoiceValidation возвращается, если состояние счёта нарушает ограничения
// хранилища (например, отрицательный итог).
var ErrInvoiceValidation = errors.New("invoice validation failed")

const invoiceColumns = `id, number, ticket_id, client_id, subtotal, discount, total, status,
	notes, issue_date, due_date, payment_date, payment_method, payment_reference, created_at`

func scanInvoice(row pgx.Row) (*model.Invoice, error) {
	var inv model.Invoice
	var status string
	var method *string
	err := row.Scan(&inv.ID, &inv.Number, &inv.TicketID, &inv.ClientID, &inv.SubtotalCents,
		&inv.DiscountCents, &inv.TotalCents, &status, &inv.Notes, &inv.IssueDate, &inv.DueDate,
		&inv.PaymentDate, &method, &inv.PaymentRef, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	inv.Status = model.InvoiceStatus(status)
	if method != nil {
		m := model.PaymentMethod(*method)
		inv.PaymentMethod = &m
	}
	// Просрочка вычисляется при чтении: фоновая запись статуса может
	// отставать от фактического истечения срока.
	billing.ApplyOverdue(&inv, time.Now())
	return &inv, nil
}

// NextInvoiceSeq возвращает порядковый номер для следующего счёта.
func (r *PostgresRepository) NextInvoiceSeq(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count invoices: %w", err)
	}
	return count + 1, nil
}

// CreateInvoice сохраняет счёт вместе с позициями в одной транзакции
// и возвращает идентификатор счёта.
func (r *PostgresRepository) CreateInvoice(ctx context.Context, inv *model.Invoice) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO invoices
		     (number, ticket_id, client_id, subtotal, discount, total, status, notes, issue_date, due_date)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		inv.Number, inv.TicketID, inv.ClientID, inv.SubtotalCents, inv.DiscountCents,
		inv.TotalCents, string(inv.Status), inv.Notes, inv.IssueDate, inv.DueDate,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
			return 0, fmt.Errorf("%w: %s", ErrInvoiceValidation, pgErr.ConstraintName)
		}
		return 0, fmt.Errorf("insert invoice: %w", err)
	}

	for i, it := range inv.Items {
		_, err = tx.Exec(ctx,
			`INSERT INTO invoice_items (invoice_id, position, description, quantity, unit_price, amount, ticket_ref)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, i+1, it.Description, it.Quantity, it.UnitPriceCents, it.AmountCents, it.TicketRef,
		)
		if err != nil {
			return 0, fmt.Errorf("insert invoice item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// GetInvoiceByID возвращает счёт вместе с позициями в порядке их добавления.
func (r *PostgresRepository) GetInvoiceByID(ctx context.Context, id int64) (*model.Invoice, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)

	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("get invoice: %w", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT description, quantity, unit_price, amount, ticket_ref
		 FROM invoice_items
		 WHERE invoice_id = $1
		 ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("select invoice items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var it model.LineItem
		if err := rows.Scan(&it.Description, &it.Quantity, &it.UnitPriceCents, &it.AmountCents, &it.TicketRef); err != nil {
			return nil, fmt.Errorf("scan invoice item: %w", err)
		}
		inv.Items = append(inv.Items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return inv, nil
}

// ListInvoices возвращает счета без позиций, новые первыми. Ненулевой clientID
// ограничивает выборку счетами одного клиента.
func (r *PostgresRepository) ListInvoices(ctx context.Context, clientID *int64) ([]model.Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices`
	args := []any{}

	if clientID != nil {
		args = append(args, *clientID)
		query += " WHERE client_id = $1"
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select invoices: %w", err)
	}
	defer rows.Close()

	var invoices []model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return invoices, nil
}

// ListRecentInvoices возвращает не более limit последних счетов.
func (r *PostgresRepository) ListRecentInvoices(ctx context.Context, limit int) ([]model.Invoice, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+invoiceColumns+` FROM invoices ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("select recent invoices: %w", err)
	}
	defer rows.Close()

	var invoices []model.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invoice: %w", err)
		}
		invoices = append(invoices, *inv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return invoices, nil
}

// UpdateInvoiceStatus изменяет статус счёта. Для статуса Paid дополнительно
// фиксируются дата, способ и ссылка платежа.
func (r *PostgresRepository) UpdateInvoiceStatus(ctx context.Context, id int64, status model.InvoiceStatus, method *model.PaymentMethod, reference string) error {
	var cmdTag pgconn.CommandTag
	var err error

	if status == model.InvoiceStatusPaid {
		var m *string
		if method != nil {
			s := string(*method)
			m = &s
		}
		cmdTag, err = r.pool.Exec(ctx,
			`UPDATE invoices
			 SET status = $2, payment_date = now(), payment_method = $3, payment_reference = $4
			 WHERE id = $1`,
			id, string(status), m, reference,
		)
	} else {
		cmdTag, err = r.pool.Exec(ctx,
			`UPDATE invoices SET status = $2 WHERE id = $1`,
			id, string(status),
		)
	}
	if err != nil {
		return fmt.Errorf("update invoice status: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}

	return nil
}

// ReconcileInvoice синхронизирует счёт, ссылающийся на заявку, с её текущим
// описанием и оценочной стоимостью. Если такого счёта нет, ничего не делает.
// Чтение и запись выполняются в одной транзакции под блокировкой строки счёта,
// чтобы параллельные обновления одной заявки не теряли изменения друг друга.
func (r *PostgresRepository) ReconcileInvoice(ctx context.Context, ticket *model.Ticket) error {
	return r.withRetry(ctx, func() error {
		return r.reconcileInvoice(ctx, ticket)
	})
}

func (r *PostgresRepository) reconcileInvoice(ctx context.Context, ticket *model.Ticket) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Счетов на одну заявку ожидается не более одного; при нарушении этого
	// внешнего инварианта синхронизируется первый найденный.
	inv := &model.Invoice{}
	err = tx.QueryRow(ctx,
		`SELECT id, discount FROM invoices WHERE ticket_id = $1 ORDER BY id LIMIT 1 FOR UPDATE`,
		ticket.ID,
	).Scan(&inv.ID, &inv.DiscountCents)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("select invoice for ticket: %w", err)
	}

	rows, err := tx.Query(ctx,
		`SELECT id, description, quantity, unit_price, amount, ticket_ref
		 FROM invoice_items
		 WHERE invoice_id = $1
		 ORDER BY position`,
		inv.ID,
	)
	if err != nil {
		return fmt.Errorf("select invoice items: %w", err)
	}

	var itemIDs []int64
	for rows.Next() {
		var itemID int64
		var it model.LineItem
		if err := rows.Scan(&itemID, &it.Description, &it.Quantity, &it.UnitPriceCents, &it.AmountCents, &it.TicketRef); err != nil {
			rows.Close()
			return fmt.Errorf("scan invoice item: %w", err)
		}
		itemIDs = append(itemIDs, itemID)
		inv.Items = append(inv.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("rows error: %w", err)
	}

	idx, created, err := billing.Reconcile(inv, ticket)
	if err != nil {
		if errors.Is(err, billing.ErrNegativeTotal) {
			return fmt.Errorf("%w: %s", ErrInvoiceValidation, err)
		}
		return err
	}

	item := inv.Items[idx]
	if created {
		_, err = tx.Exec(ctx,
			`INSERT INTO invoice_items (invoice_id, position, description, quantity, unit_price, amount, ticket_ref)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			inv.ID, idx+1, item.Description, item.Quantity, item.UnitPriceCents, item.AmountCents, item.TicketRef,
		)
		if err != nil {
			return fmt.Errorf("insert reconciled item: %w", err)
		}
	} else {
		_, err = tx.Exec(ctx,
			`UPDATE invoice_items SET description = $2, unit_price = $3, amount = $4 WHERE id = $1`,
			itemIDs[idx], item.Description, item.UnitPriceCents, item.AmountCents,
		)
		if err != nil {
			return fmt.Errorf("update reconciled item: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE invoices SET subtotal = $2, total = $3 WHERE id = $1`,
		inv.ID, inv.SubtotalCents, inv.TotalCents,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.CheckViolation {
			return fmt.Errorf("%w: %s", ErrInvoiceValidation, pgErr.ConstraintName)
		}
		return fmt.Errorf("update invoice totals: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// MarkOverdueInvoices переводит неоплаченные счета с истёкшим сроком оплаты
// в статус Overdue и возвращает число затронутых счетов.
func (r *PostgresRepository) MarkOverdueInvoices(ctx context.Context) (int64, error) {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE invoices SET status = $1 WHERE status = $2 AND due_date < now()`,
		string(model.InvoiceStatusOverdue), string(model.InvoiceStatusUnpaid),
	)
	if err != nil {
		return 0, fmt.Errorf("mark overdue invoices: %w", err)
	}
	return cmdTag.RowsAffected(), nil
}
