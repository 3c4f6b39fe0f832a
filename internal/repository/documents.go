package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/westla/repairdesk-system/internal/model"
)

const documentColumns = `id, title, description, client_id, ticket_id, uploader_id,
	filename, path, mimetype, size, is_public, created_at`

func scanDocument(row pgx.Row) (*model.Document, error) {
	var d model.Document
	err := row.Scan(&d.ID, &d.Title, &d.Description, &d.ClientID, &d.TicketID, &d.UploaderID,
		&d.Filename, &d.Path, &d.MIMEType, &d.Size, &d.IsPublic, &d.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateDocument сохраняет метаданные загруженного документа и возвращает его идентификатор.
func (r *PostgresRepository) CreateDocument(ctx context.Context, d *model.Document) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO documents
		     (title, description, client_id, ticket_id, uploader_id, filename, path, mimetype, size, is_public)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING id`,
		d.Title, d.Description, d.ClientID, d.TicketID, d.UploaderID,
		d.Filename, d.Path, d.MIMEType, d.Size, d.IsPublic,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create document: %w", err)
	}
	return id, nil
}

// GetDocumentByID возвращает документ по идентификатору.
func (r *PostgresRepository) GetDocumentByID(ctx context.Context, id int64) (*model.Document, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)

	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDocumentNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}

	return d, nil
}

// ListDocuments возвращает документы, новые первыми. Ненулевой clientID
// ограничивает выборку документами клиента и публичными документами.
func (r *PostgresRepository) ListDocuments(ctx context.Context, clientID *int64) ([]model.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents`
	args := []any{}

	if clientID != nil {
		args = append(args, *clientID)
		query += " WHERE client_id = $1 OR is_public"
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select documents: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return docs, nil
}

// DeleteDocument удаляет метаданные документа.
func (r *PostgresRepository) DeleteDocument(ctx context.Context, id int64) error {
	cmdTag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

// UpdateDocumentSharing изменяет привязку документа к клиенту и его видимость.
func (r *PostgresRepository) UpdateDocumentSharing(ctx context.Context, id int64, clientID *int64, isPublic bool) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE documents SET client_id = $2, is_public = $3 WHERE id = $1`,
		id, clientID, isPublic,
	)
	if err != nil {
		return fmt.Errorf("update document sharing: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrDocumentNotFound
	}
	return nil
}
