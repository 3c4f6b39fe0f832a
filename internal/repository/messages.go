package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/westla/repairdesk-system/internal/model"
)

// CreateConversation создаёт переписку с указанными участниками и первым
// сообщением в одной транзакции. Возвращает идентификатор переписки.
func (r *PostgresRepository) CreateConversation(ctx context.Context, c *model.Conversation, firstMessage *model.Message) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var convID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO conversations (subject, ticket_id) VALUES ($1, $2) RETURNING id`,
		c.Subject, c.TicketID,
	).Scan(&convID)
	if err != nil {
		return 0, fmt.Errorf("insert conversation: %w", err)
	}

	for _, userID := range c.Participants {
		_, err = tx.Exec(ctx,
			`INSERT INTO conversation_participants (conversation_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			convID, userID,
		)
		if err != nil {
			return 0, fmt.Errorf("insert participant: %w", err)
		}
	}

	var msgID int64
	err = tx.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content) VALUES ($1, $2, $3) RETURNING id`,
		convID, firstMessage.SenderID, firstMessage.Content,
	).Scan(&msgID)
	if err != nil {
		return 0, fmt.Errorf("insert first message: %w", err)
	}

	_, err = tx.Exec(ctx,
		`UPDATE conversations SET last_message_id = $2, updated_at = now() WHERE id = $1`,
		convID, msgID,
	)
	if err != nil {
		return 0, fmt.Errorf("set last message: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return convID, nil
}

// GetConversation возвращает переписку, если пользователь является её участником.
func (r *PostgresRepository) GetConversation(ctx context.Context, id, userID int64) (*model.Conversation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT c.id, c.subject, c.ticket_id, c.is_archived, c.created_at, c.updated_at,
		        (SELECT array_agg(user_id) FROM conversation_participants WHERE conversation_id = c.id)
		 FROM conversations c
		 JOIN conversation_participants p ON p.conversation_id = c.id AND p.user_id = $2
		 WHERE c.id = $1`,
		id, userID,
	)

	var c model.Conversation
	err := row.Scan(&c.ID, &c.Subject, &c.TicketID, &c.IsArchived, &c.CreatedAt, &c.UpdatedAt, &c.Participants)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	return &c, nil
}

// ListConversations возвращает переписки пользователя, отсортированные по
// времени последней активности. Последнее сообщение каждой переписки
// загружается вместе со списком прочитавших его участников.
func (r *PostgresRepository) ListConversations(ctx context.Context, userID int64) ([]model.Conversation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.subject, c.ticket_id, c.is_archived, c.created_at, c.updated_at,
		        (SELECT array_agg(user_id) FROM conversation_participants WHERE conversation_id = c.id),
		        m.id, m.sender_id, m.content, m.created_at,
		        (SELECT array_agg(user_id) FROM message_reads WHERE message_id = m.id)
		 FROM conversations c
		 JOIN conversation_participants p ON p.conversation_id = c.id AND p.user_id = $1
		 LEFT JOIN messages m ON m.id = c.last_message_id
		 ORDER BY c.updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("select conversations: %w", err)
	}
	defer rows.Close()

	var conversations []model.Conversation
	for rows.Next() {
		var c model.Conversation
		var m model.Message
		var lastID, lastSender *int64
		var lastContent *string
		var lastCreated *time.Time

		err := rows.Scan(&c.ID, &c.Subject, &c.TicketID, &c.IsArchived, &c.CreatedAt, &c.UpdatedAt,
			&c.Participants, &lastID, &lastSender, &lastContent, &lastCreated, &m.ReadBy)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}

		if lastID != nil {
			m.ID = *lastID
			m.ConversationID = c.ID
			m.SenderID = *lastSender
			m.Content = *lastContent
			if lastCreated != nil {
				m.CreatedAt = *lastCreated
			}
			c.LastMessage = &m
		}

		conversations = append(conversations, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return conversations, nil
}

// AddMessage сохраняет сообщение с вложениями и обновляет последнее сообщение
// переписки в одной транзакции. Возвращает идентификатор сообщения.
func (r *PostgresRepository) AddMessage(ctx context.Context, m *model.Message) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO messages (conversation_id, sender_id, content) VALUES ($1, $2, $3) RETURNING id`,
		m.ConversationID, m.SenderID, m.Content,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}

	for _, a := range m.Attachments {
		_, err = tx.Exec(ctx,
			`INSERT INTO message_attachments (message_id, filename, path, mimetype, size) VALUES ($1, $2, $3, $4, $5)`,
			id, a.Filename, a.Path, a.MIMEType, a.Size,
		)
		if err != nil {
			return 0, fmt.Errorf("insert attachment: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`UPDATE conversations SET last_message_id = $2, updated_at = now() WHERE id = $1`,
		m.ConversationID, id,
	)
	if err != nil {
		return 0, fmt.Errorf("update conversation: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}

	return id, nil
}

// ListMessages возвращает сообщения переписки в хронологическом порядке
// вместе с вложениями и отметками о прочтении.
func (r *PostgresRepository) ListMessages(ctx context.Context, conversationID int64) ([]model.Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT m.id, m.conversation_id, m.sender_id, m.content, m.created_at,
		        (SELECT array_agg(user_id) FROM message_reads WHERE message_id = m.id)
		 FROM messages m
		 WHERE m.conversation_id = $1
		 ORDER BY m.created_at`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	index := make(map[int64]int)
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.CreatedAt, &m.ReadBy); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		index[m.ID] = len(messages)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	attRows, err := r.pool.Query(ctx,
		`SELECT a.message_id, a.filename, a.path, a.mimetype, a.size
		 FROM message_attachments a
		 JOIN messages m ON m.id = a.message_id
		 WHERE m.conversation_id = $1
		 ORDER BY a.id`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("select attachments: %w", err)
	}
	defer attRows.Close()

	for attRows.Next() {
		var msgID int64
		var a model.Attachment
		if err := attRows.Scan(&msgID, &a.Filename, &a.Path, &a.MIMEType, &a.Size); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		if i, ok := index[msgID]; ok {
			messages[i].Attachments = append(messages[i].Attachments, a)
		}
	}
	if err := attRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return messages, nil
}

// MarkMessagesRead помечает прочитанными все сообщения переписки, отправленные
// другими участниками. Повторный вызов не создаёт дубликатов отметок.
func (r *PostgresRepository) MarkMessagesRead(ctx context.Context, conversationID, userID int64) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO message_reads (message_id, user_id)
		 SELECT m.id, $2 FROM messages m
		 WHERE m.conversation_id = $1 AND m.sender_id <> $2
		 ON CONFLICT DO NOTHING`,
		conversationID, userID,
	)
	if err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}
	return nil
}

// SetConversationArchived помечает переписку архивной или возвращает её из архива.
func (r *PostgresRepository) SetConversationArchived(ctx context.Context, id, userID int64, archived bool) error {
	cmdTag, err := r.pool.Exec(ctx,
		`UPDATE conversations c SET is_archived = $3
		 FROM conversation_participants p
		 WHERE c.id = $1 AND p.conversation_id = c.id AND p.user_id = $2`,
		id, userID, archived,
	)
	if err != nil {
		return fmt.Errorf("set conversation archived: %w", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// CountUnreadConversations возвращает число переписок, последнее сообщение
// которых отправлено другим участником и не прочитано пользователем.
func (r *PostgresRepository) CountUnreadConversations(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*)
		 FROM conversations c
		 JOIN conversation_participants p ON p.conversation_id = c.id AND p.user_id = $1
		 JOIN messages m ON m.id = c.last_message_id
		 WHERE m.sender_id <> $1
		   AND NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = $1)`,
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread conversations: %w", err)
	}
	return count, nil
}
