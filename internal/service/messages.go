package service

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"

	"github.com/westla/repairdesk-system/internal/model"
)

// AttachmentUpload — файл, приложенный к отправляемому сообщению.
type AttachmentUpload struct {
	Filename string
	Data     io.Reader
}

// StartConversation создаёт переписку с первым сообщением.
func (s *Service) StartConversation(ctx context.Context, senderID, recipientID int64, ticketID *int64, subject, content string) (int64, error) {
	conv := &model.Conversation{
		Subject:      subject,
		TicketID:     ticketID,
		Participants: []int64{senderID, recipientID},
	}
	first := &model.Message{SenderID: senderID, Content: content}
	id, err := s.repo.CreateConversation(ctx, conv, first)
	if err != nil {
		return 0, fmt.Errorf("create conversation: %w", err)
	}
	return id, nil
}

// ListConversations возвращает переписки пользователя.
func (s *Service) ListConversations(ctx context.Context, userID int64) ([]model.Conversation, error) {
	return s.repo.ListConversations(ctx, userID)
}

// GetConversation возвращает переписку с сообщениями и помечает
// входящие сообщения прочитанными.
func (s *Service) GetConversation(ctx context.Context, id, userID int64) (*model.Conversation, []model.Message, error) {
	conv, err := s.repo.GetConversation(ctx, id, userID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.repo.ListMessages(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("list messages: %w", err)
	}
	if err := s.repo.MarkMessagesRead(ctx, id, userID); err != nil {
		return nil, nil, fmt.Errorf("mark read: %w", err)
	}
	return conv, messages, nil
}

// SendMessage добавляет сообщение в переписку. Вложения сохраняются
// на диск до записи сообщения.
func (s *Service) SendMessage(ctx context.Context, userID, conversationID int64, content string, uploads []AttachmentUpload) (int64, error) {
	if _, err := s.repo.GetConversation(ctx, conversationID, userID); err != nil {
		return 0, err
	}

	attachments := make([]model.Attachment, 0, len(uploads))
	for _, up := range uploads {
		saved, err := s.files.Save(up.Filename, up.Data)
		if err != nil {
			return 0, fmt.Errorf("save attachment: %w", err)
		}
		attachments = append(attachments, model.Attachment{
			Filename: saved.Filename,
			Path:     saved.Path,
			MIMEType: mime.TypeByExtension(filepath.Ext(saved.Filename)),
			Size:     saved.Size,
		})
	}

	msg := &model.Message{
		ConversationID: conversationID,
		SenderID:       userID,
		Content:        content,
		Attachments:    attachments,
	}
	id, err := s.repo.AddMessage(ctx, msg)
	if err != nil {
		return 0, fmt.Errorf("add message: %w", err)
	}
	return id, nil
}

// SetConversationArchived отмечает переписку как архивную (или наоборот).
func (s *Service) SetConversationArchived(ctx context.Context, id, userID int64, archived bool) error {
	return s.repo.SetConversationArchived(ctx, id, userID, archived)
}

// UnreadCount возвращает число переписок с непрочитанными сообщениями.
func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	return s.repo.CountUnreadConversations(ctx, userID)
}
