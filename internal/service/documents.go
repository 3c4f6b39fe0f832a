package service

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path/filepath"

	"github.com/westla/repairdesk-system/internal/model"
)

// DocumentInput — данные для загрузки документа сотрудником.
type DocumentInput struct {
	Title       string
	Description string
	ClientID    *int64
	TicketID    *int64
	IsPublic    bool
	Filename    string
	Data        io.Reader
}

// SaveDocument сохраняет файл на диск и регистрирует документ.
func (s *Service) SaveDocument(ctx context.Context, uploaderID int64, in DocumentInput) (int64, error) {
	saved, err := s.files.Save(in.Filename, in.Data)
	if err != nil {
		return 0, fmt.Errorf("save file: %w", err)
	}

	doc := &model.Document{
		Title:       in.Title,
		Description: in.Description,
		ClientID:    in.ClientID,
		TicketID:    in.TicketID,
		UploaderID:  uploaderID,
		Filename:    saved.Filename,
		Path:        saved.Path,
		MIMEType:    mime.TypeByExtension(filepath.Ext(saved.Filename)),
		Size:        saved.Size,
		IsPublic:    in.IsPublic,
	}
	id, err := s.repo.CreateDocument(ctx, doc)
	if err != nil {
		s.files.Remove(saved.Path)
		return 0, fmt.Errorf("create document: %w", err)
	}
	return id, nil
}

// ListDocuments возвращает документы: клиенту — свои и публичные,
// сотрудникам — все.
func (s *Service) ListDocuments(ctx context.Context, userID int64, role model.Role) ([]model.Document, error) {
	var clientID *int64
	if !role.IsStaff() {
		clientID = &userID
	}
	return s.repo.ListDocuments(ctx, clientID)
}

// GetDocument возвращает документ и открытый файл. Клиент получает
// только свои или публичные документы. Закрыть файл должен вызывающий код.
func (s *Service) GetDocument(ctx context.Context, id, userID int64, role model.Role) (*model.Document, io.ReadCloser, error) {
	doc, err := s.repo.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !role.IsStaff() && !doc.IsPublic && (doc.ClientID == nil || *doc.ClientID != userID) {
		return nil, nil, ErrAccessDenied
	}
	f, err := s.files.Open(doc.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open file: %w", err)
	}
	return doc, f, nil
}

// DocumentShare — изменение доступа к документу. Нулевые указатели
// означают «поле не меняется».
type DocumentShare struct {
	ClientID *int64
	IsPublic *bool
}

// ShareDocument меняет привязку документа к клиенту и его публичность.
func (s *Service) ShareDocument(ctx context.Context, id int64, share DocumentShare) error {
	doc, err := s.repo.GetDocumentByID(ctx, id)
	if err != nil {
		return err
	}

	if share.ClientID != nil {
		// Нулевой идентификатор снимает привязку к клиенту.
		if *share.ClientID == 0 {
			doc.ClientID = nil
		} else {
			doc.ClientID = share.ClientID
		}
	}
	if share.IsPublic != nil {
		doc.IsPublic = *share.IsPublic
	}

	return s.repo.UpdateDocumentSharing(ctx, id, doc.ClientID, doc.IsPublic)
}

// DeleteDocument удаляет документ вместе с файлом.
func (s *Service) DeleteDocument(ctx context.Context, id int64) error {
	doc, err := s.repo.GetDocumentByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteDocument(ctx, id); err != nil {
		return err
	}
	return s.files.Remove(doc.Path)
}
