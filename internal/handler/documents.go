package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/westla/repairdesk-system/internal/middleware"
	"github.com/westla/repairdesk-system/internal/model"
	"github.com/westla/repairdesk-system/internal/repository"
	"github.com/westla/repairdesk-system/internal/service"
	"github.com/westla/repairdesk-system/internal/upload"
)

type documentResponse struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	ClientID    *int64 `json:"clientId,omitempty"`
	ServiceID   *int64 `json:"serviceId,omitempty"`
	Filename    string `json:"filename"`
	MIMEType    string `json:"mimeType,omitempty"`
	Size        int64  `json:"size"`
	IsPublic    bool   `json:"isPublic"`
	CreatedAt   string `json:"createdAt"`
}

func toDocumentResponse(d *model.Document) documentResponse {
	return documentResponse{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		ClientID:    d.ClientID,
		ServiceID:   d.TicketID,
		Filename:    d.Filename,
		MIMEType:    d.MIMEType,
		Size:        d.Size,
		IsPublic:    d.IsPublic,
		CreatedAt:   formatTime(d.CreatedAt),
	}
}

// optionalIDField читает необязательный числовой идентификатор из формы.
func optionalIDField(r *http.Request, field string) (*int64, bool) {
	raw := r.FormValue(field)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, false
	}
	return &id, true
}

// UploadDocument принимает multipart-форму с файлом и метаданными документа.
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	if err := r.ParseMultipartForm(upload.MaxFileSize); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	title := r.FormValue("title")
	if title == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	clientID, ok := optionalIDField(r, "clientId")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	serviceID, ok := optionalIDField(r, "serviceId")
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	defer file.Close()

	id, err := h.service.SaveDocument(r.Context(), userID, service.DocumentInput{
		Title:       title,
		Description: r.FormValue("description"),
		ClientID:    clientID,
		TicketID:    serviceID,
		IsPublic:    r.FormValue("isPublic") == "true",
		Filename:    header.Filename,
		Data:        file,
	})
	if err != nil {
		if errors.Is(err, upload.ErrUnsupportedType) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		h.logger.Error("upload document error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// GetDocuments возвращает доступные пользователю документы.
func (h *Handler) GetDocuments(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	role, _ := middleware.GetRoleFromContext(r.Context())

	documents, err := h.service.ListDocuments(r.Context(), userID, role)
	if err != nil {
		h.logger.Error("list documents error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(documents) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]documentResponse, 0, len(documents))
	for _, d := range documents {
		resp = append(resp, toDocumentResponse(&d))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// GetDocument отдаёт файл документа.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	role, _ := middleware.GetRoleFromContext(r.Context())

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	doc, file, err := h.service.GetDocument(r.Context(), id, userID, role)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrDocumentNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, service.ErrAccessDenied):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		default:
			h.logger.Error("get document error", zap.Error(err), zap.Int64("document", id))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}
	defer file.Close()

	if doc.MIMEType != "" {
		w.Header().Set("Content-Type", doc.MIMEType)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Disposition", `attachment; filename="`+doc.Filename+`"`)
	if _, err := io.Copy(w, file); err != nil {
		h.logger.Error("serve document error", zap.Error(err), zap.Int64("document", id))
	}
}

type shareDocumentRequest struct {
	ClientID *int64 `json:"clientId"`
	IsPublic *bool  `json:"isPublic"`
}

// ShareDocument меняет привязку документа к клиенту и его видимость.
// Нулевой clientId снимает привязку, отсутствующие поля не меняются.
func (h *Handler) ShareDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req shareDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err := h.service.ShareDocument(r.Context(), id, service.DocumentShare{
		ClientID: req.ClientID,
		IsPublic: req.IsPublic,
	})
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("share document error", zap.Error(err), zap.Int64("document", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteDocument удаляет документ вместе с файлом.
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteDocument(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("delete document error", zap.Error(err), zap.Int64("document", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
