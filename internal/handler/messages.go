package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/westla/repairdesk-system/internal/middleware"
	"github.com/westla/repairdesk-system/internal/model"
	"github.com/westla/repairdesk-system/internal/repository"
	"github.com/westla/repairdesk-system/internal/service"
	"github.com/westla/repairdesk-system/internal/upload"
)

type attachmentResponse struct {
	Filename string `json:"filename"`
	Path     string `json:"path"`
	MIMEType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size"`
}

type messageResponse struct {
	ID          int64                `json:"id"`
	SenderID    int64                `json:"senderId"`
	Content     string               `json:"content"`
	Attachments []attachmentResponse `json:"attachments,omitempty"`
	ReadBy      []int64              `json:"readBy,omitempty"`
	CreatedAt   string               `json:"createdAt"`
}

func toMessageResponse(m *model.Message) messageResponse {
	resp := messageResponse{
		ID:        m.ID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		ReadBy:    m.ReadBy,
		CreatedAt: formatTime(m.CreatedAt),
	}
	for _, a := range m.Attachments {
		resp.Attachments = append(resp.Attachments, attachmentResponse{
			Filename: a.Filename,
			Path:     a.Path,
			MIMEType: a.MIMEType,
			Size:     a.Size,
		})
	}
	return resp
}

type conversationResponse struct {
	ID           int64            `json:"id"`
	Subject      string           `json:"subject"`
	ServiceID    *int64           `json:"serviceId,omitempty"`
	Participants []int64          `json:"participants"`
	LastMessage  *messageResponse `json:"lastMessage,omitempty"`
	IsArchived   bool             `json:"isArchived"`
	Unread       bool             `json:"unread"`
	UpdatedAt    string           `json:"updatedAt"`
}

// toConversationResponse формирует JSON-представление переписки.
// Unread выставляется, если последнее сообщение отправлено другим
// участником и не прочитано вызывающим.
func toConversationResponse(c *model.Conversation, userID int64) conversationResponse {
	resp := conversationResponse{
		ID:           c.ID,
		Subject:      c.Subject,
		ServiceID:    c.TicketID,
		Participants: c.Participants,
		IsArchived:   c.IsArchived,
		UpdatedAt:    formatTime(c.UpdatedAt),
	}
	if c.LastMessage != nil {
		last := toMessageResponse(c.LastMessage)
		resp.LastMessage = &last
		if c.LastMessage.SenderID != userID {
			resp.Unread = true
			for _, reader := range c.LastMessage.ReadBy {
				if reader == userID {
					resp.Unread = false
					break
				}
			}
		}
	}
	return resp
}

type startConversationRequest struct {
	RecipientID int64  `json:"recipientId"`
	ServiceID   *int64 `json:"serviceId"`
	Subject     string `json:"subject"`
	Message     string `json:"message"`
}

// StartConversation создаёт переписку с первым сообщением.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	var req startConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.RecipientID <= 0 || req.Message == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	id, err := h.service.StartConversation(r.Context(), userID, req.RecipientID, req.ServiceID, req.Subject, req.Message)
	if err != nil {
		h.logger.Error("start conversation error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// GetConversations возвращает переписки текущего пользователя.
func (h *Handler) GetConversations(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	conversations, err := h.service.ListConversations(r.Context(), userID)
	if err != nil {
		h.logger.Error("list conversations error", zap.Error(err), zap.Int64("userID", userID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(conversations) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]conversationResponse, 0, len(conversations))
	for _, c := range conversations {
		resp = append(resp, toConversationResponse(&c, userID))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type conversationDetailResponse struct {
	Conversation conversationResponse `json:"conversation"`
	Messages     []messageResponse    `json:"messages"`
}

// GetConversation возвращает переписку с сообщениями; входящие
// сообщения помечаются прочитанными.
func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	conv, messages, err := h.service.GetConversation(r.Context(), id, userID)
	if err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get conversation error", zap.Error(err), zap.Int64("conversation", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := conversationDetailResponse{
		Conversation: toConversationResponse(conv, userID),
		Messages:     make([]messageResponse, 0, len(messages)),
	}
	for _, m := range messages {
		resp.Messages = append(resp.Messages, toMessageResponse(&m))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

// SendMessage добавляет сообщение в переписку. Запрос принимается либо
// как JSON, либо как multipart-форма с полем content и файлами attachments.
func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var content string
	var uploads []service.AttachmentUpload

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(upload.MaxFileSize); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		content = r.FormValue("content")
		for _, fh := range r.MultipartForm.File["attachments"] {
			f, err := fh.Open()
			if err != nil {
				http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
				return
			}
			defer f.Close()
			uploads = append(uploads, service.AttachmentUpload{Filename: fh.Filename, Data: f})
		}
	} else {
		var req sendMessageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		content = req.Content
	}

	if content == "" && len(uploads) == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	msgID, err := h.service.SendMessage(r.Context(), userID, id, content, uploads)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConversationNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, upload.ErrUnsupportedType):
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		default:
			h.logger.Error("send message error", zap.Error(err), zap.Int64("conversation", id))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]int64{"id": msgID})
}

// ArchiveConversation помечает переписку архивной.
func (h *Handler) ArchiveConversation(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, true)
}

// UnarchiveConversation возвращает переписку из архива.
func (h *Handler) UnarchiveConversation(w http.ResponseWriter, r *http.Request) {
	h.setArchived(w, r, false)
}

func (h *Handler) setArchived(w http.ResponseWriter, r *http.Request, archived bool) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	id, ok := idParam(r)
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetConversationArchived(r.Context(), id, userID, archived); err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("archive conversation error", zap.Error(err), zap.Int64("conversation", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
