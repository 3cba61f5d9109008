package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/abhigit-saha/hack36-sub000/internal/apperror"
	"github.com/abhigit-saha/hack36-sub000/internal/auth"
	"github.com/abhigit-saha/hack36-sub000/internal/model"
	"github.com/abhigit-saha/hack36-sub000/internal/service"
)

// ChatHandler is the HTTP fallback for clients without a live socket. It runs
// the same service calls as the socket path.
type ChatHandler interface {
	InitializeConversation(c *gin.Context)
	SendMessage(c *gin.Context)
	GetMessages(c *gin.Context)
	MarkRead(c *gin.Context)
	ListDoctorConversations(c *gin.Context)
	ListUserConversations(c *gin.Context)
}

type chatHandler struct {
	service service.ChatService
}

func NewChatHandler(service service.ChatService) ChatHandler {
	return &chatHandler{
		service: service,
	}
}

type initializeRequest struct {
	DoctorID  string `json:"doctor_id"`
	PatientID string `json:"patient_id"`
}

type sendMessageRequest struct {
	SenderID   string           `json:"sender_id"`
	SenderType model.SenderType `json:"sender_type"`
	Content    string           `json:"content"`
}

type markReadRequest struct {
	ReaderType model.SenderType `json:"reader_type"`
}

func (h *chatHandler) InitializeConversation(c *gin.Context) {
	var req initializeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperror.Validation("invalid request body"))
		return
	}
	if id, ok := auth.IdentityFrom(c); ok {
		if !(id.Type == model.SenderDoctor && id.ID == req.DoctorID) && !(id.Type == model.SenderUser && id.ID == req.PatientID) {
			writeError(c, apperror.Forbidden("identity does not match session"))
			return
		}
	}

	conv, err := h.service.InitializeConversation(c.Request.Context(), req.DoctorID, req.PatientID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conv.ID.Hex(),
		"conversation":    conv,
	})
}

func (h *chatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperror.Validation("invalid request body"))
		return
	}
	if id, ok := auth.IdentityFrom(c); ok && (id.ID != req.SenderID || id.Type != req.SenderType) {
		writeError(c, apperror.Forbidden("identity does not match session"))
		return
	}

	msg, err := h.service.SendMessage(c.Request.Context(), service.SendMessageInput{
		ConversationID: c.Param("conversationId"),
		SenderID:       req.SenderID,
		SenderType:     req.SenderType,
		Content:        req.Content,
	})
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": msg,
	})
}

func (h *chatHandler) GetMessages(c *gin.Context) {
	conversationID := c.Param("conversationId")
	conv, err := h.service.GetConversation(c.Request.Context(), conversationID)
	if err != nil {
		writeError(c, err)
		return
	}
	if id, ok := auth.IdentityFrom(c); ok && !conv.IsParticipant(id.ID, id.Type) {
		writeError(c, apperror.Forbidden("not a participant of this conversation"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conversationID,
		"messages":        conv.Messages,
	})
}

func (h *chatHandler) MarkRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperror.Validation("invalid request body"))
		return
	}

	conversationID := c.Param("conversationId")
	if id, ok := auth.IdentityFrom(c); ok {
		if id.Type != req.ReaderType {
			writeError(c, apperror.Forbidden("identity does not match session"))
			return
		}
		conv, err := h.service.GetConversation(c.Request.Context(), conversationID)
		if err != nil {
			writeError(c, err)
			return
		}
		if !conv.IsParticipant(id.ID, id.Type) {
			writeError(c, apperror.Forbidden("not a participant of this conversation"))
			return
		}
	}

	updated, err := h.service.MarkRead(c.Request.Context(), conversationID, req.ReaderType)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"updated": updated,
	})
}

func (h *chatHandler) ListDoctorConversations(c *gin.Context) {
	h.list(c, model.SenderDoctor, c.Param("doctorId"), h.service.ListForDoctor)
}

func (h *chatHandler) ListUserConversations(c *gin.Context) {
	h.list(c, model.SenderUser, c.Param("userId"), h.service.ListForUser)
}

func (h *chatHandler) list(c *gin.Context, role model.SenderType, ownerID string, fetch func(ctx context.Context, id string) ([]model.ConversationSummary, error)) {
	if id, ok := auth.IdentityFrom(c); ok && (id.Type != role || id.ID != ownerID) {
		writeError(c, apperror.Forbidden("identity does not match session"))
		return
	}

	summaries, err := fetch(c.Request.Context(), ownerID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": summaries,
	})
}

func writeError(c *gin.Context, err error) {
	c.JSON(apperror.HTTPStatus(err), gin.H{
		"message": apperror.PublicMessage(err),
	})
}
