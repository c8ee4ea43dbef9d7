package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"gemchat/internal/domain"
	"gemchat/internal/service"
)

// ChatHandler mantiene dependencias para los endpoints de conversaciones.
type ChatHandler struct {
	logger   *zap.Logger
	chatServ *service.ChatService
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(logger *zap.Logger, chatServ *service.ChatService) *ChatHandler {
	return &ChatHandler{
		logger:   logger,
		chatServ: chatServ,
	}
}

// chatIDHeader lleva el id de la conversación (posiblemente recién creada)
// de vuelta al cliente antes del primer fragmento.
const chatIDHeader = "X-Chat-Id"

// PostChat maneja POST /chat: responde el texto generado como body chunked
// mientras el proveedor lo produce.
func (h *ChatHandler) PostChat(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Unauthorized"})
		return
	}

	var req struct {
		History []struct {
			Role string `json:"role"`
			Text string `json:"text"`
		} `json:"history"`
		Prompt         string `json:"prompt"`
		ConversationID string `json:"conversationId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid chat request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid request"})
		return
	}

	history := make([]domain.Message, 0, len(req.History))
	for _, entry := range req.History {
		if !domain.ValidRole(entry.Role) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "invalid history role"})
			return
		}
		history = append(history, domain.Message{Role: entry.Role, Content: entry.Text})
	}

	// Cancelación explícita: si el cliente se desconecta a mitad del stream,
	// cancel corta también la llamada al proveedor.
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	stream, err := h.chatServ.StartTurn(ctx, service.TurnInput{
		UserID:         claims.UserID,
		ConversationID: req.ConversationID,
		History:        history,
		Prompt:         req.Prompt,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPromptRequired):
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Prompt is required"})
		case errors.Is(err, service.ErrConversationNotFound):
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Conversation not found"})
		default:
			h.logger.Error("start turn failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error processing chat"})
		}
		return
	}

	c.Header(chatIDHeader, stream.ConversationID)
	c.Header("Content-Type", "text/plain; charset=utf-8")

	for chunk := range stream.Chunks {
		if chunk.Err != nil {
			// Si todavía no se envió nada podemos reportar el error; con
			// bytes ya escritos sólo queda cortar la respuesta limpiamente.
			if !c.Writer.Written() {
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Error processing chat"})
			}
			cancel()
			return
		}
		if _, err := c.Writer.WriteString(chunk.Text); err != nil {
			cancel()
			return
		}
		c.Writer.Flush()
	}

	if !c.Writer.Written() {
		// Stream vacío: igual confirmamos con un 200 y el header ya enviado.
		c.Status(http.StatusOK)
	}
}

// ListChats maneja GET /chats: resúmenes id+título del usuario, más reciente
// primero.
func (h *ChatHandler) ListChats(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Unauthorized"})
		return
	}

	summaries, err := h.chatServ.ListConversations(c.Request.Context(), claims.UserID)
	if err != nil {
		h.logger.Error("list conversations failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not list chats"})
		return
	}
	if summaries == nil {
		summaries = []domain.ConversationSummary{}
	}

	c.JSON(http.StatusOK, gin.H{"chats": summaries})
}

// GetChat maneja GET /chats/:id devolviendo la conversación con sus mensajes.
func (h *ChatHandler) GetChat(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "Unauthorized"})
		return
	}

	conv, err := h.chatServ.GetConversation(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Conversation not found"})
			return
		}
		h.logger.Error("get conversation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "could not load chat"})
		return
	}
	if conv.Messages == nil {
		conv.Messages = []domain.Message{}
	}

	c.JSON(http.StatusOK, gin.H{"chat": conv})
}
