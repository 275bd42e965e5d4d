package api

import (
	"context"
	"net/http"

	"adichat/backend/chat/models"
	"adichat/backend/pkg/errors"
	"adichat/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Service is what the chat endpoints need from the chat service
type Service interface {
	Create(ctx context.Context, userID string) (*models.Chat, error)
	List(ctx context.Context, userID string) ([]models.Chat, error)
	Rename(ctx context.Context, userID, chatID, name string) (*models.Chat, error)
	Delete(ctx context.Context, userID, chatID string) error
	Complete(ctx context.Context, userID, chatID, prompt string) (*models.Message, error)
}

type ChatHandler struct {
	service Service
}

func NewChatHandler(service Service) *ChatHandler {
	return &ChatHandler{service: service}
}

func (h *ChatHandler) Create(c *gin.Context) {
	chat, err := h.service.Create(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, models.Response{Success: true, Data: chat, Message: "Chat created"})
}

func (h *ChatHandler) List(c *gin.Context) {
	chats, err := h.service.List(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, models.Response{Success: true, Data: chats})
}

func (h *ChatHandler) Rename(c *gin.Context) {
	var req models.RenameChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError(errors.CodeInvalidRequest, "chatId and name are required").Wrap(err))
		return
	}

	chat, err := h.service.Rename(c.Request.Context(), middleware.UserID(c), req.ChatID, req.Name)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, models.Response{Success: true, Data: chat, Message: "Chat Renamed"})
}

func (h *ChatHandler) Delete(c *gin.Context) {
	var req models.DeleteChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError(errors.CodeInvalidRequest, "chatId is required").Wrap(err))
		return
	}

	if err := h.service.Delete(c.Request.Context(), middleware.UserID(c), req.ChatID); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, models.Response{Success: true, Message: "Chat Deleted"})
}

// Complete appends the prompt and the model's reply to the chat and returns the reply
func (h *ChatHandler) Complete(c *gin.Context) {
	var req models.CompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError(errors.CodeInvalidRequest, "chatId is required").Wrap(err))
		return
	}

	reply, err := h.service.Complete(c.Request.Context(), middleware.UserID(c), req.ChatID, req.Prompt)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, models.Response{Success: true, Data: reply})
}
