package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
	"github.com/satriahrh/cocoa-fruit/gateway/usecase"
)

var errConversationNotFound = echo.NewHTTPError(http.StatusNotFound, "Conversation not found")

type ConversationHandler struct {
	conversations *usecase.ConversationService
}

func NewConversationHandler(conversations *usecase.ConversationService) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

func (h *ConversationHandler) Register(g *echo.Group) {
	g.POST("", h.Create)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.PATCH("/:id", h.Rename)
	g.DELETE("/:id", h.Delete)
	g.POST("/:id/messages", h.AddMessage)
	g.POST("/:id/messages/batch", h.AddMessages)
}

type CreateConversationRequest struct {
	Title string `json:"title" validate:"max=200"`
	Model string `json:"model"`
}

type RenameConversationRequest struct {
	Title string `json:"title" validate:"required,max=200"`
}

type AddMessagesRequest struct {
	Messages []usecase.TurnInput `json:"messages" validate:"required,min=1"`
}

func notFound(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return errConversationNotFound
	}
	return err
}

func (h *ConversationHandler) Create(c echo.Context) error {
	var req CreateConversationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	conv, err := h.conversations.Create(c.Request().Context(), currentUser(c), req.Title, req.Model)
	if err != nil {
		return err
	}
	return created(c, conv)
}

func (h *ConversationHandler) List(c echo.Context) error {
	convs, err := h.conversations.List(c.Request().Context(), currentUser(c))
	if err != nil {
		return err
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	return ok(c, convs)
}

func (h *ConversationHandler) Get(c echo.Context) error {
	conv, err := h.conversations.Get(c.Request().Context(), currentUser(c), c.Param("id"))
	if err != nil {
		return notFound(err)
	}
	if conv.Messages == nil {
		conv.Messages = []domain.Message{}
	}
	return ok(c, conv)
}

func (h *ConversationHandler) Rename(c echo.Context) error {
	var req RenameConversationRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	conv, err := h.conversations.Rename(c.Request().Context(), currentUser(c), c.Param("id"), req.Title)
	if err != nil {
		return notFound(err)
	}
	return ok(c, conv)
}

func (h *ConversationHandler) Delete(c echo.Context) error {
	if err := h.conversations.Delete(c.Request().Context(), currentUser(c), c.Param("id")); err != nil {
		return notFound(err)
	}
	return message(c, "Conversation deleted successfully")
}

func (h *ConversationHandler) AddMessage(c echo.Context) error {
	var req usecase.TurnInput
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	msg, err := h.conversations.AddMessage(c.Request().Context(), currentUser(c), c.Param("id"), req)
	if err != nil {
		return notFound(err)
	}
	return created(c, msg)
}

func (h *ConversationHandler) AddMessages(c echo.Context) error {
	var req AddMessagesRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	msgs, err := h.conversations.AddMessages(c.Request().Context(), currentUser(c), c.Param("id"), req.Messages)
	if err != nil {
		return notFound(err)
	}
	return created(c, msgs)
}
