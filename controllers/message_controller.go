package controllers

import (
	"context"
	"net/http"

	"github.com/CUknot/marketplace_chat/auth"
	"github.com/CUknot/marketplace_chat/middleware"
	"github.com/CUknot/marketplace_chat/models"
	"github.com/CUknot/marketplace_chat/websocket"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MessageHistory is the read side of the message store used by the REST API
type MessageHistory interface {
	Conversation(ctx context.Context, userID, otherID, listingID string) ([]models.Message, error)
	UnreadCount(ctx context.Context, userID string) (int64, error)
}

// MessageSender runs the persist, broadcast and push path for a new message
type MessageSender interface {
	Send(ctx context.Context, sender auth.Identity, payload websocket.SendPayload) (*models.Message, error)
}

type MessageController struct {
	messages MessageHistory
	sender   MessageSender
	log      *zap.Logger
}

func NewMessageController(messages MessageHistory, sender MessageSender, log *zap.Logger) *MessageController {
	return &MessageController{messages: messages, sender: sender, log: log}
}

type CreateMessageInput struct {
	Content    string `json:"content" binding:"required" example:"Is this still available?"`
	ReceiverID string `json:"receiverId" binding:"required" example:"bob"`
	RoomID     string `json:"roomId" example:"conv_1"`
	ListingID  string `json:"listingId" example:"42"`
}

type ConversationQuery struct {
	With      string `form:"with" binding:"required" example:"bob"`
	ListingID string `form:"listing_id" example:"42"`
}

// GetMessages godoc
// @Summary Get the conversation with another user
// @Description Returns the messages exchanged between the authenticated user and another user, oldest first
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param with query string true "Other user ID"
// @Param listing_id query string false "Listing ID"
// @Success 200 {object} map[string]interface{} "List of messages"
// @Failure 400 {object} map[string]string "Invalid query"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/messages [get]
func (mc *MessageController) GetMessages(c *gin.Context) {
	identity := middleware.CurrentIdentity(c)

	var query ConversationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	messages, err := mc.messages.Conversation(c.Request.Context(), identity.UserID, query.With, query.ListingID)
	if err != nil {
		mc.log.Error("fetch conversation failed", zap.String("user_id", identity.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// GetUnreadCount godoc
// @Summary Get unread message count
// @Description Returns the number of unread messages addressed to the authenticated user
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Success 200 {object} map[string]int64 "Unread message count"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/messages/unread [get]
func (mc *MessageController) GetUnreadCount(c *gin.Context) {
	identity := middleware.CurrentIdentity(c)

	count, err := mc.messages.UnreadCount(c.Request.Context(), identity.UserID)
	if err != nil {
		mc.log.Error("count unread failed", zap.String("user_id", identity.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to count unread messages"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

// CreateMessage godoc
// @Summary Send a message
// @Description Persists a message from the authenticated user, broadcasts it to the room and notifies the receiver
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param message body CreateMessageInput true "Message Creation"
// @Success 201 {object} map[string]interface{} "Message sent successfully"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/messages [post]
func (mc *MessageController) CreateMessage(c *gin.Context) {
	identity := middleware.CurrentIdentity(c)

	var input CreateMessageInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	message, err := mc.sender.Send(c.Request.Context(), identity, websocket.SendPayload{
		Content:    input.Content,
		ReceiverID: input.ReceiverID,
		RoomID:     input.RoomID,
		ListingID:  input.ListingID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send message"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "Message sent successfully",
		"data":    message,
	})
}
