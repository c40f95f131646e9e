package controllers

import (
	"net/http"

	"github.com/CUknot/marketplace_chat/middleware"
	"github.com/CUknot/marketplace_chat/push"
	"github.com/CUknot/marketplace_chat/store"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PushTokenController struct {
	tokens store.TokenRegistry
	log    *zap.Logger
}

func NewPushTokenController(tokens store.TokenRegistry, log *zap.Logger) *PushTokenController {
	return &PushTokenController{tokens: tokens, log: log}
}

type RegisterPushTokenInput struct {
	Token string `json:"token" binding:"required" example:"ExponentPushToken[xxxxxxxxxxxxxxxxxxxxxx]"`
}

// RegisterPushToken godoc
// @Summary Register a device push token
// @Description Stores the Expo push token of the authenticated user, replacing any previous one
// @Tags push
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param token body RegisterPushTokenInput true "Push token"
// @Success 200 {object} map[string]string "Token registered"
// @Failure 400 {object} map[string]string "Invalid input"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Server error"
// @Router /api/push-tokens [post]
func (pc *PushTokenController) RegisterPushToken(c *gin.Context) {
	identity := middleware.CurrentIdentity(c)

	var input RegisterPushTokenInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if !push.IsExpoPushToken(input.Token) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid push token"})
		return
	}

	if err := pc.tokens.SavePushToken(c.Request.Context(), identity.UserID, input.Token); err != nil {
		pc.log.Error("save push token failed", zap.String("user_id", identity.UserID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to register push token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Push token registered successfully"})
}
