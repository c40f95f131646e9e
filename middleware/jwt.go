package middleware

import (
	"net/http"

	"github.com/CUknot/marketplace_chat/auth"
	"github.com/gin-gonic/gin"
)

// IdentityKey is the gin context key holding the authenticated auth.Identity
const IdentityKey = "identity"

// JWTAuth rejects requests without a valid bearer token and stores the identity in the context
func JWTAuth(authenticator *auth.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity, err := authenticator.Authenticate(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(IdentityKey, identity)
		c.Next()
	}
}

// CurrentIdentity returns the identity set by JWTAuth
func CurrentIdentity(c *gin.Context) auth.Identity {
	return c.MustGet(IdentityKey).(auth.Identity)
}

// CORS mirrors the permissive headers the web client expects
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
