package middleware

import (
	"errors"
	"strings"

	"screencast/internal/core/services"
	apperrors "screencast/pkg/errors"
	"screencast/pkg/logger"

	"github.com/gin-gonic/gin"
)

const subjectKey = "subject"

// AuthMiddleware requires a valid bearer token.
func AuthMiddleware(authService services.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			// browsers cannot set headers on WebSocket upgrades
			token = c.Query("access_token")
			ok = token != ""
		}
		if !ok {
			abortWith(c, apperrors.NewUnauthorizedError("authorization header required"))
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			message := "invalid token"
			if errors.Is(err, services.ErrExpiredToken) {
				message = "token expired"
			}
			abortWith(c, apperrors.NewUnauthorizedError(message))
			return
		}

		c.Set(subjectKey, claims.Subject)
		c.Request = c.Request.WithContext(logger.WithUserID(c.Request.Context(), claims.Subject))
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	if header == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// Subject returns the authenticated subject, if any.
func Subject(c *gin.Context) string {
	return c.GetString(subjectKey)
}
