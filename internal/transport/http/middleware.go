package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/undercity-games/presence-server/internal/auth"
)

// RequestLogger creates a middleware that logs HTTP requests.
func RequestLogger(logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("http request")
	}
}

// ServiceKeyMiddleware guards the internal API. The bearer key must
// match one of the configured bcrypt hashes; an empty hash list rejects
// everything.
func ServiceKeyMiddleware(hashes []string, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.Debug().Str("path", c.Request.URL.Path).Msg("missing authorization header")
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "missing authorization header"})
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid authorization header format"})
			c.Abort()
			return
		}

		if !auth.MatchServiceKey(hashes, parts[1]) {
			logger.Warn().Str("path", c.Request.URL.Path).Msg("service key rejected")
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "invalid service key"})
			c.Abort()
			return
		}

		c.Next()
	}
}
