package http

import (
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/auth"
	"github.com/dkeye/Huddle/internal/domain"
)

const (
	sessionTokenKey = "token"
	userKey         = "user"
)

// credential picks the token from, in order: the Authorization header, the
// token query parameter, the cookie session.
func credential(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if q := c.Query("token"); q != "" {
		return q
	}
	if v, ok := sessions.Default(c).Get(sessionTokenKey).(string); ok {
		return v
	}
	return ""
}

// AuthMiddleware rejects the request with 401 before any connection state
// exists.
func AuthMiddleware(gate *auth.Gate, o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := gate.Authenticate(c.Request.Context(), credential(c))
		if err != nil {
			o.Metrics.AuthFailed()
			log.Info().Err(err).Str("module", "adapters.http").Str("ip", c.ClientIP()).Msg("unauthorized")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

func CurrentUser(c *gin.Context) *domain.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(*domain.User); ok {
			return u
		}
	}
	return nil
}

// createSession verifies a token and caches it in the signed cookie so
// browsers can open the socket without custom headers.
func createSession(gate *auth.Gate, o *orch.Orchestrator) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			Token string `json:"token"`
		}
		_ = c.ShouldBindJSON(&req)
		token := req.Token
		if token == "" {
			token = credential(c)
		}
		user, err := gate.Authenticate(c.Request.Context(), token)
		if err != nil {
			o.Metrics.AuthFailed()
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		s := sessions.Default(c)
		s.Set(sessionTokenKey, token)
		if err := s.Save(); err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("session save")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"userId": user.ID, "username": user.Username})
	}
}

func deleteSession(c *gin.Context) {
	s := sessions.Default(c)
	s.Clear()
	s.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := s.Save(); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("session clear")
	}
	c.Status(http.StatusNoContent)
}
