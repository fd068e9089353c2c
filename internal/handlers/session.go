package handlers

import (
	"osscprep/internal/middleware"
	"osscprep/internal/observability"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// GetLearnerIDFromSession retrieves the current learner from the session.
// Returns ("", false) when no practice session was started.
func GetLearnerIDFromSession(c *gin.Context) (string, bool) {
	if id := middleware.LearnerID(c); id != "" {
		return id, true
	}
	if _, ok := c.Get(sessions.DefaultKey); !ok {
		return "", false
	}
	id, ok := sessions.Default(c).Get(observability.LearnerSessionKey).(string)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// SetLearnerIDInSession stores learnerID in the session cookie
func SetLearnerIDInSession(c *gin.Context, learnerID string) error {
	session := sessions.Default(c)
	session.Set(observability.LearnerSessionKey, learnerID)
	c.Set(middleware.LearnerIDKey, learnerID)
	return session.Save()
}
