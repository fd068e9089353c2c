// Package middleware holds the gin middleware shared by every route.
package middleware

import (
	"osscprep/internal/observability"
	contextutils "osscprep/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// LearnerIDKey is the gin context key holding the learner of the request
const LearnerIDKey = "learner_id"

// LearnerContext copies the learner id stored in the session onto the gin
// context and the request context. Requests without a session pass through
// anonymously.
func LearnerContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := c.Get(sessions.DefaultKey); !ok {
			c.Next()
			return
		}

		learnerID, ok := sessions.Default(c).Get(observability.LearnerSessionKey).(string)
		if !ok || learnerID == "" {
			c.Next()
			return
		}

		c.Set(LearnerIDKey, learnerID)
		c.Request = c.Request.WithContext(contextutils.WithLearnerID(c.Request.Context(), learnerID))
		c.Next()
	}
}

// LearnerID returns the learner set by LearnerContext, or ""
func LearnerID(c *gin.Context) string {
	return c.GetString(LearnerIDKey)
}
