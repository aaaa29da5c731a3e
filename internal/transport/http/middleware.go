package httptransport

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"coastwatch-server-go/internal/domain/auth"
	"coastwatch-server-go/internal/platform/storage"
)

// Context keys set by the auth middleware.
const (
	ContextUserID = "user_id"
	ContextUser   = "user"
)

// AuthMiddleware verifies the bearer token and loads the caller's account
// into the request context.
func AuthMiddleware(tokens *auth.TokenManager, users *storage.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			RespondDetail(c, http.StatusUnauthorized, "Not authenticated")
			c.Abort()
			return
		}

		userID, _, err := tokens.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			RespondDetail(c, http.StatusUnauthorized, "Invalid or expired token")
			c.Abort()
			return
		}

		user, err := users.FindByID(c.Request.Context(), userID)
		if err != nil {
			RespondDetail(c, http.StatusInternalServerError, "Could not load user")
			c.Abort()
			return
		}
		if user == nil {
			RespondDetail(c, http.StatusUnauthorized, "Unknown user")
			c.Abort()
			return
		}

		c.Set(ContextUserID, user.ID)
		c.Set(ContextUser, user)
		c.Next()
	}
}

// CurrentUser returns the account loaded by the auth middleware.
func CurrentUser(c *gin.Context) (*storage.User, bool) {
	value, ok := c.Get(ContextUser)
	if !ok {
		return nil, false
	}
	user, ok := value.(*storage.User)
	return user, ok
}
