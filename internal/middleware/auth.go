package middleware

import (
	"fmt"
	"net/http"

	"forumcore/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// UserIDKey holds the verified user id (uint) in the gin context.
const UserIDKey = "user_id"

// UserHeader is set by the trusted gateway in front of the forum. It is
// only read when LoadUser is told to trust it.
const UserHeader = "X-User-ID"

// AuthRequired ensures a user is identified
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentUserID(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "authentication required",
			})
			return
		}
		c.Next()
	}
}

// LoadUser resolves the user id from the session and stores it in the
// context. With trustHeader set it falls back to the gateway header.
func LoadUser(trustHeader bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if id, ok := sessionUserID(c); ok {
			c.Set(UserIDKey, id)
		} else if trustHeader {
			if id, ok := utils.ParseID(c.GetHeader(UserHeader)); ok {
				c.Set(UserIDKey, id)
			}
		}
		c.Next()
	}
}

func sessionUserID(c *gin.Context) (uint, bool) {
	if _, exists := c.Get(sessions.DefaultKey); !exists {
		return 0, false
	}
	switch v := sessions.Default(c).Get(UserIDKey).(type) {
	case uint:
		return v, v != 0
	case int:
		return uint(v), v > 0
	case int64:
		return uint(v), v > 0
	case string:
		return utils.ParseID(v)
	case nil:
		return 0, false
	default:
		return utils.ParseID(fmt.Sprint(v))
	}
}

// CurrentUserID returns the identified user, if any.
func CurrentUserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id != 0
}

// OptionalUserID is CurrentUserID as a pointer, nil for anonymous requests.
func OptionalUserID(c *gin.Context) *uint {
	if id, ok := CurrentUserID(c); ok {
		return &id
	}
	return nil
}
