package auth

import (
	"net/http"
	"net/url"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"tinyclassified/models"
)

const (
	SessionUserKey  = "auth_user"
	SessionAdminKey = "is_admin"

	identityKey = "identity"
)

// Identity is who is making the request. The zero value is an anonymous
// visitor.
type Identity struct {
	Email   string
	IsAdmin bool
}

func (i Identity) LoggedIn() bool {
	return i.Email != ""
}

// Identify reads the session once and stores the caller's Identity on the
// request context.
func Identify() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)

		var id Identity
		if email, ok := session.Get(SessionUserKey).(string); ok {
			id.Email = email
			id.IsAdmin, _ = session.Get(SessionAdminKey).(bool)
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

func FromContext(c *gin.Context) Identity {
	if v, ok := c.Get(identityKey); ok {
		if id, ok := v.(Identity); ok {
			return id
		}
	}
	return Identity{}
}

// RequireLogin sends anonymous callers, and non-admins when admin is set,
// to the login page with a link back to where they were going.
func RequireLogin(admin bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := FromContext(c)
		if !id.LoggedIn() || (admin && !id.IsAdmin) {
			next := url.QueryEscape(c.Request.URL.RequestURI())
			c.Redirect(http.StatusFound, "/login?next="+next)
			c.Abort()
			return
		}
		c.Next()
	}
}

func StartSession(c *gin.Context, user *models.User) error {
	session := sessions.Default(c)
	session.Clear()
	session.Set(SessionUserKey, user.Email)
	session.Set(SessionAdminKey, user.IsAdmin)
	if err := session.Save(); err != nil {
		return err
	}
	c.Set(identityKey, Identity{Email: user.Email, IsAdmin: user.IsAdmin})
	return nil
}

func EndSession(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	c.Set(identityKey, Identity{})
	return session.Save()
}
