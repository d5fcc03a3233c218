package admin

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tinyclassified/apperror"
	"tinyclassified/auth"
	"tinyclassified/common"
	"tinyclassified/models"
	"tinyclassified/users"
)

func (a *Module) renderUsers(c *gin.Context, status int, extra gin.H) {
	list, err := a.users.List(c.Request.Context())
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}

	data := gin.H{
		"title":    "Users",
		"identity": auth.FromContext(c),
		"users":    list,
	}
	for k, v := range extra {
		data[k] = v
	}
	c.HTML(status, "admin_users.html", data)
}

func (a *Module) listUsers(c *gin.Context) {
	a.renderUsers(c, http.StatusOK, nil)
}

// createUser adds an account with a generated password and mails the
// password to the new user.
func (a *Module) createUser(c *gin.Context) {
	ctx := c.Request.Context()
	emailAddr := strings.TrimSpace(c.PostForm("email"))
	if emailAddr == "" {
		a.renderUsers(c, http.StatusBadRequest, gin.H{"error": "Email is required."})
		return
	}

	password, err := a.users.GeneratePassword()
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}
	user := &models.User{Email: emailAddr, IsAdmin: c.PostForm("is_admin") == "on"}
	if err := a.users.SetPassword(user, password); err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}

	if err := a.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperror.ErrDuplicateEmail) {
			a.renderUsers(c, http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		common.AbortWithErrorPage(c, err)
		return
	}

	body := "An account was created for you.\n\nYour password is `" + password + "`\n\nLog in at " + a.baseURL + "/login\n"
	a.notify(ctx, user.Email, "Your TinyClassified account", body)

	log.Printf("User %s created by %s", user.Email, auth.FromContext(c).Email)
	c.Redirect(http.StatusFound, "/admin/users")
}

func (a *Module) resetPassword(c *gin.Context) {
	ctx := c.Request.Context()
	emailAddr := c.Param("email")

	user, err := a.users.Read(ctx, emailAddr)
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}
	if user == nil {
		common.AbortWithErrorPage(c, apperror.NotFound("user", emailAddr))
		return
	}

	password, err := a.users.GeneratePassword()
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}
	if err := a.users.UpdatePasswordAndNotify(ctx, user, password, true, true); err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}

	c.Redirect(http.StatusFound, "/admin/users")
}

// deleteUser removes the account together with its listing, so no listing
// is left without an author who can edit it.
func (a *Module) deleteUser(c *gin.Context) {
	ctx := c.Request.Context()
	emailAddr := users.NormalizeEmail(c.Param("email"))
	if emailAddr == auth.FromContext(c).Email {
		a.renderUsers(c, http.StatusBadRequest, gin.H{"error": "You cannot delete your own account."})
		return
	}

	l, err := a.listings.ReadByEmail(ctx, emailAddr)
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}
	if l != nil {
		if err := a.listings.Delete(ctx, l); err != nil {
			common.AbortWithErrorPage(c, err)
			return
		}
		log.Printf("Listing %s deleted along with its author %s", l.ID, emailAddr)
	}

	if err := a.users.Delete(ctx, emailAddr); err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}

	log.Printf("User %s deleted by %s", emailAddr, auth.FromContext(c).Email)
	c.Redirect(http.StatusFound, "/admin/users")
}
