package login

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tinyclassified/auth"
	"tinyclassified/common"
	"tinyclassified/users"
)

const defaultLanding = "/author/"

type Module struct {
	users *users.Service
}

func NewModule(users *users.Service) *Module {
	return &Module{users: users}
}

func (m *Module) RegisterRoutes(router gin.IRouter) {
	router.GET("/login", m.loginPage)
	router.POST("/login", m.loginPost)
	router.GET("/logout", m.logout)
	router.GET("/forgot_password", m.forgotPasswordPage)
	router.POST("/forgot_password", m.forgotPasswordPost)

	account := router.Group("/account", auth.RequireLogin(false))
	{
		account.GET("/password", m.passwordPage)
		account.POST("/password", m.passwordPost)
	}
}

// safeNext keeps post-login redirects on this site.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return defaultLanding
	}
	return next
}

func (m *Module) loginPage(c *gin.Context) {
	next := c.Query("next")
	if auth.FromContext(c).LoggedIn() {
		c.Redirect(http.StatusFound, safeNext(next))
		return
	}

	c.HTML(http.StatusOK, "login.html", gin.H{
		"title":    "Log in",
		"identity": auth.FromContext(c),
		"next":     next,
	})
}

func (m *Module) loginPost(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	password := c.PostForm("password")
	next := c.PostForm("next")

	user, err := m.users.Authenticate(c.Request.Context(), email, password)
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}
	if user == nil {
		c.HTML(http.StatusUnauthorized, "login.html", gin.H{
			"title":     "Log in",
			"identity":  auth.FromContext(c),
			"error":     "Invalid email or password.",
			"email":     email,
			"next":      next,
			"showReset": true,
		})
		return
	}

	if err := auth.StartSession(c, user); err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}

	log.Printf("User %s logged in", user.Email)
	c.Redirect(http.StatusFound, safeNext(next))
}

func (m *Module) logout(c *gin.Context) {
	if err := auth.EndSession(c); err != nil {
		log.Printf("Error ending session: %v", err)
	}
	c.Redirect(http.StatusFound, "/listings")
}

func (m *Module) forgotPasswordPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login_forgot.html", gin.H{
		"title":    "Reset password",
		"identity": auth.FromContext(c),
		"email":    c.Query("email"),
	})
}

// forgotPasswordPost mails a fresh password. The answer is the same
// whether or not the account exists.
func (m *Module) forgotPasswordPost(c *gin.Context) {
	ctx := c.Request.Context()
	email := strings.TrimSpace(c.PostForm("email"))

	user, err := m.users.Read(ctx, email)
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}
	if user != nil {
		password, err := m.users.GeneratePassword()
		if err != nil {
			common.AbortWithErrorPage(c, err)
			return
		}
		if err := m.users.UpdatePasswordAndNotify(ctx, user, password, true, true); err != nil {
			common.AbortWithErrorPage(c, err)
			return
		}
		log.Printf("Password reset for %s", email)
	}

	c.HTML(http.StatusOK, "login_forgot.html", gin.H{
		"title":    "Reset password",
		"identity": auth.FromContext(c),
		"sent":     true,
		"email":    email,
	})
}

func (m *Module) passwordPage(c *gin.Context) {
	c.HTML(http.StatusOK, "login_password.html", gin.H{
		"title":    "Change password",
		"identity": auth.FromContext(c),
	})
}

func (m *Module) passwordPost(c *gin.Context) {
	ctx := c.Request.Context()
	id := auth.FromContext(c)
	current := c.PostForm("current_password")
	password := c.PostForm("password")
	confirm := c.PostForm("confirm_password")

	fail := func(message string) {
		c.HTML(http.StatusBadRequest, "login_password.html", gin.H{
			"title":    "Change password",
			"identity": id,
			"error":    message,
		})
	}

	if password == "" {
		fail("The new password may not be empty.")
		return
	}
	if password != confirm {
		fail("The new passwords do not match.")
		return
	}

	user, err := m.users.Authenticate(ctx, id.Email, current)
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}
	if user == nil {
		fail("The current password is not correct.")
		return
	}

	if err := m.users.UpdatePasswordAndNotify(ctx, user, password, true, false); err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}

	c.HTML(http.StatusOK, "login_password.html", gin.H{
		"title":    "Change password",
		"identity": id,
		"success":  true,
	})
}
