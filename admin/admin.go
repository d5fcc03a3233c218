package admin

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tinyclassified/analytics"
	"tinyclassified/apperror"
	"tinyclassified/auth"
	"tinyclassified/common"
	"tinyclassified/email"
	"tinyclassified/listing"
	"tinyclassified/models"
	"tinyclassified/users"
)

type Module struct {
	listings  *listing.Service
	users     *users.Service
	mailer    email.Sender
	analytics *analytics.Module
	baseURL   string
}

func NewModule(listings *listing.Service, users *users.Service, mailer email.Sender, analyticsModule *analytics.Module, baseURL string) *Module {
	return &Module{
		listings:  listings,
		users:     users,
		mailer:    mailer,
		analytics: analyticsModule,
		baseURL:   baseURL,
	}
}

func (a *Module) RegisterRoutes(router gin.IRouter) {
	adminGroup := router.Group("/admin", auth.RequireLogin(true))
	{
		adminGroup.GET("/pending", a.pending)
		adminGroup.GET("/manage", a.manage)
		adminGroup.GET("/listing/:id", a.showListing)
		adminGroup.POST("/approve/:id", a.approve)
		adminGroup.POST("/deny/:id", a.deny)
		adminGroup.POST("/delete/:id", a.deleteListing)
		adminGroup.POST("/feature/:id", a.toggleFeatured)

		adminGroup.GET("/users", a.listUsers)
		adminGroup.POST("/users", a.createUser)
		adminGroup.POST("/users/:email/reset", a.resetPassword)
		adminGroup.POST("/users/:email/delete", a.deleteUser)

		adminGroup.GET("/stats", a.stats)
	}
}

func (a *Module) pending(c *gin.Context) {
	all, err := a.listings.Index(c.Request.Context())
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}

	var waiting []models.Listing
	for _, l := range all {
		if !l.IsPublished {
			waiting = append(waiting, l)
		}
	}

	c.HTML(http.StatusOK, "admin_pending.html", gin.H{
		"title":    "Pending listings",
		"identity": auth.FromContext(c),
		"listings": waiting,
	})
}

func (a *Module) manage(c *gin.Context) {
	all, err := a.listings.Index(c.Request.Context())
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}

	c.HTML(http.StatusOK, "admin_manage.html", gin.H{
		"title":    "Manage listings",
		"identity": auth.FromContext(c),
		"listings": all,
	})
}

// loadListing reads the listing named by the :id parameter, turning a
// missing listing into a NotFound error.
func (a *Module) loadListing(c *gin.Context) (*models.Listing, error) {
	id := c.Param("id")
	l, err := a.listings.ReadByID(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if l == nil {
		return nil, apperror.NotFound("listing", id)
	}
	return l, nil
}

func (a *Module) showListing(c *gin.Context) {
	l, err := a.loadListing(c)
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}

	c.HTML(http.StatusOK, "admin_listing.html", gin.H{
		"title":    l.Name,
		"identity": auth.FromContext(c),
		"listing":  l,
		"views":    a.analytics.ViewCount(l.ID),
	})
}

func (a *Module) approve(c *gin.Context) {
	ctx := c.Request.Context()
	l, err := a.loadListing(c)
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}

	l.IsPublished = true
	if err := a.listings.Update(ctx, l); err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}

	body := fmt.Sprintf("Your listing **%s** was approved and is now visible at %s/listings.\n", l.Name, a.baseURL)
	if len(l.Slugs) > 0 {
		body = fmt.Sprintf("Your listing **%s** was approved and is now visible at %s/listings/%s\n", l.Name, a.baseURL, l.Slugs[0])
	}
	a.notify(ctx, l.AuthorEmail, "Your listing was approved", body)

	log.Printf("Listing %s approved by %s", l.ID, auth.FromContext(c).Email)
	c.Redirect(http.StatusFound, "/admin/pending")
}

// deny takes the listing off the public site and tells the author why.
func (a *Module) deny(c *gin.Context) {
	ctx := c.Request.Context()
	l, err := a.loadListing(c)
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}

	if l.IsPublished {
		l.IsPublished = false
		if err := a.listings.Update(ctx, l); err != nil {
			common.AbortWithErrorPage(c, err)
			return
		}
	}

	reason := strings.TrimSpace(c.PostForm("reason"))
	body := fmt.Sprintf("Your listing **%s** was not approved.\n\n%s\n\nYou can edit it at %s/author/\n", l.Name, reasonText(reason), a.baseURL)
	a.notify(ctx, l.AuthorEmail, "Your listing was not approved", body)

	log.Printf("Listing %s denied by %s", l.ID, auth.FromContext(c).Email)
	c.Redirect(http.StatusFound, "/admin/pending")
}

func (a *Module) deleteListing(c *gin.Context) {
	ctx := c.Request.Context()
	l, err := a.loadListing(c)
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}

	if err := a.listings.Delete(ctx, l); err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}

	reason := strings.TrimSpace(c.PostForm("reason"))
	body := fmt.Sprintf("Your listing **%s** was removed.\n\n%s\n", l.Name, reasonText(reason))
	a.notify(ctx, l.AuthorEmail, "Your listing was removed", body)

	log.Printf("Listing %s deleted by %s", l.ID, auth.FromContext(c).Email)
	c.Redirect(http.StatusFound, "/admin/manage")
}

func (a *Module) toggleFeatured(c *gin.Context) {
	l, err := a.loadListing(c)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}

	l.Featured = !l.Featured
	if err := a.listings.Update(c.Request.Context(), l); err != nil {
		common.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"featured": l.Featured,
	})
}

func reasonText(reason string) string {
	if reason == "" {
		return "No reason was given."
	}
	return "Reason: " + reason
}

// notify emails an author. Moderation has already happened, so a failed
// email is logged rather than reported to the admin.
func (a *Module) notify(ctx context.Context, to, subject, body string) {
	if err := a.mailer.Send(ctx, []string{to}, subject, body); err != nil {
		log.Printf("Error emailing %s: %v", to, err)
	}
}
