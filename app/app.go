// Package app wires the store, services and controllers into a gin engine.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"tinyclassified/admin"
	"tinyclassified/analytics"
	"tinyclassified/auth"
	"tinyclassified/author"
	"tinyclassified/common"
	"tinyclassified/config"
	"tinyclassified/database"
	"tinyclassified/email"
	"tinyclassified/listing"
	"tinyclassified/login"
	"tinyclassified/public"
	"tinyclassified/users"
)

const sessionName = "tinyclassified-session"

type App struct {
	Config    *config.Config
	Store     database.Store
	Listings  *listing.Service
	Users     *users.Service
	Mailer    email.Sender
	Analytics *analytics.Module

	analyticsDB *gorm.DB
	router      *gin.Engine
}

// New connects to the configured store and builds the router. A nil mailer
// selects the SMTP sender described by cfg.
func New(ctx context.Context, cfg *config.Config, mailer email.Sender) (*App, error) {
	store, err := common.ConnectStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting store: %w", err)
	}

	if mailer == nil {
		mailer = email.NewService(cfg.SMTP, cfg.FakeEmail)
	}

	analyticsDB := common.ConnectAnalyticsDb(cfg.AnalyticsDB)

	a := &App{
		Config:      cfg,
		Store:       store,
		Listings:    listing.NewService(store),
		Users:       users.NewService(store, auth.NewPasswordService(cfg.BcryptCost), mailer, cfg.BaseURL),
		Mailer:      mailer,
		Analytics:   analytics.NewModule(analyticsDB, cfg.SecureCookies),
		analyticsDB: analyticsDB,
	}
	a.router = a.buildRouter()
	return a, nil
}

func (a *App) buildRouter() *gin.Engine {
	router := gin.Default()

	store := cookie.NewStore([]byte(a.Config.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   86400 * 7,
		HttpOnly: true,
		Secure:   a.Config.SecureCookies,
	})
	router.Use(sessions.Sessions(sessionName, store))
	router.Use(auth.Identify())

	router.SetFuncMap(common.TemplateFuncs(a.Config.BaseURL))
	router.LoadHTMLGlob(a.Config.TemplateGlob)
	router.Static("/static", a.Config.StaticDir)

	login.NewModule(a.Users).RegisterRoutes(router)
	author.NewModule(a.Listings).RegisterRoutes(router)
	admin.NewModule(a.Listings, a.Users, a.Mailer, a.Analytics, a.Config.BaseURL).RegisterRoutes(router)
	public.NewModule(a.Listings, a.Analytics, a.Config.BaseURL).RegisterRoutes(router)

	return router
}

func (a *App) Router() *gin.Engine {
	return a.router
}

// Bootstrap creates or promotes the configured admin account.
func (a *App) Bootstrap(ctx context.Context) error {
	if a.Config.AdminEmail == "" {
		return nil
	}
	if err := a.Users.EnsureAdmin(ctx, a.Config.AdminEmail); err != nil {
		return fmt.Errorf("ensuring admin %s: %w", a.Config.AdminEmail, err)
	}
	return nil
}

func (a *App) Close(ctx context.Context) error {
	if a.analyticsDB != nil {
		if sqlDB, err := a.analyticsDB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Printf("Error closing analytics db: %v", err)
			}
		}
	}
	return a.Store.Close(ctx)
}
