package analytics

import (
	"crypto/sha256"
	"encoding/hex"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	visitorCookie  = "tinyclassified_visitor_id"
	throttleWindow = 30 * time.Minute
)

// ListingView is one visit to a public listing page.
type ListingView struct {
	ID        uint    `gorm:"primaryKey;autoIncrement"`
	ListingID string  `gorm:"not null;index"`
	CookieID  string  `gorm:"not null;index"`
	IP        string  `gorm:"not null"`
	Language  *string // nullable
	Browser   *string // nullable
	CreatedAt time.Time `gorm:"index"`
}

type Module struct {
	db            *gorm.DB
	secureCookies bool
	now           func() time.Time
}

// NewModule migrates the analytics tables. A nil db, or a failed migration,
// gives a nil *Module, on which every method is a no-op.
func NewModule(db *gorm.DB, secureCookies bool) *Module {
	if db == nil {
		log.Println("Analytics DB is nil, analytics will be disabled")
		return nil
	}

	if err := db.AutoMigrate(&ListingView{}); err != nil {
		log.Printf("Error migrating listing_views table: %v", err)
		return nil
	}

	log.Println("Analytics module initialized successfully")
	return &Module{db: db, secureCookies: secureCookies, now: time.Now}
}

// TrackView records a visit to a listing. Repeat visits from the same
// visitor within 30 minutes are not counted.
func (a *Module) TrackView(c *gin.Context, listingID string) {
	if a == nil || a.db == nil {
		return
	}

	cookieID := a.visitorID(c)
	now := a.now().UTC()

	var recent int64
	err := a.db.WithContext(c.Request.Context()).
		Model(&ListingView{}).
		Where("cookie_id = ? AND listing_id = ? AND created_at > ?", cookieID, listingID, now.Add(-throttleWindow)).
		Count(&recent).Error
	if err != nil {
		log.Printf("Error checking recent views: %v", err)
		return
	}
	if recent > 0 {
		return
	}

	view := ListingView{
		ListingID: listingID,
		CookieID:  cookieID,
		IP:        clientIP(c),
		Language:  extractLanguage(c.GetHeader("Accept-Language")),
		Browser:   extractBrowser(c.Request.UserAgent()),
		CreatedAt: now,
	}
	if err := a.db.WithContext(c.Request.Context()).Create(&view).Error; err != nil {
		log.Printf("Error saving listing view: %v", err)
	}
}

func (a *Module) visitorID(c *gin.Context) string {
	if cookie, err := c.Cookie(visitorCookie); err == nil && cookie != "" {
		return cookie
	}

	data := a.now().String() + c.ClientIP() + c.Request.UserAgent()
	hash := sha256.Sum256([]byte(data))
	cookieID := hex.EncodeToString(hash[:])

	c.SetCookie(visitorCookie, cookieID, 60*60*24*365*2, "/", "", a.secureCookies, true)
	return cookieID
}

func clientIP(c *gin.Context) string {
	if ip := c.GetHeader("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := c.GetHeader("X-Real-IP"); ip != "" {
		return ip
	}
	return c.ClientIP()
}

func extractBrowser(userAgent string) *string {
	if userAgent == "" {
		return nil
	}

	ua := strings.ToLower(userAgent)
	var browser string

	// most specific first: Edge and Opera also claim Chrome
	switch {
	case strings.Contains(ua, "edg"):
		browser = "Edge"
	case strings.Contains(ua, "opera") || strings.Contains(ua, "opr"):
		browser = "Opera"
	case strings.Contains(ua, "chrome"):
		browser = "Chrome"
	case strings.Contains(ua, "safari"):
		browser = "Safari"
	case strings.Contains(ua, "firefox"):
		browser = "Firefox"
	default:
		browser = "Other"
	}
	return &browser
}

// extractLanguage keeps the first tag of an Accept-Language header.
func extractLanguage(acceptLang string) *string {
	if acceptLang == "" {
		return nil
	}
	lang := strings.TrimSpace(strings.Split(acceptLang, ",")[0])
	lang = strings.Split(lang, ";")[0]
	return &lang
}

type DayViews struct {
	Date  string
	Count int64
}

type ListingViews struct {
	ListingID string
	Count     int64
}

func (a *Module) ViewCount(listingID string) int64 {
	if a == nil || a.db == nil {
		return 0
	}

	var count int64
	a.db.Model(&ListingView{}).Where("listing_id = ?", listingID).Count(&count)
	return count
}

// ViewsByDay returns one entry per day for the last days days, oldest
// first, including days without views.
func (a *Module) ViewsByDay(days int) []DayViews {
	if a == nil || a.db == nil {
		return []DayViews{}
	}

	now := a.now().UTC()
	start := now.AddDate(0, 0, -days)

	var results []DayViews
	a.db.Model(&ListingView{}).
		Select("DATE(created_at) as date, COUNT(*) as count").
		Where("created_at >= ?", start).
		Group("DATE(created_at)").
		Order("date ASC").
		Scan(&results)

	counts := make(map[string]int64, len(results))
	for _, r := range results {
		counts[r.Date] = r.Count
	}

	dayViews := make([]DayViews, days)
	for i := 0; i < days; i++ {
		date := now.AddDate(0, 0, -(days - 1 - i)).Format("2006-01-02")
		dayViews[i] = DayViews{Date: date, Count: counts[date]}
	}
	return dayViews
}

// TopListings returns the most viewed listings of the last days days.
func (a *Module) TopListings(days, limit int) []ListingViews {
	if a == nil || a.db == nil {
		return []ListingViews{}
	}

	start := a.now().UTC().AddDate(0, 0, -days)

	var results []ListingViews
	a.db.Model(&ListingView{}).
		Select("listing_id as listing_id, COUNT(*) as count").
		Where("created_at >= ?", start).
		Group("listing_id").
		Order("count DESC").
		Limit(limit).
		Scan(&results)

	return results
}
