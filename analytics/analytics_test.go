package analytics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func setupTestRouter(m *Module) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/listings/:id", func(c *gin.Context) {
		m.TrackView(c, c.Param("id"))
		c.Status(http.StatusOK)
	})
	return router
}

func visit(router *gin.Engine, path, cookie string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 Firefox/120.0")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestTrackViewThrottlesRepeatVisits(t *testing.T) {
	m := NewModule(setupTestDB(t), false)
	require.NotNil(t, m)
	router := setupTestRouter(m)

	w := visit(router, "/listings/abc", "")
	setCookie := w.Header().Get("Set-Cookie")
	require.True(t, strings.HasPrefix(setCookie, visitorCookie+"="))
	cookie := strings.Split(setCookie, ";")[0]

	visit(router, "/listings/abc", cookie)
	assert.Equal(t, int64(1), m.ViewCount("abc"))

	visit(router, "/listings/def", cookie)
	assert.Equal(t, int64(1), m.ViewCount("def"))

	visit(router, "/listings/abc", visitorCookie+"=someone-else")
	assert.Equal(t, int64(2), m.ViewCount("abc"))
}

func TestTrackViewCountsAgainAfterWindow(t *testing.T) {
	m := NewModule(setupTestDB(t), false)
	router := setupTestRouter(m)
	cookie := visitorCookie + "=visitor"

	start := time.Now()
	m.now = func() time.Time { return start }
	visit(router, "/listings/abc", cookie)

	m.now = func() time.Time { return start.Add(31 * time.Minute) }
	visit(router, "/listings/abc", cookie)

	assert.Equal(t, int64(2), m.ViewCount("abc"))
}

func TestTrackViewRecordsVisitorDetails(t *testing.T) {
	db := setupTestDB(t)
	m := NewModule(db, false)
	router := setupTestRouter(m)

	visit(router, "/listings/abc", visitorCookie+"=visitor")

	var view ListingView
	require.NoError(t, db.First(&view).Error)
	require.NotNil(t, view.Browser)
	assert.Equal(t, "Firefox", *view.Browser)
	require.NotNil(t, view.Language)
	assert.Equal(t, "en-US", *view.Language)
}

func TestViewsByDayAndTopListings(t *testing.T) {
	m := NewModule(setupTestDB(t), false)
	router := setupTestRouter(m)

	visit(router, "/listings/abc", visitorCookie+"=one")
	visit(router, "/listings/abc", visitorCookie+"=two")
	visit(router, "/listings/def", visitorCookie+"=one")

	days := m.ViewsByDay(7)
	require.Len(t, days, 7)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), days[6].Date)
	assert.Equal(t, int64(3), days[6].Count)
	assert.Equal(t, int64(0), days[0].Count)

	top := m.TopListings(30, 10)
	require.Len(t, top, 2)
	assert.Equal(t, "abc", top[0].ListingID)
	assert.Equal(t, int64(2), top[0].Count)
}

func TestNilModuleIsNoop(t *testing.T) {
	var m *Module
	assert.Nil(t, NewModule(nil, false))
	assert.Equal(t, int64(0), m.ViewCount("abc"))
	assert.Empty(t, m.ViewsByDay(7))
	assert.Empty(t, m.TopListings(7, 5))

	router := setupTestRouter(m)
	w := visit(router, "/listings/abc", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExtractBrowser(t *testing.T) {
	tests := []struct {
		ua       string
		expected string
	}{
		{"Mozilla/5.0 Chrome/120.0 Safari/537.36 Edg/120.0", "Edge"},
		{"Mozilla/5.0 Chrome/120.0 Safari/537.36 OPR/105.0", "Opera"},
		{"Mozilla/5.0 Chrome/120.0 Safari/537.36", "Chrome"},
		{"Mozilla/5.0 Version/17.0 Safari/605.1.15", "Safari"},
		{"curl/8.0", "Other"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, *extractBrowser(tt.ua))
		})
	}
	assert.Nil(t, extractBrowser(""))
}
