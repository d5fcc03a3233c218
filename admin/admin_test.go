package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tinyclassified/analytics"
	"tinyclassified/auth"
	"tinyclassified/common"
	"tinyclassified/database"
	"tinyclassified/email"
	"tinyclassified/listing"
	"tinyclassified/models"
	"tinyclassified/users"
)

type testEnv struct {
	router      *gin.Engine
	listings    *listing.Service
	users       *users.Service
	mailer      *email.Recorder
	analyticsDB *gorm.DB
}

func setupTestEnv(t *testing.T) *testEnv {
	store, err := database.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(context.Background()) })

	analyticsDB, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := analyticsDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	mailer := &email.Recorder{}
	listings := listing.NewService(store)
	userService := users.NewService(store, auth.NewPasswordService(4), mailer, "http://classified.test")

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(sessions.Sessions("test-session", cookie.NewStore([]byte("secret"))))
	router.Use(auth.Identify())
	router.SetFuncMap(common.TemplateFuncs("http://classified.test"))
	router.LoadHTMLGlob("../*/views/*.html")
	router.GET("/test-login", func(c *gin.Context) {
		user := &models.User{Email: c.Query("email"), IsAdmin: c.Query("admin") == "true"}
		auth.StartSession(c, user)
		c.Status(http.StatusOK)
	})
	NewModule(listings, userService, mailer, analytics.NewModule(analyticsDB, false), "http://classified.test").RegisterRoutes(router)

	return &testEnv{
		router:      router,
		listings:    listings,
		users:       userService,
		mailer:      mailer,
		analyticsDB: analyticsDB,
	}
}

func (e *testEnv) login(t *testing.T, email string, admin bool) string {
	target := "/test-login?email=" + url.QueryEscape(email)
	if admin {
		target += "&admin=true"
	}
	w := e.do("GET", target, "", "")
	require.Equal(t, http.StatusOK, w.Code)
	return strings.Split(w.Header().Get("Set-Cookie"), ";")[0]
}

func (e *testEnv) do(method, path, body, cookie string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createListing(t *testing.T, email, name string, published bool) *models.Listing {
	l := &models.Listing{
		AuthorEmail: email,
		Name:        name,
		Tags:        models.Tags{{Name: "Jobs", Subcategories: []string{"Remote"}}},
		About:       "About **" + name + "**",
		IsPublished: published,
	}
	require.NoError(t, e.listings.Create(context.Background(), l))
	return l
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do("GET", "/admin/pending", "", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login?next=%2Fadmin%2Fpending", w.Header().Get("Location"))

	cookie := env.login(t, "bob@example.com", false)
	w = env.do("GET", "/admin/pending", "", cookie)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Location"), "/login?next="))
}

func TestPendingListsOnlyUnpublished(t *testing.T) {
	env := setupTestEnv(t)
	env.createListing(t, "bob@example.com", "Waiting Bob", false)
	env.createListing(t, "alice@example.com", "Live Alice", true)
	cookie := env.login(t, "root@example.com", true)

	w := env.do("GET", "/admin/pending", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Waiting Bob")
	assert.NotContains(t, w.Body.String(), "Live Alice")

	w = env.do("GET", "/admin/manage", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Waiting Bob")
	assert.Contains(t, w.Body.String(), "Live Alice")
}

func TestShowListing(t *testing.T) {
	env := setupTestEnv(t)
	l := env.createListing(t, "bob@example.com", "Bob", false)
	cookie := env.login(t, "root@example.com", true)

	w := env.do("GET", "/admin/listing/"+l.ID, "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<strong>Bob</strong>")
	assert.Contains(t, w.Body.String(), "Waiting for approval")

	w = env.do("GET", "/admin/listing/missing", "", cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApprovePublishesAndNotifies(t *testing.T) {
	env := setupTestEnv(t)
	l := env.createListing(t, "bob@example.com", "Bob", false)
	cookie := env.login(t, "root@example.com", true)

	w := env.do("POST", "/admin/approve/"+l.ID, "", cookie)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/pending", w.Header().Get("Location"))

	saved, err := env.listings.ReadByID(context.Background(), l.ID)
	require.NoError(t, err)
	assert.True(t, saved.IsPublished)

	messages := env.mailer.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, []string{"bob@example.com"}, messages[0].Recipients)
	assert.Equal(t, "Your listing was approved", messages[0].Subject)
	assert.Contains(t, messages[0].Body, "http://classified.test/listings/Jobs/Remote/Bob")
}

func TestDenyKeepsListingAndSendsReason(t *testing.T) {
	env := setupTestEnv(t)
	l := env.createListing(t, "bob@example.com", "Bob", false)
	cookie := env.login(t, "root@example.com", true)

	form := url.Values{"reason": {"Missing contact details"}}
	w := env.do("POST", "/admin/deny/"+l.ID, form.Encode(), cookie)
	require.Equal(t, http.StatusFound, w.Code)

	saved, err := env.listings.ReadByID(context.Background(), l.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.False(t, saved.IsPublished)

	messages := env.mailer.Messages()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].Body, "Reason: Missing contact details")
}

func TestDenyUnpublishesListing(t *testing.T) {
	env := setupTestEnv(t)
	l := env.createListing(t, "bob@example.com", "Bob", true)
	cookie := env.login(t, "root@example.com", true)

	w := env.do("POST", "/admin/deny/"+l.ID, url.Values{"reason": {"Spam"}}.Encode(), cookie)
	require.Equal(t, http.StatusFound, w.Code)

	saved, err := env.listings.ReadByID(context.Background(), l.ID)
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.False(t, saved.IsPublished)
	assert.Len(t, env.mailer.Messages(), 1)
}

func TestDeleteRemovesListing(t *testing.T) {
	env := setupTestEnv(t)
	l := env.createListing(t, "bob@example.com", "Bob", true)
	cookie := env.login(t, "root@example.com", true)

	w := env.do("POST", "/admin/delete/"+l.ID, "", cookie)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin/manage", w.Header().Get("Location"))

	saved, err := env.listings.ReadByID(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Nil(t, saved)

	messages := env.mailer.Messages()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0].Body, "No reason was given.")

	w = env.do("POST", "/admin/delete/"+l.ID, "", cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestModerationSurvivesMailFailure(t *testing.T) {
	env := setupTestEnv(t)
	env.mailer.Err = assert.AnError
	l := env.createListing(t, "bob@example.com", "Bob", false)
	cookie := env.login(t, "root@example.com", true)

	w := env.do("POST", "/admin/approve/"+l.ID, "", cookie)
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestToggleFeatured(t *testing.T) {
	env := setupTestEnv(t)
	l := env.createListing(t, "bob@example.com", "Bob", true)
	cookie := env.login(t, "root@example.com", true)

	w := env.do("POST", "/admin/feature/"+l.ID, "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Success  bool `json:"success"`
		Featured bool `json:"featured"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.True(t, resp.Featured)

	w = env.do("POST", "/admin/feature/"+l.ID, "", cookie)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Featured)

	w = env.do("POST", "/admin/feature/missing", "", cookie)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"error"`)
}

func TestStatsPage(t *testing.T) {
	env := setupTestEnv(t)
	l := env.createListing(t, "bob@example.com", "Bob", true)
	env.createListing(t, "alice@example.com", "Alice", false)
	require.NoError(t, env.analyticsDB.Create(&analytics.ListingView{
		ListingID: l.ID,
		CookieID:  "visitor",
		CreatedAt: time.Now().UTC(),
	}).Error)
	cookie := env.login(t, "root@example.com", true)

	w := env.do("GET", "/admin/stats", "", cookie)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "2 listings (1 published, 1 pending, 0 featured)")
	assert.Contains(t, body, "Most viewed listings")
	assert.Contains(t, body, ">Bob</a>")
}

func TestStatsWithoutAnalytics(t *testing.T) {
	env := setupTestEnv(t)
	sessionCookie := env.login(t, "root@example.com", true)

	router := gin.New()
	router.Use(sessions.Sessions("test-session", cookie.NewStore([]byte("secret"))))
	router.Use(auth.Identify())
	router.SetFuncMap(common.TemplateFuncs("http://classified.test"))
	router.LoadHTMLGlob("../*/views/*.html")
	NewModule(env.listings, env.users, env.mailer, nil, "http://classified.test").RegisterRoutes(router)

	req, _ := http.NewRequest("GET", "/admin/stats", nil)
	req.Header.Set("Cookie", sessionCookie)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "View tracking is disabled")
}
