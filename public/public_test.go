package public

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

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
	"tinyclassified/listing"
	"tinyclassified/models"
)

type testEnv struct {
	router    *gin.Engine
	listings  *listing.Service
	analytics *analytics.Module
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
	analyticsModule := analytics.NewModule(analyticsDB, false)

	listings := listing.NewService(store)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(sessions.Sessions("test-session", cookie.NewStore([]byte("secret"))))
	router.Use(auth.Identify())
	router.SetFuncMap(common.TemplateFuncs("http://classified.test"))
	router.LoadHTMLGlob("../*/views/*.html")
	NewModule(listings, analyticsModule, "http://classified.test/").RegisterRoutes(router)

	return &testEnv{router: router, listings: listings, analytics: analyticsModule}
}

func (e *testEnv) get(path string, headers ...string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createListing(t *testing.T, name string, tags models.Tags, published, featured bool) *models.Listing {
	l := &models.Listing{
		AuthorEmail: name + "@example.com",
		Name:        name,
		Tags:        tags,
		About:       "Hello from **" + name + "**",
		IsPublished: published,
		Featured:    featured,
	}
	require.NoError(t, e.listings.Create(context.Background(), l))
	return l
}

func trades(subcategories ...string) models.Tags {
	return models.Tags{{Name: "Trades", Subcategories: subcategories}}
}

func TestRootRedirects(t *testing.T) {
	env := setupTestEnv(t)

	w := env.get("/")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/listings", w.Header().Get("Location"))
}

func TestIndexShowsPublishedCategoriesAndFeatured(t *testing.T) {
	env := setupTestEnv(t)
	env.createListing(t, "Bob", trades("Plumbing"), true, true)
	env.createListing(t, "Carol", trades("Electrical"), true, false)
	env.createListing(t, "Hidden", models.Tags{{Name: "Secret", Subcategories: []string{"Stuff"}}}, false, true)

	w := env.get("/listings")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `href="/listings/Trades/Plumbing"`)
	assert.Contains(t, body, `href="/listings/Trades/Electrical"`)
	assert.Contains(t, body, `href="/listings/Trades/Plumbing/Bob"`)
	assert.NotContains(t, body, "Secret")
	assert.NotContains(t, body, "Hidden")
}

func TestIndividualListingByQualifiedSlug(t *testing.T) {
	env := setupTestEnv(t)
	l := env.createListing(t, "Bob", trades("Plumbing", "Heating"), true, false)

	w := env.get("/listings/Trades/Heating/Bob")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<strong>Bob</strong>")
	assert.Equal(t, int64(1), env.analytics.ViewCount(l.ID))
}

func TestQualifiedPrefixWithSingleMatch(t *testing.T) {
	env := setupTestEnv(t)
	env.createListing(t, "Bobs Plumbing", trades("Plumbing"), true, false)

	w := env.get("/listings/trades/plumbing/bobs")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<strong>Bobs Plumbing</strong>")
}

func TestCategoryPage(t *testing.T) {
	env := setupTestEnv(t)
	env.createListing(t, "Bob", trades("Plumbing"), true, false)
	env.createListing(t, "Carol", trades("Electrical", "Plumbing"), true, false)
	env.createListing(t, "Dave", trades("Roofing"), false, false)

	w := env.get("/listings/Trades")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `href="/listings/Trades/Plumbing"`)
	assert.Contains(t, body, `href="/listings/Trades/Electrical"`)
	assert.Contains(t, body, `href="/listings/Trades/Plumbing/Bob"`)
	assert.Contains(t, body, `href="/listings/Trades/Electrical/Carol"`)
	assert.NotContains(t, body, "Dave")

	w = env.get("/listings/Trades/Plumbing")
	require.Equal(t, http.StatusOK, w.Code)
	body = w.Body.String()
	assert.Contains(t, body, "Clear filters")
	assert.Contains(t, body, `href="/listings/Trades/Plumbing/Carol"`)
}

func TestCategoryWithSingleListingStaysCategory(t *testing.T) {
	env := setupTestEnv(t)
	env.createListing(t, "Bob", trades("Plumbing"), true, false)

	w := env.get("/listings/Trades")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `href="/listings/Trades/Plumbing/Bob"`)
	assert.NotContains(t, w.Body.String(), "<strong>Bob</strong>")
}

func TestUnpublishedListingIsNotFound(t *testing.T) {
	env := setupTestEnv(t)
	env.createListing(t, "Bob", trades("Plumbing"), false, false)

	assert.Equal(t, http.StatusNotFound, env.get("/listings/Trades/Plumbing/Bob").Code)
	assert.Equal(t, http.StatusNotFound, env.get("/listings/Trades").Code)
	assert.Equal(t, http.StatusNotFound, env.get("/listings/Nothing").Code)
}

func TestListingPagesAreConditional(t *testing.T) {
	env := setupTestEnv(t)
	env.createListing(t, "Bob", trades("Plumbing"), true, false)

	w := env.get("/listings")
	require.Equal(t, http.StatusOK, w.Code)
	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)

	w = env.get("/listings", "If-None-Match", etag)
	assert.Equal(t, http.StatusNotModified, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestSitemap(t *testing.T) {
	env := setupTestEnv(t)
	env.createListing(t, "Bob", trades("Plumbing"), true, false)
	env.createListing(t, "Hidden", models.Tags{{Name: "Secret", Subcategories: []string{"Stuff"}}}, false, false)

	w := env.get("/sitemap.xml")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/xml; charset=utf-8", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.Contains(t, body, "<loc>http://classified.test/listings</loc>")
	assert.Contains(t, body, "<loc>http://classified.test/listings/Trades</loc>")
	assert.Contains(t, body, "<loc>http://classified.test/listings/Trades/Plumbing</loc>")
	assert.Contains(t, body, "<loc>http://classified.test/listings/Trades/Plumbing/Bob</loc>")
	assert.NotContains(t, body, "Secret")
	assert.NotContains(t, body, "Hidden")
}
