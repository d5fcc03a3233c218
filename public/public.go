package public

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tinyclassified/analytics"
	"tinyclassified/apperror"
	"tinyclassified/auth"
	"tinyclassified/cache"
	"tinyclassified/common"
	"tinyclassified/listing"
	"tinyclassified/models"
	"tinyclassified/slug"
)

type Module struct {
	listings  *listing.Service
	analytics *analytics.Module
	baseURL   string
}

func NewModule(listings *listing.Service, analyticsModule *analytics.Module, baseURL string) *Module {
	return &Module{
		listings:  listings,
		analytics: analyticsModule,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
	}
}

func (p *Module) RegisterRoutes(router gin.IRouter) {
	router.GET("/", func(c *gin.Context) {
		c.Redirect(http.StatusFound, "/listings")
	})

	publicGroup := router.Group("", cache.ConditionalGet(time.Minute))
	{
		publicGroup.GET("/listings", p.index)
		publicGroup.GET("/listings/*slug", p.bySlug)
		publicGroup.GET("/sitemap.xml", p.sitemap)
	}
}

// ListingLink pairs a listing with the slug that brought it into a
// category page, so the link stays inside the browsed category.
type ListingLink struct {
	Listing models.Listing
	Slug    string
}

func (p *Module) index(c *gin.Context) {
	ctx := c.Request.Context()

	categories, err := p.listings.CategoryIndex(ctx, true)
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}
	all, err := p.listings.Index(ctx)
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}

	var featured []ListingLink
	for _, l := range all {
		if l.IsPublished && l.Featured && len(l.Slugs) > 0 {
			featured = append(featured, ListingLink{Listing: l, Slug: l.Slugs[0]})
		}
	}

	c.HTML(http.StatusOK, "public_index.html", gin.H{
		"title":      "Listings",
		"identity":   auth.FromContext(c),
		"categories": categories,
		"featured":   featured,
	})
}

// bySlug serves an individual listing when the path names exactly one
// published listing and a category page otherwise.
func (p *Module) bySlug(c *gin.Context) {
	ctx := c.Request.Context()
	path := strings.Trim(c.Param("slug"), "/")
	if path == "" {
		p.index(c)
		return
	}

	qualified := slug.IsQualified(path)
	if qualified {
		l, err := p.listings.ReadBySlug(ctx, path)
		if err != nil {
			common.AbortWithErrorPage(c, err)
			return
		}
		if l != nil && l.IsPublished {
			p.renderListing(c, l)
			return
		}
	}

	matches, err := p.listings.ListBySlug(ctx, path)
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}

	var visible []models.Listing
	for _, l := range matches {
		if l.IsPublished {
			visible = append(visible, l)
		}
	}
	if len(visible) == 0 {
		common.AbortWithErrorPage(c, apperror.NotFound("listing", path))
		return
	}
	if qualified && len(visible) == 1 {
		p.renderListing(c, &visible[0])
		return
	}

	p.renderCategory(c, path, visible)
}

func (p *Module) renderListing(c *gin.Context, l *models.Listing) {
	p.analytics.TrackView(c, l.ID)

	c.HTML(http.StatusOK, "public_listing.html", gin.H{
		"title":    l.Name,
		"identity": auth.FromContext(c),
		"listing":  l,
	})
}

func (p *Module) renderCategory(c *gin.Context, path string, visible []models.Listing) {
	segments := strings.Split(path, "/")
	category := segments[0]
	subcategory := ""
	if len(segments) > 1 {
		subcategory = segments[1]
	}

	tagMaps := make([]models.Tags, 0, len(visible))
	links := make([]ListingLink, 0, len(visible))
	lowerPath := strings.ToLower(path)
	for _, l := range visible {
		tagMaps = append(tagMaps, l.Tags)
		for _, s := range l.Slugs {
			if strings.HasPrefix(strings.ToLower(s), lowerPath) {
				links = append(links, ListingLink{Listing: l, Slug: s})
				break
			}
		}
	}

	// Only the subcategories of the browsed category are offered as filters.
	var subcategories []string
	for _, cat := range slug.CollectCategoryIndex(tagMaps) {
		if strings.EqualFold(slug.MakeSegmentSafe(cat.Name), category) {
			category = cat.Name
			subcategories = cat.Subcategories
			break
		}
	}

	title := category
	if subcategory != "" {
		for _, s := range subcategories {
			if strings.EqualFold(slug.MakeSegmentSafe(s), subcategory) {
				subcategory = s
				break
			}
		}
		title = category + " / " + subcategory
	}

	c.HTML(http.StatusOK, "public_category.html", gin.H{
		"title":         title,
		"identity":      auth.FromContext(c),
		"category":      category,
		"subcategory":   subcategory,
		"subcategories": subcategories,
		"listings":      links,
	})
}

func (p *Module) sitemap(c *gin.Context) {
	ctx := c.Request.Context()

	all, err := p.listings.Index(ctx)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	categories, err := p.listings.CategoryIndex(ctx, true)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}

	var sitemap strings.Builder
	sitemap.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	sitemap.WriteString("\n")
	sitemap.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`)
	sitemap.WriteString("\n")

	writeURL(&sitemap, p.baseURL+"/listings", "", "daily", "1.0")

	for _, cat := range categories {
		categorySlug := slug.MakeSegmentSafe(cat.Name)
		writeURL(&sitemap, p.baseURL+"/listings/"+categorySlug, "", "weekly", "0.8")
		for _, sub := range cat.Subcategories {
			writeURL(&sitemap, p.baseURL+"/listings/"+categorySlug+"/"+slug.MakeSegmentSafe(sub), "", "weekly", "0.7")
		}
	}

	for _, l := range all {
		if !l.IsPublished || len(l.Slugs) == 0 {
			continue
		}
		writeURL(&sitemap, p.baseURL+"/listings/"+l.Slugs[0], l.DateModified, "monthly", "0.6")
	}

	sitemap.WriteString("</urlset>\n")

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.String(http.StatusOK, sitemap.String())
}

func writeURL(sitemap *strings.Builder, loc, lastmod, changefreq, priority string) {
	sitemap.WriteString("  <url>\n")
	sitemap.WriteString("    <loc>" + loc + "</loc>\n")
	if lastmod != "" {
		sitemap.WriteString("    <lastmod>" + lastmod + "</lastmod>\n")
	}
	sitemap.WriteString("    <changefreq>" + changefreq + "</changefreq>\n")
	sitemap.WriteString("    <priority>" + priority + "</priority>\n")
	sitemap.WriteString("  </url>\n")
}
