package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tinyclassified/auth"
	"tinyclassified/common"
)

// Chart rows carry a percentage of the largest value so the template can
// draw bars without arithmetic.
type DayViewChart struct {
	Date       string
	Count      int64
	Percentage float64
}

type ListingViewChart struct {
	ListingID  string
	Name       string
	Count      int64
	Percentage float64
}

func (a *Module) stats(c *gin.Context) {
	ctx := c.Request.Context()

	all, err := a.listings.Index(ctx)
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}
	userList, err := a.users.List(ctx)
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}

	published, featured := 0, 0
	names := make(map[string]string, len(all))
	for _, l := range all {
		names[l.ID] = l.Name
		if l.IsPublished {
			published++
		}
		if l.Featured {
			featured++
		}
	}

	data := gin.H{
		"title":            "Statistics",
		"identity":         auth.FromContext(c),
		"totalListings":    len(all),
		"published":        published,
		"pending":          len(all) - published,
		"featured":         featured,
		"totalUsers":       len(userList),
		"analyticsEnabled": a.analytics != nil,
	}

	if a.analytics == nil {
		c.HTML(http.StatusOK, "admin_stats.html", data)
		return
	}

	viewsByDay := a.analytics.ViewsByDay(15)
	topListings := a.analytics.TopListings(30, 10)

	maxPerDay := int64(1)
	for _, day := range viewsByDay {
		if day.Count > maxPerDay {
			maxPerDay = day.Count
		}
	}
	maxPerListing := int64(1)
	for _, l := range topListings {
		if l.Count > maxPerListing {
			maxPerListing = l.Count
		}
	}

	dayCharts := make([]DayViewChart, len(viewsByDay))
	for i, day := range viewsByDay {
		dayCharts[i] = DayViewChart{
			Date:       day.Date,
			Count:      day.Count,
			Percentage: float64(day.Count) / float64(maxPerDay) * 100,
		}
	}

	listingCharts := make([]ListingViewChart, len(topListings))
	for i, l := range topListings {
		name, ok := names[l.ListingID]
		if !ok {
			name = "Deleted listing"
		}
		listingCharts[i] = ListingViewChart{
			ListingID:  l.ListingID,
			Name:       name,
			Count:      l.Count,
			Percentage: float64(l.Count) / float64(maxPerListing) * 100,
		}
	}

	data["viewsByDay"] = dayCharts
	data["topListings"] = listingCharts
	c.HTML(http.StatusOK, "admin_stats.html", data)
}
