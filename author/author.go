package author

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"tinyclassified/apperror"
	"tinyclassified/auth"
	"tinyclassified/common"
	"tinyclassified/database"
	"tinyclassified/listing"
	"tinyclassified/models"
)

// currentUser stands in for the caller's own email in content URLs.
const currentUser = "_current"

type Module struct {
	listings *listing.Service
}

func NewModule(listings *listing.Service) *Module {
	return &Module{listings: listings}
}

func (m *Module) RegisterRoutes(router gin.IRouter) {
	authorGroup := router.Group("/author", auth.RequireLogin(false))
	{
		authorGroup.GET("/", m.chrome)
		authorGroup.GET("/content/:email", m.readContent)
		authorGroup.PUT("/content/:id", m.updateContent)
		authorGroup.POST("/content/:id", m.updateContent)

		authorGroup.POST("/contact", m.createContact)
		authorGroup.GET("/contact", m.indexContacts)
		authorGroup.GET("/contact/:id", m.readContact)
		authorGroup.DELETE("/contact/:id", m.deleteContact)
	}
}

func (m *Module) chrome(c *gin.Context) {
	id := auth.FromContext(c)

	current, err := m.listings.ReadByEmail(c.Request.Context(), id.Email)
	if err != nil {
		common.AbortWithErrorPage(c, err)
		return
	}

	c.HTML(http.StatusOK, "author.html", gin.H{
		"title":    "My listing",
		"identity": id,
		"email":    id.Email,
		"listing":  current,
	})
}

// readContent returns a listing as JSON. Only admins may read someone
// else's listing; everyone else always gets their own.
func (m *Module) readContent(c *gin.Context) {
	id := auth.FromContext(c)
	email := c.Param("email")
	if email == currentUser || !id.IsAdmin {
		email = id.Email
	}

	current, err := m.listings.ReadByEmail(c.Request.Context(), email)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	if current == nil {
		common.AbortWithError(c, apperror.NotFound("listing", email))
		return
	}

	c.JSON(http.StatusOK, current)
}

// updateContent replaces a listing with the client's copy. Authors can edit
// only their own listing and cannot touch moderation fields or contacts,
// which have their own endpoints. A save by an admin publishes the listing.
func (m *Module) updateContent(c *gin.Context) {
	ctx := c.Request.Context()
	id := auth.FromContext(c)

	raw, err := readModel(c)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	update, err := decodeListing(raw)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}

	listingID := c.Param("id")
	stored, err := m.listings.ReadByID(ctx, listingID)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	if stored == nil || (!id.IsAdmin && stored.AuthorEmail != id.Email) {
		common.AbortWithError(c, apperror.NotFound("listing", listingID))
		return
	}

	update.ID = stored.ID
	update.DateCreated = stored.DateCreated
	update.ContactInfos = stored.ContactInfos
	update.ContactIDNext = stored.ContactIDNext
	if id.IsAdmin {
		update.IsPublished = true
		if update.AuthorEmail == "" {
			update.AuthorEmail = stored.AuthorEmail
		}
	} else {
		update.AuthorEmail = stored.AuthorEmail
		update.IsPublished = stored.IsPublished
		update.Featured = stored.Featured
	}

	if update.Name != stored.Name {
		clash, err := m.listings.ReadByName(ctx, update.Name)
		if err != nil {
			common.AbortWithError(c, err)
			return
		}
		if clash != nil {
			common.AbortWithError(c, apperror.DuplicateName(update.Name))
			return
		}
	}

	if err := m.listings.Update(ctx, update); err != nil {
		common.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, update)
}

// readModel returns the JSON document sent either as the "model" form
// field or as the request body.
func readModel(c *gin.Context) ([]byte, error) {
	if strings.HasPrefix(c.ContentType(), "application/x-www-form-urlencoded") ||
		strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		model, ok := c.GetPostForm("model")
		if !ok {
			return nil, apperror.MissingField("model")
		}
		return []byte(model), nil
	}

	body, err := c.GetRawData()
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return nil, apperror.MissingField("model")
	}
	return body, nil
}

// decodeListing checks the document's keys against the allowed listing
// fields before decoding it.
func decodeListing(raw []byte) (*models.Listing, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, apperror.Rejected("model", "model is not a JSON object")
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	if err := database.CheckListingFields(keys); err != nil {
		return nil, err
	}

	var decoded models.Listing
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, apperror.Rejected("model", "model is not a valid listing: "+err.Error())
	}
	return &decoded, nil
}
