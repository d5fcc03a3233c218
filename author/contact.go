package author

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tinyclassified/apperror"
	"tinyclassified/auth"
	"tinyclassified/common"
)

type contactRequest struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// createContact adds a contact to the caller's listing, creating a
// placeholder listing first if they have none.
func (m *Module) createContact(c *gin.Context) {
	ctx := c.Request.Context()
	email := auth.FromContext(c).Email

	raw, err := readModel(c)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	var req contactRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		common.AbortWithError(c, apperror.Rejected("model", "model is not a valid contact"))
		return
	}
	if req.Type == "" {
		common.AbortWithError(c, apperror.MissingField("type"))
		return
	}

	current, err := m.listings.ReadByEmail(ctx, email)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	if current == nil {
		current, err = m.listings.CreateDefaultListingForUser(ctx, email)
		if err != nil {
			common.AbortWithError(c, err)
			return
		}
	}

	contact, err := m.listings.AddContact(ctx, current, req.Type, req.Value)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"contact": contact, "email": email})
}

func (m *Module) indexContacts(c *gin.Context) {
	email := auth.FromContext(c).Email

	current, err := m.listings.ReadByEmail(c.Request.Context(), email)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	if current == nil {
		common.AbortWithError(c, apperror.NotFound("listing", email))
		return
	}

	c.JSON(http.StatusOK, current.ContactInfos)
}

func (m *Module) readContact(c *gin.Context) {
	email := auth.FromContext(c).Email

	contactID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		common.AbortWithError(c, apperror.NotFound("contact", c.Param("id")))
		return
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

	contact := m.listings.ReadContact(current, contactID)
	if contact == nil {
		common.AbortWithError(c, apperror.NotFound("contact", c.Param("id")))
		return
	}

	c.JSON(http.StatusOK, gin.H{"contact": contact, "email": email})
}

func (m *Module) deleteContact(c *gin.Context) {
	ctx := c.Request.Context()
	email := auth.FromContext(c).Email

	contactID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		common.AbortWithError(c, apperror.NotFound("contact", c.Param("id")))
		return
	}

	current, err := m.listings.ReadByEmail(ctx, email)
	if err != nil {
		common.AbortWithError(c, err)
		return
	}
	if current == nil {
		common.AbortWithError(c, apperror.NotFound("listing", email))
		return
	}

	if err := m.listings.DeleteContact(ctx, current, contactID); err != nil {
		common.AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Contact deleted."})
}
