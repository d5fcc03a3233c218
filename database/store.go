package database

import (
	"context"
	"fmt"

	"tinyclassified/apperror"
	"tinyclassified/models"
)

// ListingStore is the physical read/write path for listings. Single-record
// reads return (nil, nil) when nothing matches.
type ListingStore interface {
	ListListings(ctx context.Context) ([]models.Listing, error)
	ListTagMaps(ctx context.Context, publishedOnly bool) ([]models.Tags, error)
	GetListingByID(ctx context.Context, id string) (*models.Listing, error)
	GetListingBySlug(ctx context.Context, slug string) (*models.Listing, error)
	GetListingByName(ctx context.Context, name string) (*models.Listing, error)
	GetListingByEmail(ctx context.Context, email string) (*models.Listing, error)
	// ListListingsBySlug matches every listing with a slug starting with
	// prefix, ignoring case.
	ListListingsBySlug(ctx context.Context, prefix string) ([]models.Listing, error)
	UpsertListing(ctx context.Context, listing *models.Listing) error
	DeleteListingBySlug(ctx context.Context, slug string) error
	DeleteListingByID(ctx context.Context, id string) error
	// AppendContact assigns contact.ID from the listing's counter and
	// increments the counter in one atomic step.
	AppendContact(ctx context.Context, listingID string, contact models.ContactInfo) (models.ContactInfo, error)
	RemoveContact(ctx context.Context, listingID string, contactID int) error
}

type UserStore interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpsertUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, email string) error
}

type Store interface {
	ListingStore
	UserStore
	Close(ctx context.Context) error
}

const (
	DatabaseName           = "tiny_classified"
	ListingsCollectionName = "listing"
	UsersCollectionName    = "user"
)

// AllowedListingFields are the keys a client may send in a listing document.
var AllowedListingFields = []string{
	"_id",
	"author_email",
	"name",
	"slugs",
	"about",
	"tags",
	"is_published",
	"featured",
	"contact_id_next",
	"contact_infos",
	"address",
	"latitude",
	"longitude",
	"datecreated",
	"datemodified",
	"listingtype",
}

// CheckListingFields rejects any key outside AllowedListingFields.
func CheckListingFields(keys []string) error {
	for _, key := range keys {
		if !isAllowed(key) {
			return apperror.DisallowedField(key)
		}
	}
	return nil
}

func isAllowed(key string) bool {
	for _, allowed := range AllowedListingFields {
		if key == allowed {
			return true
		}
	}
	return false
}

func ensureListingFields(listing *models.Listing) error {
	if listing.AuthorEmail == "" {
		return apperror.MissingField("author_email")
	}
	if listing.Name == "" {
		return apperror.MissingField("name")
	}
	return nil
}

func ensureUserFields(user *models.User) error {
	if user.Email == "" {
		return apperror.MissingField("email")
	}
	if user.PasswordHash == "" {
		return apperror.MissingField("password_hash")
	}
	return nil
}

func ensureUniqueContactIDs(contacts []models.ContactInfo) error {
	seen := make(map[int]bool, len(contacts))
	for _, c := range contacts {
		if seen[c.ID] {
			return apperror.Rejected("contact_infos", fmt.Sprintf("contact id %d appears more than once", c.ID))
		}
		seen[c.ID] = true
	}
	return nil
}
