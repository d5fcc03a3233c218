package listing

import (
	"context"
	"strconv"
	"time"

	"tinyclassified/apperror"
	"tinyclassified/database"
	"tinyclassified/models"
	"tinyclassified/slug"
)

const (
	defaultNamePrefix = "Listing for user "
	defaultAbout      = "About section"
)

// Service applies listing rules (derived slugs, timestamps, contact ids) on
// top of a ListingStore.
type Service struct {
	store database.ListingStore
	now   func() time.Time
}

func NewService(store database.ListingStore) *Service {
	return &Service{store: store, now: time.Now}
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// Create saves a new listing. Nothing is written when another listing
// already uses the name.
func (s *Service) Create(ctx context.Context, listing *models.Listing) error {
	existing, err := s.store.GetListingByName(ctx, listing.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		return apperror.DuplicateName(listing.Name)
	}

	now := s.timestamp()
	listing.DateCreated = now
	listing.DateModified = now
	if listing.Tags == nil {
		listing.Tags = models.Tags{}
	}
	syncContactCounter(listing)
	slug.RecomputeSlugs(listing)

	return s.store.UpsertListing(ctx, listing)
}

// Update replaces the stored listing with the same id.
func (s *Service) Update(ctx context.Context, listing *models.Listing) error {
	if listing.ID == "" {
		return apperror.NotPersisted("listing")
	}

	listing.DateModified = s.timestamp()
	syncContactCounter(listing)
	slug.RecomputeSlugs(listing)

	return s.store.UpsertListing(ctx, listing)
}

func (s *Service) ReadByEmail(ctx context.Context, email string) (*models.Listing, error) {
	return s.store.GetListingByEmail(ctx, email)
}

func (s *Service) ReadByID(ctx context.Context, id string) (*models.Listing, error) {
	return s.store.GetListingByID(ctx, id)
}

func (s *Service) ReadByName(ctx context.Context, name string) (*models.Listing, error) {
	return s.store.GetListingByName(ctx, name)
}

// ReadBySlug finds the listing owning a fully qualified slug.
func (s *Service) ReadBySlug(ctx context.Context, fullSlug string) (*models.Listing, error) {
	if !slug.IsQualified(fullSlug) {
		return nil, apperror.InvalidSlug(fullSlug)
	}
	return s.store.GetListingBySlug(ctx, fullSlug)
}

// ListBySlug returns listings with any slug starting with prefix, ignoring
// case, featured listings first and then by name.
func (s *Service) ListBySlug(ctx context.Context, prefix string) ([]models.Listing, error) {
	return s.store.ListListingsBySlug(ctx, prefix)
}

func (s *Service) Index(ctx context.Context) ([]models.Listing, error) {
	return s.store.ListListings(ctx)
}

// CategoryIndex merges the tags of every listing, or only of published
// listings, into one category to subcategories map.
func (s *Service) CategoryIndex(ctx context.Context, publishedOnly bool) (models.Tags, error) {
	tagMaps, err := s.store.ListTagMaps(ctx, publishedOnly)
	if err != nil {
		return nil, err
	}
	return slug.CollectCategoryIndex(tagMaps), nil
}

func (s *Service) DeleteBySlug(ctx context.Context, fullSlug string) error {
	if !slug.IsQualified(fullSlug) {
		return apperror.InvalidSlug(fullSlug)
	}
	return s.store.DeleteListingBySlug(ctx, fullSlug)
}

func (s *Service) Delete(ctx context.Context, listing *models.Listing) error {
	if listing.ID == "" {
		return apperror.NotPersisted("listing")
	}
	return s.store.DeleteListingByID(ctx, listing.ID)
}

// CreateDefaultListingForUser gives a new author a placeholder listing to
// hang contacts on until they write their own.
func (s *Service) CreateDefaultListingForUser(ctx context.Context, email string) (*models.Listing, error) {
	listing := &models.Listing{
		AuthorEmail:  email,
		Name:         defaultNamePrefix + email,
		About:        defaultAbout,
		Tags:         models.Tags{},
		ContactInfos: []models.ContactInfo{},
	}
	if err := s.Create(ctx, listing); err != nil {
		return nil, err
	}
	return listing, nil
}

// AddContact stores a new contact on the listing. The store allocates the
// id; listing is updated to match what was stored.
func (s *Service) AddContact(ctx context.Context, listing *models.Listing, contactType, value string) (models.ContactInfo, error) {
	if listing.ID == "" {
		return models.ContactInfo{}, apperror.NotPersisted("listing")
	}

	contact, err := s.store.AppendContact(ctx, listing.ID, models.ContactInfo{Type: contactType, Value: value})
	if err != nil {
		return models.ContactInfo{}, err
	}

	listing.ContactInfos = append(listing.ContactInfos, contact)
	if listing.ContactIDNext <= contact.ID {
		listing.ContactIDNext = contact.ID + 1
	}
	return contact, nil
}

func (s *Service) ReadContact(listing *models.Listing, id int) *models.ContactInfo {
	return listing.Contact(id)
}

// DeleteContact removes the contact with the given id. The listing is left
// untouched when no contact has that id.
func (s *Service) DeleteContact(ctx context.Context, listing *models.Listing, id int) error {
	if listing.ID == "" {
		return apperror.NotPersisted("listing")
	}

	rest, ok := models.RemoveContact(listing.ContactInfos, id)
	if !ok {
		return apperror.NotFound("contact", strconv.Itoa(id))
	}
	if err := s.store.RemoveContact(ctx, listing.ID, id); err != nil {
		return err
	}

	listing.ContactInfos = rest
	return nil
}

// syncContactCounter keeps contact_id_next above every id in use.
func syncContactCounter(listing *models.Listing) {
	if listing.ContactInfos == nil {
		listing.ContactInfos = []models.ContactInfo{}
	}
	for _, c := range listing.ContactInfos {
		if c.ID >= listing.ContactIDNext {
			listing.ContactIDNext = c.ID + 1
		}
	}
}
