package database

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"tinyclassified/apperror"
	"tinyclassified/models"
)

type listingRow struct {
	ID            string          `gorm:"primaryKey;size:36"`
	AuthorEmail   string          `gorm:"not null;index"`
	Name          string          `gorm:"not null;uniqueIndex"`
	Tags          models.Tags     `gorm:"type:text;serializer:json"`
	About         string          `gorm:"type:text"`
	Address       *models.Address `gorm:"type:text;serializer:json"`
	Latitude      *float64
	Longitude     *float64
	ListingType   string
	ContactIDNext int  `gorm:"not null;default:0"`
	IsPublished   bool `gorm:"not null;default:false;index"`
	Featured      bool `gorm:"not null;default:false"`
	DateCreated   string
	DateModified  string
}

func (listingRow) TableName() string { return "listings" }

type listingSlugRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	ListingID string `gorm:"size:36;not null;index"`
	Position  int    `gorm:"not null"`
	Slug      string `gorm:"not null;index"`
}

func (listingSlugRow) TableName() string { return "listing_slugs" }

type listingContactRow struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	ListingID string `gorm:"size:36;not null;uniqueIndex:idx_listing_contact"`
	ContactID int    `gorm:"not null;uniqueIndex:idx_listing_contact"`
	Position  int    `gorm:"not null"`
	Type      string
	Value     string `gorm:"type:text"`
}

func (listingContactRow) TableName() string { return "listing_contacts" }

type userRow struct {
	ID           string `gorm:"primaryKey;size:36"`
	Email        string `gorm:"not null;uniqueIndex"`
	PasswordHash string `gorm:"not null"`
	IsAdmin      bool   `gorm:"not null;default:false"`
}

func (userRow) TableName() string { return "users" }

const listingOrder = "featured DESC, name ASC"

// GormStore keeps listings in a relational database. Slugs and contacts
// live in child tables so that slug lookups and contact id allocation are
// single statements.
type GormStore struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the sqlite database at path and migrates it.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*GormStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite has a single writer; one connection also keeps ":memory:" alive.
	sqlDB.SetMaxOpenConns(1)

	return NewGormStore(db)
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Close(_ context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) ListListings(ctx context.Context) ([]models.Listing, error) {
	return s.findListings(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Order(listingOrder)
	})
}

func (s *GormStore) ListTagMaps(ctx context.Context, publishedOnly bool) ([]models.Tags, error) {
	query := s.db.WithContext(ctx).Model(&listingRow{}).Select("tags").Order(listingOrder)
	if publishedOnly {
		query = query.Where("is_published = ?", true)
	}

	var rows []listingRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	tagMaps := make([]models.Tags, 0, len(rows))
	for _, row := range rows {
		tagMaps = append(tagMaps, row.Tags)
	}
	return tagMaps, nil
}

func (s *GormStore) GetListingByID(ctx context.Context, id string) (*models.Listing, error) {
	return s.findListing(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	})
}

func (s *GormStore) GetListingBySlug(ctx context.Context, slug string) (*models.Listing, error) {
	return s.findListing(ctx, func(db *gorm.DB) *gorm.DB {
		matching := db.Session(&gorm.Session{NewDB: true}).
			Model(&listingSlugRow{}).
			Select("listing_id").
			Where("slug = ?", slug)
		return db.Where("id IN (?)", matching)
	})
}

func (s *GormStore) GetListingByName(ctx context.Context, name string) (*models.Listing, error) {
	return s.findListing(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("name = ?", name)
	})
}

func (s *GormStore) GetListingByEmail(ctx context.Context, email string) (*models.Listing, error) {
	return s.findListing(ctx, func(db *gorm.DB) *gorm.DB {
		return db.Where("author_email = ?", email)
	})
}

func (s *GormStore) ListListingsBySlug(ctx context.Context, prefix string) ([]models.Listing, error) {
	pattern := escapeLike(strings.ToLower(prefix)) + "%"
	return s.findListings(ctx, func(db *gorm.DB) *gorm.DB {
		matching := db.Session(&gorm.Session{NewDB: true}).
			Model(&listingSlugRow{}).
			Select("listing_id").
			Where("LOWER(slug) LIKE ? ESCAPE '\\'", pattern)
		return db.Where("id IN (?)", matching).Order(listingOrder)
	})
}

func (s *GormStore) UpsertListing(ctx context.Context, listing *models.Listing) error {
	if err := ensureListingFields(listing); err != nil {
		return err
	}
	if err := ensureUniqueContactIDs(listing.ContactInfos); err != nil {
		return err
	}

	id := listing.ID
	if id == "" {
		id = uuid.NewString()
	}
	row := toListingRow(listing, id)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var clashes int64
		if err := tx.Model(&listingRow{}).Where("name = ? AND id <> ?", listing.Name, id).Count(&clashes).Error; err != nil {
			return err
		}
		if clashes > 0 {
			return apperror.DuplicateName(listing.Name)
		}

		// contact_id_next never goes backwards, or a stale copy would
		// hand out ids that are already in use.
		var stored []int
		if err := tx.Model(&listingRow{}).Where("id = ?", id).Pluck("contact_id_next", &stored).Error; err != nil {
			return err
		}
		if len(stored) > 0 && stored[0] > row.ContactIDNext {
			row.ContactIDNext = stored[0]
		}

		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		return replaceChildren(tx, id, listing)
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperror.DuplicateName(listing.Name)
	}
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return err
		}
		return fmt.Errorf("upserting listing %s: %w", listing.Name, err)
	}

	listing.ID = id
	listing.ContactIDNext = row.ContactIDNext
	return nil
}

func (s *GormStore) DeleteListingBySlug(ctx context.Context, slug string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&listingSlugRow{}).Distinct("listing_id").Where("slug = ?", slug).Pluck("listing_id", &ids).Error; err != nil {
			return fmt.Errorf("finding listing by slug %s: %w", slug, err)
		}
		if len(ids) > 1 {
			return apperror.AmbiguousSlug(slug)
		}
		if len(ids) == 0 {
			return apperror.NotFound("listing", slug)
		}
		return deleteListing(tx, ids[0])
	})
}

func (s *GormStore) DeleteListingByID(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return deleteListing(tx, id)
	})
}

func (s *GormStore) AppendContact(ctx context.Context, listingID string, contact models.ContactInfo) (models.ContactInfo, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&listingRow{}).
			Where("id = ?", listingID).
			UpdateColumn("contact_id_next", gorm.Expr("contact_id_next + ?", 1))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperror.NotFound("listing", listingID)
		}

		var next int
		if err := tx.Model(&listingRow{}).Select("contact_id_next").Where("id = ?", listingID).Scan(&next).Error; err != nil {
			return err
		}
		var position int
		if err := tx.Model(&listingContactRow{}).Select("COALESCE(MAX(position), -1) + 1").Where("listing_id = ?", listingID).Scan(&position).Error; err != nil {
			return err
		}

		contact.ID = next - 1
		return tx.Create(&listingContactRow{
			ListingID: listingID,
			ContactID: contact.ID,
			Position:  position,
			Type:      contact.Type,
			Value:     contact.Value,
		}).Error
	})
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return models.ContactInfo{}, err
		}
		return models.ContactInfo{}, fmt.Errorf("appending contact to listing %s: %w", listingID, err)
	}
	return contact, nil
}

func (s *GormStore) RemoveContact(ctx context.Context, listingID string, contactID int) error {
	res := s.db.WithContext(ctx).
		Where("listing_id = ? AND contact_id = ?", listingID, contactID).
		Delete(&listingContactRow{})
	if res.Error != nil {
		return fmt.Errorf("removing contact %d from listing %s: %w", contactID, listingID, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("contact", strconv.Itoa(contactID))
	}
	return nil
}

func (s *GormStore) ListUsers(ctx context.Context) ([]models.User, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Order("email ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	users := make([]models.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, fromUserRow(row))
	}
	return users, nil
}

func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var rows []userRow
	if err := s.db.WithContext(ctx).Where("email = ?", email).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("finding user %s: %w", email, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	user := fromUserRow(rows[0])
	return &user, nil
}

func (s *GormStore) UpsertUser(ctx context.Context, user *models.User) error {
	if err := ensureUserFields(user); err != nil {
		return err
	}

	id := user.ID
	if id == "" {
		id = uuid.NewString()
	}
	row := userRow{
		ID:           id,
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		IsAdmin:      user.IsAdmin,
	}

	err := s.db.WithContext(ctx).Save(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperror.DuplicateEmail(user.Email)
	}
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", user.Email, err)
	}

	user.ID = id
	return nil
}

func (s *GormStore) DeleteUser(ctx context.Context, email string) error {
	if err := s.db.WithContext(ctx).Where("email = ?", email).Delete(&userRow{}).Error; err != nil {
		return fmt.Errorf("deleting user %s: %w", email, err)
	}
	return nil
}

func (s *GormStore) findListing(ctx context.Context, scope func(*gorm.DB) *gorm.DB) (*models.Listing, error) {
	listings, err := s.findListings(ctx, func(db *gorm.DB) *gorm.DB {
		return scope(db).Limit(1)
	})
	if err != nil || len(listings) == 0 {
		return nil, err
	}
	return &listings[0], nil
}

func (s *GormStore) findListings(ctx context.Context, scope func(*gorm.DB) *gorm.DB) ([]models.Listing, error) {
	db := s.db.WithContext(ctx)

	var rows []listingRow
	if err := scope(db.Model(&listingRow{})).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("finding listings: %w", err)
	}
	if len(rows) == 0 {
		return []models.Listing{}, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	var slugRows []listingSlugRow
	if err := db.Where("listing_id IN ?", ids).Order("listing_id, position").Find(&slugRows).Error; err != nil {
		return nil, fmt.Errorf("finding listing slugs: %w", err)
	}
	var contactRows []listingContactRow
	if err := db.Where("listing_id IN ?", ids).Order("listing_id, position").Find(&contactRows).Error; err != nil {
		return nil, fmt.Errorf("finding listing contacts: %w", err)
	}

	slugs := make(map[string][]string)
	for _, r := range slugRows {
		slugs[r.ListingID] = append(slugs[r.ListingID], r.Slug)
	}
	contacts := make(map[string][]models.ContactInfo)
	for _, r := range contactRows {
		contacts[r.ListingID] = append(contacts[r.ListingID], models.ContactInfo{
			ID:    r.ContactID,
			Type:  r.Type,
			Value: r.Value,
		})
	}

	listings := make([]models.Listing, 0, len(rows))
	for _, row := range rows {
		listings = append(listings, fromListingRow(row, slugs[row.ID], contacts[row.ID]))
	}
	return listings, nil
}

func replaceChildren(tx *gorm.DB, id string, listing *models.Listing) error {
	if err := tx.Where("listing_id = ?", id).Delete(&listingSlugRow{}).Error; err != nil {
		return err
	}
	if err := tx.Where("listing_id = ?", id).Delete(&listingContactRow{}).Error; err != nil {
		return err
	}

	if len(listing.Slugs) > 0 {
		slugRows := make([]listingSlugRow, len(listing.Slugs))
		for i, s := range listing.Slugs {
			slugRows[i] = listingSlugRow{ListingID: id, Position: i, Slug: s}
		}
		if err := tx.Create(&slugRows).Error; err != nil {
			return err
		}
	}

	if len(listing.ContactInfos) > 0 {
		contactRows := make([]listingContactRow, len(listing.ContactInfos))
		for i, c := range listing.ContactInfos {
			contactRows[i] = listingContactRow{
				ListingID: id,
				ContactID: c.ID,
				Position:  i,
				Type:      c.Type,
				Value:     c.Value,
			}
		}
		if err := tx.Create(&contactRows).Error; err != nil {
			return err
		}
	}
	return nil
}

func deleteListing(tx *gorm.DB, id string) error {
	res := tx.Where("id = ?", id).Delete(&listingRow{})
	if res.Error != nil {
		return fmt.Errorf("deleting listing %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return apperror.NotFound("listing", id)
	}
	if err := tx.Where("listing_id = ?", id).Delete(&listingSlugRow{}).Error; err != nil {
		return err
	}
	return tx.Where("listing_id = ?", id).Delete(&listingContactRow{}).Error
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func toListingRow(listing *models.Listing, id string) listingRow {
	return listingRow{
		ID:            id,
		AuthorEmail:   listing.AuthorEmail,
		Name:          listing.Name,
		Tags:          listing.Tags,
		About:         listing.About,
		Address:       listing.Address,
		Latitude:      listing.Latitude,
		Longitude:     listing.Longitude,
		ListingType:   listing.ListingType,
		ContactIDNext: listing.ContactIDNext,
		IsPublished:   listing.IsPublished,
		Featured:      listing.Featured,
		DateCreated:   listing.DateCreated,
		DateModified:  listing.DateModified,
	}
}

func fromListingRow(row listingRow, slugs []string, contacts []models.ContactInfo) models.Listing {
	if slugs == nil {
		slugs = []string{}
	}
	if contacts == nil {
		contacts = []models.ContactInfo{}
	}
	tags := row.Tags
	if tags == nil {
		tags = models.Tags{}
	}
	return models.Listing{
		ID:            row.ID,
		AuthorEmail:   row.AuthorEmail,
		Name:          row.Name,
		Tags:          tags,
		Slugs:         slugs,
		About:         row.About,
		Address:       row.Address,
		Latitude:      row.Latitude,
		Longitude:     row.Longitude,
		ListingType:   row.ListingType,
		ContactInfos:  contacts,
		ContactIDNext: row.ContactIDNext,
		IsPublished:   row.IsPublished,
		Featured:      row.Featured,
		DateCreated:   row.DateCreated,
		DateModified:  row.DateModified,
	}
}

func fromUserRow(row userRow) models.User {
	return models.User{
		ID:           row.ID,
		Email:        row.Email,
		PasswordHash: row.PasswordHash,
		IsAdmin:      row.IsAdmin,
	}
}
