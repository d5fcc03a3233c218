package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tinyclassified/apperror"
	"tinyclassified/models"
)

var listingSort = bson.D{{Key: "featured", Value: -1}, {Key: "name", Value: 1}}

// MongoStore keeps listings and users as documents, one collection each.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database

	mu              sync.Mutex
	listingsIndexed bool
	usersIndexed    bool
}

// optionalListingFields are dropped from the stored document when the
// listing no longer carries them.
var optionalListingFields = []string{"address", "latitude", "longitude", "listingtype", "datecreated", "datemodified"}

// ConnectMongo dials uri, checks the server answers and returns a store on
// the named database.
func ConnectMongo(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	log.Printf("Connected to MongoDB database %s", dbName)
	return NewMongoStore(client.Database(dbName)), nil
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{client: db.Client(), db: db}
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// listings returns the listing collection, creating its indexes on first use.
func (s *MongoStore) listings(ctx context.Context) (*mongo.Collection, error) {
	coll := s.db.Collection(ListingsCollectionName)
	err := s.ensureIndexes(ctx, &s.listingsIndexed, func(ctx context.Context) error {
		_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "slugs", Value: 1}}},
			{Keys: bson.D{{Key: "author_email", Value: 1}}},
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating listing indexes: %w", err)
	}
	return coll, nil
}

func (s *MongoStore) users(ctx context.Context) (*mongo.Collection, error) {
	coll := s.db.Collection(UsersCollectionName)
	err := s.ensureIndexes(ctx, &s.usersIndexed, func(ctx context.Context) error {
		_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("creating user indexes: %w", err)
	}
	return coll, nil
}

// ensureIndexes runs create until it succeeds once. The caller's
// cancellation is detached so an aborted request does not fail the build
// for everyone after it; a failure is retried on the next call.
func (s *MongoStore) ensureIndexes(ctx context.Context, done *bool, create func(context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if *done {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := create(ctx); err != nil {
		return err
	}
	*done = true
	return nil
}

// idFilter matches id stored as a hex string or, for documents written by
// older tooling, as the ObjectID it encodes.
func idFilter(id string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(id); err == nil {
		return bson.M{"_id": bson.M{"$in": bson.A{id, oid}}}
	}
	return bson.M{"_id": id}
}

// upsertByID turns update into an upsert on id that keeps the id as a
// string when it inserts.
func upsertByID(id string, update bson.M) (bson.M, bson.M) {
	filter := idFilter(id)
	if _, plain := filter["_id"].(string); !plain {
		update["$setOnInsert"] = bson.M{"_id": id}
	}
	return filter, update
}

func (s *MongoStore) ListListings(ctx context.Context) ([]models.Listing, error) {
	return s.findListings(ctx, bson.M{})
}

func (s *MongoStore) ListTagMaps(ctx context.Context, publishedOnly bool) ([]models.Tags, error) {
	coll, err := s.listings(ctx)
	if err != nil {
		return nil, err
	}

	filter := bson.M{}
	if publishedOnly {
		filter["is_published"] = true
	}
	opts := options.Find().
		SetProjection(bson.M{"tags": 1}).
		SetSort(listingSort)

	cursor, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}
	var docs []struct {
		Tags models.Tags `bson:"tags"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decoding tags: %w", err)
	}

	tagMaps := make([]models.Tags, 0, len(docs))
	for _, d := range docs {
		tagMaps = append(tagMaps, d.Tags)
	}
	return tagMaps, nil
}

func (s *MongoStore) GetListingByID(ctx context.Context, id string) (*models.Listing, error) {
	return s.findListing(ctx, idFilter(id))
}

func (s *MongoStore) GetListingBySlug(ctx context.Context, slug string) (*models.Listing, error) {
	return s.findListing(ctx, bson.M{"slugs": slug})
}

func (s *MongoStore) GetListingByName(ctx context.Context, name string) (*models.Listing, error) {
	return s.findListing(ctx, bson.M{"name": name})
}

func (s *MongoStore) GetListingByEmail(ctx context.Context, email string) (*models.Listing, error) {
	return s.findListing(ctx, bson.M{"author_email": email})
}

func (s *MongoStore) ListListingsBySlug(ctx context.Context, prefix string) ([]models.Listing, error) {
	return s.findListings(ctx, bson.M{
		"slugs": primitive.Regex{Pattern: "^" + regexp.QuoteMeta(prefix), Options: "i"},
	})
}

func (s *MongoStore) UpsertListing(ctx context.Context, listing *models.Listing) error {
	if err := ensureListingFields(listing); err != nil {
		return err
	}
	if err := ensureUniqueContactIDs(listing.ContactInfos); err != nil {
		return err
	}
	coll, err := s.listings(ctx)
	if err != nil {
		return err
	}

	doc := *listing
	if doc.ID == "" {
		doc.ID = primitive.NewObjectID().Hex()
	}
	normalizeListing(&doc)

	update, err := listingUpdate(&doc)
	if err != nil {
		return fmt.Errorf("encoding listing %s: %w", listing.Name, err)
	}
	filter, update := upsertByID(doc.ID, update)
	_, err = coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return apperror.DuplicateName(listing.Name)
	}
	if err != nil {
		return fmt.Errorf("upserting listing %s: %w", listing.Name, err)
	}

	listing.ID = doc.ID
	return nil
}

// listingUpdate sets every field of doc except the contact counter, which
// only moves up so a stale copy cannot reissue contact ids.
func listingUpdate(doc *models.Listing) (bson.M, error) {
	data, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	elems, err := bson.Raw(data).Elements()
	if err != nil {
		return nil, err
	}

	set := bson.D{}
	present := make(map[string]bool, len(elems))
	for _, e := range elems {
		key := e.Key()
		present[key] = true
		if key == "_id" || key == "contact_id_next" {
			continue
		}
		set = append(set, bson.E{Key: key, Value: e.Value()})
	}

	update := bson.M{
		"$set": set,
		"$max": bson.M{"contact_id_next": doc.ContactIDNext},
	}
	unset := bson.M{}
	for _, key := range optionalListingFields {
		if !present[key] {
			unset[key] = ""
		}
	}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update, nil
}

func (s *MongoStore) DeleteListingBySlug(ctx context.Context, slug string) error {
	coll, err := s.listings(ctx)
	if err != nil {
		return err
	}

	opts := options.Find().SetProjection(bson.M{"_id": 1}).SetLimit(2)
	cursor, err := coll.Find(ctx, bson.M{"slugs": slug}, opts)
	if err != nil {
		return fmt.Errorf("finding listing by slug %s: %w", slug, err)
	}
	var matches []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &matches); err != nil {
		return err
	}
	if len(matches) > 1 {
		return apperror.AmbiguousSlug(slug)
	}
	if len(matches) == 0 {
		return apperror.NotFound("listing", slug)
	}
	return s.DeleteListingByID(ctx, matches[0].ID)
}

func (s *MongoStore) DeleteListingByID(ctx context.Context, id string) error {
	coll, err := s.listings(ctx)
	if err != nil {
		return err
	}
	res, err := coll.DeleteOne(ctx, idFilter(id))
	if err != nil {
		return fmt.Errorf("deleting listing %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return apperror.NotFound("listing", id)
	}
	return nil
}

func (s *MongoStore) AppendContact(ctx context.Context, listingID string, contact models.ContactInfo) (models.ContactInfo, error) {
	coll, err := s.listings(ctx)
	if err != nil {
		return models.ContactInfo{}, err
	}

	opts := options.FindOneAndUpdate().
		SetProjection(bson.M{"contact_id_next": 1}).
		SetReturnDocument(options.Before)
	var before struct {
		ContactIDNext int `bson:"contact_id_next"`
	}
	err = coll.FindOneAndUpdate(ctx,
		idFilter(listingID),
		bson.M{"$inc": bson.M{"contact_id_next": 1}},
		opts,
	).Decode(&before)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.ContactInfo{}, apperror.NotFound("listing", listingID)
	}
	if err != nil {
		return models.ContactInfo{}, fmt.Errorf("allocating contact id on listing %s: %w", listingID, err)
	}

	contact.ID = before.ContactIDNext
	res, err := coll.UpdateOne(ctx,
		idFilter(listingID),
		bson.M{"$push": bson.M{"contact_infos": contact}},
	)
	if err != nil {
		return models.ContactInfo{}, fmt.Errorf("appending contact to listing %s: %w", listingID, err)
	}
	if res.MatchedCount == 0 {
		return models.ContactInfo{}, apperror.NotFound("listing", listingID)
	}
	return contact, nil
}

func (s *MongoStore) RemoveContact(ctx context.Context, listingID string, contactID int) error {
	coll, err := s.listings(ctx)
	if err != nil {
		return err
	}
	filter := idFilter(listingID)
	filter["contact_infos._id"] = contactID
	res, err := coll.UpdateOne(ctx,
		filter,
		bson.M{"$pull": bson.M{"contact_infos": bson.M{"_id": contactID}}},
	)
	if err != nil {
		return fmt.Errorf("removing contact %d from listing %s: %w", contactID, listingID, err)
	}
	if res.MatchedCount == 0 {
		return apperror.NotFound("contact", strconv.Itoa(contactID))
	}
	return nil
}

func (s *MongoStore) ListUsers(ctx context.Context) ([]models.User, error) {
	coll, err := s.users(ctx)
	if err != nil {
		return nil, err
	}
	cursor, err := coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "email", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	users := []models.User{}
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("decoding users: %w", err)
	}
	return users, nil
}

func (s *MongoStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	coll, err := s.users(ctx)
	if err != nil {
		return nil, err
	}
	var user models.User
	err = coll.FindOne(ctx, bson.M{"email": email}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding user %s: %w", email, err)
	}
	return &user, nil
}

func (s *MongoStore) UpsertUser(ctx context.Context, user *models.User) error {
	if err := ensureUserFields(user); err != nil {
		return err
	}
	coll, err := s.users(ctx)
	if err != nil {
		return err
	}

	id := user.ID
	if id == "" {
		id = primitive.NewObjectID().Hex()
	}
	filter, update := upsertByID(id, bson.M{"$set": bson.M{
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"is_admin":      user.IsAdmin,
	}})
	_, err = coll.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		return apperror.DuplicateEmail(user.Email)
	}
	if err != nil {
		return fmt.Errorf("upserting user %s: %w", user.Email, err)
	}

	user.ID = id
	return nil
}

func (s *MongoStore) DeleteUser(ctx context.Context, email string) error {
	coll, err := s.users(ctx)
	if err != nil {
		return err
	}
	if _, err := coll.DeleteMany(ctx, bson.M{"email": email}); err != nil {
		return fmt.Errorf("deleting user %s: %w", email, err)
	}
	return nil
}

func (s *MongoStore) findListing(ctx context.Context, filter bson.M) (*models.Listing, error) {
	coll, err := s.listings(ctx)
	if err != nil {
		return nil, err
	}
	var listing models.Listing
	err = coll.FindOne(ctx, filter).Decode(&listing)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding listing: %w", err)
	}
	normalizeListing(&listing)
	return &listing, nil
}

func (s *MongoStore) findListings(ctx context.Context, filter bson.M) ([]models.Listing, error) {
	coll, err := s.listings(ctx)
	if err != nil {
		return nil, err
	}
	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(listingSort))
	if err != nil {
		return nil, fmt.Errorf("finding listings: %w", err)
	}
	listings := []models.Listing{}
	if err := cursor.All(ctx, &listings); err != nil {
		return nil, fmt.Errorf("decoding listings: %w", err)
	}
	for i := range listings {
		normalizeListing(&listings[i])
	}
	return listings, nil
}

// normalizeListing replaces nil collections with empty ones so that
// $push has an array to append to and clients always see arrays.
func normalizeListing(listing *models.Listing) {
	if listing.Tags == nil {
		listing.Tags = models.Tags{}
	}
	if listing.Slugs == nil {
		listing.Slugs = []string{}
	}
	if listing.ContactInfos == nil {
		listing.ContactInfos = []models.ContactInfo{}
	}
}
