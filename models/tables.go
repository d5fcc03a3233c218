package models

type User struct {
	ID           string `bson:"_id,omitempty" json:"_id,omitempty"`
	Email        string `bson:"email" json:"email"`
	PasswordHash string `bson:"password_hash" json:"-"` // json:"-" keeps the hash out of API responses
	IsAdmin      bool   `bson:"is_admin" json:"is_admin"`
}

type Address struct {
	Street  string `bson:"street,omitempty" json:"street,omitempty"`
	Street2 string `bson:"street2,omitempty" json:"street2,omitempty"`
	City    string `bson:"city,omitempty" json:"city,omitempty"`
	State   string `bson:"state,omitempty" json:"state,omitempty"`
	Zip     string `bson:"zip,omitempty" json:"zip,omitempty"`
	Country string `bson:"country,omitempty" json:"country,omitempty"`
}

type ContactInfo struct {
	ID    int    `bson:"_id" json:"_id"`
	Type  string `bson:"type" json:"type"`
	Value string `bson:"value" json:"value"`
}

type Listing struct {
	ID            string        `bson:"_id,omitempty" json:"_id,omitempty"`
	AuthorEmail   string        `bson:"author_email" json:"author_email"`
	Name          string        `bson:"name" json:"name"`
	Tags          Tags          `bson:"tags" json:"tags"`
	Slugs         []string      `bson:"slugs" json:"slugs"` // derived from Tags and Name on every save
	About         string        `bson:"about" json:"about"`
	Address       *Address      `bson:"address,omitempty" json:"address,omitempty"`
	Latitude      *float64      `bson:"latitude,omitempty" json:"latitude,omitempty"`
	Longitude     *float64      `bson:"longitude,omitempty" json:"longitude,omitempty"`
	ListingType   string        `bson:"listingtype,omitempty" json:"listingtype,omitempty"`
	ContactInfos  []ContactInfo `bson:"contact_infos" json:"contact_infos"`
	ContactIDNext int           `bson:"contact_id_next" json:"contact_id_next"`
	IsPublished   bool          `bson:"is_published" json:"is_published"`
	Featured      bool          `bson:"featured" json:"featured"`
	DateCreated   string        `bson:"datecreated,omitempty" json:"datecreated,omitempty"`
	DateModified  string        `bson:"datemodified,omitempty" json:"datemodified,omitempty"`
}

// Contact returns the contact with the given id, or nil.
func (l *Listing) Contact(id int) *ContactInfo {
	for i := range l.ContactInfos {
		if l.ContactInfos[i].ID == id {
			return &l.ContactInfos[i]
		}
	}
	return nil
}

// RemoveContact returns contacts without the element whose id matches.
// The input slice is not modified; ok is false when no element matched.
func RemoveContact(contacts []ContactInfo, id int) (rest []ContactInfo, ok bool) {
	rest = make([]ContactInfo, 0, len(contacts))
	for _, c := range contacts {
		if c.ID == id && !ok {
			ok = true
			continue
		}
		rest = append(rest, c)
	}
	if !ok {
		return contacts, false
	}
	return rest, true
}
