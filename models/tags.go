package models

import (
	"bytes"
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
)

// Category is one entry of a listing's tag map.
type Category struct {
	Name          string
	Subcategories []string
}

// Tags maps category names to subcategories. It is a slice so that
// iteration order is the order categories were first added; it encodes as
// a JSON object / BSON document with keys in that order.
type Tags []Category

// Get returns the subcategories filed under name.
func (t Tags) Get(name string) ([]string, bool) {
	for _, c := range t {
		if c.Name == name {
			return c.Subcategories, true
		}
	}
	return nil, false
}

// Add appends subcategories to the named category, creating it at the end
// if it does not exist yet. Subcategories are not de-duplicated.
func (t *Tags) Add(name string, subcategories ...string) {
	for i := range *t {
		if (*t)[i].Name == name {
			(*t)[i].Subcategories = append((*t)[i].Subcategories, subcategories...)
			return
		}
	}
	subs := make([]string, 0, len(subcategories))
	subs = append(subs, subcategories...)
	*t = append(*t, Category{Name: name, Subcategories: subs})
}

// Names lists the category names in order.
func (t Tags) Names() []string {
	names := make([]string, len(t))
	for i, c := range t {
		names[i] = c.Name
	}
	return names
}

// PairCount is the number of (category, subcategory) pairs.
func (t Tags) PairCount() int {
	n := 0
	for _, c := range t {
		n += len(c.Subcategories)
	}
	return n
}

func (t Tags) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range t {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c.Name)
		if err != nil {
			return nil, err
		}
		subs := c.Subcategories
		if subs == nil {
			subs = []string{}
		}
		val, err := json.Marshal(subs)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (t *Tags) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*t = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("tags: expected object, got %v", tok)
	}

	tags := Tags{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("tags: expected category name, got %v", keyTok)
		}
		var subs []string
		if err := dec.Decode(&subs); err != nil {
			return fmt.Errorf("tags: category %q: %w", key, err)
		}
		tags.Add(key, subs...)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*t = tags
	return nil
}

func (t Tags) MarshalBSONValue() (bsontype.Type, []byte, error) {
	doc := make(bson.D, 0, len(t))
	for _, c := range t {
		subs := c.Subcategories
		if subs == nil {
			subs = []string{}
		}
		doc = append(doc, bson.E{Key: c.Name, Value: subs})
	}
	return bson.MarshalValue(doc)
}

func (t *Tags) UnmarshalBSONValue(typ bsontype.Type, data []byte) error {
	if typ == bsontype.Null || typ == bsontype.Undefined {
		*t = nil
		return nil
	}
	if typ != bsontype.EmbeddedDocument {
		return fmt.Errorf("tags: expected document, got %s", typ)
	}

	elems, err := bson.Raw(data).Elements()
	if err != nil {
		return err
	}
	tags := Tags{}
	for _, e := range elems {
		var subs []string
		if err := e.Value().Unmarshal(&subs); err != nil {
			return fmt.Errorf("tags: category %q: %w", e.Key(), err)
		}
		tags.Add(e.Key(), subs...)
	}
	*t = tags
	return nil
}
