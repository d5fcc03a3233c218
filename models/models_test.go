package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestTagsJSONPreservesOrder(t *testing.T) {
	var tags Tags
	tags.Add("zeta", "b", "a")
	tags.Add("alpha", "x")

	data, err := json.Marshal(tags)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":["b","a"],"alpha":["x"]}`, string(data))

	var decoded Tags
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, []string{"zeta", "alpha"}, decoded.Names())
}

func TestTagsJSONMergesRepeatedKeys(t *testing.T) {
	var tags Tags
	require.NoError(t, json.Unmarshal([]byte(`{"a":["x"],"b":["y"],"a":["z"]}`), &tags))

	subs, ok := tags.Get("a")
	assert.True(t, ok)
	assert.Equal(t, []string{"x", "z"}, subs)
	assert.Equal(t, []string{"a", "b"}, tags.Names())
}

func TestTagsJSONRejectsListShape(t *testing.T) {
	var tags Tags
	err := json.Unmarshal([]byte(`[{"a":["x"]}]`), &tags)
	assert.Error(t, err)
}

func TestTagsJSONNull(t *testing.T) {
	tags := Tags{{Name: "a"}}
	require.NoError(t, json.Unmarshal([]byte(`null`), &tags))
	assert.Nil(t, tags)
}

func TestTagsEmptyEncodesAsObject(t *testing.T) {
	data, err := json.Marshal(Listing{Name: "n"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"tags":{}`)
}

func TestTagsBSONPreservesOrder(t *testing.T) {
	var tags Tags
	tags.Add("zeta", "b", "a")
	tags.Add("alpha", "x")

	data, err := bson.Marshal(bson.M{"tags": tags})
	require.NoError(t, err)

	var out struct {
		Tags Tags `bson:"tags"`
	}
	require.NoError(t, bson.Unmarshal(data, &out))
	assert.Equal(t, tags, out.Tags)
}

func TestPairCount(t *testing.T) {
	var tags Tags
	tags.Add("a", "x", "y")
	tags.Add("b", "z")
	tags.Add("c")

	assert.Equal(t, 3, tags.PairCount())
}

func TestRemoveContact(t *testing.T) {
	contacts := []ContactInfo{
		{ID: 0, Type: "phone", Value: "1"},
		{ID: 1, Type: "email", Value: "2"},
		{ID: 2, Type: "web", Value: "3"},
	}

	rest, ok := RemoveContact(contacts, 1)
	assert.True(t, ok)
	assert.Equal(t, []ContactInfo{contacts[0], contacts[2]}, rest)
	assert.Len(t, contacts, 3)

	rest, ok = RemoveContact(contacts, 7)
	assert.False(t, ok)
	assert.Equal(t, contacts, rest)
}

func TestListingContact(t *testing.T) {
	l := Listing{ContactInfos: []ContactInfo{{ID: 3, Type: "phone", Value: "555"}}}

	assert.Equal(t, "555", l.Contact(3).Value)
	assert.Nil(t, l.Contact(4))
}

func TestUserHashNotInJSON(t *testing.T) {
	data, err := json.Marshal(User{Email: "a@b.c", PasswordHash: "secret"})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret")
}
