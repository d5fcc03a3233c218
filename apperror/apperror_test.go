package apperror

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorsIs(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMatch bool
	}{
		{"MissingField", MissingField("name"), ErrMissingField, true},
		{"DisallowedField", DisallowedField("price"), ErrDisallowedField, true},
		{"DuplicateName", DuplicateName("Acme"), ErrDuplicateName, true},
		{"DuplicateEmail", DuplicateEmail("a@b.c"), ErrDuplicateEmail, true},
		{"NotFound", NotFound("listing", "42"), ErrNotFound, true},
		{"NotPersisted", NotPersisted("listing"), ErrNotPersisted, true},
		{"InvalidSlug", InvalidSlug("a/b"), ErrInvalidSlug, true},
		{"AmbiguousSlug", AmbiguousSlug("a/b/c"), ErrAmbiguousSlug, true},
		{"NotFound is not AmbiguousSlug", NotFound("listing", "42"), ErrAmbiguousSlug, false},
		{"DuplicateName is not DuplicateEmail", DuplicateName("Acme"), ErrDuplicateEmail, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMatch, errors.Is(tt.err, tt.target))
		})
	}
}

func TestWrappedErrorKeepsIdentity(t *testing.T) {
	err := fmt.Errorf("deleting listing: %w", AmbiguousSlug("cat/sub/name"))

	assert.True(t, errors.Is(err, ErrAmbiguousSlug))

	var appErr *AppError
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, "slug cat/sub/name matched multiple listings", appErr.Message)
}

func TestFieldIsRecorded(t *testing.T) {
	assert.Equal(t, "author_email", MissingField("author_email").Field)
	assert.Equal(t, "price", DisallowedField("price").Field)
}
