package field_test

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/vgraph/vnode/field"
)

func TestStringValidators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		def     field.Definition
		value   any
		wantErr bool
	}{
		{"plain ok", field.String("title"), "Avengers", false},
		{"required nil", field.String("title"), nil, true},
		{"nullable nil", field.String("note").Nullable(), nil, false},
		{"wrong type", field.String("title"), 42, true},
		{"not empty ok", field.String("title").NotEmpty(), "x", false},
		{"not empty fail", field.String("title").NotEmpty(), "", true},
		{"max len ok", field.String("title").MaxLen(5), "abc", false},
		{"max len fail", field.String("title").MaxLen(5), "abcdef", true},
		{"match ok", field.String("code").Match(regexp.MustCompile(`^[A-Z]+$`)), "ABC", false},
		{"match fail", field.String("code").Match(regexp.MustCompile(`^[A-Z]+$`)), "abc", true},
		{"values ok", field.String("genre").Values("drama", "comedy"), "drama", false},
		{"values fail", field.String("genre").Values("drama", "comedy"), "horror", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Descriptor().Validate(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNumericValidators(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		def     field.Definition
		value   any
		wantErr bool
	}{
		{"int ok", field.Int("year"), 1977, false},
		{"int64 ok", field.Int("year"), int64(1977), false},
		{"int min fail", field.Int("year").Min(1800), int64(1500), true},
		{"int max fail", field.Int("year").Max(3000), int64(4000), true},
		{"int wrong type", field.Int("year"), "1977", true},
		{"float ok", field.Float("rating"), 8.4, false},
		{"float from int", field.Float("rating"), int64(8), false},
		{"float min fail", field.Float("rating").Min(0), -1.0, true},
		{"bool ok", field.Bool("released"), true, false},
		{"bool wrong type", field.Bool("released"), "yes", true},
		{"time ok", field.Time("createdAt"), time.Now(), false},
		{"time wrong type", field.Time("createdAt"), "2020-01-01", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Descriptor().Validate(tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestUUIDValidator(t *testing.T) {
	t.Parallel()

	d := field.UUID("id").Descriptor()
	assert.NoError(t, d.Validate("2fd7b0f4-79f3-44a5-a264-b72c10630f34"))
	assert.Error(t, d.Validate("not-a-uuid"))
	assert.Error(t, d.Validate(nil))
}

func TestSlugValidator(t *testing.T) {
	t.Parallel()

	d := field.Slug("slugId").Descriptor()
	assert.NoError(t, d.Validate("spider-man"))
	assert.NoError(t, d.Validate("movie.2012"))
	assert.Error(t, d.Validate("spider man"))
	assert.Error(t, d.Validate("-leading"))
	assert.Error(t, d.Validate("double--hyphen"))
}

func TestStringListValidator(t *testing.T) {
	t.Parallel()

	d := field.StringList("tags").NotEmpty().Descriptor()
	assert.NoError(t, d.Validate([]string{"a", "b"}))
	// Transport may hand lists back as []any.
	assert.NoError(t, d.Validate([]any{"a", "b"}))
	assert.Error(t, d.Validate([]string{}))
	assert.Error(t, d.Validate([]any{"a", 2}))
}

func TestSlugHelpers(t *testing.T) {
	t.Parallel()

	require.True(t, field.IsValidSlug("iron-man"))
	assert.False(t, field.IsValidSlug(""))
	assert.False(t, field.IsValidSlug("a b"))
	// NFD input normalizes to the NFC form.
	assert.Equal(t, field.NormalizeSlug("café"), "café")
	assert.True(t, field.IsValidSlug("café"))
}
