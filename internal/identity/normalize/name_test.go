package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName(t *testing.T) {
	tests := []struct {
		name       string
		raw        string
		display    string
		normalized string
	}{
		{"trailing source initials", "Cody Yarborough CY", "Cody Yarborough", "cody yarborough"},
		{"diacritics and hyphen", "  José   Álvarez-Núñez ", "José Álvarez-Núñez", "jose alvarez nunez"},
		{"apostrophe and comma", "O'Brien, Patrick", "O'Brien, Patrick", "obrien patrick"},
		{"underscore tag", "Ryan Weiss_TG", "Ryan Weiss", "ryan weiss"},
		{"iso date", "Mike Trout 2024-03-15", "Mike Trout", "mike trout"},
		{"us date", "Mike Trout 03/15/2024", "Mike Trout", "mike trout"},
		{"compact date", "Mike Trout 20240315", "Mike Trout", "mike trout"},
		{"parenthesized note", "Sam Lee (retest)", "Sam Lee", "sam lee"},
		{"all caps name kept whole", "JOHN LEE", "JOHN LEE", "john lee"},
		{"date then initials", "Cody Yarborough CY 2024-01-05", "Cody Yarborough", "cody yarborough"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Name(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.display, got.Display)
			assert.Equal(t, tt.normalized, got.Normalized)
		})
	}
}

func TestName_Idempotent(t *testing.T) {
	raws := []string{
		"Cody Yarborough CY",
		"José Álvarez-Núñez",
		"O'Brien, Patrick",
		"Ryan Weiss_TG",
		"Straße Müller 1.5.24",
		"John Smith JS2",
	}
	for _, raw := range raws {
		t.Run(raw, func(t *testing.T) {
			first, err := Name(raw)
			require.NoError(t, err)
			second, err := Name(first.Normalized)
			require.NoError(t, err)
			assert.Equal(t, first.Normalized, second.Normalized)
			assert.Equal(t, first.Normalized, Fold(first.Display))
		})
	}
}

func TestName_Empty(t *testing.T) {
	for _, raw := range []string{"", "   ", "2024-01-01", "(copy)", "---", "12345"} {
		t.Run(raw, func(t *testing.T) {
			_, err := Name(raw)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrEmptyName)

			var emptyErr *EmptyNameError
			require.ErrorAs(t, err, &emptyErr)
			assert.Equal(t, raw, emptyErr.Raw)
		})
	}
}

func TestSplitDisambiguator(t *testing.T) {
	base, suffix, ok := SplitDisambiguator("John Smith JS2")
	assert.True(t, ok)
	assert.Equal(t, "John Smith", base)
	assert.Equal(t, "JS2", suffix)

	base, suffix, ok = SplitDisambiguator("John Smith_A1")
	assert.True(t, ok)
	assert.Equal(t, "John Smith", base)
	assert.Equal(t, "A1", suffix)

	_, _, ok = SplitDisambiguator("John Smith")
	assert.False(t, ok)

	base, _, ok = SplitDisambiguator("JOHN LEE")
	assert.False(t, ok)
	assert.Equal(t, "JOHN LEE", base)

	_, _, ok = SplitDisambiguator("JOHN SMITH JS2")
	assert.False(t, ok)
}
