package tags

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeduplicatesAndLowercases(t *testing.T) {
	got, err := Parse("Undead, HERO;undead\nFrost  Magic, , hero")
	require.NoError(t, err)
	assert.Equal(t, []string{"undead", "hero", "frost-magic"}, got)
}

func TestParseEmptyInput(t *testing.T) {
	got, err := Parse("  , ;\n")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNormalizeFoldsCompatibilityForms(t *testing.T) {
	// Fullwidth letters fold to ASCII under NFKC.
	got, err := Normalize([]string{"ＤＲＡＧＯＮ", "dragon"})
	require.NoError(t, err)
	assert.Equal(t, []string{"dragon"}, got)
}

func TestNormalizeRejectsLongTags(t *testing.T) {
	_, err := Normalize([]string{strings.Repeat("a", MaxLength+1)})
	var tooLong *TooLongError
	require.True(t, errors.As(err, &tooLong))
	assert.Len(t, tooLong.Tag, MaxLength+1)
}

func TestNormalizeRejectsInvalidUTF8(t *testing.T) {
	_, err := Normalize([]string{"boss", "\xff\xfe"})
	var invalid *InvalidError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "\xff\xfe", invalid.Tag)

	_, err = Parse("fire,\xc3")
	require.True(t, errors.As(err, &invalid))
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "night-elf", Canonical("  Night\tElf "))
	assert.Equal(t, "", Canonical("   "))
}
