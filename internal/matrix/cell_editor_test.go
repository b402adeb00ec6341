package matrix

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFixedOptionEditorWithoutOptionsIsDisabled(t *testing.T) {
	calls := 0
	e := NewFixedOptionEditor("", nil, func(string) error {
		calls++
		return nil
	})
	require.True(t, e.Disabled())
	require.Equal(t, "No options available", e.Placeholder())

	e.SetDisabled(false)
	require.True(t, e.Disabled())

	require.ErrorIs(t, e.Choose("anything"), ErrEditorDisabled)
	require.ErrorIs(t, e.Submit("anything"), ErrEditorDisabled)
	require.ErrorIs(t, e.Clear(), ErrEditorDisabled)
	require.Zero(t, calls)
}

func TestFixedOptionEditorChoose(t *testing.T) {
	var got []string
	e := NewFixedOptionEditor("", BinOptions(testResources().bins), func(v string) error {
		got = append(got, v)
		return nil
	})
	require.Equal(t, ModeFixedOption, e.Mode())
	require.Equal(t, "Select...", e.Placeholder())

	require.ErrorIs(t, e.Choose("Medium"), ErrOptionNotAllowed)
	require.NoError(t, e.Choose("Large"))
	require.NoError(t, e.Clear())
	require.Equal(t, []string{"Large", ""}, got)
	require.Equal(t, "", e.Value())

	require.Equal(t, []Option{{Value: "Large", Label: "Large"}}, e.Choices("lar", 0))
	require.Len(t, e.Choices("", 1), 1)
}

func TestProductOptionsLabelSKUAndName(t *testing.T) {
	opts := ProductOptions(testResources().products)
	require.Equal(t, Option{Value: "SKU-1", Label: "SKU-1 - Bolts"}, opts[0])
}

func TestFreeEntryEditorSubmitAddsSuggestion(t *testing.T) {
	s := BuildSuggestions([]string{"Bolts", "Nuts"})
	var got string
	e := NewFreeEntryEditor("", s, func(v string) error {
		got = v
		return nil
	})

	require.NoError(t, e.Submit("  Washers "))
	require.Equal(t, "Washers", got)
	require.Equal(t, "Washers", e.Value())
	require.True(t, s.Contains("washers"))

	choices := e.Choices("wa", 5)
	require.Equal(t, []Option{{Value: "Washers", Label: "Washers"}}, choices)
}

func TestEditorKeepsValueWhenChangeFails(t *testing.T) {
	e := NewFreeEntryEditor("old", nil, func(string) error { return ErrNotEditing })
	require.ErrorIs(t, e.Submit("new"), ErrNotEditing)
	require.Equal(t, "old", e.Value())
}

func TestSuggestionsDeduplicateCaseInsensitively(t *testing.T) {
	s := BuildSuggestions([]string{"bolt", "Bolt", "", "  ", "nut", "Anchor bolt"})
	require.Equal(t, []string{"Anchor bolt", "bolt", "nut"}, s.List())
	require.False(t, s.Add("NUT"))
	require.True(t, s.Add("Nail"))
}

func TestSuggestionsMatchPrefixFirst(t *testing.T) {
	s := BuildSuggestions([]string{"Anchor bolt", "bolt", "Bolt cutter", "nut"})
	require.Equal(t, []string{"Bolt cutter", "bolt", "Anchor bolt"}, s.Match("BOLT", 0))
	require.Equal(t, []string{"Bolt cutter"}, s.Match("bolt", 1))
	require.Len(t, s.Match("", 0), 4)
}
