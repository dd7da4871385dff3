package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlideJSONOmitsEphemeralFlags(t *testing.T) {
	s := Slide{ID: "a", Title: "T", IsGenerating: true, GenerationFailed: false}
	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "IsGenerating")
	assert.NotContains(t, string(b), "isGenerating")

	var back Slide
	require.NoError(t, json.Unmarshal(b, &back))
	assert.False(t, back.IsGenerating)
	assert.Equal(t, "T", back.Title)
}

func TestParseLayout(t *testing.T) {
	assert.Equal(t, LayoutSplitLeft, ParseLayout(" Split-Left "))
	assert.Equal(t, LayoutCenter, ParseLayout("spiral"))
	assert.Len(t, Layouts, 9)
}

func TestSameContentIgnoresImageAndFlags(t *testing.T) {
	a := Slide{ID: "x", Title: "t", Body: "b"}
	b := a
	b.Image = "img"
	b.IsGenerating = true
	assert.True(t, a.SameContent(b))
	b.Title = "other"
	assert.False(t, a.SameContent(b))
}

func TestDraftToSlide(t *testing.T) {
	s := SlideDraft{Title: " Hello ", Content: "one\ntwo\n\n", VisualDescription: "sky", Layout: "diagonal"}.ToSlide()
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, "Hello", s.Title)
	assert.Equal(t, []string{"one", "two"}, s.Points())
	assert.Equal(t, LayoutDiagonal, s.Layout)
}

func TestSlideIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		id := NewSlideID()
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestCloneSlidesDoesNotAlias(t *testing.T) {
	in := []Slide{{ID: "a", Title: "one"}}
	out := CloneSlides(in)
	out[0].Title = "two"
	assert.Equal(t, "one", in[0].Title)
	assert.Nil(t, CloneSlides(nil))
}
