package inspectcore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTagSet_InsertAndHas(t *testing.T) {
	tags := NewTagSet()
	tags.Insert("bot:curl")
	assert.True(t, tags.Has("bot:curl"))
	assert.False(t, tags.Has("bot:other"))
}

func TestTagSet_InsertQualified(t *testing.T) {
	tags := NewTagSet()
	tags.InsertQualified(TagFamilyCountry, "FR")
	assert.True(t, tags.Has("country:FR"))
}

func TestTagSet_HasAnyHasAll(t *testing.T) {
	tags := NewTagSet()
	tags.Insert("a")
	tags.Insert("b")

	assert.True(t, tags.HasAny([]string{"z", "b"}))
	assert.False(t, tags.HasAny([]string{"y", "z"}))
	assert.True(t, tags.HasAll([]string{"a", "b"}))
	assert.False(t, tags.HasAll([]string{"a", "c"}))
}

func TestTagSet_IntersectIsSorted(t *testing.T) {
	tags := NewTagSet()
	tags.Insert("zeta")
	tags.Insert("alpha")

	hit := tags.Intersect([]string{"zeta", "alpha", "missing"})
	assert.Equal(t, []string{"alpha", "zeta"}, hit)
}

func TestTagSet_CloneIsIndependent(t *testing.T) {
	tags := NewTagSet()
	tags.Insert("a")

	clone := tags.Clone()
	clone.Insert("b")

	assert.False(t, tags.Has("b"))
	assert.True(t, clone.Has("b"))
}

func TestTagSet_DuplicatesCollapse(t *testing.T) {
	tags := NewTagSet()
	tags.Insert("a")
	tags.Insert("a")
	assert.Equal(t, []string{"a"}, tags.Slice())
}
