package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaggedObjRefs(t *testing.T) {
	refs := TaggedObjRefs("assigned to [user:42:Alice], cc [user:uuid-99:Bob] re [customer:7:Acme Corp]")
	assert.Len(t, refs, 3)
	assert.Equal(t, TaggedObjRef{ObjType: "user", ID: "42", Name: "Alice"}, refs[0])
	assert.Equal(t, TaggedObjRef{ObjType: "customer", ID: "7", Name: "Acme Corp"}, refs[2])

	assert.Nil(t, TaggedObjRefs("no references here"))
}

func TestParseObjRef(t *testing.T) {
	ref := ParseObjRef("[task:123:Weekly review]")
	assert.NotNil(t, ref)
	assert.Equal(t, "task", ref.ObjType)
	assert.Equal(t, "123", ref.ID)

	assert.Nil(t, ParseObjRef("task:123:Weekly review"))
	assert.Nil(t, ParseObjRef("[task:1:a] and [task:2:b]"))
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "review-q3-budget", Slugify("Review Q3 Budget"))
	assert.Equal(t, "sales-_and_-marketing", Slugify("Sales & Marketing"))
	assert.Equal(t, "alice_at_example.com", Slugify("alice@example.com"))
	assert.Equal(t, "rocket-launch", Slugify("  Rocket Launch! "))
}
