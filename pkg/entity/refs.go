package entity

import (
	"regexp"
	"strings"
)

// TaggedObjRef is a bracket-tagged reference embedded in text, of the
// form [objtype:id:name]
type TaggedObjRef struct {
	ObjType string
	ID      string
	Name    string
}

var taggedRefPattern = regexp.MustCompile(`\[([a-z_]+):(.*?):(.*?)\]`)

// TaggedObjRefs extracts every bracket-tagged object reference from a
// block of text
func TaggedObjRefs(text string) []TaggedObjRef {
	matches := taggedRefPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}

	refs := make([]TaggedObjRef, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, TaggedObjRef{
			ObjType: m[1],
			ID:      m[2],
			Name:    m[3],
		})
	}
	return refs
}

// ParseObjRef parses a string that is exactly one tagged reference,
// returning nil when the input is not in [objtype:id:name] form
func ParseObjRef(value string) *TaggedObjRef {
	if !strings.HasPrefix(value, "[") || !strings.HasSuffix(value, "]") {
		return nil
	}
	refs := TaggedObjRefs(value)
	if len(refs) != 1 {
		return nil
	}
	return &refs[0]
}

var unameAllowed = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Slugify converts a display value into unique-name form: lowercase,
// spaces to dashes, & to _and_, @ to _at_, everything else outside
// [A-Za-z0-9._-] stripped.
func Slugify(value string) string {
	s := strings.ToLower(strings.TrimSpace(value))
	s = strings.ReplaceAll(s, " ", "-")
	s = strings.ReplaceAll(s, "&", "_and_")
	s = strings.ReplaceAll(s, "@", "_at_")
	return unameAllowed.ReplaceAllString(s, "")
}
