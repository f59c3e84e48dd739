package groupings

import "context"

// Group is one entry in a grouping field's value set (a status, a
// category, a label)
type Group struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Color     string `json:"color,omitempty"`
	SortOrder int    `json:"sort_order,omitempty"`
	CommitID  int64  `json:"commit_id,omitempty"`
}

// Groupings is the full set of groups for one object type field,
// optionally scoped to a user for private object types
type Groupings struct {
	ObjType   string
	FieldName string
	UserGUID  string

	groups []*Group
}

// New creates an empty grouping set
func New(objType, fieldName, userGUID string) *Groupings {
	return &Groupings{
		ObjType:   objType,
		FieldName: fieldName,
		UserGUID:  userGUID,
	}
}

// Add appends a group to the set
func (g *Groupings) Add(group *Group) {
	g.groups = append(g.groups, group)
}

// GetByID returns the group with the given id, or nil
func (g *Groupings) GetByID(id string) *Group {
	for _, group := range g.groups {
		if group.ID == id {
			return group
		}
	}
	return nil
}

// GetByName returns the group with the given name, or nil
func (g *Groupings) GetByName(name string) *Group {
	for _, group := range g.groups {
		if group.Name == name {
			return group
		}
	}
	return nil
}

// All returns every group in the set
func (g *Groupings) All() []*Group {
	return g.groups
}

// Loader resolves grouping sets. userGUID is empty unless the object
// type is private.
type Loader interface {
	Get(ctx context.Context, objType, fieldName, userGUID string) (*Groupings, error)
}
