package models

import id "sprout/pkg/domain"

// Aggregate is the single record built up across all steps and submitted as one
// payload at the end. Scalars live in Fields; repeated groups (milestones, budget
// categories, team members) live in Groups.
type Aggregate struct {
	Fields map[string]any    `json:"fields"`
	Groups map[string]*Group `json:"groups"`
}

// Group is an ordered list of items addressed by stable ItemID, so removal or
// reordering never invalidates a reference held by validation results or the UI.
type Group struct {
	Items []Item `json:"items"`
}

// Item is one record in a repeated group.
type Item struct {
	ID     id.ItemID      `json:"id"`
	Values map[string]any `json:"values"`
}

func NewAggregate() Aggregate {
	return Aggregate{
		Fields: map[string]any{},
		Groups: map[string]*Group{},
	}
}

// Value returns the scalar stored under key.
func (a Aggregate) Value(key string) (any, bool) {
	v, ok := a.Fields[key]
	return v, ok
}

// Group returns the group stored under key, or nil.
func (a Aggregate) Group(key string) *Group {
	return a.Groups[key]
}

func (a Aggregate) Clone() Aggregate {
	out := Aggregate{
		Fields: cloneValues(a.Fields),
		Groups: make(map[string]*Group, len(a.Groups)),
	}
	if out.Fields == nil {
		out.Fields = map[string]any{}
	}
	for k, g := range a.Groups {
		out.Groups[k] = g.Clone()
	}
	return out
}

func (g *Group) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Items)
}

// Find returns the position of the item with the given ID.
func (g *Group) Find(itemID id.ItemID) (int, bool) {
	if g == nil {
		return -1, false
	}
	for i, item := range g.Items {
		if item.ID == itemID {
			return i, true
		}
	}
	return -1, false
}

// Item returns the item with the given ID.
func (g *Group) Item(itemID id.ItemID) (Item, bool) {
	i, ok := g.Find(itemID)
	if !ok {
		return Item{}, false
	}
	return g.Items[i], true
}

func (g *Group) Clone() *Group {
	if g == nil {
		return nil
	}
	out := &Group{Items: make([]Item, len(g.Items))}
	for i, item := range g.Items {
		out.Items[i] = Item{ID: item.ID, Values: cloneValues(item.Values)}
	}
	return out
}

// Sum adds the numeric values of field across all items. Items whose value is
// missing or non-numeric contribute nothing.
func (g *Group) Sum(field string) float64 {
	var total float64
	if g == nil {
		return total
	}
	for _, item := range g.Items {
		if n, ok := Number(item.Values[field]); ok {
			total += n
		}
	}
	return total
}
