// Package accumulator merges per-step edits into a session's aggregate.
//
// Every operation is a transition: it takes the current session and returns a
// new one, leaving the input untouched. Data is only written after the
// validation engine accepts the keys being committed.
package accumulator

import (
	"errors"
	"fmt"
	"maps"

	"sprout/internal/wizard/models"
	"sprout/internal/wizard/validation"
	id "sprout/pkg/domain"
	dErrors "sprout/pkg/domain-errors"
)

// Partial is one step's submitted data. Scalar fields map to their values.
// Group keys map to []map[string]any (new items) or []models.Item (items keep
// their IDs) and replace the stored group wholesale.
type Partial map[string]any

// Accumulator applies edits to the aggregate.
type Accumulator struct {
	engine *validation.Engine
}

func New(engine *validation.Engine) (*Accumulator, error) {
	if engine == nil {
		return nil, errors.New("validation engine is required")
	}
	return &Accumulator{engine: engine}, nil
}

// CommitStep validates partial against the step's rules for the committed keys
// and merges it. Scalars overwrite; groups are replaced wholesale. On a failed
// validation the original session is returned with the result and a
// CodeValidation error.
func (a *Accumulator) CommitStep(flow *models.Flow, session *models.Session, stepID models.StepID, partial Partial) (*models.Session, models.ValidationResult, error) {
	if err := editable(session); err != nil {
		return session, models.ValidationResult{}, err
	}
	idx, ok := flow.StepIndex(stepID)
	if !ok {
		return session, models.ValidationResult{}, fmt.Errorf("%w: %s", models.ErrUnknownStep, stepID)
	}
	step := flow.Step(idx)

	for key := range partial {
		if !hasField(step, key) && !hasGroup(step, key) {
			return session, models.ValidationResult{}, fmt.Errorf("%w: %s is not bound to step %s", models.ErrUnknownField, key, stepID)
		}
	}

	next := session.Clone()
	keys := make([]string, 0, len(partial))
	var rebased []string
	for _, key := range step.RequiredFieldKeys() {
		value, present := partial[key]
		if !present {
			continue
		}
		if spec, isGroup := step.Group(key); isGroup {
			items, err := toItems(spec, value)
			if err != nil {
				return session, models.ValidationResult{}, err
			}
			previous := next.Data.Group(key)
			next.Data.Groups[key] = &models.Group{Items: items}
			deriveChanged(spec, previous, next.Data)
		} else {
			if old, had := next.Data.Fields[key]; !had || models.Text(old) != models.Text(value) {
				rebased = append(rebased, key)
			}
			next.Data.Fields[key] = value
		}
		keys = append(keys, key)
	}

	// A changed base (fundingGoal) refreshes every group deriving from it, on
	// whichever step that group lives.
	for _, base := range rebased {
		for _, st := range flow.Steps {
			for i := range st.Groups {
				spec := &st.Groups[i]
				if spec.Derived != nil && spec.Derived.Base == base {
					deriveAll(spec, next.Data)
				}
			}
		}
	}

	res := a.engine.ValidateKeys(step, next.Data, keys)
	if !res.OK() {
		return session, res, res.Err()
	}
	touch(next, stepID)
	return next, res, nil
}

// AddGroupItem appends an item initialized from the group's template. The item
// is not validated until it is edited or its step is validated.
func (a *Accumulator) AddGroupItem(flow *models.Flow, session *models.Session, groupKey string) (*models.Session, id.ItemID, error) {
	if err := editable(session); err != nil {
		return session, id.ItemID{}, err
	}
	spec, step, ok := flow.GroupSpec(groupKey)
	if !ok {
		return session, id.ItemID{}, fmt.Errorf("%w: %s", models.ErrUnknownGroup, groupKey)
	}

	next := session.Clone()
	g := next.Data.Group(groupKey)
	if g == nil {
		g = &models.Group{}
		next.Data.Groups[groupKey] = g
	}
	item := models.Item{ID: id.NewItemID(), Values: maps.Clone(spec.Template)}
	if item.Values == nil {
		item.Values = map[string]any{}
	}
	g.Items = append(g.Items, item)
	touch(next, step.ID)
	return next, item.ID, nil
}

// UpdateGroupItem merges values into one item after validating the edited
// fields. Editing a derived field's source recomputes the derived field unless
// the same edit sets it explicitly.
func (a *Accumulator) UpdateGroupItem(flow *models.Flow, session *models.Session, groupKey string, itemID id.ItemID, values map[string]any) (*models.Session, models.ValidationResult, error) {
	if err := editable(session); err != nil {
		return session, models.ValidationResult{}, err
	}
	spec, step, ok := flow.GroupSpec(groupKey)
	if !ok {
		return session, models.ValidationResult{}, fmt.Errorf("%w: %s", models.ErrUnknownGroup, groupKey)
	}
	for key := range values {
		if _, known := spec.ItemField(key); !known {
			if _, templated := spec.Template[key]; !templated {
				return session, models.ValidationResult{}, fmt.Errorf("%w: %s.%s", models.ErrUnknownField, groupKey, key)
			}
		}
	}

	next := session.Clone()
	g := next.Data.Group(groupKey)
	pos, ok := g.Find(itemID)
	if !ok {
		return session, models.ValidationResult{}, fmt.Errorf("%w: %s in %s", models.ErrUnknownItem, itemID, groupKey)
	}
	item := &g.Items[pos]
	if item.Values == nil {
		item.Values = map[string]any{}
	}
	maps.Copy(item.Values, values)

	if d := spec.Derived; d != nil {
		_, sourceEdited := values[d.Source]
		_, targetEdited := values[d.Target]
		if sourceEdited && !targetEdited {
			derive(d, item, next.Data)
		}
	}

	res := models.ValidationResult{Step: step.ID}
	for _, fe := range a.engine.ValidateItem(spec, *item) {
		if _, edited := values[fe.Field]; edited {
			res.FieldErrors = append(res.FieldErrors, fe)
		}
	}
	if !res.OK() {
		return session, res, res.Err()
	}
	touch(next, step.ID)
	return next, res, nil
}

// RemoveGroupItem deletes an item by ID. Removing the only item of a group
// that requires at least one entry fails with a RemovalError.
func (a *Accumulator) RemoveGroupItem(flow *models.Flow, session *models.Session, groupKey string, itemID id.ItemID) (*models.Session, error) {
	if err := editable(session); err != nil {
		return session, err
	}
	spec, step, ok := flow.GroupSpec(groupKey)
	if !ok {
		return session, fmt.Errorf("%w: %s", models.ErrUnknownGroup, groupKey)
	}
	g := session.Data.Group(groupKey)
	pos, ok := g.Find(itemID)
	if !ok {
		return session, fmt.Errorf("%w: %s in %s", models.ErrUnknownItem, itemID, groupKey)
	}
	if g.Len() == 1 && spec.MinItems >= 1 {
		return session, &models.RemovalError{Group: groupKey, ItemID: itemID}
	}

	next := session.Clone()
	ng := next.Data.Group(groupKey)
	ng.Items = append(ng.Items[:pos], ng.Items[pos+1:]...)
	touch(next, step.ID)
	return next, nil
}

// RecalculateDerived recomputes the derived field of every item in the group.
// Items keep their current value when the base is missing or zero.
func (a *Accumulator) RecalculateDerived(flow *models.Flow, session *models.Session, groupKey string) (*models.Session, error) {
	if err := editable(session); err != nil {
		return session, err
	}
	spec, _, ok := flow.GroupSpec(groupKey)
	if !ok {
		return session, fmt.Errorf("%w: %s", models.ErrUnknownGroup, groupKey)
	}
	if spec.Derived == nil {
		return session, dErrors.New(dErrors.CodeBadRequest, "group "+groupKey+" has no derived field")
	}
	next := session.Clone()
	deriveAll(spec, next.Data)
	return next, nil
}

func editable(session *models.Session) error {
	if session.Locked() {
		return models.ErrSessionLocked
	}
	return nil
}

func touch(session *models.Session, stepID models.StepID) {
	st := session.Steps[stepID]
	st.Touched = true
	session.Steps[stepID] = st
}

func hasField(step *models.StepDefinition, key string) bool {
	_, ok := step.Field(key)
	return ok
}

func hasGroup(step *models.StepDefinition, key string) bool {
	_, ok := step.Group(key)
	return ok
}

// toItems converts submitted group data into items, filling template defaults
// for keys the caller left out.
func toItems(spec *models.GroupSpec, value any) ([]models.Item, error) {
	withDefaults := func(values map[string]any) map[string]any {
		out := maps.Clone(spec.Template)
		if out == nil {
			out = map[string]any{}
		}
		maps.Copy(out, values)
		return out
	}

	switch v := value.(type) {
	case nil:
		return nil, nil
	case []models.Item:
		items := make([]models.Item, len(v))
		for i, item := range v {
			if item.ID.IsNil() {
				item.ID = id.NewItemID()
			}
			items[i] = models.Item{ID: item.ID, Values: withDefaults(item.Values)}
		}
		return items, nil
	case []map[string]any:
		items := make([]models.Item, len(v))
		for i, values := range v {
			items[i] = models.Item{ID: id.NewItemID(), Values: withDefaults(values)}
		}
		return items, nil
	case []any:
		items := make([]models.Item, 0, len(v))
		for _, raw := range v {
			values, ok := raw.(map[string]any)
			if !ok {
				return nil, dErrors.New(dErrors.CodeInvalidInput, "group "+spec.Key+" items must be records")
			}
			items = append(items, models.Item{ID: id.NewItemID(), Values: withDefaults(values)})
		}
		return items, nil
	}
	return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("group %s expects a list of records, got %T", spec.Key, value))
}

// deriveChanged recomputes the derived field for new items and items whose
// source value differs from the stored one.
func deriveChanged(spec *models.GroupSpec, previous *models.Group, agg models.Aggregate) {
	d := spec.Derived
	if d == nil {
		return
	}
	g := agg.Group(spec.Key)
	for i := range g.Items {
		item := &g.Items[i]
		old, existed := previous.Item(item.ID)
		if existed && models.Text(old.Values[d.Source]) == models.Text(item.Values[d.Source]) {
			continue
		}
		derive(d, item, agg)
	}
}

func deriveAll(spec *models.GroupSpec, agg models.Aggregate) {
	g := agg.Group(spec.Key)
	if g == nil {
		return
	}
	for i := range g.Items {
		derive(spec.Derived, &g.Items[i], agg)
	}
}

// derive sets Target = round2(Source / Base × Scale).
func derive(d *models.DerivedField, item *models.Item, agg models.Aggregate) {
	base, ok := models.Number(agg.Fields[d.Base])
	if !ok || base == 0 {
		return
	}
	source, ok := models.Number(item.Values[d.Source])
	if !ok {
		return
	}
	item.Values[d.Target] = models.Round2(source / base * d.Scale)
}
