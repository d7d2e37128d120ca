package flows

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"sprout/internal/wizard/models"
	id "sprout/pkg/domain"
	pstrings "sprout/pkg/platform/strings"
)

const bytesPerMB = 1 << 20

// LoadError reports an invalid flow definition.
type LoadError struct {
	Source  string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

// Parse decodes and validates one YAML flow definition. Unknown keys are
// rejected so a typo in a rule cannot silently disable it.
func Parse(data []byte, source string) (*models.Flow, error) {
	var doc flowDoc
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &LoadError{Source: source, Message: "empty flow definition"}
		}
		return nil, &LoadError{Source: source, Message: err.Error()}
	}

	b := &builder{source: source, keys: map[string]keyKind{}}
	flow, err := b.build(doc)
	if err != nil {
		return nil, err
	}
	return flow, nil
}

type keyKind int

const (
	keyField keyKind = iota + 1
	keyGroup
	keyAttachment
)

type builder struct {
	source string
	keys   map[string]keyKind
}

func (b *builder) fail(format string, args ...any) error {
	return &LoadError{Source: b.source, Message: fmt.Sprintf(format, args...)}
}

func (b *builder) build(doc flowDoc) (*models.Flow, error) {
	flowID, err := id.ParseFlowID(doc.ID)
	if err != nil {
		return nil, b.fail("%v", err)
	}
	if len(doc.Steps) == 0 {
		return nil, b.fail("flow %s declares no steps", flowID)
	}

	flow := &models.Flow{ID: flowID, Title: doc.Title}
	seen := map[models.StepID]bool{}
	for i, sd := range doc.Steps {
		step, err := b.step(sd, seen)
		if err != nil {
			return nil, err
		}
		if step.Terminal && i != len(doc.Steps)-1 {
			return nil, b.fail("step %s: only the last step may be terminal", step.ID)
		}
		seen[step.ID] = true
		flow.Steps = append(flow.Steps, step)
	}

	// Conditions and derived bases may reference fields declared on later steps,
	// so they are checked once every key is known.
	for _, st := range flow.Steps {
		if err := b.checkReferences(st); err != nil {
			return nil, err
		}
	}

	ruleIDs := map[string]bool{}
	for _, cd := range doc.CrossRules {
		rule, err := b.crossRule(cd, flow)
		if err != nil {
			return nil, err
		}
		if ruleIDs[rule.ID] {
			return nil, b.fail("duplicate cross rule %s", rule.ID)
		}
		ruleIDs[rule.ID] = true
		flow.CrossRules = append(flow.CrossRules, rule)
	}

	payload, err := b.payload(doc.Payload)
	if err != nil {
		return nil, err
	}
	flow.Payload = payload
	return flow, nil
}

func (b *builder) step(sd stepDoc, earlier map[models.StepID]bool) (models.StepDefinition, error) {
	stepID := models.StepID(strings.TrimSpace(sd.ID))
	if stepID == "" {
		return models.StepDefinition{}, b.fail("step id cannot be empty")
	}
	if earlier[stepID] {
		return models.StepDefinition{}, b.fail("duplicate step %s", stepID)
	}

	st := models.StepDefinition{ID: stepID, Title: sd.Title, Terminal: sd.Terminal}
	if st.Terminal && (len(sd.Fields) > 0 || len(sd.Groups) > 0 || len(sd.Attachments) > 0) {
		return st, b.fail("step %s: a terminal step carries no data", stepID)
	}

	for _, dep := range sd.DependsOn {
		if !earlier[models.StepID(dep)] {
			return st, b.fail("step %s depends on %q, which is not an earlier step", stepID, dep)
		}
		st.DependsOn = append(st.DependsOn, models.StepID(dep))
	}

	for _, fd := range sd.Fields {
		spec, err := b.field(fd, string(stepID))
		if err != nil {
			return st, err
		}
		if err := b.claim(spec.Key, keyField); err != nil {
			return st, err
		}
		st.Fields = append(st.Fields, spec)
	}

	for _, gd := range sd.Groups {
		g, err := b.group(gd)
		if err != nil {
			return st, err
		}
		if err := b.claim(g.Key, keyGroup); err != nil {
			return st, err
		}
		st.Groups = append(st.Groups, g)
	}

	for _, ad := range sd.Attachments {
		a, err := b.attachment(ad)
		if err != nil {
			return st, err
		}
		if err := b.claim(a.Key, keyAttachment); err != nil {
			return st, err
		}
		st.Attachments = append(st.Attachments, a)
	}
	return st, nil
}

func (b *builder) claim(key string, kind keyKind) error {
	if _, taken := b.keys[key]; taken {
		return b.fail("key %s is declared more than once", key)
	}
	b.keys[key] = kind
	return nil
}

func (b *builder) field(fd fieldDoc, scope string) (models.FieldSpec, error) {
	key := strings.TrimSpace(fd.Key)
	if key == "" {
		return models.FieldSpec{}, b.fail("%s: field key cannot be empty", scope)
	}
	spec := models.FieldSpec{Key: key, Label: fd.Label}
	for _, rd := range fd.Rules {
		rule, err := b.rule(rd, scope+"."+key)
		if err != nil {
			return spec, err
		}
		spec.Rules = append(spec.Rules, rule)
	}
	return spec, nil
}

func (b *builder) rule(rd ruleDoc, where string) (models.FieldRule, error) {
	kind := models.RuleKind(rd.Kind)
	if !kind.IsValid() {
		return models.FieldRule{}, b.fail("%s: unknown rule kind %q", where, rd.Kind)
	}
	rule := models.FieldRule{
		Kind:    kind,
		Min:     rd.Min,
		Max:     rd.Max,
		Options: rd.Options,
		Message: rd.Message,
		When:    rd.When,
	}

	switch kind {
	case models.RuleLength, models.RuleNumericRange:
		if rd.Min == nil && rd.Max == nil {
			return rule, b.fail("%s: %s rule needs min or max", where, kind)
		}
		if rd.Min != nil && rd.Max != nil && *rd.Min > *rd.Max {
			return rule, b.fail("%s: min %v exceeds max %v", where, *rd.Min, *rd.Max)
		}
	case models.RulePattern:
		if rd.Pattern == "" {
			return rule, b.fail("%s: pattern rule needs a pattern", where)
		}
		re, err := regexp.Compile(rd.Pattern)
		if err != nil {
			return rule, b.fail("%s: invalid pattern: %v", where, err)
		}
		rule.Pattern = re
	case models.RuleOneOf:
		if len(rd.Options) == 0 {
			return rule, b.fail("%s: one_of rule needs options", where)
		}
	}

	if rd.When != nil && strings.TrimSpace(rd.When.Field) == "" {
		return rule, b.fail("%s: condition needs a field", where)
	}
	return rule, nil
}

func (b *builder) group(gd groupDoc) (models.GroupSpec, error) {
	key := strings.TrimSpace(gd.Key)
	if key == "" {
		return models.GroupSpec{}, b.fail("group key cannot be empty")
	}
	if gd.MinItems < 0 {
		return models.GroupSpec{}, b.fail("group %s: min_items cannot be negative", key)
	}
	g := models.GroupSpec{
		Key:             key,
		Label:           gd.Label,
		MinItems:        gd.MinItems,
		MinItemsMessage: gd.MinItemsMessage,
		Template:        gd.Template,
	}
	if g.Template == nil {
		g.Template = map[string]any{}
	}

	itemKeys := map[string]bool{}
	for _, fd := range gd.ItemFields {
		spec, err := b.field(fd, key)
		if err != nil {
			return g, err
		}
		if itemKeys[spec.Key] {
			return g, b.fail("group %s: item field %s declared twice", key, spec.Key)
		}
		itemKeys[spec.Key] = true
		g.ItemFields = append(g.ItemFields, spec)
	}
	for k := range g.Template {
		itemKeys[k] = true
	}

	for _, f := range g.ItemFields {
		for _, r := range f.Rules {
			if r.When != nil && !itemKeys[r.When.Field] {
				return g, b.fail("group %s: condition on %s references unknown item field %s", key, f.Key, r.When.Field)
			}
		}
	}

	if d := gd.Derived; d != nil {
		if !itemKeys[d.Target] || !itemKeys[d.Source] {
			return g, b.fail("group %s: derived field references unknown item fields", key)
		}
		if d.Base == "" {
			return g, b.fail("group %s: derived field needs a base", key)
		}
		scale := d.Scale
		if scale == 0 {
			scale = 1
		}
		g.Derived = &models.DerivedField{Target: d.Target, Source: d.Source, Base: d.Base, Scale: scale}
	}
	return g, nil
}

func (b *builder) attachment(ad attachmentDoc) (models.AttachmentSpec, error) {
	key := strings.TrimSpace(ad.Key)
	if key == "" {
		return models.AttachmentSpec{}, b.fail("attachment key cannot be empty")
	}
	accept := pstrings.MIMEPrefixes(ad.Accept)
	if len(accept) == 0 {
		return models.AttachmentSpec{}, b.fail("attachment %s accepts no MIME types", key)
	}
	limit := ad.MaxBytes
	if limit == 0 {
		limit = int64(ad.MaxMB * bytesPerMB)
	}
	if limit <= 0 {
		return models.AttachmentSpec{}, b.fail("attachment %s needs a positive size ceiling", key)
	}
	return models.AttachmentSpec{
		Key:      key,
		Label:    ad.Label,
		Accept:   accept,
		MaxBytes: limit,
		Required: ad.Required,
	}, nil
}

func (b *builder) checkReferences(st models.StepDefinition) error {
	for _, f := range st.Fields {
		for _, r := range f.Rules {
			if r.When != nil && b.keys[r.When.Field] != keyField {
				return b.fail("step %s: condition on %s references unknown field %s", st.ID, f.Key, r.When.Field)
			}
		}
	}
	for _, g := range st.Groups {
		if g.Derived != nil && b.keys[g.Derived.Base] != keyField {
			return b.fail("group %s: derived base %s is not a field", g.Key, g.Derived.Base)
		}
	}
	return nil
}

func (b *builder) crossRule(cd crossRuleDoc, flow *models.Flow) (models.CrossFieldRule, error) {
	rule := models.CrossFieldRule{
		ID:        strings.TrimSpace(cd.ID),
		Kind:      models.CrossRuleKind(cd.Kind),
		Field:     cd.Field,
		Reference: cd.Reference,
		Group:     cd.Group,
		ItemField: cd.ItemField,
		Factor:    cd.Factor,
		Min:       cd.Min,
		Max:       cd.Max,
		Message:   cd.Message,
	}
	if rule.ID == "" {
		return rule, b.fail("cross rule id cannot be empty")
	}
	if !rule.Kind.IsValid() {
		return rule, b.fail("cross rule %s: unknown kind %q", rule.ID, cd.Kind)
	}
	if rule.Message == "" {
		return rule, b.fail("cross rule %s: message cannot be empty", rule.ID)
	}

	switch rule.Kind {
	case models.CrossMaxRatio, models.CrossGreaterThan:
		if b.keys[rule.Field] != keyField || b.keys[rule.Reference] != keyField {
			return rule, b.fail("cross rule %s: field and reference must be declared fields", rule.ID)
		}
		if rule.Kind == models.CrossMaxRatio && rule.Factor <= 0 {
			return rule, b.fail("cross rule %s: factor must be positive", rule.ID)
		}
	case models.CrossPercentageTotal, models.CrossAmountCeiling:
		spec, _, ok := flow.GroupSpec(rule.Group)
		if !ok {
			return rule, b.fail("cross rule %s: unknown group %s", rule.ID, rule.Group)
		}
		if _, ok := spec.ItemField(rule.ItemField); !ok {
			return rule, b.fail("cross rule %s: unknown item field %s", rule.ID, rule.ItemField)
		}
		if rule.Kind == models.CrossPercentageTotal && rule.Min > rule.Max {
			return rule, b.fail("cross rule %s: min %v exceeds max %v", rule.ID, rule.Min, rule.Max)
		}
		if rule.Kind == models.CrossAmountCeiling {
			if b.keys[rule.Reference] != keyField {
				return rule, b.fail("cross rule %s: reference must be a declared field", rule.ID)
			}
			if rule.Factor <= 0 {
				return rule, b.fail("cross rule %s: factor must be positive", rule.ID)
			}
		}
	}
	return rule, nil
}

func (b *builder) payload(pd payloadDoc) (models.PayloadLayout, error) {
	if len(pd.Flat) == 0 && len(pd.Sections) == 0 {
		return models.PayloadLayout{}, b.fail("payload layout is empty")
	}
	placed := map[string]bool{}
	place := func(key string) error {
		if _, ok := b.keys[key]; !ok {
			return b.fail("payload references unknown key %s", key)
		}
		if placed[key] {
			return b.fail("payload places %s more than once", key)
		}
		placed[key] = true
		return nil
	}

	layout := models.PayloadLayout{}
	for _, key := range pd.Flat {
		if err := place(key); err != nil {
			return layout, err
		}
		layout.Flat = append(layout.Flat, key)
	}
	names := map[string]bool{}
	for _, sd := range pd.Sections {
		if sd.Name == "" || names[sd.Name] {
			return layout, b.fail("payload section name %q is empty or repeated", sd.Name)
		}
		names[sd.Name] = true
		for _, key := range sd.Keys {
			if err := place(key); err != nil {
				return layout, err
			}
		}
		layout.Sections = append(layout.Sections, models.PayloadSection{Name: sd.Name, Keys: sd.Keys})
	}
	return layout, nil
}
