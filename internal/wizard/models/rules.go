package models

import "regexp"

// RuleKind enumerates single-field rule kinds.
type RuleKind string

const (
	RuleRequired     RuleKind = "required"
	RuleLength       RuleKind = "length"
	RulePattern      RuleKind = "pattern"
	RuleNumericRange RuleKind = "numeric_range"
	RuleOneOf        RuleKind = "one_of"
)

// IsValid checks if the rule kind is one of the supported values.
func (k RuleKind) IsValid() bool {
	switch k {
	case RuleRequired, RuleLength, RulePattern, RuleNumericRange, RuleOneOf:
		return true
	}
	return false
}

// Condition makes a rule applicable only when a sibling value matches.
// Siblings are aggregate scalars for step fields and the item's own values for
// group item fields.
type Condition struct {
	Field  string `yaml:"field" json:"field"`
	Equals any    `yaml:"equals" json:"equals"`
}

// Holds reports whether the condition is met by values. A nil condition always holds.
func (c *Condition) Holds(values map[string]any) bool {
	if c == nil {
		return true
	}
	return Text(values[c.Field]) == Text(c.Equals)
}

// FieldRule is one rule scoped to a single field. Message is shown verbatim.
type FieldRule struct {
	Kind    RuleKind
	Min     *float64 // numeric_range bound, or minimum length
	Max     *float64 // numeric_range bound, or maximum length
	Pattern *regexp.Regexp
	Options []string
	Message string
	When    *Condition
}

// FieldSpec binds rules to one field key.
type FieldSpec struct {
	Key   string
	Label string
	Rules []FieldRule
}

// CrossRuleKind enumerates rules spanning several fields or group items.
type CrossRuleKind string

const (
	// CrossPercentageTotal: sum of Group.ItemField must lie in [Min, Max].
	CrossPercentageTotal CrossRuleKind = "percentage_total"
	// CrossAmountCeiling: sum of Group.ItemField must not exceed Reference × Factor.
	CrossAmountCeiling CrossRuleKind = "amount_ceiling"
	// CrossMaxRatio: Field must not exceed Reference × Factor.
	CrossMaxRatio CrossRuleKind = "max_ratio"
	// CrossGreaterThan: Field must be strictly greater than Reference.
	CrossGreaterThan CrossRuleKind = "greater_than"
)

func (k CrossRuleKind) IsValid() bool {
	switch k {
	case CrossPercentageTotal, CrossAmountCeiling, CrossMaxRatio, CrossGreaterThan:
		return true
	}
	return false
}

// CrossFieldRule is an invariant over more than one field or item.
type CrossFieldRule struct {
	ID        string
	Kind      CrossRuleKind
	Field     string
	Reference string
	Group     string
	ItemField string
	Factor    float64
	Min       float64
	Max       float64
	Message   string
}

// Scope lists the aggregate keys the rule reads.
func (r CrossFieldRule) Scope() []string {
	var keys []string
	for _, k := range []string{r.Field, r.Reference, r.Group} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// DerivedField describes a group item field computed from another:
// Target = round2(Source / aggregate[Base] × Scale). The result is a default the
// user may overwrite.
type DerivedField struct {
	Target string
	Source string
	Base   string
	Scale  float64
}

// GroupSpec describes a repeated group bound to a step.
type GroupSpec struct {
	Key             string
	Label           string
	MinItems        int
	MinItemsMessage string
	Template        map[string]any
	ItemFields      []FieldSpec
	Derived         *DerivedField
}

// ItemField returns the spec for a field of the group's items.
func (g *GroupSpec) ItemField(key string) (*FieldSpec, bool) {
	for i := range g.ItemFields {
		if g.ItemFields[i].Key == key {
			return &g.ItemFields[i], true
		}
	}
	return nil, false
}

// AttachmentSpec binds a file field to MIME and size constraints.
type AttachmentSpec struct {
	Key      string
	Label    string
	Accept   []string // MIME type prefixes, e.g. "image/"
	MaxBytes int64
	Required bool
}
