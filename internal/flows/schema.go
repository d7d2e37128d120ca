package flows

import "sprout/internal/wizard/models"

// The YAML documents under definitions/ decode into these types before being
// validated and converted into models.Flow.

type flowDoc struct {
	ID         string         `yaml:"id"`
	Title      string         `yaml:"title"`
	Steps      []stepDoc      `yaml:"steps"`
	CrossRules []crossRuleDoc `yaml:"cross_rules"`
	Payload    payloadDoc     `yaml:"payload"`
}

type stepDoc struct {
	ID          string          `yaml:"id"`
	Title       string          `yaml:"title"`
	Fields      []fieldDoc      `yaml:"fields"`
	Groups      []groupDoc      `yaml:"groups"`
	Attachments []attachmentDoc `yaml:"attachments"`
	DependsOn   []string        `yaml:"depends_on"`
	Terminal    bool            `yaml:"terminal"`
}

type fieldDoc struct {
	Key   string    `yaml:"key"`
	Label string    `yaml:"label"`
	Rules []ruleDoc `yaml:"rules"`
}

type ruleDoc struct {
	Kind    string            `yaml:"kind"`
	Min     *float64          `yaml:"min"`
	Max     *float64          `yaml:"max"`
	Pattern string            `yaml:"pattern"`
	Options []string          `yaml:"options"`
	Message string            `yaml:"message"`
	When    *models.Condition `yaml:"when"`
}

type groupDoc struct {
	Key             string         `yaml:"key"`
	Label           string         `yaml:"label"`
	MinItems        int            `yaml:"min_items"`
	MinItemsMessage string         `yaml:"min_items_message"`
	Template        map[string]any `yaml:"template"`
	ItemFields      []fieldDoc     `yaml:"item_fields"`
	Derived         *derivedDoc    `yaml:"derived"`
}

type derivedDoc struct {
	Target string  `yaml:"target"`
	Source string  `yaml:"source"`
	Base   string  `yaml:"base"`
	Scale  float64 `yaml:"scale"`
}

type attachmentDoc struct {
	Key      string   `yaml:"key"`
	Label    string   `yaml:"label"`
	Accept   []string `yaml:"accept"`
	MaxMB    float64  `yaml:"max_mb"`
	MaxBytes int64    `yaml:"max_bytes"`
	Required bool     `yaml:"required"`
}

type crossRuleDoc struct {
	ID        string  `yaml:"id"`
	Kind      string  `yaml:"kind"`
	Field     string  `yaml:"field"`
	Reference string  `yaml:"reference"`
	Group     string  `yaml:"group"`
	ItemField string  `yaml:"item_field"`
	Factor    float64 `yaml:"factor"`
	Min       float64 `yaml:"min"`
	Max       float64 `yaml:"max"`
	Message   string  `yaml:"message"`
}

type payloadDoc struct {
	Flat     []string     `yaml:"flat"`
	Sections []sectionDoc `yaml:"sections"`
}

type sectionDoc struct {
	Name string   `yaml:"name"`
	Keys []string `yaml:"keys"`
}
