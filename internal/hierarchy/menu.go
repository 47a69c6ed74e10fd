package hierarchy

// HomepagePath is the menu path that never takes part in the hierarchy
const HomepagePath = "homepage"

// Rule types
const (
	RuleContentType = "contenttype"
	RuleQuery       = "query"
)

// Menu is one named menu definition
type Menu struct {
	Name  string     `yaml:"name" json:"name"`
	Items []MenuItem `yaml:"items" json:"items"`
}

// MenuItem is one entry of a menu. Only items whose Path resolves to content
// take part in the hierarchy; Link-only items are ignored.
type MenuItem struct {
	Label   string     `yaml:"label,omitempty" json:"label,omitempty"`
	Title   string     `yaml:"title,omitempty" json:"title,omitempty"`
	Path    string     `yaml:"path,omitempty" json:"path,omitempty"`
	Link    string     `yaml:"link,omitempty" json:"link,omitempty"`
	Slug    string     `yaml:"slug,omitempty" json:"slug,omitempty"` // used when slugs may be overridden
	Submenu []MenuItem `yaml:"submenu,omitempty" json:"submenu,omitempty"`
}

// Rule adds nodes or permissions below a parent that the menu cannot express
type Rule struct {
	Type   string     `yaml:"type" mapstructure:"type" validate:"required,oneof=contenttype query"`
	Params RuleParams `yaml:"params" mapstructure:"params"`
}

// RuleParams holds the parameters of a Rule. Parent is a content path.
// Slug names the content type of a contenttype rule; Query and Parameters
// drive a query rule.
type RuleParams struct {
	Parent     string         `yaml:"parent" mapstructure:"parent" validate:"required"`
	Slug       string         `yaml:"slug,omitempty" mapstructure:"slug"`
	Query      string         `yaml:"query,omitempty" mapstructure:"query"`
	Parameters map[string]any `yaml:"parameters,omitempty" mapstructure:"parameters"`
}
