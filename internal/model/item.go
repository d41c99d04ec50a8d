package model

// Child field names.
const (
	ChildBirthDate           = "birthDate"
	ChildHomeChild           = "homeChildBoolean"
	ChildAllowanceFromParent = "parentAllowanceBoolean"
	ChildDisabled            = "disabledChildBoolean"
	ChildSharedCustody       = "sharedCustodyBoolean"
)

// Generic item field names.
const (
	GenericType        = "genericFieldType"
	GenericValue       = "value"
	GenericExplanation = "explanationText"
)

// NeutralGenericType is the type selector of a freshly added generic item.
const NeutralGenericType = "NONE"

// ChildFieldNames lists the child sub-record fields in render order.
var ChildFieldNames = []string{
	ChildBirthDate,
	ChildHomeChild,
	ChildAllowanceFromParent,
	ChildDisabled,
	ChildSharedCustody,
}

// GenericFieldNames lists the generic item fields in render order.
var GenericFieldNames = []string{
	GenericType,
	GenericValue,
	GenericExplanation,
}

// Child is a dependent declared on a form that supports children.
type Child struct {
	BirthDate              string `json:"birthDate"`
	HomeChildBoolean       Value  `json:"homeChildBoolean"`
	ParentAllowanceBoolean Value  `json:"parentAllowanceBoolean"`
	DisabledChildBoolean   Value  `json:"disabledChildBoolean"`
	SharedCustodyBoolean   Value  `json:"sharedCustodyBoolean"`
}

// NewChild returns the default child template.
func NewChild() Child {
	return Child{
		HomeChildBoolean:       "true",
		ParentAllowanceBoolean: "false",
		DisabledChildBoolean:   "false",
		SharedCustodyBoolean:   "false",
	}
}

// Get returns a child field by name.
func (c *Child) Get(name string) string {
	switch name {
	case ChildBirthDate:
		return c.BirthDate
	case ChildHomeChild:
		return string(c.HomeChildBoolean)
	case ChildAllowanceFromParent:
		return string(c.ParentAllowanceBoolean)
	case ChildDisabled:
		return string(c.DisabledChildBoolean)
	case ChildSharedCustody:
		return string(c.SharedCustodyBoolean)
	}
	return ""
}

// Set writes a child field by name.
func (c *Child) Set(name, value string) {
	switch name {
	case ChildBirthDate:
		c.BirthDate = value
	case ChildHomeChild:
		c.HomeChildBoolean = Value(value)
	case ChildAllowanceFromParent:
		c.ParentAllowanceBoolean = Value(value)
	case ChildDisabled:
		c.DisabledChildBoolean = Value(value)
	case ChildSharedCustody:
		c.SharedCustodyBoolean = Value(value)
	}
}

// GenericField is a free-form entry whose meaning is given by its type.
type GenericField struct {
	GenericFieldType string `json:"genericFieldType"`
	Value            Value  `json:"value"`
	ExplanationText  string `json:"explanationText"`
}

// NewGenericField returns the default generic item.
func NewGenericField() GenericField {
	return GenericField{
		GenericFieldType: NeutralGenericType,
		Value:            PlaceholderZero,
	}
}

// Get returns a generic item field by name.
func (g *GenericField) Get(name string) string {
	switch name {
	case GenericType:
		return g.GenericFieldType
	case GenericValue:
		return string(g.Value)
	case GenericExplanation:
		return g.ExplanationText
	}
	return ""
}

// Set writes a generic item field by name.
func (g *GenericField) Set(name, value string) {
	switch name {
	case GenericType:
		g.GenericFieldType = value
	case GenericValue:
		g.Value = Value(value)
	case GenericExplanation:
		g.ExplanationText = value
	}
}
