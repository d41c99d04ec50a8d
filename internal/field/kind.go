// Package field classifies form fields by their naming convention and
// converts values between wire form and edit form.
package field

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Kind is the formatting family of a field.
type Kind int

const (
	KindName Kind = iota
	KindText
	KindIdentificationNumber
	KindNumber
	KindTaxYear
	KindCode
	KindDate
	KindMonths
	KindInteger
	KindBoolean
	KindOptions
	KindItemType
	KindDocumentType
	KindCurrency
)

var kindNames = map[Kind]string{
	KindName:                 "name",
	KindText:                 "text",
	KindIdentificationNumber: "identification_number",
	KindNumber:               "number",
	KindTaxYear:              "tax_year",
	KindCode:                 "code",
	KindDate:                 "date",
	KindMonths:               "months",
	KindInteger:              "integer",
	KindBoolean:              "boolean",
	KindOptions:              "options",
	KindItemType:             "item_type",
	KindDocumentType:         "document_type",
	KindCurrency:             "currency",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// MarshalText renders the kind by name in JSON views.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *Kind) UnmarshalText(b []byte) error {
	for kind, name := range kindNames {
		if name == string(b) {
			*k = kind
			return nil
		}
	}
	return eris.Errorf("field: unknown kind %q", string(b))
}

// DeclaredInteger is the declared kind that forces integer formatting
// regardless of the field name.
const DeclaredInteger = "Integer"

// Subject is what a rule inspects.
type Subject struct {
	Name        string
	Declared    string
	Exceptional bool
}

// Rule maps a predicate to a kind. Rules are evaluated in order and the
// first match wins; several suffixes can co-occur, so order matters.
type Rule struct {
	Name  string
	Match func(s Subject) bool
	Kind  Kind
}

func suffix(sfx string) func(Subject) bool {
	return func(s Subject) bool { return strings.HasSuffix(s.Name, sfx) }
}

// Rules is the classification table.
var Rules = []Rule{
	{Name: "name", Match: suffix("Name"), Kind: KindName},
	{Name: "text", Match: suffix("Text"), Kind: KindText},
	{Name: "identification-number", Match: suffix("IdentificationNumber"), Kind: KindIdentificationNumber},
	{Name: "number", Match: suffix("Number"), Kind: KindNumber},
	{Name: "tax-year", Match: suffix("taxYear"), Kind: KindTaxYear},
	{Name: "code", Match: suffix("Code"), Kind: KindCode},
	{Name: "date", Match: suffix("Date"), Kind: KindDate},
	{Name: "months", Match: suffix("Months"), Kind: KindMonths},
	{Name: "integer", Match: func(s Subject) bool {
		return strings.HasSuffix(s.Name, "Integer") || s.Exceptional || s.Declared == DeclaredInteger
	}, Kind: KindInteger},
	{Name: "boolean", Match: suffix("Boolean"), Kind: KindBoolean},
	{Name: "options", Match: suffix("Options"), Kind: KindOptions},
	{Name: "item-type", Match: func(s Subject) bool {
		for _, sfx := range ItemTypeSuffixes {
			if strings.HasSuffix(s.Name, sfx) {
				return true
			}
		}
		return false
	}, Kind: KindItemType},
	{Name: "document-type", Match: func(s Subject) bool { return s.Name == "documentType" }, Kind: KindDocumentType},
}

// ItemTypeSuffixes are the type-selector keys of generic items.
var ItemTypeSuffixes = []string{"FieldType", "ItemType"}

// Classify returns the kind of the subject; currency when nothing matches.
func Classify(s Subject) Kind {
	s.Name, _ = SplitTaxCode(s.Name)
	for _, r := range Rules {
		if r.Match(s) {
			return r.Kind
		}
	}
	return KindCurrency
}

// SplitTaxCode separates the trailing tax-code annotation from a field
// name: "salary_158_172" yields ("salary", "158/172").
func SplitTaxCode(name string) (base, code string) {
	i := strings.Index(name, "_")
	if i < 0 {
		return name, ""
	}
	codes := strings.Split(name[i+1:], "_")
	return name[:i], strings.Join(codes, "/")
}

// Widget is the edit control used for a kind.
type Widget string

const (
	WidgetText     Widget = "text"
	WidgetDigits   Widget = "digits"
	WidgetDate     Widget = "date"
	WidgetCheckbox Widget = "checkbox"
	WidgetRadio    Widget = "radio"
	WidgetSelect   Widget = "select"
	WidgetReadOnly Widget = "readonly"
	WidgetCurrency Widget = "currency"
)

// Constraints describes how a kind is edited.
type Constraints struct {
	Widget    Widget `json:"widget"`
	MaxLength int    `json:"maxLength,omitempty"`
	PadTo     int    `json:"padTo,omitempty"`
	ReadOnly  bool   `json:"readOnly,omitempty"`
}

// ConstraintsFor returns the edit constraints of a kind.
func ConstraintsFor(k Kind) Constraints {
	switch k {
	case KindName:
		return Constraints{Widget: WidgetText, MaxLength: 30}
	case KindText:
		return Constraints{Widget: WidgetText, MaxLength: 100}
	case KindIdentificationNumber:
		return Constraints{Widget: WidgetDigits, MaxLength: 9, PadTo: 9}
	case KindNumber:
		return Constraints{Widget: WidgetDigits, MaxLength: 9, PadTo: 9}
	case KindTaxYear:
		return Constraints{Widget: WidgetDigits, MaxLength: 4}
	case KindCode:
		return Constraints{Widget: WidgetDigits, MaxLength: 3}
	case KindDate:
		return Constraints{Widget: WidgetDate}
	case KindMonths:
		return Constraints{Widget: WidgetDigits, MaxLength: 2}
	case KindInteger:
		return Constraints{Widget: WidgetDigits, MaxLength: 10}
	case KindBoolean:
		return Constraints{Widget: WidgetCheckbox}
	case KindOptions:
		return Constraints{Widget: WidgetRadio}
	case KindItemType:
		return Constraints{Widget: WidgetSelect}
	case KindDocumentType:
		return Constraints{Widget: WidgetReadOnly, ReadOnly: true}
	default:
		return Constraints{Widget: WidgetCurrency}
	}
}
