package field

import (
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/tax-intake/internal/model"
)

const (
	wireDateLayout = "02/01/2006"
	editDateLayout = "2006-01-02"

	maxCurrencyIntDigits  = 10
	maxCurrencyFracDigits = 2

	clientNameField = model.AttrClientName
	clientIDField   = model.AttrClientID

	// TemporaryReliefField is only valid from ReliefFirstYear onward.
	TemporaryReliefField = "temporaryReliefCredit"
	ReliefFirstYear      = 2024
)

// ErrInvalidDate is returned by Blur when a non-empty date cannot be parsed.
var ErrInvalidDate = eris.New("field: invalid date")

// Spec is everything a renderer needs to build a control for a field.
type Spec struct {
	Name    string   `json:"name"`
	Kind    Kind     `json:"kind"`
	Label   string   `json:"label"`
	TaxCode string   `json:"taxCode,omitempty"`
	Options []string `json:"options,omitempty"`
	Constraints
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithCurrencySymbol overrides the currency glyph.
func WithCurrencySymbol(sym string) Option {
	return func(f *Formatter) { f.symbol = sym }
}

// WithAnonymize masks client name and identification number on display.
func WithAnonymize(on bool) Option {
	return func(f *Formatter) { f.anonymize = on }
}

// WithFriendlyNames replaces the embedded friendly-name catalog.
func WithFriendlyNames(fn *FriendlyNames) Option {
	return func(f *Formatter) { f.names = fn }
}

// Formatter applies the per-kind formatting rules.
type Formatter struct {
	symbol      string
	anonymize   bool
	names       *FriendlyNames
	exceptional map[string]bool
	printer     *message.Printer
}

// NewFormatter creates a Formatter with the embedded catalog and ₪ glyph.
func NewFormatter(opts ...Option) *Formatter {
	f := &Formatter{
		symbol:  "₪",
		names:   DefaultFriendlyNames(),
		printer: message.NewPrinter(language.English),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.exceptional = make(map[string]bool, len(f.names.ExceptionalIntegers))
	for _, n := range f.names.ExceptionalIntegers {
		f.exceptional[n] = true
	}
	return f
}

// IsExceptionalInteger reports whether name is stored as a number but
// edited as a whole number.
func (f *Formatter) IsExceptionalInteger(name string) bool {
	base, _ := SplitTaxCode(name)
	return f.exceptional[base]
}

// Kind classifies a field name.
func (f *Formatter) Kind(name string) Kind {
	return f.KindAs(name, "")
}

// KindAs classifies a field name with an explicit declared kind.
func (f *Formatter) KindAs(name, declared string) Kind {
	return Classify(Subject{Name: name, Declared: declared, Exceptional: f.IsExceptionalInteger(name)})
}

// ItemTypes returns the generic item type vocabulary.
func (f *Formatter) ItemTypes() []string {
	return f.names.ItemTypes
}

// Spec describes the control for name. declared may force a kind.
func (f *Formatter) Spec(name, declared string) Spec {
	k := f.KindAs(name, declared)
	base, code := SplitTaxCode(name)
	s := Spec{
		Name:        name,
		Kind:        k,
		Label:       f.names.Label(name),
		TaxCode:     code,
		Constraints: ConstraintsFor(k),
	}
	switch k {
	case KindOptions:
		s.Options = append([]string(nil), f.names.Options[base].Values...)
	case KindItemType:
		s.Options = append([]string(nil), f.names.ItemTypes...)
	}
	return s
}

// Display converts a wire value into the control value.
func (f *Formatter) Display(k Kind, wire string) string {
	switch k {
	case KindDate:
		if wire == "" {
			return ""
		}
		if t, ok := parseWireDate(wire); ok {
			return t.Format(editDateLayout)
		}
		return wire
	case KindInteger:
		return roundInteger(wire)
	case KindBoolean:
		return strconv.FormatBool(parseBool(wire))
	case KindCurrency:
		return f.FormatCurrency(parseAmount(wire, f.symbol))
	default:
		return wire
	}
}

// Mask applies the display-only anonymization transform. The control
// value is never altered.
func (f *Formatter) Mask(name, value string) string {
	if !f.anonymize || value == "" {
		return value
	}
	switch name {
	case clientNameField:
		r, _ := utf8.DecodeRuneInString(value)
		return string(r) + "***"
	case clientIDField:
		if len(value) <= 4 {
			return strings.Repeat("*", len(value))
		}
		return "*****" + value[len(value)-4:]
	}
	return value
}

// Filter restricts typed input to what the kind accepts.
func (f *Formatter) Filter(k Kind, input string) string {
	c := ConstraintsFor(k)
	switch c.Widget {
	case WidgetText:
		return truncateRunes(input, c.MaxLength)
	case WidgetDigits:
		return truncateRunes(digitsOnly(input), c.MaxLength)
	case WidgetCurrency:
		return filterCurrency(input)
	case WidgetCheckbox:
		return strconv.FormatBool(parseBool(input))
	default:
		return input
	}
}

// Blur normalizes a control value when it loses focus. For an unparsable
// date it returns ErrInvalidDate together with the reset (empty) value.
func (f *Formatter) Blur(k Kind, value string) (string, error) {
	switch k {
	case KindIdentificationNumber, KindNumber:
		v := digitsOnly(value)
		if v == "" {
			return "", nil
		}
		return leftPad(v, ConstraintsFor(k).PadTo), nil
	case KindDate:
		if value == "" {
			return "", nil
		}
		if _, err := time.Parse(editDateLayout, value); err != nil {
			return "", eris.Wrapf(ErrInvalidDate, "%q", value)
		}
		return value, nil
	case KindInteger:
		return roundInteger(value), nil
	case KindCurrency:
		return f.FormatCurrency(parseAmount(value, f.symbol)), nil
	default:
		return value, nil
	}
}

// Wire converts a control value back into its wire value.
func (f *Formatter) Wire(k Kind, value string) string {
	switch k {
	case KindDate:
		if value == "" {
			return ""
		}
		if t, err := time.Parse(editDateLayout, value); err == nil {
			return t.Format(wireDateLayout)
		}
		if t, ok := parseWireDate(value); ok {
			return t.Format(wireDateLayout)
		}
		// Untouched values in a layout we do not know go back as received.
		return value
	case KindInteger:
		v := roundInteger(value)
		if v == "" {
			return "0"
		}
		return v
	case KindBoolean:
		return strconv.FormatBool(parseBool(value))
	case KindCurrency:
		return parseAmount(value, f.symbol).StringFixed(maxCurrencyFracDigits)
	default:
		return value
	}
}

// wireDateLayouts are the date layouts accepted from the server, the
// canonical one first.
var wireDateLayouts = []string{wireDateLayout, "2/1/2006", time.RFC3339, "2006-01-02T15:04:05"}

func parseWireDate(s string) (time.Time, bool) {
	for _, layout := range wireDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Placeholder is the zero value synthesized for a missing catalog field.
func (f *Formatter) Placeholder(k Kind) string {
	switch k {
	case KindCurrency:
		return model.PlaceholderZero
	case KindInteger:
		return "0"
	case KindBoolean:
		return "false"
	default:
		return ""
	}
}

// IsPlaceholder reports whether value is an unfilled zero.
func IsPlaceholder(value string) bool {
	if value == "" {
		return true
	}
	d, err := decimal.NewFromString(value)
	return err == nil && d.IsZero()
}

// Suppressed reports whether a field must be hidden for the given tax
// year: the temporary relief field before it existed, while still zero.
func (f *Formatter) Suppressed(name, taxYear, value string) bool {
	base, _ := SplitTaxCode(name)
	if base != TemporaryReliefField {
		return false
	}
	y, err := strconv.Atoi(taxYear)
	if err != nil || y >= ReliefFirstYear {
		return false
	}
	return IsPlaceholder(value)
}

// FormatCurrency renders an amount with the glyph and thousands separators.
// The amount is never converted to float.
func (f *Formatter) FormatCurrency(d decimal.Decimal) string {
	sign := ""
	if d.Round(maxCurrencyFracDigits).IsNegative() {
		sign = "-"
	}
	fixed := d.Abs().StringFixed(maxCurrencyFracDigits)
	intPart, frac, _ := strings.Cut(fixed, ".")

	var grouped string
	if n, err := strconv.ParseInt(intPart, 10, 64); err == nil {
		grouped = f.printer.Sprintf("%d", n)
	} else {
		grouped = groupThousands(intPart)
	}
	return sign + f.symbol + grouped + "." + frac
}

func groupThousands(digits string) string {
	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// parseAmount strips glyph, separators and spaces and parses the rest.
// Anything unparsable is zero.
func parseAmount(s, symbol string) decimal.Decimal {
	s = strings.ReplaceAll(s, symbol, "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// filterCurrency keeps digits and one decimal point, capping the integer
// and fraction digit counts.
func filterCurrency(input string) string {
	var intPart, fracPart strings.Builder
	seenDot := false
	for _, r := range input {
		switch {
		case r == '.' && !seenDot:
			seenDot = true
		case r >= '0' && r <= '9':
			if seenDot {
				if fracPart.Len() < maxCurrencyFracDigits {
					fracPart.WriteRune(r)
				}
			} else if intPart.Len() < maxCurrencyIntDigits {
				intPart.WriteRune(r)
			}
		}
	}
	if seenDot {
		return intPart.String() + "." + fracPart.String()
	}
	return intPart.String()
}

func roundInteger(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return ""
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return digitsOnly(s)
	}
	return d.Round(0).String()
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "on", "1", "yes":
		return true
	}
	return false
}

func digitsOnly(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) && r < utf8.RuneSelf {
			return r
		}
		return -1
	}, s)
}

func leftPad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
