// internal/rules/value.go
package rules

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/solatis/displayrules/internal/macros"
	"github.com/solatis/displayrules/internal/types"
)

/*
 * Rule values.
 *
 * A rule's kind is fixed by the entry point that compiles it. Each kind owns
 * parsing from the case's <value> element and rendering as a JavaScript
 * literal, so a case value and the rule default of the same kind always
 * render identically.
 *
 * Kinds:
 *   - Numeric: <value>3.5</value>             -> 3.5
 *   - Color:   <value><color red=.. /></value> -> 'rgb(0, 255, 0)'
 *   - Boolean: <value>true</value>            -> true
 */

// Kind selects the value variant of a rule.
type Kind int

const (
	KindUnspecified Kind = iota
	KindNumeric
	KindColor
	KindBoolean
)

func (k Kind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindColor:
		return "color"
	case KindBoolean:
		return "boolean"
	default:
		return "unspecified"
	}
}

// Value is a typed rule value renderable as a JavaScript literal.
// Implemented only by Numeric, Color and Boolean.
type Value interface {
	Kind() Kind
	JS() string
}

// Numeric is a number literal kept in its document spelling.
type Numeric struct {
	Text string
}

// NumericValue returns the Numeric for v in shortest round-trip form.
// Infinities and NaN use their JavaScript global names.
func NumericValue(v float64) Numeric {
	switch {
	case math.IsNaN(v):
		return Numeric{Text: "NaN"}
	case math.IsInf(v, 1):
		return Numeric{Text: "Infinity"}
	case math.IsInf(v, -1):
		return Numeric{Text: "-Infinity"}
	}
	return Numeric{Text: strconv.FormatFloat(v, 'g', -1, 64)}
}

// decimalLiteral matches numbers that read the same in the document and in
// JavaScript. ParseFloat alone also takes inf, nan, hex floats and underscores.
var decimalLiteral = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

func (Numeric) Kind() Kind { return KindNumeric }

// JS renders the literal text unchanged.
func (n Numeric) JS() string { return n.Text }

// Color is a named RGBA color. Channels are 0..255.
type Color struct {
	Name  string
	Red   int
	Green int
	Blue  int
	Alpha int
}

// RGB returns an opaque unnamed color.
func RGB(red, green, blue int) Color {
	return Color{Red: red, Green: green, Blue: blue, Alpha: 255}
}

func (Color) Kind() Kind { return KindColor }

// JS renders a quoted CSS color usable by the client setters.
func (c Color) JS() string {
	if c.Alpha < 255 {
		alpha := strconv.FormatFloat(float64(c.Alpha)/255, 'g', 3, 64)
		return fmt.Sprintf("'rgba(%d, %d, %d, %s)'", c.Red, c.Green, c.Blue, alpha)
	}
	return fmt.Sprintf("'rgb(%d, %d, %d)'", c.Red, c.Green, c.Blue)
}

// Boolean is a true/false literal.
type Boolean bool

func (Boolean) Kind() Kind { return KindBoolean }

func (b Boolean) JS() string { return strconv.FormatBool(bool(b)) }

// ParseValue parses a case's <value> element as the given kind.
// A nil element reports ErrMissingValue.
func ParseValue(kind Kind, mp macros.Provider, value *etree.Element) (Value, error) {
	switch kind {
	case KindNumeric:
		return parseNumeric(mp, value)
	case KindColor:
		return parseColor(mp, value)
	case KindBoolean:
		return parseBoolean(mp, value)
	default:
		return nil, fmt.Errorf("%w: %v", types.ErrUnsupportedValueKind, kind)
	}
}

func parseNumeric(mp macros.Provider, value *etree.Element) (Numeric, error) {
	if value == nil {
		return Numeric{}, types.ErrMissingValue
	}
	text := strings.TrimSpace(macros.Expand(mp, value.Text()))
	if text == "" {
		return Numeric{}, types.ErrMissingValue
	}
	if !decimalLiteral.MatchString(text) {
		return Numeric{}, fmt.Errorf("%w: %q", types.ErrMalformedNumber, text)
	}
	return Numeric{Text: text}, nil
}

func parseColor(mp macros.Provider, value *etree.Element) (Color, error) {
	if value == nil {
		return Color{}, fmt.Errorf("%w: missing color", types.ErrMissingValue)
	}
	el := value.SelectElement("color")
	if el == nil {
		return Color{}, fmt.Errorf("%w: missing color", types.ErrMissingValue)
	}

	c := Color{Name: el.SelectAttrValue("name", ""), Alpha: 255}
	channels := []struct {
		attr     string
		dest     *int
		optional bool
	}{
		{"red", &c.Red, false},
		{"green", &c.Green, false},
		{"blue", &c.Blue, false},
		{"alpha", &c.Alpha, true},
	}
	for _, ch := range channels {
		attr := el.SelectAttr(ch.attr)
		if attr == nil {
			if ch.optional {
				continue
			}
			return Color{}, fmt.Errorf("%w: missing %s channel", types.ErrMalformedColor, ch.attr)
		}
		text := strings.TrimSpace(macros.Expand(mp, attr.Value))
		n, err := strconv.Atoi(text)
		if err != nil || n < 0 || n > 255 {
			return Color{}, fmt.Errorf("%w: %s channel %q not in 0..255", types.ErrMalformedColor, ch.attr, text)
		}
		*ch.dest = n
	}
	return c, nil
}

func parseBoolean(mp macros.Provider, value *etree.Element) (Boolean, error) {
	if value == nil {
		return false, fmt.Errorf("%w: missing true/false value", types.ErrMissingValue)
	}
	text := strings.TrimSpace(macros.Expand(mp, value.Text()))
	switch strings.ToLower(text) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%w: missing true/false value, got %q", types.ErrMissingValue, text)
	}
}
