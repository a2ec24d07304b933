package display

import (
	"errors"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/solatis/displayrules/internal/macros"
	"github.com/solatis/displayrules/internal/rules"
)

type colorProperty struct {
	name     string
	update   string
	fallback rules.Color
}

type numericProperty struct {
	name     string
	update   string
	fallback float64
}

// widgetRules lists the rule-capable properties of a widget type beyond
// "visible", which every widget supports.
type widgetRules struct {
	colors   []colorProperty
	numerics []numericProperty
}

var (
	shapeRules = widgetRules{
		colors: []colorProperty{
			{"background_color", "set_svg_background_color", rules.RGB(30, 144, 255)},
		},
	}
	textRules = widgetRules{
		colors: []colorProperty{
			{"background_color", "set_background_color", rules.RGB(255, 255, 255)},
			{"foreground_color", "set_foreground_color", rules.RGB(0, 0, 0)},
		},
	}
	rangeRules = widgetRules{
		numerics: []numericProperty{
			{"minimum", "set_minimum", 0},
			{"maximum", "set_maximum", 100},
		},
	}
)

var rulesByType = map[string]widgetRules{
	"rectangle":   shapeRules,
	"ellipse":     shapeRules,
	"label":       textRules,
	"textupdate":  textRules,
	"progressbar": rangeRules,
	"tank":        rangeRules,
	"meter":       rangeRules,
}

// Compiler compiles the rules of a display's widgets into one page.
type Compiler struct {
	page   *rules.Page
	logger *zap.Logger
}

// NewCompiler binds a compiler to page. A nil logger discards output.
func NewCompiler(page *rules.Page, logger *zap.Logger) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{page: page, logger: logger}
}

// Compile compiles every widget of d in document order. Rule failures do not
// stop compilation; they are returned joined.
func (c *Compiler) Compile(d *Display) error {
	var errs []error
	_ = d.Walk(func(w *Widget) error {
		if err := c.CompileWidget(w); err != nil {
			errs = append(errs, err)
		}
		return nil
	})
	return errors.Join(errs...)
}

// CompileWidget compiles the rules of one widget: visibility first, then the
// properties its type supports.
func (c *Compiler) CompileWidget(w *Widget) error {
	var errs []error

	visible := !strings.EqualFold(macros.Expand(w.Macros, childText(w.Element, "visible")), "false")
	if err := c.page.CompileVisibilityRule(w.Macros, w.Element, w, visible); err != nil {
		errs = append(errs, err)
	}

	supported := rulesByType[w.Type]
	for _, prop := range supported.colors {
		fallback := c.colorDefault(w, prop)
		if err := c.page.CompileColorRule(w.Macros, w.Element, w, prop.name, fallback, prop.update); err != nil {
			errs = append(errs, err)
		}
	}
	for _, prop := range supported.numerics {
		fallback := c.numericDefault(w, prop)
		if err := c.page.CompileNumericRule(w.Macros, w.Element, w, prop.name, fallback, prop.update); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// colorDefault reads <prop><color .../></prop>. A malformed color is logged
// and replaced by the type's built-in default.
func (c *Compiler) colorDefault(w *Widget, prop colorProperty) rules.Color {
	el := w.Element.SelectElement(prop.name)
	if el == nil {
		return prop.fallback
	}
	v, err := rules.ParseValue(rules.KindColor, w.Macros, el)
	if err != nil {
		c.invalidDefault(w, prop.name, el, err)
		return prop.fallback
	}
	return v.(rules.Color)
}

// numericDefault reads <prop>N</prop> with the same decimal rules as case
// values; anything else is logged and replaced by the built-in default.
func (c *Compiler) numericDefault(w *Widget, prop numericProperty) float64 {
	el := w.Element.SelectElement(prop.name)
	if el == nil {
		return prop.fallback
	}
	v, err := rules.ParseValue(rules.KindNumeric, w.Macros, el)
	if err == nil {
		var n float64
		if n, err = strconv.ParseFloat(v.(rules.Numeric).Text, 64); err == nil {
			return n
		}
	}
	c.invalidDefault(w, prop.name, el, err)
	return prop.fallback
}

func (c *Compiler) invalidDefault(w *Widget, property string, el *etree.Element, err error) {
	c.logger.Warn("Invalid property value, using default",
		zap.String("widget", w.WID()),
		zap.String("type", w.Type),
		zap.String("property", property),
		zap.String("value", strings.TrimSpace(el.Text())),
		zap.Error(err))
}
