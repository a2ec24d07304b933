// internal/rules/compile.go
package rules

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"go.uber.org/zap"

	"github.com/solatis/displayrules/internal/macros"
	"github.com/solatis/displayrules/internal/types"
)

/*
 * Rule compilation.
 *
 * Turns the <rules> of one widget into client-side rule instances appended to
 * the page registry. Widget implementations call one entry point per
 * property they support:
 *
 *   - CompileNumericRule:    numeric properties (minimum, maximum, ...)
 *   - CompileColorRule:      color properties (background_color, ...)
 *   - CompileVisibilityRule: the "visible" property
 *
 * Compilation workflow per matching rule element:
 *   1. Reject write-back rules (out_exp) before anything else
 *   2. Collect and macro-expand data sources (pv_name, then legacy pv)
 *   3. Per case: macro-expand and translate the guard, parse the value
 *   4. Commit to the registry, which assigns the page-unique id
 *
 * A failure aborts only the offending rule. It is logged with the rule's
 * source and partial script, handed to the diagnostic sink, and returned to
 * the caller; the remaining rules of the container are still compiled.
 */

// Widget is the owning widget of a rule.
type Widget interface {
	// WID returns the DOM id the rule instance binds to.
	WID() string
}

// DiagnosticSink receives every rule failure, e.g. for persistence.
type DiagnosticSink interface {
	RecordRuleError(*RuleError)
}

// Page is the compilation context of one display page. It owns the id
// counter and script buffer; it is not shared between pages.
type Page struct {
	registry *Registry
	logger   *zap.Logger
	sink     DiagnosticSink
}

// Option configures a Page.
type Option func(*Page)

// WithLogger sets the logger for compiled-rule and failure diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Page) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDiagnosticSink forwards rule failures to sink.
func WithDiagnosticSink(sink DiagnosticSink) Option {
	return func(p *Page) {
		p.sink = sink
	}
}

// NewPage creates a compilation context with an empty registry.
func NewPage(opts ...Option) *Page {
	p := &Page{
		registry: NewRegistry(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Registry exposes the page's script registry.
func (p *Page) Registry() *Registry {
	return p.registry
}

// Flush writes the page's single <script> block. Call once, after all widgets.
func (p *Page) Flush(w io.Writer) error {
	return p.registry.Flush(w)
}

// CompileNumericRule compiles rules on a numeric property.
func (p *Page) CompileNumericRule(mp macros.Provider, xml *etree.Element, widget Widget,
	property string, defaultValue float64, update string) error {
	return p.compile(mp, xml, widget, property, KindNumeric, NumericValue(defaultValue), update)
}

// CompileColorRule compiles rules on a color property.
func (p *Page) CompileColorRule(mp macros.Provider, xml *etree.Element, widget Widget,
	property string, defaultColor Color, update string) error {
	return p.compile(mp, xml, widget, property, KindColor, defaultColor, update)
}

// CompileVisibilityRule compiles rules on the "visible" property, wired to
// the client's set_visibility routine.
func (p *Page) CompileVisibilityRule(mp macros.Provider, xml *etree.Element, widget Widget,
	defaultVisible bool) error {
	return p.compile(mp, xml, widget, types.PropVisible, KindBoolean, Boolean(defaultVisible), types.UpdateVisibility)
}

func (p *Page) compile(mp macros.Provider, xml *etree.Element, widget Widget,
	property string, kind Kind, fallback Value, update string) error {
	var errs []error
	for _, x := range extractRules(mp, xml, property) {
		if err := p.compileRule(mp, x, widget, kind, fallback, update); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Page) compileRule(mp macros.Provider, x extracted, widget Widget,
	kind Kind, fallback Value, update string) error {
	parsed := x.rule
	def := parsed.Definition
	script := &Script{
		Name:     def.Name,
		WidgetID: widget.WID(),
		Property: def.Property,
		Default:  fallback,
		Update:   update,
	}
	if x.err != nil {
		return p.fail(def, script, x.err)
	}
	script.DataSources = def.Addresses()

	if fallback == nil || fallback.Kind() != kind {
		return p.fail(def, script, fmt.Errorf("%w: default is not %v", types.ErrUnsupportedValueKind, kind))
	}

	for i, c := range def.Cases {
		guard, err := compileGuard(macros.Expand(mp, c.Guard), len(def.DataSources))
		if err != nil {
			return p.fail(def, script, fmt.Errorf("case %d: %w", i, err))
		}
		value, err := ParseValue(kind, mp, parsed.Values[i])
		if err != nil {
			return p.fail(def, script, fmt.Errorf("case %d: %w", i, err))
		}
		script.Guards = append(script.Guards, guard)
		script.Values = append(script.Values, value)
	}

	compiled, err := p.registry.Commit(script)
	if err != nil {
		return p.fail(def, script, err)
	}

	p.logger.Debug("Compiled rule",
		zap.String("widget", compiled.WidgetID),
		zap.String("rule", compiled.Name),
		zap.String("property", compiled.Property),
		zap.Int("id", compiled.ID),
		zap.String("source", def.Source),
		zap.String("script", compiled.Text))
	return nil
}

// compileGuard translates an expanded guard and checks it only uses bound
// data sources.
func compileGuard(expr string, bound int) (string, error) {
	if strings.TrimSpace(expr) == "" {
		return "", fmt.Errorf("%w: empty guard", types.ErrMalformedExpression)
	}
	refs, err := BoundReferences(expr)
	if err != nil {
		return "", err
	}
	for _, idx := range refs {
		if idx >= bound {
			return "", fmt.Errorf("%w: pv%d with %d data source(s) in %q", types.ErrUnboundDataSource, idx, bound, expr)
		}
	}
	return Translate(expr)
}

func (p *Page) fail(def *types.RuleDefinition, script *Script, err error) error {
	ruleErr := &RuleError{
		WidgetID: script.WidgetID,
		Property: def.Property,
		Rule:     def.Name,
		Source:   def.Source,
		Partial:  script.Partial(),
		Err:      err,
	}

	p.logger.Warn("Rule compilation failed",
		zap.String("widget", ruleErr.WidgetID),
		zap.String("rule", ruleErr.Rule),
		zap.String("property", ruleErr.Property),
		zap.String("source", ruleErr.Source),
		zap.String("partial", ruleErr.Partial),
		zap.Error(err))

	if p.sink != nil {
		p.sink.RecordRuleError(ruleErr)
	}
	return ruleErr
}
