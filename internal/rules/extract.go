// internal/rules/extract.go
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"

	"github.com/solatis/displayrules/internal/macros"
	"github.com/solatis/displayrules/internal/types"
)

/*
 * Rule extraction.
 *
 * A widget carries its rules in an optional container:
 *
 *   <rules>
 *     <rule name="Color" prop_id="background_color" out_exp="false">
 *       <exp bool_exp="pv0>2">
 *         <value><color name="OK" red="0" green="255" blue="0"/></value>
 *       </exp>
 *       <pv_name>sim://ramp</pv_name>
 *     </rule>
 *   </rules>
 *
 * Only rules whose prop_id names the requested property are extracted, in
 * document order. Write-back rules (out_exp="true") are rejected before
 * their cases or data sources are looked at.
 */

// ruleElement is an extracted rule plus the <value> element of each case,
// index-aligned with Definition.Cases. Missing values are nil.
type ruleElement struct {
	Definition *types.RuleDefinition
	Values     []*etree.Element
}

// ruleElements returns the <rule> children of the widget's <rules> container
// that target property. No container yields nil.
func ruleElements(widget *etree.Element, property string) []*etree.Element {
	if widget == nil {
		return nil
	}
	container := widget.SelectElement("rules")
	if container == nil {
		return nil
	}

	var matched []*etree.Element
	for _, re := range container.SelectElements("rule") {
		if re.SelectAttrValue("prop_id", "") == property {
			matched = append(matched, re)
		}
	}
	return matched
}

// parseRule builds the definition of one rule element. On error the returned
// ruleElement still carries the name, property and source for diagnostics.
func parseRule(mp macros.Provider, re *etree.Element) (*ruleElement, error) {
	def := &types.RuleDefinition{
		Name:      re.SelectAttrValue("name", ""),
		Property:  re.SelectAttrValue("prop_id", ""),
		WriteBack: parseJavaBool(re.SelectAttrValue("out_exp", "")),
		Source:    elementSource(re),
	}
	parsed := &ruleElement{Definition: def}

	if def.WriteBack {
		return parsed, types.ErrUnsupportedRuleKind
	}

	def.DataSources = CollectDataSources(mp, re)
	if len(def.DataSources) > types.MaxDataSources {
		return parsed, fmt.Errorf("%w: %d > %d", types.ErrTooManyDataSources, len(def.DataSources), types.MaxDataSources)
	}

	exps := re.SelectElements("exp")
	if len(exps) > types.MaxCases {
		return parsed, fmt.Errorf("%w: %d > %d", types.ErrTooManyCases, len(exps), types.MaxCases)
	}
	for _, exp := range exps {
		value := exp.SelectElement("value")
		c := types.Case{Guard: exp.SelectAttrValue("bool_exp", "")}
		if value != nil {
			c.Value = elementSource(value)
		}
		def.Cases = append(def.Cases, c)
		parsed.Values = append(parsed.Values, value)
	}

	return parsed, nil
}

// extracted is the outcome of parsing one matching rule element. On error
// rule still carries the name, property and source.
type extracted struct {
	rule *ruleElement
	err  error
}

// extractRules parses every rule element of widget targeting property, in
// document order. A failing rule does not stop the others.
func extractRules(mp macros.Provider, widget *etree.Element, property string) []extracted {
	elements := ruleElements(widget, property)
	out := make([]extracted, 0, len(elements))
	for _, re := range elements {
		parsed, err := parseRule(mp, re)
		out = append(out, extracted{rule: parsed, err: err})
	}
	return out
}

// Extract returns the definitions of every rule in the widget's subtree that
// targets property. Rules that fail validation are left out and their errors
// joined into the returned error.
func Extract(mp macros.Provider, widget *etree.Element, property string) ([]*types.RuleDefinition, error) {
	var defs []*types.RuleDefinition
	var errs []error
	for _, x := range extractRules(mp, widget, property) {
		if x.err != nil {
			errs = append(errs, fmt.Errorf("rule '%s': %w", x.rule.Definition.Name, x.err))
			continue
		}
		defs = append(defs, x.rule.Definition)
	}
	return defs, errors.Join(errs...)
}

// parseJavaBool matches Boolean.parseBoolean: only "true", any case, is true.
func parseJavaBool(s string) bool {
	return strings.EqualFold(strings.TrimSpace(s), "true")
}

// elementSource serializes el for diagnostics. Serialization of an in-memory
// tree cannot fail for valid elements; errors yield an empty string.
func elementSource(el *etree.Element) string {
	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())
	doc.Indent(2)
	s, err := doc.WriteToString()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
