// internal/rules/emit.go
package rules

import (
	"strconv"
	"strings"
)

/*
 * Script emission.
 *
 * Each compiled rule becomes one self-contained block of the page script:
 *
 *   // Rule 'Color'
 *   let rule1 = new WidgetRule('w3', 'background_color', ['sim://ramp','sim://sine']);
 *   rule1.eval = function()
 *   {
 *     let pv0 = this.value['sim://ramp'];
 *     let pvStr0 = this.valueStr['sim://ramp'];
 *     let pv1 = this.value['sim://sine'];
 *     let pvStr1 = this.valueStr['sim://sine'];
 *     if (pv0>2) return 'rgb(0, 255, 0)';
 *     return 'rgb(30, 144, 255)';
 *   }
 *   rule1.update = set_svg_background_color;
 *
 * Guards are tested in case order and the first true one wins; the default
 * is returned when none holds. The rule id is only known at commit time, so
 * a Script is plain data rendered under the registry lock.
 */

// Script holds everything needed to emit one rule instance.
type Script struct {
	Name        string   // rule name, used in the leading comment
	WidgetID    string   // DOM id of the owning widget
	Property    string   // target property
	DataSources []string // resolved addresses in binding order
	Guards      []string // translated guards, index-aligned with Values
	Values      []Value
	Default     Value
	Update      string // client routine receiving the computed value
}

// RuleVar is the JavaScript variable name of rule instance id.
func RuleVar(id int) string {
	return "rule" + strconv.Itoa(id)
}

// Render returns the complete script text for rule instance id.
func (s *Script) Render(id int) string {
	return s.render(RuleVar(id), true)
}

// Partial renders whatever has been built so far, for diagnostics of a rule
// that failed mid-compilation.
func (s *Script) Partial() string {
	return s.render("rule", false)
}

func (s *Script) render(rule string, complete bool) string {
	var buf strings.Builder

	buf.WriteString("// Rule ")
	buf.WriteString(jsString(commentSafe(s.Name)))
	buf.WriteString("\n")

	quoted := make([]string, len(s.DataSources))
	for i, ds := range s.DataSources {
		quoted[i] = jsString(ds)
	}
	buf.WriteString("let " + rule + " = new WidgetRule(" + jsString(s.WidgetID) + ", " +
		jsString(s.Property) + ", [" + strings.Join(quoted, ",") + "]);\n")

	buf.WriteString(rule + ".eval = function()\n")
	buf.WriteString("{\n")
	for i, ds := range s.DataSources {
		idx := strconv.Itoa(i)
		buf.WriteString("  let pv" + idx + " = this.value[" + jsString(ds) + "];\n")
		buf.WriteString("  let pvStr" + idx + " = this.valueStr[" + jsString(ds) + "];\n")
	}
	for i, guard := range s.Guards {
		if i >= len(s.Values) {
			break
		}
		buf.WriteString("  if (" + guard + ") return " + s.Values[i].JS() + ";\n")
	}
	if !complete {
		return buf.String()
	}

	buf.WriteString("  return " + s.Default.JS() + ";\n")
	buf.WriteString("}\n")
	buf.WriteString(rule + ".update = " + s.Update + ";\n")
	return buf.String()
}

var jsEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	"\n", `\n`,
	"\r", `\r`,
	"\u2028", `\u2028`,
	"\u2029", `\u2029`,
	"</", `<\/`,
)

// jsString quotes s as a single-quoted JavaScript string literal that is
// also safe inside an HTML <script> element.
func jsString(s string) string {
	return "'" + jsEscaper.Replace(s) + "'"
}

// commentSafe keeps a rule name on a single comment line.
func commentSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
