package display

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/solatis/displayrules/internal/macros"
	"github.com/solatis/displayrules/internal/rules"
	"github.com/solatis/displayrules/internal/types"
)

const pumpDisplay = `<?xml version="1.0" encoding="UTF-8"?>
<display version="2.0.0">
  <name>Pump $(P)</name>
  <macros><P>pump1</P></macros>
  <width>400</width>
  <widget type="rectangle">
    <name>Box</name>
    <x>10</x>
    <y>20</y>
    <background_color><color name="Blue" red="0" green="0" blue="255"/></background_color>
    <rules>
      <rule name="Alarm" prop_id="background_color" out_exp="false">
        <exp bool_exp="pv0 &gt; 5"><value><color name="Red" red="255" green="0" blue="0"/></value></exp>
        <pv_name>$(P):level</pv_name>
      </rule>
    </rules>
  </widget>
  <widget type="group">
    <name>Group</name>
    <macros><P>pump2</P></macros>
    <widget type="label">
      <name>Status</name>
      <rules>
        <rule name="Hide" prop_id="visible">
          <exp bool_exp="pvInt0 == 0"><value>false</value></exp>
          <pv_name>$(P):on</pv_name>
        </rule>
      </rules>
    </widget>
  </widget>
  <widget type="tank">
    <maximum>50</maximum>
    <rules>
      <rule name="Range" prop_id="maximum">
        <exp bool_exp="pv0 &gt; 1"><value>200</value></exp>
        <pv_name>sim://limit</pv_name>
      </rule>
    </rules>
  </widget>
</display>`

func parseDisplay(t *testing.T, src string, base macros.Provider) *Display {
	t.Helper()
	d, err := Parse(strings.NewReader(src), base)
	require.NoError(t, err)
	return d
}

func TestParse(t *testing.T) {
	d := parseDisplay(t, pumpDisplay, nil)

	assert.Equal(t, "Pump pump1", d.Name)
	assert.Equal(t, 400, d.Width)
	assert.Equal(t, 600, d.Height)
	require.Len(t, d.Widgets, 3)

	var ids []types.WidgetID
	var kinds []string
	require.NoError(t, d.Walk(func(w *Widget) error {
		ids = append(ids, w.ID)
		kinds = append(kinds, w.Type)
		return nil
	}))
	assert.Equal(t, []types.WidgetID{"w1", "w2", "w3", "w4"}, ids)
	assert.Equal(t, []string{"rectangle", "group", "label", "tank"}, kinds)

	box := d.Widgets[0]
	assert.Equal(t, "Box", box.Name)
	assert.Equal(t, 10, box.X)
	assert.Equal(t, 20, box.Y)
	assert.Equal(t, defaultWidth, box.Width)
	assert.Equal(t, defaultHeight, box.Height)
}

func TestParse_MacroScopes(t *testing.T) {
	d := parseDisplay(t, pumpDisplay, macros.Map{"P": "cli", "SITE": "north"})

	box := d.Widgets[0]
	label := d.Widgets[1].Children[0]

	v, _ := box.Macros.Value("P")
	assert.Equal(t, "pump1", v, "display macro overrides caller")
	v, _ = label.Macros.Value("P")
	assert.Equal(t, "pump2", v, "group macro overrides display")
	v, _ = label.Macros.Value("SITE")
	assert.Equal(t, "north", v, "caller macros reach nested widgets")
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ``},
		{"wrong root", `<screen><widget type="label"/></screen>`},
		{"malformed", `<display><widget type="label"></display>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.src), nil)
			if !errors.Is(err, types.ErrInvalidDisplay) {
				t.Errorf("Parse() error = %v, want %v", err, types.ErrInvalidDisplay)
			}
		})
	}
}

func TestCompile(t *testing.T) {
	d := parseDisplay(t, pumpDisplay, nil)
	page := rules.NewPage()

	require.NoError(t, NewCompiler(page, nil).Compile(d))

	compiled := page.Registry().Rules()
	require.Len(t, compiled, 3)

	assert.Equal(t, "w1", compiled[0].WidgetID)
	assert.Equal(t, "background_color", compiled[0].Property)
	assert.Contains(t, compiled[0].Text, "new WidgetRule('w1', 'background_color', ['pump1:level']);")
	assert.Contains(t, compiled[0].Text, "if (pv0 > 5) return 'rgb(255, 0, 0)';")
	assert.Contains(t, compiled[0].Text, "return 'rgb(0, 0, 255)';")
	assert.Contains(t, compiled[0].Text, "rule1.update = set_svg_background_color;")

	assert.Equal(t, "w3", compiled[1].WidgetID)
	assert.Equal(t, types.PropVisible, compiled[1].Property)
	assert.Contains(t, compiled[1].Text, "['pump2:on']")
	assert.Contains(t, compiled[1].Text, "if (pv0 == 0) return false;")
	assert.Contains(t, compiled[1].Text, "return true;")
	assert.Contains(t, compiled[1].Text, "rule2.update = set_visibility;")

	assert.Equal(t, "w4", compiled[2].WidgetID)
	assert.Contains(t, compiled[2].Text, "if (pv0 > 1) return 200;")
	assert.Contains(t, compiled[2].Text, "return 50;")
	assert.Contains(t, compiled[2].Text, "rule3.update = set_maximum;")
}

func TestCompile_FailingRuleDoesNotStopOthers(t *testing.T) {
	d := parseDisplay(t, `<display>
  <widget type="rectangle">
    <rules>
      <rule name="Broken" prop_id="background_color">
        <exp bool_exp="pv0 &gt; 1"><value><color red="1" green="2"/></value></exp>
        <pv_name>sim://a</pv_name>
      </rule>
      <rule name="Hide" prop_id="visible">
        <exp bool_exp="pv0 == 0"><value>false</value></exp>
        <pv_name>sim://b</pv_name>
      </rule>
    </rules>
  </widget>
</display>`, nil)
	page := rules.NewPage()

	err := NewCompiler(page, nil).Compile(d)
	require.ErrorIs(t, err, types.ErrMalformedColor)

	var ruleErr *rules.RuleError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, "w1", ruleErr.WidgetID)
	assert.Equal(t, "Broken", ruleErr.Rule)

	compiled := page.Registry().Rules()
	require.Len(t, compiled, 1)
	assert.Equal(t, types.PropVisible, compiled[0].Property)
	assert.Equal(t, 1, compiled[0].ID)
}

func TestCompile_InvalidDefaultFallsBack(t *testing.T) {
	d := parseDisplay(t, `<display>
  <widget type="ellipse">
    <visible>false</visible>
    <background_color><color red="999" green="0" blue="0"/></background_color>
    <rules>
      <rule name="Color" prop_id="background_color">
        <exp bool_exp="pv0 &gt; 1"><value><color red="0" green="255" blue="0"/></value></exp>
        <pv_name>sim://a</pv_name>
      </rule>
      <rule name="Show" prop_id="visible">
        <exp bool_exp="pv0 &gt; 1"><value>true</value></exp>
        <pv_name>sim://a</pv_name>
      </rule>
    </rules>
  </widget>
</display>`, nil)

	core, logs := observer.New(zapcore.WarnLevel)
	page := rules.NewPage()
	require.NoError(t, NewCompiler(page, zap.New(core)).Compile(d))

	compiled := page.Registry().Rules()
	require.Len(t, compiled, 2)
	assert.Contains(t, compiled[0].Text, "return false;", "visible default comes from the widget")
	assert.Contains(t, compiled[1].Text, "return 'rgb(30, 144, 255)';")

	warnings := logs.FilterMessage("Invalid property value, using default").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "background_color", warnings[0].ContextMap()["property"])
}

func TestCompile_NonDecimalNumericDefaultFallsBack(t *testing.T) {
	d := parseDisplay(t, `<display>
  <widget type="meter">
    <minimum>0x10</minimum>
    <maximum>inf</maximum>
    <rules>
      <rule name="Min" prop_id="minimum">
        <exp bool_exp="pv0 &gt; 1"><value>5</value></exp>
        <pv_name>sim://a</pv_name>
      </rule>
      <rule name="Max" prop_id="maximum">
        <exp bool_exp="pv0 &gt; 1"><value>50</value></exp>
        <pv_name>sim://a</pv_name>
      </rule>
    </rules>
  </widget>
</display>`, nil)

	core, logs := observer.New(zapcore.WarnLevel)
	page := rules.NewPage()
	require.NoError(t, NewCompiler(page, zap.New(core)).Compile(d))

	compiled := page.Registry().Rules()
	require.Len(t, compiled, 2)
	assert.Contains(t, compiled[0].Text, "return 0;")
	assert.Contains(t, compiled[1].Text, "return 100;")
	assert.Equal(t, 2, logs.FilterMessage("Invalid property value, using default").Len())
}

func TestCompile_UnknownTypeOnlyVisibility(t *testing.T) {
	d := parseDisplay(t, `<display>
  <widget type="picture">
    <rules>
      <rule name="Color" prop_id="background_color">
        <exp bool_exp="pv0 &gt; 1"><value><color red="0" green="255" blue="0"/></value></exp>
        <pv_name>sim://a</pv_name>
      </rule>
    </rules>
  </widget>
</display>`, nil)
	page := rules.NewPage()

	require.NoError(t, NewCompiler(page, nil).Compile(d))
	assert.Equal(t, 0, page.Registry().Len())
}

func TestRender(t *testing.T) {
	d := parseDisplay(t, pumpDisplay, nil)
	page := rules.NewPage()
	require.NoError(t, NewCompiler(page, nil).Compile(d))

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, d, page, ""))
	out := buf.String()

	assert.Contains(t, out, "<title>Pump pump1</title>")
	assert.Contains(t, out, `<script src="widgets.js"></script>`)
	assert.Contains(t, out, `<div id="w1" class="rectangle" data-name="Box"`)
	assert.Contains(t, out, "left: 10px")
	assert.Contains(t, out, `<div id="w3" class="label" data-name="Status"`)
	assert.Contains(t, out, "<script>\n// Rule 'Alarm'\n")
	assert.True(t, strings.HasSuffix(out, "</script>\n</body>\n</html>\n"), out)
	assert.Equal(t, 1, strings.Count(out, "<script>\n"))

	// Groups nest their children
	group := strings.Index(out, `id="w2"`)
	label := strings.Index(out, `id="w3"`)
	tank := strings.Index(out, `id="w4"`)
	assert.True(t, group < label && label < tank)

	err := Render(&bytes.Buffer{}, d, page, "")
	assert.ErrorIs(t, err, types.ErrRegistryFlushed)
}

func TestRender_EscapesNames(t *testing.T) {
	d := parseDisplay(t, `<display><widget type="label"><name>&lt;b&gt;</name></widget></display>`, nil)
	page := rules.NewPage()

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, d, page, "A & B"))
	out := buf.String()

	assert.Contains(t, out, "<title>A &amp; B</title>")
	assert.Contains(t, out, `data-name="&lt;b&gt;"`)
	assert.Contains(t, out, "<script>\n</script>\n")
}
