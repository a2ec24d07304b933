package display

import (
	"bufio"
	"fmt"
	"html/template"
	"io"

	"github.com/solatis/displayrules/internal/rules"
)

// RuntimeScript is the client library defining WidgetRule and the set_*
// update routines. It is served next to the generated pages.
const RuntimeScript = "widgets.js"

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<script src="{{.Runtime}}"></script>
</head>
<body>
<div class="display" style="width: {{.Display.Width}}px; height: {{.Display.Height}}px;">
{{range .Display.Widgets}}{{template "widget" .}}{{end}}</div>
{{define "widget"}}<div id="{{.ID}}" class="{{.Type}}" data-name="{{.Name}}" style="left: {{.X}}px; top: {{.Y}}px; width: {{.Width}}px; height: {{.Height}}px;">
{{range .Children}}{{template "widget" .}}{{end}}</div>
{{end}}`))

const pageTail = "</body>\n</html>\n"

// Render writes the HTML page for d followed by the page's rule script.
// Compile all widgets into page first; Render flushes its registry.
func Render(w io.Writer, d *Display, page *rules.Page, title string) error {
	if title == "" {
		title = d.Name
	}

	bw := bufio.NewWriter(w)
	data := struct {
		Title   string
		Runtime string
		Display *Display
	}{title, RuntimeScript, d}
	if err := pageTemplate.Execute(bw, data); err != nil {
		return fmt.Errorf("failed to render page: %w", err)
	}
	if err := page.Flush(bw); err != nil {
		return fmt.Errorf("failed to write rule script: %w", err)
	}
	bw.WriteString(pageTail)
	return bw.Flush()
}
