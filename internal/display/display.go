// Package display parses display files and drives rule compilation for the
// widgets they contain.
//
// A display is an XML document rooted at <display>. Widgets are <widget
// type="..."> children; groups are widgets of type "group" that nest further
// widgets. Every widget is assigned a page-unique DOM id in depth-first
// document order ("w1", "w2", ...).
package display

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/beevik/etree"

	"github.com/solatis/displayrules/internal/macros"
	"github.com/solatis/displayrules/internal/types"
)

// Default widget geometry when the display leaves it unset.
const (
	defaultWidth  = 100
	defaultHeight = 20
)

// Display is a parsed display document.
type Display struct {
	Name    string
	Width   int
	Height  int
	Widgets []*Widget // top-level widgets, children nested below groups
}

// Widget is one widget of a display, with its resolved macro scope.
type Widget struct {
	ID       types.WidgetID
	Type     string
	Name     string
	X        int
	Y        int
	Width    int
	Height   int
	Children []*Widget

	// Element is the widget's XML, including its <rules> container.
	Element *etree.Element
	// Macros resolves the widget's own macros, then its groups', then the
	// display's, then the caller's.
	Macros macros.Provider
}

// WID returns the DOM id rules bind to.
func (w *Widget) WID() string {
	return string(w.ID)
}

// Parse reads a display document. base supplies macros from outside the
// document (e.g. the command line) and may be nil.
func Parse(r io.Reader, base macros.Provider) (*Display, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidDisplay, err)
	}
	root := doc.Root()
	if root == nil {
		return nil, fmt.Errorf("%w: empty document", types.ErrInvalidDisplay)
	}
	if root.Tag != "display" {
		return nil, fmt.Errorf("%w: root element is <%s>, want <display>", types.ErrInvalidDisplay, root.Tag)
	}

	scope := macros.Chain(macros.FromElement(root.SelectElement("macros")), base)
	d := &Display{
		Name:   macros.Expand(scope, childText(root, "name")),
		Width:  intProperty(scope, root, "width", 800),
		Height: intProperty(scope, root, "height", 600),
	}

	var next int
	d.Widgets = parseWidgets(root, scope, &next)
	return d, nil
}

// Walk visits every widget depth-first in document order.
func (d *Display) Walk(fn func(*Widget) error) error {
	return walk(d.Widgets, fn)
}

func walk(widgets []*Widget, fn func(*Widget) error) error {
	for _, w := range widgets {
		if err := fn(w); err != nil {
			return err
		}
		if err := walk(w.Children, fn); err != nil {
			return err
		}
	}
	return nil
}

func parseWidgets(parent *etree.Element, scope macros.Provider, next *int) []*Widget {
	var widgets []*Widget
	for _, el := range parent.SelectElements("widget") {
		*next++
		wscope := macros.Chain(macros.FromElement(el.SelectElement("macros")), scope)
		w := &Widget{
			ID:      types.WidgetID("w" + strconv.Itoa(*next)),
			Type:    el.SelectAttrValue("type", ""),
			Name:    macros.Expand(wscope, childText(el, "name")),
			X:       intProperty(wscope, el, "x", 0),
			Y:       intProperty(wscope, el, "y", 0),
			Width:   intProperty(wscope, el, "width", defaultWidth),
			Height:  intProperty(wscope, el, "height", defaultHeight),
			Element: el,
			Macros:  wscope,
		}
		if w.Type == "group" {
			w.Children = parseWidgets(el, wscope, next)
		}
		widgets = append(widgets, w)
	}
	return widgets
}

func childText(el *etree.Element, tag string) string {
	child := el.SelectElement(tag)
	if child == nil {
		return ""
	}
	return strings.TrimSpace(child.Text())
}

// intProperty reads a macro-expanded integer child, falling back to def when
// it is absent or not an integer.
func intProperty(mp macros.Provider, el *etree.Element, tag string, def int) int {
	text := strings.TrimSpace(macros.Expand(mp, childText(el, tag)))
	if text == "" {
		return def
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return def
	}
	return n
}
