// Package macros provides macro providers and $(NAME) / ${NAME} expansion.
//
// Macros flow from the display down through groups to each widget. A widget
// sees its own <macros> first, then those of its enclosing groups, then the
// display's, then anything supplied on the command line.
package macros

import (
	"fmt"
	"os"
	"strings"

	"github.com/beevik/etree"
	"gopkg.in/yaml.v3"

	"github.com/solatis/displayrules/internal/types"
)

// Provider resolves macro names to values.
type Provider interface {
	Value(name string) (string, bool)
}

// Map is a Provider backed by a plain map.
type Map map[string]string

// Value implements Provider.
func (m Map) Value(name string) (string, bool) {
	v, ok := m[name]
	return v, ok
}

type chain []Provider

func (c chain) Value(name string) (string, bool) {
	for _, p := range c {
		if p == nil {
			continue
		}
		if v, ok := p.Value(name); ok {
			return v, true
		}
	}
	return "", false
}

// Chain returns a Provider consulting providers in order; the first hit wins.
// Nil providers are skipped.
func Chain(providers ...Provider) Provider {
	return chain(providers)
}

// Expand replaces $(NAME) and ${NAME} in text with values from p.
// Substituted values are expanded again, up to types.MaxMacroDepth levels,
// so self-referencing macros terminate. Unknown macros are left verbatim.
func Expand(p Provider, text string) string {
	return expand(p, text, 0)
}

func expand(p Provider, text string, depth int) string {
	if p == nil || depth >= types.MaxMacroDepth || !strings.Contains(text, "$") {
		return text
	}

	var sb strings.Builder
	sb.Grow(len(text))
	for i := 0; i < len(text); {
		if text[i] == '$' && i+1 < len(text) && (text[i+1] == '(' || text[i+1] == '{') {
			closer := byte(')')
			if text[i+1] == '{' {
				closer = '}'
			}
			if end := strings.IndexByte(text[i+2:], closer); end >= 0 {
				name := text[i+2 : i+2+end]
				if val, ok := p.Value(name); ok {
					sb.WriteString(expand(p, val, depth+1))
					i += end + 3
					continue
				}
			}
		}
		sb.WriteByte(text[i])
		i++
	}
	return sb.String()
}

// FromElement reads a <macros> element whose children are NAME>value pairs.
// A nil element yields an empty Map.
func FromElement(el *etree.Element) Map {
	m := Map{}
	if el == nil {
		return m
	}
	for _, child := range el.ChildElements() {
		m[child.Tag] = strings.TrimSpace(child.Text())
	}
	return m
}

// LoadFile reads a YAML mapping of macro names to values.
func LoadFile(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read macro file: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse macro file %s: %w", path, err)
	}

	m := make(Map, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case nil:
			m[k] = ""
		case string:
			m[k] = val
		case map[string]any, []any:
			return nil, fmt.Errorf("macro %s in %s: value must be a scalar", k, path)
		default:
			m[k] = fmt.Sprint(val)
		}
	}
	return m, nil
}
