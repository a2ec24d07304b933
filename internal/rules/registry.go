package rules

import (
	"bufio"
	"io"
	"sync"

	"github.com/solatis/displayrules/internal/types"
)

// CompiledRule is one emitted rule instance. Text is immutable once committed.
type CompiledRule struct {
	ID       int
	Name     string
	WidgetID string
	Property string
	Text     string
}

// Registry accumulates compiled rule scripts for a single page and writes
// them out once. Id allocation and append happen under one lock, so widget
// branches may be compiled concurrently without gaps, duplicates or
// interleaved text.
type Registry struct {
	mu      sync.Mutex
	lastID  int
	rules   []CompiledRule
	flushed bool
}

// NewRegistry creates an empty registry; the first committed rule gets id 1.
func NewRegistry() *Registry {
	return &Registry{}
}

// Commit allocates the next id, renders the rule with it and appends the text.
// Rules that never reach Commit consume no id.
func (r *Registry) Commit(s *Script) (CompiledRule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.flushed {
		return CompiledRule{}, types.ErrRegistryFlushed
	}

	r.lastID++
	rule := CompiledRule{
		ID:       r.lastID,
		Name:     s.Name,
		WidgetID: s.WidgetID,
		Property: s.Property,
		Text:     s.Render(r.lastID),
	}
	r.rules = append(r.rules, rule)
	return rule, nil
}

// Flush writes all committed rules as one <script> element. The registry is
// consumed even when the write fails; later calls return ErrRegistryFlushed.
func (r *Registry) Flush(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.flushed {
		return types.ErrRegistryFlushed
	}
	r.flushed = true

	bw := bufio.NewWriter(w)
	bw.WriteString("<script>\n")
	for _, rule := range r.rules {
		bw.WriteString(rule.Text)
	}
	bw.WriteString("</script>\n")
	return bw.Flush()
}

// Len returns the number of committed rules.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rules)
}

// Rules returns a copy of the committed rules in emission order.
func (r *Registry) Rules() []CompiledRule {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CompiledRule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Flushed reports whether Flush has been called.
func (r *Registry) Flushed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flushed
}
