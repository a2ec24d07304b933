// internal/types/rules.go
package types

/*
 * Domain types for rule compilation.
 *
 * Provides RuleDefinition, Case and DataSourceRef structures produced by
 * internal/rules extraction and consumed by the script emitter. These types
 * are document-format agnostic - XML-to-types conversion happens in the
 * extractor.
 *
 * Key types:
 *   - RuleDefinition: One <rule> element bound to a widget property
 *   - Case: Guard expression plus the raw value element it selects
 *   - DataSourceRef: One PV address, raw and macro-expanded
 */

// DataSourceRef is one data-source (PV) reference of a rule.
// Position in RuleDefinition.DataSources is the binding index (pv0, pv1, ...).
type DataSourceRef struct {
	Raw      string // address as written in the document
	Resolved string // macro-expanded address used on the client
	Legacy   bool   // true if taken from a legacy <pv> element
}

// Case is one guarded value of a rule. Cases are evaluated in order.
// Value holds the raw XML of the kind-specific <value> element; it is parsed
// into a typed value only once the rule's kind is known.
type Case struct {
	Guard string // guard as written, in the source (Python-like) dialect
	Value string // raw <value> element, empty when absent
}

// RuleDefinition is a rule element parsed from a widget's declarative subtree.
type RuleDefinition struct {
	Name        string          // human-readable name ("Color")
	Property    string          // target property id ("background_color")
	WriteBack   bool            // out_exp flag; always rejected
	Cases       []Case          // document order == evaluation order
	DataSources []DataSourceRef // current-style refs first, then legacy refs
	Source      string          // raw XML of the rule element, for diagnostics
}

// Addresses returns the resolved data-source addresses in binding order.
func (r *RuleDefinition) Addresses() []string {
	out := make([]string, len(r.DataSources))
	for i, ds := range r.DataSources {
		out[i] = ds.Resolved
	}
	return out
}
