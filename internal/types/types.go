// Package types provides domain models shared across displayrules components.
//
// Zero-dependency design: types.go, rules.go and errors.go use only the
// standard library so that widget implementations can depend on them without
// pulling in the XML tree or database stacks. ID utilities in ids.go import
// uuid but are isolated for selective inclusion.
package types

// RunID identifies one invocation of the compiler over a set of displays.
// UUIDv7 time-ordering keeps diagnostics of consecutive runs clustered.
type RunID string

// WidgetID is the stable DOM identifier of a rendered widget ("w12").
type WidgetID string

// Property names and client-side update routines used by the built-in widgets.
const (
	// PropVisible is the property handled by visibility rules.
	PropVisible = "visible"

	// UpdateVisibility is the client routine that shows or hides a widget.
	UpdateVisibility = "set_visibility"
)

// Limits enforced by the compiler to keep generated pages bounded.
const (
	// MaxMacroDepth limits recursive macro substitution.
	// 16 levels handles display -> group -> widget chains without looping on self-references.
	MaxMacroDepth = 16

	// MaxDataSources limits the data sources bound by a single rule.
	// Every binding becomes two locals in the generated routine.
	MaxDataSources = 64

	// MaxCases limits the guarded cases of a single rule.
	MaxCases = 256
)
