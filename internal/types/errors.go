package types

import "errors"

// Sentinel errors for displayrules operations.
var (
	// ErrUnsupportedRuleKind indicates a write-back (out_exp) rule.
	ErrUnsupportedRuleKind = errors.New("can only handle plain rules, not 'out_exp' types")

	// ErrMissingValue indicates a case or default lacks its required literal.
	ErrMissingValue = errors.New("missing value")

	// ErrMalformedColor indicates a color literal with a missing or invalid channel.
	ErrMalformedColor = errors.New("malformed color")

	// ErrMalformedNumber indicates a numeric literal that does not parse as a number.
	ErrMalformedNumber = errors.New("malformed number")

	// ErrMalformedExpression indicates a guard expression that cannot be tokenized.
	ErrMalformedExpression = errors.New("malformed guard expression")

	// ErrUnboundDataSource indicates a guard referencing pvN beyond the rule's data sources.
	ErrUnboundDataSource = errors.New("guard references unbound data source")

	// ErrUnsupportedValueKind indicates a value kind outside Numeric, Color and Boolean.
	ErrUnsupportedValueKind = errors.New("unsupported value kind")

	// ErrTooManyDataSources indicates a rule exceeds MaxDataSources.
	ErrTooManyDataSources = errors.New("rule has too many data sources")

	// ErrTooManyCases indicates a rule exceeds MaxCases.
	ErrTooManyCases = errors.New("rule has too many cases")

	// ErrRegistryFlushed indicates use of a script registry after its single flush.
	ErrRegistryFlushed = errors.New("script registry already flushed")

	// ErrInvalidDisplay indicates a display document that is not a <display>.
	ErrInvalidDisplay = errors.New("invalid display document")
)
