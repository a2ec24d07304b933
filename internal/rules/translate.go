// internal/rules/translate.go
package rules

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/solatis/displayrules/internal/types"
)

/*
 * Guard expression translation.
 *
 * Rule guards are written in a Python-like boolean dialect ("pv0 > 2 and not
 * pvInt1 == 3"). The browser evaluates JavaScript, so each guard is rewritten
 * token by token:
 *
 *   - pvIntN   -> pvN   (integer and double bindings share one JS local)
 *   - and      -> &&
 *   - or       -> ||
 *   - not X    -> !(X)
 *   - is / is not -> === / !==  ("in" is rejected)
 *   - True / False / None -> true / false / null
 *
 * Tokens are identifiers, numbers, quoted strings and single punctuation
 * bytes. Only whole identifiers are rewritten, so "pvIntensity", "order" or
 * 'and' inside a string literal pass through untouched. Whitespace is copied
 * as-is so the generated guard stays readable next to its source.
 */

type tokenKind int

const (
	tokSpace tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string
}

var keywordRewrites = map[string]string{
	"and":   "&&",
	"or":    "||",
	"True":  "true",
	"False": "false",
	"None":  "null",
}

// Translate rewrites a guard from the rule dialect into a JavaScript expression.
// Returns ErrMalformedExpression for an unterminated string literal.
//
// Python's "not" binds looser than comparisons while JavaScript's "!" binds
// tighter, so the operand of each "not" is parenthesized: it extends to the
// next and/or/comma/closing parenthesis at the same nesting depth.
func Translate(expr string) (string, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return "", err
	}

	var out []string
	var nots []int // paren depth of each open "not"
	depth := 0
	skipSpace := false

	closeNots := func(d int) {
		for len(nots) > 0 && nots[len(nots)-1] >= d {
			// Keep the closing paren tight against the operand
			n := len(out)
			if n > 0 && strings.TrimSpace(out[n-1]) == "" {
				out = append(out[:n-1], ")", out[n-1])
			} else {
				out = append(out, ")")
			}
			nots = nots[:len(nots)-1]
		}
	}

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case tok.kind == tokSpace:
			if skipSpace {
				continue
			}
			out = append(out, tok.text)
		case tok.kind == tokString:
			// Guards land inside the page's <script> element
			out = append(out, strings.ReplaceAll(tok.text, "</", `<\/`))
		case isWord(tok, "in"):
			return "", fmt.Errorf("%w: membership test 'in' is not supported", types.ErrMalformedExpression)
		case isWord(tok, "is"):
			if j := nextWord(tokens, i); j >= 0 && isWord(tokens[j], "not") {
				out = append(out, "!==")
				i = j
			} else {
				out = append(out, "===")
			}
		case isWord(tok, "not"):
			out = append(out, "!(")
			nots = append(nots, depth)
			skipSpace = true
			continue
		case isWord(tok, "and") || isWord(tok, "or"):
			closeNots(depth)
			out = append(out, translateIdent(tok.text))
		case tok.kind == tokIdent:
			out = append(out, translateIdent(tok.text))
		case tok.kind == tokPunct && tok.text == "(":
			depth++
			out = append(out, tok.text)
		case tok.kind == tokPunct && (tok.text == ")" || tok.text == ","):
			closeNots(depth)
			if tok.text == ")" {
				depth--
			}
			out = append(out, tok.text)
		default:
			out = append(out, tok.text)
		}
		skipSpace = false
	}
	closeNots(math.MinInt)

	return strings.Join(out, ""), nil
}

// BoundReferences returns the sorted, distinct binding indices a guard uses
// through pvN, pvIntN or pvStrN identifiers.
func BoundReferences(expr string) ([]int, error) {
	tokens, err := tokenize(expr)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool)
	for _, tok := range tokens {
		if tok.kind != tokIdent {
			continue
		}
		for _, prefix := range []string{"pvInt", "pvStr", "pv"} {
			if idx, ok := bindingIndex(tok.text, prefix); ok {
				seen[idx] = true
				break
			}
		}
	}

	refs := make([]int, 0, len(seen))
	for idx := range seen {
		refs = append(refs, idx)
	}
	sort.Ints(refs)
	return refs, nil
}

func isWord(tok token, word string) bool {
	return tok.kind == tokIdent && tok.text == word
}

// nextWord returns the index of the first non-space token after i, or -1.
func nextWord(tokens []token, i int) int {
	for j := i + 1; j < len(tokens); j++ {
		if tokens[j].kind != tokSpace {
			return j
		}
	}
	return -1
}

func translateIdent(ident string) string {
	if rewrite, ok := keywordRewrites[ident]; ok {
		return rewrite
	}
	if idx, ok := bindingIndex(ident, "pvInt"); ok {
		return "pv" + strconv.Itoa(idx)
	}
	return ident
}

// bindingIndex reports N for identifiers of the exact form prefix+digits.
func bindingIndex(ident, prefix string) (int, bool) {
	digits, found := strings.CutPrefix(ident, prefix)
	if !found || digits == "" {
		return 0, false
	}
	for i := 0; i < len(digits); i++ {
		if !isDigit(digits[i]) {
			return 0, false
		}
	}
	idx, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return idx, true
}

func tokenize(expr string) ([]token, error) {
	var tokens []token
	for i := 0; i < len(expr); {
		c := expr[i]
		start := i
		switch {
		case isSpace(c):
			for i < len(expr) && isSpace(expr[i]) {
				i++
			}
			tokens = append(tokens, token{tokSpace, expr[start:i]})
		case c == '\'' || c == '"':
			end, err := scanString(expr, i)
			if err != nil {
				return nil, err
			}
			i = end
			tokens = append(tokens, token{tokString, expr[start:i]})
		case isIdentStart(c):
			for i < len(expr) && isIdentPart(expr[i]) {
				i++
			}
			tokens = append(tokens, token{tokIdent, expr[start:i]})
		case isDigit(c) || (c == '.' && i+1 < len(expr) && isDigit(expr[i+1])):
			i = scanNumber(expr, i)
			tokens = append(tokens, token{tokNumber, expr[start:i]})
		default:
			i++
			tokens = append(tokens, token{tokPunct, expr[start:i]})
		}
	}
	return tokens, nil
}

// scanNumber returns the offset just past the numeric literal at start. A
// letter after the literal starts a new token, so "2and" is "2" then "and".
func scanNumber(expr string, start int) int {
	i := start
	if expr[i] == '0' && i+1 < len(expr) && strings.IndexByte("xXoObB", expr[i+1]) >= 0 {
		i += 2
		for i < len(expr) && (isHexDigit(expr[i]) || expr[i] == '_') {
			i++
		}
		return i
	}
	for i < len(expr) && (isDigit(expr[i]) || expr[i] == '.') {
		i++
	}
	if i < len(expr) && (expr[i] == 'e' || expr[i] == 'E') {
		j := i + 1
		if j < len(expr) && (expr[j] == '+' || expr[j] == '-') {
			j++
		}
		if j < len(expr) && isDigit(expr[j]) {
			for j < len(expr) && isDigit(expr[j]) {
				j++
			}
			i = j
		}
	}
	return i
}

// scanString returns the offset just past the string literal opened at start.
func scanString(expr string, start int) (int, error) {
	quote := expr[start]
	for i := start + 1; i < len(expr); i++ {
		switch expr[i] {
		case '\\':
			i++
		case quote:
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("%w: unterminated string literal at offset %d", types.ErrMalformedExpression, start)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

// Bytes >= 0x80 belong to multi-byte UTF-8 identifiers and are never split.
func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || isDigit(c)
}
