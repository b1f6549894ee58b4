package parse

import (
	"strconv"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/reflgen/internal/lang"
)

// evaluate computes the value of an integral constant expression used as an
// enumerator initializer. known holds the enumerators defined so far.
func evaluate(n *sitter.Node, src []byte, known map[string]int64) (int64, bool) {
	text := lang.NodeText(n, src)
	switch n.Type() {
	case "number_literal":
		return parseNumber(text)
	case "char_literal":
		r, err := strconv.Unquote(text)
		if err != nil || len([]rune(r)) != 1 {
			return 0, false
		}
		return int64([]rune(r)[0]), true
	case "true":
		return 1, true
	case "false":
		return 0, true
	case "identifier":
		v, ok := known[text]
		return v, ok
	case "qualified_identifier":
		segments := splitScope(compact(text))
		v, ok := known[segments[len(segments)-1]]
		return v, ok
	case "parenthesized_expression":
		if n.NamedChildCount() != 1 {
			return 0, false
		}
		return evaluate(n.NamedChild(0), src, known)
	case "unary_expression":
		return unary(n, src, known)
	case "binary_expression":
		return binary(n, src, known)
	}
	return 0, false
}

func parseNumber(text string) (int64, bool) {
	text = strings.ReplaceAll(text, "'", "")
	text = strings.TrimRight(text, "uUlLzZ")
	if v, err := strconv.ParseInt(text, 0, 64); err == nil {
		return v, true
	}
	if v, err := strconv.ParseUint(text, 0, 64); err == nil {
		return int64(v), true
	}
	return 0, false
}

func unary(n *sitter.Node, src []byte, known map[string]int64) (int64, bool) {
	op := n.ChildByFieldName("operator")
	arg := n.ChildByFieldName("argument")
	if op == nil || arg == nil {
		return 0, false
	}
	v, ok := evaluate(arg, src, known)
	if !ok {
		return 0, false
	}
	switch lang.NodeText(op, src) {
	case "-":
		return -v, true
	case "+":
		return v, true
	case "~":
		return ^v, true
	case "!":
		return boolValue(v == 0), true
	}
	return 0, false
}

func binary(n *sitter.Node, src []byte, known map[string]int64) (int64, bool) {
	op := n.ChildByFieldName("operator")
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if op == nil || left == nil || right == nil {
		return 0, false
	}
	l, ok := evaluate(left, src, known)
	if !ok {
		return 0, false
	}
	r, ok := evaluate(right, src, known)
	if !ok {
		return 0, false
	}

	switch lang.NodeText(op, src) {
	case "+":
		return l + r, true
	case "-":
		return l - r, true
	case "*":
		return l * r, true
	case "/":
		if r == 0 {
			return 0, false
		}
		return l / r, true
	case "%":
		if r == 0 {
			return 0, false
		}
		return l % r, true
	case "<<":
		if r < 0 || r > 63 {
			return 0, false
		}
		return l << uint(r), true
	case ">>":
		if r < 0 || r > 63 {
			return 0, false
		}
		return l >> uint(r), true
	case "&":
		return l & r, true
	case "|":
		return l | r, true
	case "^":
		return l ^ r, true
	case "&&":
		return boolValue(l != 0 && r != 0), true
	case "||":
		return boolValue(l != 0 || r != 0), true
	case "==":
		return boolValue(l == r), true
	case "!=":
		return boolValue(l != r), true
	case "<":
		return boolValue(l < r), true
	case ">":
		return boolValue(l > r), true
	case "<=":
		return boolValue(l <= r), true
	case ">=":
		return boolValue(l >= r), true
	}
	return 0, false
}

func boolValue(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
