package htmldom

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrEmptySelector is returned when compiling a blank selector.
	ErrEmptySelector = errors.New("empty selector")

	// ErrInvalidSelector is returned for selectors that do not follow the grammar.
	ErrInvalidSelector = errors.New("invalid selector")
)

type condKind int

const (
	condTag condKind = iota
	condID
	condClass
	condAttr
	condFirst
	condLast
	condEq
	condQt
	condLt
)

// emptyMarker spells an explicitly empty value in [a$=#] and [a!=#].
const emptyMarker = "#"

type condition struct {
	kind  condKind
	name  string
	op    string
	value string
	n     int
}

func (c condition) match(n *Node) bool {
	switch c.kind {
	case condTag:
		return strings.EqualFold(n.TagName, c.name)
	case condID:
		v, ok := n.LookupAttr("id")
		return ok && v == c.name
	case condClass:
		v, ok := n.LookupAttr("class")
		if !ok {
			return false
		}
		for _, cls := range strings.Fields(v) {
			if cls == c.name {
				return true
			}
		}
		return false
	case condFirst:
		return n.Index == 0
	case condLast:
		return n.Parent != nil && n.Index >= 0 && n.Index == n.Parent.NodeCount-1
	case condEq:
		return n.Index >= 0 && n.Index == c.n
	case condQt:
		return n.Index >= 0 && n.Index > c.n
	case condLt:
		return n.Index >= 0 && n.Index < c.n
	case condAttr:
		v, ok := n.LookupAttr(c.name)
		if !ok {
			return false
		}
		empty := c.value == "" || c.value == emptyMarker
		switch c.op {
		case "=":
			return strings.EqualFold(v, c.value)
		case "$=":
			if empty {
				return v != ""
			}
			return strings.Contains(v, c.value)
		case "!=":
			if empty {
				return v == ""
			}
			return !strings.Contains(v, c.value)
		default:
			return true
		}
	}
	return false
}

type stage struct {
	all   bool
	conds []condition
}

func (s stage) match(n *Node) bool {
	if s.all {
		return true
	}
	for _, c := range s.conds {
		if !c.match(n) {
			return false
		}
	}
	return true
}

// Selector is a compiled selector. It is immutable and may be shared
// between goroutines and reused across documents.
//
// A selector is a space separated list of stages. Each stage is "*" or a
// run of tag, #id, .class, [attr], [attr=v], [attr$=v], [attr!=v] and
// :first, :last, :eq(n), :qt(n), :lt(n) conditions, all of which must hold.
type Selector struct {
	raw    string
	stages []stage
}

// String returns the source text of the selector.
func (s *Selector) String() string {
	return s.raw
}

// MustCompile is like Compile but panics on error.
func MustCompile(sel string) *Selector {
	s, err := Compile(sel)
	if err != nil {
		panic(err)
	}
	return s
}

// Compile parses a selector string.
func Compile(sel string) (*Selector, error) {
	if strings.TrimSpace(sel) == "" {
		return nil, ErrEmptySelector
	}

	s := &Selector{raw: sel}
	var cur stage
	var buf strings.Builder
	mode := byte(0) // 0 tag, '#' id, '.' class

	flush := func() {
		if buf.Len() == 0 {
			return
		}
		name := buf.String()
		buf.Reset()
		switch mode {
		case '#':
			cur.conds = append(cur.conds, condition{kind: condID, name: name})
		case '.':
			cur.conds = append(cur.conds, condition{kind: condClass, name: name})
		default:
			cur.conds = append(cur.conds, condition{kind: condTag, name: name})
		}
	}
	endStage := func() {
		flush()
		mode = 0
		if cur.all || len(cur.conds) > 0 {
			s.stages = append(s.stages, cur)
		}
		cur = stage{}
	}

	for i := 0; i < len(sel); i++ {
		c := sel[i]
		switch {
		case c == '\\':
			if i+1 < len(sel) {
				i++
				buf.WriteByte(sel[i])
			}
		case c == ' ' || c == '\t' || c == '\n':
			endStage()
		case c == '*' && buf.Len() == 0 && len(cur.conds) == 0:
			cur.all = true
		case c == '#' || c == '.':
			flush()
			mode = c
		case c == '[':
			flush()
			mode = 0
			end := strings.IndexByte(sel[i:], ']')
			if end < 0 {
				return nil, fmt.Errorf("%w: unterminated attribute in %q", ErrInvalidSelector, sel)
			}
			cond, err := parseAttr(sel[i+1 : i+end])
			if err != nil {
				return nil, fmt.Errorf("%w: %v in %q", ErrInvalidSelector, err, sel)
			}
			cur.conds = append(cur.conds, cond)
			i += end
		case c == ':':
			flush()
			mode = 0
			end := i + 1
			for end < len(sel) && sel[end] != ' ' && sel[end] != ':' && sel[end] != '[' {
				end++
			}
			cond, err := parsePseudo(sel[i+1 : end])
			if err != nil {
				return nil, fmt.Errorf("%w: %v in %q", ErrInvalidSelector, err, sel)
			}
			cur.conds = append(cur.conds, cond)
			i = end - 1
		default:
			buf.WriteByte(c)
		}
	}
	endStage()

	if len(s.stages) == 0 {
		return nil, ErrEmptySelector
	}
	return s, nil
}

func parseAttr(body string) (condition, error) {
	cond := condition{kind: condAttr}
	name := body
	if i := strings.IndexAny(body, "$!="); i >= 0 {
		name = body[:i]
		rest := body[i:]
		switch {
		case strings.HasPrefix(rest, "$="):
			cond.op, rest = "$=", rest[2:]
		case strings.HasPrefix(rest, "!="):
			cond.op, rest = "!=", rest[2:]
		case strings.HasPrefix(rest, "="):
			cond.op, rest = "=", rest[1:]
		default:
			return cond, fmt.Errorf("unknown operator in [%s]", body)
		}
		cond.value = strings.Trim(rest, `'"`)
	}
	cond.name = strings.TrimSpace(name)
	if cond.name == "" {
		return cond, fmt.Errorf("missing attribute name in [%s]", body)
	}
	return cond, nil
}

func parsePseudo(body string) (condition, error) {
	name, arg := body, ""
	if i := strings.IndexByte(body, '('); i >= 0 {
		if !strings.HasSuffix(body, ")") {
			return condition{}, fmt.Errorf("unterminated argument in :%s", body)
		}
		name, arg = body[:i], body[i+1:len(body)-1]
	}

	var kind condKind
	switch name {
	case "first":
		return condition{kind: condFirst}, nil
	case "last":
		return condition{kind: condLast}, nil
	case "eq":
		kind = condEq
	case "qt":
		kind = condQt
	case "lt":
		kind = condLt
	default:
		return condition{}, fmt.Errorf("unknown pseudo class :%s", name)
	}

	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return condition{}, fmt.Errorf("bad index in :%s: %w", body, err)
	}
	return condition{kind: kind, n: n}, nil
}

// Find evaluates sel below n. The first stage searches every descendant
// of n. Each later stage searches below the children of the previous
// stage's matches. Comment nodes are skipped, and the search does not
// descend into a node once it matched.
func (n *Node) Find(sel *Selector) []*Node {
	scope := n.Children
	var matched []*Node
	for i, st := range sel.stages {
		if i > 0 {
			scope = scope[:0:0]
			for _, m := range matched {
				scope = append(scope, m.Children...)
			}
		}
		matched = nil
		for _, c := range scope {
			walk(c, func(x *Node) bool {
				if st.match(x) {
					matched = append(matched, x)
					return false
				}
				return true
			})
		}
	}
	return matched
}

// walk visits n and, while fn returns true, its non-comment descendants
// depth first.
func walk(n *Node, fn func(*Node) bool) {
	if n.IsComment() {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		walk(c, fn)
	}
}
