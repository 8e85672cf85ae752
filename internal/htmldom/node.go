package htmldom

import (
	"regexp"
	"strings"
)

// CommentTag is the tag name given to comment nodes.
const CommentTag = "<!--"

// Attribute is one name/value pair of an element, in source order.
type Attribute struct {
	Key   string
	Value string
}

// Node is an element, text or comment node of a parsed document.
//
// A node is owned by its parent's Children slice. Parent is a plain
// back-reference and is nil only for a document root.
type Node struct {
	// TagName is empty for text nodes and CommentTag for comments.
	TagName string

	// Attributes keeps the order attributes appeared in. A repeated key
	// overwrites the earlier value in place.
	Attributes []Attribute

	// ContentText is the text of a text node, the body of a comment or
	// the raw source of a script element.
	ContentText string

	// Index is the position of an element among its parent's element
	// children, starting at 0. Text and comment nodes have Index -1.
	Index int

	// NodeCount is the number of element children created so far.
	NodeCount int

	// Children are the child nodes in document order.
	Children []*Node

	// Parent is nil for the document root.
	Parent *Node
}

// NewRoot returns an empty document root.
func NewRoot() *Node {
	return &Node{Index: -1}
}

// IsText reports whether n is a text node.
func (n *Node) IsText() bool {
	return n.TagName == "" && n.Parent != nil
}

// IsComment reports whether n is a comment node.
func (n *Node) IsComment() bool {
	return n.TagName == CommentTag
}

// IsDirective reports whether n is a markup directive such as <!DOCTYPE>.
// Directives never have children.
func (n *Node) IsDirective() bool {
	return strings.HasPrefix(n.TagName, "!")
}

// IsElement reports whether n is an ordinary element.
func (n *Node) IsElement() bool {
	return n.TagName != "" && !n.IsComment() && !n.IsDirective()
}

// Is reports whether n is an element with the given tag name, ignoring case.
func (n *Node) Is(tag string) bool {
	return strings.EqualFold(n.TagName, tag)
}

// LookupAttr returns the value of the named attribute and whether it is present.
// Attribute names are compared without regard to case.
func (n *Node) LookupAttr(name string) (string, bool) {
	for _, a := range n.Attributes {
		if strings.EqualFold(a.Key, name) {
			return a.Value, true
		}
	}
	return "", false
}

// Attr returns the value of the named attribute or "" when absent.
func (n *Node) Attr(name string) string {
	v, _ := n.LookupAttr(name)
	return v
}

// setAttr stores an attribute. Without overwrite an existing value is kept.
func (n *Node) setAttr(key, value string, overwrite bool) {
	if key == "" {
		return
	}
	for i := range n.Attributes {
		if n.Attributes[i].Key == key {
			if overwrite {
				n.Attributes[i].Value = value
			}
			return
		}
	}
	n.Attributes = append(n.Attributes, Attribute{Key: key, Value: value})
}

// Path returns the tag names from the outermost element down to n.
func (n *Node) Path() []string {
	var names []string
	for cur := n; cur != nil && cur.Parent != nil; cur = cur.Parent {
		names = append(names, cur.TagName)
	}
	for i, j := 0, len(names)-1; i < j; i, j = i+1, j-1 {
		names[i], names[j] = names[j], names[i]
	}
	return names
}

// PlainText returns the text content of n and its descendants.
// Script bodies and comments are left out.
func (n *Node) PlainText() string {
	var sb strings.Builder
	n.plainText(&sb)
	return sb.String()
}

func (n *Node) plainText(sb *strings.Builder) {
	if n.Is("script") || n.IsComment() {
		return
	}
	sb.WriteString(n.ContentText)
	for _, c := range n.Children {
		c.plainText(sb)
	}
}

var (
	metaSelector   = MustCompile("meta")
	charsetPattern = regexp.MustCompile(`(?i)charset=([a-zA-Z0-9\-_]+)`)
)

// Charset returns the character set declared by a <meta http-equiv="content-type">
// or <meta charset> element below n. When none is declared def is returned.
func (n *Node) Charset(def string) string {
	found := ""
	for _, meta := range n.Find(metaSelector) {
		walk(meta, func(m *Node) bool {
			if found != "" {
				return false
			}
			if strings.EqualFold(m.Attr("http-equiv"), "content-type") {
				if content := m.Attr("content"); content != "" {
					found = CharsetFromContentType(content, def)
					return false
				}
			}
			if cs := m.Attr("charset"); cs != "" {
				found = cs
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	return def
}

// CharsetFromContentType extracts the charset parameter of a Content-Type
// value. It falls back to a charset parameter in def, then to def itself.
func CharsetFromContentType(contentType, def string) string {
	if m := charsetPattern.FindStringSubmatch(contentType); m != nil {
		return m[1]
	}
	if m := charsetPattern.FindStringSubmatch(def); m != nil {
		return m[1]
	}
	return def
}
