package htmldom

import (
	"strings"
)

// Stage tells a NodeHandler whether a node was opened or closed.
type Stage int

const (
	// TagOpen fires once the start tag and all its attributes are read.
	TagOpen Stage = iota
	// TagClose fires when the element's end tag is matched.
	TagClose
)

// ErrorKind classifies structural problems found while parsing.
type ErrorKind int

const (
	// ErrTagNotClosed reports an element abandoned by an end tag that
	// matched one of its ancestors.
	ErrTagNotClosed ErrorKind = iota
)

// String returns a short description of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case ErrTagNotClosed:
		return "tag not closed"
	default:
		return "unknown"
	}
}

// NodeHandler receives open and close events. Text nodes produce an open
// event immediately followed by a close event.
type NodeHandler func(stage Stage, n *Node)

// ErrorHandler receives structural error notifications.
type ErrorHandler func(kind ErrorKind, n *Node)

// Document is a parse tree that grows with every appended chunk.
// A Document is not safe for concurrent use.
type Document struct {
	// Root is the parent of every top level node.
	Root *Node

	onNode  NodeHandler
	onError ErrorHandler
}

// Option configures a Document.
type Option func(*Document)

// WithNodeHandler registers the callback for open and close events.
func WithNodeHandler(fn NodeHandler) Option {
	return func(d *Document) {
		d.onNode = fn
	}
}

// WithErrorHandler registers the callback for structural errors.
func WithErrorHandler(fn ErrorHandler) Option {
	return func(d *Document) {
		d.onError = fn
	}
}

// NewDocument returns an empty document.
func NewDocument(opts ...Option) *Document {
	d := &Document{Root: NewRoot()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Append parses one chunk of markup into the document. Each chunk is a
// complete pass: it starts in text state at the root.
func (d *Document) Append(src string) {
	t := &tokenizer{doc: d, src: src, current: d.Root}
	t.run()
}

// Parse parses src into a new document and returns its root.
func Parse(src string, opts ...Option) *Node {
	d := NewDocument(opts...)
	d.Append(src)
	return d.Root
}

type state int

const (
	stateText state = iota
	stateTagName
	stateAttrScan
	stateAttrKey
	stateAttrValue
	stateClosingTag
	stateMarkupDecl
	stateCommentOpen
	stateCommentBody
	stateCommentDash
	stateCommentEnd
	// stateScript is followed by one state per character of scriptCloser
	// after the first, so stateScript+k expects scriptCloser[k].
	stateScript
)

const scriptCloser = "</script>"

// voidElements never have end tags and are not reported as unclosed.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

type tokenizer struct {
	doc *Document
	src string
	pos int

	st      state
	current *Node

	tag     []byte
	content []byte
	key     []byte
	val     []byte

	ignoreBlank bool

	// comments holds the state to return to for every open comment.
	comments []state

	// aborted holds elements whose start tag was given up. They never
	// send events.
	aborted map[*Node]bool
}

func (t *tokenizer) next() (byte, bool) {
	if t.pos >= len(t.src) {
		return 0, false
	}
	c := t.src[t.pos]
	t.pos++
	return c, true
}

func (t *tokenizer) peek() byte {
	if t.pos >= len(t.src) {
		return 0
	}
	return t.src[t.pos]
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

func (t *tokenizer) run() {
	for {
		c, ok := t.next()
		if !ok {
			t.finish()
			return
		}
		t.step(c)
	}
}

func (t *tokenizer) step(c byte) {
	switch t.st {
	case stateText:
		t.text(c)
	case stateTagName:
		t.tagName(c)
	case stateAttrScan:
		t.attrScan(c)
	case stateAttrKey:
		t.attrKey(c)
	case stateAttrValue:
		t.attrValue(c)
	case stateClosingTag:
		t.closingTag(c)
	case stateMarkupDecl, stateCommentOpen:
		t.markupDecl(c)
	case stateCommentBody, stateCommentDash, stateCommentEnd:
		t.comment(c)
	default:
		t.script(c)
	}
}

func (t *tokenizer) text(c byte) {
	switch {
	case c == '<':
		t.flushText()
		t.st = stateTagName
	case isBlank(c):
		if !t.ignoreBlank {
			t.ignoreBlank = true
			t.content = append(t.content, ' ')
		}
	default:
		t.content = append(t.content, c)
		t.ignoreBlank = false
	}
}

func (t *tokenizer) tagName(c byte) {
	switch {
	case isBlank(c):
		if len(t.tag) == 0 {
			// "< " is not a tag.
			t.st = stateText
			t.content = append(t.content, '<')
			t.text(c)
			return
		}
		t.openNode()
		t.st = stateAttrScan
	case c == '>':
		if len(t.tag) == 0 {
			t.st = stateText
			return
		}
		t.openNode()
		t.completeTag()
	case c == '/':
		if len(t.tag) == 0 {
			t.st = stateClosingTag
			return
		}
		t.openNode()
		if t.peek() == '>' {
			t.pos++
			t.selfClose()
			return
		}
		t.st = stateAttrScan
	case c == '!' && len(t.tag) == 0:
		t.tag = append(t.tag, c)
		t.st = stateMarkupDecl
	default:
		t.tag = append(t.tag, c)
	}
}

func (t *tokenizer) attrScan(c byte) {
	switch {
	case isBlank(c):
	case c == '>':
		t.completeTag()
	case c == '/':
		if t.peek() == '>' {
			t.pos++
		}
		t.selfClose()
	case c == '"' || c == '\'':
		s, ok := t.quoted(c)
		if !ok {
			t.abortTag()
			return
		}
		t.key = append(t.key[:0], s...)
		t.st = stateAttrKey
	default:
		t.key = append(t.key, c)
		t.st = stateAttrKey
	}
}

func (t *tokenizer) attrKey(c byte) {
	switch {
	case isBlank(c):
		t.storeAttr(false)
		t.st = stateAttrScan
	case c == '=':
		t.st = stateAttrValue
	case c == '>':
		t.storeAttr(false)
		t.completeTag()
	case c == '/' && t.peek() == '>':
		t.pos++
		t.storeAttr(false)
		t.selfClose()
	default:
		t.key = append(t.key, c)
	}
}

func (t *tokenizer) attrValue(c byte) {
	switch {
	case c == '"' || c == '\'':
		s, ok := t.quoted(c)
		if !ok {
			t.abortTag()
			return
		}
		t.val = append(t.val[:0], s...)
		t.storeAttr(true)
		t.st = stateAttrScan
	case isBlank(c):
		t.storeAttr(true)
		t.st = stateAttrScan
	case c == '>':
		t.storeAttr(true)
		t.completeTag()
	default:
		t.val = append(t.val, c)
	}
}

// quoted reads up to the closing quote q. A doubled quote is a literal
// quote character. A newline or end of input before the closing quote
// makes the value unterminated.
func (t *tokenizer) quoted(q byte) (string, bool) {
	var sb strings.Builder
	for {
		c, ok := t.next()
		if !ok || c == '\n' {
			return "", false
		}
		if c == q {
			if t.peek() != q {
				return sb.String(), true
			}
			t.pos++
		}
		sb.WriteByte(c)
	}
}

// abortTag gives up on the tag being read after an unterminated quote.
// The element stays in the tree but no open or close event is sent for it.
func (t *tokenizer) abortTag() {
	if t.aborted == nil {
		t.aborted = make(map[*Node]bool)
	}
	t.aborted[t.current] = true
	t.key = t.key[:0]
	t.val = t.val[:0]
	t.st = stateText
}

func (t *tokenizer) storeAttr(overwrite bool) {
	t.current.setAttr(string(t.key), string(t.val), overwrite)
	t.key = t.key[:0]
	t.val = t.val[:0]
}

func (t *tokenizer) closingTag(c byte) {
	switch {
	case c == '>':
		name := string(t.tag)
		t.tag = t.tag[:0]
		t.st = stateText
		if name != "" {
			t.closeTag(name)
		}
	case isBlank(c):
	default:
		t.tag = append(t.tag, c)
	}
}

// closeTag closes the nearest open element named name. Elements between
// the current node and the match are abandoned without a close event and
// reported to the error handler. A name with no open match is dropped.
func (t *tokenizer) closeTag(name string) {
	var target *Node
	for n := t.current; n != nil && n.Parent != nil; n = n.Parent {
		if strings.EqualFold(n.TagName, name) {
			target = n
			break
		}
	}
	if target == nil {
		return
	}
	for n := t.current; n != target; n = n.Parent {
		t.reportUnclosed(n)
	}
	if !t.aborted[target] {
		t.emit(TagClose, target)
	}
	t.current = target.Parent
}

func (t *tokenizer) reportUnclosed(n *Node) {
	if t.doc.onError == nil || t.aborted[n] || voidElements[strings.ToLower(n.TagName)] {
		return
	}
	t.doc.onError(ErrTagNotClosed, n)
}

func (t *tokenizer) markupDecl(c byte) {
	nested := len(t.comments) > 0
	if c == '-' {
		if t.st == stateMarkupDecl {
			t.st = stateCommentOpen
			if !nested {
				t.tag = append(t.tag, c)
			}
			return
		}
		if nested {
			t.content = append(t.content, CommentTag...)
			t.comments = append(t.comments, stateCommentBody)
		} else {
			t.tag = t.tag[:0]
			t.comments = append(t.comments, stateText)
		}
		t.st = stateCommentBody
		return
	}

	if nested {
		t.content = append(t.content, "<!"...)
		if t.st == stateCommentOpen {
			t.content = append(t.content, '-')
		}
		t.st = stateCommentBody
		t.comment(c)
		return
	}
	t.st = stateTagName
	t.tagName(c)
}

func (t *tokenizer) comment(c byte) {
	switch t.st {
	case stateCommentBody:
		switch {
		case c == '<' && t.peek() == '!':
			t.pos++
			t.st = stateMarkupDecl
		case c == '-':
			t.st = stateCommentDash
		default:
			t.content = append(t.content, c)
		}
	case stateCommentDash:
		if c == '-' {
			t.st = stateCommentEnd
			return
		}
		t.content = append(t.content, '-')
		t.st = stateCommentBody
		t.comment(c)
	case stateCommentEnd:
		switch c {
		case '>':
			t.closeComment()
		case '-':
			t.content = append(t.content, '-')
		default:
			t.content = append(t.content, "--"...)
			t.st = stateCommentBody
			t.comment(c)
		}
	}
}

// closeComment pops one comment level. The comment node is only created
// when the outermost comment closes.
func (t *tokenizer) closeComment() {
	ret := t.comments[len(t.comments)-1]
	t.comments = t.comments[:len(t.comments)-1]
	t.st = ret
	if ret != stateText {
		t.content = append(t.content, "-->"...)
		return
	}
	t.current.Children = append(t.current.Children, &Node{
		TagName:     CommentTag,
		ContentText: string(t.content),
		Index:       -1,
		Parent:      t.current,
	})
	t.content = t.content[:0]
}

func (t *tokenizer) script(c byte) {
	k := int(t.st - stateScript)
	if lower(c) == scriptCloser[k] {
		if k == len(scriptCloser)-1 {
			raw := t.content[:len(t.content)-(len(scriptCloser)-1)]
			t.current.ContentText = string(raw)
			t.content = t.content[:0]
			t.st = stateText
			t.emit(TagClose, t.current)
			t.current = t.current.Parent
			return
		}
		t.content = append(t.content, c)
		t.st++
		return
	}
	t.content = append(t.content, c)
	if c == '<' {
		t.st = stateScript + 1
	} else {
		t.st = stateScript
	}
}

func lower(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// openNode creates an element for the tag name read so far and makes it
// the current node.
func (t *tokenizer) openNode() {
	n := &Node{
		TagName: string(t.tag),
		Index:   t.current.NodeCount,
		Parent:  t.current,
	}
	t.current.NodeCount++
	t.current.Children = append(t.current.Children, n)
	t.current = n
	t.tag = t.tag[:0]
}

// completeTag handles the '>' that ends a start tag.
func (t *tokenizer) completeTag() {
	n := t.current
	t.st = stateText
	t.emit(TagOpen, n)
	switch {
	case n.IsDirective():
		t.emit(TagClose, n)
		t.current = n.Parent
	case n.Is("script"):
		t.st = stateScript
	}
}

func (t *tokenizer) selfClose() {
	n := t.current
	t.st = stateText
	t.emit(TagOpen, n)
	t.emit(TagClose, n)
	t.current = n.Parent
}

func (t *tokenizer) flushText() {
	if len(t.content) == 0 {
		return
	}
	n := &Node{
		ContentText: string(t.content),
		Index:       -1,
		Parent:      t.current,
	}
	t.current.Children = append(t.current.Children, n)
	t.content = t.content[:0]
	t.emit(TagOpen, n)
	t.emit(TagClose, n)
}

// finish runs at the end of a chunk. Trailing text becomes a text node and
// an unterminated script keeps what was captured.
func (t *tokenizer) finish() {
	switch {
	case t.st == stateText:
		t.flushText()
	case t.st >= stateScript:
		t.current.ContentText = string(t.content)
		t.content = t.content[:0]
	}
}

func (t *tokenizer) emit(stage Stage, n *Node) {
	if t.doc.onNode != nil {
		t.doc.onNode(stage, n)
	}
}
