// Package xmlwriter provides a small streaming XML writer that indents
// elements with tabs. It is shared by the sitemap documents and the XML
// crawl logs.
package xmlwriter

import (
	"errors"
	"io"
	"strings"
)

// Errors returned for calls made in the wrong order.
var (
	// ErrNoOpenElement is returned by EndElement when nothing is open.
	ErrNoOpenElement = errors.New("no element is open")

	// ErrAttrOutsideTag is returned by Attr after the start tag was closed.
	ErrAttrOutsideTag = errors.New("attribute written outside an open start tag")

	// ErrDocumentStarted is returned by StartDocument on a non-empty stack.
	ErrDocumentStarted = errors.New("document already started")
)

// Prolog is the XML declaration written by StartDocument.
const Prolog = `<?xml version="1.0" encoding="UTF-8"?>`

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"'", "&apos;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

// Escape replaces the five XML special characters with entities.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Writer writes one XML document. The first write error is kept and
// returned by every later call.
type Writer struct {
	w         io.Writer
	open      []string
	tagOpen   bool
	lastStart bool
	err       error
}

// New returns a Writer that writes to w.
func New(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (x *Writer) write(s string) error {
	if x.err != nil {
		return x.err
	}
	_, x.err = io.WriteString(x.w, s)
	return x.err
}

func (x *Writer) closeStartTag() error {
	if x.tagOpen {
		x.tagOpen = false
		return x.write(">")
	}
	return x.err
}

// StartDocument writes the XML declaration.
func (x *Writer) StartDocument() error {
	if len(x.open) > 0 {
		return ErrDocumentStarted
	}
	return x.write(Prolog)
}

// EndDocument closes every element that is still open.
func (x *Writer) EndDocument() error {
	for len(x.open) > 0 {
		if err := x.EndElement(); err != nil {
			return err
		}
	}
	return x.err
}

// StartElement opens name on a new line indented by the current depth.
func (x *Writer) StartElement(name string) error {
	if err := x.closeStartTag(); err != nil {
		return err
	}
	if err := x.write("\n" + strings.Repeat("\t", len(x.open)) + "<" + name); err != nil {
		return err
	}
	x.open = append(x.open, name)
	x.tagOpen = true
	x.lastStart = true
	return nil
}

// Attr adds an attribute to the element opened last. It must be called
// before any content is written into that element.
func (x *Writer) Attr(name, value string) error {
	if !x.tagOpen {
		return ErrAttrOutsideTag
	}
	return x.write(" " + name + `="` + Escape(value) + `"`)
}

// Text writes escaped character data.
func (x *Writer) Text(s string) error {
	if err := x.closeStartTag(); err != nil {
		return err
	}
	return x.write(Escape(s))
}

// Raw writes s without escaping. s must already be escaped.
func (x *Writer) Raw(s string) error {
	if err := x.closeStartTag(); err != nil {
		return err
	}
	return x.write(s)
}

// EndElement closes the innermost open element. An element that received
// children is closed on its own line.
func (x *Writer) EndElement() error {
	if len(x.open) == 0 {
		return ErrNoOpenElement
	}
	if err := x.closeStartTag(); err != nil {
		return err
	}
	name := x.open[len(x.open)-1]
	x.open = x.open[:len(x.open)-1]
	if !x.lastStart {
		if err := x.write("\n" + strings.Repeat("\t", len(x.open))); err != nil {
			return err
		}
	}
	x.lastStart = false
	return x.write("</" + name + ">")
}

// Element writes <name>text</name>.
func (x *Writer) Element(name, text string) error {
	if err := x.StartElement(name); err != nil {
		return err
	}
	if err := x.Text(text); err != nil {
		return err
	}
	return x.EndElement()
}

// Depth returns the number of open elements.
func (x *Writer) Depth() int {
	return len(x.open)
}

// Err returns the first write error.
func (x *Writer) Err() error {
	return x.err
}
