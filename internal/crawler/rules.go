package crawler

import (
	"regexp"
	"strings"

	"github.com/nao1215/sitemapgen/internal/htmldom"
	"github.com/nao1215/sitemapgen/internal/model"
)

// attrHandler processes an attribute value itself. It returns true when the
// value should still be submitted as a plain existence check.
type attrHandler func(pg *page, n *htmldom.Node, value string) bool

type attrRule struct {
	name string
	pre  attrHandler
}

type tagRule struct {
	// tag is the element name, "*" matches every element.
	tag   string
	attrs []attrRule
}

// pageTags are followed and parsed.
var pageTags = []string{"a", "area"}

// resourceRules are checked with HEAD requests when link checking is on.
var resourceRules = []tagRule{
	{tag: "meta", attrs: []attrRule{{name: "content", pre: metaCharset}, {name: "content", pre: metaRefresh}}},
	{tag: "a", attrs: []attrRule{{name: "ping"}}},
	{tag: "area", attrs: []attrRule{{name: "ping"}}},
	{tag: "audio", attrs: []attrRule{{name: "src"}}},
	{tag: "body", attrs: []attrRule{{name: "background"}}},
	{tag: "frame", attrs: []attrRule{{name: "src"}, {name: "longdesc"}}},
	{tag: "iframe", attrs: []attrRule{{name: "src"}, {name: "longdesc"}}},
	{tag: "img", attrs: []attrRule{{name: "src"}, {name: "srcset", pre: srcset}, {name: "longdesc"}}},
	{tag: "input", attrs: []attrRule{{name: "src"}, {name: "formaction"}}},
	{tag: "source", attrs: []attrRule{{name: "src"}, {name: "srcset", pre: srcset}}},
	{tag: "table", attrs: []attrRule{{name: "background"}}},
	{tag: "tbody", attrs: []attrRule{{name: "background"}}},
	{tag: "td", attrs: []attrRule{{name: "background"}}},
	{tag: "tfoot", attrs: []attrRule{{name: "background"}}},
	{tag: "th", attrs: []attrRule{{name: "background"}}},
	{tag: "thead", attrs: []attrRule{{name: "background"}}},
	{tag: "tr", attrs: []attrRule{{name: "background"}}},
	{tag: "track", attrs: []attrRule{{name: "src"}}},
	{tag: "video", attrs: []attrRule{{name: "poster"}, {name: "src"}}},
	{tag: "button", attrs: []attrRule{{name: "formaction"}}},
	{tag: "form", attrs: []attrRule{{name: "action"}}},
	{tag: "link", attrs: []attrRule{{name: "href"}}},
	{tag: "script", attrs: []attrRule{{name: "src"}}},
	{tag: "blockquote", attrs: []attrRule{{name: "cite"}}},
	{tag: "del", attrs: []attrRule{{name: "cite"}}},
	{tag: "head", attrs: []attrRule{{name: "profile"}}},
	{tag: "html", attrs: []attrRule{{name: "manifest"}}},
	{tag: "ins", attrs: []attrRule{{name: "cite"}}},
	{tag: "q", attrs: []attrRule{{name: "cite"}}},
	{tag: "*", attrs: []attrRule{{name: "itemtype"}}},
}

// metaRulesAlways are applied even without link checking because they
// affect the page itself.
var metaRulesAlways = []attrRule{{name: "content", pre: metaCharset}, {name: "content", pre: metaRefresh}}

var refreshPattern = regexp.MustCompile(`(?i)^[\d\s]+;\s*url\s*=\s*(.+)$`)

// metaCharset takes the charset of <meta http-equiv="content-type"> when
// none is known yet. <meta charset> is read from the finished tree.
func metaCharset(pg *page, n *htmldom.Node, value string) bool {
	if pg.rec.Charset != "" || !strings.EqualFold(n.Attr("http-equiv"), "content-type") {
		return false
	}
	if cs := htmldom.CharsetFromContentType(value, ""); cs != "" {
		pg.rec.Charset = cs
	}
	return false
}

// metaRefresh follows <meta http-equiv="refresh" content="0; url=...">.
func metaRefresh(pg *page, n *htmldom.Node, value string) bool {
	if !strings.EqualFold(n.Attr("http-equiv"), "refresh") {
		return false
	}
	if m := refreshPattern.FindStringSubmatch(strings.TrimSpace(value)); m != nil {
		target := strings.Trim(strings.TrimSpace(m[1]), `'"`)
		pg.submit(target, model.HandleQueryParse)
	}
	return false
}

// srcset submits the URL of every image candidate.
func srcset(pg *page, _ *htmldom.Node, value string) bool {
	for _, candidate := range strings.Split(value, ",") {
		fields := strings.Fields(candidate)
		if len(fields) == 0 {
			continue
		}
		pg.submit(fields[0], model.HandleQuery)
	}
	return false
}

// onTag handles one opened element of the page being parsed.
func (pg *page) onTag(n *htmldom.Node) {
	if n.IsDirective() {
		return
	}
	if n.Is("base") {
		if href := n.Attr("href"); href != "" {
			pg.setBase(href)
		}
		return
	}
	for _, tag := range pageTags {
		if n.Is(tag) {
			if href := n.Attr("href"); href != "" {
				pg.submit(href, model.HandleQueryParse)
			}
			break
		}
	}

	if !pg.linkCheck {
		if n.Is("meta") {
			pg.applyAttrs(n, metaRulesAlways)
		}
		return
	}
	for _, rule := range resourceRules {
		if rule.tag == "*" || n.Is(rule.tag) {
			pg.applyAttrs(n, rule.attrs)
		}
	}
}

func (pg *page) applyAttrs(n *htmldom.Node, attrs []attrRule) {
	for _, a := range attrs {
		value := n.Attr(a.name)
		if value == "" {
			continue
		}
		if a.pre != nil && !a.pre(pg, n, value) {
			continue
		}
		pg.submit(value, model.HandleQuery)
	}
}
