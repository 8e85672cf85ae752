package crawler

import (
	"strings"

	"github.com/nao1215/sitemapgen/internal/htmldom"
	"github.com/saintfish/chardet"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// prescanLen is how much of a body is searched for a <meta> charset.
const prescanLen = 1024

// decodeBody returns the body as UTF-8 text. headerCharset comes from the
// Content-Type header; without it a byte order mark or a <meta> charset in
// the first kilobyte is used. declared is the charset found by that
// prescan, empty when the header named one or nothing was declared.
func decodeBody(body []byte, headerCharset string) (text, declared string) {
	var enc encoding.Encoding
	switch {
	case headerCharset != "":
		e, err := htmlindex.Get(headerCharset)
		if err != nil {
			return string(body), ""
		}
		enc = e
	default:
		// Only a byte order mark makes DetermineEncoding certain here;
		// its uncertain answers include a windows-1252 guess.
		if e, name, certain := charset.DetermineEncoding(body, "text/html"); certain {
			enc, declared = e, name
			break
		}
		cs := prescanCharset(body)
		if cs == "" {
			return string(body), ""
		}
		e, err := htmlindex.Get(cs)
		if err != nil {
			return string(body), cs
		}
		enc, declared = e, cs
	}

	if name, err := htmlindex.Name(enc); err == nil && name == "utf-8" {
		return string(body), declared
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body), declared
	}
	return string(decoded), declared
}

// prescanCharset returns the charset a <meta> element in the head of body
// declares, or "".
func prescanCharset(body []byte) string {
	if len(body) > prescanLen {
		body = body[:prescanLen]
	}
	return htmldom.Parse(string(body)).Charset("")
}

// detectCharset guesses the charset of a body that declares none.
func detectCharset(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	res, err := chardet.NewHtmlDetector().DetectBest(body)
	if err != nil || res == nil {
		return ""
	}
	return strings.ToLower(res.Charset)
}
