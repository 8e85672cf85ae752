package model

import (
	"time"
)

// Handle decides what a worker does with a discovered URL.
type Handle int

const (
	// HandleQueryParse fetches the URL with GET and parses the body for links.
	HandleQueryParse Handle = iota

	// HandleQuery only checks the URL exists with HEAD.
	// Used for resources such as images, scripts and stylesheets.
	HandleQuery

	// HandleNone records the URL without fetching it.
	// A skip filter demotes query_parse candidates to this handle.
	HandleNone
)

// String returns the configuration spelling of the handle.
func (h Handle) String() string {
	switch h {
	case HandleQueryParse:
		return "query_parse"
	case HandleQuery:
		return "query"
	case HandleNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseHandle parses the spelling returned by Handle.String. Unknown
// names parse as HandleNone.
func ParseHandle(s string) Handle {
	switch s {
	case "query_parse":
		return HandleQueryParse
	case "query":
		return HandleQuery
	default:
		return HandleNone
	}
}

// Record is one distinct URL discovered during a crawl.
//
// Identity fields (Normalized, Resolved, ID, Parent) are fixed once the
// frontier accepts the record. Visit fields are written only by the worker
// that currently holds the record, so they need no locking.
type Record struct {
	// Found is the reference exactly as it appeared in the parent page.
	Found string

	// Resolved is the absolute URL after resolution against the base href.
	Resolved string

	// Normalized is the deduplication key: no fragment, sorted query,
	// no default port.
	Normalized string

	// Path is the path plus query sent in the request line.
	Path string

	// Host is the host (with non-default port) the request is sent to.
	Host string

	// SSL is true for https URLs.
	SSL bool

	// BaseHref is the base that links found on this page resolve against.
	// It starts as Resolved and is replaced by a <base href>.
	BaseHref string

	// ID is the 1-based discovery order. IDs are gap-free within one crawl.
	ID int

	// Parent is the ID of the page that referenced this URL, 0 for the seed.
	Parent int

	// Handle selects GET+parse, HEAD-only or record-only processing.
	Handle Handle

	// IsHTML is set when the response was 200 with a text/html content type.
	IsHTML bool

	// Charset comes from the Content-Type header or a <meta> tag.
	Charset string

	// Time is the cumulative duration of all fetch attempts.
	Time time.Duration

	// TryCount is the number of fetch attempts made so far.
	TryCount int

	// RedirectCount is the number of redirects followed to reach this URL.
	RedirectCount int

	// StatusCode is the status of the last response, 0 when none arrived.
	StatusCode int

	// ContentType is the Content-Type header of the last response.
	ContentType string

	// Checksum is the xxhash of the page's visible text in hex, empty when
	// the body was not parsed.
	Checksum string

	// Error is the terminal error message. Empty means no error.
	Error string

	// Count is the number of times the URL was discovered again
	// after it was first recorded.
	Count int
}

// Terminal reports whether the record finished with an error.
func (r *Record) Terminal() bool {
	return r.Error != ""
}

// InSitemap reports whether the record belongs in the sitemap.
// HEAD-only resources never do, and parsed pages only when they were HTML.
func (r *Record) InSitemap() bool {
	switch r.Handle {
	case HandleQuery:
		return false
	case HandleQueryParse:
		return r.IsHTML
	default:
		return true
	}
}
