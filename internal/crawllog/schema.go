package crawllog

// Category names one crawl log. The name is also the base name of the
// category's log files.
type Category string

const (
	// Redirect records every 3xx answer.
	Redirect Category = "redirect"
	// ErrorReply records redirect chains that were cut off.
	ErrorReply Category = "error_reply"
	// IgnoredURL records references rejected by scope or filters.
	IgnoredURL Category = "ignored_url"
	// SkippedURL records URLs demoted to handle none by a skip filter.
	SkippedURL Category = "skipped_url"
	// BadHTML records tags that were never closed.
	BadHTML Category = "bad_html"
	// BadURL records references that could not be parsed.
	BadURL Category = "bad_url"
	// Info records one line per fetched URL.
	Info Category = "info"
	// Other records crawl-wide notices such as the URL limit.
	Other Category = "other"
)

// Categories lists every category in a stable order.
var Categories = []Category{Redirect, ErrorReply, IgnoredURL, SkippedURL, BadHTML, BadURL, Info, Other}

// Field names used in log headers and console lines.
const (
	FieldID      = "id"
	FieldFound   = "found"
	FieldURL     = "url"
	FieldParent  = "parent"
	FieldTime    = "time"
	FieldIsHTML  = "is_html"
	FieldTryCnt  = "try_cnt"
	FieldCnt     = "cnt"
	FieldCharset = "charset"
	FieldMsg     = "msg"
	FieldThread  = "thread"
)

// Schema is the ordered field list of one category. File logs refer to the
// parent by id, console logs by its resolved URL.
type Schema struct {
	File    []string
	Console []string
}

var schemas = map[Category]Schema{
	Redirect: {
		File:    []string{FieldURL, FieldParent},
		Console: []string{FieldURL, FieldParent},
	},
	ErrorReply: {
		File:    []string{FieldMsg, FieldURL, FieldParent},
		Console: []string{FieldMsg, FieldURL, FieldParent},
	},
	IgnoredURL: {
		File:    []string{FieldFound, FieldParent},
		Console: []string{FieldFound, FieldParent},
	},
	SkippedURL: {
		File:    []string{FieldURL, FieldParent},
		Console: []string{FieldURL, FieldParent},
	},
	BadHTML: {
		File:    []string{FieldMsg, FieldID},
		Console: []string{FieldMsg, FieldURL},
	},
	BadURL: {
		File:    []string{FieldFound, FieldParent},
		Console: []string{FieldFound, FieldParent},
	},
	Info: {
		File: []string{
			FieldID, FieldParent, FieldTime, FieldTryCnt, FieldCnt,
			FieldIsHTML, FieldFound, FieldURL, FieldCharset, FieldMsg,
		},
		Console: []string{FieldThread, FieldTime, FieldURL, FieldParent},
	},
	Other: {
		File:    []string{FieldMsg},
		Console: []string{FieldMsg},
	},
}

// SchemaOf returns the field lists of c.
func SchemaOf(c Category) (Schema, bool) {
	s, ok := schemas[c]
	return s, ok
}

// ParseCategory maps a configuration name to a Category.
func ParseCategory(name string) (Category, bool) {
	c := Category(name)
	_, ok := schemas[c]
	return c, ok
}
