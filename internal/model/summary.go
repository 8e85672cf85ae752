package model

import (
	"sort"
	"time"
)

// Summary condenses a finished crawl into counts for reports and storage.
type Summary struct {
	// Seed is the URL the crawl started from.
	Seed string `json:"seed"`

	// StartedAt is when the crawl started.
	StartedAt time.Time `json:"started_at"`

	// Elapsed is the wall-clock duration of the crawl.
	Elapsed time.Duration `json:"elapsed"`

	// Total is the number of distinct URLs recorded.
	Total int `json:"total"`

	// Parsed is the number of query_parse records.
	Parsed int `json:"parsed"`

	// Queried is the number of HEAD-only records.
	Queried int `json:"queried"`

	// Skipped is the number of records that were recorded but never fetched.
	Skipped int `json:"skipped"`

	// HTMLPages is the number of records whose body was parsed as HTML.
	HTMLPages int `json:"html_pages"`

	// Redirects is the number of records that answered with a redirect.
	Redirects int `json:"redirects"`

	// Errors lists records that ended with a terminal error, other than
	// redirects.
	Errors []RecordError `json:"errors,omitempty"`

	// SitemapFiles lists the sitemap documents written.
	SitemapFiles []string `json:"sitemap_files,omitempty"`

	// Aborted is set when a fatal error stopped the crawl.
	Aborted bool `json:"aborted"`

	// AbortReason is the fatal error message.
	AbortReason string `json:"abort_reason,omitempty"`
}

// RecordError is a terminal per-URL error in a Summary.
type RecordError struct {
	ID      int    `json:"id"`
	URL     string `json:"url"`
	Message string `json:"message"`
}

// redirectError is the terminal marker set on records that answered 3xx.
const redirectError = "Redirect"

// RedirectError is the error recorded on a URL that answered with a redirect.
func RedirectError() string {
	return redirectError
}

// NewSummary counts records into a Summary.
func NewSummary(seed string, started time.Time, elapsed time.Duration, records []*Record) *Summary {
	s := &Summary{
		Seed:      seed,
		StartedAt: started,
		Elapsed:   elapsed,
		Total:     len(records),
	}

	for _, r := range records {
		switch r.Handle {
		case HandleQueryParse:
			s.Parsed++
		case HandleQuery:
			s.Queried++
		case HandleNone:
			s.Skipped++
		}
		if r.IsHTML {
			s.HTMLPages++
		}
		switch {
		case r.Error == redirectError:
			s.Redirects++
		case r.Error != "":
			s.Errors = append(s.Errors, RecordError{ID: r.ID, URL: r.Resolved, Message: r.Error})
		}
	}

	sort.Slice(s.Errors, func(i, j int) bool {
		return s.Errors[i].ID < s.Errors[j].ID
	})

	return s
}

// SetAbort marks the summary as aborted by err. A nil err is ignored.
func (s *Summary) SetAbort(err error) {
	if err == nil {
		return
	}
	s.Aborted = true
	s.AbortReason = err.Error()
}

// ErrorCount returns the number of terminal errors, redirects excluded.
func (s *Summary) ErrorCount() int {
	return len(s.Errors)
}
