package model

import "time"

// Crawl is the outcome of one crawl run. It is filled by the crawler and
// completed by the finalization steps.
type Crawl struct {
	// Seed is the start URL as given.
	Seed string

	// StartedAt is when the first worker started.
	StartedAt time.Time

	// Elapsed is the wall-clock duration of the crawl.
	Elapsed time.Duration

	// Records are all URL records in id order.
	Records []*Record

	// Stopped is set when the crawl was interrupted before the queue drained.
	Stopped bool

	// Fatal is the error that aborted the crawl, if any.
	Fatal error

	// SitemapFiles lists the sitemap documents written during finalization.
	SitemapFiles []string

	// RunID is the database id of the run, 0 when not stored.
	RunID int64
}

// Summary counts the records of the crawl.
func (c *Crawl) Summary() *Summary {
	s := NewSummary(c.Seed, c.StartedAt, c.Elapsed, c.Records)
	s.SetAbort(c.Fatal)
	s.SitemapFiles = append([]string(nil), c.SitemapFiles...)
	return s
}
