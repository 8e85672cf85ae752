// Package model defines the data shared by the crawler, the sitemap writer
// and the finalization steps.
//
//   - Record: one distinct URL with its visit metadata
//   - Handle: how a URL is processed (GET and parse, HEAD only, record only)
//   - Crawl: the outcome of one run
//   - Summary: counts derived from the records for reports and storage
//
// The types live in their own package so that crawler, sitemap, database
// and report can share them without import cycles.
package model
