// Package pipeline runs the finalization steps of a finished crawl.
//
// After the workers stop, the crawl result passes through an ordered list
// of steps: dumping the info log, writing the sitemap, storing the run in
// the database and printing a report. Each step implements Step and may
// complete the shared model.Crawl for the steps after it (the sitemap step
// sets SitemapFiles, the database step sets RunID).
//
// Finalization is best-effort: with WithContinueOnError a failing step is
// logged and the remaining steps still run, so a crawl stopped by a fatal
// error still leaves its partial results behind.
package pipeline
