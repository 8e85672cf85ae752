// Package crawllog writes the per-category crawl logs.
//
// Each category (redirect, error_reply, ignored_url, skipped_url, bad_html,
// bad_url, info and other) has a fixed field list. File sinks (csv, xml and
// xlsx) identify the parent page by id while the console sink prints its
// resolved URL:
//
//	logs, err := crawllog.Open(crawllog.Options{
//		Types:      []string{"console", "csv"},
//		Categories: []crawllog.Category{crawllog.Redirect, crawllog.Other},
//		Dir:        "logs",
//	})
//	if err != nil {
//		return err
//	}
//	defer logs.Close()
//	logs.Redirect("http://example.com/old", crawllog.Parent{ID: 1, URL: "http://example.com/"})
//
// Diagnostic logging of the tool itself goes through log/slog instead.
package crawllog
