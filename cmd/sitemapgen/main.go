// Package main provides the entry point for the sitemapgen CLI.
//
// sitemapgen crawls one web site from a seed URL and writes a sitemap of
// its HTML pages, together with crawl logs, a summary report and an
// optional history of runs in a SQLite database.
//
// Usage:
//
//	sitemapgen crawl https://example.com/
//	sitemapgen init
//	sitemapgen compare https://example.com/
//
// See --help for all available options.
package main

// main is the entry point for sitemapgen.
func main() {
	Execute()
}
