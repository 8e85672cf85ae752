// Package log builds the diagnostic logger of sitemapgen on top of slog.
//
// Crawls are configured with cookies, custom headers and proxy URLs, and
// the pages they visit often carry session identifiers in their query
// strings. The handler returned by New removes those before a record is
// written:
//
//	logger := log.New(os.Stderr, log.FormatJSON, verbose)
//	logger.Info("crawl started",
//	    "url", "https://user:pw@example.com/?sid=42&page=2", // https://***REDACTED***@example.com/?sid=***REDACTED***&page=2
//	    "cookie", "session=abc",                            // ***REDACTED***
//	)
//
// Crawl results go through package crawllog instead; this logger only
// carries diagnostics about the program itself.
package log
