// Package database provides SQLite-based storage of finished crawls.
//
// Every crawl becomes a row in the runs table with its summary, and every
// URL record of the crawl a row in the records table keyed by run and
// discovery id. Runs of the same seed can then be listed and compared.
//
// The database uses modernc.org/sqlite, a CGO-free driver, in WAL mode.
package database
