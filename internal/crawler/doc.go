// Package crawler fetches the pages of one site and discovers the URLs
// they reference.
//
// A Spider runs a fixed number of workers. Each worker takes a record from
// the frontier, issues a GET (pages) or HEAD (resources), and applies the
// result:
//
//   - no reply or a 5xx answer is retried until the try limit is reached
//   - a TLS verification failure is final
//   - a 3xx answer records the Location target as a new page, up to the
//     redirect limit
//   - any other non-200 answer is final
//   - a 200 text/html page is decoded and tokenized, and every link found
//     is submitted to the frontier
//
// The crawl ends when the last worker finds the queue empty, when the
// context is cancelled, or when a worker panics.
package crawler
