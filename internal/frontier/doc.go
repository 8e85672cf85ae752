// Package frontier keeps the URL records of a crawl and hands them to
// workers.
//
// Every distinct normalized URL gets exactly one record with an id in
// discovery order. Records are stored in an append-only slice and the work
// queue holds indices into it. Workers loop on Acquire; a worker that finds
// the queue empty parks, and when the last active worker parks the crawl is
// over and every waiting worker is released.
package frontier
