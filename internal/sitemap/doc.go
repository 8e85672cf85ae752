// Package sitemap writes the pages of a finished crawl as sitemap protocol
// documents.
//
// Entries are spread over numbered files (sitemap1.xml, sitemap2.xml, ...)
// so that no file exceeds the entry or byte limit. Sizes are computed as
// the entries are written: the fixed wrapper is measured once on an empty
// document and the markup of one entry on the first entry written, so
// nothing is serialized twice.
//
//	w := &sitemap.Writer{Dir: "out", MaxEntries: 50000, IndexFileName: "sitemap_index"}
//	files, err := w.Write(crawl.Records)
package sitemap
