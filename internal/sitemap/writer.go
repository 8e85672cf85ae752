package sitemap

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/nao1215/sitemapgen/internal/model"
	"github.com/nao1215/sitemapgen/internal/xmlwriter"
)

// Namespace is the sitemap protocol namespace.
const Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// Defaults used when a Writer field is zero.
const (
	DefaultFileName   = "sitemap"
	DefaultMaxEntries = 1000000
	DefaultMaxBytes   = 1024 * 1024
)

// ErrNoDir is returned by Write when Dir is empty.
var ErrNoDir = errors.New("sitemap directory is empty")

// Writer splits the sitemap entries of a crawl over numbered documents.
type Writer struct {
	// Dir receives the documents.
	Dir string

	// FileName is the document name prefix: <FileName><n>.xml.
	FileName string

	// IndexFileName enables <IndexFileName>.xml when not empty.
	IndexFileName string

	// MaxEntries is the number of <url> entries per document.
	MaxEntries int

	// MaxBytes is the size limit of one document.
	MaxBytes int64

	// Tags adds elements to every entry after <loc>.
	Tags []TagRule

	// BaseURL prefixes document names in the index.
	BaseURL string
}

// countingWriter counts the bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// document is one open numbered sitemap file.
type document struct {
	f   *os.File
	cw  *countingWriter
	xml *xmlwriter.Writer
}

func (w *Writer) fileName() string {
	if w.FileName == "" {
		return DefaultFileName
	}
	return w.FileName
}

func (w *Writer) path(n int) string {
	return filepath.Join(w.Dir, w.fileName()+strconv.Itoa(n)+".xml")
}

func (w *Writer) open(n int) (*document, error) {
	f, err := os.Create(w.path(n))
	if err != nil {
		return nil, fmt.Errorf("failed to create sitemap file: %w", err)
	}
	cw := &countingWriter{w: f}
	d := &document{f: f, cw: cw, xml: xmlwriter.New(cw)}
	if err := startURLSet(d.xml); err != nil {
		_ = f.Close()
		return nil, err
	}
	return d, nil
}

func (d *document) close() error {
	err := d.xml.EndDocument()
	if cerr := d.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func startURLSet(x *xmlwriter.Writer) error {
	if err := x.StartDocument(); err != nil {
		return err
	}
	if err := x.StartElement("urlset"); err != nil {
		return err
	}
	if err := x.Attr("xmlns", Namespace); err != nil {
		return err
	}
	// Flush the root's ">" so it is not counted as part of the first entry.
	return x.Raw("")
}

// wrapperSize renders an empty document and returns its size. A document
// with entries closes the root on its own line, one byte more.
func wrapperSize() (int64, error) {
	cw := &countingWriter{w: io.Discard}
	x := xmlwriter.New(cw)
	if err := startURLSet(x); err != nil {
		return 0, err
	}
	if err := x.EndDocument(); err != nil {
		return 0, err
	}
	return cw.n + 1, nil
}

type tag struct {
	name, value string
}

// Write renders the sitemap entries of records and returns the paths of
// the documents written, followed by the index when one is configured.
//
// HEAD-only records and query_parse records that were not HTML are left
// out. The size of an entry is its escaped text plus a fixed markup
// overhead measured on the first entry, so documents are never re-read.
func (w *Writer) Write(records []*model.Record) ([]string, error) {
	if w.Dir == "" {
		return nil, ErrNoDir
	}
	if err := os.MkdirAll(w.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create sitemap directory: %w", err)
	}
	maxEntries := w.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	maxBytes := w.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	wrap, err := wrapperSize()
	if err != nil {
		return nil, err
	}

	n := 1
	doc, err := w.open(n)
	if err != nil {
		return nil, err
	}
	files := []string{w.path(n)}

	var (
		entries  int
		pos      int64
		overhead int64
		measured bool
	)
	for _, rec := range records {
		if !rec.InSitemap() {
			continue
		}
		tags := w.entryTags(rec.Resolved)
		var textSize int64
		for _, t := range tags {
			textSize += int64(len(t.value))
		}

		if entries > 0 && (entries >= maxEntries || pos+wrap+overhead+textSize > maxBytes) {
			if err := doc.close(); err != nil {
				return files, err
			}
			n++
			if doc, err = w.open(n); err != nil {
				return files, err
			}
			files = append(files, w.path(n))
			entries, pos = 0, 0
		}

		before := doc.cw.n
		if err := writeEntry(doc.xml, tags); err != nil {
			_ = doc.f.Close()
			return files, fmt.Errorf("failed to write sitemap entry: %w", err)
		}
		if !measured {
			overhead = doc.cw.n - before - textSize
			measured = true
		}
		pos += overhead + textSize
		entries++
	}
	if err := doc.close(); err != nil {
		return files, err
	}

	if w.IndexFileName != "" {
		index, err := w.writeIndex(n)
		if err != nil {
			return files, err
		}
		files = append(files, index)
	}
	return files, nil
}

// entryTags returns <loc> followed by the configured tags, values escaped.
func (w *Writer) entryTags(loc string) []tag {
	tags := make([]tag, 0, len(w.Tags)+1)
	tags = append(tags, tag{name: "loc", value: xmlwriter.Escape(loc)})
	for _, r := range w.Tags {
		tags = append(tags, tag{name: r.Name, value: xmlwriter.Escape(r.Value(loc))})
	}
	return tags
}

func writeEntry(x *xmlwriter.Writer, tags []tag) error {
	if err := x.StartElement("url"); err != nil {
		return err
	}
	for _, t := range tags {
		if err := x.StartElement(t.name); err != nil {
			return err
		}
		if err := x.Raw(t.value); err != nil {
			return err
		}
		if err := x.EndElement(); err != nil {
			return err
		}
	}
	return x.EndElement()
}

// writeIndex writes the index document listing documents 1..count.
func (w *Writer) writeIndex(count int) (string, error) {
	path := filepath.Join(w.Dir, w.IndexFileName+".xml")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create sitemap index: %w", err)
	}
	defer f.Close()

	x := xmlwriter.New(f)
	if err := x.StartDocument(); err != nil {
		return "", err
	}
	if err := x.StartElement("sitemapindex"); err != nil {
		return "", err
	}
	if err := x.Attr("xmlns", Namespace); err != nil {
		return "", err
	}
	for i := 1; i <= count; i++ {
		if err := x.StartElement("sitemap"); err != nil {
			return "", err
		}
		if err := x.Element("loc", w.BaseURL+w.fileName()+strconv.Itoa(i)+".xml"); err != nil {
			return "", err
		}
		if err := x.EndElement(); err != nil {
			return "", err
		}
	}
	if err := x.EndDocument(); err != nil {
		return "", err
	}
	return path, f.Close()
}
