package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/sitemapgen/internal/model"
)

// defaultMaxErrors is the number of errors listed when not verbose.
const defaultMaxErrors = 20

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// verbose lists every error instead of the first defaultMaxErrors.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the summary in human-readable format.
func (w *SimpleWriter) Write(summary *model.Summary) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, summary)
	w.writeCounts(&sb, summary)
	w.writeErrors(&sb, summary)
	w.writeSitemaps(&sb, summary)

	return w.output.Write([]byte(sb.String()))
}

// writeHeader writes the report header with crawl information.
func (w *SimpleWriter) writeHeader(sb *strings.Builder, s *model.Summary) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          CRAWL REPORT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Seed:           %s\n", s.Seed)
	fmt.Fprintf(sb, "Started:        %s\n", s.StartedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Elapsed:        %s\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(sb, "Status:         %s\n", status(s))
	sb.WriteString("\n")
}

// writeCounts writes the record counts.
func (w *SimpleWriter) writeCounts(sb *strings.Builder, s *model.Summary) {
	sb.WriteString("URLS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "  Total:        %d\n", s.Total)
	fmt.Fprintf(sb, "  Parsed:       %d\n", s.Parsed)
	fmt.Fprintf(sb, "  HEAD only:    %d\n", s.Queried)
	fmt.Fprintf(sb, "  Skipped:      %d\n", s.Skipped)
	fmt.Fprintf(sb, "  HTML pages:   %d\n", s.HTMLPages)
	fmt.Fprintf(sb, "  Redirects:    %d\n", s.Redirects)
	fmt.Fprintf(sb, "  Errors:       %d\n", s.ErrorCount())
	sb.WriteString("\n")
}

// writeErrors lists the terminal errors.
func (w *SimpleWriter) writeErrors(sb *strings.Builder, s *model.Summary) {
	if len(s.Errors) == 0 {
		return
	}

	sb.WriteString("ERRORS\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")

	errs := s.Errors
	if !w.verbose && len(errs) > defaultMaxErrors {
		errs = errs[:defaultMaxErrors]
	}
	for _, e := range errs {
		fmt.Fprintf(sb, "  [%d] %s\n", e.ID, e.URL)
		fmt.Fprintf(sb, "      %s\n", e.Message)
	}
	if rest := len(s.Errors) - len(errs); rest > 0 {
		fmt.Fprintf(sb, "  ... and %d more (use --verbose to list all)\n", rest)
	}
	sb.WriteString("\n")
}

// writeSitemaps lists the sitemap documents written.
func (w *SimpleWriter) writeSitemaps(sb *strings.Builder, s *model.Summary) {
	if len(s.SitemapFiles) == 0 {
		return
	}

	sb.WriteString("SITEMAP FILES\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	for _, f := range s.SitemapFiles {
		fmt.Fprintf(sb, "  %s\n", f)
	}
	sb.WriteString("\n")
}
