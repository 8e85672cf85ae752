package report

import (
	"io"

	"github.com/nao1215/sitemapgen/internal/model"
)

// Writer defines the interface for report output.
// Implementations write crawl summaries in various formats.
type Writer interface {
	// Write outputs the summary to the configured destination.
	// Returns the number of bytes written and any error encountered.
	Write(summary *model.Summary) (int, error)
}

// MultiWriter writes to multiple Writers simultaneously.
// This is useful for outputting to both terminal and file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the summary to all configured Writers.
// Returns the total bytes written across all writers.
// Stops on first error encountered.
func (m *MultiWriter) Write(summary *model.Summary) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(summary)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// New returns the writer for format: "text", "markdown" or "json".
// It returns nil for an unknown format.
func New(format string, output io.Writer, version string) Writer {
	switch format {
	case "text":
		return NewSimpleWriter(output)
	case "markdown":
		return NewMarkdownWriter(output)
	case "json":
		return NewJSONWriter(output, WithPrettyPrint(), WithVersion(version))
	default:
		return nil
	}
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// status returns the one-line crawl status.
func status(s *model.Summary) string {
	if s.Aborted {
		return "ABORTED - " + s.AbortReason
	}
	return "Complete"
}

// truncateString truncates a string to maxLen characters with ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
