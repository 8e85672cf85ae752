package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
	"github.com/nao1215/sitemapgen/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for documentation
// and sharing. It uses the nao1215/markdown builder.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the summary in Markdown format.
func (w *MarkdownWriter) Write(summary *model.Summary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, summary)
	w.writeCounts(md, summary)
	w.writeErrors(md, summary)
	w.writeSitemaps(md, summary)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeHeader writes the report header with crawl information.
func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, s *model.Summary) {
	md.H1("Crawl Report")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Seed", "`" + s.Seed + "`"},
			{"Started", s.StartedAt.Format("2006-01-02 15:04:05 MST")},
			{"Elapsed", s.Elapsed.Round(time.Millisecond).String()},
			{"Status", w.getStatusText(s)},
		},
	})
	md.PlainText("")
}

// getStatusText returns the status text based on summary state.
func (w *MarkdownWriter) getStatusText(s *model.Summary) string {
	if s.Aborted {
		return "❌ Aborted - " + s.AbortReason
	}
	return "✅ Complete"
}

// writeCounts writes the URL counts and the handle distribution.
func (w *MarkdownWriter) writeCounts(md *markdown.Markdown, s *model.Summary) {
	md.H2("URLs")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Kind", "Count"},
		Rows: [][]string{
			{"Parsed", strconv.Itoa(s.Parsed)},
			{"HEAD only", strconv.Itoa(s.Queried)},
			{"Skipped", strconv.Itoa(s.Skipped)},
			{"HTML pages", strconv.Itoa(s.HTMLPages)},
			{"Redirects", strconv.Itoa(s.Redirects)},
			{"Errors", strconv.Itoa(s.ErrorCount())},
			{"**Total**", "**" + strconv.Itoa(s.Total) + "**"},
		},
	})
	md.PlainText("")

	if s.Total > 0 {
		w.writePieChart(md, s)
	}
	w.writeAlert(md, s)
}

// writePieChart writes a mermaid pie chart of how URLs were handled.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, s *model.Summary) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("URL Handling"),
		piechart.WithShowData(true),
	)

	if s.Parsed > 0 {
		chart.LabelAndIntValue("Parsed", uint64(s.Parsed))
	}
	if s.Queried > 0 {
		chart.LabelAndIntValue("HEAD only", uint64(s.Queried))
	}
	if s.Skipped > 0 {
		chart.LabelAndIntValue("Skipped", uint64(s.Skipped))
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// writeAlert writes an alert for aborted crawls and crawls with errors.
func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, s *model.Summary) {
	switch {
	case s.Aborted:
		md.Cautionf("The crawl was aborted: %s. Results are partial.", s.AbortReason)
	case s.ErrorCount() > 0:
		md.Warningf("%d URL(s) ended with an error.", s.ErrorCount())
	default:
		md.Tip("Every URL was fetched without errors.")
	}
	md.PlainText("")
}

// writeErrors writes the table of terminal errors.
func (w *MarkdownWriter) writeErrors(md *markdown.Markdown, s *model.Summary) {
	md.H2("Errors")
	md.PlainText("")

	if len(s.Errors) == 0 {
		md.PlainText("No errors.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(s.Errors))
	for i, e := range s.Errors {
		rows[i] = []string{
			strconv.Itoa(e.ID),
			truncateString(e.URL, 80),
			truncateString(e.Message, 60),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"ID", "URL", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

// writeSitemaps lists the sitemap documents written.
func (w *MarkdownWriter) writeSitemaps(md *markdown.Markdown, s *model.Summary) {
	if len(s.SitemapFiles) == 0 {
		return
	}
	md.H2("Sitemap Files")
	md.PlainText("")
	md.BulletList(s.SitemapFiles...)
	md.PlainText("")
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [sitemapgen](https://github.com/nao1215/sitemapgen)*")
}
