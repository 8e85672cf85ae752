package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/sitemapgen/internal/model"
)

// createTestSummary creates a summary with sample data for testing.
func createTestSummary() *model.Summary {
	records := []*model.Record{
		{ID: 1, Resolved: "https://example.com/", Handle: model.HandleQueryParse, IsHTML: true},
		{ID: 2, Resolved: "https://example.com/old", Handle: model.HandleQueryParse, Error: model.RedirectError()},
		{ID: 3, Resolved: "https://example.com/missing", Handle: model.HandleQueryParse, Error: "Code:404"},
		{ID: 4, Resolved: "https://example.com/logo.png", Handle: model.HandleQuery},
		{ID: 5, Resolved: "https://example.com/private", Handle: model.HandleNone},
	}
	started := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	s := model.NewSummary("https://example.com/", started, 1500*time.Millisecond, records)
	s.SitemapFiles = []string{"/tmp/sitemaps/sitemap1.xml"}
	return s
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes report header", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		w := NewSimpleWriter(&buf)

		if _, err := w.Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"CRAWL REPORT", "https://example.com/", "2026-03-04 05:06:07 UTC", "1.5s", "Complete"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("writes counts", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"Total:        5", "Parsed:       3", "HEAD only:    1", "Skipped:      1", "Redirects:    1", "Errors:       1"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("writes errors and sitemap files", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "[3] https://example.com/missing") || !strings.Contains(output, "Code:404") {
			t.Error("expected output to list the 404 error")
		}
		if strings.Contains(output, "https://example.com/old\n") {
			t.Error("redirects must not be listed as errors")
		}
		if !strings.Contains(output, "/tmp/sitemaps/sitemap1.xml") {
			t.Error("expected output to list sitemap files")
		}
	})

	t.Run("shows abort reason", func(t *testing.T) {
		t.Parallel()

		s := createTestSummary()
		s.SetAbort(errors.New("disk full"))

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "ABORTED - disk full") {
			t.Error("expected output to contain abort reason")
		}
	})

	t.Run("omits empty sections", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		s := model.NewSummary("https://example.com/", time.Now(), 0, nil)
		if _, err := NewSimpleWriter(&buf).Write(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if strings.Contains(output, "ERRORS") || strings.Contains(output, "SITEMAP FILES") {
			t.Error("expected empty sections to be omitted")
		}
	})
}

func TestSimpleWriterVerbose(t *testing.T) {
	t.Parallel()

	records := make([]*model.Record, 0, defaultMaxErrors+5)
	for i := 1; i <= defaultMaxErrors+5; i++ {
		records = append(records, &model.Record{
			ID:       i,
			Resolved: fmt.Sprintf("https://example.com/p%d", i),
			Error:    "Timeout",
		})
	}
	s := model.NewSummary("https://example.com/", time.Now(), 0, records)

	t.Run("truncates error list", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if !strings.Contains(output, "... and 5 more") {
			t.Error("expected truncation notice")
		}
		if strings.Contains(output, "/p25\n") {
			t.Error("expected last error to be hidden")
		}
	})

	t.Run("lists every error", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		output := buf.String()
		if strings.Contains(output, "more (use --verbose") {
			t.Error("unexpected truncation notice")
		}
		if !strings.Contains(output, "https://example.com/p25\n") {
			t.Error("expected last error to be listed")
		}
	})
}

// TestJSONWriter tests the JSON report writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("outputs valid JSON", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got model.Summary
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if got.Seed != "https://example.com/" || got.Total != 5 || len(got.Errors) != 1 {
			t.Errorf("unexpected summary %+v", got)
		}
	})

	t.Run("compact output by default", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Error("expected compact single-line output")
		}
	})

	t.Run("pretty print with indent", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"seed\"") {
			t.Error("expected indented output")
		}
	})

	t.Run("uses custom prefix and indent", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithIndent(">", "\t")).Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), ">\t\"seed\"") {
			t.Error("expected custom prefix and indent")
		}
	})

	t.Run("includes version in output", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithVersion("v1.2.3")).Write(createTestSummary()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var got JSONReport
		if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
			t.Fatalf("output is not valid JSON: %v", err)
		}
		if got.Version != "v1.2.3" || got.Summary == nil || got.Summary.Total != 5 {
			t.Errorf("unexpected report %+v", got)
		}
	})
}

// TestMarkdownWriter tests the Markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	write := func(t *testing.T, s *model.Summary) string {
		t.Helper()
		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(s); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return buf.String()
	}

	t.Run("writes header and counts", func(t *testing.T) {
		t.Parallel()

		output := write(t, createTestSummary())
		for _, want := range []string{"# Crawl Report", "`https://example.com/`", "## URLs", "**5**", "✅ Complete"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q", want)
			}
		}
	})

	t.Run("includes pie chart", func(t *testing.T) {
		t.Parallel()

		output := write(t, createTestSummary())
		if !strings.Contains(output, "pie") || !strings.Contains(output, "URL Handling") {
			t.Error("expected output to contain mermaid pie chart")
		}
	})

	t.Run("writes errors table", func(t *testing.T) {
		t.Parallel()

		output := write(t, createTestSummary())
		if !strings.Contains(output, "## Errors") || !strings.Contains(output, "Code:404") {
			t.Error("expected errors table")
		}
		if !strings.Contains(output, "[!WARNING]") {
			t.Error("expected WARNING alert for errors")
		}
	})

	t.Run("includes GitHub alert for aborted crawl", func(t *testing.T) {
		t.Parallel()

		s := createTestSummary()
		s.SetAbort(errors.New("disk full"))
		output := write(t, s)
		if !strings.Contains(output, "[!CAUTION]") || !strings.Contains(output, "Aborted - disk full") {
			t.Error("expected CAUTION alert for aborted crawl")
		}
	})

	t.Run("handles crawl without errors", func(t *testing.T) {
		t.Parallel()

		s := model.NewSummary("https://example.com/", time.Now(), 0, []*model.Record{
			{ID: 1, Handle: model.HandleQueryParse, IsHTML: true},
		})
		output := write(t, s)
		if !strings.Contains(output, "No errors.") || !strings.Contains(output, "[!TIP]") {
			t.Error("expected no-error text and TIP alert")
		}
		if strings.Contains(output, "## Sitemap Files") {
			t.Error("expected sitemap section to be omitted")
		}
	})

	t.Run("writes sitemap files and footer", func(t *testing.T) {
		t.Parallel()

		output := write(t, createTestSummary())
		if !strings.Contains(output, "- /tmp/sitemaps/sitemap1.xml") {
			t.Error("expected sitemap file list")
		}
		if !strings.Contains(output, "https://github.com/nao1215/sitemapgen") {
			t.Error("expected footer link")
		}
	})
}

// TestMultiWriter tests writing to several writers.
func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all writers", func(t *testing.T) {
		t.Parallel()

		var text, js bytes.Buffer
		mw := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&js))

		n, err := mw.Write(createTestSummary())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != text.Len()+js.Len() {
			t.Errorf("expected %d bytes, got %d", text.Len()+js.Len(), n)
		}
		if text.Len() == 0 || js.Len() == 0 {
			t.Error("expected both writers to receive output")
		}
	})

	t.Run("handles empty writers list", func(t *testing.T) {
		t.Parallel()

		n, err := NewMultiWriter().Write(createTestSummary())
		if err != nil || n != 0 {
			t.Errorf("Write() = %d, %v", n, err)
		}
	})
}

func TestNew(t *testing.T) {
	t.Parallel()

	tests := []struct {
		format string
		want   string
	}{
		{"text", "*report.SimpleWriter"},
		{"markdown", "*report.MarkdownWriter"},
		{"json", "*report.JSONWriter"},
		{"html", "<nil>"},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			t.Parallel()
			if got := fmt.Sprintf("%T", New(tt.format, &bytes.Buffer{}, "dev")); got != tt.want {
				t.Errorf("New(%q) = %s, want %s", tt.format, got, tt.want)
			}
		})
	}
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is a longer string", 10, "this is..."},
		{"abc", 3, "abc"},
		{"abcd", 3, "abc"},
		{"ab", 5, "ab"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			result := truncateString(tt.input, tt.maxLen)
			if result != tt.expected {
				t.Errorf("truncateString(%q, %d) = %q, want %q",
					tt.input, tt.maxLen, result, tt.expected)
			}
		})
	}
}
