package crawllog

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/nao1215/sitemapgen/internal/xmlwriter"
)

// sink receives rows that already match a schema.
type sink interface {
	write(fields []string) error
	close() error
}

type consoleSink struct {
	w      io.Writer
	name   string
	fields []string
}

func (c *consoleSink) write(values []string) error {
	var b strings.Builder
	b.WriteString("[" + c.name + "] ")
	for i, v := range values {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.fields[i] + ": " + v)
	}
	b.WriteByte('\n')
	_, err := io.WriteString(c.w, b.String())
	return err
}

func (c *consoleSink) close() error { return nil }

type csvSink struct {
	f   *os.File
	w   *bufio.Writer
	sep string
}

func newCSVSink(path, sep string, fields []string) (*csvSink, error) {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	s := &csvSink{f: f, w: bufio.NewWriter(f), sep: sep}
	if err := s.write(fields); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

// quoteCSV doubles embedded quotes and wraps a field that contains a quote
// or the separator.
func quoteCSV(field, sep string) string {
	if strings.Contains(field, `"`) {
		return `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
	}
	if sep != "" && strings.Contains(field, sep) {
		return `"` + field + `"`
	}
	return field
}

func (c *csvSink) write(values []string) error {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = quoteCSV(v, c.sep)
	}
	_, err := c.w.WriteString(strings.Join(quoted, c.sep) + "\n")
	return err
}

func (c *csvSink) close() error {
	return errors.Join(c.w.Flush(), c.f.Close())
}

type xmlSink struct {
	f      *os.File
	w      *bufio.Writer
	x      *xmlwriter.Writer
	fields []string
}

func newXMLSink(path string, fields []string) (*xmlSink, error) {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	s := &xmlSink{f: f, w: w, x: xmlwriter.New(w), fields: fields}
	if err := s.x.StartDocument(); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := s.x.StartElement("log"); err != nil {
		_ = f.Close()
		return nil, err
	}
	return s, nil
}

func (s *xmlSink) write(values []string) error {
	if err := s.x.StartElement("row"); err != nil {
		return err
	}
	for i, v := range values {
		if err := s.x.Element(s.fields[i], v); err != nil {
			return err
		}
	}
	return s.x.EndElement()
}

func (s *xmlSink) close() error {
	return errors.Join(s.x.EndDocument(), s.w.Flush(), s.f.Close())
}

const xlsxSheet = "Sheet1"

type xlsxSink struct {
	path string
	f    *excelize.File
	row  int
}

func newXLSXSink(path string, fields []string) (*xlsxSink, error) {
	// Reserve the name so numbering sees it before the workbook is saved.
	placeholder, err := os.Create(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := placeholder.Close(); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}

	f := excelize.NewFile()
	s := &xlsxSink{path: path, f: f}
	if err := s.write(fields); err != nil {
		_ = f.Close()
		return nil, err
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(fields), 1)
		_ = f.SetCellStyle(xlsxSheet, "A1", last, header)
	}
	_ = f.SetPanes(xlsxSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
	return s, nil
}

func (s *xlsxSink) write(values []string) error {
	s.row++
	cell, err := excelize.CoordinatesToCellName(1, s.row)
	if err != nil {
		return err
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = v
	}
	return s.f.SetSheetRow(xlsxSheet, cell, &row)
}

func (s *xlsxSink) close() error {
	if err := s.f.SaveAs(s.path); err != nil {
		_ = s.f.Close()
		return fmt.Errorf("failed to save %s: %w", s.path, err)
	}
	return s.f.Close()
}

// logPath picks the file for a category. Without rewrite an existing file
// is kept and the next free "<name>.N.<ext>" is used.
func logPath(dir, name, ext string, rewrite bool, maxCount int) (string, error) {
	if rewrite {
		return filepath.Join(dir, name+"."+ext), nil
	}
	for n := 0; ; n++ {
		base := name
		if n > 0 {
			base += "." + strconv.Itoa(n)
		}
		path := filepath.Join(dir, base+"."+ext)
		if n >= maxCount {
			return "", fmt.Errorf("%w: %s", ErrTooManyLogs, path)
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
	}
}
