package crawllog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nao1215/sitemapgen/internal/model"
)

// Sink type names accepted in Options.Types.
const (
	TypeConsole = "console"
	TypeCSV     = "csv"
	TypeXML     = "xml"
	TypeXLSX    = "xlsx"
)

var (
	// ErrUnknownType is returned for a sink type that does not exist.
	ErrUnknownType = errors.New("unknown log type")

	// ErrNoLogDir is returned when a file sink is requested without a directory.
	ErrNoLogDir = errors.New("log directory is empty")

	// ErrTooManyLogs is returned when no free numbered file name is left.
	ErrTooManyLogs = errors.New("unable to find a free log file name")
)

// Options configures a Set.
type Options struct {
	// Types lists the sinks: console, csv, xml and xlsx.
	Types []string

	// Categories lists the enabled categories. Others are discarded.
	Categories []Category

	// Dir receives the file logs.
	Dir string

	// Rewrite truncates "<name>.<ext>" instead of numbering new files.
	Rewrite bool

	// MaxLogCount bounds the numbered file search.
	MaxLogCount int

	// Separator is the CSV field separator.
	Separator string

	// Stdout receives console lines. Defaults to os.Stdout.
	Stdout io.Writer
}

// Parent identifies the page a URL was found on.
type Parent struct {
	ID  int
	URL string
}

type categoryLog struct {
	console []sink
	file    []sink
}

// Set holds the sinks of every category. A nil Set and disabled
// categories discard everything. Writes are serialized by one mutex.
type Set struct {
	mu   sync.Mutex
	logs map[Category]*categoryLog
	err  error
}

// Open creates the sinks described by opts.
func Open(opts Options) (*Set, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Separator == "" {
		opts.Separator = ","
	}

	console := false
	var fileTypes []string
	for _, t := range opts.Types {
		t = strings.TrimSpace(t)
		switch t {
		case "":
		case TypeConsole:
			console = true
		case TypeCSV, TypeXML, TypeXLSX:
			fileTypes = append(fileTypes, t)
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownType, t)
		}
	}
	if len(fileTypes) > 0 && opts.Dir == "" {
		return nil, ErrNoLogDir
	}
	if len(fileTypes) > 0 {
		if err := os.MkdirAll(opts.Dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	s := &Set{logs: make(map[Category]*categoryLog)}
	for _, c := range opts.Categories {
		schema, ok := SchemaOf(c)
		if !ok {
			_ = s.Close()
			return nil, fmt.Errorf("%w: category %q", ErrUnknownType, c)
		}
		if _, dup := s.logs[c]; dup {
			continue
		}
		cl := &categoryLog{}
		if console {
			cl.console = append(cl.console, &consoleSink{w: opts.Stdout, name: string(c), fields: schema.Console})
		}
		for _, t := range fileTypes {
			snk, err := openFileSink(opts, c, t, schema.File)
			if err != nil {
				s.logs[c] = cl
				_ = s.Close()
				return nil, err
			}
			cl.file = append(cl.file, snk)
		}
		s.logs[c] = cl
	}
	return s, nil
}

func openFileSink(opts Options, c Category, typ string, fields []string) (sink, error) {
	path, err := logPath(opts.Dir, string(c), typ, opts.Rewrite, opts.MaxLogCount)
	if err != nil {
		return nil, err
	}
	switch typ {
	case TypeCSV:
		return newCSVSink(path, opts.Separator, fields)
	case TypeXML:
		return newXMLSink(path, fields)
	default:
		return newXLSXSink(path, fields)
	}
}

// Enabled reports whether c has any sink.
func (s *Set) Enabled(c Category) bool {
	if s == nil {
		return false
	}
	cl, ok := s.logs[c]
	return ok && (len(cl.console) > 0 || len(cl.file) > 0)
}

func (s *Set) emit(c Category, fileRow, consoleRow []string) {
	if s == nil {
		return
	}
	cl, ok := s.logs[c]
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if consoleRow != nil {
		for _, snk := range cl.console {
			s.keep(snk.write(consoleRow))
		}
	}
	if fileRow != nil {
		for _, snk := range cl.file {
			s.keep(snk.write(fileRow))
		}
	}
}

func (s *Set) keep(err error) {
	if err != nil && s.err == nil {
		s.err = err
	}
}

// Close flushes and closes every sink. It returns the first write error
// seen during the crawl, if any.
func (s *Set) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	errs := []error{s.err}
	for _, cl := range s.logs {
		for _, snk := range cl.file {
			errs = append(errs, snk.close())
		}
		cl.file = nil
		cl.console = nil
	}
	s.err = nil
	return errors.Join(errs...)
}

func itoa(n int) string { return strconv.Itoa(n) }

// Seconds formats a duration the way the time field is written.
func Seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// Redirect logs a 3xx answer for url.
func (s *Set) Redirect(url string, p Parent) {
	s.emit(Redirect, []string{url, itoa(p.ID)}, []string{url, p.URL})
}

// ErrorReply logs a redirect that was not followed.
func (s *Set) ErrorReply(msg, url string, p Parent) {
	s.emit(ErrorReply, []string{msg, url, itoa(p.ID)}, []string{msg, url, p.URL})
}

// IgnoredURL logs a reference rejected by policy.
func (s *Set) IgnoredURL(found string, p Parent) {
	s.emit(IgnoredURL, []string{found, itoa(p.ID)}, []string{found, p.URL})
}

// SkippedURL logs a URL recorded without fetching.
func (s *Set) SkippedURL(url string, p Parent) {
	s.emit(SkippedURL, []string{url, itoa(p.ID)}, []string{url, p.URL})
}

// BadHTML logs a structural problem in the page id at url.
func (s *Set) BadHTML(msg string, id int, url string) {
	s.emit(BadHTML, []string{msg, itoa(id)}, []string{msg, url})
}

// BadURL logs a reference that could not be parsed.
func (s *Set) BadURL(found string, p Parent) {
	s.emit(BadURL, []string{found, itoa(p.ID)}, []string{found, p.URL})
}

// Fetched writes the console info line for one finished fetch.
func (s *Set) Fetched(worker int, elapsed time.Duration, url string, p Parent) {
	s.emit(Info, nil, []string{itoa(worker), Seconds(elapsed), url, p.URL})
}

// Record writes the file info row of a finished record.
func (s *Set) Record(r *model.Record) {
	s.emit(Info, []string{
		itoa(r.ID),
		itoa(r.Parent),
		Seconds(r.Time),
		itoa(r.TryCount),
		itoa(r.Count),
		strconv.FormatBool(r.IsHTML),
		r.Found,
		r.Resolved,
		r.Charset,
		r.Error,
	}, nil)
}

// Other logs a crawl-wide notice.
func (s *Set) Other(msg string) {
	s.emit(Other, []string{msg}, []string{msg})
}
