package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nao1215/sitemapgen/internal/crawllog"
	"github.com/nao1215/sitemapgen/internal/frontier"
	"github.com/nao1215/sitemapgen/internal/model"
	"github.com/nao1215/sitemapgen/internal/urlfilter"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func consoleLogs(t *testing.T, out io.Writer, categories ...crawllog.Category) *crawllog.Set {
	t.Helper()
	logs, err := crawllog.Open(crawllog.Options{
		Types:      []string{crawllog.TypeConsole},
		Categories: categories,
		Stdout:     out,
	})
	if err != nil {
		t.Fatalf("crawllog.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = logs.Close() })
	return logs
}

// syncBuffer is a bytes.Buffer safe for the concurrent writes made by
// workers outside the log lock, such as reading it in tests.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func htmlHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, body)
	}
}

func run(t *testing.T, seed string, opts ...SpiderOption) *model.Crawl {
	t.Helper()
	opts = append([]SpiderOption{WithLogger(quietLogger())}, opts...)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	crawl, err := NewSpider(seed, opts...).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return crawl
}

func byPath(crawl *model.Crawl) map[string]*model.Record {
	m := make(map[string]*model.Record, len(crawl.Records))
	for _, r := range crawl.Records {
		m[r.Path] = r
	}
	return m
}

func TestSpider_SinglePageTerminates(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		htmlHandler("<html><body><p>no links here</p></body></html>")(w, r)
	}))
	defer ts.Close()

	crawl := run(t, ts.URL+"/")
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
	if len(crawl.Records) != 1 {
		t.Fatalf("records = %d, want 1", len(crawl.Records))
	}
	rec := crawl.Records[0]
	if !rec.IsHTML || rec.Error != "" || rec.TryCount != 1 || rec.Charset != "utf-8" {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.Checksum == "" {
		t.Error("checksum not set for parsed page")
	}
	if crawl.Stopped || crawl.Fatal != nil {
		t.Errorf("Stopped = %v, Fatal = %v", crawl.Stopped, crawl.Fatal)
	}
}

func TestSpider_ChecksumFollowsVisibleText(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", htmlHandler(`<a href="/a"></a><a href="/b"></a><a href="/c"></a>`))
	mux.HandleFunc("/a", htmlHandler(`<p class="x">same text</p><!-- build 1 -->`))
	mux.HandleFunc("/b", htmlHandler(`<div><p>same text</p></div><script>var build = 2</script>`))
	mux.HandleFunc("/c", htmlHandler(`<p>other text</p>`))
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	recs := byPath(run(t, ts.URL+"/"))
	a, b, c := recs["/a"], recs["/b"], recs["/c"]
	if a == nil || b == nil || c == nil {
		t.Fatalf("pages missing: %v", recs)
	}
	if a.Checksum == "" || a.Checksum != b.Checksum {
		t.Errorf("markup-only difference changed the checksum: %q vs %q", a.Checksum, b.Checksum)
	}
	if a.Checksum == c.Checksum {
		t.Error("different text must change the checksum")
	}
}

func TestSpider_LinkExtraction(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", htmlHandler(`<html><head>
		<link rel="stylesheet" href="/style.css">
		<meta http-equiv="refresh" content="5; url=/refreshed">
	</head><body>
		<a href="/about">About</a>
		<a href="/about#team">Team</a>
		<a href="http://other.invalid/">Elsewhere</a>
		<a href="mailto:someone@example.com">Mail</a>
		<img src="/logo.png" srcset="/logo-2x.png 2x, /logo-3x.png 3x">
	</body></html>`))
	mux.HandleFunc("/about", htmlHandler(`<base href="/docs/"><a href="intro">Intro</a>`))
	mux.HandleFunc("/docs/intro", htmlHandler(`<p>end</p>`))
	mux.HandleFunc("/refreshed", htmlHandler(`<p>refreshed</p>`))
	for _, p := range []string{"/style.css", "/logo.png", "/logo-2x.png", "/logo-3x.png"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodHead {
				t.Errorf("resource %s fetched with %s", r.URL.Path, r.Method)
			}
			w.Header().Set("Content-Type", "application/octet-stream")
		})
	}
	ts := httptest.NewServer(mux)
	defer ts.Close()

	crawl := run(t, ts.URL+"/", WithLinkCheck(true), WithThreads(3))
	recs := byPath(crawl)

	wantHandles := map[string]model.Handle{
		"/":            model.HandleQueryParse,
		"/about":       model.HandleQueryParse,
		"/docs/intro":  model.HandleQueryParse,
		"/refreshed":   model.HandleQueryParse,
		"/style.css":   model.HandleQuery,
		"/logo.png":    model.HandleQuery,
		"/logo-2x.png": model.HandleQuery,
		"/logo-3x.png": model.HandleQuery,
	}
	if len(recs) != len(wantHandles) {
		t.Errorf("got %d records, want %d", len(recs), len(wantHandles))
	}
	for p, h := range wantHandles {
		rec, ok := recs[p]
		if !ok {
			t.Errorf("missing record for %s", p)
			continue
		}
		if rec.Handle != h {
			t.Errorf("%s handle = %v, want %v", p, rec.Handle, h)
		}
		if rec.Error != "" {
			t.Errorf("%s error = %q", p, rec.Error)
		}
	}
	if recs["/about"].Count != 1 {
		t.Errorf("/about rediscovery count = %d, want 1", recs["/about"].Count)
	}
	if recs["/docs/intro"].Parent != recs["/about"].ID {
		t.Error("/docs/intro should be found on /about")
	}
	if recs["/logo.png"].IsHTML {
		t.Error("HEAD-only resources are never HTML")
	}
}

func TestSpider_ResourcesIgnoredWithoutLinkCheck(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", htmlHandler(`<img src="/logo.png"><script src="/app.js"></script><a href="/next">n</a>`))
	mux.HandleFunc("/next", htmlHandler(`ok`))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	crawl := run(t, ts.URL+"/")
	if len(crawl.Records) != 2 {
		t.Errorf("records = %d, want 2", len(crawl.Records))
	}
}

func TestSpider_RetryBoundOnNoReply(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		hj, ok := w.(http.Hijacker)
		if !ok {
			t.Error("response writer cannot hijack")
			return
		}
		conn, _, err := hj.Hijack()
		if err == nil {
			_ = conn.Close()
		}
	}))
	defer ts.Close()

	var out syncBuffer
	crawl := run(t, ts.URL+"/", WithTryLimit(3), WithLogs(consoleLogs(t, &out, crawllog.ErrorReply)))

	rec := crawl.Records[0]
	if rec.TryCount != 3 {
		t.Errorf("TryCount = %d, want 3", rec.TryCount)
	}
	if got := hits.Load(); got != 3 {
		t.Errorf("server hits = %d, want 3", got)
	}
	if rec.Error == "" || rec.StatusCode != 0 {
		t.Errorf("expected terminal no-reply error, got %+v", rec)
	}
	if strings.Count(out.String(), "[error_reply]") != 1 {
		t.Errorf("error_reply should be logged once: %q", out.String())
	}
}

func TestSpider_RetryBoundOn5xx(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	crawl := run(t, ts.URL+"/", WithTryLimit(2))
	rec := crawl.Records[0]
	if rec.TryCount != 2 || hits.Load() != 2 {
		t.Errorf("TryCount = %d, hits = %d, want 2", rec.TryCount, hits.Load())
	}
	if rec.Error != "Code:503" {
		t.Errorf("Error = %q, want Code:503", rec.Error)
	}
}

func TestSpider_RedirectBound(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var n int
		_, _ = fmt.Sscanf(r.URL.Path, "/r/%d", &n)
		http.Redirect(w, r, fmt.Sprintf("/r/%d", n+1), http.StatusFound)
	}))
	defer ts.Close()

	var out syncBuffer
	crawl := run(t, ts.URL+"/r/0",
		WithRedirectLimit(2),
		WithLogs(consoleLogs(t, &out, crawllog.Redirect, crawllog.ErrorReply)),
	)

	if len(crawl.Records) != 4 {
		t.Fatalf("records = %d, want 4 (r/0 to r/3)", len(crawl.Records))
	}
	for i, rec := range crawl.Records {
		if rec.RedirectCount != i {
			t.Errorf("record %d RedirectCount = %d", i, rec.RedirectCount)
		}
		if i > 0 && rec.Parent != crawl.Records[i-1].ID {
			t.Errorf("record %d parent = %d", i, rec.Parent)
		}
	}
	last := crawl.Records[3]
	if last.Error != msgRedirectLimit {
		t.Errorf("last error = %q, want %q", last.Error, msgRedirectLimit)
	}
	if crawl.Records[0].Error != model.RedirectError() {
		t.Errorf("first error = %q", crawl.Records[0].Error)
	}
	logged := out.String()
	if strings.Count(logged, "[redirect]") != 4 {
		t.Errorf("redirects logged %d times, want 4", strings.Count(logged, "[redirect]"))
	}
	if !strings.Contains(logged, "[error_reply] msg: Redirect limit reached") {
		t.Errorf("redirect limit not logged: %q", logged)
	}
}

func TestSpider_RedirectTargetIsNotFiltered(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/file.pdf", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/file.pdf", htmlHandler("pdf"))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	exclude, err := urlfilter.ParseFilter("ext exclude pdf")
	if err != nil {
		t.Fatal(err)
	}
	crawl := run(t, ts.URL+"/", WithFilters([]urlfilter.Filter{exclude}))
	if len(crawl.Records) != 2 {
		t.Errorf("records = %d, want the redirect target recorded", len(crawl.Records))
	}
}

func TestSpider_TerminalErrors(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/{$}", htmlHandler(`<a href="/missing">m</a><a href="/notype">n</a><a href="/json">j</a>`))
	mux.HandleFunc("/notype", func(w http.ResponseWriter, _ *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = io.WriteString(w, "<p>untyped</p>")
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"a":"<a href='/hidden'>"}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	recs := byPath(run(t, ts.URL+"/"))
	if got := recs["/missing"].Error; got != "Code:404" {
		t.Errorf("/missing error = %q", got)
	}
	if got := recs["/notype"].Error; got != msgContentTypeEmpty {
		t.Errorf("/notype error = %q", got)
	}
	if rec := recs["/json"]; rec.Error != "" || rec.IsHTML {
		t.Errorf("/json should end quietly, got %+v", rec)
	}
	if _, ok := recs["/hidden"]; ok {
		t.Error("non-HTML bodies must not be parsed")
	}
}

func TestSpider_BadHTMLLogged(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(htmlHandler(`<div><span>text</div>`))
	defer ts.Close()

	var out syncBuffer
	run(t, ts.URL+"/", WithLogs(consoleLogs(t, &out, crawllog.BadHTML)))
	want := "[bad_html] msg: Unclosed tag: div span, url: " + ts.URL + "/"
	if !strings.Contains(out.String(), want) {
		t.Errorf("bad_html log = %q, want %q", out.String(), want)
	}
}

func TestSpider_Charset(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, `<html><head><meta http-equiv="Content-Type" content="text/html; charset=windows-1252"></head><body><a href="/latin">x</a> <a href="/html5">y</a></body></html>`)
	})
	mux.HandleFunc("/html5", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<!DOCTYPE html><html><head><meta charset=\"koi8-r\"></head><body><p>\xf0\xd2\xc9\xd7\xc5\xd4</p></body></html>"))
	})
	mux.HandleFunc("/latin", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=ISO-8859-1")
		_, _ = w.Write([]byte("<p>caf\xe9</p>"))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	recs := byPath(run(t, ts.URL+"/"))
	if got := recs["/"].Charset; got != "windows-1252" {
		t.Errorf("meta charset = %q", got)
	}
	if got := recs["/latin"].Charset; got != "ISO-8859-1" {
		t.Errorf("header charset = %q", got)
	}
	if got := recs["/html5"].Charset; got != "koi8-r" {
		t.Errorf("html5 meta charset = %q", got)
	}
}

func TestSpider_URLLimit(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, `<a href="/p%d">p</a>`, i)
	}
	ts := httptest.NewServer(htmlHandler(b.String()))
	defer ts.Close()

	crawl := run(t, ts.URL+"/", WithURLLimit(5), WithThreads(2))
	if len(crawl.Records) != 5 {
		t.Errorf("records = %d, want 5", len(crawl.Records))
	}
	for i, rec := range crawl.Records {
		if rec.ID != i+1 {
			t.Errorf("record %d has id %d", i, rec.ID)
		}
	}
}

func TestSpider_CancelStopsCrawl(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	var once sync.Once
	mux := http.NewServeMux()
	var b strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&b, `<a href="/slow/%d">s</a>`, i)
	}
	mux.HandleFunc("/", htmlHandler(b.String()))
	mux.HandleFunc("/slow/", func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(started) })
		time.Sleep(20 * time.Millisecond)
		htmlHandler("slow")(w, r)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *model.Crawl, 1)
	go func() {
		crawl, _ := NewSpider(ts.URL+"/", WithLogger(quietLogger())).Run(ctx)
		done <- crawl
	}()

	<-started
	cancel()

	select {
	case crawl := <-done:
		if !crawl.Stopped {
			t.Error("Stopped = false after cancel")
		}
		visited := 0
		for _, rec := range crawl.Records {
			if rec.TryCount > 0 {
				visited++
			}
		}
		if visited >= len(crawl.Records) {
			t.Errorf("all %d records visited despite cancel", visited)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestSpider_InvalidSeed(t *testing.T) {
	t.Parallel()

	_, err := NewSpider("ftp://example.com/", WithLogger(quietLogger())).Run(context.Background())
	if !errors.Is(err, frontier.ErrInvalidSeed) {
		t.Errorf("Run() error = %v, want ErrInvalidSeed", err)
	}
}

func TestSpider_Robots(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "User-agent: *\nDisallow: /private\n")
	})
	mux.HandleFunc("/", htmlHandler(`<a href="/private/x">p</a><a href="/public">q</a>`))
	mux.HandleFunc("/public", htmlHandler("ok"))
	ts := httptest.NewServer(mux)
	defer ts.Close()

	recs := byPath(run(t, ts.URL+"/", WithRobots(true)))
	if _, ok := recs["/private/x"]; ok {
		t.Error("robots.txt disallowed URL was recorded")
	}
	if _, ok := recs["/public"]; !ok {
		t.Error("allowed URL missing")
	}
}

func TestSpider_HeadersAndCookie(t *testing.T) {
	t.Parallel()

	var gotUA, gotCookie, gotHeader string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.UserAgent()
		gotCookie = r.Header.Get("Cookie")
		gotHeader = r.Header.Get("X-Crawl")
		htmlHandler("ok")(w, r)
	}))
	defer ts.Close()

	run(t, ts.URL+"/",
		WithUserAgent("test-agent"),
		WithCookie("session=1"),
		WithHeaders(map[string]string{"X-Crawl": "yes"}),
	)
	if gotUA != "test-agent" || gotCookie != "session=1" || gotHeader != "yes" {
		t.Errorf("UA = %q, Cookie = %q, X-Crawl = %q", gotUA, gotCookie, gotHeader)
	}
}

func TestSpider_CertificateVerification(t *testing.T) {
	t.Parallel()

	ts := httptest.NewTLSServer(htmlHandler("secure"))
	t.Cleanup(ts.Close)

	t.Run("verification off accepts self-signed", func(t *testing.T) {
		t.Parallel()
		crawl := run(t, ts.URL+"/")
		if rec := crawl.Records[0]; !rec.IsHTML || rec.Error != "" {
			t.Errorf("unexpected record %+v", rec)
		}
	})

	t.Run("verification on fails without retry", func(t *testing.T) {
		t.Parallel()
		crawl := run(t, ts.URL+"/", WithCertVerification(true), WithTryLimit(3))
		rec := crawl.Records[0]
		if !strings.HasPrefix(rec.Error, msgCertificatePrefix) {
			t.Errorf("Error = %q", rec.Error)
		}
		if rec.TryCount != 1 {
			t.Errorf("TryCount = %d, certificate errors must not be retried", rec.TryCount)
		}
	})
}
