package crawler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/nao1215/sitemapgen/internal/crawllog"
	"github.com/nao1215/sitemapgen/internal/frontier"
	"github.com/nao1215/sitemapgen/internal/htmldom"
	"github.com/nao1215/sitemapgen/internal/model"
	"github.com/nao1215/sitemapgen/internal/urlfilter"
)

// Messages stored on records and written to error_reply.
const (
	msgRedirectLimit     = "Redirect limit reached"
	msgContentTypeEmpty  = "Content-Type empty"
	msgCertificatePrefix = "Certificate verification error: "
	msgCodePrefix        = "Code:"
)

// response is what the state machine needs from one HTTP exchange.
type response struct {
	status      int
	contentType string
	location    string
	body        []byte
}

// page is the per-record parse context. It is owned by one worker.
type page struct {
	s         *Spider
	rec       *model.Record
	linkCheck bool
}

func (pg *page) parent() crawllog.Parent {
	return crawllog.Parent{ID: pg.rec.ID, URL: pg.rec.Resolved}
}

// submit hands a reference found on the page to the frontier.
func (pg *page) submit(found string, handle model.Handle) {
	_, err := pg.s.frontier.Submit(frontier.Candidate{
		Found:    found,
		BaseHref: pg.rec.BaseHref,
		Parent:   pg.rec.ID,
		Handle:   handle,
	})
	if err != nil && !errors.Is(err, frontier.ErrURLLimit) {
		pg.s.logger.Debug("reference rejected", "found", found, "page", pg.rec.Resolved, "error", err)
	}
}

func (pg *page) setBase(href string) {
	base, err := urlfilter.Join(pg.rec.Resolved, href)
	if err != nil {
		pg.s.logs.BadURL(href, pg.parent())
		return
	}
	pg.rec.BaseHref = base
}

// request performs one GET or HEAD. A nil response with an error means no
// reply arrived at all.
func (s *Spider) request(ctx context.Context, rec *model.Record) (*response, error) {
	method := http.MethodHead
	if rec.Handle == model.HandleQueryParse {
		method = http.MethodGet
	}
	scheme := "http"
	if rec.SSL {
		scheme = "https"
	}

	req, err := http.NewRequestWithContext(ctx, method, scheme+"://"+rec.Host+rec.Path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)
	if method == http.MethodGet {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}

	start := time.Now()
	resp, err := s.clients.get(rec.SSL, rec.Host).Do(req)
	if err != nil {
		s.metrics.Fetch(method, "no_reply", time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()

	r := &response{
		status:      resp.StatusCode,
		contentType: resp.Header.Get("Content-Type"),
		location:    resp.Header.Get("Location"),
	}
	if method == http.MethodGet && resp.StatusCode == http.StatusOK {
		r.body, err = io.ReadAll(io.LimitReader(resp.Body, s.maxBodySize))
		if err != nil {
			s.metrics.Fetch(method, "no_reply", time.Since(start))
			return nil, err
		}
	}
	s.metrics.Fetch(method, strconv.Itoa(resp.StatusCode), time.Since(start))
	return r, nil
}

// visit runs one fetch attempt for rec and applies the result.
func (s *Spider) visit(ctx context.Context, w *frontier.Worker, rec *model.Record) {
	start := time.Now()
	resp, err := s.request(ctx, rec)
	elapsed := time.Since(start)
	rec.Time += elapsed
	rec.TryCount++
	s.logs.Fetched(w.ID, elapsed, rec.Resolved, s.parentOf(rec))
	s.handle(rec, resp, err)
}

func (s *Spider) parentOf(rec *model.Record) crawllog.Parent {
	return crawllog.Parent{ID: rec.Parent, URL: s.frontier.Lookup(rec.Parent)}
}

func (s *Spider) fail(rec *model.Record, kind, msg string) {
	rec.Error = msg
	s.metrics.Error(kind)
	s.logs.ErrorReply(msg, rec.Resolved, s.parentOf(rec))
}

// handle is the per-record state machine applied after every attempt.
func (s *Spider) handle(rec *model.Record, resp *response, err error) {
	if resp == nil {
		if msg, ok := certificateError(err); ok && rec.SSL {
			s.fail(rec, "certificate", msgCertificatePrefix+msg)
			return
		}
		if rec.TryCount < s.tryLimit {
			s.frontier.Retry(rec)
			return
		}
		s.fail(rec, "no_reply", noReplyMessage(err))
		return
	}
	rec.StatusCode = resp.status
	rec.ContentType = resp.contentType

	if resp.status >= 500 && resp.status < 600 && rec.TryCount < s.tryLimit {
		s.frontier.Retry(rec)
		return
	}

	if resp.status >= 300 && resp.status < 400 {
		rec.Error = model.RedirectError()
		s.logs.Redirect(rec.Resolved, s.parentOf(rec))
		if rec.RedirectCount > s.redirectLimit {
			rec.Error = msgRedirectLimit
			s.metrics.Error("redirect_limit")
			s.logs.ErrorReply(msgRedirectLimit, rec.Resolved, s.parentOf(rec))
			return
		}
		if resp.location != "" {
			_, err := s.frontier.Submit(frontier.Candidate{
				Found:         resp.location,
				BaseHref:      rec.BaseHref,
				Parent:        rec.ID,
				Handle:        model.HandleQueryParse,
				RedirectCount: rec.RedirectCount + 1,
				Unfiltered:    true,
			})
			if err != nil && !errors.Is(err, frontier.ErrURLLimit) {
				s.logger.Debug("redirect target rejected", "location", resp.location, "error", err)
			}
		}
		return
	}

	if resp.status != http.StatusOK {
		s.fail(rec, "status", msgCodePrefix+strconv.Itoa(resp.status))
		return
	}
	if rec.Handle == model.HandleQuery {
		return
	}
	if resp.contentType == "" {
		s.fail(rec, "content_type", msgContentTypeEmpty)
		return
	}
	if !strings.Contains(strings.ToLower(resp.contentType), "text/html") {
		return
	}

	rec.IsHTML = true
	rec.Charset = htmldom.CharsetFromContentType(resp.contentType, "")
	s.parse(rec, resp.body)
}

// parse decodes the body and feeds it to the tokenizer, submitting every
// reference the page carries.
func (s *Spider) parse(rec *model.Record, body []byte) {
	text, declared := decodeBody(body, rec.Charset)
	if rec.Charset == "" && declared != "" {
		rec.Charset = declared
	}

	pg := &page{s: s, rec: rec, linkCheck: s.linkCheck}
	opts := []htmldom.Option{
		htmldom.WithNodeHandler(func(stage htmldom.Stage, n *htmldom.Node) {
			if stage == htmldom.TagOpen {
				pg.onTag(n)
			}
		}),
	}
	if s.logs.Enabled(crawllog.BadHTML) {
		opts = append(opts, htmldom.WithErrorHandler(func(kind htmldom.ErrorKind, n *htmldom.Node) {
			if kind != htmldom.ErrTagNotClosed {
				return
			}
			var msg strings.Builder
			msg.WriteString("Unclosed tag:")
			for _, name := range n.Path() {
				msg.WriteString(" " + name)
			}
			s.logs.BadHTML(msg.String(), rec.ID, rec.Resolved)
		}))
	}
	root := htmldom.Parse(text, opts...)
	rec.Checksum = strconv.FormatUint(xxhash.Sum64String(root.PlainText()), 16)

	if rec.Charset == "" {
		rec.Charset = root.Charset("")
	}
	if rec.Charset == "" {
		rec.Charset = detectCharset(body)
	}
}
