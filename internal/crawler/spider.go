package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/nao1215/sitemapgen/internal/crawllog"
	"github.com/nao1215/sitemapgen/internal/frontier"
	"github.com/nao1215/sitemapgen/internal/metrics"
	"github.com/nao1215/sitemapgen/internal/model"
	"github.com/nao1215/sitemapgen/internal/urlfilter"
)

// ErrWorkerPanic wraps a panic recovered in a worker. It aborts the crawl.
var ErrWorkerPanic = errors.New("crawl worker failed")

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (compatible; sitemapgen/1.0)"

// Spider crawls one site with a fixed pool of workers that share a
// frontier.
type Spider struct {
	seed string

	threads       int
	tryLimit      int
	redirectLimit int
	urlLimit      int
	linkCheck     bool
	subdomains    bool
	filters       []urlfilter.Filter
	robots        bool
	sleep         time.Duration
	userAgent     string
	maxBodySize   int64
	client        clientConfig

	logs    *crawllog.Set
	metrics *metrics.Collector
	logger  *slog.Logger

	frontier *frontier.Frontier
	clients  *clientPool
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithThreads sets the number of workers.
func WithThreads(n int) SpiderOption {
	return func(s *Spider) {
		s.threads = n
	}
}

// WithTryLimit sets how many attempts a URL gets after no reply or a 5xx.
func WithTryLimit(n int) SpiderOption {
	return func(s *Spider) {
		s.tryLimit = n
	}
}

// WithRedirectLimit sets how many redirects are followed in one chain.
func WithRedirectLimit(n int) SpiderOption {
	return func(s *Spider) {
		s.redirectLimit = n
	}
}

// WithURLLimit caps the number of recorded URLs. 0 means unlimited.
func WithURLLimit(n int) SpiderOption {
	return func(s *Spider) {
		s.urlLimit = n
	}
}

// WithLinkCheck enables HEAD checks of images, scripts, stylesheets and
// other resources referenced by pages.
func WithLinkCheck(enabled bool) SpiderOption {
	return func(s *Spider) {
		s.linkCheck = enabled
	}
}

// WithSubdomains allows subdomains of the seed host.
func WithSubdomains(enabled bool) SpiderOption {
	return func(s *Spider) {
		s.subdomains = enabled
	}
}

// WithFilters sets the ordered URL filters.
func WithFilters(filters []urlfilter.Filter) SpiderOption {
	return func(s *Spider) {
		s.filters = filters
	}
}

// WithRobots makes the crawl obey the seed host's robots.txt.
func WithRobots(enabled bool) SpiderOption {
	return func(s *Spider) {
		s.robots = enabled
	}
}

// WithSleep sets the pause each worker takes between requests.
func WithSleep(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.sleep = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) SpiderOption {
	return func(s *Spider) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) SpiderOption {
	return func(s *Spider) {
		s.client.timeout = d
	}
}

// WithMaxBodySize limits how much of a page body is read.
func WithMaxBodySize(n int64) SpiderOption {
	return func(s *Spider) {
		if n > 0 {
			s.maxBodySize = n
		}
	}
}

// WithCertVerification enables TLS certificate verification.
func WithCertVerification(enabled bool) SpiderOption {
	return func(s *Spider) {
		s.client.certVerification = enabled
	}
}

// WithCACertFile adds the certificates of a PEM file to the trusted roots.
func WithCACertFile(path string) SpiderOption {
	return func(s *Spider) {
		s.client.caFile = path
	}
}

// WithCACertDir adds every PEM file of a directory to the trusted roots.
func WithCACertDir(path string) SpiderOption {
	return func(s *Spider) {
		s.client.caDir = path
	}
}

// WithBindInterface binds outgoing connections to an interface name or
// a local IP address.
func WithBindInterface(name string) SpiderOption {
	return func(s *Spider) {
		s.client.bindInterface = name
	}
}

// WithProxy routes requests through a proxy such as socks5://host:1080.
func WithProxy(proxyURL string) SpiderOption {
	return func(s *Spider) {
		s.client.proxyURL = proxyURL
	}
}

// WithHeaders adds headers to every request.
func WithHeaders(headers map[string]string) SpiderOption {
	return func(s *Spider) {
		s.client.headers = headers
	}
}

// WithCookie sends a raw cookie string with every request.
func WithCookie(cookie string) SpiderOption {
	return func(s *Spider) {
		s.client.cookie = cookie
	}
}

// WithLogs sets the crawl logs.
func WithLogs(logs *crawllog.Set) SpiderOption {
	return func(s *Spider) {
		s.logs = logs
	}
}

// WithMetrics publishes crawl metrics to c.
func WithMetrics(c *metrics.Collector) SpiderOption {
	return func(s *Spider) {
		s.metrics = c
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSpider creates a spider for the site of seed.
func NewSpider(seed string, opts ...SpiderOption) *Spider {
	s := &Spider{
		seed:          seed,
		threads:       1,
		tryLimit:      3,
		redirectLimit: 5,
		userAgent:     DefaultUserAgent,
		maxBodySize:   10 * 1024 * 1024,
		client:        clientConfig{timeout: 30 * time.Second},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.threads < 1 {
		s.threads = 1
	}
	return s
}

// Run crawls until no work is left, ctx is cancelled or a worker fails.
//
// Cancelling ctx stops the crawl after the requests in flight complete.
// The returned Crawl is never nil once the seed was accepted, so partial
// results can still be finalized. The error is the fatal error of the
// crawl, or a setup error when no crawl took place.
func (s *Spider) Run(ctx context.Context) (*model.Crawl, error) {
	crawl := &model.Crawl{Seed: s.seed, StartedAt: time.Now()}

	clients, err := newClientPool(s.client)
	if err != nil {
		return nil, err
	}
	s.clients = clients
	defer clients.closeIdle()

	scope, err := urlfilter.NewScope(s.seed,
		urlfilter.WithSubdomains(s.subdomains),
		urlfilter.WithFilters(s.filters),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", frontier.ErrInvalidSeed, err)
	}

	delay := s.sleep
	if s.robots {
		root := scope.Root()
		robots, err := urlfilter.FetchRobots(ctx, clients.get(root.Scheme == "https", root.Host), root, s.userAgent)
		if err != nil {
			s.logger.Warn("robots.txt not applied", "error", err)
		} else {
			scope.SetRobots(robots)
			if d := robots.CrawlDelay(); d > delay {
				delay = d
			}
		}
	}

	s.frontier = frontier.New(scope,
		frontier.WithURLLimit(s.urlLimit),
		frontier.WithLogs(s.logs),
		frontier.WithMetrics(s.metrics),
	)
	if _, err := s.frontier.Seed(s.seed); err != nil {
		return nil, err
	}

	stop := context.AfterFunc(ctx, s.frontier.Stop)
	defer stop()

	s.logger.Info("crawl started", "url", s.seed, "threads", s.threads)

	// Requests in flight are allowed to finish after cancellation.
	reqCtx := context.WithoutCancel(ctx)

	var g errgroup.Group
	for i := 1; i <= s.threads; i++ {
		w := &frontier.Worker{ID: i}
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("%w: worker %d: %v", ErrWorkerPanic, w.ID, r)
					s.frontier.Abort(err)
				}
			}()
			s.work(ctx, reqCtx, w, delay)
			return nil
		})
	}
	_ = g.Wait()

	crawl.Elapsed = time.Since(crawl.StartedAt)
	crawl.Records = s.frontier.Records()
	crawl.Stopped = s.frontier.Stopped()
	crawl.Fatal = s.frontier.Err()

	s.logger.Info("crawl finished",
		"url", s.seed,
		"records", s.frontier.Len(),
		"unvisited", s.frontier.Pending(),
		"elapsed", crawl.Elapsed,
		"stopped", crawl.Stopped,
	)
	return crawl, crawl.Fatal
}

// work is the loop of one worker.
func (s *Spider) work(ctx, reqCtx context.Context, w *frontier.Worker, delay time.Duration) {
	var limiter *rate.Limiter
	if delay > 0 {
		limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	for {
		rec, ok := s.frontier.Acquire(w)
		if !ok {
			return
		}
		if limiter != nil {
			// A cancelled wait is fine; the next Acquire sees the stop.
			_ = limiter.Wait(ctx)
		}
		s.visit(reqCtx, w, rec)
	}
}

// Frontier returns the frontier of the last Run, nil before the first.
func (s *Spider) Frontier() *frontier.Frontier {
	return s.frontier
}
