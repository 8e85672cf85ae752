package frontier

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nao1215/sitemapgen/internal/crawllog"
	"github.com/nao1215/sitemapgen/internal/metrics"
	"github.com/nao1215/sitemapgen/internal/model"
	"github.com/nao1215/sitemapgen/internal/urlfilter"
)

var (
	// ErrURLLimit is returned by Submit once the URL limit is reached.
	ErrURLLimit = errors.New("URL limit reached")

	// ErrInvalidSeed is returned when the seed URL is rejected.
	ErrInvalidSeed = errors.New("seed url is not valid")
)

// Candidate is a reference found on a page, or a redirect target.
type Candidate struct {
	// Found is the raw reference.
	Found string

	// BaseHref is what Found resolves against.
	BaseHref string

	// Parent is the id of the page Found came from, 0 for the seed.
	Parent int

	// Handle is the requested processing.
	Handle model.Handle

	// RedirectCount is carried over from the redirecting record.
	RedirectCount int

	// Unfiltered skips the subdomain policy, user filters and robots.txt.
	// Redirect targets and the seed are submitted this way.
	Unfiltered bool
}

// Worker is the per-goroutine state Acquire needs. The zero value is a
// parked worker.
type Worker struct {
	ID     int
	active bool
}

// Frontier owns every URL record of one crawl and decides which record is
// fetched next. All shared state is guarded by one mutex.
type Frontier struct {
	scope   *urlfilter.Scope
	logs    *crawllog.Set
	metrics *metrics.Collector

	mu         sync.Mutex
	cond       *sync.Cond
	records    []*model.Record
	index      map[string]int
	queue      []int
	active     int
	running    bool
	urlLimit   int
	limitHit   bool
	fatal      error
	stopByUser bool
}

// Option configures a Frontier.
type Option func(*Frontier)

// WithURLLimit caps the number of records. 0 means unlimited.
func WithURLLimit(n int) Option {
	return func(f *Frontier) {
		f.urlLimit = n
	}
}

// WithLogs sets the crawl logs that receive skipped, ignored and bad URLs.
func WithLogs(logs *crawllog.Set) Option {
	return func(f *Frontier) {
		f.logs = logs
	}
}

// WithMetrics publishes queue and discovery metrics to c.
func WithMetrics(c *metrics.Collector) Option {
	return func(f *Frontier) {
		f.metrics = c
	}
}

// New creates a running frontier that resolves candidates within scope.
func New(scope *urlfilter.Scope, opts ...Option) *Frontier {
	f := &Frontier{
		scope:   scope,
		index:   make(map[string]int),
		running: true,
	}
	f.cond = sync.NewCond(&f.mu)
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Seed submits the start URL. Unlike other candidates an unusable seed is
// an error.
func (f *Frontier) Seed(seed string) (*model.Record, error) {
	created, err := f.Submit(Candidate{
		Found:      seed,
		BaseHref:   seed,
		Handle:     model.HandleQueryParse,
		Unfiltered: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if !created {
		return nil, fmt.Errorf("%w: %q was already submitted", ErrInvalidSeed, seed)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[len(f.records)-1], nil
}

// Submit resolves and filters c and records it when its normalized URL is
// new. It returns true only when a record was created. Resolution failures
// are returned after being logged; duplicates are not errors.
func (f *Frontier) Submit(c Candidate) (bool, error) {
	res, err := f.scope.Resolve(c.BaseHref, c.Found, c.Handle, !c.Unfiltered)
	if err != nil {
		if f.logs != nil {
			p := f.parent(c.Parent)
			if urlfilter.IsParseError(err) {
				f.logs.BadURL(c.Found, p)
			} else {
				f.logs.IgnoredURL(c.Found, p)
			}
		}
		return false, err
	}

	f.mu.Lock()
	if f.urlLimit > 0 && len(f.records) >= f.urlLimit {
		first := !f.limitHit
		f.limitHit = true
		f.mu.Unlock()
		if first {
			f.logs.Other(ErrURLLimit.Error())
		}
		return false, ErrURLLimit
	}

	if idx, ok := f.index[res.Normalized]; ok {
		f.records[idx].Count++
		f.mu.Unlock()
		f.metrics.Duplicate()
		return false, nil
	}

	rec := &model.Record{
		Found:         c.Found,
		Resolved:      res.Resolved,
		Normalized:    res.Normalized,
		Path:          res.Path,
		Host:          res.Host,
		SSL:           res.SSL,
		BaseHref:      res.Resolved,
		ID:            len(f.records) + 1,
		Parent:        c.Parent,
		Handle:        res.Handle,
		RedirectCount: c.RedirectCount,
	}
	f.index[rec.Normalized] = len(f.records)
	f.records = append(f.records, rec)

	if rec.Handle == model.HandleNone {
		f.mu.Unlock()
		f.metrics.Discovered()
		if f.logs != nil {
			f.logs.SkippedURL(rec.Resolved, f.parent(rec.Parent))
		}
		return true, nil
	}

	f.queue = append(f.queue, len(f.records)-1)
	f.publishLocked()
	f.mu.Unlock()
	f.cond.Signal()
	f.metrics.Discovered()
	return true, nil
}

// Acquire returns the next record for w, blocking while the queue is empty
// and other workers may still produce work. It returns false once the crawl
// is over. The last worker to find the queue empty ends the crawl.
func (f *Frontier) Acquire(w *Worker) (*model.Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for {
		if !f.running {
			f.parkLocked(w)
			return nil, false
		}
		if len(f.queue) > 0 {
			if !w.active {
				w.active = true
				f.active++
			}
			idx := f.queue[0]
			f.queue = f.queue[1:]
			if len(f.queue) == 0 {
				f.queue = nil
			}
			f.publishLocked()
			return f.records[idx], true
		}
		f.parkLocked(w)
		if f.active == 0 {
			f.running = false
			f.cond.Broadcast()
			return nil, false
		}
		f.cond.Wait()
	}
}

func (f *Frontier) parkLocked(w *Worker) {
	if w.active {
		w.active = false
		f.active--
		f.publishLocked()
	}
}

func (f *Frontier) publishLocked() {
	f.metrics.SetQueue(len(f.queue), f.active)
}

// Retry puts a record that already has an id back at the end of the queue.
func (f *Frontier) Retry(rec *model.Record) {
	f.mu.Lock()
	idx, ok := f.index[rec.Normalized]
	if !ok {
		f.mu.Unlock()
		return
	}
	f.queue = append(f.queue, idx)
	f.publishLocked()
	f.mu.Unlock()
	f.cond.Signal()
	f.metrics.Retry()
}

// Stop ends the crawl at the workers' next Acquire. Fetches in progress
// are finished first.
func (f *Frontier) Stop() {
	f.mu.Lock()
	if f.running {
		f.stopByUser = true
	}
	f.running = false
	f.mu.Unlock()
	f.cond.Broadcast()
}

// Abort stops the crawl because of a fatal error. Only the first error is
// kept.
func (f *Frontier) Abort(err error) {
	if err == nil {
		return
	}
	f.mu.Lock()
	if f.fatal == nil {
		f.fatal = err
	}
	f.running = false
	f.mu.Unlock()
	f.cond.Broadcast()
}

// Err returns the first fatal error passed to Abort.
func (f *Frontier) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fatal
}

// Stopped reports whether Stop ended a crawl that was still running.
func (f *Frontier) Stopped() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopByUser
}

// Len returns the number of records.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// Pending returns the number of queued records.
func (f *Frontier) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queue)
}

// Records returns the records in id order. The slice is a copy, the records
// are shared.
func (f *Frontier) Records() []*model.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Record, len(f.records))
	copy(out, f.records)
	return out
}

// Lookup returns the resolved URL of the record with the given id, or ""
// when there is none.
func (f *Frontier) Lookup(id int) string {
	if id <= 0 {
		return ""
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if id > len(f.records) {
		return ""
	}
	return f.records[id-1].Resolved
}

func (f *Frontier) parent(id int) crawllog.Parent {
	return crawllog.Parent{ID: id, URL: f.Lookup(id)}
}
