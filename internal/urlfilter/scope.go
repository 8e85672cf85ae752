package urlfilter

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	whatwgUrl "github.com/nlnwa/whatwg-url/url"

	"github.com/nao1215/sitemapgen/internal/model"
)

// Resolution errors. ErrBadBase and ErrBadURL mean the input could not be
// parsed. The others are policy rejections.
var (
	// ErrBadBase is returned when the base href cannot be parsed.
	ErrBadBase = errors.New("invalid base url")

	// ErrBadURL is returned when the found reference cannot be parsed.
	ErrBadURL = errors.New("invalid url")

	// ErrScheme is returned for anything other than http and https.
	ErrScheme = errors.New("unsupported scheme")

	// ErrHost is returned when the host is outside the crawl's root domain.
	ErrHost = errors.New("host outside crawl scope")

	// ErrSubdomain is returned for subdomains when they are not crawled.
	ErrSubdomain = errors.New("subdomain not allowed")

	// ErrFiltered is returned when a user filter rejects the URL.
	ErrFiltered = errors.New("rejected by filter")

	// ErrRobots is returned when robots.txt disallows the URL.
	ErrRobots = errors.New("disallowed by robots.txt")
)

var urlParser = whatwgUrl.NewParser(whatwgUrl.WithPercentEncodeSinglePercentSign())

// Resolution is the accepted form of a found reference.
type Resolution struct {
	// Resolved is the absolute URL without fragment.
	Resolved string

	// Normalized is the deduplication key.
	Normalized string

	// Path is the path and query for the request line.
	Path string

	// Host is the host and any non-default port.
	Host string

	// SSL is true for https.
	SSL bool

	// Handle is the requested handle, possibly demoted by a skip filter.
	Handle model.Handle
}

// IsParseError reports whether err means the input was not a URL, as
// opposed to a URL rejected by policy.
func IsParseError(err error) bool {
	return errors.Is(err, ErrBadBase) || errors.Is(err, ErrBadURL)
}

// Scope decides which URLs belong to a crawl.
type Scope struct {
	root       *url.URL
	rootHost   string
	subdomains bool
	filters    []Filter
	robots     *Robots
}

// ScopeOption configures a Scope.
type ScopeOption func(*Scope)

// WithSubdomains allows hosts below the root host when filtering.
func WithSubdomains(allow bool) ScopeOption {
	return func(s *Scope) {
		s.subdomains = allow
	}
}

// WithFilters sets the ordered user filter list.
func WithFilters(filters []Filter) ScopeOption {
	return func(s *Scope) {
		s.filters = filters
	}
}

// WithRobots applies a robots.txt policy when filtering.
func WithRobots(r *Robots) ScopeOption {
	return func(s *Scope) {
		s.robots = r
	}
}

// NewScope creates a scope rooted at the seed URL's host.
func NewScope(seed string, opts ...ScopeOption) (*Scope, error) {
	parsed, err := urlParser.Parse(strings.TrimSpace(seed))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadURL, seed, err)
	}
	root, err := url.Parse(parsed.Href(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadURL, seed, err)
	}
	if root.Scheme != "http" && root.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrScheme, root.Scheme)
	}
	if root.Hostname() == "" {
		return nil, fmt.Errorf("%w: %q has no host", ErrBadURL, seed)
	}

	s := &Scope{
		root:     root,
		rootHost: strings.ToLower(root.Hostname()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the seed URL the scope was created from.
func (s *Scope) Root() *url.URL {
	r := *s.root
	return &r
}

// SetRobots installs a robots.txt policy after construction.
func (s *Scope) SetRobots(r *Robots) {
	s.robots = r
}

// Resolve resolves found against base and applies the scope rules.
//
// The scheme and root-domain checks always apply. With filter set the
// subdomain policy, the user filters and robots.txt are applied as well.
// Redirect targets are resolved without filtering.
func (s *Scope) Resolve(base, found string, handle model.Handle, filter bool) (*Resolution, error) {
	found = strings.TrimSpace(found)

	if _, err := urlParser.Parse(base); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadBase, base, err)
	}
	ref, err := urlParser.ParseRef(base, found)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadURL, found, err)
	}
	u, err := url.Parse(ref.Href(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrBadURL, found, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %q", ErrScheme, u.Scheme)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" || (host != s.rootHost && !strings.HasSuffix(host, "."+s.rootHost)) {
		return nil, fmt.Errorf("%w: %q", ErrHost, host)
	}

	if filter {
		if !s.subdomains && host != s.rootHost {
			return nil, fmt.Errorf("%w: %q", ErrSubdomain, host)
		}
		for _, f := range s.filters {
			matched, applicable := f.Match(u)
			if !applicable {
				continue
			}
			switch {
			case f.Dir == Exclude && matched:
				return nil, fmt.Errorf("%w: %s", ErrFiltered, f)
			case f.Dir == Include && !matched:
				return nil, fmt.Errorf("%w: %s", ErrFiltered, f)
			case f.Dir == Skip && matched && handle == model.HandleQueryParse:
				handle = model.HandleNone
			}
		}
		if !s.robots.Allowed(u) {
			return nil, ErrRobots
		}
	}

	return &Resolution{
		Resolved:   u.String(),
		Normalized: Normalize(u),
		Path:       RequestPath(u),
		Host:       u.Host,
		SSL:        u.Scheme == "https",
		Handle:     handle,
	}, nil
}

// Join resolves ref against base without any scope checks. It is used for
// <base href>, which may point anywhere.
func Join(base, ref string) (string, error) {
	u, err := urlParser.ParseRef(base, strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrBadURL, ref, err)
	}
	return u.Href(true), nil
}
