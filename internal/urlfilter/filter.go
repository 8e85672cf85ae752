package urlfilter

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// FilterType selects which part of a URL a filter looks at.
type FilterType string

const (
	// TypeRegexp searches the whole resolved URL, ignoring case.
	TypeRegexp FilterType = "regexp"

	// TypeGet matches a query parameter name. It only applies to URLs
	// that have a query.
	TypeGet FilterType = "get"

	// TypeExt matches the extension of the last path segment. It only
	// applies to URLs whose last segment has an extension.
	TypeExt FilterType = "ext"

	// TypeGlob matches the URL path against a glob pattern where
	// "*" stays within one segment and "**" crosses segments.
	TypeGlob FilterType = "glob"
)

// Direction is what a filter does with a matching URL.
type Direction string

const (
	// Include rejects applicable URLs that do not match.
	Include Direction = "include"

	// Exclude rejects URLs that match.
	Exclude Direction = "exclude"

	// Skip keeps matching URLs but records them without fetching.
	Skip Direction = "skip"
)

// ErrInvalidFilter is returned for filter definitions that cannot be parsed.
var ErrInvalidFilter = errors.New("invalid filter")

// Filter is one user-defined URL rule.
type Filter struct {
	Type  FilterType
	Dir   Direction
	Value string

	re *regexp.Regexp
	g  glob.Glob
}

// ParseFilter parses a "<type> <direction> <value>" definition such as
// "ext exclude pdf". The value may contain spaces.
func ParseFilter(def string) (Filter, error) {
	parts := strings.SplitN(strings.TrimSpace(def), " ", 3)
	if len(parts) != 3 {
		return Filter{}, fmt.Errorf("%w: %q: want \"<type> <direction> <value>\"", ErrInvalidFilter, def)
	}
	return NewFilter(FilterType(parts[0]), Direction(parts[1]), strings.TrimSpace(parts[2]))
}

// NewFilter builds a filter and compiles its pattern.
func NewFilter(typ FilterType, dir Direction, value string) (Filter, error) {
	f := Filter{Type: typ, Dir: dir, Value: value}

	switch dir {
	case Include, Exclude, Skip:
	default:
		return Filter{}, fmt.Errorf("%w: unknown direction %q", ErrInvalidFilter, dir)
	}
	if value == "" {
		return Filter{}, fmt.Errorf("%w: empty value", ErrInvalidFilter)
	}

	var err error
	switch typ {
	case TypeRegexp:
		f.re, err = regexp.Compile("(?i)" + value)
	case TypeGlob:
		f.g, err = glob.Compile(value, '/')
	case TypeGet:
	case TypeExt:
		f.Value = strings.TrimPrefix(value, ".")
	default:
		return Filter{}, fmt.Errorf("%w: unknown type %q", ErrInvalidFilter, typ)
	}
	if err != nil {
		return Filter{}, fmt.Errorf("%w: %q: %v", ErrInvalidFilter, value, err)
	}
	return f, nil
}

// String returns the definition the filter was parsed from.
func (f Filter) String() string {
	return string(f.Type) + " " + string(f.Dir) + " " + f.Value
}

// Match tests u against the filter. applicable is false when the filter
// has nothing to look at, such as a get filter on a URL without a query.
func (f Filter) Match(u *url.URL) (matched, applicable bool) {
	switch f.Type {
	case TypeRegexp:
		return f.re.MatchString(u.String()), true
	case TypeGlob:
		p := u.Path
		if p == "" {
			p = "/"
		}
		return f.g.Match(p), true
	case TypeGet:
		if u.RawQuery == "" {
			return false, false
		}
		for _, pair := range strings.Split(u.RawQuery, "&") {
			key, _, _ := strings.Cut(pair, "=")
			if key == f.Value {
				return true, true
			}
		}
		return false, true
	case TypeExt:
		ext := strings.TrimPrefix(path.Ext(path.Base(u.Path)), ".")
		if ext == "" {
			return false, false
		}
		return strings.EqualFold(ext, f.Value), true
	}
	return false, false
}
