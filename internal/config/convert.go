package config

import (
	"fmt"
	"io"
	"net/url"

	"github.com/nao1215/sitemapgen/internal/crawllog"
	"github.com/nao1215/sitemapgen/internal/sitemap"
	"github.com/nao1215/sitemapgen/internal/urlfilter"
)

// URLFilters parses the filter lines in order.
func (c *Config) URLFilters() ([]urlfilter.Filter, error) {
	filters := make([]urlfilter.Filter, 0, len(c.Filters))
	for _, line := range c.Filters {
		f, err := urlfilter.ParseFilter(line)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, nil
}

// TagRules parses the sitemap xml_tag lines.
func (c *Config) TagRules() ([]sitemap.TagRule, error) {
	return sitemap.ParseTagRules(c.Sitemap.XMLTags)
}

// LogCategories returns the enabled crawl log categories.
func (c *Config) LogCategories() []crawllog.Category {
	enabled := map[crawllog.Category]bool{
		crawllog.Redirect:   c.Log.Redirect,
		crawllog.ErrorReply: c.Log.ErrorReply,
		crawllog.IgnoredURL: c.Log.IgnoredURL,
		crawllog.SkippedURL: c.Log.SkippedURL,
		crawllog.BadHTML:    c.Log.BadHTML,
		crawllog.BadURL:     c.Log.BadURL,
		crawllog.Info:       c.Log.Info,
		crawllog.Other:      c.Log.Other,
	}
	var out []crawllog.Category
	for _, cat := range crawllog.Categories {
		if enabled[cat] {
			out = append(out, cat)
		}
	}
	return out
}

// LogOptions returns the crawl log options. Console lines go to stdout.
func (c *Config) LogOptions(stdout io.Writer) (crawllog.Options, error) {
	types := c.LogTypes()
	for _, t := range types {
		switch t {
		case crawllog.TypeConsole, crawllog.TypeCSV, crawllog.TypeXML, crawllog.TypeXLSX:
		default:
			return crawllog.Options{}, fmt.Errorf("%w: %q", crawllog.ErrUnknownType, t)
		}
	}
	return crawllog.Options{
		Types:       types,
		Categories:  c.LogCategories(),
		Dir:         c.Log.Dir,
		Rewrite:     c.Log.Rewrite,
		MaxLogCount: c.Log.MaxLogCount,
		Separator:   c.Log.CSVSeparator,
		Stdout:      stdout,
	}, nil
}

// SitemapWriter returns the sitemap writer for the configured seed.
func (c *Config) SitemapWriter() (*sitemap.Writer, error) {
	tags, err := c.TagRules()
	if err != nil {
		return nil, err
	}
	base := c.Sitemap.BaseURL
	if base == "" {
		u, err := url.Parse(c.Main.URL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
		}
		base = u.Scheme + "://" + u.Host + "/"
	}
	return &sitemap.Writer{
		Dir:           c.Sitemap.Dir,
		FileName:      c.Sitemap.FileName,
		IndexFileName: c.Sitemap.IndexFileName,
		MaxEntries:    c.Sitemap.EntryLimit,
		MaxBytes:      int64(c.Sitemap.FileMBLimit) * 1024 * 1024,
		Tags:          tags,
		BaseURL:       base,
	}, nil
}
