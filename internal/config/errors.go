package config

import "errors"

// Configuration validation errors returned by Config.Validate.
var (
	// ErrNoURL is returned when no seed URL is configured.
	ErrNoURL = errors.New("no url specified: set main.url or pass it as an argument")

	// ErrInvalidURL is returned when the seed is not an absolute http(s) URL.
	ErrInvalidURL = errors.New("invalid url: must be an absolute http or https URL")

	// ErrInvalidThreads is returned when the worker count is not positive.
	ErrInvalidThreads = errors.New("invalid thread count: must be positive")

	// ErrInvalidTryLimit is returned when the try limit is not positive.
	ErrInvalidTryLimit = errors.New("invalid try limit: must be positive")

	// ErrInvalidRedirectLimit is returned when the redirect limit is negative.
	ErrInvalidRedirectLimit = errors.New("invalid redirect limit: must be non-negative")

	// ErrInvalidURLLimit is returned when the URL limit is negative.
	ErrInvalidURLLimit = errors.New("invalid url limit: must be non-negative, 0 means unlimited")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidSleep is returned when the sleep between requests is negative.
	ErrInvalidSleep = errors.New("invalid sleep: must be non-negative")

	// ErrInvalidMaxBodySize is returned when the max body size is negative.
	ErrInvalidMaxBodySize = errors.New("invalid max body size: must be non-negative")

	// ErrNoSitemapDir is returned when the sitemap is enabled without a directory.
	ErrNoSitemapDir = errors.New("sitemap directory is empty")

	// ErrInvalidSitemapLimit is returned for a non-positive file or entry limit.
	ErrInvalidSitemapLimit = errors.New("invalid sitemap limit: filemb_lim and entry_lim must be positive")

	// ErrInvalidLogCount is returned when max_log_cnt is not positive.
	ErrInvalidLogCount = errors.New("invalid max_log_cnt: must be positive")

	// ErrInvalidReportFormat is returned for a report format other than
	// text, markdown or json.
	ErrInvalidReportFormat = errors.New("invalid report format: must be text, markdown or json")
)
