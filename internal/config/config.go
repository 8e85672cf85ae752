package config

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "sitemapgen"

	// DefaultThreads is the number of crawl workers.
	DefaultThreads = 1

	// DefaultTryLimit is the number of attempts per URL after no reply
	// or a 5xx answer.
	DefaultTryLimit = 3

	// DefaultRedirectLimit bounds one redirect chain.
	DefaultRedirectLimit = 5

	// DefaultTimeout applies to every HTTP request.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxBodySize limits how much of a page is read.
	DefaultMaxBodySize = 10 * 1024 * 1024

	// DefaultUserAgent identifies the crawler.
	DefaultUserAgent = "Mozilla/5.0 (compatible; sitemapgen/1.0)"

	// DefaultSitemapFileName is the prefix of the numbered sitemap documents.
	DefaultSitemapFileName = "sitemap"

	// DefaultFileMBLimit is the size limit of one sitemap document in MiB.
	DefaultFileMBLimit = 1

	// DefaultEntryLimit is the number of entries per sitemap document.
	DefaultEntryLimit = 1000000

	// DefaultMaxLogCount bounds the numbered log file search.
	DefaultMaxLogCount = 100

	// DefaultCSVSeparator separates CSV log fields.
	DefaultCSVSeparator = ","
)

// Report formats accepted in Output.Report.
const (
	ReportNone     = ""
	ReportText     = "text"
	ReportMarkdown = "markdown"
	ReportJSON     = "json"
)

// Config holds all options of one crawl. It is loaded from the YAML file
// and then overridden by command line flags.
type Config struct {
	Main    MainConfig    `yaml:"main"`
	Filters []string      `yaml:"filters"`
	Sitemap SitemapConfig `yaml:"sitemap"`
	Log     LogConfig     `yaml:"log"`
	Output  OutputConfig  `yaml:"output"`

	// Verbose enables debug diagnostics.
	Verbose bool `yaml:"-"`

	// ConfigFilePath is the file the config was loaded from.
	ConfigFilePath string `yaml:"-"`
}

// MainConfig holds the crawl settings.
type MainConfig struct {
	// URL is the seed URL. Its scheme and host define the crawled site.
	URL string `yaml:"url"`

	Threads       int           `yaml:"thread"`
	Sleep         time.Duration `yaml:"sleep"`
	TryLimit      int           `yaml:"try_limit"`
	URLLimit      int           `yaml:"url_limit"`
	RedirectLimit int           `yaml:"redirect_limit"`

	// Subdomain allows subdomains of the seed host.
	Subdomain bool `yaml:"subdomain"`

	// LinkCheck checks images, scripts and other resources with HEAD.
	LinkCheck bool `yaml:"link_check"`

	CertVerification bool   `yaml:"cert_verification"`
	CACertFile       string `yaml:"ca_cert_file_path"`
	CACertDir        string `yaml:"ca_cert_dir_path"`
	BindInterface    string `yaml:"bind_interface"`

	// Proxy is a proxy URL such as socks5://127.0.0.1:1080.
	Proxy string `yaml:"proxy"`

	UserAgent   string        `yaml:"user_agent"`
	Timeout     time.Duration `yaml:"timeout"`
	Robots      bool          `yaml:"robots"`
	MaxBodySize int64         `yaml:"max_body_size"`

	// Cookie is sent with every request, for example "session=abc".
	Cookie string `yaml:"cookie,omitempty"`

	// Headers are added to every request.
	Headers map[string]string `yaml:"headers,omitempty"`
}

// SitemapConfig holds the sitemap output settings.
type SitemapConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	FileName      string `yaml:"file_name"`
	IndexFileName string `yaml:"index_file_name"`
	FileMBLimit   int    `yaml:"filemb_lim"`
	EntryLimit    int    `yaml:"entry_lim"`

	// XMLTags are "<tag> <regex> <value>" or "<tag> default <value>" lines.
	XMLTags []string `yaml:"xml_tag"`

	// BaseURL prefixes document names in the index. Empty means the seed
	// site root.
	BaseURL string `yaml:"base_url"`
}

// LogConfig holds the crawl log settings.
type LogConfig struct {
	// Type is a comma separated list of console, csv, xml and xlsx.
	Type         string `yaml:"type"`
	Dir          string `yaml:"dir"`
	Rewrite      bool   `yaml:"rewrite"`
	MaxLogCount  int    `yaml:"max_log_cnt"`
	CSVSeparator string `yaml:"csv_separator"`

	Redirect   bool `yaml:"log_redirect"`
	ErrorReply bool `yaml:"log_error_reply"`
	IgnoredURL bool `yaml:"log_ignored_url"`
	SkippedURL bool `yaml:"log_skipped_url"`
	BadHTML    bool `yaml:"log_bad_html"`
	BadURL     bool `yaml:"log_bad_url"`
	Info       bool `yaml:"log_info"`
	Other      bool `yaml:"log_other"`
}

// OutputConfig holds the settings of the post-crawl outputs.
type OutputConfig struct {
	// DB stores the crawl in the SQLite database under DBDir.
	DB    bool   `yaml:"db"`
	DBDir string `yaml:"db_dir"`

	// Report is text, markdown, json or empty for no report.
	Report     string `yaml:"report"`
	ReportFile string `yaml:"report_file"`

	// MetricsAddr serves Prometheus metrics while crawling, e.g. ":9100".
	MetricsAddr string `yaml:"metrics_addr"`
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		Main: MainConfig{
			Threads:       DefaultThreads,
			TryLimit:      DefaultTryLimit,
			RedirectLimit: DefaultRedirectLimit,
			UserAgent:     DefaultUserAgent,
			Timeout:       DefaultTimeout,
			MaxBodySize:   DefaultMaxBodySize,
		},
		Sitemap: SitemapConfig{
			Enabled:     true,
			Dir:         filepath.Join(XDGDataDir(), "sitemaps"),
			FileName:    DefaultSitemapFileName,
			FileMBLimit: DefaultFileMBLimit,
			EntryLimit:  DefaultEntryLimit,
		},
		Log: LogConfig{
			Type:         "console",
			Dir:          filepath.Join(XDGDataDir(), "logs"),
			MaxLogCount:  DefaultMaxLogCount,
			CSVSeparator: DefaultCSVSeparator,
			ErrorReply:   true,
			Other:        true,
		},
		Output: OutputConfig{
			DBDir:  XDGDataDir(),
			Report: ReportText,
		},
	}
}

// XDGDataDir returns the XDG data directory for sitemapgen.
// On Linux: ~/.local/share/sitemapgen
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for sitemapgen.
// On Linux: ~/.config/sitemapgen
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if c.Main.URL == "" {
		return ErrNoURL
	}
	u, err := url.Parse(c.Main.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidURL
	}
	if c.Main.Threads <= 0 {
		return ErrInvalidThreads
	}
	if c.Main.TryLimit <= 0 {
		return ErrInvalidTryLimit
	}
	if c.Main.RedirectLimit < 0 {
		return ErrInvalidRedirectLimit
	}
	if c.Main.URLLimit < 0 {
		return ErrInvalidURLLimit
	}
	if c.Main.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.Main.Sleep < 0 {
		return ErrInvalidSleep
	}
	if c.Main.MaxBodySize < 0 {
		return ErrInvalidMaxBodySize
	}
	if c.Sitemap.Enabled {
		if c.Sitemap.Dir == "" {
			return ErrNoSitemapDir
		}
		if c.Sitemap.FileMBLimit <= 0 || c.Sitemap.EntryLimit <= 0 {
			return ErrInvalidSitemapLimit
		}
	}
	if c.Log.MaxLogCount <= 0 {
		return ErrInvalidLogCount
	}
	switch c.Output.Report {
	case ReportNone, ReportText, ReportMarkdown, ReportJSON:
	default:
		return ErrInvalidReportFormat
	}
	if _, err := c.URLFilters(); err != nil {
		return err
	}
	if _, err := c.TagRules(); err != nil {
		return err
	}
	if _, err := c.LogOptions(nil); err != nil {
		return err
	}
	return nil
}

// LogTypes splits Log.Type into sink names.
func (c *Config) LogTypes() []string {
	var types []string
	for _, t := range strings.Split(c.Log.Type, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	return types
}
