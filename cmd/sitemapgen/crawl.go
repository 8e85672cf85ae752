package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/nao1215/sitemapgen/internal/config"
	"github.com/nao1215/sitemapgen/internal/crawler"
	"github.com/nao1215/sitemapgen/internal/crawllog"
	"github.com/nao1215/sitemapgen/internal/database"
	"github.com/nao1215/sitemapgen/internal/log"
	"github.com/nao1215/sitemapgen/internal/metrics"
	"github.com/nao1215/sitemapgen/internal/pipeline"
	"github.com/nao1215/sitemapgen/internal/report"
	"github.com/nao1215/sitemapgen/internal/urlfilter"
	"github.com/spf13/cobra"
)

// NewCrawlCmd creates the crawl command.
func NewCrawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url]",
		Short: "Crawl a web site and write its sitemap",
		Long: `Crawl fetches every page of one site, starting from the seed URL,
and writes sitemap documents for the HTML pages it finds.

Only URLs with the seed's scheme and host (and optionally its subdomains)
are followed. Settings come from the configuration file; flags override them.

Examples:
  # Crawl with 8 workers
  sitemapgen crawl -t 8 https://example.com/

  # Also check images, scripts and stylesheets
  sitemapgen crawl --link-check https://example.com/

  # Use a configuration file and write a Markdown report
  sitemapgen crawl -c site.yaml --report markdown -o report.md

  # Keep the crawl for 'sitemapgen compare'
  sitemapgen crawl --db https://example.com/`,
		Args: cobra.MaximumNArgs(1),
		RunE: runCrawlCmd,
	}

	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitemapgen.yaml in current or home directory)")
	cmd.Flags().StringP("url", "u", "", "Seed URL (same as the argument)")

	// Crawl behavior flags
	cmd.Flags().IntP("threads", "t", config.DefaultThreads, "Number of concurrent workers")
	cmd.Flags().Duration("sleep", 0, "Pause between two requests of one worker")
	cmd.Flags().Int("try-limit", config.DefaultTryLimit, "Attempts per URL after no reply or a 5xx answer")
	cmd.Flags().Int("url-limit", 0, "Maximum number of distinct URLs (0 = unlimited)")
	cmd.Flags().Int("redirect-limit", config.DefaultRedirectLimit, "Maximum length of one redirect chain")
	cmd.Flags().Bool("subdomain", false, "Crawl subdomains of the seed host")
	cmd.Flags().Bool("link-check", false, "Check resources such as images and scripts with HEAD")
	cmd.Flags().Bool("robots", false, "Respect robots.txt")
	cmd.Flags().Duration("timeout", config.DefaultTimeout, "Timeout of one request")
	cmd.Flags().String("proxy", "", "Proxy URL, e.g. socks5://127.0.0.1:1080")
	cmd.Flags().String("user-agent", config.DefaultUserAgent, "User-Agent header")
	cmd.Flags().Bool("cert-verification", false, "Verify TLS certificates")
	cmd.Flags().StringArray("filter", nil, `URL filter "<type> <direction> <value>", repeatable`)

	// Output flags
	cmd.Flags().String("sitemap-dir", "", "Directory of the sitemap documents")
	cmd.Flags().Bool("no-sitemap", false, "Do not write a sitemap")
	cmd.Flags().String("log-type", "", "Crawl log sinks: console,csv,xml,xlsx")
	cmd.Flags().String("log-dir", "", "Directory of the crawl log files")
	cmd.Flags().String("log-format", string(log.FormatText), "Diagnostic log format on stderr: text or json")
	cmd.Flags().Bool("db", false, "Store the crawl in the database")
	cmd.Flags().String("db-dir", "", "Database directory")
	cmd.Flags().StringP("report", "r", config.ReportText, "Report format: text, markdown, json or none")
	cmd.Flags().StringP("output", "o", "", "Write the report to this file")
	cmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address while crawling")

	return cmd
}

// runCrawlCmd executes the crawl command.
func runCrawlCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	formatName, err := cmd.Flags().GetString("log-format")
	if err != nil {
		return err
	}
	format, err := log.ParseFormat(formatName)
	if err != nil {
		return err
	}
	logger := log.New(cmd.ErrOrStderr(), format, cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, cmd.OutOrStdout(), logger)
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig loads the configuration file and applies the flags that
// were set on the command line.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	configFlag, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicit config path must exist; a missing default file is fine.
	cfg := config.NewConfig()
	if path := config.FindConfigFile(configFlag); path != "" {
		cfg, err = config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	} else if configFlag != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, configFlag)
	}
	cfg.Verbose = getVerboseFlag(cmd)

	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if len(args) > 0 {
		cfg.Main.URL = args[0]
	}
	return cfg, nil
}

// applyFlags overrides cfg with every flag that was set explicitly.
func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	var errs []error
	str := func(name string, dst *string) {
		if flags.Changed(name) {
			v, err := flags.GetString(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if flags.Changed(name) {
			v, err := flags.GetInt(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	boolean := func(name string, dst *bool) {
		if flags.Changed(name) {
			v, err := flags.GetBool(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	duration := func(name string, dst *time.Duration) {
		if flags.Changed(name) {
			v, err := flags.GetDuration(name)
			errs = append(errs, err)
			*dst = v
		}
	}

	str("url", &cfg.Main.URL)
	integer("threads", &cfg.Main.Threads)
	duration("sleep", &cfg.Main.Sleep)
	integer("try-limit", &cfg.Main.TryLimit)
	integer("url-limit", &cfg.Main.URLLimit)
	integer("redirect-limit", &cfg.Main.RedirectLimit)
	boolean("subdomain", &cfg.Main.Subdomain)
	boolean("link-check", &cfg.Main.LinkCheck)
	boolean("robots", &cfg.Main.Robots)
	duration("timeout", &cfg.Main.Timeout)
	str("proxy", &cfg.Main.Proxy)
	str("user-agent", &cfg.Main.UserAgent)
	boolean("cert-verification", &cfg.Main.CertVerification)
	if flags.Changed("filter") {
		filters, err := flags.GetStringArray("filter")
		errs = append(errs, err)
		cfg.Filters = append(cfg.Filters, filters...)
	}

	str("sitemap-dir", &cfg.Sitemap.Dir)
	if flags.Changed("no-sitemap") {
		off, err := flags.GetBool("no-sitemap")
		errs = append(errs, err)
		cfg.Sitemap.Enabled = !off
	}
	str("log-type", &cfg.Log.Type)
	str("log-dir", &cfg.Log.Dir)
	boolean("db", &cfg.Output.DB)
	str("db-dir", &cfg.Output.DBDir)
	str("report", &cfg.Output.Report)
	if cfg.Output.Report == "none" {
		cfg.Output.Report = config.ReportNone
	}
	str("output", &cfg.Output.ReportFile)
	str("metrics-addr", &cfg.Output.MetricsAddr)

	return errors.Join(errs...)
}

// runCrawl crawls the site of cfg and finalizes the result. The fatal
// crawl error, if any, is returned after finalization.
func runCrawl(ctx context.Context, cfg *config.Config, out io.Writer, logger *slog.Logger) (err error) {
	filters, err := cfg.URLFilters()
	if err != nil {
		return err
	}
	logOpts, err := cfg.LogOptions(out)
	if err != nil {
		return err
	}
	logs, err := crawllog.Open(logOpts)
	if err != nil {
		return fmt.Errorf("failed to open crawl logs: %w", err)
	}
	defer func() {
		if cerr := logs.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to write crawl logs: %w", cerr)
		}
	}()

	var collector *metrics.Collector
	if cfg.Output.MetricsAddr != "" {
		collector = metrics.NewCollector()
		srv, err := serveMetrics(cfg.Output.MetricsAddr, collector, logger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	spider := crawler.NewSpider(cfg.Main.URL, spiderOptions(cfg, filters, logs, collector, logger)...)

	fmt.Fprintf(out, "Crawling %s...\n", cfg.Main.URL)
	crawl, crawlErr := spider.Run(ctx)
	if crawl == nil {
		return crawlErr
	}
	if crawl.Stopped && crawlErr == nil {
		fmt.Fprintln(out, "Crawl interrupted, writing partial results")
	}
	fmt.Fprintf(out, "Crawled %d URLs in %s\n", len(crawl.Records), crawl.Elapsed.Round(time.Millisecond))

	p, cleanup, err := finalization(cfg, logs, out, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	// Finalization runs even when the crawl was interrupted.
	finErr := p.Execute(context.WithoutCancel(ctx), crawl)
	if crawlErr != nil {
		if finErr != nil {
			logger.Error("finalization failed", "error", finErr)
		}
		return crawlErr
	}
	if finErr != nil {
		return fmt.Errorf("finalization failed: %w", finErr)
	}
	return nil
}

// spiderOptions translates cfg into crawler options.
func spiderOptions(cfg *config.Config, filters []urlfilter.Filter, logs *crawllog.Set, collector *metrics.Collector, logger *slog.Logger) []crawler.SpiderOption {
	m := cfg.Main
	return []crawler.SpiderOption{
		crawler.WithThreads(m.Threads),
		crawler.WithTryLimit(m.TryLimit),
		crawler.WithRedirectLimit(m.RedirectLimit),
		crawler.WithURLLimit(m.URLLimit),
		crawler.WithLinkCheck(m.LinkCheck),
		crawler.WithSubdomains(m.Subdomain),
		crawler.WithFilters(filters),
		crawler.WithRobots(m.Robots),
		crawler.WithSleep(m.Sleep),
		crawler.WithUserAgent(m.UserAgent),
		crawler.WithTimeout(m.Timeout),
		crawler.WithMaxBodySize(m.MaxBodySize),
		crawler.WithCertVerification(m.CertVerification),
		crawler.WithCACertFile(m.CACertFile),
		crawler.WithCACertDir(m.CACertDir),
		crawler.WithBindInterface(m.BindInterface),
		crawler.WithProxy(m.Proxy),
		crawler.WithHeaders(m.Headers),
		crawler.WithCookie(m.Cookie),
		crawler.WithLogs(logs),
		crawler.WithMetrics(collector),
		crawler.WithLogger(logger),
	}
}

// finalization builds the post-crawl pipeline. cleanup closes what the
// steps opened and must be called after the pipeline ran. On error
// everything opened so far is already closed.
func finalization(cfg *config.Config, logs *crawllog.Set, out io.Writer, logger *slog.Logger) (*pipeline.Pipeline, func(), error) {
	var closers []io.Closer
	cleanup := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				logger.Warn("close failed", "error", err)
			}
		}
	}

	p := pipeline.New(pipeline.WithLogger(logger), pipeline.WithContinueOnError(true))
	p.AddStep(pipeline.NewInfoLogStep(logs))

	if cfg.Sitemap.Enabled {
		w, err := cfg.SitemapWriter()
		if err != nil {
			return nil, nil, err
		}
		p.AddStep(pipeline.NewSitemapStep(w, pipeline.WithSitemapLogger(logger)))
	}

	if cfg.Output.DB {
		db, err := database.Open(cfg.Output.DBDir, database.DefaultOptions())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		closers = append(closers, db)
		p.AddStep(pipeline.NewDatabaseStep(db))
	}

	if cfg.Output.Report != config.ReportNone {
		w := out
		if cfg.Output.ReportFile != "" {
			f, err := createReportFile(cfg.Output.ReportFile)
			if err != nil {
				cleanup()
				return nil, nil, err
			}
			closers = append(closers, f)
			w = f
		}
		p.AddStep(pipeline.NewReportStep(report.New(cfg.Output.Report, w, getVersion())))
	}

	return p, cleanup, nil
}

// createReportFile creates the report file and its directory. Reports are
// readable by the owner only.
func createReportFile(path string) (*os.File, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // User-provided report path is intentional
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

// serveMetrics serves the collector on addr until the server is shut down.
func serveMetrics(addr string, collector *metrics.Collector, logger *slog.Logger) (*http.Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen for metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())
	return srv, nil
}
