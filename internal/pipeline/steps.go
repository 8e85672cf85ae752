package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/sitemapgen/internal/crawllog"
	"github.com/nao1215/sitemapgen/internal/model"
	"github.com/nao1215/sitemapgen/internal/report"
	"github.com/nao1215/sitemapgen/internal/sitemap"
)

// InfoLogStep writes one info log row per record.
// The info log is written at the end so that every row carries the
// final try count and duplicate count of its URL.
type InfoLogStep struct {
	logs *crawllog.Set
}

// NewInfoLogStep creates an info log step writing to logs.
func NewInfoLogStep(logs *crawllog.Set) *InfoLogStep {
	return &InfoLogStep{logs: logs}
}

// Name returns the step name.
func (s *InfoLogStep) Name() string {
	return "info_log"
}

// Do executes the info log step.
func (s *InfoLogStep) Do(_ context.Context, crawl *model.Crawl) error {
	if !s.logs.Enabled(crawllog.Info) {
		return nil
	}
	for _, r := range crawl.Records {
		s.logs.Record(r)
	}
	return nil
}

// SitemapStep writes the sitemap documents of the crawl.
type SitemapStep struct {
	writer *sitemap.Writer
	logger *slog.Logger
}

// SitemapStepOption configures a SitemapStep.
type SitemapStepOption func(*SitemapStep)

// WithSitemapLogger sets a custom logger for the sitemap step.
func WithSitemapLogger(logger *slog.Logger) SitemapStepOption {
	return func(s *SitemapStep) {
		s.logger = logger
	}
}

// NewSitemapStep creates a sitemap step using writer.
func NewSitemapStep(writer *sitemap.Writer, opts ...SitemapStepOption) *SitemapStep {
	s := &SitemapStep{
		writer: writer,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Name returns the step name.
func (s *SitemapStep) Name() string {
	return "sitemap"
}

// Do executes the sitemap step and records the written files in crawl.
func (s *SitemapStep) Do(_ context.Context, crawl *model.Crawl) error {
	files, err := s.writer.Write(crawl.Records)
	if err != nil {
		return fmt.Errorf("failed to write sitemap: %w", err)
	}
	crawl.SitemapFiles = files
	s.logger.Info("sitemap written", "files", len(files), "dir", s.writer.Dir)
	return nil
}

// RunStore persists crawl runs. database.CrawlDB implements it.
type RunStore interface {
	BeginRun(ctx context.Context, seed string, startedAt time.Time) (int64, error)
	SaveRecords(ctx context.Context, runID int64, records []*model.Record) error
	FinishRun(ctx context.Context, runID int64, summary *model.Summary) error
}

// DatabaseStep stores the run and its records.
type DatabaseStep struct {
	store RunStore
}

// NewDatabaseStep creates a database step storing into store.
func NewDatabaseStep(store RunStore) *DatabaseStep {
	return &DatabaseStep{store: store}
}

// Name returns the step name.
func (s *DatabaseStep) Name() string {
	return "database"
}

// Do executes the database step and records the run id in crawl.
func (s *DatabaseStep) Do(ctx context.Context, crawl *model.Crawl) error {
	runID, err := s.store.BeginRun(ctx, crawl.Seed, crawl.StartedAt)
	if err != nil {
		return err
	}
	crawl.RunID = runID

	if err := s.store.SaveRecords(ctx, runID, crawl.Records); err != nil {
		return err
	}
	return s.store.FinishRun(ctx, runID, crawl.Summary())
}

// ReportStep writes the crawl summary with a report writer.
// It runs last so that the summary lists the sitemap files.
type ReportStep struct {
	writer report.Writer
}

// NewReportStep creates a report step using writer.
func NewReportStep(writer report.Writer) *ReportStep {
	return &ReportStep{writer: writer}
}

// Name returns the step name.
func (s *ReportStep) Name() string {
	return "report"
}

// Do executes the report step.
func (s *ReportStep) Do(_ context.Context, crawl *model.Crawl) error {
	if _, err := s.writer.Write(crawl.Summary()); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
