package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/nao1215/sitemapgen/internal/config"
	"github.com/nao1215/sitemapgen/internal/database"
	"github.com/nao1215/sitemapgen/internal/model"
	"github.com/spf13/cobra"
)

// errNotEnoughRuns is returned when a seed has fewer than two stored runs.
var errNotEnoughRuns = errors.New("at least two stored crawls are needed to compare")

// NewCompareCmd creates the compare command.
// This command compares the stored crawls of one seed URL.
func NewCompareCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "compare <url>",
		Short: "Compare stored crawls of a site",
		Long: `Compare shows what changed on a site between two crawls stored with
'sitemapgen crawl --db':

- URLs that appeared since the earlier crawl
- URLs that disappeared
- URLs whose outcome changed (for example OK to Code:404)
- pages whose content changed

By default the latest crawl is compared with the one before it.

Examples:
  # Compare the latest two crawls
  sitemapgen compare https://example.com/

  # List the stored crawls of a site
  sitemapgen compare --list https://example.com/

  # Compare the latest crawl with crawl 3
  sitemapgen compare --with-run-id 3 https://example.com/

  # Output the comparison as JSON
  sitemapgen compare --json https://example.com/`,
		Args: cobra.ExactArgs(1),
		RunE: runCompareCmd,
	}

	cmd.Flags().BoolP("list", "l", false, "List the stored crawls of the URL")
	cmd.Flags().Int64P("with-run-id", "i", 0, "Compare the latest crawl with this run")
	cmd.Flags().BoolP("json", "j", false, "Output the comparison in JSON format")
	cmd.Flags().String("db-dir", config.XDGDataDir(), "Database directory")

	return cmd
}

// runCompareCmd executes the compare command.
func runCompareCmd(cmd *cobra.Command, args []string) error {
	dbDir, err := cmd.Flags().GetString("db-dir")
	if err != nil {
		return err
	}
	list, err := cmd.Flags().GetBool("list")
	if err != nil {
		return err
	}
	withRunID, err := cmd.Flags().GetInt64("with-run-id")
	if err != nil {
		return err
	}
	jsonOutput, err := cmd.Flags().GetBool("json")
	if err != nil {
		return err
	}

	db, err := database.Open(dbDir, database.Options{CreateIfNotExists: false})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	if list {
		return listRuns(ctx, db, out, args[0])
	}

	diff, err := compareRuns(ctx, db, args[0], withRunID)
	if err != nil {
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(diff)
	}
	diff.writeText(out)
	return nil
}

// listRuns prints the stored crawls of seed.
func listRuns(ctx context.Context, db *database.CrawlDB, out io.Writer, seed string) error {
	runs, err := db.ListRuns(ctx, seed)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintf(out, "No stored crawls found for %s\n", seed)
		fmt.Fprintln(out, "\nUse 'sitemapgen crawl --db' to store a crawl.")
		return nil
	}

	fmt.Fprintf(out, "Crawl history for %s (%d crawls):\n\n", seed, len(runs))
	fmt.Fprintf(out, "  %-6s  %-20s  %8s  %8s  %8s  %s\n", "ID", "Date", "URLs", "Pages", "Errors", "Elapsed")
	fmt.Fprintln(out, "  "+strings.Repeat("-", 70))
	for _, r := range runs {
		status := r.Elapsed.String()
		switch {
		case r.FinishedAt.IsZero():
			status = "unfinished"
		case r.Aborted:
			status += " (aborted)"
		}
		fmt.Fprintf(out, "  %-6d  %-20s  %8d  %8d  %8d  %s\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Total, r.HTMLPages, r.Errors, status)
	}
	return nil
}

// runDiff is the difference between two crawls of one seed.
type runDiff struct {
	Seed    string      `json:"seed"`
	OldRun  int64       `json:"old_run"`
	NewRun  int64       `json:"new_run"`
	Added   []string    `json:"added,omitempty"`
	Removed []string    `json:"removed,omitempty"`
	Changed []urlChange `json:"changed,omitempty"`

	// Modified lists pages fetched in both crawls whose body checksum differs.
	Modified []string `json:"modified,omitempty"`
}

// urlChange is a URL whose outcome differs between two crawls.
type urlChange struct {
	URL    string `json:"url"`
	Before string `json:"before"`
	After  string `json:"after"`
}

// compareRuns diffs the latest run of seed against withRunID, or against
// the run before it when withRunID is 0.
func compareRuns(ctx context.Context, db *database.CrawlDB, seed string, withRunID int64) (*runDiff, error) {
	runs, err := db.ListRuns(ctx, seed)
	if err != nil {
		return nil, err
	}
	if len(runs) < 2 {
		return nil, fmt.Errorf("%w: %s has %d", errNotEnoughRuns, seed, len(runs))
	}

	newRun, oldRun := runs[0].ID, runs[1].ID
	if withRunID != 0 {
		found := false
		for _, r := range runs {
			if r.ID == withRunID {
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %d is not a crawl of %s", database.ErrRunNotFound, withRunID, seed)
		}
		oldRun = withRunID
	}

	oldRecs, err := db.GetRecords(ctx, oldRun)
	if err != nil {
		return nil, err
	}
	newRecs, err := db.GetRecords(ctx, newRun)
	if err != nil {
		return nil, err
	}

	diff := diffRecords(oldRecs, newRecs)
	diff.Seed, diff.OldRun, diff.NewRun = seed, oldRun, newRun
	return diff, nil
}

// outcome is the one-word result of a record.
func outcome(r *model.Record) string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Handle == model.HandleNone:
		return "Skipped"
	default:
		return "OK"
	}
}

// diffRecords compares two record sets by normalized URL.
func diffRecords(oldRecs, newRecs []*model.Record) *runDiff {
	before := make(map[string]*model.Record, len(oldRecs))
	for _, r := range oldRecs {
		before[r.Normalized] = r
	}

	d := &runDiff{}
	seen := make(map[string]bool, len(newRecs))
	for _, r := range newRecs {
		seen[r.Normalized] = true
		old, ok := before[r.Normalized]
		if !ok {
			d.Added = append(d.Added, r.Resolved)
			continue
		}
		a, b := outcome(old), outcome(r)
		switch {
		case a != b:
			d.Changed = append(d.Changed, urlChange{URL: r.Resolved, Before: a, After: b})
		case old.Checksum != "" && r.Checksum != "" && old.Checksum != r.Checksum:
			d.Modified = append(d.Modified, r.Resolved)
		}
	}
	for _, r := range oldRecs {
		if !seen[r.Normalized] {
			d.Removed = append(d.Removed, r.Resolved)
		}
	}

	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Modified)
	sort.Slice(d.Changed, func(i, j int) bool { return d.Changed[i].URL < d.Changed[j].URL })
	return d
}

// writeText prints the diff for a terminal.
func (d *runDiff) writeText(out io.Writer) {
	fmt.Fprintf(out, "Comparing crawl %d with crawl %d of %s\n\n", d.NewRun, d.OldRun, d.Seed)
	if len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0 && len(d.Modified) == 0 {
		fmt.Fprintln(out, "No changes.")
		return
	}

	section := func(title string, urls []string, mark string) {
		if len(urls) == 0 {
			return
		}
		fmt.Fprintf(out, "%s (%d):\n", title, len(urls))
		for _, u := range urls {
			fmt.Fprintf(out, "  %s %s\n", mark, u)
		}
		fmt.Fprintln(out)
	}
	section("New URLs", d.Added, "+")
	section("Removed URLs", d.Removed, "-")
	section("Modified pages", d.Modified, "*")

	if len(d.Changed) > 0 {
		fmt.Fprintf(out, "Changed URLs (%d):\n", len(d.Changed))
		for _, c := range d.Changed {
			fmt.Fprintf(out, "  ~ %s: %s -> %s\n", c.URL, c.Before, c.After)
		}
		fmt.Fprintln(out)
	}
}
