package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/antigravity-dev/sprintreport/internal/config"
	"github.com/antigravity-dev/sprintreport/internal/filter"
	"github.com/antigravity-dev/sprintreport/internal/hierarchy"
	"github.com/antigravity-dev/sprintreport/internal/jira"
	"github.com/antigravity-dev/sprintreport/internal/report"
	"github.com/antigravity-dev/sprintreport/internal/store"
)

// options holds the command line. Empty strings leave the config value alone.
type options struct {
	configPath   string
	project      string
	jql          string
	sprintStart  string
	outputFile   string
	format       string
	templatePath string
	title        string
	logLevel     string
	dev          bool
	diff         bool
	noArchive    bool
	colour       bool

	// set by tests
	jiraOpts []jira.Option
	now      func() time.Time
}

// loadConfig reads the config file and layers the command line on top.
func loadConfig(opts options) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	applyFlags(cfg, opts)
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("validating flags: %w", err)
	}
	return cfg, nil
}

func applyFlags(cfg *config.Config, opts options) {
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&cfg.General.LogLevel, opts.logLevel)
	set(&cfg.Report.SprintStart, opts.sprintStart)
	set(&cfg.Report.OutputFile, opts.outputFile)
	set(&cfg.Report.Format, strings.ToLower(opts.format))
	set(&cfg.Report.Template, opts.templatePath)
	set(&cfg.Report.Title, opts.title)
}

func run(ctx context.Context, cfg *config.Config, opts options, stdout io.Writer, logger *slog.Logger) error {
	if opts.project == "" {
		return fmt.Errorf("team project is required")
	}
	now := time.Now
	if opts.now != nil {
		now = opts.now
	}

	client, err := jira.NewClient(cfg.Jira, cfg.Jira.Token(), append([]jira.Option{jira.WithLogger(logger)}, opts.jiraOpts...)...)
	if err != nil {
		return err
	}

	leafFilter, err := filter.Compile(cfg.Report.LeafFilter)
	if err != nil {
		return err
	}

	queries := jira.JQL{}
	jql := strings.TrimSpace(opts.jql)
	if jql == "" {
		jql = queries.Project(opts.project)
	}

	session := hierarchy.NewSession(client, queries,
		hierarchy.WithLogger(logger),
		hierarchy.WithLeafFilter(leafFilter.LeafFilter()),
	)

	logger.Info("gathering issues", "jql", jql, "sprint_start", cfg.Report.SprintStart, "leaf_filter", leafFilter.String())
	cls, err := session.GatherIssuesClosedSince(ctx, jql, cfg.Report.SprintStart)
	if err != nil {
		return fmt.Errorf("gathering issues: %w", err)
	}
	deps, err := session.GatherDependencies(ctx, jql)
	if err != nil {
		return err
	}
	logger.Info("hierarchy resolved",
		"features", len(cls.Features),
		"epics", len(cls.Epics),
		"issues", len(cls.Issues),
		"incoming", len(deps.Incoming),
		"outgoing", len(deps.Outgoing),
		"cached_nodes", session.Len(),
	)

	title := cfg.Report.Title
	if title == "" {
		title = opts.project
	}
	generated := now()
	data := report.NewData(title, cfg.Report.SprintStart, generated, cls, deps)

	var buf bytes.Buffer
	renderOpts := report.RenderOptions{
		Format:       cfg.Report.Format,
		TemplatePath: config.ExpandHome(cfg.Report.Template),
		Truncate:     cfg.Report.Truncate,
	}
	if err := report.Render(&buf, data, renderOpts); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	body := buf.String()

	outputFile := config.ExpandHome(cfg.Report.OutputFile)
	fmt.Fprintf(stdout, "Writing output to %s\n", outputFile)
	if err := writeFileAtomic(outputFile, buf.Bytes()); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}

	a := archiveRun{
		cfg:    cfg,
		opts:   opts,
		logger: logger,
		report: store.Report{
			Project:     opts.project,
			Title:       title,
			Query:       jql,
			SprintStart: cfg.Report.SprintStart,
			Format:      cfg.Report.Format,
			Body:        body,
			GeneratedAt: generated,
		},
		roots: store.RootsOf(cls),
	}
	a.run(stdout)

	report.Summary(stdout, cls, deps, opts.colour)
	return nil
}

// archiveRun compares a finished report with the previous one and records
// it. Archive problems are logged and never fail the run; the report file is
// already written by then.
type archiveRun struct {
	cfg    *config.Config
	opts   options
	logger *slog.Logger
	report store.Report
	roots  []store.Root
}

func (a archiveRun) run(stdout io.Writer) {
	dbPath := config.ExpandHome(a.cfg.General.StateDB)
	if dbPath == "" {
		if a.opts.diff {
			a.logger.Warn("-diff needs general.state_db to be set; skipping")
		}
		return
	}
	if a.opts.noArchive && !a.opts.diff {
		return
	}

	st, err := store.Open(dbPath)
	if err != nil {
		a.logger.Warn("report archive unavailable", "path", dbPath, "error", err)
		return
	}
	defer st.Close()

	prev, err := st.LatestReport(a.report.Project, a.report.Format)
	if err != nil {
		a.logger.Warn("failed to read previous report", "error", err)
	}

	if prev != nil {
		a.compare(st, prev, stdout)
	} else if a.opts.diff {
		fmt.Fprintf(stdout, "No previous %s report archived for %s.\n", a.report.Format, a.report.Project)
	}

	if a.opts.noArchive {
		return
	}
	id, err := st.RecordReport(a.report)
	if err != nil {
		a.logger.Warn("failed to archive report", "error", err)
		return
	}
	if err := st.RecordRoots(id, a.roots); err != nil {
		a.logger.Warn("failed to archive report roots", "report_id", id, "error", err)
		return
	}
	a.logger.Info("report archived", "report_id", id, "roots", len(a.roots))
}

func (a archiveRun) compare(st *store.Store, prev *store.Report, stdout io.Writer) {
	prevRoots, err := st.RootsForReport(prev.ID)
	if err != nil {
		a.logger.Warn("failed to read previous report roots", "report_id", prev.ID, "error", err)
	} else {
		added, removed := store.CompareRoots(prevRoots, a.roots)
		a.logger.Info("compared with previous report",
			"previous_id", prev.ID,
			"previous_generated_at", prev.GeneratedAt,
			"added_roots", rootKeys(added),
			"removed_roots", rootKeys(removed),
		)
	}

	if !a.opts.diff {
		return
	}
	d := report.Diff(prev.Body, a.report.Body)
	if d == "" {
		fmt.Fprintf(stdout, "No changes since report %d (%s).\n", prev.ID, prev.GeneratedAt.Format(time.DateOnly))
		return
	}
	fmt.Fprintf(stdout, "Changes since report %d (%s):\n%s", prev.ID, prev.GeneratedAt.Format(time.DateOnly), d)
}

func rootKeys(roots []store.Root) []string {
	keys := make([]string, len(roots))
	for i, r := range roots {
		keys[i] = r.Key
	}
	return keys
}

// writeFileAtomic replaces path with data so readers never see a partial
// report.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
