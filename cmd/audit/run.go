package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/skills-audit/internal/browser"
	"github.com/joseph-ayodele/skills-audit/internal/common"
	"github.com/joseph-ayodele/skills-audit/internal/core"
	"github.com/joseph-ayodele/skills-audit/internal/core/aggregate"
	"github.com/joseph-ayodele/skills-audit/internal/core/policy"
	"github.com/joseph-ayodele/skills-audit/internal/core/report"
	"github.com/joseph-ayodele/skills-audit/internal/entity"
	"github.com/joseph-ayodele/skills-audit/internal/export"
	"github.com/joseph-ayodele/skills-audit/internal/progress"
)

type runParams struct {
	stdout      io.Writer
	username    string
	passwordEnv string
	minimums    []string
	languages   []string
	out         string
}

func newRunCommand() *cobra.Command {
	p := runParams{}
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run one audit and write the XLSX report",
		Example: `  AUDIT_PASSWORD=... audit run --username ogrenci --min İngilizce=50 --lang İngilizce --out rapor.xlsx`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p.stdout = cmd.OutOrStdout()
			return runAudit(cmd.Context(), p)
		},
	}
	cmd.Flags().StringVar(&p.username, "username", "", "platform username")
	cmd.Flags().StringVar(&p.passwordEnv, "password-env", "AUDIT_PASSWORD", "environment variable holding the password")
	cmd.Flags().StringArrayVar(&p.minimums, "min", nil, "per-language minimum as LANGUAGE=N (repeatable)")
	cmd.Flags().StringArrayVar(&p.languages, "lang", nil, "restrict the audit to this language (repeatable)")
	cmd.Flags().StringVar(&p.out, "out", "", "report path (default: configured output dir and naming)")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func runAudit(ctx context.Context, p runParams) error {
	cfg, err := common.LoadConfig()
	if err != nil {
		return &exitError{code: 2, err: err}
	}
	logger := common.NewLogger(cfg.Log)

	password := os.Getenv(p.passwordEnv)
	if err := common.NewValidator().
		Field("username", p.username, common.Required).
		Field(p.passwordEnv, password, common.Required).
		Err(); err != nil {
		return &exitError{code: 2, err: err}
	}
	th, err := parseMinimums(p.minimums, cfg.Audit.DefaultMinimum)
	if err != nil {
		return &exitError{code: 2, err: err}
	}

	dir, namer, err := output(p.out, cfg.Report)
	if err != nil {
		return &exitError{code: 2, err: err}
	}

	counter := browser.NewPageCounter(browser.DefaultCountRules(cfg.Audit.IncludeVideo), cfg.Browser.UserAgent, logger)
	fetcher := browser.NewFetcher(cfg.Browser, counter, logger)
	writer := export.NewService(dir, logger)
	processor := core.NewProcessor(logger, fetcher, writer,
		core.WithPolicy(policy.FromConfig(cfg.Levels)),
		core.WithNamer(namer),
		core.WithConcurrency(cfg.Audit.Concurrency),
		core.WithTimeouts(cfg.Audit.SessionTimeout, cfg.Audit.NavigationTimeout, cfg.Audit.BatchTimeout),
	)

	if cfg.Audit.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Audit.JobTimeout)
		defer cancel()
	}

	sink := progress.SinkFunc(func(percent int, message string) {
		logger.Info("audit.progress", "percent", percent, "message", message)
	})
	res, err := processor.Run(ctx, core.Request{
		JobID:       uuid.NewString(),
		Credentials: entity.Credentials{Username: p.username, Password: password},
		Thresholds:  th,
		Languages:   p.languages,
	}, sink)
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("%s: %w", common.ErrorCode(err), err)}
	}

	printSummary(p.stdout, res, th)
	fmt.Fprintf(p.stdout, "report: %s\n", filepath.Join(dir, res.ReportArtifact))
	return nil
}

// parseMinimums turns LANGUAGE=N flags into thresholds over def.
func parseMinimums(raw []string, def int) (aggregate.Thresholds, error) {
	th := aggregate.Thresholds{Default: def}
	for _, r := range raw {
		lang, val, ok := strings.Cut(r, "=")
		lang = strings.TrimSpace(lang)
		if !ok || lang == "" {
			return th, common.NewAppError(common.CodeInvalidInput, fmt.Sprintf("--min %q: want LANGUAGE=N", r), common.ErrInvalidInput)
		}
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil || n < 0 {
			return th, common.NewAppError(common.CodeInvalidInput, fmt.Sprintf("--min %q: N must be a non-negative integer", r), common.ErrInvalidInput)
		}
		if th.PerLanguage == nil {
			th.PerLanguage = make(map[string]int)
		}
		th.PerLanguage[lang] = n
	}
	return th, nil
}

// output resolves where the report goes. An explicit path fixes both directory and name;
// otherwise the configured directory and naming strategy apply.
func output(out string, cfg common.ReportConfig) (string, report.Namer, error) {
	if out == "" {
		namer, err := report.NamerFor(cfg.Naming)
		return cfg.OutputDir, namer, err
	}
	base := filepath.Base(out)
	if filepath.Ext(base) != ".xlsx" {
		return "", nil, common.NewAppError(common.CodeInvalidInput, fmt.Sprintf("--out %q: must end in .xlsx", out), common.ErrInvalidInput)
	}
	name := strings.TrimSuffix(base, ".xlsx")
	if name == "" {
		return "", nil, common.NewAppError(common.CodeInvalidInput, "--out: empty file name", common.ErrInvalidInput)
	}
	return filepath.Dir(out), func(string, time.Time) string { return name }, nil
}

func printSummary(w io.Writer, res *entity.AuditResult, th aggregate.Thresholds) {
	p := report.Build("", res.Data, nil, th)
	header := make([]string, 0, len(p.Columns))
	for _, c := range p.Columns {
		header = append(header, string(c))
	}
	for _, b := range p.Blocks {
		fmt.Fprintf(w, "%s (min %d)\n", b.Language, b.Threshold)
		fmt.Fprintf(w, "  %-6s %s\n", "", strings.Join(header, "\t"))
		for _, r := range b.Rows {
			cells := make([]string, 0, len(r.Cells))
			for _, c := range r.Cells {
				v := strconv.Itoa(c.Count)
				if c.Highlight {
					v += "*"
				}
				cells = append(cells, v)
			}
			fmt.Fprintf(w, "  %-6s %s\n", r.Level, strings.Join(cells, "\t"))
		}
	}
	if n := p.HighlightCount(); n > 0 {
		fmt.Fprintf(w, "%d cell(s) below minimum (*)\n", n)
	}
}
