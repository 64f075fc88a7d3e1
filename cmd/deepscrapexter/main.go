// cmd/deepscrapexter/main.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/valpere/DeepScrapexter/internal/monitoring"
	"github.com/valpere/DeepScrapexter/internal/output"
	"github.com/valpere/DeepScrapexter/internal/pipeline"
	"github.com/valpere/DeepScrapexter/internal/scrapererr"
	"github.com/valpere/DeepScrapexter/internal/session"
	"github.com/valpere/DeepScrapexter/internal/template"
	"github.com/valpere/DeepScrapexter/internal/utils"
)

// Version information (set by build flags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

var (
	logLevel string
	logDir   string
	verbose  bool
)

var rootCmd = &cobra.Command{
	Use:   "deepscrapexter",
	Short: "Template-driven structured record extraction from websites",
	Long: `DeepScrapexter extracts structured records from listing sites using
YAML or JSON templates: a container selector for the repeating record,
field selectors inside it, optional profile subpages, and pagination.

Selectors recover from site redesigns through tiered fallback
resolution, so a template keeps working after the markup shifts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := utils.DefaultLogConfig()
		if logLevel != "" {
			cfg.Level = logLevel
		}
		if verbose {
			cfg.Level = "debug"
		}
		cfg.LogDir = logDir
		return utils.InitLogger(cfg)
	},
}

var (
	runURL      string
	runURLFile  string
	runOutput   string
	runFormat   string
	runConfig   string
	runMaxPages int
	runQuiet    bool
	runMetrics  string
)

var runCmd = &cobra.Command{
	Use:   "run <template>",
	Short: "Run a scraping template",
	Long:  `Run a scraping template from a file, or from stdin when the argument is "-".`,
	Args:  cobra.ExactArgs(1),
	RunE:  runScrape,
}

var validateJSON bool

var validateCmd = &cobra.Command{
	Use:   "validate <template>",
	Short: "Validate a template and report its redesign resilience",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

var templateOut string

var templateCmd = &cobra.Command{
	Use:   "template [kind]",
	Short: "Generate a starter template (basic, listing, or directory)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTemplate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		printVersion(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logDir, "log-dir", "", "directory for the rotating log file (empty logs to console only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")

	runCmd.Flags().StringVarP(&runURL, "url", "u", "", "override the template's listing URL")
	runCmd.Flags().StringVar(&runURLFile, "url-file", "", "file with one listing URL per line")
	runCmd.Flags().StringVarP(&runOutput, "output", "o", "", "override the output path")
	runCmd.Flags().StringVar(&runFormat, "format", "", "override the output format")
	runCmd.Flags().StringVarP(&runConfig, "config", "c", "", "session configuration file")
	runCmd.Flags().IntVar(&runMaxPages, "max-pages", 0, "cap pagination for this run")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "suppress the progress bar and summary")
	runCmd.Flags().StringVar(&runMetrics, "metrics", "", "serve Prometheus metrics on this address for the run (e.g. :9090)")

	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print the analysis report as JSON")

	templateCmd.Flags().StringVarP(&templateOut, "output", "o", "", "write the template to a file instead of stdout")

	rootCmd.AddCommand(runCmd, validateCmd, templateCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		formatter := scrapererr.NewFormatter(verbose)
		fmt.Fprint(os.Stderr, formatter.FormatErrorForCLI(err))
		os.Exit(scrapererr.GetExitCode(err))
	}
}

func runScrape(cmd *cobra.Command, args []string) error {
	tpl, err := loadTemplateArg(args[0])
	if err != nil {
		return err
	}
	if runURL != "" {
		tpl.URL = runURL
	}
	applyOutputOverrides(tpl)
	defaultOutputPath(tpl)

	config := session.DefaultConfig()
	if runConfig != "" {
		config, err = session.LoadConfig(runConfig)
		if err != nil {
			return err
		}
	}
	if runMaxPages > 0 {
		config.MaxPages = runMaxPages
	}

	urls := []string{tpl.URL}
	if runURLFile != "" {
		urls, err = utils.ReadURLsFromFile(runURLFile)
		if err != nil {
			return err
		}
	}
	if urls[0] == "" {
		return fmt.Errorf("no listing URL: set url in the template or pass --url / --url-file")
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "interrupted, shutting down")
		cancel()
	}()

	if runMetrics != "" {
		go func() {
			if err := monitoring.StartServer(ctx, runMetrics); err != nil {
				logger := utils.NewComponentLogger("cli")
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	sess, err := session.New(tpl, config)
	if err != nil {
		return err
	}
	defer sess.Close()

	spec := tpl.Output
	if spec == nil {
		spec = &template.OutputSpec{Format: output.FormatJSON}
	}
	manager, err := output.NewManager(spec)
	if err != nil {
		return err
	}

	summary := runSummary{started: time.Now()}
	runErr := scrapeURLs(ctx, sess, manager, config, urls, &summary)
	if closeErr := manager.Close(); runErr == nil {
		runErr = closeErr
	}
	if runErr != nil {
		return runErr
	}

	if !runQuiet {
		printSummary(cmd.OutOrStdout(), tpl, spec, &summary)
	}
	if summary.failed > 0 && summary.records == 0 {
		return fmt.Errorf("all %d URLs failed", summary.failed)
	}
	return nil
}

// runSummary aggregates counters across a batch of listing URLs.
type runSummary struct {
	started  time.Time
	records  int
	pages    int
	subpages int
	failed   int
	errors   int
}

func scrapeURLs(ctx context.Context, sess *session.Session, manager *output.Manager, config session.Config, urls []string, summary *runSummary) error {
	logger := utils.NewComponentLogger("cli")

	var bar *progressbar.ProgressBar
	if len(urls) > 1 && !runQuiet {
		bar = newProgressBar(len(urls), "scraping")
	}

	for i, u := range urls {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(config.BatchDelay):
			}
		}

		result, err := sess.RunURL(ctx, u)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			// One broken URL should not sink the batch.
			summary.failed++
			logger.Error().Err(err).Str("url", u).Msg("scrape failed")
			if bar != nil {
				_ = bar.Add(1)
			}
			continue
		}

		summary.records += len(result.Records)
		summary.pages += result.Metadata.PagesFetched
		summary.subpages += result.Metadata.SubpagesFetched
		summary.errors += len(result.Errors)

		if err := manager.Write(result.Records); err != nil {
			return err
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if bar != nil {
		_ = bar.Finish()
		fmt.Fprintln(os.Stderr)
	}
	return nil
}

func newProgressBar(max int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(max,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

func applyOutputOverrides(tpl *template.Template) {
	if runOutput == "" && runFormat == "" {
		return
	}
	if tpl.Output == nil {
		tpl.Output = &template.OutputSpec{}
	}
	if runOutput != "" {
		tpl.Output.Path = runOutput
	}
	if runFormat != "" {
		tpl.Output.Format = runFormat
	}
}

// loadTemplateArg loads the run's template, reading stdin for "-" so
// templates can be piped in.
func loadTemplateArg(arg string) (*template.Template, error) {
	if arg == "-" {
		return template.LoadFromReader(os.Stdin)
	}
	return template.LoadFromFile(arg)
}

// defaultOutputPath fills in a generated filename for formats that cannot
// stream to stdout.
func defaultOutputPath(tpl *template.Template) {
	if tpl.Output == nil || tpl.Output.Path != "" {
		return
	}
	switch tpl.Output.Format {
	case output.FormatExcel:
		tpl.Output.Path = utils.GenerateOutputFileName(tpl.URL, "xlsx")
	case output.FormatSQLite:
		tpl.Output.Path = utils.GenerateOutputFileName(tpl.URL, "db")
	}
}

func printSummary(w io.Writer, tpl *template.Template, spec *template.OutputSpec, s *runSummary) {
	fmt.Fprintf(w, "Template: %s\n", tpl.Name)
	fmt.Fprintf(w, "Records:  %d\n", s.records)
	fmt.Fprintf(w, "Pages:    %d listing, %d subpages\n", s.pages, s.subpages)
	if s.failed > 0 || s.errors > 0 {
		fmt.Fprintf(w, "Problems: %d failed URLs, %d field errors\n", s.failed, s.errors)
	}
	fmt.Fprintf(w, "Output:   %s\n", describeOutput(spec))
	fmt.Fprintf(w, "Elapsed:  %s\n", utils.FormatDuration(time.Since(s.started)))
}

func describeOutput(spec *template.OutputSpec) string {
	format := spec.Format
	if format == "" {
		format = output.FormatJSON
	}
	switch {
	case spec.Path != "":
		return fmt.Sprintf("%s (%s)", spec.Path, format)
	case spec.DSN != "":
		return format
	default:
		return fmt.Sprintf("stdout (%s)", format)
	}
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	tpl, err := template.ParseBytes(data)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}

	result := tpl.ValidateDetailed()
	if !result.Valid {
		fmt.Fprintf(os.Stderr, "Template %s is invalid:\n", args[0])
		for _, e := range result.Errors {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", e.Field, e.Message)
		}
		return fmt.Errorf("%d validation errors", len(result.Errors))
	}
	if problems := checkTransforms(tpl); len(problems) > 0 {
		fmt.Fprintf(os.Stderr, "Template %s has invalid transforms:\n", args[0])
		for _, p := range problems {
			fmt.Fprintf(os.Stderr, "  %s\n", p)
		}
		return fmt.Errorf("%d invalid transforms", len(problems))
	}

	report := template.Analyze(tpl)
	out := cmd.OutOrStdout()
	if validateJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintf(out, "✓ Template %q is valid\n\n", tpl.Name)
	printReport(out, report)
	return nil
}

// checkTransforms validates every field's transform chain. This lives in
// the command because the template package cannot depend on the pipeline.
func checkTransforms(tpl *template.Template) []string {
	var problems []string
	check := func(scope string, fields []template.FieldSpec) {
		for _, f := range fields {
			if err := pipeline.ValidateTransformRules(f.Transforms); err != nil {
				problems = append(problems, fmt.Sprintf("%s field %q: %v", scope, f.Label, err))
			}
		}
	}
	check("page", tpl.Fields)
	if tpl.Container != nil {
		check("listing", tpl.Container.SubFields)
		check("subpage", tpl.Container.SubpageFields)
	}
	return problems
}

func printReport(w io.Writer, r *template.Report) {
	fmt.Fprintf(w, "Listing fields:    %d\n", r.ListingFields)
	fmt.Fprintf(w, "Subpage fields:    %d\n", r.SubpageFields)
	fmt.Fprintf(w, "Required fields:   %d\n", r.RequiredFields)
	fmt.Fprintf(w, "Pagination:        %s\n", r.PaginationKind)
	fmt.Fprintf(w, "Semantic coverage: %d of %d fields recoverable by label\n",
		r.SemanticCoverage, r.ListingFields+r.SubpageFields)
	if r.SubpageOnly {
		fmt.Fprintf(w, "Mode:              subpage-only (listing pass skipped)\n")
	}
	if len(r.FragileSelectors) > 0 {
		fmt.Fprintln(w, "\nFragile selectors:")
		for _, s := range r.FragileSelectors {
			fmt.Fprintf(w, "  - %s\n", s)
		}
	}
	if len(r.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		for _, warning := range r.Warnings {
			fmt.Fprintf(w, "  - %s\n", warning)
		}
	}
}

func runTemplate(cmd *cobra.Command, args []string) error {
	kind := ""
	if len(args) > 0 {
		kind = args[0]
	}
	tpl, err := template.Starter(kind)
	if err != nil {
		return err
	}

	if templateOut != "" {
		if err := template.SaveToFile(tpl, templateOut); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Template written to %s\n", templateOut)
		return nil
	}

	data, err := yaml.Marshal(tpl)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), string(data))
	return nil
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "DeepScrapexter %s\n", version)
	fmt.Fprintf(w, "Build time: %s\n", buildTime)
	fmt.Fprintf(w, "Git commit: %s\n", gitCommit)
}
