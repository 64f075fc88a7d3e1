// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/valpere/DeepScrapexter/internal/monitoring"
	"github.com/valpere/DeepScrapexter/internal/session"
	"github.com/valpere/DeepScrapexter/internal/utils"
	"github.com/valpere/DeepScrapexter/pkg/api"
)

// Version information (set by build flags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

const (
	shutdownTimeout = 10 * time.Second

	// Degrade health before the process is at real risk.
	maxHeapBytes  = 1 << 30
	maxGoroutines = 10000
)

var opts serverOptions

var (
	logLevel string
	logDir   string
)

var generateKey bool

// serverOptions collects everything the flags configure.
type serverOptions struct {
	address       string
	apiKey        string
	ratePerSecond float64
	burst         int
	maxJobs       int
	configPath    string
	templateDir   string
}

var rootCmd = &cobra.Command{
	Use:   "deepscrapexter-server",
	Short: "HTTP API for running scraping templates as async jobs",
	Long: `deepscrapexter-server exposes the extraction engine over HTTP: submit
a template as a job, poll its status, and fetch the extracted records.
Health lives at /healthz and Prometheus metrics at /metrics.`,
	Version:      fmt.Sprintf("%s (built %s, commit %s)", version, buildTime, gitCommit),
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.Flags().StringVarP(&opts.address, "address", "a", ":8080", "listen address")
	rootCmd.Flags().StringVar(&opts.apiKey, "api-key", os.Getenv("DEEPSCRAPEXTER_API_KEY"), "bearer token required on API routes (empty disables auth)")
	rootCmd.Flags().Float64Var(&opts.ratePerSecond, "rate", 10, "request rate limit per second (0 disables)")
	rootCmd.Flags().IntVar(&opts.burst, "burst", 20, "request rate burst")
	rootCmd.Flags().IntVar(&opts.maxJobs, "max-jobs", 2, "jobs allowed to run concurrently")
	rootCmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "session configuration file")
	rootCmd.Flags().StringVar(&opts.templateDir, "template-dir", "", "directory of named templates submitted with ?template=")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	rootCmd.Flags().StringVar(&logDir, "log-dir", "", "directory for the rotating log file (empty logs to console only)")
	rootCmd.Flags().BoolVar(&generateKey, "generate-key", false, "print a fresh API key and exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	if generateKey {
		key, err := api.GenerateKey(32)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), key)
		return nil
	}

	logCfg := utils.DefaultLogConfig()
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	logCfg.LogDir = logDir
	if err := utils.InitLogger(logCfg); err != nil {
		return err
	}
	logger := utils.NewComponentLogger("server")

	srv, err := setup(opts)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              opts.address,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- httpServer.ListenAndServe()
	}()
	logger.Info().
		Str("address", opts.address).
		Str("version", version).
		Int("maxJobs", opts.maxJobs).
		Msg("api server listening")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown did not complete cleanly")
	}

	// Stop in-flight jobs, then wait for their goroutines to record
	// final status before the process exits.
	srv.CancelAll()
	srv.Wait()

	logger.Info().Msg("server stopped")
	return nil
}

// setup builds the API server from options and registers its health checks.
func setup(opts serverOptions) (*api.Server, error) {
	sessionConfig := session.DefaultConfig()
	if opts.configPath != "" {
		loaded, err := session.LoadConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
		sessionConfig = loaded
	}

	srv, err := api.NewServer(api.Config{
		Session:           sessionConfig,
		APIKey:            opts.apiKey,
		RatePerSecond:     opts.ratePerSecond,
		Burst:             opts.burst,
		MaxConcurrentJobs: opts.maxJobs,
		TemplateDir:       opts.templateDir,
	})
	if err != nil {
		return nil, err
	}

	srv.Health().Register(monitoring.MemoryCheck(maxHeapBytes))
	srv.Health().Register(monitoring.GoroutineCheck(maxGoroutines))
	if opts.templateDir != "" {
		srv.Health().Register(monitoring.TemplateDirCheck(opts.templateDir))
	}
	return srv, nil
}
