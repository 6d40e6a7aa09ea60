package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/drivesign/drivesign/internal/config"
	"github.com/drivesign/drivesign/internal/daemon"
	"github.com/drivesign/drivesign/internal/logging"
	"github.com/drivesign/drivesign/internal/metrics"
	"github.com/drivesign/drivesign/internal/runner"
)

func main() {
	cfgFile := flag.String("config", "", "Path to config file")
	interval := flag.Duration("interval", 0, "run one pass per interval instead of exiting (e.g. 24h)")
	dryRun := flag.Bool("dry-run", false, "sign accounts in but skip notification dispatch")
	rotatedOut := flag.String("rotated-out", "", "write the post-run refresh-token list to this file (run-once mode)")
	flag.Parse()

	// secrets may arrive via a local .env instead of real environment
	_ = godotenv.Load()

	cfg := loadConfig(*cfgFile)
	if *interval > 0 {
		cfg.Interval = *interval
	}
	if *dryRun {
		cfg.DryRun = true
	}

	cleanup := initLogging()
	defer cleanup()

	initMetricsAndInflux(cfg)

	d := daemon.New(cfg, nil)
	if cfg.Interval > 0 {
		startDaemonAndWait(d)
		return
	}

	summary, err := d.RunOnce(context.Background())
	if err != nil {
		// the only fatal path: the run could not start at all
		logging.Get().Error().Err(err).Msg("run aborted")
		os.Exit(1)
	}
	logSummary(summary)
	if *rotatedOut != "" {
		if err := writeRotatedTokens(*rotatedOut, summary.RotatedTokens); err != nil {
			logging.Get().Error().Err(err).Str("path", *rotatedOut).Msg("failed writing rotated tokens")
		}
	}
	// exit 0: the pass ran to completion. Per-account and per-channel
	// failures are in the logs and the report, not the exit code.
}

// loadConfig applies the precedence defaults < file < env.
func loadConfig(cfgFile string) *config.Config {
	cfg := config.DefaultConfig()
	if cfgFile != "" {
		c, err := config.LoadConfigFromFile(cfgFile)
		if err != nil {
			log.Fatalf("failed loading config: %v", err)
		}
		cfg = c
	}
	if err := config.ApplyEnvOverrides(cfg); err != nil {
		log.Fatalf("invalid environment configuration: %v", err)
	}
	return cfg
}

// initLogging initializes the log subsystem from env and returns a cleanup func.
func initLogging() func() {
	cleanup, err := logging.Init(os.Getenv("DRIVESIGN_LOG_FILE"), os.Getenv("DRIVESIGN_LOG_LEVEL"))
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	return cleanup
}

// initMetricsAndInflux starts the optional metrics server and Influx pusher.
// Both are only useful in interval mode; a run-once process exits too fast
// for a scraper to see it.
func initMetricsAndInflux(cfg *config.Config) {
	if cfg.MetricsEnabled && cfg.Interval > 0 {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.PromHandler())
			mux.Handle("/status", metrics.JSONHandler())
			addr := fmt.Sprintf(":%d", cfg.MetricsPort)
			logging.Get().Info().Str("addr", addr).Msg("starting metrics server")
			_ = http.ListenAndServe(addr, mux)
		}()
	}
	if cfg.InfluxURL != "" && cfg.Interval > 0 {
		go metrics.StartInfluxPusher(context.Background(), cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket, cfg.InfluxInterval)
	}
}

// startDaemonAndWait runs interval mode until SIGINT/SIGTERM.
func startDaemonAndWait(d *daemon.Daemon) {
	go d.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logging.Get().Info().Msg("shutdown signal received, waiting for active pass to complete")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.Stop(shutdownCtx)
}

func logSummary(summary *daemon.Summary) {
	failed := runner.Failed(summary.Results)
	logging.Get().Info().
		Int("accounts", len(summary.Results)).
		Int("failed", failed).
		Int("channels", len(summary.Outcomes)).
		Msg("run complete")
}

// writeRotatedTokens persists the post-run credential list for the scheduler
// to store (e.g. an Actions step updating the repository secret).
func writeRotatedTokens(path string, tokens []string) error {
	return os.WriteFile(path, []byte(strings.Join(tokens, ",")+"\n"), 0o600)
}
