// Command simulate exercises a running flatrank instance with synthetic
// listings and reports how closely the rankings match a hidden true order.
//
// Start flatrank with FLATRANK_SCRAPER__RESOLVER_URL pointing at the
// resolver this command serves (default http://localhost:8091/resolve).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/okian/flatrank/internal/simulate"
	"github.com/okian/flatrank/pkg/logger"
)

const (
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL      = flag.String("url", "http://localhost:9080", "Base URL of the service")
		resolverAddr = flag.String("resolver", ":8091", "Listen address of the simulated resolver")
		listings     = flag.Int("listings", simulate.DefaultListings, "Number of synthetic listings")
		judgments    = flag.Int("judgments", 0, "Maximum judgments to submit (0 = until pairs run out)")
		workers      = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		seed         = flag.Int64("seed", time.Now().UnixNano(), "Seed for listing generation")
		timeout      = flag.Duration("timeout", simulate.DefaultTimeout, "HTTP request timeout")
		settle       = flag.Duration("settle", simulate.DefaultSettleTimeout, "How long to wait for scraping")
		verbose      = flag.Bool("verbose", false, "Log every judgment")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}
	log := logger.Get().Named("simulate")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, defaultTestTimeout)
	defer cancel()

	generated := simulate.Generate(*listings, *seed, simulate.DefaultGeneratorConfig())

	mux := http.NewServeMux()
	mux.Handle("/resolve", simulate.NewResolver(generated))
	resolver := &http.Server{Addr: *resolverAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := resolver.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(ctx, "resolver stopped", logger.Error(err))
			cancel()
		}
	}()
	defer func() { _ = resolver.Shutdown(context.Background()) }()
	log.Info(ctx, "resolver listening", logger.String("addr", *resolverAddr), logger.Int64("seed", *seed))

	stats, err := simulate.Run(ctx, simulate.Config{
		BaseURL:       *baseURL,
		Listings:      *listings,
		Judgments:     *judgments,
		Workers:       *workers,
		Timeout:       *timeout,
		Seed:          *seed,
		Verbose:       *verbose,
		SettleTimeout: *settle,
	}, generated)
	if err != nil {
		log.Error(ctx, "simulation failed", logger.Error(err))
		os.Exit(1)
	}
	fmt.Printf("agreement %.3f over %d bands, %d judgments in %s\n",
		stats.Agreement, stats.Bands, stats.JudgmentsSubmitted, stats.Duration.Round(time.Millisecond))
}
