package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/basekick-labs/tablebench/internal/bench"
	"github.com/basekick-labs/tablebench/internal/config"
	"github.com/basekick-labs/tablebench/internal/logger"
	"github.com/basekick-labs/tablebench/internal/metrics"
	"github.com/basekick-labs/tablebench/internal/report"
	"github.com/basekick-labs/tablebench/internal/shutdown"
	"github.com/basekick-labs/tablebench/internal/tablestore"
	"github.com/basekick-labs/tablebench/internal/timing"
	"github.com/rs/zerolog/log"
)

// Version is set at build time
var Version = "dev"

func main() {
	configPath := flag.String("config", "", "path to a TOML config file (default: search tablebench.toml)")
	exportSample := flag.String("export-sample", "", "write the query sample to this file after loading")
	reuseSample := flag.String("reuse-sample", "", "skip loading and query the sample stored in this file")
	backend := flag.String("backend", "", "override store.backend")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if *backend != "" {
		cfg.Store.Backend = *backend
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}
	if *exportSample != "" && *reuseSample != "" {
		fmt.Fprintln(os.Stderr, "-export-sample and -reuse-sample are mutually exclusive")
		os.Exit(1)
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	log.Info().
		Str("version", Version).
		Str("backend", cfg.Store.Backend).
		Str("table", cfg.Bench.TableName).
		Msg("Starting tablebench")

	total, err := timing.Measure(func() error {
		return run(cfg, bench.Options{ExportSample: *exportSample, ReuseSample: *reuseSample})
	})
	if err != nil {
		if phase, ok := bench.FailedPhase(err); ok {
			fmt.Fprintf(os.Stderr, "Benchmark failed in the %s phase: %v\n", phase, err)
		} else {
			fmt.Fprintf(os.Stderr, "Benchmark failed: %v\n", err)
		}
		os.Exit(1)
	}
	log.Info().Str("total_time", timing.FormatDuration(total)).Msg("Benchmark finished")
}

func run(cfg *config.Config, opts bench.Options) (err error) {
	coordinator := shutdown.New(30*time.Second, logger.Get("shutdown"))
	defer func() {
		if shutdownErr := coordinator.Shutdown(); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}()

	ctx, cancel := coordinator.NotifyContext(context.Background())
	defer cancel()

	store, err := tablestore.Open(ctx, cfg, logger.Get("tablestore"))
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	coordinator.Register("tablestore", store, shutdown.PriorityBackend)

	counting := tablestore.NewCountingStore(store)
	coordinator.RegisterHook("store-counts", func(context.Context) error {
		c := counting.Counts()
		storeLog := logger.Get("tablestore")
		storeLog.Info().
			Int64("batches", c.Batches).
			Int64("inserted", c.Inserted).
			Int64("lookups", c.Lookups).
			Int64("misses", c.Misses).
			Msg("Store call totals")
		return nil
	}, shutdown.PriorityStore)

	if ms := cfg.Report.ProgressIntervalMS; ms > 0 {
		progress := metrics.NewCollector(counting, time.Duration(ms)*time.Millisecond, 1800, logger.Get("progress"))
		progress.Start()
		defer progress.Stop()
	}

	printer := report.NewPrinter(os.Stdout, logger.Get("report"))
	if opts.ReuseSample == "" {
		printer.Header(counting.Type(), len(cfg.Partitions), cfg.TotalPopulation())
	}

	result, err := bench.NewRunner(cfg, counting, logger.Get("bench")).Run(ctx, opts)
	if err != nil {
		return err
	}
	if err := printer.Print(result); err != nil {
		return err
	}

	if url := cfg.Report.PushgatewayURL; url != "" {
		pusher := report.NewPusher(url, cfg.Report.Job, logger.Get("report"))
		coordinator.RegisterHook("pushgateway", func(ctx context.Context) error {
			return pusher.Push(ctx, result)
		}, shutdown.PriorityReporter)
	}
	return nil
}
