package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"reddata/warehouse/config"
	"reddata/warehouse/internal/analysis"
	"reddata/warehouse/internal/database"
	"reddata/warehouse/internal/export"
	"reddata/warehouse/internal/geocoding"
	"reddata/warehouse/internal/loader"
	"reddata/warehouse/internal/scheduler"
	"reddata/warehouse/internal/stats"
	"reddata/warehouse/internal/sync"
)

const usage = `Usage: warehouse <command> [flags]

Commands:
  stats           run the weighted aggregation over LWU properties
  sync            sync housing listings from the scraper database
  schedule        run the nightly sync scheduler in the foreground
  init-schema     create warehouse schemas and tables
  load-zensus     load Zensus CSV fact files from a directory or file
  load-grids      load a reference grid CSV
  load-lwu        load LWU property parcels from GeoJSON
  load-vg250      load VG250 administrative boundaries from a shapefile
  load-elections  load election results from CSV
`

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "stats":
		runStats(ctx, cfg, logger, args)
	case "sync":
		runSync(ctx, cfg, logger, args)
	case "schedule":
		runSchedule(ctx, cfg, logger)
	case "init-schema":
		runInitSchema(ctx, cfg, logger)
	case "load-zensus":
		runLoadZensus(ctx, cfg, logger, args)
	case "load-grids":
		runLoadGrids(ctx, cfg, logger, args)
	case "load-lwu":
		runLoadLWU(ctx, cfg, logger, args)
	case "load-vg250":
		runLoadVG250(ctx, cfg, logger, args)
	case "load-elections":
		runLoadElections(ctx, cfg, logger, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n\n%s", command, usage)
		os.Exit(2)
	}
}

func openWarehouse(ctx context.Context, cfg *config.Config, logger *logrus.Logger) *database.Warehouse {
	pool, err := database.NewPool(ctx, cfg.Database.WarehouseDSN, cfg.Database.MaxConnections, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to warehouse database")
	}
	return database.NewWarehouse(pool, logger)
}

func runStats(ctx context.Context, cfg *config.Config, logger *logrus.Logger, args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	csvPath := fs.String("csv", "", "write results to this CSV file")
	insert := fs.Bool("insert", false, "upsert results into analytics.fact_lwu_weighted_stats")
	diagnosticsDir := fs.String("diagnostics", "", "write intermediate tables to this directory")
	fs.Parse(args)

	wh := openWarehouse(ctx, cfg, logger)
	defer wh.Pool().Close()

	var sink stats.DiagnosticSink
	if *diagnosticsDir != "" {
		s, err := analysis.NewCSVDiagnostics(*diagnosticsDir)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create diagnostics directory")
		}
		sink = s
	}

	tolerance := stats.Tolerance{
		Low:  cfg.Statistics.ProportionSumLow,
		High: cfg.Statistics.ProportionSumHigh,
	}

	calc := analysis.NewCalculator(wh, logger, tolerance, sink)
	rows, _, err := calc.Run(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Aggregation failed")
	}

	if *csvPath != "" {
		if err := export.WriteStatsCSV(*csvPath, rows); err != nil {
			logger.WithError(err).Fatal("Failed to write CSV")
		}
		logger.WithField("path", *csvPath).Info("Wrote stats CSV")
	}
	if *insert {
		if err := calc.Persist(ctx, rows); err != nil {
			logger.WithError(err).Fatal("Failed to persist stats")
		}
	}
}

func newSyncer(ctx context.Context, cfg *config.Config, logger *logrus.Logger, wh *database.Warehouse, withSource bool) (*sync.Syncer, func()) {
	cache, err := geocoding.NewCache(cfg.Geocoding.CachePath, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open geocoding cache")
	}

	geocoder := geocoding.NewGeocoder(logger, cache,
		cfg.Geocoding.BaseURL, cfg.Geocoding.RateLimit, cfg.Geocoding.MaxRetries)

	var source sync.Source
	cleanup := func() { cache.Close() }
	if withSource {
		if cfg.Database.ScraperDSN == "" {
			logger.Fatal("SCRAPER_DSN is not configured")
		}
		pool, err := database.NewPool(ctx, cfg.Database.ScraperDSN, cfg.Database.MaxConnections, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to scraper database")
		}
		scraper := database.NewScraper(pool, logger)
		source = scraper
		cleanup = func() {
			scraper.Close()
			cache.Close()
		}
	}

	return sync.NewSyncer(wh, source, geocoder, cfg, logger), cleanup
}

func runSync(ctx context.Context, cfg *config.Config, logger *logrus.Logger, args []string) {
	fs := flag.NewFlagSet("sync", flag.ExitOnError)
	full := fs.Bool("full", false, "ignore the last sync timestamp and fetch everything")
	limit := fs.Int("limit", 0, "limit number of listings fetched (0 = no limit)")
	geocodeLimit := fs.Int("geocode-limit", 0, "limit number of listings geocoded (0 = no limit)")
	retryFailed := fs.Bool("retry-failed", false, "re-geocode listings whose geocoding failed")
	fs.Parse(args)

	wh := openWarehouse(ctx, cfg, logger)
	defer wh.Pool().Close()

	syncer, cleanup := newSyncer(ctx, cfg, logger, wh, !*retryFailed)
	defer cleanup()

	if *retryFailed {
		if err := syncer.RetryFailed(ctx); err != nil {
			logger.WithError(err).Fatal("Geocoding retry failed")
		}
		return
	}

	opts := sync.Options{Full: *full, Limit: *limit, GeocodeLimit: *geocodeLimit}
	if err := syncer.Run(ctx, opts); err != nil {
		logger.WithError(err).Fatal("Sync failed")
	}
}

func runSchedule(ctx context.Context, cfg *config.Config, logger *logrus.Logger) {
	wh := openWarehouse(ctx, cfg, logger)
	defer wh.Pool().Close()

	syncer, cleanup := newSyncer(ctx, cfg, logger, wh, true)
	defer cleanup()

	job := scheduler.JobFunc(func(jobCtx context.Context) error {
		return syncer.Run(jobCtx, sync.Options{})
	})

	s := scheduler.NewScheduler(job, cfg.Scheduler.SyncHour, logger)
	s.Start()
	logger.WithField("sync_hour", cfg.Scheduler.SyncHour).Info("Scheduler started")

	<-ctx.Done()
	logger.Info("Shutting down scheduler")
	s.Stop()
}

func runInitSchema(ctx context.Context, cfg *config.Config, logger *logrus.Logger) {
	wh := openWarehouse(ctx, cfg, logger)
	defer wh.Pool().Close()

	if err := wh.EnsureSchemas(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to initialize schema")
	}
}

type loaders struct {
	zensus     *loader.ZensusLoader
	grids      *loader.GridLoader
	properties *loader.PropertyLoader
	vg250      *loader.VG250Loader
	elections  *loader.ElectionLoader
}

func loaderFor(wh *database.Warehouse, logger *logrus.Logger) loaders {
	pool := wh.Pool()
	return loaders{
		zensus:     loader.NewZensusLoader(pool, logger),
		grids:      loader.NewGridLoader(pool, logger),
		properties: loader.NewPropertyLoader(pool, logger),
		vg250:      loader.NewVG250Loader(pool, logger),
		elections:  loader.NewElectionLoader(pool, logger),
	}
}

func requirePath(fs *flag.FlagSet, logger *logrus.Logger) string {
	if fs.NArg() < 1 {
		logger.Fatal("Missing path argument")
	}
	return fs.Arg(0)
}

func runLoadZensus(ctx context.Context, cfg *config.Config, logger *logrus.Logger, args []string) {
	fs := flag.NewFlagSet("load-zensus", flag.ExitOnError)
	fs.Parse(args)
	path := requirePath(fs, logger)

	wh := openWarehouse(ctx, cfg, logger)
	defer wh.Pool().Close()

	l := loaderFor(wh, logger)
	info, err := os.Stat(path)
	if err != nil {
		logger.WithError(err).Fatal("Cannot access path")
	}

	if info.IsDir() {
		err = l.zensus.LoadDir(ctx, path)
	} else {
		err = l.zensus.LoadFile(ctx, path)
	}
	if err != nil {
		logger.WithError(err).Fatal("Zensus load failed")
	}
}

func runLoadGrids(ctx context.Context, cfg *config.Config, logger *logrus.Logger, args []string) {
	fs := flag.NewFlagSet("load-grids", flag.ExitOnError)
	size := fs.String("size", "100m", "grid size: 100m, 1km or 10km")
	fs.Parse(args)
	path := requirePath(fs, logger)

	wh := openWarehouse(ctx, cfg, logger)
	defer wh.Pool().Close()

	if err := loaderFor(wh, logger).grids.Load(ctx, path, *size); err != nil {
		logger.WithError(err).Fatal("Grid load failed")
	}
}

func runLoadLWU(ctx context.Context, cfg *config.Config, logger *logrus.Logger, args []string) {
	fs := flag.NewFlagSet("load-lwu", flag.ExitOnError)
	fs.Parse(args)
	path := requirePath(fs, logger)

	wh := openWarehouse(ctx, cfg, logger)
	defer wh.Pool().Close()

	if err := loaderFor(wh, logger).properties.Load(ctx, path); err != nil {
		logger.WithError(err).Fatal("LWU load failed")
	}
}

func runLoadVG250(ctx context.Context, cfg *config.Config, logger *logrus.Logger, args []string) {
	fs := flag.NewFlagSet("load-vg250", flag.ExitOnError)
	level := fs.String("level", "KRS", "administrative level: LAN, KRS or GEM")
	fs.Parse(args)
	path := requirePath(fs, logger)

	wh := openWarehouse(ctx, cfg, logger)
	defer wh.Pool().Close()

	if err := loaderFor(wh, logger).vg250.Load(ctx, path, *level); err != nil {
		logger.WithError(err).Fatal("VG250 load failed")
	}
}

func runLoadElections(ctx context.Context, cfg *config.Config, logger *logrus.Logger, args []string) {
	fs := flag.NewFlagSet("load-elections", flag.ExitOnError)
	election := fs.String("election", "", "election label, defaults to the file name")
	fs.Parse(args)
	path := requirePath(fs, logger)

	if *election == "" {
		base := filepath.Base(path)
		*election = strings.TrimSuffix(base, filepath.Ext(base))
	}

	wh := openWarehouse(ctx, cfg, logger)
	defer wh.Pool().Close()

	if err := loaderFor(wh, logger).elections.Load(ctx, path, *election); err != nil {
		logger.WithError(err).Fatal("Election load failed")
	}
}
