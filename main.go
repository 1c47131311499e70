package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"esim-dashboard/config"
	"esim-dashboard/metrics"
	"esim-dashboard/models"
	"esim-dashboard/scraper/directory"
	"esim-dashboard/server"
	"esim-dashboard/services"
	"esim-dashboard/storage"
	"esim-dashboard/utils"
)

var (
	verbose      bool
	exportPath   string
	snapshot     bool
	fromSnapshot bool
	listenAddr   string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "esim-dashboard",
		Short: "Compare eSIM plans published as CSV files",
		RunE:  runReport,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	addReportFlags(rootCmd)

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Print the plan comparison report",
		RunE:  runReport,
	}
	addReportFlags(reportCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (default SERVER_HOST:SERVER_PORT)")

	rootCmd.AddCommand(reportCmd, serveCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&exportPath, "export", "o", "", "Write the unified dataset to this CSV file (default CSV_EXPORT_PATH)")
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "Store the normalized dataset in PostgreSQL (default SNAPSHOT_ENABLED)")
	cmd.Flags().BoolVar(&fromSnapshot, "from-snapshot", false, "Build the report from the last PostgreSQL snapshot instead of fetching")
}

type app struct {
	cfg       *config.Config
	logger    *utils.Logger
	registry  *prometheus.Registry
	dashboard *services.Dashboard
	insights  *services.InsightService
	close     func()
}

func newApp() *app {
	logger := utils.NewLogger()
	logger.SetVerbose(verbose)
	cfg := config.Load()

	registry := prometheus.NewRegistry()
	rec := metrics.New(registry)

	httpFetcher := directory.NewHTTPFetcher(cfg.RequestTimeout)

	var listingFetcher directory.Fetcher = httpFetcher
	closeFn := func() {}
	if cfg.FetchMode == config.FetchModeBrowser {
		browser := directory.NewBrowserFetcher(cfg.RequestTimeout, cfg.ChromeBin, logger)
		listingFetcher = browser
		closeFn = browser.Close
	}

	insights := services.NewInsightService(cfg.Columns, cfg.TopCountries, cfg.PriceThreshold, logger)
	dashboard := services.NewDashboard(cfg.BaseURL, cfg.CacheTTL, services.DashboardDeps{
		Discoverer: directory.NewDiscoverer(listingFetcher, cfg.ListingPath, cfg.FileSuffix, logger, rec),
		Loader:     services.NewLoader(httpFetcher, logger, rec),
		Normalizer: services.NewNormalizer(cfg.Columns.PricePerUnit,
			services.NumericParser{DecimalSeparator: cfg.DecimalSeparator}, logger),
		Insights: insights,
		Logger:   logger,
		Metrics:  rec,
	})

	logger.Info("Config: listing: %s | fetch mode: %s | timeout: %s | cache ttl: %s",
		cfg.ListingURL(), cfg.FetchMode, cfg.RequestTimeout, cfg.CacheTTL)

	return &app{
		cfg:       cfg,
		logger:    logger,
		registry:  registry,
		dashboard: dashboard,
		insights:  insights,
		close:     closeFn,
	}
}

func (a *app) openSnapshotStore(ctx context.Context) (*storage.PostgresWriter, error) {
	return storage.NewPostgresWriter(ctx, a.cfg.DSN(), a.cfg.Columns, &utils.RetryConfig{
		MaxAttempts: a.cfg.MaxRetries,
		BaseDelay:   2 * time.Second,
		Logger:      a.logger,
	})
}

func runReport(cmd *cobra.Command, _ []string) error {
	a := newApp()
	defer a.close()
	ctx := cmd.Context()

	a.logger.Info("=== eSIM Dashboard report ===")

	if fromSnapshot {
		return a.reportFromSnapshot(ctx)
	}

	snap := a.dashboard.Refresh(ctx)
	a.insights.Print(snap.Report)

	path := exportPath
	if path == "" {
		path = a.cfg.CSVExportPath
	}
	if path != "" {
		if err := exportCSV(path, snap.Dataset); err != nil {
			a.logger.Error("CSV export failed: %v", err)
		} else {
			a.logger.Info("Unified dataset saved to %s", path)
		}
	}

	if (snapshot || a.cfg.SnapshotEnabled) && snap.Dataset.Len() > 0 {
		pg, err := a.openSnapshotStore(ctx)
		if err != nil {
			a.logger.Error("Failed to connect to PostgreSQL: %v", err)
			return err
		}

		if err := writeDataset(pg, snap.Dataset); err != nil {
			a.logger.Error("PostgreSQL write failed: %v", err)
			return err
		}
		a.logger.Info("Snapshot of %d products stored in PostgreSQL (table: esim_products)", snap.Dataset.Len())
	}

	return nil
}

func (a *app) reportFromSnapshot(ctx context.Context) error {
	pg, err := a.openSnapshotStore(ctx)
	if err != nil {
		a.logger.Error("Failed to connect to PostgreSQL: %v", err)
		return err
	}
	defer pg.Close()

	var reader storage.DatasetReader = pg
	ds, err := reader.FetchAll()
	if err != nil {
		a.logger.Error("Failed to fetch snapshot: %v", err)
		return err
	}

	var diags []models.Diagnostic
	if ds.Len() == 0 {
		diags = append(diags, models.Diagnostic{
			Kind:    models.DiagnosticEmptyDataset,
			Message: services.ErrEmptyDataset.Error(),
		})
	}
	a.insights.Print(a.insights.Generate(ds, nil, diags))
	return nil
}

func exportCSV(path string, ds *models.Dataset) error {
	w, err := storage.NewCSVWriter(path)
	if err != nil {
		return err
	}
	return writeDataset(w, ds)
}

func writeDataset(w storage.DatasetWriter, ds *models.Dataset) error {
	if err := w.Write(ds); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func runServe(_ *cobra.Command, _ []string) error {
	a := newApp()
	defer a.close()

	addr := listenAddr
	if addr == "" {
		addr = a.cfg.ServerAddr()
	}

	api := server.NewWebAPI(a.logger, server.Config{
		Addr:            addr,
		ShutdownTimeout: 10 * time.Second,
		Dependencies: server.Dependencies{
			Dashboard: a.dashboard,
			Gatherer:  a.registry,
		},
	})
	return api.Start()
}
