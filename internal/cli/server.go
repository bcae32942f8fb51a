package cli

import (
	"context"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/Dicklesworthstone/loglite/internal/backlog"
	"github.com/Dicklesworthstone/loglite/internal/compress"
	"github.com/Dicklesworthstone/loglite/internal/config"
	"github.com/Dicklesworthstone/loglite/internal/dictionary"
	"github.com/Dicklesworthstone/loglite/internal/harvester"
	"github.com/Dicklesworthstone/loglite/internal/httpapi"
	"github.com/Dicklesworthstone/loglite/internal/logging"
	"github.com/Dicklesworthstone/loglite/internal/metrics"
	"github.com/Dicklesworthstone/loglite/internal/notifier"
	"github.com/Dicklesworthstone/loglite/internal/store"
	"github.com/Dicklesworthstone/loglite/internal/vacuum"
	"github.com/Dicklesworthstone/loglite/internal/writer"
)

func newServerCmd() *cobra.Command {
	var configPath string

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Run loglite's services",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the HTTP server, writer, harvesters, and vacuum task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), configPath)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "loglite.yaml", "path to the configuration file")
	serverCmd.AddCommand(runCmd)
	return serverCmd
}

// runServer wires every component (store, writer, harvesters, HTTP surface,
// vacuum) together and runs them concurrently until an interrupt/TERM
// signal arrives.
func runServer(ctx context.Context, configPath string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	rec := metrics.New(registry)

	harvester.SetTimestampField(cfg.LogTimestampField)

	st, err := store.Open(store.Options{
		Path:              cfg.DBPath,
		TableName:         cfg.LogTableName,
		Pragmas:           cfg.SqliteParams,
		DictionaryColumns: cfg.DictionaryColumns,
		Compression:       compress.NewColumnSet(cfg.Compression.Enabled, cfg.Compression.Columns),
		TimestampField:    cfg.LogTimestampField,
	})
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Initialize(ctx); err != nil {
		return err
	}
	for _, m := range cfg.Migrations {
		if err := st.ApplyMigration(ctx, store.Migration{Version: m.Version, Rollout: m.Rollout, Rollback: m.Rollback}); err != nil {
			return err
		}
	}

	dict, err := dictionary.Load(ctx, st)
	if err != nil {
		return err
	}

	bl := backlog.New(cfg.BacklogCapacity)
	defer bl.Close()
	notif := notifier.New()

	w := writer.New(writer.Options{
		Backlog:    bl,
		Store:      st,
		Dictionary: dict,
		Notifier:   notif,
		Metrics:    rec,
		BatchSize:  cfg.WriteBatchSize,
	})

	vac := vacuum.New(vacuum.Options{
		Store:        st,
		Metrics:      rec,
		Interval:     time.Duration(cfg.TaskVacuumInterval) * time.Second,
		MaxAge:       time.Duration(cfg.VacuumMaxDays) * 24 * time.Hour,
		MaxSizeMB:    float64(cfg.VacuumMaxSizeMB),
		TargetSizeMB: float64(cfg.VacuumTargetSizeMB),
	})

	router := httpapi.NewRouter(httpapi.Options{
		Store:       st,
		Dictionary:  dict,
		Backlog:     bl,
		Notifier:    notif,
		Metrics:     rec,
		SSEDebounce: time.Duration(cfg.SSEDebounceMS) * time.Millisecond,
		SSELimit:    cfg.SSELimit,
	})
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/", router)

	httpServer := &http.Server{
		Addr:    cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Handler: mux,
	}

	p := pool.New().WithContext(ctx)
	p.Go(func(ctx context.Context) error { return w.Run(ctx) })
	p.Go(func(ctx context.Context) error { return vac.Run(ctx) })
	p.Go(func(ctx context.Context) error {
		return harvester.NewSupervisor(bl).Run(ctx, cfg.Harvesters)
	})
	p.Go(func(ctx context.Context) error { return serveHTTP(ctx, httpServer) })
	p.Go(func(ctx context.Context) error {
		_ = config.Watch(ctx, configPath, func(*config.Config) {
			logging.Default.Info("config: live reload observed; restart to apply database/harvester changes")
		})
		return nil
	})

	return p.Wait()
}

func serveHTTP(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
