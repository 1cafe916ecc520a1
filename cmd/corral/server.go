package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cuemby/corral/pkg/config"
	"github.com/cuemby/corral/pkg/engine"
	"github.com/cuemby/corral/pkg/log"
	"github.com/cuemby/corral/pkg/metrics"
	"github.com/cuemby/corral/pkg/storage"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the orchestrator engine",
	Long: `Run the Corral engine: the action dispatcher, the policy pipeline
and the metrics/health endpoints. State is persisted in a local BoltDB
database under the configured data directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		dataDir, _ := cmd.Flags().GetString("data-dir")
		listenAddr, _ := cmd.Flags().GetString("listen-addr")
		workers, _ := cmd.Flags().GetInt("workers")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		// Flags override the config file
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if listenAddr != "" {
			cfg.ListenAddr = listenAddr
		}
		if workers > 0 {
			cfg.Workers = workers
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
		})
		metrics.SetVersion(Version)

		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return fmt.Errorf("failed to create data dir: %v", err)
		}
		store, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open store: %v", err)
		}
		defer store.Close()
		metrics.UpdateComponent("storage", true, "")

		eng, err := engine.New(store, engine.Options{
			Workers:              cfg.Workers,
			PollInterval:         cfg.PollInterval,
			DefaultActionTimeout: cfg.DefaultActionTimeout,
		})
		if err != nil {
			return fmt.Errorf("failed to create engine: %v", err)
		}
		eng.Start()
		metrics.UpdateComponent("engine", true, "")

		collector := metrics.NewCollector(store)
		collector.Start()

		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/healthz", metrics.HealthHandler())
		httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: mux}

		errCh := make(chan error, 1)
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("http server error: %v", err)
			}
		}()

		logger := log.WithComponent("server")
		logger.Info().
			Str("data_dir", cfg.DataDir).
			Str("listen_addr", cfg.ListenAddr).
			Int("workers", cfg.Workers).
			Msg("corral server running")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			logger.Info().Msg("shutting down")
		case err := <-errCh:
			logger.Error().Err(err).Msg("shutting down")
		}

		_ = httpServer.Close()
		collector.Stop()
		eng.Stop()
		return nil
	},
}

func init() {
	serverCmd.Flags().String("config", "", "path to a YAML config file")
	serverCmd.Flags().String("data-dir", "", "directory for the BoltDB database")
	serverCmd.Flags().String("listen-addr", "", "address for the metrics and health endpoints")
	serverCmd.Flags().Int("workers", 0, "size of the action worker pool")
}
