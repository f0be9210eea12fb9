package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"inferd/internal/catalog"
	"inferd/internal/config"
	"inferd/internal/engine"
	"inferd/internal/httpapi"
	"inferd/internal/manager"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "inferd:", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var (
		configPath      string
		maxLoadedModels string
		llamacppArgs    string
		flags           config.Config
		corsOrigins     string
	)

	root := &cobra.Command{
		Use:           "inferd",
		Short:         "Local inference gateway for multiple backend engines",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Config{}
			if configPath != "" {
				var err error
				cfg, err = config.Load(configPath)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
			}
			if maxLoadedModels != "" {
				vals, err := config.SplitMaxLoadedModels(maxLoadedModels)
				if err != nil {
					return err
				}
				flags.MaxLoadedModels = vals
			}
			if llamacppArgs != "" {
				flags.LlamacppArgs = splitArgs(llamacppArgs)
			}
			cfg = config.Merge(cfg, flags)
			applyDefaults(&cfg)
			return run(cfg, corsOrigins)
		},
	}

	f := root.Flags()
	f.StringVar(&configPath, "config", envDefault("INFERD_CONFIG", ""), "Path to a yaml/json/toml config file")
	f.StringVar(&flags.Addr, "addr", envDefault("INFERD_ADDR", ""), "HTTP listen address, e.g. :8000")
	f.StringVar(&flags.ModelsDir, "models-dir", "", "Directory to scan for *.gguf model files")
	f.StringVar(&flags.CatalogPath, "catalog", "", "Path to the models.yaml catalog")
	f.StringVar(&maxLoadedModels, "max-loaded-models", "", "Per-type instance limits: one value (llm), three (llm embedding reranking) or four (plus audio)")
	f.IntVar(&flags.CtxSize, "ctx-size", 0, "Default context size for llama.cpp backends")
	f.StringVar(&flags.LlamaBin, "llama-bin", "", "Path to the llama-server binary")
	f.StringVar(&flags.FLMBin, "flm-bin", "", "Path to the FLM NPU server binary")
	f.StringVar(&flags.OGABin, "oga-bin", "", "Path to the OGA server binary")
	f.StringVar(&flags.WhisperBin, "whisper-bin", "", "Path to the whisper-server binary")
	f.StringVar(&flags.LlamacppBackend, "llamacpp-backend", "", "Default llama.cpp backend variant (e.g. vulkan)")
	f.StringVar(&llamacppArgs, "llamacpp-args", "", "Extra arguments passed to llama-server")
	f.IntVar(&flags.PortStart, "port-start", 0, "First port of the backend port range")
	f.IntVar(&flags.PortEnd, "port-end", 0, "Last port of the backend port range")
	f.StringVar(&flags.LogLevel, "log-level", envDefault("INFERD_LOG_LEVEL", ""), "Log level: debug|info|warn|error")
	f.StringVar(&corsOrigins, "cors-origins", "", "Comma-separated origins allowed via CORS (empty disables CORS)")

	return root
}

func applyDefaults(cfg *config.Config) {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.LlamaBin == "" {
		cfg.LlamaBin = "llama-server"
	}
	if cfg.PortStart == 0 {
		cfg.PortStart = 30000
	}
	if cfg.PortEnd == 0 {
		cfg.PortEnd = 30100
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func run(cfg config.Config, corsOrigins string) error {
	log := newLogger(cfg.LogLevel)

	slots, err := config.ParseMaxLoadedModels(cfg.MaxLoadedModels)
	if err != nil {
		return err
	}

	cat, err := buildCatalog(cfg)
	if err != nil {
		return err
	}
	log.Info().Int("models", cat.Len()).Msg("catalog loaded")

	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Catalog: cat,
		Slots:   slots,
		Engines: engine.Config{
			LlamaBin:   cfg.LlamaBin,
			FLMBin:     cfg.FLMBin,
			OGABin:     cfg.OGABin,
			WhisperBin: cfg.WhisperBin,
		},
		Defaults: engine.Overrides{
			CtxSize:         cfg.CtxSize,
			LlamacppArgs:    cfg.LlamacppArgs,
			LlamacppBackend: cfg.LlamacppBackend,
		},
		PortStart: cfg.PortStart,
		PortEnd:   cfg.PortEnd,
		Logger:    log,
	})

	httpapi.SetLogger(log)
	if corsOrigins != "" {
		httpapi.SetCORSOptions(true, splitCSV(corsOrigins),
			[]string{"GET", "POST", "OPTIONS"},
			[]string{"Accept", "Content-Type", "X-Log-Level"})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	httpapi.SetBaseContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.NewMux(mgr),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Run blocks until gctx is canceled, then unloads every
		// resident instance.
		return mgr.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Msg("inferd listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info().Msg("inferd stopped")
	return nil
}

// buildCatalog merges the models.yaml catalog (when given) with a scan
// of the models directory; scanned entries win on name collisions.
func buildCatalog(cfg config.Config) (*catalog.Catalog, error) {
	cat := catalog.New(nil)
	if cfg.CatalogPath != "" {
		c, err := catalog.LoadFile(cfg.CatalogPath)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		cat = c
	}
	if cfg.ModelsDir != "" {
		c, err := catalog.LoadDir(cfg.ModelsDir)
		if err != nil {
			return nil, fmt.Errorf("scan models dir: %w", err)
		}
		cat = catalog.Merge(cat, c)
	}
	return cat, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}

func envDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitArgs(s string) []string {
	return strings.Fields(s)
}
