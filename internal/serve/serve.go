package serve

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/m1k1o/go-hlspack/internal/config"
	"github.com/m1k1o/go-hlspack/internal/server"
	"github.com/m1k1o/go-hlspack/modules"
	"github.com/m1k1o/go-hlspack/modules/catalog"
	"github.com/m1k1o/go-hlspack/modules/player"
	"github.com/m1k1o/go-hlspack/modules/proxy"
	proxyPkg "github.com/m1k1o/go-hlspack/pkg/proxy"
	"github.com/m1k1o/go-hlspack/pkg/storage"
)

const (
	proxyPrefix  = "/proxy/"
	playerPath   = "/player"
	healthPath   = "/health"
	healthBudget = 5 * time.Second
)

func NewCommand(storageConfig *config.Storage) *Main {
	return &Main{
		ServerConfig:   &server.Config{},
		DeliveryConfig: &config.Delivery{},
		StorageConfig:  storageConfig,
	}
}

type Main struct {
	ServerConfig   *server.Config
	DeliveryConfig *config.Delivery
	StorageConfig  *config.Storage

	logger  zerolog.Logger
	server  *server.ServerManagerCtx
	modules map[string]modules.Module
}

func (main *Main) Configs() []config.Config {
	return []config.Config{
		main.ServerConfig,
		main.DeliveryConfig,
	}
}

func (main *Main) Preflight() {
	main.logger = log.With().Str("service", "main").Logger()
}

// Mount registers every module on s, serving objects through gateway.
func (main *Main) Mount(s *server.ServerManagerCtx, gateway *storage.Gateway) {
	main.modules = map[string]modules.Module{}

	proxyModule := proxy.New(proxyPrefix, &proxy.Config{
		Config: proxyPkg.Config{
			FetchTimeout:  main.DeliveryConfig.FetchTimeout,
			IdleTimeout:   main.DeliveryConfig.IdleTimeout,
			PresignExpiry: main.StorageConfig.PresignExpiry,
		},
		PublicURL:  main.DeliveryConfig.PublicURL,
		TrustProxy: main.ServerConfig.Proxy,
		CORSMaxAge: main.DeliveryConfig.CORSMaxAge,
	}, gateway)
	s.Handle(proxyPrefix, proxyModule)
	main.modules["proxy"] = proxyModule
	main.logger.Info().Str("prefix", proxyPrefix).Msg("proxy registered")

	playerModule := player.New(playerPath, &player.Config{
		ProxyPrefix: proxyPrefix,
		Layout:      gateway.Layout(),
	})
	s.Handle(playerPath, playerModule)
	main.modules["player"] = playerModule
	main.logger.Info().Str("path", playerPath).Msg("player registered")

	catalogModule := catalog.New("/", &catalog.Config{
		PlayerPath: playerPath,
		Timeout:    main.StorageConfig.Timeout,
	}, gateway)
	s.Mount(func(r *chi.Mux) {
		r.Handle("/", catalogModule)
		r.Handle("/videos", catalogModule)
		r.Get(healthPath, main.health(gateway))
	})
	main.modules["catalog"] = catalogModule
	main.logger.Info().Msg("catalog registered")
}

type healthStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

func (main *Main) health(gateway *storage.Gateway) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthBudget)
		defer cancel()

		status, code := healthStatus{Status: "ok"}, http.StatusOK
		if err := gateway.Check(ctx); err != nil {
			main.logger.Warn().Err(err).Msg("health check failed")
			status, code = healthStatus{Status: "unavailable", Error: err.Error()}, http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}

func (main *Main) start() error {
	ctx, cancel := context.WithTimeout(context.Background(), main.StorageConfig.Timeout)
	defer cancel()

	gateway, err := main.StorageConfig.Gateway(ctx)
	if err != nil {
		return err
	}

	// objects are presigned lazily, an unreachable storage is only reported
	if err := gateway.Check(ctx); err != nil {
		main.logger.Warn().Err(err).Msg("storage is not reachable")
	}

	main.server = server.New(main.ServerConfig)
	main.Mount(main.server, gateway)
	main.server.Start()

	main.logger.Info().
		Str("bucket", main.StorageConfig.Bucket).
		Str("strategy", main.StorageConfig.Strategy).
		Msg("serving videos")
	return nil
}

func (main *Main) shutdown() {
	err := main.server.Shutdown()
	main.logger.Err(err).Msg("http manager shutdown")

	for name, module := range main.modules {
		module.Shutdown()
		main.logger.Info().Msgf("%s shutdown", name)
	}
}

func (main *Main) Run(cmd *cobra.Command, args []string) {
	main.logger.Info().Msg("starting main server")
	if err := main.start(); err != nil {
		main.logger.Panic().Err(err).Msg("unable to start main server")
	}
	main.logger.Info().Msg("main ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	sig := <-quit

	main.logger.Warn().Msgf("received %s, attempting graceful shutdown", sig)
	main.shutdown()
	main.logger.Info().Msg("shutdown complete")
}
