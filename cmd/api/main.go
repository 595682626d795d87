package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"crafture/internal/adapter/repo"
	"crafture/internal/domain"
	"crafture/internal/http/handlers"
	httpapi "crafture/internal/http/httpapi"
	"crafture/internal/imagegen"
	"crafture/internal/infra"
	"crafture/internal/metrics"
	"crafture/internal/providers/genai"
	"crafture/internal/storage"
)

const historyRetryInterval = 15 * time.Second

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	ctx := context.Background()

	// History store. The API still serves generation without it, and a
	// database that is down at startup is dialed again on later requests.
	var history domain.HistoryRepository
	if cfg.DatabaseURL == "" {
		logger.Warn().Msg("DATABASE_URL is not set, history disabled")
	} else {
		lazy := repo.NewLazyHistory(repo.PostgresHistoryOpener(cfg, logger), historyRetryInterval, &logger)
		defer lazy.Close()
		if _, err := lazy.Connect(ctx); err != nil {
			logger.Warn().Err(err).Msg("database unavailable at startup, will retry on demand")
		}
		history = lazy
	}

	generator, err := genai.NewClient(ctx, genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Timeout: cfg.GenerationTimeout,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create generation client")
	}
	if cfg.GeminiAPIKey == "" {
		logger.Warn().Msg("GEMINI_API_KEY is not set, image generation will fail")
	}

	normalizer := imagegen.NewNormalizer(imagegen.NormalizerOptions{
		Timeout:  cfg.ImageFetchTimeout,
		MaxBytes: cfg.ImageMaxBytes,
		Logger:   &logger,
	})

	sessions := storage.NewManager(func(ctx context.Context) (*storage.Session, error) {
		ctx, cancel := context.WithTimeout(ctx, cfg.ChainTimeout)
		defer cancel()
		return storage.Dial(ctx, storage.DialConfig{
			PrivateKey:         cfg.FilecoinPrivateKey,
			RPCURL:             cfg.FilecoinRPCURL,
			TokenAddress:       cfg.USDFCAddress,
			PaymentsAddress:    cfg.PaymentsAddress,
			WarmStorageAddress: cfg.WarmStorageAddress,
		})
	})
	defer sessions.Close()
	payments := storage.NewPaymentSetup(sessions, cfg.ChainTimeout, &logger)

	var store handlers.ArtifactStore
	switch {
	case !cfg.StorageEnabled():
		logger.Warn().Msg("FILECOIN_PRIVATE_KEY is not set, storage uploads disabled")
	case !cfg.UploadsEnabled():
		logger.Warn().Int("provider_id", cfg.StorageProviderID).
			Msg("no endpoint for storage provider (set STORAGE_PROVIDERS or STORAGE_PROVIDER_URL), storage uploads disabled")
	default:
		provider := storage.NewProviderClient(cfg.ProviderEndpoint(), &http.Client{Timeout: cfg.StorageTimeout})
		store = storage.NewClient(sessions, provider, storage.ClientOptions{
			ProviderID:    cfg.StorageProviderID,
			WithCDN:       cfg.StorageWithCDN,
			GatewayDomain: cfg.StorageGatewayDomain,
			Timeout:       cfg.StorageTimeout,
			Logger:        &logger,
		})
		logger.Info().Int("provider_id", cfg.StorageProviderID).Str("endpoint", cfg.ProviderEndpoint()).Msg("storage uploads enabled")
	}

	m := metrics.New("crafture-api")

	app := handlers.NewApp(handlers.Deps{
		Logger:        logger,
		Development:   cfg.Development(),
		Fetcher:       normalizer,
		Generator:     generator,
		Storage:       store,
		Sessions:      sessions,
		Payments:      payments,
		History:       history,
		Metrics:       m,
		GatewayDomain: cfg.StorageGatewayDomain,
		FetchWorkers:  cfg.ImageFetchWorkers,
		ChainTimeout:  cfg.ChainTimeout,
	})

	router := httpapi.NewRouter(app, httpapi.Options{
		AllowedOrigins:  cfg.CORSAllowedOrigins,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Logger:          logger,
		Metrics:         m,
	})

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Msg("API listening")
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Warm the storage session and fund the payments account in the
	// background. Failures are logged; POST /api/setup-payment retries.
	if cfg.StorageEnabled() {
		go func() {
			if _, err := sessions.Session(ctx); err != nil {
				logger.Error().Err(err).Msg("storage session init failed")
				return
			}
			if err := payments.EnsureFunded(ctx); err != nil {
				logger.Error().Err(err).Msg("payment setup at startup failed")
				return
			}
			logger.Info().Msg("storage ready")
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
