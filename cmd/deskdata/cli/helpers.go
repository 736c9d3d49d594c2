package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/deskdata/deskdata/internal/catalog"
	"github.com/deskdata/deskdata/internal/config"
	"github.com/deskdata/deskdata/internal/connector"
	"github.com/deskdata/deskdata/internal/connector/dataapi"
	"github.com/deskdata/deskdata/internal/connector/serverless"
	"github.com/deskdata/deskdata/internal/ingest"
	"github.com/deskdata/deskdata/internal/knowledge"
	"github.com/deskdata/deskdata/internal/llm"
	"github.com/deskdata/deskdata/internal/model"
	"github.com/deskdata/deskdata/internal/observability"
	"github.com/deskdata/deskdata/internal/retrieval"
	"github.com/deskdata/deskdata/internal/secrets"
	"github.com/deskdata/deskdata/internal/service"
	"github.com/deskdata/deskdata/internal/tenantdb"
)

const (
	devJWTSecret = "deskdata-dev-secret-change-me"
	devLocalKey  = "deskdata-dev-local-key-change-me"
)

// loadConfig decodes the effective configuration from viper.
func loadConfig() (*config.AppConfig, error) {
	return config.LoadAppConfig(viper.GetViper())
}

// newLogger builds the process logger. --dev forces debug level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	if devMode {
		lvl = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// newConnectorRegistry registers every tenant backend this build supports.
// Factories connect lazily, so building one has no side effects.
func newConnectorRegistry(pool model.PoolConfig) *connector.Registry {
	r := connector.NewRegistry()
	r.RegisterProvider(model.ProviderServerlessSQL, serverless.Factory(pool))
	r.RegisterProvider(model.ProviderRemoteDataAPI, dataapi.Factory(dataapi.NewClients(dataapi.SDKClientFactory())))
	return r
}

// stackOptions selects the optional parts of the stack.
type stackOptions struct {
	// Metrics registers Prometheus collectors on a fresh registry.
	Metrics bool
	// Knowledge connects Qdrant and OpenAI when an API key is configured.
	Knowledge bool
}

// stack holds every component a command may need.
type stack struct {
	cfg          *config.AppConfig
	logger       *slog.Logger
	store        *config.Store
	secrets      secrets.Store
	registry     *connector.Registry
	adapter      *tenantdb.Adapter
	orchestrator *retrieval.Orchestrator
	tenants      *service.TenantService
	auth         *service.AuthService

	// Set only when the knowledge base is enabled.
	kb       *knowledge.QdrantStore
	pipeline *ingest.Pipeline

	// Set only with stackOptions.Metrics.
	promReg *prometheus.Registry
	metrics *observability.Metrics
}

// buildStack opens the config store and wires the query layer, retrieval
// and tenant management on top of it. Call close when done.
func buildStack(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger, opts stackOptions) (*stack, error) {
	s := &stack{cfg: cfg, logger: logger}

	store, err := config.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("init config store: %w", err)
	}
	s.store = store
	logger.Debug("config store initialized", "path", cfg.DataDir)

	if opts.Metrics {
		s.promReg = prometheus.NewRegistry()
		s.metrics = observability.NewMetrics(s.promReg)
		s.metrics.SetBuildInfo(versionString(), observability.ResolveInstanceID(ctx, store))
	}

	sec, err := openSecretStore(ctx, cfg, store, logger)
	if err != nil {
		s.close()
		return nil, err
	}
	s.secrets = sec

	s.registry = newConnectorRegistry(cfg.Database.Pool.Model())

	resolver := tenantdb.NewResolver(sec, logger,
		tenantdb.WithTTL(cfg.Resolver.CacheTTL),
		tenantdb.WithResolverMetrics(s.metrics),
	)
	s.adapter = tenantdb.NewAdapter(resolver, s.registry, tenantdb.Options{
		Fallback: tenantdb.FallbackPolicy{
			OnMissing: cfg.Database.FallbackOnMissing,
			OnInvalid: cfg.Database.FallbackOnInvalid,
		},
		DefaultURL: cfg.Database.URL,
		Logger:     logger,
		Metrics:    s.metrics,
	})
	if cfg.Database.URL == "" {
		logger.Debug("no shared database url, tenant fallback disabled")
	}

	var (
		kb          knowledge.Searcher
		interpreter retrieval.Interpreter
	)
	if opts.Knowledge {
		client, kbStore, err := openKnowledge(ctx, cfg, logger)
		if err != nil {
			s.close()
			return nil, err
		}
		if kbStore != nil {
			s.kb = kbStore
			kb = kbStore
			interpreter = client
			s.pipeline = ingest.NewPipeline(s.adapter, kbStore, logger, s.metrics)
		}
	}

	s.orchestrator = retrieval.New(s.adapter, catalog.NewFinder(s.adapter, nil), kb, interpreter, retrieval.Options{
		DBTimeout:        cfg.Retrieval.DBTimeout,
		KBTimeout:        cfg.Retrieval.KBTimeout,
		InterpretTimeout: cfg.Retrieval.InterpretTimeout,
		KBLimit:          cfg.Retrieval.KBLimit,
		GlobalNamespace:  cfg.Retrieval.GlobalNamespace,
		Logger:           logger,
		Metrics:          s.metrics,
	})
	s.tenants = service.NewTenantService(store, sec, s.adapter, logger)

	jwtSecret := cfg.Auth.JWTSecret
	if jwtSecret == "" {
		logger.Warn("auth.jwt_secret is not set, using the development secret")
		jwtSecret = devJWTSecret
	}
	s.auth = service.NewAuthService(jwtSecret, cfg.Auth.Issuer)

	return s, nil
}

// openSecretStore selects the tenant secret backend.
func openSecretStore(ctx context.Context, cfg *config.AppConfig, store *config.Store, logger *slog.Logger) (secrets.Store, error) {
	switch cfg.Secrets.Backend {
	case config.SecretsBackendAWS:
		aws, err := secrets.NewAWSStore(ctx, cfg.Secrets.Region)
		if err != nil {
			return nil, fmt.Errorf("init aws secrets manager: %w", err)
		}
		logger.Debug("tenant secrets in AWS Secrets Manager", "region", cfg.Secrets.Region)
		return aws, nil
	default:
		key := cfg.Secrets.LocalKey
		if key == "" {
			logger.Warn("secrets.local_key is not set, using the development key")
			key = devLocalKey
		}
		local, err := config.NewLocalSecretStore(store, key)
		if err != nil {
			return nil, fmt.Errorf("init local secret store: %w", err)
		}
		return local, nil
	}
}

// openKnowledge connects the embedding client and the vector store. Both
// are nil when no OpenAI key is configured.
func openKnowledge(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*llm.Client, *knowledge.QdrantStore, error) {
	if cfg.OpenAI.APIKey == "" {
		logger.Info("openai.api_key is not set, knowledge base disabled")
		return nil, nil, nil
	}
	client, err := llm.NewClient(llm.Config{
		APIKey:         cfg.OpenAI.APIKey,
		BaseURL:        cfg.OpenAI.BaseURL,
		ChatModel:      cfg.OpenAI.ChatModel,
		EmbeddingModel: cfg.OpenAI.EmbeddingModel,
		EmbeddingDims:  cfg.OpenAI.EmbeddingDims,
	}, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init openai client: %w", err)
	}
	store, err := knowledge.NewQdrantStore(ctx, knowledge.QdrantConfig{
		Host:       cfg.Qdrant.Host,
		Port:       cfg.Qdrant.Port,
		APIKey:     cfg.Qdrant.APIKey,
		UseTLS:     cfg.Qdrant.UseTLS,
		Collection: cfg.Qdrant.Collection,
		VectorSize: uint64(client.Dimensions()),
	}, client, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("init knowledge base: %w", err)
	}
	logger.Info("knowledge base connected", "host", cfg.Qdrant.Host, "collection", cfg.Qdrant.Collection)
	return client, store, nil
}

// close releases tenant pools, the vector store client and the config store.
func (s *stack) close() {
	if s.registry != nil {
		s.registry.CloseAll()
	}
	if s.kb != nil {
		s.kb.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
