package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/google/generative-ai-go/genai"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/datanooblol/leonidas/internal/config"
	"github.com/datanooblol/leonidas/internal/core"
	"github.com/datanooblol/leonidas/internal/core/catalog"
	db "github.com/datanooblol/leonidas/internal/core/database"
	"github.com/datanooblol/leonidas/internal/core/llm"
	objectclient "github.com/datanooblol/leonidas/internal/core/object-client"
	"github.com/datanooblol/leonidas/internal/core/profiling_engine"
	"github.com/datanooblol/leonidas/internal/core/prompts"
	"github.com/datanooblol/leonidas/internal/services"
)

type App struct {
	Config       *config.Config
	Log          *logrus.Logger
	DBClient     core.DbClient
	ObjectClient core.ObjectClient
	Models       *llm.Registry
	Profiler     *profiling_engine.FileProfiler
	Server       *Server

	gemini *genai.Client
}

func NewApp(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(appCtx, cfg, log)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, Log: log, DBClient: dbClient}

	objClient, err := objectclient.NewS3Client(appCtx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.ObjectClient = objClient

	registry, gemini, err := BuildRegistry(appCtx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Models, a.gemini = registry, gemini
	if !registry.Has(cfg.DefaultModel) {
		a.Close()
		return nil, fmt.Errorf("DEFAULT_MODEL %q is not a registered model", cfg.DefaultModel)
	}

	creds := objectclient.CatalogCredentials(cfg)
	a.Profiler = profiling_engine.NewFileProfiler(
		dbClient,
		func(ctx context.Context) (profiling_engine.Catalog, error) {
			cat, err := OpenRemoteCatalog(ctx, creds, log)
			if err != nil {
				return nil, err
			}
			return cat, nil
		},
		services.RemoteSource,
		&profiling_engine.ProfileConfig{Timeout: 5 * time.Minute, Summaries: true},
		log,
	)

	chat := services.NewChatService(
		dbClient,
		registry,
		prompts.Default(),
		func(ctx context.Context) (services.TurnCatalog, error) {
			cat, err := OpenRemoteCatalog(ctx, creds, log)
			if err != nil {
				return nil, err
			}
			return cat, nil
		},
		services.RemoteSource,
		services.ChatConfig{
			DefaultModel:  cfg.DefaultModel,
			HistoryLimit:  cfg.HistoryLimit,
			LLMTimeout:    cfg.LLMTimeout,
			QueryTimeout:  cfg.QueryTimeout,
			ChartTimeout:  cfg.ChartTimeout,
			ChartsEnabled: cfg.ChartsEnabled,
		},
		log,
	)

	a.Server = NewServer(cfg, log, Services{
		Users:    services.NewUserService(dbClient),
		Projects: services.NewProjectService(dbClient, objClient, log),
		Sessions: services.NewSessionService(dbClient),
		Files:    services.NewFileService(dbClient, objClient, a.Profiler, cfg.FileBucket, log),
		Chat:     chat,
	})
	return a, nil
}

// BuildRegistry registers the built-in and configured models against the
// provider backends available in cfg.
func BuildRegistry(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*llm.Registry, *genai.Client, error) {
	specs, err := config.LoadModelCatalog(cfg.ModelsFile)
	if err != nil {
		return nil, nil, err
	}

	backends := llm.Backends{
		OllamaURL:  cfg.OllamaURL,
		HTTPClient: &http.Client{},
		Logger:     log,
	}

	awsCfg, err := objectclient.LoadAWSConfig(ctx, cfg.BedrockRegion, cfg)
	if err != nil {
		log.WithError(err).Warn("llm: bedrock unavailable")
	} else {
		backends.Bedrock = bedrockruntime.NewFromConfig(awsCfg)
	}

	if cfg.GeminiAPIKey != "" {
		backends.Gemini, err = llm.NewGeminiAPI(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, nil, fmt.Errorf("gemini: %w", err)
		}
	}

	registry := llm.NewRegistry()
	if err := llm.RegisterModels(registry, specs, backends); err != nil {
		if backends.Gemini != nil {
			_ = backends.Gemini.Close()
		}
		return nil, nil, err
	}
	log.WithField("models", len(registry.Keys())).Info("llm: registry ready")
	return registry, backends.Gemini, nil
}

// OpenRemoteCatalog opens a fresh in-memory catalog that can read the file bucket.
func OpenRemoteCatalog(ctx context.Context, creds *catalog.RemoteCredentials, log *logrus.Logger) (*catalog.Catalog, error) {
	cat, err := catalog.New(ctx, log)
	if err != nil {
		return nil, err
	}
	if err := cat.ConfigureRemoteAccess(ctx, creds); err != nil {
		_ = cat.Close()
		return nil, err
	}
	return cat, nil
}

// Run serves HTTP and runs the profiling workers until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	a.Profiler.Start(gctx, a.Config.ProfileWorkers)
	g.Go(a.Profiler.Wait)

	g.Go(func() error {
		return a.Server.Start()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return a.Server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (a *App) Close() {
	if a.gemini != nil {
		_ = a.gemini.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
