package app

import (
	"fmt"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/leadforge/truthtable-backend/internal/clients/apollo"
	"github.com/leadforge/truthtable-backend/internal/handlers"
	"github.com/leadforge/truthtable-backend/internal/ingest"
	"github.com/leadforge/truthtable-backend/internal/normalize"
	"github.com/leadforge/truthtable-backend/internal/pkg/logger"
	"github.com/leadforge/truthtable-backend/internal/server"
	"github.com/leadforge/truthtable-backend/internal/store"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Store    store.Store
	Truth    *store.Truth
	Pipeline *ingest.Pipeline
	Router   *gin.Engine
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	var truthStore store.Store
	if cfg.DatabaseURL != "" {
		truthStore, err = store.NewPostgresStore(cfg.DatabaseURL, log)
	} else {
		truthStore, err = store.NewSQLiteStore(cfg.SQLitePath, log)
	}
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init store: %w", err)
	}
	truth := store.NewTruth(truthStore, log)

	aliases, err := normalize.LoadAliasFile(cfg.AliasFile)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load column aliases: %w", err)
	}
	normalizer := normalize.New(log, aliases)

	// No API key means ingest-only mode: uploads still normalize and
	// persist, enrichment is skipped.
	var apolloClient apollo.Client
	if cfg.ApolloAPIKey != "" {
		apolloClient, err = apollo.NewClientWithOptions(log, apollo.Options{
			BaseURL:        cfg.ApolloBaseURL,
			APIKey:         cfg.ApolloAPIKey,
			BatchSize:      cfg.ApolloBatchSize,
			Timeout:        cfg.ApolloTimeout,
			MaxRetries:     cfg.ApolloMaxRetries,
			InitialBackoff: cfg.ApolloInitialBackoff,
			MaxBackoff:     cfg.ApolloMaxBackoff,
		})
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("init apollo client: %w", err)
		}
	} else {
		log.Warn("APOLLO_API_KEY not set; enrichment disabled")
	}

	pipeline := ingest.NewPipeline(log, normalizer, truth, apolloClient, cfg.MaxRows)

	enrichHandler := handlers.NewEnrichHandler(log, pipeline, cfg.MaxFileSizeMB, cfg.EnrichPeople, cfg.EnrichCompanies)
	recordsHandler := handlers.NewRecordsHandler(log, truthStore)
	statsHandler := handlers.NewStatsHandler(log, truthStore)

	router := server.NewRouter(server.RouterConfig{
		CORSOrigins:    cfg.CORSOrigins,
		EnrichHandler:  enrichHandler,
		RecordsHandler: recordsHandler,
		StatsHandler:   statsHandler,
	})

	return &App{
		Log:      log,
		Cfg:      cfg,
		Store:    truthStore,
		Truth:    truth,
		Pipeline: pipeline,
		Router:   router,
	}, nil
}

func (a *App) Run() error {
	if a == nil || a.Router == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("Server listening", "port", a.Cfg.Port)
	return a.Router.Run(":" + a.Cfg.Port)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Log.Warn("Store close failed", "error", err.Error())
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
