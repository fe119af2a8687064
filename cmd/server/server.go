package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"jan-server/services/knowledge-api/internal/config"
	"jan-server/services/knowledge-api/internal/domain/chathistory"
	"jan-server/services/knowledge-api/internal/domain/knowledgebase"
	"jan-server/services/knowledge-api/internal/domain/project"
	"jan-server/services/knowledge-api/internal/domain/projectfile"
	"jan-server/services/knowledge-api/internal/domain/tenant"
	"jan-server/services/knowledge-api/internal/infrastructure/auth"
	"jan-server/services/knowledge-api/internal/infrastructure/bedrock"
	"jan-server/services/knowledge-api/internal/infrastructure/changefeed"
	"jan-server/services/knowledge-api/internal/infrastructure/logger"
	"jan-server/services/knowledge-api/internal/infrastructure/observability"
	"jan-server/services/knowledge-api/internal/infrastructure/repository/chatrepo"
	"jan-server/services/knowledge-api/internal/infrastructure/repository/kbfilerepo"
	"jan-server/services/knowledge-api/internal/infrastructure/repository/projectfilerepo"
	"jan-server/services/knowledge-api/internal/infrastructure/repository/projectrepo"
	"jan-server/services/knowledge-api/internal/infrastructure/storage"
	"jan-server/services/knowledge-api/internal/interfaces/httpserver"
	"jan-server/services/knowledge-api/internal/interfaces/httpserver/handlers"
)

// Application runs the HTTP server next to the expiry sweep and, when Redis is
// configured, the change stream consumer.
type Application struct {
	httpServer *httpserver.HttpServer
	scheduler  *changefeed.Scheduler
	feed       *ChangeFeed
	reaper     *knowledgebase.ExpiryReaper
	log        zerolog.Logger
}

func NewApplication(httpServer *httpserver.HttpServer, scheduler *changefeed.Scheduler, feed *ChangeFeed, reaper *knowledgebase.ExpiryReaper, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		scheduler:  scheduler,
		feed:       feed,
		reaper:     reaper,
		log:        log,
	}
}

func (a *Application) Start(ctx context.Context) error {
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error { return a.httpServer.Run(ctx) })
	group.Go(func() error { return a.scheduler.Run(ctx) })
	if a.feed.Stream != nil {
		group.Go(func() error { return a.feed.Stream.Consume(ctx, a.reaper) })
	}
	return group.Wait()
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	db, err := newGormDB(ctx, newDatabaseConfig(cfg), log)
	if err != nil {
		log.Fatal().Err(err).Msg("connect database")
	}

	storageClient, err := storage.NewS3Storage(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize storage")
	}

	awsCfg, err := provideAWSConfig(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("load aws config")
	}
	index := bedrock.NewDocumentIndex(awsCfg, log)
	generator := bedrock.NewGenerator(awsCfg, log)

	tenants := tenant.NewDirectoryFromConfig(cfg)
	if err := tenants.Err(); err != nil {
		log.Error().Err(err).Msg("tenant configuration is invalid; tenant lookups will fail")
	}

	projectRepository := projectrepo.NewRepository(db)
	fileRepository := projectfilerepo.NewRepository(cfg, db)
	kbFileRepository := kbfilerepo.NewRepository(db)
	chatRepository := chatrepo.NewRepository(cfg, db)

	reaper := knowledgebase.NewExpiryReaper(cfg, index, log)
	feed, err := provideChangeFeed(ctx, cfg, reaper, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize change feed")
	}

	coordinator := knowledgebase.NewIngestionCoordinator(cfg, fileRepository, kbFileRepository, index, tenants, feed.Publisher, log)
	fileService := projectfile.NewService(cfg, fileRepository, storageClient, tenants, coordinator, log)
	projectService := project.NewService(projectRepository, fileService, log)
	ledger := chathistory.NewLedger(cfg, chatRepository, log)
	executor := knowledgebase.NewQueryExecutor(cfg, knowledgebase.NewScoper(fileRepository, log), generator, ledger, log)
	sweeper := knowledgebase.NewExpirySweeper(cfg, kbFileRepository, feed.Publisher, log)

	validator, err := auth.NewValidator(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize auth")
	}

	provider := handlers.NewProvider(projectService, fileService, coordinator, executor, ledger, log)
	httpServer := httpserver.New(cfg, log, httpserver.NewReadiness(db, storageClient), provider, validator)
	app := NewApplication(httpServer, provideScheduler(cfg, sweeper, feed, log), feed, reaper, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
