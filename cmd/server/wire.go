//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"

	"jan-server/services/knowledge-api/internal/config"
	"jan-server/services/knowledge-api/internal/domain/chathistory"
	"jan-server/services/knowledge-api/internal/domain/knowledgebase"
	"jan-server/services/knowledge-api/internal/domain/project"
	"jan-server/services/knowledge-api/internal/domain/projectfile"
	"jan-server/services/knowledge-api/internal/domain/tenant"
	"jan-server/services/knowledge-api/internal/infrastructure/auth"
	"jan-server/services/knowledge-api/internal/infrastructure/bedrock"
	"jan-server/services/knowledge-api/internal/infrastructure/logger"
	"jan-server/services/knowledge-api/internal/infrastructure/repository/chatrepo"
	"jan-server/services/knowledge-api/internal/infrastructure/repository/kbfilerepo"
	"jan-server/services/knowledge-api/internal/infrastructure/repository/projectfilerepo"
	"jan-server/services/knowledge-api/internal/infrastructure/repository/projectrepo"
	"jan-server/services/knowledge-api/internal/infrastructure/storage"
	"jan-server/services/knowledge-api/internal/interfaces/httpserver"
	"jan-server/services/knowledge-api/internal/interfaces/httpserver/handlers"
)

var repositorySet = wire.NewSet(
	projectrepo.NewRepository,
	wire.Bind(new(project.Repository), new(*projectrepo.Repository)),
	projectfilerepo.NewRepository,
	wire.Bind(new(projectfile.Repository), new(*projectfilerepo.Repository)),
	wire.Bind(new(knowledgebase.ProjectFiles), new(*projectfilerepo.Repository)),
	kbfilerepo.NewRepository,
	wire.Bind(new(knowledgebase.FileRepository), new(*kbfilerepo.Repository)),
	chatrepo.NewRepository,
	wire.Bind(new(chathistory.Repository), new(*chatrepo.Repository)),
)

var knowledgeBaseSet = wire.NewSet(
	provideAWSConfig,
	bedrock.NewDocumentIndex,
	wire.Bind(new(knowledgebase.DocumentIndex), new(*bedrock.DocumentIndex)),
	bedrock.NewGenerator,
	wire.Bind(new(knowledgebase.Generator), new(*bedrock.Generator)),
	knowledgebase.NewExpiryReaper,
	provideChangeFeed,
	provideChangePublisher,
	knowledgebase.NewIngestionCoordinator,
	wire.Bind(new(projectfile.IndexWithdrawer), new(*knowledgebase.IngestionCoordinator)),
	knowledgebase.NewScoper,
	knowledgebase.NewQueryExecutor,
	knowledgebase.NewExpirySweeper,
	provideScheduler,
)

var domainSet = wire.NewSet(
	tenant.NewDirectoryFromConfig,
	storage.NewS3Storage,
	wire.Bind(new(projectfile.Storage), new(*storage.S3Storage)),
	projectfile.NewService,
	wire.Bind(new(project.FilePurger), new(*projectfile.Service)),
	project.NewService,
	chathistory.NewLedger,
	wire.Bind(new(knowledgebase.History), new(*chathistory.Ledger)),
)

var handlerSet = wire.NewSet(
	wire.Bind(new(handlers.ProjectService), new(*project.Service)),
	wire.Bind(new(handlers.FileService), new(*projectfile.Service)),
	wire.Bind(new(handlers.Ingestor), new(*knowledgebase.IngestionCoordinator)),
	wire.Bind(new(handlers.Querier), new(*knowledgebase.QueryExecutor)),
	wire.Bind(new(handlers.HistoryStore), new(*chathistory.Ledger)),
	handlers.NewProvider,
)

// BuildApplication assembles the knowledge API with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		auth.NewValidator,
		newDatabaseConfig,
		newGormDB,
		repositorySet,
		knowledgeBaseSet,
		domainSet,
		handlerSet,
		httpserver.NewReadiness,
		wire.Bind(new(httpserver.HealthChecker), new(*storage.S3Storage)),
		httpserver.New,
		NewApplication,
	)
	return nil, nil
}
