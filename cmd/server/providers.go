package main

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"jan-server/services/knowledge-api/internal/config"
	"jan-server/services/knowledge-api/internal/domain/knowledgebase"
	"jan-server/services/knowledge-api/internal/infrastructure/bedrock"
	"jan-server/services/knowledge-api/internal/infrastructure/changefeed"
	"jan-server/services/knowledge-api/internal/infrastructure/database"
)

// ChangeFeed bundles how change records travel from the sweeper and the ingestion
// coordinator to the expiry reaper.
type ChangeFeed struct {
	Publisher knowledgebase.ChangePublisher
	Locker    changefeed.Locker
	// Stream is nil when records are processed in-process.
	Stream *changefeed.RedisStream
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	dbCfg := database.ConfigFrom(cfg)
	dbCfg.LogLevel = gormlogger.Warn
	return dbCfg
}

func newGormDB(ctx context.Context, cfg database.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(ctx, db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func provideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return bedrock.LoadAWSConfig(ctx, cfg)
}

// provideChangeFeed routes change records through a Redis stream when Redis is
// configured, otherwise straight into the reaper.
func provideChangeFeed(ctx context.Context, cfg *config.Config, reaper *knowledgebase.ExpiryReaper, log zerolog.Logger) (*ChangeFeed, error) {
	if !cfg.HasRedis() {
		log.Info().Msg("no redis configured; change records are reaped in-process")
		return &ChangeFeed{
			Publisher: changefeed.NewDirect(reaper, log),
			Locker:    changefeed.LocalLocker{},
		}, nil
	}

	client, err := changefeed.NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	stream := changefeed.NewRedisStream(client, cfg, log)
	return &ChangeFeed{
		Publisher: stream,
		Locker:    changefeed.NewRedisLocker(client),
		Stream:    stream,
	}, nil
}

func provideChangePublisher(feed *ChangeFeed) knowledgebase.ChangePublisher {
	return feed.Publisher
}

func provideScheduler(cfg *config.Config, sweeper *knowledgebase.ExpirySweeper, feed *ChangeFeed, log zerolog.Logger) *changefeed.Scheduler {
	return changefeed.NewScheduler(cfg, sweeper, feed.Locker, log)
}
