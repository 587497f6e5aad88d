package di

import (
	"gorm.io/gorm"

	"ai-canvas-demo/backend/ai"
	"ai-canvas-demo/backend/internal/service"
	"ai-canvas-demo/backend/pkg/cache"
	"ai-canvas-demo/backend/pkg/config"
	"ai-canvas-demo/backend/pkg/jwt"
	"ai-canvas-demo/backend/pkg/logger"
)

// Container holds all the dependencies for the application
type Container struct {
	DB                *gorm.DB
	Config            *config.Config
	Logger            *logger.Logger
	JWTService        *jwt.Service
	AIClient          *ai.Client
	SnapshotCache     *cache.SnapshotCache
	SessionService    *service.SessionService
	CheckpointService *service.CheckpointService
	RelayService      *service.RelayService
}

// New wires the application's dependencies. The snapshot cache degrades to
// a no-op when redis is not configured, so a missing REDIS_URL is not an
// error.
func New(db *gorm.DB, cfg *config.Config, log *logger.Logger) *Container {
	if log == nil {
		logCfg := logger.DefaultConfig()
		logCfg.Level = cfg.Logging.Level
		logCfg.JSON = cfg.Logging.Format == "json"
		log = logger.New(logCfg)
	}

	jwtService := jwt.NewService(cfg.JWT.Secret, cfg.JWT.Expiry)

	aiClient := ai.NewClient(ai.Config{
		BaseURL: cfg.Upstream.BaseURL,
		APIKey:  cfg.Upstream.APIKey,
		Timeout: cfg.Upstream.Timeout,
	}, log)

	var snapshots *cache.SnapshotCache
	if cfg.Operations.CacheEnabled {
		snapshots = cache.NewSnapshotCache(cache.NewRedisClient(), cfg.Operations.StatusCacheTTL)
	}

	sessionService := service.NewSessionService(db, log)
	checkpointService := service.NewCheckpointService(db, snapshots, log)
	checkpointService.SetStalenessWindow(cfg.Operations.StalenessWindow)
	relayService := service.NewRelayService(aiClient, sessionService, log)

	return &Container{
		DB:                db,
		Config:            cfg,
		Logger:            log,
		JWTService:        jwtService,
		AIClient:          aiClient,
		SnapshotCache:     snapshots,
		SessionService:    sessionService,
		CheckpointService: checkpointService,
		RelayService:      relayService,
	}
}
