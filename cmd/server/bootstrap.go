package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/aiva-app/notify/internal/api"
	"github.com/aiva-app/notify/internal/app"
	"github.com/aiva-app/notify/internal/app/maintenance"
	iauth "github.com/aiva-app/notify/internal/auth"
	"github.com/aiva-app/notify/internal/database"
	"github.com/aiva-app/notify/internal/events"
	"github.com/aiva-app/notify/internal/push"
	"github.com/aiva-app/notify/internal/services"
	"github.com/aiva-app/notify/pkg/logger"
)

// runtimeStack bundles the long-lived components behind the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Cleaner  *maintenance.Cleaner
	Consumer *events.Consumer
	Router   *gin.Engine
}

// bootstrapRuntime initialises the database, domain services, background jobs
// and the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret: cfg.Auth.JWT.Secret,
		Issuer: cfg.Auth.JWT.Issuer,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	deviceSvc, err := services.NewDeviceService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise device service: %w", err)
	}
	tokenSvc, err := services.NewTokenService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise token service: %w", err)
	}
	permissionSvc, err := services.NewPermissionService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise permission service: %w", err)
	}

	gateway, err := selectGateway(cfg, log)
	if err != nil {
		return nil, err
	}

	fanoutSvc, err := services.NewFanoutService(permissionSvc, tokenSvc, gateway)
	if err != nil {
		return nil, fmt.Errorf("initialise fanout service: %w", err)
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner, err = maintenance.NewCleaner(stack.DB, tokenSvc,
			maintenance.WithTokenRetentionDays(cfg.Maintenance.TokenRetentionDays),
			maintenance.WithConsentRetentionDays(cfg.Maintenance.ConsentRetentionDays),
			maintenance.WithTokenSchedule(cfg.Maintenance.TokenSchedule),
			maintenance.WithConsentSchedule(cfg.Maintenance.ConsentSchedule),
		)
		if err != nil {
			return nil, fmt.Errorf("initialise maintenance jobs: %w", err)
		}
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	if cfg.Kafka.Enabled {
		stack.Consumer, err = events.NewConsumer(events.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, fanoutSvc)
		if err != nil {
			return nil, fmt.Errorf("initialise kafka consumer: %w", err)
		}
		stack.Consumer.Start(ctx)
	}

	stack.Router, err = api.NewRouter(stack.DB, jwtSvc, cfg, api.Services{
		Devices:     deviceSvc,
		Tokens:      tokenSvc,
		Permissions: permissionSvc,
		Fanout:      fanoutSvc,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Consumer != nil {
		if err := s.Consumer.Close(); err != nil {
			log.Warn("kafka consumer shutdown failed", zap.Error(err))
		}
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	closeDatabase(s.DB, log)
}

func selectGateway(cfg *app.Config, log *zap.Logger) (push.Gateway, error) {
	if !cfg.Push.FCM.Enabled {
		log.Info("push gateway disabled; deliveries will be logged only")
		return push.NewLogGateway(), nil
	}

	gateway, err := push.NewFCMGateway(cfg.Push.FCM.ServerKey)
	if err != nil {
		return nil, fmt.Errorf("initialise fcm gateway: %w", err)
	}
	return gateway, nil
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
