package db

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"parking-access-backend/config"
	"parking-access-backend/internal/logger"
	"parking-access-backend/internal/model"
)

// Init opens the configured database, runs migrations and applies the
// driver-specific DDL.
func Init(cfg *config.DatabaseConfig, logCfg config.LogConfig, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres", "":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	level := gormlogger.Warn
	if logCfg.Development {
		level = gormlogger.Info
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:  logger.NewGormLogger(level, time.Duration(logCfg.SlowQueryMillis)*time.Millisecond),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// One connection keeps writers serialized and an in-memory
		// database alive for the life of the process.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	}

	log.Info("running database migrations", zap.String("driver", cfg.Driver))
	if err := Migrate(db); err != nil {
		return nil, err
	}

	if db.Dialector.Name() == "postgres" {
		if err := applyPostgresDDL(db); err != nil {
			log.Warn("failed to apply some PostgreSQL DDL, continuing without them", zap.Error(err))
		}
	}

	log.Info("database initialization complete")
	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.AccessEvent{},
		&model.Vehicle{},
		&model.PushSubscription{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

func applyPostgresDDL(db *gorm.DB) error {
	ddls := []string{
		// Newest-first lookups per vehicle.
		"CREATE INDEX IF NOT EXISTS idx_access_events_vehicle_recent ON access_events (vehiculo_id, fecha_hora DESC, id DESC);",

		"DO $$ BEGIN " +
			"IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'access_events_movimiento_check') THEN " +
			"ALTER TABLE access_events ADD CONSTRAINT access_events_movimiento_check CHECK (movimiento IN ('Entrada', 'Salida')); " +
			"END IF; END $$;",

		"DO $$ BEGIN " +
			"IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'access_events_tiempo_estadia_check') THEN " +
			"ALTER TABLE access_events ADD CONSTRAINT access_events_tiempo_estadia_check CHECK (tiempo_estadia IS NULL OR tiempo_estadia >= 0); " +
			"END IF; END $$;",
	}

	for _, ddl := range ddls {
		if err := db.Exec(ddl).Error; err != nil {
			return fmt.Errorf("DDL failed on %q: %w", ddl, err)
		}
	}
	return nil
}
