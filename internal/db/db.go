package db

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Connect opens the Postgres pool. SQL statements are logged through lg at
// debug level; slow queries surface as warnings.
func Connect(dsn string, lg zerolog.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is empty")
	}

	level := logger.Warn
	if lg.GetLevel() <= zerolog.DebugLevel {
		level = logger.Info
	}
	gl := logger.New(
		gormWriter{lg: lg.With().Str("component", "gorm").Logger()},
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	d, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gl})
	if err != nil {
		return nil, err
	}

	sqlDB, err := d.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(20)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	lg.Info().Msg("connected to database")
	return d, nil
}

// gormWriter forwards gorm's formatted lines to zerolog. gorm already filters
// by its own level, so everything that reaches here is emitted at info.
type gormWriter struct {
	lg zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.lg.Info().Msgf(format, args...)
}
