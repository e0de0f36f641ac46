package telemetry

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DBTracingConfig holds configuration for database tracing.
type DBTracingConfig struct {
	Enabled         bool
	DBSystem        string
	LogFullSQL      bool // include bound variables, dev only
	SlowQueryThresh time.Duration
}

// DefaultDBTracingConfig returns the secure defaults
func DefaultDBTracingConfig() DBTracingConfig {
	return DBTracingConfig{
		DBSystem:        "sqlite",
		SlowQueryThresh: 200 * time.Millisecond,
	}
}

type queryStartKey struct{}

// RegisterDBTracing installs otelgorm and a callback pair that flags slow or
// failed statements on the active span.
func RegisterDBTracing(db *gorm.DB, cfg DBTracingConfig, logger *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBSystem)}
	if !cfg.LogFullSQL {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	before := func(tx *gorm.DB) {
		if tx.Statement.Context != nil {
			tx.Statement.Context = context.WithValue(tx.Statement.Context, queryStartKey{}, time.Now())
		}
	}
	after := func(tx *gorm.DB) { annotate(tx, cfg.SlowQueryThresh) }

	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("trace:before_create", before); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("trace:after_create", after); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("trace:before_query", before); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("trace:after_query", after); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("trace:before_update", before); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("trace:after_update", after); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("trace:before_delete", before); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("trace:after_delete", after); err != nil {
		return err
	}

	if logger != nil {
		logger.Info("Database tracing enabled",
			zap.String("db_system", cfg.DBSystem),
			zap.Duration("slow_query_threshold", cfg.SlowQueryThresh),
		)
	}
	return nil
}

func annotate(tx *gorm.DB, threshold time.Duration) {
	ctx := tx.Statement.Context
	if ctx == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	if tx.Statement.Table != "" {
		span.SetAttributes(attribute.String("db.sql.table", tx.Statement.Table))
	}
	span.SetAttributes(attribute.Int64("db.rows_affected", tx.Statement.RowsAffected))

	if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
		span.SetStatus(codes.Error, tx.Error.Error())
		span.RecordError(tx.Error)
	}

	if start, ok := ctx.Value(queryStartKey{}).(time.Time); ok {
		if elapsed := time.Since(start); elapsed > threshold {
			span.SetAttributes(
				attribute.Bool("db.slow_query", true),
				attribute.Int64("db.query_duration_ms", elapsed.Milliseconds()),
			)
		}
	}
}
