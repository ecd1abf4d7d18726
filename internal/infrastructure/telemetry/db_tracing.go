package telemetry

import (
	"errors"
	"time"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// StoreTracing configures statement spans of the event store.
type StoreTracing struct {
	Enabled bool
	// WithVariables records bound values on spans. Values include raw
	// payloads, so production keeps it off.
	WithVariables bool
	// SlowThreshold flags longer statements on their span. Zero disables.
	SlowThreshold time.Duration
	DBName        string
}

const startedAtKey = "telemetry:started_at"

// callbackRegistrar is satisfied by GORM's processors and their
// Before/After positions.
type callbackRegistrar interface {
	Register(name string, fn func(*gorm.DB)) error
}

// InstrumentStore installs otelgorm on db plus callbacks that annotate each
// statement span with its table, affected rows and slowness. Slow statements
// are logged by the store logger, not here.
func InstrumentStore(db *gorm.DB, cfg StoreTracing, log *zap.Logger) error {
	if !cfg.Enabled {
		return nil
	}
	if log == nil {
		log = zap.NewNop()
	}

	opts := []otelgorm.Option{otelgorm.WithDBName(cfg.DBName)}
	if !cfg.WithVariables {
		opts = append(opts, otelgorm.WithoutQueryVariables())
	}
	if err := db.Use(otelgorm.NewPlugin(opts...)); err != nil {
		return err
	}

	a := statementAnnotator{slow: cfg.SlowThreshold}
	cb := db.Callback()
	hooks := []struct {
		op            string
		before, after callbackRegistrar
	}{
		{"create", cb.Create().Before("gorm:create"), cb.Create().After("gorm:create")},
		{"query", cb.Query().Before("gorm:query"), cb.Query().After("gorm:query")},
		{"update", cb.Update().Before("gorm:update"), cb.Update().After("gorm:update")},
		{"delete", cb.Delete().Before("gorm:delete"), cb.Delete().After("gorm:delete")},
		{"row", cb.Row().Before("gorm:row"), cb.Row().After("gorm:row")},
		{"raw", cb.Raw().Before("gorm:raw"), cb.Raw().After("gorm:raw")},
	}
	for _, h := range hooks {
		if err := h.before.Register("telemetry:start_"+h.op, markStatementStart); err != nil {
			return err
		}
		if err := h.after.Register("telemetry:annotate_"+h.op, a.annotate); err != nil {
			return err
		}
	}

	log.Info("Store tracing enabled",
		zap.String("db_name", cfg.DBName),
		zap.Bool("with_variables", cfg.WithVariables),
		zap.Duration("slow_threshold", cfg.SlowThreshold),
	)
	return nil
}

func markStatementStart(db *gorm.DB) {
	db.InstanceSet(startedAtKey, time.Now())
}

type statementAnnotator struct {
	slow time.Duration
}

func (a statementAnnotator) annotate(db *gorm.DB) {
	if db.Statement.Context == nil {
		return
	}
	span := trace.SpanFromContext(db.Statement.Context)
	if !span.IsRecording() {
		return
	}

	attrs := []attribute.KeyValue{attribute.Int64("db.rows_affected", db.Statement.RowsAffected)}
	if db.Statement.Table != "" {
		attrs = append(attrs, attribute.String("db.sql.table", db.Statement.Table))
	}
	if v, ok := db.InstanceGet(startedAtKey); ok {
		if started, ok := v.(time.Time); ok && a.slow > 0 {
			if elapsed := time.Since(started); elapsed > a.slow {
				attrs = append(attrs,
					attribute.Bool("db.slow_statement", true),
					attribute.Int64("db.duration_ms", elapsed.Milliseconds()),
				)
				span.AddEvent("slow statement", trace.WithAttributes(
					attribute.Int64("threshold_ms", a.slow.Milliseconds()),
				))
			}
		}
	}
	span.SetAttributes(attrs...)

	// A lookup of an unknown event is an answer, not a failure.
	if err := db.Error; err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
