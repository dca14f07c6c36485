package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/stemsi/exstem-proctor/internal/telemetry"
)

// QueryTracer opens a span per statement and logs slow or failed ones.
type QueryTracer struct {
	tracer trace.Tracer
	log    zerolog.Logger
	slow   time.Duration
}

var _ pgx.QueryTracer = (*QueryTracer)(nil)

type queryStartKey struct{}

type queryStart struct {
	sql   string
	start time.Time
}

// NewQueryTracer builds a tracer; slow <= 0 disables slow-query logging.
func NewQueryTracer(log zerolog.Logger, slow time.Duration) *QueryTracer {
	return &QueryTracer{
		tracer: telemetry.Tracer("postgres"),
		log:    log.With().Str("component", "postgres").Logger(),
		slow:   slow,
	}
}

// TraceQueryStart implements pgx.QueryTracer.
func (t *QueryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	ctx, _ = t.tracer.Start(ctx, "postgres "+statementVerb(data.SQL),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("db.statement", data.SQL),
		),
	)
	return context.WithValue(ctx, queryStartKey{}, queryStart{sql: data.SQL, start: time.Now()})
}

// TraceQueryEnd implements pgx.QueryTracer.
func (t *QueryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if data.Err != nil {
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, data.Err.Error())
	} else {
		span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	}

	qs, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	elapsed := time.Since(qs.start)

	switch {
	case data.Err != nil && !errors.Is(data.Err, pgx.ErrNoRows):
		t.log.Debug().Err(data.Err).Str("verb", statementVerb(qs.sql)).Dur("elapsed", elapsed).Msg("Query failed")
	case t.slow > 0 && elapsed >= t.slow:
		t.log.Warn().Str("sql", compact(qs.sql)).Dur("elapsed", elapsed).Msg("Slow query")
	}
}

// statementVerb returns the leading SQL keyword, e.g. SELECT.
func statementVerb(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "QUERY"
	}
	verb := strings.ToUpper(fields[0])
	if verb == "WITH" {
		return "SELECT"
	}
	return verb
}

func compact(sql string) string {
	out := strings.Join(strings.Fields(sql), " ")
	if len(out) > 200 {
		out = out[:200] + "..."
	}
	return out
}
