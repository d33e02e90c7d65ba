// Package pipeline answers a prompt against a caller's database: connect, extract
// table names, describe them, generate SQL, execute it. Stages run in order and the
// first failure ends the run.
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sqlprompt/sqlprompt/internal/history"
	"github.com/sqlprompt/sqlprompt/internal/nl2sql"
	"github.com/sqlprompt/sqlprompt/internal/observability"
	"github.com/sqlprompt/sqlprompt/internal/query"
	"github.com/sqlprompt/sqlprompt/internal/target"
)

type TableExtractor interface {
	Extract(ctx context.Context, prompt string) ([]string, error)
}

type SQLGenerator interface {
	Generate(ctx context.Context, prompt string, schema nl2sql.Schema, dialect string) (string, error)
}

type StatementExecutor interface {
	Execute(ctx context.Context, db *sql.DB, sqlText string) (query.Result, error)
}

type IntrospectFunc func(ctx context.Context, handle *target.Handle, tables []string) (nl2sql.Schema, error)

// Timeouts bound each external call. Zero means no bound.
type Timeouts struct {
	LLMCall time.Duration
	Schema  time.Duration
	Execute time.Duration
}

type Request struct {
	Prompt     string
	Connection *target.ConnectionSpec
	TraceID    string
}

type Pipeline struct {
	Connector  target.Connector
	Extractor  TableExtractor
	Generator  SQLGenerator
	Introspect IntrospectFunc
	Executor   StatementExecutor
	Guard      *query.Guard
	Timeouts   Timeouts
	History    history.Recorder
	Logger     *slog.Logger
	Clock      func() time.Time

	defaultsOnce sync.Once
}

func (p *Pipeline) Run(ctx context.Context, req Request) (query.Result, error) {
	p.ensureDefaults()
	run := &run{pipeline: p, started: p.Clock(), record: history.Record{
		At:      p.Clock().UTC(),
		TraceID: req.TraceID,
		Prompt:  req.Prompt,
	}}
	result, err := run.execute(ctx, req)
	run.finish(ctx, result, err)
	if err != nil {
		return query.Result{}, err
	}
	return result, nil
}

type run struct {
	pipeline *Pipeline
	started  time.Time
	record   history.Record
}

func (r *run) execute(ctx context.Context, req Request) (query.Result, error) {
	p := r.pipeline
	if strings.TrimSpace(req.Prompt) == "" || req.Connection == nil || req.Connection.IsZero() {
		return query.Result{}, &Error{Stage: StageValidate, Kind: KindValidation, Err: errMissingInput}
	}
	spec := *req.Connection
	r.record.Driver = strings.ToLower(strings.TrimSpace(spec.Driver))
	r.record.Host = spec.Host
	r.record.Database = spec.Database

	var handle *target.Handle
	err := r.stage(ctx, StageConnect, KindConnection, 0, func(stageCtx context.Context) error {
		var err error
		handle, err = p.Connector.Connect(stageCtx, spec)
		return err
	})
	if err != nil {
		return query.Result{}, err
	}
	defer handle.Release()
	r.record.Driver = handle.Dialect.Name()

	var tables []string
	err = r.stage(ctx, StageExtract, KindExtraction, p.Timeouts.LLMCall, func(stageCtx context.Context) error {
		var err error
		tables, err = p.Extractor.Extract(stageCtx, req.Prompt)
		observability.ObserveLLMCall("extract", err != nil)
		return err
	})
	if err != nil {
		return query.Result{}, err
	}
	r.record.Tables = tables

	var schema nl2sql.Schema
	err = r.stage(ctx, StageSchema, KindSchema, p.Timeouts.Schema, func(stageCtx context.Context) error {
		var err error
		schema, err = p.Introspect(stageCtx, handle, tables)
		return err
	})
	if err != nil {
		return query.Result{}, err
	}

	var sqlText string
	err = r.stage(ctx, StageGenerate, KindGeneration, p.Timeouts.LLMCall, func(stageCtx context.Context) error {
		var err error
		sqlText, err = p.Generator.Generate(stageCtx, req.Prompt, schema, handle.Dialect.DisplayName())
		observability.ObserveLLMCall("generate", err != nil)
		return err
	})
	if err != nil {
		return query.Result{}, err
	}
	r.record.SQL = sqlText
	r.record.Kind = string(query.KindOf(sqlText))

	if err := r.stage(ctx, StageGuard, KindPolicy, 0, func(context.Context) error {
		return p.Guard.Check(sqlText)
	}); err != nil {
		return query.Result{}, err
	}

	var result query.Result
	err = r.stage(ctx, StageExecute, KindExecution, p.Timeouts.Execute, func(stageCtx context.Context) error {
		var err error
		result, err = p.Executor.Execute(stageCtx, handle.DB, sqlText)
		return err
	})
	if err != nil {
		return query.Result{}, err
	}
	return result, nil
}

// stage runs fn under its own deadline and records its latency.
func (r *run) stage(ctx context.Context, stage Stage, kind Kind, timeout time.Duration, fn func(context.Context) error) error {
	stageCtx, cancel := withTimeout(ctx, timeout)
	defer cancel()

	start := r.pipeline.Clock()
	err := fn(stageCtx)
	elapsed := r.pipeline.Clock().Sub(start)
	observability.ObserveStage(string(stage), err != nil, elapsed)
	if err != nil {
		return classify(stageCtx, stage, kind, err)
	}
	r.pipeline.Logger.DebugContext(ctx, "pipeline stage completed",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("stage", string(stage)),
		slog.Duration("duration", elapsed),
	)
	return nil
}

func (r *run) finish(ctx context.Context, result query.Result, err error) {
	p := r.pipeline
	r.record.DurationMs = p.Clock().Sub(r.started).Milliseconds()

	attrs := []slog.Attr{
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("driver", r.record.Driver),
		slog.Int("tables", len(r.record.Tables)),
		slog.Int64("duration_ms", r.record.DurationMs),
	}

	if err != nil {
		failure := asError(err)
		r.record.Stage = string(failure.Stage)
		r.record.ErrorKind = string(failure.Kind)
		r.record.Error = failure.Message()
		observability.ObservePipelineOutcome(string(failure.Kind))
		level := slog.LevelWarn
		if failure.Kind == KindValidation {
			level = slog.LevelInfo
		}
		attrs = append(attrs,
			slog.String("stage", string(failure.Stage)),
			slog.String("kind", string(failure.Kind)),
			slog.Any("error", failure.Err),
		)
		p.Logger.LogAttrs(ctx, level, "pipeline run failed", attrs...)
	} else {
		r.record.Kind = string(result.Kind)
		if result.Kind == query.KindRead {
			r.record.RowCount = int64(len(result.Rows))
		} else {
			r.record.RowCount = result.RowsAffected
		}
		observability.ObservePipelineOutcome("")
		attrs = append(attrs,
			slog.String("kind", string(result.Kind)),
			slog.Int64("row_count", r.record.RowCount),
		)
		p.Logger.LogAttrs(ctx, slog.LevelInfo, "pipeline run completed", attrs...)
	}

	if r.record.TraceID == "" {
		r.record.TraceID = observability.TraceIDFromContext(ctx)
	}
	p.History.Record(ctx, r.record)
}

func (p *Pipeline) ensureDefaults() {
	p.defaultsOnce.Do(p.applyDefaults)
}

func (p *Pipeline) applyDefaults() {
	if p.Introspect == nil {
		p.Introspect = target.Introspect
	}
	if p.Executor == nil {
		p.Executor = &query.Executor{}
	}
	if p.History == nil {
		p.History = history.Discard{}
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Clock == nil {
		p.Clock = time.Now
	}
}

func asError(err error) *Error {
	var failure *Error
	if errors.As(err, &failure) {
		return failure
	}
	return &Error{Stage: StageExecute, Kind: KindExecution, Err: err}
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
