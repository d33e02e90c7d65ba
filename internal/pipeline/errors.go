package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sqlprompt/sqlprompt/internal/nl2sql"
	"github.com/sqlprompt/sqlprompt/internal/target"
)

type Stage string

const (
	StageValidate Stage = "validate"
	StageConnect  Stage = "connect"
	StageExtract  Stage = "extract"
	StageSchema   Stage = "schema"
	StageGenerate Stage = "generate"
	StageGuard    Stage = "guard"
	StageExecute  Stage = "execute"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindConnection Kind = "connection"
	KindExtraction Kind = "extraction"
	KindSchema     Kind = "schema"
	KindGeneration Kind = "generation"
	KindPolicy     Kind = "policy"
	KindExecution  Kind = "execution"
	KindTimeout    Kind = "timeout"
)

const (
	MessageMissingInput = "Prompt or DB connection details missing."
	MessageNoTables     = "Could not extract valid table names from prompt."
)

var errMissingInput = errors.New("prompt or connection missing")

// Error is the single failure state of a run: the stage that failed and why.
type Error struct {
	Stage Stage
	Kind  Kind
	Table string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Message is the text returned to the caller.
func (e *Error) Message() string {
	switch e.Kind {
	case KindValidation:
		return MessageMissingInput
	case KindTimeout:
		return fmt.Sprintf("Timed out during %s: %v", e.Stage, e.Err)
	case KindExtraction:
		if errors.Is(e.Err, nl2sql.ErrNoTables) {
			return MessageNoTables
		}
	case KindSchema:
		var tableErr *target.TableError
		if errors.As(e.Err, &tableErr) {
			return fmt.Sprintf("Schema error for '%s': %v", tableErr.Table, tableErr.Err)
		}
	}
	return fmt.Sprintf("Server error: %v", e.Err)
}

// classify builds the failure for stage. A deadline hit while the stage ran is always
// reported as a timeout.
func classify(stageCtx context.Context, stage Stage, kind Kind, err error) *Error {
	failure := &Error{Stage: stage, Kind: kind, Err: err}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
		failure.Kind = KindTimeout
	}
	var tableErr *target.TableError
	if errors.As(err, &tableErr) {
		failure.Table = tableErr.Table
	}
	return failure
}
