package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/sqlprompt/sqlprompt/internal/observability"
	"github.com/sqlprompt/sqlprompt/internal/pipeline"
	"github.com/sqlprompt/sqlprompt/internal/query"
	"github.com/sqlprompt/sqlprompt/internal/target"
)

const maxQueryBodyBytes = 1 << 20

type queryRequest struct {
	Prompt     string                 `json:"prompt"`
	Connection *target.ConnectionSpec `json:"connection"`
}

// handleQuery always answers 200. Failures are told apart from results only by the
// presence of the "error" key.
func handleQuery(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Pipeline == nil {
		writeJSON(w, http.StatusOK, errorBody("Server error: query pipeline is not configured"))
		return
	}

	var request queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBodyBytes)).Decode(&request); err != nil {
		writeJSON(w, http.StatusOK, errorBody(fmt.Sprintf("Server error: invalid request body: %v", err)))
		return
	}

	result, err := deps.Pipeline.Run(r.Context(), pipeline.Request{
		Prompt:     request.Prompt,
		Connection: request.Connection,
		TraceID:    observability.TraceIDFromContext(r.Context()),
	})
	if err != nil {
		writeJSON(w, http.StatusOK, errorBody(failureMessage(err)))
		return
	}
	writeJSON(w, http.StatusOK, resultBody(result))
}

func resultBody(result query.Result) map[string]any {
	if result.Kind == query.KindRead {
		rows := result.Rows
		if rows == nil {
			rows = []map[string]any{}
		}
		return map[string]any{"sql": result.SQL, "data": rows}
	}
	return map[string]any{"sql": result.SQL, "message": fmt.Sprintf("%d rows affected.", result.RowsAffected)}
}

func failureMessage(err error) string {
	var failure *pipeline.Error
	if errors.As(err, &failure) {
		return failure.Message()
	}
	return fmt.Sprintf("Server error: %v", err)
}
