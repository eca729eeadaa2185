package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/yumyai/varquery/pkg/db"
	"github.com/yumyai/varquery/pkg/handler/request"
	"github.com/yumyai/varquery/pkg/middle"
	"github.com/yumyai/varquery/pkg/model"
	"github.com/yumyai/varquery/pkg/query"
	"github.com/yumyai/varquery/pkg/runner"
)

const flushEvery = 100

type ErrorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

type ExplainEntry struct {
	Study   string        `json:"study"`
	Dialect query.Dialect `json:"dialect"`
	Shape   string        `json:"shape"`
	Text    string        `json:"text"`
	Args    []any         `json:"args,omitempty"`
	Targets []string      `json:"targets,omitempty"`
	Limit   int           `json:"limit,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps errors raised before any row is sent to a status code.
func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}
	status := http.StatusInternalServerError

	var compileErr *query.CompileError
	switch {
	case errors.Is(err, db.ErrUnknownStudy):
		status = http.StatusNotFound
	case errors.As(err, &compileErr):
		resp.Field = compileErr.Field
		status = http.StatusBadRequest
		if errors.Is(err, query.ErrUnsupported) {
			status = http.StatusUnprocessableEntity
		}
	}
	writeJSON(w, status, resp)
}

// QueryVariantsHandler streams the variants of every selected study. With
// ?format=json the result is sent as one array instead of NDJSON lines.
// An error after the first row ends the stream with an error line.
func (dbctx *DBContext) QueryVariantsHandler(w http.ResponseWriter, r *http.Request) {
	log := middle.Logger(r.Context())
	studies, f, err := request.DecodeQuery(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	format := request.ParseFormat(r.URL.Query().Get("format"))

	agg, err := dbctx.Genotypes.QueryVariants(r.Context(), studies, f)
	if err != nil {
		log.Info("query rejected", zap.Error(err))
		writeError(w, err)
		return
	}
	defer agg.Close()

	if format == request.FormatJSON {
		variants, err := agg.Collect(r.Context())
		if err != nil {
			log.Warn("query failed", zap.Error(err))
			writeError(w, err)
			return
		}
		if variants == nil {
			variants = []*model.Variant{}
		}
		writeJSON(w, http.StatusOK, variants)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	rows := 0
	for {
		v, err := agg.Next(r.Context())
		if errors.Is(err, runner.ErrDone) {
			break
		}
		if err != nil {
			if r.Context().Err() != nil {
				log.Debug("client went away", zap.Int("rows", rows))
				return
			}
			log.Warn("query failed", zap.Error(err), zap.Int("rows", rows))
			enc.Encode(ErrorResponse{Error: err.Error()})
			return
		}
		if err := enc.Encode(v); err != nil {
			log.Debug("write failed", zap.Error(err), zap.Int("rows", rows))
			return
		}
		rows++
		if flusher != nil && rows%flushEvery == 0 {
			flusher.Flush()
		}
	}
	log.Debug("query finished", zap.Int("rows", rows))
}

// ExplainHandler returns the compiled query of every selected study.
func (dbctx *DBContext) ExplainHandler(w http.ResponseWriter, r *http.Request) {
	studies, f, err := request.DecodeQuery(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	compiled, err := dbctx.Genotypes.Explain(r.Context(), studies, f)
	if err != nil {
		writeError(w, err)
		return
	}
	entries := make([]ExplainEntry, len(compiled))
	for i, q := range compiled {
		entries[i] = ExplainEntry{
			Study:   q.Study(),
			Dialect: q.Dialect(),
			Shape:   q.Shape().String(),
			Text:    q.Text(),
			Args:    q.Args(),
			Limit:   q.Limit(),
		}
		for _, k := range q.Targets() {
			entries[i].Targets = append(entries[i].Targets, k.String())
		}
	}
	writeJSON(w, http.StatusOK, entries)
}
