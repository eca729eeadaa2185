// Handler for miscellaneous endpoints such as health check

package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/yumyai/varquery/pkg/query"
)

type HealthResponse struct {
	Health    string    `json:"health"`
	Timestamp time.Time `json:"timestamp"`
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {

	response := HealthResponse{
		Health:    "ok",
		Timestamp: time.Now(),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)

}

type StudyInfo struct {
	ID          string        `json:"id"`
	Dialect     query.Dialect `json:"dialect"`
	Partitioned bool          `json:"partitioned"`
	Reference   bool          `json:"reference"`
}

func (dbctx *DBContext) ListStudies(w http.ResponseWriter, r *http.Request) {
	ids := dbctx.Genotypes.Studies()
	studies := make([]StudyInfo, 0, len(ids))
	for _, id := range ids {
		b, _ := dbctx.Genotypes.Backend(id)
		_, hasRef := dbctx.Genotypes.Reference(id)
		studies = append(studies, StudyInfo{
			ID:          id,
			Dialect:     b.Dialect(),
			Partitioned: b.Metadata().Partition != nil,
			Reference:   hasRef,
		})
	}
	writeJSON(w, http.StatusOK, studies)
}
