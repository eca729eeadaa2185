package handler

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/yumyai/varquery/pkg/middle"
	"github.com/yumyai/varquery/pkg/model"
)

// GetReferenceHandler returns the reference sequence of one or more
// ?region= parameters as FASTA.
func (dbctx *DBContext) GetReferenceHandler(w http.ResponseWriter, r *http.Request) {
	study := r.PathValue("study")
	ref, ok := dbctx.Genotypes.Reference(study)
	if !ok {
		http.Error(w, fmt.Sprintf("study %q has no reference genome", study), http.StatusNotFound)
		return
	}

	var regions []model.Region
	var errorMessages []string
	for _, raw := range r.URL.Query()["region"] {
		region, err := model.ParseRegion(raw)
		if err != nil {
			errorMessages = append(errorMessages, err.Error())
			continue
		}
		regions = append(regions, region)
	}
	if len(regions) == 0 && len(errorMessages) == 0 {
		errorMessages = append(errorMessages, "region is required")
	}
	if len(errorMessages) > 0 {
		// Join all error messages into a single response
		http.Error(w, strings.Join(errorMessages, "; "), http.StatusBadRequest)
		return
	}

	seq, err := ref.Fetch(r.Context(), study, regions...)
	if err != nil {
		middle.Logger(r.Context()).Info("reference fetch failed", zap.Error(err))
		http.Error(w, "Not found (maybe Samtools isn't available?)", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write(seq)
}
