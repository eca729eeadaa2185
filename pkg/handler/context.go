package handler

// DI for all handlers and models alike.

import (
	"github.com/yumyai/varquery/pkg/db"
)

type DBContext struct {
	Genotypes *db.GenotypeDB
}
