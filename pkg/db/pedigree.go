package db

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ReadPedigree maps person id to family id. The file is tab separated with
// the family id in the first column and the person id in the second; lines
// starting with # are skipped.
func ReadPedigree(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parsePedigree(f)
}

func parsePedigree(r io.Reader) (map[string]string, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.Comment = '#'
	reader.FieldsPerRecord = -1

	people := map[string]string{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("pedigree: %w", err)
		}
		if len(record) < 2 {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("pedigree: line %d: expected family and person id", line)
		}
		family, person := strings.TrimSpace(record[0]), strings.TrimSpace(record[1])
		if family == "familyId" || family == "family_id" {
			continue
		}
		people[person] = family
	}
	return people, nil
}
