package model

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Column names shared by every backend's summary and family tables.
const (
	ColChromosome   = "chromosome"
	ColPosition     = "position"
	ColEndPosition  = "end_position"
	ColReference    = "reference"
	ColAlternative  = "alternative"
	ColVariantType  = "variant_type"
	ColSummaryIndex = "summary_index"
	ColAlleleIndex  = "allele_index"
	ColFamilyID     = "family_id"
	ColGenotype     = "genotype"
	ColInheritance  = "inheritance_in_members"
)

// Record is a raw row keyed by column name, the common currency the
// per-backend deserializers convert into before building a Variant.
type Record map[string]any

func (r Record) Text(col string) (string, error) {
	switch v := r[col].(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// Int returns the column as int; NULL is reported with ok=false.
func (r Record) Int(col string) (int64, bool, error) {
	switch v := r[col].(type) {
	case nil:
		return 0, false, nil
	case int:
		return int64(v), true, nil
	case int8:
		return int64(v), true, nil
	case int16:
		return int64(v), true, nil
	case int32:
		return int64(v), true, nil
	case int64:
		return v, true, nil
	case uint32:
		return int64(v), true, nil
	case uint64:
		return int64(v), true, nil
	case float64:
		return int64(v), true, nil
	case bool:
		if v {
			return 1, true, nil
		}
		return 0, true, nil
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		return n, err == nil, err
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil, err
	default:
		return 0, false, fmt.Errorf("column %s: unexpected int type %T", col, v)
	}
}

// Float returns the column as float64; NULL is reported with ok=false.
func (r Record) Float(col string) (float64, bool, error) {
	switch v := r[col].(type) {
	case nil:
		return 0, false, nil
	case float64:
		return v, true, nil
	case float32:
		return float64(v), true, nil
	case []byte:
		f, err := strconv.ParseFloat(string(v), 64)
		return f, err == nil, err
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil, err
	default:
		n, ok, err := r.Int(col)
		return float64(n), ok, err
	}
}

// Strings returns a list-valued column. Backends without native arrays store
// lists as JSON text.
func (r Record) Strings(col string) ([]string, error) {
	switch v := r[col].(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out, nil
	case string:
		return decodeJSONStrings(col, []byte(v))
	case []byte:
		return decodeJSONStrings(col, v)
	default:
		return nil, fmt.Errorf("column %s: unexpected list type %T", col, v)
	}
}

func decodeJSONStrings(col string, raw []byte) ([]string, error) {
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("column %s: %w", col, err)
	}
	return out, nil
}

// VariantFromRecord builds the internal representation; attrs names the
// real-valued attribute columns to carry along.
func VariantFromRecord(rec Record, attrs []string) (*Variant, error) {
	v := &Variant{}
	var err error

	if v.Chromosome, err = rec.Text(ColChromosome); err != nil {
		return nil, err
	}
	if v.Reference, err = rec.Text(ColReference); err != nil {
		return nil, err
	}
	if v.Alternative, err = rec.Text(ColAlternative); err != nil {
		return nil, err
	}

	ints := []struct {
		col string
		dst *int
	}{
		{ColPosition, &v.Position},
		{ColEndPosition, &v.EndPosition},
		{ColSummaryIndex, &v.SummaryIndex},
		{ColAlleleIndex, &v.AlleleIndex},
	}
	for _, f := range ints {
		n, _, err := rec.Int(f.col)
		if err != nil {
			return nil, err
		}
		*f.dst = int(n)
	}

	vt, _, err := rec.Int(ColVariantType)
	if err != nil {
		return nil, err
	}
	v.VariantType = VariantType(vt)

	if _, ok := rec[ColFamilyID]; ok {
		if v.FamilyID, err = rec.Text(ColFamilyID); err != nil {
			return nil, err
		}
		inh, _, err := rec.Int(ColInheritance)
		if err != nil {
			return nil, err
		}
		v.Inheritance = Inheritance(inh)
		if v.Genotype, err = decodeGenotype(rec[ColGenotype]); err != nil {
			return nil, err
		}
	}

	for _, name := range attrs {
		f, ok, err := rec.Float(name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if v.Attributes == nil {
			v.Attributes = make(map[string]float64, len(attrs))
		}
		v.Attributes[name] = f
	}
	return v, nil
}

// decodeGenotype reads the 2 x members genotype matrix, stored as JSON text.
func decodeGenotype(raw any) ([][]int8, error) {
	var data []byte
	switch g := raw.(type) {
	case nil:
		return nil, nil
	case string:
		data = []byte(g)
	case []byte:
		data = g
	case [][]int8:
		return g, nil
	default:
		return nil, fmt.Errorf("genotype: unexpected type %T", raw)
	}
	if len(data) == 0 {
		return nil, nil
	}
	var gt [][]int8
	if err := json.Unmarshal(data, &gt); err != nil {
		return nil, fmt.Errorf("genotype: %w", err)
	}
	return gt, nil
}
