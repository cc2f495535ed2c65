package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/leadforge/truthtable-backend/internal/types"
)

// ParseCSV reads a header row plus data rows into raw records keyed by the
// original header names. Ragged rows are tolerated: short rows leave
// trailing columns empty, long rows drop the extras with a warning.
func ParseCSV(r io.Reader) ([]string, []types.Record, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var headers []string
	var rows []types.Record
	var warnings []string
	raggedRows := 0

	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, nil, fmt.Errorf("read csv: %w", err)
		}
		if headers == nil {
			if allBlank(fields) {
				continue
			}
			headers = make([]string, len(fields))
			for i, h := range fields {
				headers[i] = strings.TrimSpace(h)
			}
			continue
		}
		if allBlank(fields) {
			continue
		}
		if len(fields) > len(headers) {
			raggedRows++
			fields = fields[:len(headers)]
		}
		rec := make(types.Record, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(fields) {
				rec[h] = fields[i]
			} else {
				rec[h] = ""
			}
		}
		rows = append(rows, rec)
	}

	if headers == nil {
		return nil, nil, nil, fmt.Errorf("csv has no header row")
	}
	if raggedRows > 0 {
		warnings = append(warnings, fmt.Sprintf("%d rows had more fields than headers; extras were dropped", raggedRows))
	}
	return headers, rows, warnings, nil
}

func allBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
