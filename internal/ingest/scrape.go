package ingest

import (
	"strings"

	"github.com/leadforge/truthtable-backend/internal/normalize"
	"github.com/leadforge/truthtable-backend/internal/types"
)

// ScrapeRowsFromItems maps extractor output onto Truth rows. The extractor
// itself is an external collaborator; this is just another raw-record
// source. Items with neither a name nor an organization are dropped.
func ScrapeRowsFromItems(items []types.ScrapeItem) []types.Record {
	rows := make([]types.Record, 0, len(items))
	for _, item := range items {
		first := strings.TrimSpace(item.FirstName)
		last := strings.TrimSpace(item.LastName)
		org := strings.TrimSpace(item.Organization)
		if first == "" && last == "" && org == "" {
			continue
		}
		// A full name stuffed into firstName is split on the last space.
		if last == "" && strings.Contains(first, " ") {
			idx := strings.LastIndex(first, " ")
			first, last = first[:idx], first[idx+1:]
		}
		rec := types.Record{
			types.ColFirstName:  first,
			types.ColLastName:   last,
			types.ColLeadSource: normalize.ScrapeLeadSource,
		}
		if org != "" {
			rec[types.ColCompanyName] = org
		}
		if email := strings.TrimSpace(item.Email); email != "" {
			rec[types.ColEmail] = email
		}
		rows = append(rows, rec)
	}
	return rows
}
