package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/leadforge/truthtable-backend/internal/pkg/logger"
	"github.com/leadforge/truthtable-backend/internal/types"
)

// ErrNoEmailColumn is the input-contract failure for tables with no email
// column at all: unkeyed data cannot be enriched or saved.
var ErrNoEmailColumn = errors.New("input has no email column (e.g. 'Email', 'Email Address', 'E-mail'); no rows can be saved without email")

const (
	DefaultLeadSource = "Excel Upload"
	ScrapeLeadSource  = "Website Scrape"
	defaultEmailSend  = "No"
)

// Normalizer turns loosely-named raw rows into the canonical column set.
type Normalizer struct {
	log     *logger.Logger
	aliases map[string]string
}

func New(baseLog *logger.Logger, table AliasTable) *Normalizer {
	if table == nil {
		table = DefaultAliases()
	}
	return &Normalizer{
		log:     baseLog.With("component", "Normalizer"),
		aliases: table.lookup(),
	}
}

// Result is the outcome of a Normalize pass. Zero rows is a valid outcome
// that callers must distinguish from failure.
type Result struct {
	Headers  []string
	Rows     []types.Record
	Dropped  int
	Warnings []string
}

// MapColumns resolves raw header names to canonical columns. Unmatched
// headers pass through unchanged; when two raw headers resolve to the same
// canonical column, the first occurrence wins and later ones are dropped
// with a warning.
func (n *Normalizer) MapColumns(headers []string, rows []types.Record) ([]string, []types.Record, []string) {
	var warnings []string
	mapped := make([]string, 0, len(headers))
	rename := make(map[string]string, len(headers))
	seen := make(map[string]bool, len(headers))

	for _, h := range headers {
		canonical := h
		if c, ok := n.aliases[strings.ToLower(strings.TrimSpace(h))]; ok {
			canonical = c
		}
		if seen[canonical] {
			warnings = append(warnings, fmt.Sprintf("duplicate column %q resolves to %q; only the first occurrence is used", h, canonical))
			continue
		}
		seen[canonical] = true
		rename[h] = canonical
		mapped = append(mapped, canonical)
		if canonical != h {
			n.log.Debug("Mapped column", "from", h, "to", canonical)
		}
	}

	out := make([]types.Record, len(rows))
	for i, row := range rows {
		rec := make(types.Record, len(row))
		for k, v := range row {
			canonical, ok := rename[k]
			if !ok {
				continue
			}
			rec[canonical] = v
		}
		out[i] = rec
	}
	return mapped, out, warnings
}

// Normalize maps columns, cleans fields, validates emails, and applies
// defaults. leadSource overrides the "Excel Upload" default when non-empty.
// Rows with a missing or invalid email are dropped (counted in Dropped);
// a table with no email column at all is a hard ErrNoEmailColumn failure.
func (n *Normalizer) Normalize(headers []string, rows []types.Record, leadSource string) (Result, error) {
	mappedHeaders, mapped, warnings := n.MapColumns(headers, rows)

	hasEmailColumn := false
	for _, h := range mappedHeaders {
		if h == types.ColEmail {
			hasEmailColumn = true
			break
		}
	}
	if !hasEmailColumn {
		return Result{}, ErrNoEmailColumn
	}

	if leadSource == "" {
		leadSource = DefaultLeadSource
	}

	res := Result{Headers: mappedHeaders, Warnings: warnings}
	for _, rec := range mapped {
		if isBlankRow(rec) {
			continue
		}
		cleanRecord(rec)

		if !ValidateEmail(rec[types.ColEmail]) {
			res.Dropped++
			continue
		}
		rec[types.ColEmail] = strings.TrimSpace(rec[types.ColEmail])

		if !rec.Has(types.ColLeadSource) {
			rec[types.ColLeadSource] = leadSource
		}
		if !rec.Has(types.ColEmailSend) {
			rec[types.ColEmailSend] = defaultEmailSend
		}
		res.Rows = append(res.Rows, rec)
	}

	if res.Dropped > 0 {
		n.log.Warn("Dropped rows with missing or invalid emails", "dropped", res.Dropped)
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d rows dropped (missing or invalid email)", res.Dropped))
	}
	n.log.Info("Normalization complete", "rows", len(res.Rows), "dropped", res.Dropped)
	return res, nil
}

// NormalizeScrape is Normalize for scrape-origin rows, which have no email
// column requirement: rows keep their (possibly empty) email and are later
// deduplicated by name+company instead.
func (n *Normalizer) NormalizeScrape(rows []types.Record) Result {
	res := Result{}
	for _, raw := range rows {
		rec := raw.Clone()
		if isBlankRow(rec) {
			continue
		}
		cleanRecord(rec)
		if rec.Has(types.ColEmail) && !ValidateEmail(rec[types.ColEmail]) {
			rec[types.ColEmail] = ""
		}
		if !rec.Has(types.ColLeadSource) {
			rec[types.ColLeadSource] = ScrapeLeadSource
		}
		if !rec.Has(types.ColEmailSend) {
			rec[types.ColEmailSend] = defaultEmailSend
		}
		res.Rows = append(res.Rows, rec)
	}
	return res
}

// DedupeByEmail keeps the first occurrence of every email. Used for
// spreadsheet-origin data where the natural key is already known.
func (n *Normalizer) DedupeByEmail(rows []types.Record) ([]types.Record, int) {
	seen := make(map[string]bool, len(rows))
	out := rows[:0:0]
	removed := 0
	for _, rec := range rows {
		key := strings.ToLower(rec.Email())
		if key != "" && seen[key] {
			removed++
			continue
		}
		seen[key] = true
		out = append(out, rec)
	}
	if removed > 0 {
		n.log.Info("Removed duplicate emails", "removed", removed)
	}
	return out, removed
}

// DedupeByNameCompany keeps the first occurrence of every
// (first name, last name, company) tuple. Used for scrape-origin data
// where emails are not yet known.
func (n *Normalizer) DedupeByNameCompany(rows []types.Record) ([]types.Record, int) {
	seen := make(map[string]bool, len(rows))
	out := rows[:0:0]
	removed := 0
	for _, rec := range rows {
		key := strings.ToLower(strings.Join([]string{
			strings.TrimSpace(rec[types.ColFirstName]),
			strings.TrimSpace(rec[types.ColLastName]),
			strings.TrimSpace(rec[types.ColCompanyName]),
		}, "\x00"))
		if seen[key] {
			removed++
			continue
		}
		seen[key] = true
		out = append(out, rec)
	}
	if removed > 0 {
		n.log.Info("Removed duplicate name+company rows", "removed", removed)
	}
	return out, removed
}

func isBlankRow(rec types.Record) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func cleanRecord(rec types.Record) {
	for _, col := range []string{types.ColFirstName, types.ColLastName, types.ColJobTitle, types.ColEmail} {
		if v, ok := rec[col]; ok {
			rec[col] = strings.TrimSpace(v)
		}
	}
	if v, ok := rec[types.ColWebsite]; ok && strings.TrimSpace(v) != "" {
		rec[types.ColWebsite] = ExtractDomain(v)
	}
	if v, ok := rec[types.ColCompanyName]; ok && strings.TrimSpace(v) != "" {
		rec[types.ColCompanyName] = NormalizeCompanyName(v)
	}
}
