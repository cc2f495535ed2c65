package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/leadforge/truthtable-backend/internal/clients/apollo"
	"github.com/leadforge/truthtable-backend/internal/normalize"
	"github.com/leadforge/truthtable-backend/internal/pkg/logger"
	"github.com/leadforge/truthtable-backend/internal/store"
	"github.com/leadforge/truthtable-backend/internal/types"
)

// Input-contract violations: reported upfront, before any provider call or
// persistence is attempted.
var (
	ErrTooManyRows  = errors.New("row count exceeds the configured ceiling")
	ErrFileTooLarge = errors.New("file exceeds the configured size ceiling")
)

// peopleSkipMarker marks rows never sent for people enrichment because they
// carry no usable identifier.
const peopleSkipMarker = "Skipped (no identifier for matching)"

// ProgressFunc reports a named stage with current/total progress.
// A nil callback is fine; a panicking callback never aborts the run.
type ProgressFunc func(stage string, current, total int)

type Options struct {
	EnrichPeople    bool
	EnrichCompanies bool
	// LeadSource overrides the per-source default on rows that lack one.
	LeadSource string
}

// RecordError is a per-record enrichment failure surfaced to the caller.
// Emails are masked before they leave the pipeline.
type RecordError struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

// SkippedPerson identifies a scrape-origin row that could not be saved
// because no email was found even after enrichment.
type SkippedPerson struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
}

// Result is the structured outcome of one run. Every run produces one;
// only input-contract violations surface as errors instead.
type Result struct {
	RunID          string               `json:"run_id"`
	TotalProcessed int                  `json:"total_processed"`
	NewInserts     int                  `json:"new_inserts"`
	Updates        int                  `json:"updates"`
	Skipped        int                  `json:"skipped"`
	Failed         int                  `json:"failed"`
	InsertedEmails []string             `json:"inserted_emails"`
	UpdatedEmails  []string             `json:"updated_emails"`
	FailedRecords  []store.FailedRecord `json:"failed_records"`

	PeopleEnriched               int `json:"people_enriched"`
	OrgsEnriched                 int `json:"orgs_enriched"`
	OrgEnrichmentSkippedNoDomain int `json:"org_enrichment_skipped_no_domain"`

	SkippedNoEmail        int             `json:"skipped_no_email"`
	SkippedNoEmailRecords []SkippedPerson `json:"skipped_no_email_records,omitempty"`

	Warnings    []string      `json:"warnings"`
	Errors      []RecordError `json:"errors"`
	EmptyReason string        `json:"empty_reason,omitempty"`
}

// Pipeline drives normalization, enrichment, and persistence across one
// input set, sequentially by design: the provider is rate limited and the
// natural-key merge needs a consistent view of the store.
type Pipeline struct {
	log        *logger.Logger
	normalizer *normalize.Normalizer
	truth      *store.Truth
	// apollo is optional; a nil client skips enrichment entirely.
	apollo  apollo.Client
	maxRows int
}

func NewPipeline(baseLog *logger.Logger, n *normalize.Normalizer, truth *store.Truth, client apollo.Client, maxRows int) *Pipeline {
	return &Pipeline{
		log:        baseLog.With("service", "Pipeline"),
		normalizer: n,
		truth:      truth,
		apollo:     client,
		maxRows:    maxRows,
	}
}

// ProcessTable runs the full upload pipeline over already-parsed rows.
// Returns an error only for input-contract violations (ErrTooManyRows,
// normalize.ErrNoEmailColumn); all other failures land in the Result.
func (p *Pipeline) ProcessTable(ctx context.Context, headers []string, rows []types.Record, opts Options, progress ProgressFunc) (Result, error) {
	res := newResult()
	p.log.Info("Starting table processing", "rows", len(rows), "run_id", res.RunID)

	if p.maxRows > 0 && len(rows) > p.maxRows {
		return res, fmt.Errorf("%w: %d rows (max %d)", ErrTooManyRows, len(rows), p.maxRows)
	}

	report(p.log, progress, "Normalizing data", 10, 100)
	norm, err := p.normalizer.Normalize(headers, rows, opts.LeadSource)
	if err != nil {
		return res, err
	}
	res.Warnings = append(res.Warnings, norm.Warnings...)
	if len(norm.Rows) == 0 {
		res.EmptyReason = "no_valid_rows"
		return res, nil
	}

	report(p.log, progress, "Deduplicating records", 20, 100)
	deduped, removed := p.normalizer.DedupeByEmail(norm.Rows)
	if removed > 0 {
		p.log.Info("Deduplicated", "before", len(norm.Rows), "after", len(deduped))
	}
	if len(deduped) == 0 {
		res.EmptyReason = "no_valid_rows"
		return res, nil
	}
	res.TotalProcessed = len(deduped)

	enriched := deduped
	if opts.EnrichPeople || opts.EnrichCompanies {
		enriched, err = p.enrich(ctx, deduped, opts, &res, progress)
		if err != nil {
			return res, err
		}
	}

	report(p.log, progress, "Saving to database", 80, 100)
	p.save(ctx, enriched, &res)
	p.collectEnrichmentErrors(enriched, &res)

	report(p.log, progress, "Complete", 100, 100)
	p.log.Info("Table processing complete",
		"run_id", res.RunID,
		"inserted", res.NewInserts,
		"updated", res.Updates,
		"failed", res.Failed,
	)
	return res, nil
}

// ProcessScrapeItems runs the scrape pipeline: map items to rows, normalize
// with the scrape lead source, dedupe by name+company, enrich, then save
// only the rows that ended up with an email.
func (p *Pipeline) ProcessScrapeItems(ctx context.Context, items []types.ScrapeItem, opts Options, progress ProgressFunc) (Result, error) {
	res := newResult()
	p.log.Info("Starting scrape processing", "items", len(items), "run_id", res.RunID)

	report(p.log, progress, "Mapping scraped items", 5, 100)
	rows := ScrapeRowsFromItems(items)
	if len(rows) == 0 {
		res.EmptyReason = "no_valid_rows"
		return res, nil
	}

	report(p.log, progress, "Normalizing data", 15, 100)
	norm := p.normalizer.NormalizeScrape(rows)

	report(p.log, progress, "Deduplicating by name and company", 25, 100)
	deduped, _ := p.normalizer.DedupeByNameCompany(norm.Rows)
	if len(deduped) == 0 {
		res.EmptyReason = "no_valid_rows"
		return res, nil
	}
	res.TotalProcessed = len(deduped)

	enriched := deduped
	var err error
	if opts.EnrichPeople || opts.EnrichCompanies {
		enriched, err = p.enrich(ctx, deduped, opts, &res, progress)
		if err != nil {
			return res, err
		}
	}

	report(p.log, progress, "Saving to database", 80, 100)
	var savable []types.Record
	for _, rec := range enriched {
		if rec.Email() == "" {
			res.SkippedNoEmail++
			res.SkippedNoEmailRecords = append(res.SkippedNoEmailRecords, SkippedPerson{
				FirstName: rec[types.ColFirstName],
				LastName:  rec[types.ColLastName],
				Company:   rec[types.ColCompanyName],
			})
			continue
		}
		savable = append(savable, rec)
	}
	p.save(ctx, savable, &res)
	p.collectEnrichmentErrors(enriched, &res)

	report(p.log, progress, "Complete", 100, 100)
	p.log.Info("Scrape processing complete",
		"run_id", res.RunID,
		"inserted", res.NewInserts,
		"updated", res.Updates,
		"skipped_no_email", res.SkippedNoEmail,
	)
	return res, nil
}

func (p *Pipeline) enrich(ctx context.Context, rows []types.Record, opts Options, res *Result, progress ProgressFunc) ([]types.Record, error) {
	if p.apollo == nil {
		p.log.Info("No enrichment client configured, skipping enrichment")
		return rows, nil
	}

	for _, rec := range rows {
		if normalize.ExtractDomain(rec[types.ColWebsite]) == "" {
			res.OrgEnrichmentSkippedNoDomain++
		}
	}

	current := rows
	if opts.EnrichPeople {
		report(p.log, progress, "Enriching people data", 40, 100)
		eligible, positions := splitPeopleEligible(current)
		enrichedSubset, err := p.apollo.EnrichPeople(ctx, eligible)
		if err != nil {
			return nil, err
		}
		full := make([]types.Record, len(current))
		j := 0
		for i, rec := range current {
			if j < len(positions) && positions[j] == i {
				full[i] = enrichedSubset[j]
				j++
				continue
			}
			marked := rec.Clone()
			marked[types.ColEnrichmentError] = peopleSkipMarker
			full[i] = marked
		}
		current = full
		res.PeopleEnriched = countClean(enrichedSubset)
		p.log.Info("People enrichment complete", "enriched", res.PeopleEnriched)
	}

	if opts.EnrichCompanies {
		report(p.log, progress, "Enriching company data", 60, 100)
		enriched, err := p.apollo.EnrichOrganizations(ctx, current)
		if err != nil {
			return nil, err
		}
		current = enriched
		res.OrgsEnriched = countClean(enriched)
		p.log.Info("Company enrichment complete", "enriched", res.OrgsEnriched)
	}

	return current, nil
}

// splitPeopleEligible returns the rows worth sending for people lookup and
// their positions in the input. A row qualifies with an email, a full name,
// a company, or a website.
func splitPeopleEligible(rows []types.Record) ([]types.Record, []int) {
	var eligible []types.Record
	var positions []int
	for i, rec := range rows {
		hasName := rec.Has(types.ColFirstName) && rec.Has(types.ColLastName)
		if rec.Email() != "" || hasName || rec.Has(types.ColCompanyName) || rec.Has(types.ColWebsite) {
			eligible = append(eligible, rec)
			positions = append(positions, i)
		}
	}
	return eligible, positions
}

func (p *Pipeline) save(ctx context.Context, rows []types.Record, res *Result) {
	cleaned := make([]types.Record, 0, len(rows))
	for _, rec := range rows {
		clean := make(types.Record, len(rec))
		for col, val := range rec {
			if strings.HasPrefix(col, "_") {
				continue
			}
			clean[col] = val
		}
		if clean.Email() == "" {
			p.log.Warn("Skipping record without email")
			res.SkippedNoEmail++
			continue
		}
		cleaned = append(cleaned, clean)
	}

	_, stats := p.truth.UpsertBatch(ctx, cleaned)
	res.NewInserts = stats.Inserted
	res.Updates = stats.Updated
	res.Skipped = stats.Skipped
	res.Failed = stats.Failed
	res.InsertedEmails = stats.InsertedEmails
	res.UpdatedEmails = stats.UpdatedEmails
	res.FailedRecords = stats.FailedRecords
}

func (p *Pipeline) collectEnrichmentErrors(rows []types.Record, res *Result) {
	for _, rec := range rows {
		if msg := rec[types.ColEnrichmentError]; msg != "" {
			res.Errors = append(res.Errors, RecordError{
				Email:   logger.MaskPII(rec.Email()),
				Message: msg,
			})
		}
	}
}

func countClean(rows []types.Record) int {
	n := 0
	for _, rec := range rows {
		if rec[types.ColEnrichmentError] == "" {
			n++
		}
	}
	return n
}

func newResult() Result {
	return Result{
		RunID:          uuid.NewString(),
		InsertedEmails: []string{},
		UpdatedEmails:  []string{},
		FailedRecords:  []store.FailedRecord{},
		Warnings:       []string{},
		Errors:         []RecordError{},
	}
}

// report invokes the progress callback, shielding the run from a panicking
// callback.
func report(log *logger.Logger, cb ProgressFunc, stage string, current, total int) {
	if cb == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn("Progress callback panicked", "stage", stage, "panic", fmt.Sprintf("%v", r))
		}
	}()
	cb(stage, current, total)
}
